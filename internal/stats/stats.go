// Package stats implements the two-sample statistical primitives used by the
// journey analytics engines: Welch's t-test, the Mann-Whitney U test, Wilson
// confidence intervals for proportions, and Cohen's d effect size.
//
// Everything in this package is a pure function. Malformed inputs (empty
// samples, single-element samples for the t-test) are rejected with explicit
// errors rather than degraded into NaN results.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Sentinel errors for malformed sample inputs.
var (
	ErrEmptySample        = errors.New("stats: empty sample")
	ErrInsufficientSample = errors.New("stats: sample needs at least 2 observations")
	ErrInvalidProportion  = errors.New("stats: successes must be within [0, trials]")
)

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the sample standard deviation (n-1 denominator) of xs.
// Returns 0 for fewer than 2 observations.
func StdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Skewness returns the adjusted Fisher-Pearson sample skewness, or 0 when the
// sample is too small or has zero variance.
func Skewness(xs []float64) float64 {
	n := float64(len(xs))
	if n < 3 {
		return 0
	}
	m := Mean(xs)
	sd := StdDev(xs)
	if sd == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		z := (x - m) / sd
		sum += z * z * z
	}
	return (n / ((n - 1) * (n - 2))) * sum
}

// LooksNormal is the normality heuristic used to pick between Welch's t-test
// and Mann-Whitney: a sample with absolute skewness >= 2 is treated as
// non-normal.
func LooksNormal(xs []float64) bool {
	return math.Abs(Skewness(xs)) < 2
}

// TTestResult holds the outcome of Welch's unequal-variance t-test.
type TTestResult struct {
	T                float64
	PValue           float64
	DegreesOfFreedom float64
}

// WelchTTest runs the unequal-variance two-sample t-test. It does not assume
// equal variance between the cohorts, which routinely differ in spread.
// Both samples need at least 2 observations.
func WelchTTest(a, b []float64) (TTestResult, error) {
	if len(a) == 0 || len(b) == 0 {
		return TTestResult{}, ErrEmptySample
	}
	if len(a) < 2 || len(b) < 2 {
		return TTestResult{}, ErrInsufficientSample
	}

	na, nb := float64(len(a)), float64(len(b))
	ma, mb := Mean(a), Mean(b)
	va := StdDev(a) * StdDev(a)
	vb := StdDev(b) * StdDev(b)

	sea := va / na
	seb := vb / nb
	se := math.Sqrt(sea + seb)
	if se == 0 {
		// Identical constant samples: no detectable difference.
		return TTestResult{T: 0, PValue: 1, DegreesOfFreedom: na + nb - 2}, nil
	}

	t := (ma - mb) / se

	// Welch-Satterthwaite approximation for the degrees of freedom.
	df := (sea + seb) * (sea + seb) / (sea*sea/(na-1) + seb*seb/(nb-1))
	if df < 1 {
		df = 1
	}

	p := 2 * studentTSF(math.Abs(t), df)
	if p > 1 {
		p = 1
	}
	return TTestResult{T: t, PValue: p, DegreesOfFreedom: df}, nil
}

// UTestResult holds the outcome of the Mann-Whitney U test.
type UTestResult struct {
	U      float64
	Z      float64
	PValue float64
}

// MannWhitneyU runs the rank-based non-parametric two-sample test using the
// normal approximation with tie correction and continuity correction.
// Both samples must be non-empty.
func MannWhitneyU(a, b []float64) (UTestResult, error) {
	if len(a) == 0 || len(b) == 0 {
		return UTestResult{}, ErrEmptySample
	}

	na, nb := float64(len(a)), float64(len(b))
	ranks, tieTerm := rankCombined(a, b)

	var ra float64
	for i := range a {
		ra += ranks[i]
	}

	ua := ra - na*(na+1)/2
	ub := na*nb - ua
	u := math.Min(ua, ub)

	mu := na * nb / 2
	n := na + nb
	variance := na * nb / 12 * ((n + 1) - tieTerm/(n*(n-1)))
	if variance <= 0 {
		// All observations tied: the samples are indistinguishable.
		return UTestResult{U: u, Z: 0, PValue: 1}, nil
	}

	// Continuity correction of 0.5 toward the mean.
	z := (u - mu + 0.5) / math.Sqrt(variance)
	p := 2 * NormalCDF(-math.Abs(z))
	if p > 1 {
		p = 1
	}
	return UTestResult{U: u, Z: z, PValue: p}, nil
}

// rankCombined assigns midranks to the concatenation of a and b (a first)
// and returns the rank slice plus the tie-correction term sum(t^3 - t).
func rankCombined(a, b []float64) ([]float64, float64) {
	n := len(a) + len(b)
	type indexed struct {
		v   float64
		pos int
	}
	all := make([]indexed, 0, n)
	for i, v := range a {
		all = append(all, indexed{v, i})
	}
	for i, v := range b {
		all = append(all, indexed{v, len(a) + i})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].v < all[j].v })

	ranks := make([]float64, n)
	var tieTerm float64
	for i := 0; i < n; {
		j := i
		for j < n && all[j].v == all[i].v {
			j++
		}
		// Midrank for the tie group [i, j).
		mid := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[all[k].pos] = mid
		}
		t := float64(j - i)
		if t > 1 {
			tieTerm += t*t*t - t
		}
		i = j
	}
	return ranks, tieTerm
}

// Interval is a two-sided confidence interval for a proportion.
type Interval struct {
	Lower float64
	Upper float64
	Level float64
}

// WilsonInterval returns the Wilson score interval for successes/trials at
// the given confidence level (e.g. 0.95). It is preferred over the naive
// normal approximation because it stays within [0,1] and remains accurate
// for small samples. Zero trials yields the vacuous [0,1] interval.
func WilsonInterval(successes, trials int, level float64) (Interval, error) {
	if successes < 0 || trials < 0 || successes > trials {
		return Interval{}, ErrInvalidProportion
	}
	if level <= 0 || level >= 1 {
		return Interval{}, fmt.Errorf("stats: confidence level %v outside (0,1)", level)
	}
	if trials == 0 {
		return Interval{Lower: 0, Upper: 1, Level: level}, nil
	}

	z := NormalQuantile(1 - (1-level)/2)
	n := float64(trials)
	p := float64(successes) / n
	z2 := z * z

	denom := 1 + z2/n
	center := (p + z2/(2*n)) / denom
	half := z * math.Sqrt(p*(1-p)/n+z2/(4*n*n)) / denom

	lower := center - half
	upper := center + half
	if lower < 0 {
		lower = 0
	}
	if upper > 1 {
		upper = 1
	}
	return Interval{Lower: lower, Upper: upper, Level: level}, nil
}

// CohenD returns Cohen's d from two sample means and standard deviations,
// using the pooled standard deviation weighted by sample size. A zero pooled
// deviation yields an effect size of 0 (explicit neutral fallback).
func CohenD(meanA, sdA float64, nA int, meanB, sdB float64, nB int) float64 {
	if nA < 1 || nB < 1 {
		return 0
	}
	na, nb := float64(nA), float64(nB)
	var pooled float64
	if na+nb > 2 {
		pooled = math.Sqrt(((na-1)*sdA*sdA + (nb-1)*sdB*sdB) / (na + nb - 2))
	} else {
		pooled = math.Sqrt((sdA*sdA + sdB*sdB) / 2)
	}
	if pooled == 0 {
		return 0
	}
	return (meanA - meanB) / pooled
}
