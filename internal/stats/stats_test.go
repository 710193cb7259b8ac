package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWelchTTestRejectsSmallSamples(t *testing.T) {
	_, err := WelchTTest(nil, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrEmptySample)

	_, err = WelchTTest([]float64{1, 2, 3}, []float64{})
	assert.ErrorIs(t, err, ErrEmptySample)

	_, err = WelchTTest([]float64{1}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrInsufficientSample)

	_, err = WelchTTest([]float64{1, 2}, []float64{5})
	assert.ErrorIs(t, err, ErrInsufficientSample)
}

func TestWelchTTestIdenticalSamples(t *testing.T) {
	sample := []float64{10, 12, 11, 13, 12}
	res, err := WelchTTest(sample, sample)
	require.NoError(t, err)
	assert.InDelta(t, 0, res.T, 1e-12)
	assert.InDelta(t, 1, res.PValue, 1e-9)
}

func TestWelchTTestSeparatedSamples(t *testing.T) {
	a := []float64{100, 105, 98, 102, 101, 99, 103, 104}
	b := []float64{10, 12, 9, 11, 10, 13, 8, 11}
	res, err := WelchTTest(a, b)
	require.NoError(t, err)
	assert.Greater(t, res.T, 10.0)
	assert.Less(t, res.PValue, 0.001)
	assert.GreaterOrEqual(t, res.PValue, 0.0)
	assert.Greater(t, res.DegreesOfFreedom, 1.0)
}

func TestWelchTTestZeroVariance(t *testing.T) {
	res, err := WelchTTest([]float64{5, 5, 5}, []float64{5, 5, 5})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.T)
	assert.Equal(t, 1.0, res.PValue)
}

func TestMannWhitneyURejectsEmpty(t *testing.T) {
	_, err := MannWhitneyU(nil, []float64{1})
	assert.ErrorIs(t, err, ErrEmptySample)

	_, err = MannWhitneyU([]float64{1}, nil)
	assert.ErrorIs(t, err, ErrEmptySample)
}

func TestMannWhitneyUSeparatedSamples(t *testing.T) {
	a := []float64{600, 590, 610, 605, 595}
	b := []float64{120, 110, 130, 125, 115}
	res, err := MannWhitneyU(a, b)
	require.NoError(t, err)
	// Perfect separation: the smaller U statistic is 0.
	assert.Equal(t, 0.0, res.U)
	assert.Less(t, res.PValue, 0.05)
	assert.GreaterOrEqual(t, res.PValue, 0.0)
	assert.LessOrEqual(t, res.PValue, 1.0)
}

func TestMannWhitneyUAllTied(t *testing.T) {
	res, err := MannWhitneyU([]float64{7, 7, 7}, []float64{7, 7})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.PValue)
	assert.Equal(t, 0.0, res.Z)
}

func TestMannWhitneyUSingleObservations(t *testing.T) {
	// The test must accept n=1 samples (unlike the t-test).
	res, err := MannWhitneyU([]float64{600}, []float64{120})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.PValue, 0.0)
	assert.LessOrEqual(t, res.PValue, 1.0)
}

func TestWilsonIntervalBounds(t *testing.T) {
	cases := []struct {
		successes, trials int
	}{
		{0, 10}, {10, 10}, {5, 10}, {1, 1000}, {999, 1000}, {0, 0},
	}
	for _, tc := range cases {
		iv, err := WilsonInterval(tc.successes, tc.trials, 0.95)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, iv.Lower, 0.0, "successes=%d trials=%d", tc.successes, tc.trials)
		assert.LessOrEqual(t, iv.Lower, iv.Upper)
		assert.LessOrEqual(t, iv.Upper, 1.0)
	}
}

func TestWilsonIntervalZeroSuccesses(t *testing.T) {
	iv, err := WilsonInterval(0, 20, 0.95)
	require.NoError(t, err)
	assert.Equal(t, 0.0, iv.Lower)
	assert.Greater(t, iv.Upper, 0.0)
}

func TestWilsonIntervalContainsProportion(t *testing.T) {
	iv, err := WilsonInterval(60, 100, 0.95)
	require.NoError(t, err)
	assert.Less(t, iv.Lower, 0.6)
	assert.Greater(t, iv.Upper, 0.6)
	// Known reference values for 60/100 at 95%.
	assert.InDelta(t, 0.502, iv.Lower, 0.01)
	assert.InDelta(t, 0.691, iv.Upper, 0.01)
}

func TestWilsonIntervalRejectsMalformedInput(t *testing.T) {
	_, err := WilsonInterval(11, 10, 0.95)
	assert.ErrorIs(t, err, ErrInvalidProportion)

	_, err = WilsonInterval(-1, 10, 0.95)
	assert.ErrorIs(t, err, ErrInvalidProportion)

	_, err = WilsonInterval(5, 10, 1.5)
	assert.Error(t, err)
}

func TestCohenD(t *testing.T) {
	// Equal spreads, one pooled sd apart => d = 1.
	d := CohenD(10, 2, 30, 8, 2, 30)
	assert.InDelta(t, 1.0, d, 1e-9)

	// Zero variance falls back to 0, not Inf.
	assert.Equal(t, 0.0, CohenD(10, 0, 5, 8, 0, 5))

	// Sign follows the mean difference.
	assert.Less(t, CohenD(8, 2, 30, 10, 2, 30), 0.0)
}

func TestSkewness(t *testing.T) {
	symmetric := []float64{1, 2, 3, 4, 5, 6, 7}
	assert.InDelta(t, 0, Skewness(symmetric), 1e-9)

	skewed := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 50}
	assert.Greater(t, Skewness(skewed), 2.0)
	assert.False(t, LooksNormal(skewed))
	assert.True(t, LooksNormal(symmetric))
}

func TestNormalQuantile(t *testing.T) {
	assert.InDelta(t, 1.959964, NormalQuantile(0.975), 1e-4)
	assert.InDelta(t, -1.959964, NormalQuantile(0.025), 1e-4)
	assert.InDelta(t, 0, NormalQuantile(0.5), 1e-6)
	assert.InDelta(t, 2.575829, NormalQuantile(0.995), 1e-4)
}

func TestNormalCDFRoundTrip(t *testing.T) {
	for _, p := range []float64{0.01, 0.1, 0.5, 0.9, 0.99} {
		z := NormalQuantile(p)
		assert.InDelta(t, p, NormalCDF(z), 1e-6)
	}
}

func TestStudentTSFMatchesNormalForLargeDF(t *testing.T) {
	// With huge df the t-distribution converges to the normal.
	p := studentTSF(1.96, 1e6)
	assert.InDelta(t, 1-NormalCDF(1.96), p, 1e-4)
}

func TestMeanStdDev(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 5.0, Mean(xs), 1e-9)
	assert.InDelta(t, 2.138, StdDev(xs), 0.001)
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, StdDev([]float64{3}))
	assert.False(t, math.IsNaN(Skewness([]float64{1, 2})))
}
