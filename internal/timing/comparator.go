// Package timing produces per-page statistical comparisons of dwell time and
// engagement between a matched successful/failed session pair.
package timing

import (
	"math"
	"sort"

	"github.com/clientflow/journey-insights/internal/domain"
	"github.com/clientflow/journey-insights/internal/stats"
)

const (
	defaultMinSampleSize         = 10
	defaultSignificanceThreshold = 0.05
	defaultEffectSizeThreshold   = 0.3
	defaultConfidenceLevel       = 0.95

	// singleSampleSpread is the documented approximation used when a page
	// has only one observation per session: the standard deviation is
	// estimated as 30% of the mean. Not statistically rigorous; replace
	// with the real cohort deviation once historical samples are wired in.
	singleSampleSpread = 0.3
)

// Fixed multipliers approximating a dwell-time distribution from a single
// observation.
const (
	p25Multiplier = 0.8
	p75Multiplier = 1.25
)

// Config tunes the comparator. Zero values fall back to defaults.
type Config struct {
	MinSampleSize         int
	SignificanceThreshold float64
	EffectSizeThreshold   float64
	ConfidenceLevel       float64
}

// Comparator computes TimingDiffs for session pairs.
type Comparator struct {
	cfg Config
}

// NewComparator creates a timing comparator.
func NewComparator(cfg Config) *Comparator {
	if cfg.MinSampleSize <= 0 {
		cfg.MinSampleSize = defaultMinSampleSize
	}
	if cfg.SignificanceThreshold <= 0 {
		cfg.SignificanceThreshold = defaultSignificanceThreshold
	}
	if cfg.EffectSizeThreshold <= 0 {
		cfg.EffectSizeThreshold = defaultEffectSizeThreshold
	}
	if cfg.ConfidenceLevel <= 0 {
		cfg.ConfidenceLevel = defaultConfidenceLevel
	}
	return &Comparator{cfg: cfg}
}

// Compare produces one TimingDiff per funnel page visited by both sessions.
// A diff is retained when it is statistically significant OR its practical
// effect is large; results are ordered by absolute effect size descending,
// because practical significance drives presentation order.
func (c *Comparator) Compare(successful, failed domain.JourneySession) []domain.TimingDiff {
	var diffs []domain.TimingDiff

	for _, page := range domain.FunnelPages {
		sVisits := closedVisits(successful, page)
		fVisits := closedVisits(failed, page)
		if len(sVisits) == 0 || len(fVisits) == 0 {
			continue
		}

		diff, ok := c.comparePage(page, successful, failed, sVisits, fVisits)
		if !ok {
			continue
		}
		diffs = append(diffs, diff)
	}

	sort.SliceStable(diffs, func(i, j int) bool {
		return math.Abs(diffs[i].EffectSize) > math.Abs(diffs[j].EffectSize)
	})
	return diffs
}

func (c *Comparator) comparePage(page domain.PageType, successful, failed domain.JourneySession, sVisits, fVisits []domain.PageVisit) (domain.TimingDiff, bool) {
	sTimes := dwellTimes(sVisits)
	fTimes := dwellTimes(fVisits)

	sig := c.significance(sTimes, fTimes)
	effect := c.effectSize(sTimes, fTimes)

	diff := domain.TimingDiff{
		PageType:         page,
		Successful:       buildAnalysis(successful, page, sVisits),
		Failed:           buildAnalysis(failed, page, fVisits),
		TimeDifferential: stats.Mean(sTimes) - stats.Mean(fTimes),
		EngagementDiff:   meanEngagement(sVisits) - meanEngagement(fVisits),
		InteractionDiff:  totalInteractions(sVisits) - totalInteractions(fVisits),
		ScrollDepthDiff:  meanScrollDepth(sVisits) - meanScrollDepth(fVisits),
		Significance:     sig,
		Interval:         c.differenceInterval(sTimes, fTimes),
		EffectSize:       effect,
	}

	keep := sig.PValue < c.cfg.SignificanceThreshold || math.Abs(effect) >= c.cfg.EffectSizeThreshold
	return diff, keep
}

// significance chooses the test: Mann-Whitney when either sample is small
// or visibly non-normal, Welch's unequal-variance t-test otherwise.
func (c *Comparator) significance(a, b []float64) domain.SignificanceResult {
	useMannWhitney := len(a) < c.cfg.MinSampleSize || len(b) < c.cfg.MinSampleSize ||
		!stats.LooksNormal(a) || !stats.LooksNormal(b)

	if useMannWhitney {
		res, err := stats.MannWhitneyU(a, b)
		if err != nil {
			return domain.SignificanceResult{TestType: domain.TestMannWhitneyU, PValue: 1}
		}
		return domain.SignificanceResult{
			TestType:    domain.TestMannWhitneyU,
			Statistic:   res.U,
			PValue:      res.PValue,
			Significant: res.PValue < c.cfg.SignificanceThreshold,
		}
	}

	res, err := stats.WelchTTest(a, b)
	if err != nil {
		return domain.SignificanceResult{TestType: domain.TestWelchT, PValue: 1}
	}
	return domain.SignificanceResult{
		TestType:         domain.TestWelchT,
		Statistic:        res.T,
		PValue:           res.PValue,
		DegreesOfFreedom: res.DegreesOfFreedom,
		Significant:      res.PValue < c.cfg.SignificanceThreshold,
	}
}

// effectSize is Cohen's d over the dwell-time samples. With fewer than two
// observations on a side the raw variance is unavailable and the deviation
// is approximated as 30% of that side's mean.
func (c *Comparator) effectSize(a, b []float64) float64 {
	sdA, sdB := stats.StdDev(a), stats.StdDev(b)
	if len(a) < 2 || sdA == 0 {
		sdA = singleSampleSpread * stats.Mean(a)
	}
	if len(b) < 2 || sdB == 0 {
		sdB = singleSampleSpread * stats.Mean(b)
	}
	return stats.CohenD(stats.Mean(a), sdA, len(a), stats.Mean(b), sdB, len(b))
}

// differenceInterval is a normal-approximation interval around the mean
// dwell-time difference, using the same spread approximation as the effect
// size when raw variance is unavailable.
func (c *Comparator) differenceInterval(a, b []float64) domain.ConfidenceInterval {
	sdA, sdB := stats.StdDev(a), stats.StdDev(b)
	if len(a) < 2 || sdA == 0 {
		sdA = singleSampleSpread * stats.Mean(a)
	}
	if len(b) < 2 || sdB == 0 {
		sdB = singleSampleSpread * stats.Mean(b)
	}

	diff := stats.Mean(a) - stats.Mean(b)
	se := math.Sqrt(sdA*sdA/float64(len(a)) + sdB*sdB/float64(len(b)))
	z := stats.NormalQuantile(1 - (1-c.cfg.ConfidenceLevel)/2)
	return domain.ConfidenceInterval{
		Lower: diff - z*se,
		Upper: diff + z*se,
		Level: c.cfg.ConfidenceLevel,
	}
}

// buildAnalysis describes one session's behavior on a page. Percentiles are
// approximated from the observed dwell time with fixed multipliers when
// only one observation exists.
func buildAnalysis(s domain.JourneySession, page domain.PageType, visits []domain.PageVisit) domain.TimingAnalysis {
	dwell := stats.Mean(dwellTimes(visits))

	seq := -1
	var transition float64
	for i := range s.Visits {
		if s.Visits[i].PageType != page || s.Visits[i].IsOpen() {
			continue
		}
		seq = i
		if i+1 < len(s.Visits) && s.Visits[i].ExitedAt != nil {
			transition = s.Visits[i+1].EnteredAt.Sub(*s.Visits[i].ExitedAt).Seconds()
		}
		break
	}

	return domain.TimingAnalysis{
		PageType:       page,
		TimeOnPage:     dwell,
		P25:            dwell * p25Multiplier,
		P50:            dwell,
		P75:            dwell * p75Multiplier,
		SequenceIndex:  seq,
		TransitionTime: transition,
		DropOffRisk:    dropOffRisk(page, visits),
	}
}

// dropOffRisk is a 0-1 heuristic: quick skims, stalls past the effective
// dwell band, and bounce-style exits all raise the risk.
func dropOffRisk(page domain.PageType, visits []domain.PageVisit) float64 {
	if len(visits) == 0 {
		return 0
	}
	last := visits[len(visits)-1]
	risk := 0.1

	switch {
	case last.TimeOnPage < 5:
		risk += 0.4
	case last.TimeOnPage > 600:
		risk += 0.3
	}
	switch last.ExitAction {
	case domain.ExitClose, domain.ExitTimeout, domain.ExitError:
		risk += 0.4
	case domain.ExitBack:
		risk += 0.2
	}
	if last.ScrollDepth < 20 {
		risk += 0.1
	}
	if risk > 1 {
		risk = 1
	}
	return risk
}

func closedVisits(s domain.JourneySession, page domain.PageType) []domain.PageVisit {
	var out []domain.PageVisit
	for _, v := range s.Visits {
		if v.PageType == page && !v.IsOpen() {
			out = append(out, v)
		}
	}
	return out
}

func dwellTimes(visits []domain.PageVisit) []float64 {
	out := make([]float64, 0, len(visits))
	for _, v := range visits {
		out = append(out, v.TimeOnPage)
	}
	return out
}

func meanEngagement(visits []domain.PageVisit) float64 {
	var sum float64
	for _, v := range visits {
		sum += v.EngagementScore
	}
	if len(visits) == 0 {
		return 0
	}
	return sum / float64(len(visits))
}

func meanScrollDepth(visits []domain.PageVisit) float64 {
	var sum float64
	for _, v := range visits {
		sum += v.ScrollDepth
	}
	if len(visits) == 0 {
		return 0
	}
	return sum / float64(len(visits))
}

func totalInteractions(visits []domain.PageVisit) int {
	var sum int
	for _, v := range visits {
		sum += v.InteractionCount
	}
	return sum
}
