package comparison

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/clientflow/journey-insights/internal/domain"
	"github.com/clientflow/journey-insights/internal/pkg/logger"
	"github.com/clientflow/journey-insights/internal/timing"
)

// Aggregate confidence weights over the sub-analyses.
const (
	confWeightStatistical = 0.4
	confWeightContent     = 0.3
	confWeightTiming      = 0.2
	confWeightEngagement  = 0.1
)

// batchChunkSize bounds how many pair comparisons run back to back before
// yielding the scheduler.
const batchChunkSize = 5

// Orchestrator fans a session pair out to the content, timing, and engagement
// analyzers and folds the results into one JourneyComparison.
type Orchestrator struct {
	timing *timing.Comparator
	now    func() time.Time
}

// NewOrchestrator creates an orchestrator around the given timing comparator.
// A nil comparator gets the default configuration.
func NewOrchestrator(tc *timing.Comparator) *Orchestrator {
	if tc == nil {
		tc = timing.NewComparator(timing.Config{})
	}
	return &Orchestrator{timing: tc, now: time.Now}
}

// Compare runs the sub-analyses selected by the comparison type concurrently.
// The analyses are read-only and independent, so a failure in one is logged
// and omitted; the comparison is still returned with reduced confidence.
func (o *Orchestrator) Compare(successful, failed domain.JourneySession, compType domain.ComparisonType) domain.JourneyComparison {
	if compType == "" {
		compType = domain.CompareComprehensive
	}

	result := domain.JourneyComparison{
		SuccessfulSessionID: successful.ID,
		FailedSessionID:     failed.ID,
		Type:                compType,
		ComparedAt:          o.now(),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	runSub := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Warn("comparison sub-analysis failed",
						"analysis", name,
						"successful_session", successful.ID,
						"failed_session", failed.ID,
						"error", fmt.Sprintf("%v", r))
					mu.Lock()
					result.PartialFailures = append(result.PartialFailures, name)
					mu.Unlock()
				}
			}()
			fn()
		}()
	}

	wantTiming := compType == domain.CompareComprehensive || compType == domain.CompareTimingFocused
	wantContent := compType == domain.CompareComprehensive || compType == domain.CompareContentFocused
	wantEngagement := compType == domain.CompareComprehensive || compType == domain.CompareEngagementFocused

	if wantTiming {
		runSub("timing", func() {
			diffs := o.timing.Compare(successful, failed)
			mu.Lock()
			result.TimingDiffs = diffs
			mu.Unlock()
		})
	}
	if wantContent {
		runSub("content", func() {
			diffs := contentDiffs(successful, failed)
			mu.Lock()
			result.ContentDiffs = diffs
			mu.Unlock()
		})
	}
	if wantEngagement {
		runSub("engagement", func() {
			diffs := engagementDiffs(successful, failed)
			mu.Lock()
			result.EngagementDiffs = diffs
			mu.Unlock()
		})
	}
	wg.Wait()

	result.OverallSignificance = overallSignificance(result.TimingDiffs)
	result.Correlations = correlations(result.TimingDiffs, result.EngagementDiffs)
	result.ConfidenceScore = aggregateConfidence(result)
	return result
}

// CompareBatch compares each pair in order, in chunks, yielding the scheduler
// between chunks so long batches do not starve other work.
func (o *Orchestrator) CompareBatch(pairs []domain.JourneyPair, sessions map[string]domain.JourneySession, compType domain.ComparisonType) []domain.JourneyComparison {
	out := make([]domain.JourneyComparison, 0, len(pairs))

	for i, pair := range pairs {
		s, okS := sessions[pair.SuccessfulSessionID]
		f, okF := sessions[pair.FailedSessionID]
		if !okS || !okF {
			logger.Warn("batch comparison skipped pair with missing session",
				"successful_session", pair.SuccessfulSessionID,
				"failed_session", pair.FailedSessionID)
			continue
		}
		out = append(out, o.Compare(s, f, compType))

		if (i+1)%batchChunkSize == 0 {
			runtime.Gosched()
		}
	}
	return out
}

// contentDiffs records, per funnel page both sessions visited, which content
// variant each side saw. A diff is divergent only when both variants are
// known and differ; missing variants stay non-divergent rather than guessed.
func contentDiffs(successful, failed domain.JourneySession) []domain.ContentDiff {
	var diffs []domain.ContentDiff
	for _, page := range domain.FunnelPages {
		sv, sOK := firstVariant(successful, page)
		fv, fOK := firstVariant(failed, page)
		if !sOK && !fOK {
			continue
		}
		diffs = append(diffs, domain.ContentDiff{
			PageType:          page,
			SuccessfulVariant: sv,
			FailedVariant:     fv,
			Divergent:         sv != "" && fv != "" && sv != fv,
		})
	}
	return diffs
}

// engagementDiffs summarizes the per-page engagement gap for pages both
// sessions visited.
func engagementDiffs(successful, failed domain.JourneySession) []domain.EngagementDiff {
	var diffs []domain.EngagementDiff
	for _, page := range domain.FunnelPages {
		ss, sOK := pageEngagement(successful, page)
		fs, fOK := pageEngagement(failed, page)
		if !sOK || !fOK {
			continue
		}
		diffs = append(diffs, domain.EngagementDiff{
			PageType:        page,
			SuccessfulScore: ss,
			FailedScore:     fs,
			Delta:           ss - fs,
		})
	}
	return diffs
}

// correlations phrases each strong per-page difference as an improvement
// hypothesis with a bounded correlation strength derived from the effect
// size (d/(1+|d|), which maps any d into (-1,1)).
func correlations(timingDiffs []domain.TimingDiff, engagementDiffs []domain.EngagementDiff) []domain.HypothesisCorrelation {
	var out []domain.HypothesisCorrelation

	for _, d := range timingDiffs {
		strength := d.EffectSize / (1 + math.Abs(d.EffectSize))
		direction := "more"
		if d.TimeDifferential < 0 {
			direction = "less"
		}
		out = append(out, domain.HypothesisCorrelation{
			Hypothesis:  fmt.Sprintf("completing clients spend %s time on the %s page", direction, d.PageType),
			Correlation: strength,
		})
	}

	for _, e := range engagementDiffs {
		if math.Abs(e.Delta) < 0.2 {
			continue
		}
		out = append(out, domain.HypothesisCorrelation{
			Hypothesis:  fmt.Sprintf("engagement on the %s page predicts completion", e.PageType),
			Correlation: clamp(e.Delta, -1, 1),
		})
	}
	return out
}

// overallSignificance summarizes the timing diffs by their strongest result.
func overallSignificance(diffs []domain.TimingDiff) *domain.SignificanceResult {
	if len(diffs) == 0 {
		return nil
	}
	best := diffs[0].Significance
	for _, d := range diffs[1:] {
		if d.Significance.PValue < best.PValue {
			best = d.Significance
		}
	}
	return &best
}

// aggregateConfidence folds the sub-analyses into one 0-1 score using the
// fixed weights. Sub-analyses that did not run, failed, or produced nothing
// contribute zero, so partial comparisons carry visibly lower confidence.
func aggregateConfidence(c domain.JourneyComparison) float64 {
	var statistical float64
	if c.OverallSignificance != nil {
		statistical = clamp(1-c.OverallSignificance.PValue, 0, 1)
	}

	var content float64
	if len(c.ContentDiffs) > 0 {
		var known int
		for _, d := range c.ContentDiffs {
			if d.SuccessfulVariant != "" && d.FailedVariant != "" {
				known++
			}
		}
		content = float64(known) / float64(len(c.ContentDiffs))
	}

	var timingScore float64
	if len(c.TimingDiffs) > 0 {
		var sum float64
		for _, d := range c.TimingDiffs {
			sum += math.Abs(d.EffectSize)
		}
		timingScore = clamp(sum/float64(len(c.TimingDiffs)), 0, 1)
	}

	var engagement float64
	if len(c.EngagementDiffs) > 0 {
		var sum float64
		for _, d := range c.EngagementDiffs {
			sum += math.Abs(d.Delta)
		}
		engagement = clamp(sum/float64(len(c.EngagementDiffs)), 0, 1)
	}

	return confWeightStatistical*statistical +
		confWeightContent*content +
		confWeightTiming*timingScore +
		confWeightEngagement*engagement
}

func firstVariant(s domain.JourneySession, page domain.PageType) (string, bool) {
	for _, v := range s.Visits {
		if v.PageType == page {
			return v.ContentVariantID, true
		}
	}
	return "", false
}

func pageEngagement(s domain.JourneySession, page domain.PageType) (float64, bool) {
	var sum float64
	var n int
	for _, v := range s.Visits {
		if v.PageType == page && !v.IsOpen() {
			sum += v.EngagementScore
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
