// Package dropoff detects recurring abandonment patterns in a population of
// closed journey sessions: it clusters dropped sessions by exit page and
// trigger, scores each cluster's confidence, computes per-page conversion
// rates, and turns the findings into recommendations.
package dropoff

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clientflow/journey-insights/internal/domain"
	"github.com/clientflow/journey-insights/internal/recommend"
	"github.com/clientflow/journey-insights/internal/stats"
)

const (
	defaultMinSampleSize       = 5
	defaultConfidenceThreshold = 0.7
	defaultConfidenceLevel     = 0.95

	// lowConversionCutoff marks pages that get a dedicated recommendation
	// regardless of pattern clusters.
	lowConversionCutoff = 0.3
)

// Config tunes the detector. Zero values fall back to defaults.
type Config struct {
	MinSampleSize       int
	ConfidenceThreshold float64
	ConfidenceLevel     float64
}

// Detector runs drop-off analysis over closed session populations. The
// analysis is a pure function of its input: re-running it over an unchanged
// population yields identical patterns and scores.
type Detector struct {
	cfg        Config
	recommends *recommend.Engine
	now        func() time.Time
}

// NewDetector creates a detector with the given config.
func NewDetector(cfg Config, rec *recommend.Engine) *Detector {
	if cfg.MinSampleSize <= 0 {
		cfg.MinSampleSize = defaultMinSampleSize
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = defaultConfidenceThreshold
	}
	if cfg.ConfidenceLevel <= 0 {
		cfg.ConfidenceLevel = defaultConfidenceLevel
	}
	if rec == nil {
		rec = recommend.NewEngine()
	}
	return &Detector{cfg: cfg, recommends: rec, now: time.Now}
}

// Analyze runs the full drop-off analysis. Insufficient data is not an
// error: populations below the minimum sample size produce a well-formed
// empty analysis, since "not enough data yet" is an expected steady state.
func (d *Detector) Analyze(sessions []domain.JourneySession) domain.DropOffAnalysis {
	analysis := domain.DropOffAnalysis{
		PageConversions:     make(map[domain.PageType]domain.PageConversion),
		TriggerBreakdown:    make(map[domain.ExitTrigger]int),
		TimingDistributions: make(map[domain.PageType][]float64),
		TotalSessions:       len(sessions),
		AnalyzedAt:          d.now(),
	}

	var dropped, completed []domain.JourneySession
	for _, s := range sessions {
		switch s.FinalOutcome {
		case domain.OutcomeDroppedOff:
			dropped = append(dropped, s)
		case domain.OutcomeCompleted:
			completed = append(completed, s)
		}
	}
	analysis.DroppedSessions = len(dropped)

	if len(dropped) < d.cfg.MinSampleSize {
		return analysis
	}

	for _, s := range dropped {
		if s.ExitTrigger != nil {
			analysis.TriggerBreakdown[*s.ExitTrigger]++
		} else {
			analysis.TriggerBreakdown[domain.TriggerUnknown]++
		}
		if last := s.LastVisit(); last != nil {
			analysis.TimingDistributions[last.PageType] = append(analysis.TimingDistributions[last.PageType], last.TimeOnPage)
		}
	}

	analysis.Patterns = d.clusterPatterns(dropped)
	analysis.PageConversions = pageConversions(sessions)

	// Overall completion summary: Wilson interval around the completion
	// rate with the full population as the trial count.
	if iv, err := stats.WilsonInterval(len(completed), len(sessions), d.cfg.ConfidenceLevel); err == nil {
		analysis.CompletionInterval = &domain.ConfidenceInterval{Lower: iv.Lower, Upper: iv.Upper, Level: iv.Level}
	}
	analysis.OverallSignificance = completionSignificance(len(completed), len(dropped))

	analysis.Recommendations = d.recommends.Generate(recommend.Context{
		Patterns:        topPatterns(analysis.Patterns, 5),
		PageConversions: analysis.PageConversions,
		TotalSessions:   len(sessions),
		ConfidenceFloor: d.cfg.ConfidenceThreshold,
	})
	analysis.Recommendations = appendLowConversionRecs(analysis.Recommendations, analysis.PageConversions)

	return analysis
}

// appendLowConversionRecs adds one recommendation per page converting below
// the cutoff, for pages no rule already targeted, keeping the overall
// priority/improvement ordering.
func appendLowConversionRecs(recs []domain.Recommendation, conversions map[domain.PageType]domain.PageConversion) []domain.Recommendation {
	covered := make(map[domain.PageType]bool, len(recs))
	for _, r := range recs {
		covered[r.TargetPage] = true
	}

	for _, page := range domain.FunnelPages {
		pc, ok := conversions[page]
		if !ok || pc.Visits == 0 || pc.ConversionRate >= lowConversionCutoff || covered[page] {
			continue
		}
		recs = append(recs, domain.Recommendation{
			ID:                  uuid.New().String(),
			RuleID:              "page_conversion_floor",
			Title:               fmt.Sprintf("Urgent: %s page converts at %.0f%%", page, pc.ConversionRate*100),
			Description:         fmt.Sprintf("Fewer than a third of clients who reach the %s page continue past it (%d of %d). Treat this step as the funnel's primary bottleneck.", page, pc.Completions, pc.Visits),
			Priority:            domain.PriorityHigh,
			Type:                domain.RecUX,
			TargetPage:          page,
			ExpectedImprovement: 10,
			Effort:              domain.EffortMedium,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Priority.Rank() != recs[j].Priority.Rank() {
			return recs[i].Priority.Rank() > recs[j].Priority.Rank()
		}
		return recs[i].ExpectedImprovement > recs[j].ExpectedImprovement
	})
	return recs
}

// clusterPatterns groups dropped sessions by (exit page, exit trigger),
// discards clusters below the minimum sample size or confidence threshold,
// and ranks the survivors by frequency descending.
func (d *Detector) clusterPatterns(dropped []domain.JourneySession) []domain.DropOffPattern {
	clusters := make(map[domain.PatternKey][]domain.JourneySession)
	for _, s := range dropped {
		last := s.LastVisit()
		if last == nil {
			continue
		}
		trigger := domain.TriggerUnknown
		if s.ExitTrigger != nil {
			trigger = *s.ExitTrigger
		}
		key := domain.PatternKey{PageType: last.PageType, ExitTrigger: trigger}
		clusters[key] = append(clusters[key], s)
	}

	var patterns []domain.DropOffPattern
	for key, members := range clusters {
		if len(members) < d.cfg.MinSampleSize {
			continue
		}

		times := make([]float64, 0, len(members))
		variantSet := make(map[string]bool)
		for _, s := range members {
			last := s.LastVisit()
			times = append(times, last.TimeOnPage)
			if last.ContentVariantID != "" {
				variantSet[last.ContentVariantID] = true
			}
		}

		p := domain.DropOffPattern{
			Key:               key,
			Frequency:         len(members),
			AvgTimeBeforeExit: stats.Mean(times),
			ConfidenceScore:   confidenceScore(len(members), stats.StdDev(times)),
			ContentVariantIDs: sortedKeys(variantSet),
			Active:            true,
		}
		if p.ConfidenceScore < d.cfg.ConfidenceThreshold {
			continue
		}
		p.Recommendations = recommend.ForPattern(p)
		patterns = append(patterns, p)
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Frequency != patterns[j].Frequency {
			return patterns[i].Frequency > patterns[j].Frequency
		}
		// Deterministic tie-break so repeated runs are identical.
		if patterns[i].Key.PageType != patterns[j].Key.PageType {
			return patterns[i].Key.PageType < patterns[j].Key.PageType
		}
		return patterns[i].Key.ExitTrigger < patterns[j].Key.ExitTrigger
	})
	return patterns
}

// confidenceScore combines how often a pattern occurs with how consistent
// its exit timing is: 0.6*min(1, freq/10) + 0.4*max(0, 1 - stdev/300).
// The frequency score saturates at 10 sessions so that a small but highly
// consistent cluster can still clear the confidence threshold.
func confidenceScore(frequency int, timeStdDev float64) float64 {
	freqScore := float64(frequency) / 10
	if freqScore > 1 {
		freqScore = 1
	}
	consistency := 1 - timeStdDev/300
	if consistency < 0 {
		consistency = 0
	}
	return 0.6*freqScore + 0.4*consistency
}

// pageConversions computes, per funnel page, how many sessions visited it,
// how many continued past it, and how many bounced (close/back/timeout).
func pageConversions(sessions []domain.JourneySession) map[domain.PageType]domain.PageConversion {
	out := make(map[domain.PageType]domain.PageConversion, len(domain.FunnelPages))
	for _, page := range domain.FunnelPages {
		var visits, completions, bounces int
		for _, s := range sessions {
			var sawPage, passedPage, bounced bool
			for _, v := range s.Visits {
				if v.PageType != page {
					continue
				}
				sawPage = true
				switch v.ExitAction {
				case domain.ExitNextPage:
					passedPage = true
				case domain.ExitClose, domain.ExitBack, domain.ExitTimeout:
					bounced = true
				}
			}
			if !sawPage {
				continue
			}
			visits++
			if passedPage {
				completions++
			}
			if bounced {
				bounces++
			}
		}

		pc := domain.PageConversion{PageType: page, Visits: visits, Completions: completions}
		if visits > 0 {
			pc.ConversionRate = float64(completions) / float64(visits)
			pc.BounceRate = float64(bounces) / float64(visits)
		}
		out[page] = pc
	}
	return out
}

// completionSignificance runs a two-proportion z-test of the completion rate
// against an even split, mirroring how the dashboard frames "is this funnel
// meaningfully losing people".
func completionSignificance(completed, dropped int) *domain.SignificanceResult {
	total := completed + dropped
	if total == 0 {
		return nil
	}
	p := float64(completed) / float64(total)
	// Under H0 (even split): z = (p - 0.5) / sqrt(0.25/n).
	z := (p - 0.5) / (0.5 / math.Sqrt(float64(total)))
	pv := 2 * stats.NormalCDF(-math.Abs(z))
	if pv > 1 {
		pv = 1
	}
	return &domain.SignificanceResult{
		TestType:    domain.TestProportionZ,
		Statistic:   z,
		PValue:      pv,
		Significant: pv < 0.05,
	}
}

func topPatterns(patterns []domain.DropOffPattern, n int) []domain.DropOffPattern {
	if len(patterns) <= n {
		return patterns
	}
	return patterns[:n]
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
