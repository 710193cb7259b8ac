package session

import "github.com/clientflow/journey-insights/internal/domain"

// engagementWeights holds the per-page weighting of the three engagement
// sub-scores. Later, more transactional pages weight active interaction far
// above passive dwell time.
type engagementWeights struct {
	Time        float64
	Scroll      float64
	Interaction float64
}

var weightsByPage = map[domain.PageType]engagementWeights{
	domain.PageActivation:   {Time: 0.4, Scroll: 0.3, Interaction: 0.3},
	domain.PageAgreement:    {Time: 0.5, Scroll: 0.3, Interaction: 0.2},
	domain.PageConfirmation: {Time: 0.3, Scroll: 0.2, Interaction: 0.5},
	domain.PageProcessing:   {Time: 0.2, Scroll: 0.1, Interaction: 0.7},
}

// timeBand holds the effective dwell-time band for a page, in seconds.
// Below Min the visitor likely skimmed; past Max the dwell is
// abandonment-adjacent rather than engaged reading.
type timeBand struct {
	Min     float64
	Optimal float64
	Max     float64
}

var timeBandsByPage = map[domain.PageType]timeBand{
	domain.PageActivation:   {Min: 10, Optimal: 60, Max: 300},
	domain.PageAgreement:    {Min: 30, Optimal: 180, Max: 600},
	domain.PageConfirmation: {Min: 10, Optimal: 45, Max: 240},
	domain.PageProcessing:   {Min: 5, Optimal: 30, Max: 180},
}

// expectedInteractions is the interaction count at which the interaction
// sub-score saturates at 1.0.
var expectedInteractions = map[domain.PageType]int{
	domain.PageActivation:   4,
	domain.PageAgreement:    3,
	domain.PageConfirmation: 6,
	domain.PageProcessing:   8,
}

// timeSubScore is piecewise over the page's dwell-time band:
// 0 -> Min scales linearly up to 0.3, Min -> Optimal scales 0.3 -> 1.0,
// Optimal -> Max decays slowly back to 0.7, beyond Max it is fixed at 0.5.
func timeSubScore(page domain.PageType, seconds float64) float64 {
	band := timeBandsByPage[page]
	switch {
	case seconds <= 0:
		return 0
	case seconds < band.Min:
		return 0.3 * seconds / band.Min
	case seconds <= band.Optimal:
		return 0.3 + 0.7*(seconds-band.Min)/(band.Optimal-band.Min)
	case seconds <= band.Max:
		return 1.0 - 0.3*(seconds-band.Optimal)/(band.Max-band.Optimal)
	default:
		return 0.5
	}
}

func scrollSubScore(depth float64) float64 {
	if depth < 0 {
		return 0
	}
	if depth > 100 {
		return 1
	}
	return depth / 100
}

func interactionSubScore(page domain.PageType, count int) float64 {
	expected := expectedInteractions[page]
	if expected <= 0 || count <= 0 {
		return 0
	}
	s := float64(count) / float64(expected)
	if s > 1 {
		return 1
	}
	return s
}

// ScoreEngagement computes the 0-1 engagement score for a closed visit using
// the page-specific weighted combination of time, scroll, and interaction
// sub-scores.
func ScoreEngagement(page domain.PageType, timeOnPage, scrollDepth float64, interactions int) float64 {
	w, ok := weightsByPage[page]
	if !ok {
		w = engagementWeights{Time: 0.4, Scroll: 0.3, Interaction: 0.3}
	}
	score := w.Time*timeSubScore(page, timeOnPage) +
		w.Scroll*scrollSubScore(scrollDepth) +
		w.Interaction*interactionSubScore(page, interactions)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
