// Package comparison pairs successful and failed journey sessions and
// orchestrates the content, timing, and engagement sub-analyses into a single
// scored comparison.
package comparison

import (
	"math"
	"sort"
	"time"

	"github.com/clientflow/journey-insights/internal/domain"
)

// Matching factor weights. They sum to 1.
const (
	weightTemporal   = 0.30
	weightContent    = 0.25
	weightClient     = 0.20
	weightEngagement = 0.15
	weightHypothesis = 0.10
)

// Viability modifiers applied to the raw match score.
const (
	durationMismatchPenalty   = 0.8 // total duration differs by more than an hour
	visitCountMismatchPenalty = 0.9 // visit counts differ by more than one
	sameExitPageBonus         = 1.1
)

const (
	defaultMaxTemporalDistance = 30 * 24 * time.Hour
	defaultViabilityThreshold  = 0.6

	// neutralSimilarity is the fallback when a factor cannot be computed
	// (missing variants, missing client IDs, no hypothesis configured).
	neutralSimilarity = 0.5
)

// Criteria constrains pair selection.
type Criteria struct {
	MaxTemporalDistance time.Duration
	ViabilityThreshold  float64
	ClientID            string // restrict both sides to one client when set

	// Hypothesis, when set, names the page an improvement hypothesis
	// targets; pairs whose failed session exited there align with it.
	HypothesisPage domain.PageType
}

func (c Criteria) withDefaults() Criteria {
	if c.MaxTemporalDistance <= 0 {
		c.MaxTemporalDistance = defaultMaxTemporalDistance
	}
	if c.ViabilityThreshold <= 0 {
		c.ViabilityThreshold = defaultViabilityThreshold
	}
	return c
}

// MatchScore is the weighted sum of the five matching factors for a
// successful/failed candidate pair, before viability modifiers.
func MatchScore(successful, failed domain.JourneySession, criteria Criteria) float64 {
	criteria = criteria.withDefaults()

	return weightTemporal*temporalProximity(successful, failed, criteria.MaxTemporalDistance) +
		weightContent*contentSimilarity(successful, failed) +
		weightClient*clientSimilarity(successful, failed) +
		weightEngagement*engagementSimilarity(successful, failed) +
		weightHypothesis*hypothesisAlignment(failed, criteria.HypothesisPage)
}

// Viability adjusts the match score by the mismatch penalties and the
// same-exit-page bonus, clamped to [0,1].
func Viability(successful, failed domain.JourneySession, criteria Criteria) float64 {
	score := MatchScore(successful, failed, criteria)

	if durationGap(successful, failed) > time.Hour {
		score *= durationMismatchPenalty
	}
	if abs(len(successful.Visits)-len(failed.Visits)) > 1 {
		score *= visitCountMismatchPenalty
	}
	if sameExitPage(successful, failed) {
		score *= sameExitPageBonus
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// FindOptimalPairs scores every successful/failed cross pair against the
// criteria, keeps those whose viability meets the threshold, and returns the
// top pairs by viability descending.
func FindOptimalPairs(successful, failed []domain.JourneySession, criteria Criteria, limit int) []domain.JourneyPair {
	criteria = criteria.withDefaults()

	var pairs []domain.JourneyPair
	for _, s := range successful {
		if criteria.ClientID != "" && s.ClientID != criteria.ClientID {
			continue
		}
		for _, f := range failed {
			if criteria.ClientID != "" && f.ClientID != criteria.ClientID {
				continue
			}
			v := Viability(s, f, criteria)
			if v < criteria.ViabilityThreshold {
				continue
			}
			pairs = append(pairs, domain.JourneyPair{
				SuccessfulSessionID: s.ID,
				FailedSessionID:     f.ID,
				MatchScore:          MatchScore(s, f, criteria),
				Viability:           v,
			})
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Viability > pairs[j].Viability
	})
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}

// temporalProximity decays linearly from 1 (simultaneous starts) to 0 at the
// maximum distance.
func temporalProximity(a, b domain.JourneySession, maxDistance time.Duration) float64 {
	gap := a.StartedAt.Sub(b.StartedAt)
	if gap < 0 {
		gap = -gap
	}
	if gap >= maxDistance {
		return 0
	}
	return 1 - float64(gap)/float64(maxDistance)
}

// contentSimilarity is the Jaccard overlap of the content-variant sets seen
// by the two sessions. With no variants on either side the factor is neutral.
func contentSimilarity(a, b domain.JourneySession) float64 {
	setA, setB := variantSet(a), variantSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return neutralSimilarity
	}

	var intersection, union int
	for v := range setA {
		union++
		if setB[v] {
			intersection++
		}
	}
	for v := range setB {
		if !setA[v] {
			union++
		}
	}
	if union == 0 {
		return neutralSimilarity
	}
	return float64(intersection) / float64(union)
}

func clientSimilarity(a, b domain.JourneySession) float64 {
	if a.ClientID == "" || b.ClientID == "" {
		return neutralSimilarity
	}
	if a.ClientID == b.ClientID {
		return 1
	}
	return 0
}

// engagementSimilarity compares average engagement; sessions with similar
// engagement make a fairer comparison than a diligent-vs-disengaged pair.
func engagementSimilarity(a, b domain.JourneySession) float64 {
	ea, eb := a.AverageEngagement(), b.AverageEngagement()
	if ea == 0 && eb == 0 {
		return neutralSimilarity
	}
	sim := 1 - math.Abs(ea-eb)
	if sim < 0 {
		sim = 0
	}
	return sim
}

func hypothesisAlignment(failed domain.JourneySession, page domain.PageType) float64 {
	if page == "" {
		return neutralSimilarity
	}
	if failed.ExitPage != nil && *failed.ExitPage == page {
		return 1
	}
	return 0.25
}

func durationGap(a, b domain.JourneySession) time.Duration {
	gap := time.Duration((a.TotalDuration - b.TotalDuration) * float64(time.Second))
	if gap < 0 {
		gap = -gap
	}
	return gap
}

func sameExitPage(a, b domain.JourneySession) bool {
	aLast, bLast := a.LastVisit(), b.LastVisit()
	return aLast != nil && bLast != nil && aLast.PageType == bLast.PageType
}

func variantSet(s domain.JourneySession) map[string]bool {
	set := make(map[string]bool)
	for _, v := range s.Visits {
		if v.ContentVariantID != "" {
			set[v.ContentVariantID] = true
		}
	}
	return set
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
