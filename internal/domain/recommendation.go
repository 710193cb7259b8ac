package domain

// RecommendationPriority orders recommendations for the dashboard.
type RecommendationPriority string

const (
	PriorityHigh   RecommendationPriority = "high"
	PriorityMedium RecommendationPriority = "medium"
	PriorityLow    RecommendationPriority = "low"
)

// Rank returns a sortable weight for the priority (higher is more urgent).
func (p RecommendationPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// RecommendationType classifies what kind of change is being suggested.
type RecommendationType string

const (
	RecContent   RecommendationType = "content"
	RecTiming    RecommendationType = "timing"
	RecTechnical RecommendationType = "technical"
	RecUX        RecommendationType = "ux"
)

// ImplementationEffort is a coarse sizing of a recommendation.
type ImplementationEffort string

const (
	EffortLow    ImplementationEffort = "low"
	EffortMedium ImplementationEffort = "medium"
	EffortHigh   ImplementationEffort = "high"
)

// Recommendation is one prioritized, effort-scored action item produced by
// the recommendation engine.
type Recommendation struct {
	ID                  string                 `json:"id"`
	RuleID              string                 `json:"rule_id"`
	Title               string                 `json:"title"`
	Description         string                 `json:"description"`
	Priority            RecommendationPriority `json:"priority"`
	Type                RecommendationType     `json:"type"`
	TargetPage          PageType               `json:"target_page"`
	ExpectedImprovement float64                `json:"expected_improvement"` // percentage points, 1-50
	Effort              ImplementationEffort   `json:"effort"`
	BasedOnPattern      *PatternKey            `json:"based_on_pattern,omitempty"`
}

// Valid reports whether the recommendation meets the publishing bar:
// non-empty title and description, improvement within [1,50], and a real
// funnel page as target.
func (r *Recommendation) Valid() bool {
	if r.Title == "" || r.Description == "" {
		return false
	}
	if r.ExpectedImprovement < 1 || r.ExpectedImprovement > 50 {
		return false
	}
	return IsValidPageType(r.TargetPage)
}
