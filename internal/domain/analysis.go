package domain

import "time"

// PatternKey identifies a drop-off cluster: all sessions that exited the
// funnel on the same page for the same reason.
type PatternKey struct {
	PageType    PageType    `json:"page_type"`
	ExitTrigger ExitTrigger `json:"exit_trigger"`
}

// DropOffPattern is a cluster of dropped sessions sharing an exit page and
// exit trigger, with aggregate timing and a confidence score.
type DropOffPattern struct {
	Key               PatternKey `json:"key"`
	Frequency         int        `json:"frequency"`
	AvgTimeBeforeExit float64    `json:"avg_time_before_exit"` // seconds
	ConfidenceScore   float64    `json:"confidence_score"`     // 0.0-1.0
	ContentVariantIDs []string   `json:"content_variant_ids,omitempty"`
	Recommendations   []string   `json:"recommendations,omitempty"`
	Active            bool       `json:"active"`
}

// PageConversion holds per-page funnel conversion metrics.
type PageConversion struct {
	PageType       PageType `json:"page_type"`
	Visits         int      `json:"visits"`
	Completions    int      `json:"completions"`
	ConversionRate float64  `json:"conversion_rate"`
	BounceRate     float64  `json:"bounce_rate"`
}

// ConfidenceInterval is a two-sided interval estimate.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Level float64 `json:"level"` // e.g. 0.95
}

// TestType names the significance test that produced a result.
type TestType string

const (
	TestWelchT       TestType = "welch_t"
	TestMannWhitneyU TestType = "mann_whitney_u"
	TestProportionZ  TestType = "proportion_z"
)

// SignificanceResult holds the outcome of a two-sample hypothesis test.
type SignificanceResult struct {
	TestType         TestType `json:"test_type"`
	Statistic        float64  `json:"statistic"`
	PValue           float64  `json:"p_value"`
	DegreesOfFreedom float64  `json:"degrees_of_freedom,omitempty"`
	Significant      bool     `json:"significant"`
}

// DropOffAnalysis is the full output of a drop-off detection run over a
// session population.
type DropOffAnalysis struct {
	Patterns            []DropOffPattern             `json:"patterns"`
	PageConversions     map[PageType]PageConversion  `json:"page_conversions"`
	TriggerBreakdown    map[ExitTrigger]int          `json:"trigger_breakdown"`
	TimingDistributions map[PageType][]float64       `json:"timing_distributions"`
	OverallSignificance *SignificanceResult          `json:"overall_significance,omitempty"`
	CompletionInterval  *ConfidenceInterval          `json:"completion_interval,omitempty"`
	Recommendations     []Recommendation             `json:"recommendations"`
	TotalSessions       int                          `json:"total_sessions"`
	DroppedSessions     int                          `json:"dropped_sessions"`
	AnalyzedAt          time.Time                    `json:"analyzed_at"`
}

// TimingAnalysis describes one session's behavior on a single page.
type TimingAnalysis struct {
	PageType       PageType `json:"page_type"`
	TimeOnPage     float64  `json:"time_on_page"`
	P25            float64  `json:"p25"`
	P50            float64  `json:"p50"`
	P75            float64  `json:"p75"`
	SequenceIndex  int      `json:"sequence_index"`
	TransitionTime float64  `json:"transition_time"` // seconds to next page entry, 0 for last
	DropOffRisk    float64  `json:"drop_off_risk"`   // 0.0-1.0 heuristic
}

// TimingDiff is the statistical comparison of one page's timing and
// engagement between a matched successful/failed session pair.
// Effect size and significance are always computed together; a TimingDiff
// carrying only one of them is invalid.
type TimingDiff struct {
	PageType             PageType            `json:"page_type"`
	Successful           TimingAnalysis      `json:"successful"`
	Failed               TimingAnalysis      `json:"failed"`
	TimeDifferential     float64             `json:"time_differential"` // successful - failed, seconds
	EngagementDiff       float64             `json:"engagement_diff"`
	InteractionDiff      int                 `json:"interaction_diff"`
	ScrollDepthDiff      float64             `json:"scroll_depth_diff"`
	Significance         SignificanceResult  `json:"significance"`
	Interval             ConfidenceInterval  `json:"interval"`
	EffectSize           float64             `json:"effect_size"` // Cohen's d
}

// ComparisonType selects which sub-analyses a journey comparison runs.
type ComparisonType string

const (
	CompareComprehensive     ComparisonType = "comprehensive"
	CompareContentFocused    ComparisonType = "content_focused"
	CompareTimingFocused     ComparisonType = "timing_focused"
	CompareEngagementFocused ComparisonType = "engagement_focused"
)

// ContentDiff notes a content-variant divergence on one page between the
// compared sessions.
type ContentDiff struct {
	PageType          PageType `json:"page_type"`
	SuccessfulVariant string   `json:"successful_variant"`
	FailedVariant     string   `json:"failed_variant"`
	Divergent         bool     `json:"divergent"`
}

// EngagementDiff summarizes the engagement gap on one page.
type EngagementDiff struct {
	PageType        PageType `json:"page_type"`
	SuccessfulScore float64  `json:"successful_score"`
	FailedScore     float64  `json:"failed_score"`
	Delta           float64  `json:"delta"`
}

// HypothesisCorrelation records how strongly the observed differences align
// with a named improvement hypothesis.
type HypothesisCorrelation struct {
	Hypothesis  string  `json:"hypothesis"`
	Correlation float64 `json:"correlation"` // -1..1
}

// JourneyComparison is the aggregate result of comparing one
// successful/failed session pair.
type JourneyComparison struct {
	SuccessfulSessionID string                  `json:"successful_session_id"`
	FailedSessionID     string                  `json:"failed_session_id"`
	Type                ComparisonType          `json:"type"`
	TimingDiffs         []TimingDiff            `json:"timing_diffs"`
	ContentDiffs        []ContentDiff           `json:"content_diffs"`
	EngagementDiffs     []EngagementDiff        `json:"engagement_diffs"`
	Correlations        []HypothesisCorrelation `json:"correlations"`
	OverallSignificance *SignificanceResult     `json:"overall_significance,omitempty"`
	ConfidenceScore     float64                 `json:"confidence_score"` // 0.0-1.0
	PartialFailures     []string                `json:"partial_failures,omitempty"`
	ComparedAt          time.Time               `json:"compared_at"`
}

// JourneyPair is a candidate successful/failed pair with its viability score.
type JourneyPair struct {
	SuccessfulSessionID string  `json:"successful_session_id"`
	FailedSessionID     string  `json:"failed_session_id"`
	MatchScore          float64 `json:"match_score"`
	Viability           float64 `json:"viability"`
}
