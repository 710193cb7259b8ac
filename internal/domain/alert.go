package domain

import "time"

// AlertMetric enumerates the rolling metrics an alert threshold can watch.
type AlertMetric string

const (
	MetricDropOffRate    AlertMetric = "drop_off_rate"
	MetricConversionRate AlertMetric = "conversion_rate"
	MetricErrorRate      AlertMetric = "error_rate"
)

// AlertSeverity orders alerts for the dashboard.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityHigh     AlertSeverity = "high"
	SeverityMedium   AlertSeverity = "medium"
	SeverityInfo     AlertSeverity = "info"
)

// AlertThreshold is a configured alerting rule. PageType is empty for
// funnel-wide metrics such as overall conversion.
type AlertThreshold struct {
	ID        string        `json:"id"`
	Metric    AlertMetric   `json:"metric"`
	PageType  PageType      `json:"page_type,omitempty"`
	Threshold float64       `json:"threshold"` // rate in [0,1]
	Window    time.Duration `json:"window"`
	Severity  AlertSeverity `json:"severity"`
	Active    bool          `json:"active"`
}

// Alert is a runtime violation of a threshold.
type Alert struct {
	ID           string        `json:"id"`
	ThresholdID  string        `json:"threshold_id"`
	Metric       AlertMetric   `json:"metric"`
	PageType     PageType      `json:"page_type,omitempty"`
	Severity     AlertSeverity `json:"severity"`
	Message      string        `json:"message"`
	CurrentValue float64       `json:"current_value"`
	RaisedAt     time.Time     `json:"raised_at"`
	Acknowledged bool          `json:"acknowledged"`
}

// JourneyEventType enumerates the raw events the realtime buffer ingests.
type JourneyEventType string

const (
	EventSessionStart JourneyEventType = "session_start"
	EventSessionEnd   JourneyEventType = "session_end"
	EventPageEnter    JourneyEventType = "page_enter"
	EventPageExit     JourneyEventType = "page_exit"
	EventEngagement   JourneyEventType = "engagement"
	EventAnalytics    JourneyEventType = "analytics"
)

// Category groups event types for batched flush processing.
func (t JourneyEventType) Category() string {
	switch t {
	case EventSessionStart, EventSessionEnd:
		return "session"
	case EventPageEnter, EventPageExit:
		return "page"
	case EventEngagement:
		return "engagement"
	default:
		return "analytics"
	}
}

// JourneyEvent is one raw domain event flowing through the realtime buffer.
type JourneyEvent struct {
	ID               string           `json:"id"`
	Type             JourneyEventType `json:"type"`
	SessionID        string           `json:"session_id"`
	ClientID         string           `json:"client_id,omitempty"`
	PageType         PageType         `json:"page_type,omitempty"`
	ExitAction       ExitAction       `json:"exit_action,omitempty"`
	ContentVariantID string           `json:"content_variant_id,omitempty"`
	ScrollDepth      float64          `json:"scroll_depth,omitempty"`
	InteractionCount int              `json:"interaction_count,omitempty"`
	OccurredAt       time.Time        `json:"occurred_at"`
}
