package domain

import "time"

// PageType enumerates the fixed onboarding funnel steps, in traversal order.
type PageType string

const (
	PageActivation   PageType = "activation"
	PageAgreement    PageType = "agreement"
	PageConfirmation PageType = "confirmation"
	PageProcessing   PageType = "processing"
)

// FunnelPages is the canonical funnel order. A session that visits all of
// them is considered a completed journey.
var FunnelPages = []PageType{PageActivation, PageAgreement, PageConfirmation, PageProcessing}

// IsValidPageType reports whether p is one of the four funnel steps.
func IsValidPageType(p PageType) bool {
	switch p {
	case PageActivation, PageAgreement, PageConfirmation, PageProcessing:
		return true
	}
	return false
}

// SessionOutcome enumerates the final states of a journey session.
type SessionOutcome string

const (
	OutcomeInProgress SessionOutcome = "in_progress"
	OutcomeCompleted  SessionOutcome = "completed"
	OutcomeDroppedOff SessionOutcome = "dropped_off"
)

// ExitTrigger classifies why a session ended before completion.
type ExitTrigger string

const (
	TriggerContentBased ExitTrigger = "content_based"
	TriggerTimeBased    ExitTrigger = "time_based"
	TriggerTechnical    ExitTrigger = "technical"
	TriggerUnknown      ExitTrigger = "unknown"
)

// ExitAction enumerates how a client left an individual page.
type ExitAction string

const (
	ExitNextPage ExitAction = "next_page"
	ExitBack     ExitAction = "back"
	ExitClose    ExitAction = "close"
	ExitTimeout  ExitAction = "timeout"
	ExitError    ExitAction = "error"
)

// PageVisit is one step within a journey session.
type PageVisit struct {
	ID               string     `json:"id" db:"id"`
	SessionID        string     `json:"session_id" db:"session_id"`
	PageType         PageType   `json:"page_type" db:"page_type"`
	ContentVariantID string     `json:"content_variant_id,omitempty" db:"content_variant_id"`
	EnteredAt        time.Time  `json:"entered_at" db:"entered_at"`
	ExitedAt         *time.Time `json:"exited_at" db:"exited_at"`
	TimeOnPage       float64    `json:"time_on_page" db:"time_on_page"` // seconds, derived
	ExitAction       ExitAction `json:"exit_action,omitempty" db:"exit_action"`
	ScrollDepth      float64    `json:"scroll_depth" db:"scroll_depth"` // 0-100
	InteractionCount int        `json:"interaction_count" db:"interaction_count"`
	EngagementScore  float64    `json:"engagement_score" db:"engagement_score"` // 0.0-1.0
}

// IsOpen reports whether the visit has not yet been closed.
func (v *PageVisit) IsOpen() bool { return v.ExitedAt == nil }

// JourneySession is one client's traversal of the onboarding funnel.
// Visits are kept in insertion order, which is visit order.
type JourneySession struct {
	ID            string         `json:"id" db:"id"`
	ClientID      string         `json:"client_id" db:"client_id"`
	StartedAt     time.Time      `json:"started_at" db:"started_at"`
	EndedAt       *time.Time     `json:"ended_at" db:"ended_at"`
	TotalDuration float64        `json:"total_duration" db:"total_duration"` // seconds
	Visits        []PageVisit    `json:"visits"`
	FinalOutcome  SessionOutcome `json:"final_outcome" db:"final_outcome"`
	ExitPage      *PageType      `json:"exit_page,omitempty" db:"exit_page"`
	ExitTrigger   *ExitTrigger   `json:"exit_trigger,omitempty" db:"exit_trigger"`

	// IdleDeadline is the instant after which the session is eligible for
	// forced closure by the idle sweep. Zero for closed sessions.
	IdleDeadline time.Time `json:"-" db:"idle_deadline"`
}

// IsClosed reports whether the session has reached a final outcome.
func (s *JourneySession) IsClosed() bool { return s.FinalOutcome != OutcomeInProgress }

// CurrentVisit returns the single open visit, or nil if all visits are closed.
func (s *JourneySession) CurrentVisit() *PageVisit {
	for i := range s.Visits {
		if s.Visits[i].IsOpen() {
			return &s.Visits[i]
		}
	}
	return nil
}

// LastVisit returns the most recent visit, or nil for an empty session.
func (s *JourneySession) LastVisit() *PageVisit {
	if len(s.Visits) == 0 {
		return nil
	}
	return &s.Visits[len(s.Visits)-1]
}

// VisitedPages returns the set of distinct page types seen by the session.
func (s *JourneySession) VisitedPages() map[PageType]bool {
	seen := make(map[PageType]bool, len(s.Visits))
	for i := range s.Visits {
		seen[s.Visits[i].PageType] = true
	}
	return seen
}

// VisitedFullFunnel reports whether the session reached every funnel step.
func (s *JourneySession) VisitedFullFunnel() bool {
	seen := s.VisitedPages()
	for _, p := range FunnelPages {
		if !seen[p] {
			return false
		}
	}
	return true
}

// AverageEngagement returns the mean engagement score across closed visits,
// or 0 for a session with no closed visits.
func (s *JourneySession) AverageEngagement() float64 {
	var sum float64
	var n int
	for i := range s.Visits {
		if s.Visits[i].IsOpen() {
			continue
		}
		sum += s.Visits[i].EngagementScore
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
