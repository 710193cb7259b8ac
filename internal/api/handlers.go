package api

import (
	"time"

	"github.com/clientflow/journey-insights/internal/comparison"
	"github.com/clientflow/journey-insights/internal/config"
	"github.com/clientflow/journey-insights/internal/dropoff"
	"github.com/clientflow/journey-insights/internal/realtime"
	"github.com/clientflow/journey-insights/internal/service/journey"
	"github.com/clientflow/journey-insights/internal/session"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	tracker      *session.Tracker
	journeys     *journey.Service
	detector     *dropoff.Detector
	orchestrator *comparison.Orchestrator
	hub          *realtime.Hub
	analytics    config.AnalyticsConfig
	health       *HealthChecker
	startedAt    time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(tracker *session.Tracker, journeys *journey.Service, detector *dropoff.Detector, orchestrator *comparison.Orchestrator, hub *realtime.Hub) *Handlers {
	return &Handlers{
		tracker:      tracker,
		journeys:     journeys,
		detector:     detector,
		orchestrator: orchestrator,
		hub:          hub,
		health:       NewHealthChecker(nil, nil),
		startedAt:    time.Now(),
	}
}

// SetAnalyticsConfig sets the analysis thresholds used by the analytics
// endpoints (lookback window, pair viability floor).
func (h *Handlers) SetAnalyticsConfig(cfg config.AnalyticsConfig) {
	h.analytics = cfg
}

// SetHealthChecker sets the dependency health checker
func (h *Handlers) SetHealthChecker(hc *HealthChecker) {
	h.health = hc
}

// analysisWindow returns the configured lookback for population queries,
// defaulting to seven days when no analytics config was wired in.
func (h *Handlers) analysisWindow() time.Duration {
	if h.analytics.AnalysisWindowDays > 0 {
		return h.analytics.AnalysisWindow()
	}
	return 7 * 24 * time.Hour
}
