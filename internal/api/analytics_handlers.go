package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/clientflow/journey-insights/internal/comparison"
	"github.com/clientflow/journey-insights/internal/domain"
	"github.com/clientflow/journey-insights/internal/pkg/httputil"
	"github.com/clientflow/journey-insights/internal/service/journey"
)

const defaultPairLimit = 10

type dropOffRequest struct {
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
	ClientID string     `json:"client_id,omitempty"`
}

// AnalyzeDropOff handles POST /api/analytics/dropoff. It loads the closed
// session population for the requested window and runs the pattern detector
// over it. An empty window yields a well-formed empty analysis, not an error.
func (h *Handlers) AnalyzeDropOff(w http.ResponseWriter, r *http.Request) {
	var req dropOffRequest
	if r.ContentLength > 0 && !httputil.Decode(w, r, &req) {
		return
	}

	filter := journey.ListFilter{ClientID: req.ClientID}
	if req.From != nil {
		filter.From = *req.From
	} else {
		filter.From = time.Now().Add(-h.analysisWindow())
	}
	if req.To != nil {
		filter.To = *req.To
	}
	if !filter.To.IsZero() && filter.To.Before(filter.From) {
		httputil.BadRequest(w, "window end precedes window start")
		return
	}

	population, err := h.journeys.Population(r.Context(), filter)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, h.detector.Analyze(population))
}

type compareRequest struct {
	SuccessfulSessionID string                `json:"successful_session_id"`
	FailedSessionID     string                `json:"failed_session_id"`
	Type                domain.ComparisonType `json:"type,omitempty"`
}

// CompareJourneys handles POST /api/analytics/compare
func (h *Handlers) CompareJourneys(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.SuccessfulSessionID == "" || req.FailedSessionID == "" {
		httputil.BadRequest(w, "successful_session_id and failed_session_id are required")
		return
	}
	if req.Type == "" {
		req.Type = domain.CompareComprehensive
	}
	switch req.Type {
	case domain.CompareComprehensive, domain.CompareContentFocused, domain.CompareTimingFocused, domain.CompareEngagementFocused:
	default:
		httputil.BadRequest(w, "unknown comparison type: "+string(req.Type))
		return
	}

	successful := h.loadSession(w, r, req.SuccessfulSessionID)
	if successful == nil {
		return
	}
	failed := h.loadSession(w, r, req.FailedSessionID)
	if failed == nil {
		return
	}

	if successful.FinalOutcome != domain.OutcomeCompleted {
		httputil.BadRequest(w, "successful_session_id must reference a completed session")
		return
	}
	if failed.FinalOutcome != domain.OutcomeDroppedOff {
		httputil.BadRequest(w, "failed_session_id must reference a dropped-off session")
		return
	}

	httputil.OK(w, h.orchestrator.Compare(*successful, *failed, req.Type))
}

// loadSession fetches a session record, writing the error response itself.
// Returns nil after responding when the session cannot be served.
func (h *Handlers) loadSession(w http.ResponseWriter, r *http.Request, id string) *domain.JourneySession {
	sess, err := h.journeys.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, journey.ErrNotFound) {
			httputil.NotFound(w, "session not found: "+id)
		} else {
			httputil.InternalError(w, err)
		}
		return nil
	}
	return sess
}

// FindPairs handles GET /api/analytics/pairs. Query parameters: window_days,
// client_id, hypothesis_page, limit.
func (h *Handlers) FindPairs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	window := h.analysisWindow()
	if raw := q.Get("window_days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			httputil.BadRequest(w, "window_days must be a positive integer")
			return
		}
		window = time.Duration(days) * 24 * time.Hour
	}

	limit := defaultPairLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var hypothesisPage domain.PageType
	if raw := q.Get("hypothesis_page"); raw != "" {
		page := domain.PageType(raw)
		if !domain.IsValidPageType(page) {
			httputil.BadRequest(w, "unknown hypothesis_page: "+raw)
			return
		}
		hypothesisPage = page
	}

	filter := journey.ListFilter{
		From:     time.Now().Add(-window),
		ClientID: q.Get("client_id"),
	}
	successful, failed, err := h.journeys.SuccessfulAndFailed(r.Context(), filter)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	criteria := comparison.Criteria{
		MaxTemporalDistance: window,
		ViabilityThreshold:  h.analytics.PairViabilityFloor,
		ClientID:            q.Get("client_id"),
		HypothesisPage:      hypothesisPage,
	}
	pairs := comparison.FindOptimalPairs(successful, failed, criteria, limit)

	httputil.OK(w, map[string]any{
		"pairs":      pairs,
		"successful": len(successful),
		"failed":     len(failed),
	})
}

// RealtimeMetrics handles GET /api/realtime/metrics
func (h *Handlers) RealtimeMetrics(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.hub.Metrics())
}
