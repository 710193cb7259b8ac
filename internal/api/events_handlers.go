package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clientflow/journey-insights/internal/domain"
	"github.com/clientflow/journey-insights/internal/pkg/httputil"
	"github.com/clientflow/journey-insights/internal/service/journey"
	"github.com/clientflow/journey-insights/internal/session"
)

// eventRequest is the wire shape posted by the tracking snippet. It carries
// the raw event plus the tracker-only fields (visit_id, explicit close
// trigger/outcome) that never flow into the realtime buffer.
type eventRequest struct {
	Type             domain.JourneyEventType `json:"type"`
	SessionID        string                  `json:"session_id,omitempty"`
	VisitID          string                  `json:"visit_id,omitempty"`
	ClientID         string                  `json:"client_id,omitempty"`
	PageType         domain.PageType         `json:"page_type,omitempty"`
	ExitAction       domain.ExitAction       `json:"exit_action,omitempty"`
	ExitTrigger      *domain.ExitTrigger     `json:"exit_trigger,omitempty"`
	Outcome          *domain.SessionOutcome  `json:"outcome,omitempty"`
	ContentVariantID string                  `json:"content_variant_id,omitempty"`
	ScrollDepth      float64                 `json:"scroll_depth,omitempty"`
	InteractionCount int                     `json:"interaction_count,omitempty"`
	OccurredAt       time.Time               `json:"occurred_at,omitempty"`
}

func (req eventRequest) toEvent() domain.JourneyEvent {
	return domain.JourneyEvent{
		ID:               uuid.New().String(),
		Type:             req.Type,
		SessionID:        req.SessionID,
		ClientID:         req.ClientID,
		PageType:         req.PageType,
		ExitAction:       req.ExitAction,
		ContentVariantID: req.ContentVariantID,
		ScrollDepth:      req.ScrollDepth,
		InteractionCount: req.InteractionCount,
		OccurredAt:       req.OccurredAt,
	}
}

// IngestEvent handles POST /api/events. Each event both drives the live
// session tracker and feeds the realtime buffer, so the dashboard's counters
// and the session state machine can never disagree about what happened.
func (h *Handlers) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	switch req.Type {
	case domain.EventSessionStart:
		if req.ClientID == "" {
			httputil.BadRequest(w, "client_id is required for session_start")
			return
		}
		sess, err := h.tracker.CreateSession(req.ClientID)
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
		req.SessionID = sess.ID
		h.hub.Ingest(req.toEvent())
		httputil.Created(w, sess)

	case domain.EventPageEnter:
		visit, err := h.tracker.RecordPageEntry(req.SessionID, req.PageType, req.ContentVariantID)
		if err != nil {
			h.writeTrackerError(w, err)
			return
		}
		h.hub.Ingest(req.toEvent())
		httputil.Created(w, visit)

	case domain.EventPageExit:
		visitID := req.VisitID
		if visitID == "" {
			snap, err := h.tracker.Snapshot(req.SessionID)
			if err != nil {
				h.writeTrackerError(w, err)
				return
			}
			open := snap.CurrentVisit()
			if open == nil {
				httputil.BadRequest(w, "session has no open visit to exit")
				return
			}
			visitID = open.ID
		}
		sample := &session.EngagementSample{ScrollDepth: req.ScrollDepth, InteractionCount: req.InteractionCount}
		if err := h.tracker.RecordPageExit(req.SessionID, visitID, req.ExitAction, sample); err != nil {
			h.writeTrackerError(w, err)
			return
		}
		h.hub.Ingest(req.toEvent())
		httputil.OK(w, map[string]any{"accepted": true})

	case domain.EventEngagement:
		sample := session.EngagementSample{ScrollDepth: req.ScrollDepth, InteractionCount: req.InteractionCount}
		if err := h.tracker.RecordEngagement(req.SessionID, sample); err != nil {
			h.writeTrackerError(w, err)
			return
		}
		h.hub.Ingest(req.toEvent())
		httputil.OK(w, map[string]any{"accepted": true})

	case domain.EventSessionEnd:
		if err := h.tracker.CloseSession(req.SessionID, req.ExitTrigger, req.Outcome); err != nil {
			h.writeTrackerError(w, err)
			return
		}
		h.hub.Ingest(req.toEvent())
		httputil.OK(w, map[string]any{"accepted": true})

	case domain.EventAnalytics:
		h.hub.Ingest(req.toEvent())
		httputil.OK(w, map[string]any{"accepted": true})

	default:
		httputil.BadRequest(w, "unknown event type: "+string(req.Type))
	}
}

// writeTrackerError maps tracker sentinel errors onto HTTP statuses.
func (h *Handlers) writeTrackerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrVisitNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, session.ErrSessionClosed):
		httputil.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrInvalidPage):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

// GetSession handles GET /api/sessions/{sessionID}. Live sessions come from
// the tracker; closed sessions come from the record store.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	if snap, err := h.tracker.Snapshot(id); err == nil {
		httputil.OK(w, snap)
		return
	}

	sess, err := h.journeys.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, journey.ErrNotFound) {
			httputil.NotFound(w, "session not found: "+id)
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, sess)
}

// ListSessions handles GET /api/sessions
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := journey.ListFilter{ClientID: q.Get("client_id")}

	if raw := q.Get("outcome"); raw != "" {
		outcome := domain.SessionOutcome(raw)
		switch outcome {
		case domain.OutcomeInProgress, domain.OutcomeCompleted, domain.OutcomeDroppedOff:
			filter.Outcome = outcome
		default:
			httputil.BadRequest(w, "unknown outcome: "+raw)
			return
		}
	}

	if raw := q.Get("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.BadRequest(w, "from must be RFC3339")
			return
		}
		filter.From = ts
	}
	if raw := q.Get("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.BadRequest(w, "to must be RFC3339")
			return
		}
		filter.To = ts
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	sessions, total, err := h.journeys.List(r.Context(), filter)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"sessions": sessions, "total": total})
}
