package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clientflow/journey-insights/internal/domain"
	"github.com/clientflow/journey-insights/internal/pkg/httputil"
	"github.com/clientflow/journey-insights/internal/realtime"
)

// thresholdPayload is the wire shape for alert thresholds. Windows travel as
// whole minutes rather than Go duration encoding.
type thresholdPayload struct {
	ID            string               `json:"id,omitempty"`
	Metric        domain.AlertMetric   `json:"metric"`
	PageType      domain.PageType      `json:"page_type,omitempty"`
	Threshold     float64              `json:"threshold"`
	WindowMinutes int                  `json:"window_minutes"`
	Severity      domain.AlertSeverity `json:"severity"`
	Active        bool                 `json:"active"`
}

func toThresholdPayload(t domain.AlertThreshold) thresholdPayload {
	return thresholdPayload{
		ID:            t.ID,
		Metric:        t.Metric,
		PageType:      t.PageType,
		Threshold:     t.Threshold,
		WindowMinutes: int(t.Window / time.Minute),
		Severity:      t.Severity,
		Active:        t.Active,
	}
}

// ListAlerts handles GET /api/alerts
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.hub.Alerts().ActiveAlerts()
	httputil.OK(w, map[string]any{"alerts": alerts, "count": len(alerts)})
}

// AcknowledgeAlert handles POST /api/alerts/{alertID}/ack
func (h *Handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "alertID")
	if err := h.hub.Alerts().AcknowledgeAlert(id); err != nil {
		if errors.Is(err, realtime.ErrAlertNotFound) {
			httputil.NotFound(w, "alert not found: "+id)
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"acknowledged": true})
}

// ListThresholds handles GET /api/alerts/thresholds
func (h *Handlers) ListThresholds(w http.ResponseWriter, r *http.Request) {
	thresholds := h.hub.Alerts().Thresholds()
	payloads := make([]thresholdPayload, 0, len(thresholds))
	for _, t := range thresholds {
		payloads = append(payloads, toThresholdPayload(t))
	}
	httputil.OK(w, payloads)
}

// PutThreshold handles PUT /api/alerts/thresholds. With an ID it updates the
// existing rule; without one it creates a new rule.
func (h *Handlers) PutThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdPayload
	if !httputil.Decode(w, r, &req) {
		return
	}

	switch req.Metric {
	case domain.MetricDropOffRate, domain.MetricConversionRate, domain.MetricErrorRate:
	default:
		httputil.BadRequest(w, "unknown metric: "+string(req.Metric))
		return
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		httputil.BadRequest(w, "threshold must be a rate in [0,1]")
		return
	}
	if req.WindowMinutes <= 0 {
		httputil.BadRequest(w, "window_minutes must be positive")
		return
	}
	if req.PageType != "" && !domain.IsValidPageType(req.PageType) {
		httputil.BadRequest(w, "unknown page_type: "+string(req.PageType))
		return
	}
	if req.Severity == "" {
		req.Severity = domain.SeverityMedium
	}

	saved := h.hub.Alerts().SetThreshold(domain.AlertThreshold{
		ID:        req.ID,
		Metric:    req.Metric,
		PageType:  req.PageType,
		Threshold: req.Threshold,
		Window:    time.Duration(req.WindowMinutes) * time.Minute,
		Severity:  req.Severity,
		Active:    req.Active,
	})
	httputil.OK(w, toThresholdPayload(saved))
}

// DeleteThreshold handles DELETE /api/alerts/thresholds/{thresholdID}
func (h *Handlers) DeleteThreshold(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "thresholdID")
	if err := h.hub.Alerts().RemoveThreshold(id); err != nil {
		if errors.Is(err, realtime.ErrThresholdNotFound) {
			httputil.NotFound(w, "threshold not found: "+id)
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}
