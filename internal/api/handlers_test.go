package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clientflow/journey-insights/internal/comparison"
	"github.com/clientflow/journey-insights/internal/domain"
	"github.com/clientflow/journey-insights/internal/dropoff"
	"github.com/clientflow/journey-insights/internal/realtime"
	"github.com/clientflow/journey-insights/internal/service/journey"
	"github.com/clientflow/journey-insights/internal/session"
)

// memRepo is an in-memory journey.Repository for handler tests.
type memRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.JourneySession
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: make(map[string]domain.JourneySession)}
}

func (r *memRepo) Get(_ context.Context, id string) (*domain.JourneySession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, journey.ErrNotFound
	}
	return &s, nil
}

func (r *memRepo) List(_ context.Context, f journey.ListFilter) ([]domain.JourneySession, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.JourneySession
	for _, s := range r.sessions {
		if !f.From.IsZero() && s.StartedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && s.StartedAt.After(f.To) {
			continue
		}
		if f.Outcome != "" && s.FinalOutcome != f.Outcome {
			continue
		}
		if f.ClientID != "" && s.ClientID != f.ClientID {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })

	total := len(out)
	if f.Offset > 0 && f.Offset < len(out) {
		out = out[f.Offset:]
	} else if f.Offset >= len(out) {
		out = nil
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (r *memRepo) Save(_ context.Context, s *domain.JourneySession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = *s
	return nil
}

func newTestHandler(t *testing.T) (http.Handler, *memRepo) {
	t.Helper()

	repo := newMemRepo()
	svc := journey.NewService(repo)
	hub := realtime.NewHub(nil, nil)

	tracker := session.NewTracker(session.WithCloseFunc(func(s domain.JourneySession) {
		svc.RecordClosure(s)
		hub.RecordSessionClosed(s)
	}))

	handlers := NewHandlers(tracker, svc, dropoff.NewDetector(dropoff.Config{}, nil), comparison.NewOrchestrator(nil), hub)
	return SetupRoutes(handlers), repo
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func seedSession(repo *memRepo, id, clientID string, start time.Time, outcome domain.SessionOutcome, variant string, visits ...domain.PageVisit) domain.JourneySession {
	var total float64
	for i := range visits {
		visits[i].SessionID = id
		if visits[i].ContentVariantID == "" {
			visits[i].ContentVariantID = variant
		}
		total += visits[i].TimeOnPage
	}
	end := start.Add(time.Duration(total) * time.Second)
	s := domain.JourneySession{
		ID:            id,
		ClientID:      clientID,
		StartedAt:     start,
		EndedAt:       &end,
		TotalDuration: total,
		Visits:        visits,
		FinalOutcome:  outcome,
	}
	if len(visits) > 0 {
		p := visits[len(visits)-1].PageType
		s.ExitPage = &p
	}
	if outcome == domain.OutcomeDroppedOff {
		trigger := domain.TriggerContentBased
		s.ExitTrigger = &trigger
	}
	repo.sessions[id] = s
	return s
}

func closedVisit(page domain.PageType, dwell, engagement float64, action domain.ExitAction, entered time.Time) domain.PageVisit {
	exited := entered.Add(time.Duration(dwell) * time.Second)
	return domain.PageVisit{
		ID:              string(page) + "-visit",
		PageType:        page,
		EnteredAt:       entered,
		ExitedAt:        &exited,
		TimeOnPage:      dwell,
		ExitAction:      action,
		EngagementScore: engagement,
	}
}

func seedCompleted(repo *memRepo, id, clientID string, start time.Time, variant string) domain.JourneySession {
	return seedSession(repo, id, clientID, start, domain.OutcomeCompleted, variant,
		closedVisit(domain.PageActivation, 120, 0.8, domain.ExitNextPage, start),
		closedVisit(domain.PageAgreement, 180, 0.8, domain.ExitNextPage, start.Add(120*time.Second)),
		closedVisit(domain.PageConfirmation, 90, 0.8, domain.ExitNextPage, start.Add(300*time.Second)),
		closedVisit(domain.PageProcessing, 60, 0.8, domain.ExitClose, start.Add(390*time.Second)),
	)
}

func seedDropped(repo *memRepo, id, clientID string, start time.Time, variant string) domain.JourneySession {
	return seedSession(repo, id, clientID, start, domain.OutcomeDroppedOff, variant,
		closedVisit(domain.PageActivation, 110, 0.7, domain.ExitNextPage, start),
		closedVisit(domain.PageAgreement, 30, 0.7, domain.ExitClose, start.Add(110*time.Second)),
	)
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "not_configured", status.Checks["database"].Status)
	assert.Equal(t, "not_configured", status.Checks["redis"].Status)
}

func TestEventLifecyclePersistsClosedSession(t *testing.T) {
	h, repo := newTestHandler(t)

	// Start a session.
	rec := doJSON(t, h, http.MethodPost, "/api/events", map[string]any{
		"type":      "session_start",
		"client_id": "client-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)

	var started domain.JourneySession
	require.NoError(t, json.Unmarshal(env.Data, &started))
	require.NotEmpty(t, started.ID)

	// Enter a page.
	rec = doJSON(t, h, http.MethodPost, "/api/events", map[string]any{
		"type":       "page_enter",
		"session_id": started.ID,
		"page_type":  "activation",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Live snapshot is served from the tracker.
	rec = doJSON(t, h, http.MethodGet, "/api/sessions/"+started.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var live domain.JourneySession
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &live))
	assert.Equal(t, domain.OutcomeInProgress, live.FinalOutcome)

	// Exiting with close ends the session and persists the record.
	rec = doJSON(t, h, http.MethodPost, "/api/events", map[string]any{
		"type":        "page_exit",
		"session_id":  started.ID,
		"exit_action": "close",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	saved, err := repo.Get(context.Background(), started.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDroppedOff, saved.FinalOutcome)

	// The closed record is now served from the store.
	rec = doJSON(t, h, http.MethodGet, "/api/sessions/"+started.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var closed domain.JourneySession
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &closed))
	assert.True(t, closed.IsClosed())
}

func TestIngestRejectsUnknownEventType(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/events", map[string]any{"type": "telepathy"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "unknown event type")
}

func TestIngestUnknownSessionIs404(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/events", map[string]any{
		"type":       "page_enter",
		"session_id": "missing",
		"page_type":  "activation",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decodeEnvelope(t, rec).Success)
}

func TestCompareValidation(t *testing.T) {
	h, repo := newTestHandler(t)
	start := time.Now().Add(-time.Hour)
	seedCompleted(repo, "good", "client-1", start, "terms-v2")

	// Missing IDs.
	rec := doJSON(t, h, http.MethodPost, "/api/analytics/compare", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown session.
	rec = doJSON(t, h, http.MethodPost, "/api/analytics/compare", map[string]any{
		"successful_session_id": "good",
		"failed_session_id":     "missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Wrong outcome on the failed side.
	rec = doJSON(t, h, http.MethodPost, "/api/analytics/compare", map[string]any{
		"successful_session_id": "good",
		"failed_session_id":     "good",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown comparison type.
	rec = doJSON(t, h, http.MethodPost, "/api/analytics/compare", map[string]any{
		"successful_session_id": "good",
		"failed_session_id":     "good",
		"type":                  "vibes_focused",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompareJourneys(t *testing.T) {
	h, repo := newTestHandler(t)
	start := time.Now().Add(-2 * time.Hour)
	seedCompleted(repo, "good", "client-1", start, "terms-v2")
	seedDropped(repo, "bad", "client-2", start.Add(30*time.Minute), "terms-v1")

	rec := doJSON(t, h, http.MethodPost, "/api/analytics/compare", map[string]any{
		"successful_session_id": "good",
		"failed_session_id":     "bad",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.JourneyComparison
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.Equal(t, "good", result.SuccessfulSessionID)
	assert.Equal(t, "bad", result.FailedSessionID)
	assert.Equal(t, domain.CompareComprehensive, result.Type)
	assert.NotEmpty(t, result.TimingDiffs)
	assert.Empty(t, result.PartialFailures)
}

func TestDropOffAnalysisEndpoint(t *testing.T) {
	h, repo := newTestHandler(t)
	start := time.Now().Add(-3 * time.Hour)
	seedCompleted(repo, "good-1", "client-1", start, "terms-v2")
	for i := 0; i < 6; i++ {
		seedDropped(repo, fmt.Sprintf("bad-%d", i), fmt.Sprintf("client-%d", i), start.Add(time.Duration(i)*time.Minute), "terms-v1")
	}

	rec := doJSON(t, h, http.MethodPost, "/api/analytics/dropoff", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)

	var analysis domain.DropOffAnalysis
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &analysis))
	assert.Equal(t, 7, analysis.TotalSessions)
	assert.Equal(t, 6, analysis.DroppedSessions)
	assert.NotEmpty(t, analysis.Patterns)
}

func TestDropOffRejectsInvertedWindow(t *testing.T) {
	h, _ := newTestHandler(t)

	from := time.Now()
	to := from.Add(-time.Hour)
	rec := doJSON(t, h, http.MethodPost, "/api/analytics/dropoff", map[string]any{
		"from": from.Format(time.RFC3339),
		"to":   to.Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFindPairsEndpoint(t *testing.T) {
	h, repo := newTestHandler(t)
	start := time.Now().Add(-2 * time.Hour)
	seedCompleted(repo, "good", "client-1", start, "terms-v2")
	seedDropped(repo, "bad", "client-1", start.Add(20*time.Minute), "terms-v2")

	rec := doJSON(t, h, http.MethodGet, "/api/analytics/pairs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Pairs      []domain.JourneyPair `json:"pairs"`
		Successful int                  `json:"successful"`
		Failed     int                  `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Pairs, 1)
	assert.Equal(t, "good", result.Pairs[0].SuccessfulSessionID)
	assert.GreaterOrEqual(t, result.Pairs[0].Viability, 0.6)
}

func TestFindPairsRejectsBadParams(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/api/analytics/pairs?window_days=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/analytics/pairs?hypothesis_page=checkout", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRealtimeMetricsEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/api/realtime/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var metrics realtime.Metrics
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &metrics))
	assert.Equal(t, 0, metrics.ActiveSessions)
}

func TestAlertThresholdLifecycle(t *testing.T) {
	h, _ := newTestHandler(t)

	// Create.
	rec := doJSON(t, h, http.MethodPut, "/api/alerts/thresholds", map[string]any{
		"metric":         "drop_off_rate",
		"page_type":      "confirmation",
		"threshold":      0.25,
		"window_minutes": 30,
		"severity":       "high",
		"active":         true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var saved thresholdPayload
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &saved))
	require.NotEmpty(t, saved.ID)
	assert.Equal(t, 30, saved.WindowMinutes)

	// Listed alongside the defaults.
	rec = doJSON(t, h, http.MethodGet, "/api/alerts/thresholds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var thresholds []thresholdPayload
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &thresholds))
	ids := make([]string, 0, len(thresholds))
	for _, th := range thresholds {
		ids = append(ids, th.ID)
	}
	assert.Contains(t, ids, saved.ID)

	// Delete.
	rec = doJSON(t, h, http.MethodDelete, "/api/alerts/thresholds/"+saved.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/alerts/thresholds/"+saved.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutThresholdValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPut, "/api/alerts/thresholds", map[string]any{
		"metric":         "latency",
		"threshold":      0.5,
		"window_minutes": 30,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/api/alerts/thresholds", map[string]any{
		"metric":         "drop_off_rate",
		"threshold":      1.5,
		"window_minutes": 30,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcknowledgeUnknownAlert(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/alerts/nope/ack", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessionsFilters(t *testing.T) {
	h, repo := newTestHandler(t)
	start := time.Now().Add(-time.Hour)
	seedCompleted(repo, "good", "client-1", start, "terms-v2")
	seedDropped(repo, "bad", "client-2", start.Add(5*time.Minute), "terms-v1")

	rec := doJSON(t, h, http.MethodGet, "/api/sessions?outcome=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Sessions []domain.JourneySession `json:"sessions"`
		Total    int                     `json:"total"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Sessions, 1)
	assert.Equal(t, "good", result.Sessions[0].ID)
}

func TestListSessionsRejectsUnknownOutcome(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/api/sessions?outcome=abandoned", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "unknown outcome")
}
