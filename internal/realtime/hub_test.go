package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clientflow/journey-insights/internal/domain"
)

type fixedActive int

func (f fixedActive) ActiveCount() int { return int(f) }

func newTestHub() *Hub {
	h := NewHub(fixedActive(3), nil)
	clock := &cacheClock{t: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)}
	h.now = clock.Now
	h.cache.now = clock.Now
	h.alerts.now = clock.Now
	return h
}

func TestHubCountsFlushedEvents(t *testing.T) {
	h := newTestHub()

	h.Ingest(domain.JourneyEvent{Type: domain.EventSessionStart, SessionID: "s1"})
	h.Ingest(domain.JourneyEvent{Type: domain.EventPageEnter, SessionID: "s1", PageType: domain.PageActivation})
	h.Ingest(domain.JourneyEvent{Type: domain.EventPageExit, SessionID: "s1", PageType: domain.PageActivation, ExitAction: domain.ExitError})
	h.buffer.Flush()

	m := h.Metrics()
	assert.Equal(t, 3, m.ActiveSessions)
	assert.Equal(t, 1, m.CurrentHour.SessionsStarted)
	assert.Equal(t, 1, m.CurrentHour.PageViews)
	assert.Equal(t, 1, m.CurrentHour.Errors)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), m.CurrentHour.HourStart)
}

func TestHubHonorsBufferConfig(t *testing.T) {
	h := NewHub(nil, nil, WithBufferConfig(2, time.Minute))
	clock := &cacheClock{t: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)}
	h.now = clock.Now
	h.cache.now = clock.Now
	h.alerts.now = clock.Now

	// The second event hits the configured threshold and flushes without any
	// explicit Flush call.
	h.Ingest(domain.JourneyEvent{Type: domain.EventSessionStart, SessionID: "s1"})
	assert.Equal(t, 1, h.buffer.Len())
	h.Ingest(domain.JourneyEvent{Type: domain.EventSessionStart, SessionID: "s2"})

	assert.Equal(t, 0, h.buffer.Len())
	assert.Equal(t, 2, h.Metrics().CurrentHour.SessionsStarted)
}

func TestHubConversionRate(t *testing.T) {
	h := newTestHub()

	for i := 0; i < 3; i++ {
		h.RecordSessionClosed(domain.JourneySession{FinalOutcome: domain.OutcomeCompleted})
	}
	h.RecordSessionClosed(closedSession(domain.OutcomeDroppedOff, domain.PageAgreement))

	m := h.Metrics()
	assert.Equal(t, 1, m.RecentDropOffs)
	assert.InDelta(t, 0.75, m.LiveConversionRate, 1e-9)
	assert.Equal(t, 3, m.CurrentHour.SessionsCompleted)
	assert.Equal(t, 1, m.CurrentHour.DropOffs)
}

func TestHubFlushPopulatesCache(t *testing.T) {
	h := newTestHub()

	h.Ingest(domain.JourneyEvent{Type: domain.EventPageEnter, SessionID: "s1", PageType: domain.PageActivation})
	h.buffer.Flush()

	cached, ok := h.cache.Get("hour:2026-03-10T09")
	require.True(t, ok)
	hm, ok := cached.(HourMetrics)
	require.True(t, ok)
	assert.Equal(t, 1, hm.PageViews)

	_, ok = h.cache.Get("last_flush:page")
	assert.True(t, ok)
}

func TestHubErrorRateAlertFromEvents(t *testing.T) {
	h := newTestHub()

	h.Ingest(domain.JourneyEvent{Type: domain.EventPageExit, SessionID: "s1", PageType: domain.PageProcessing, ExitAction: domain.ExitError})
	for i := 0; i < 9; i++ {
		h.Ingest(domain.JourneyEvent{Type: domain.EventPageExit, SessionID: "s1", PageType: domain.PageProcessing, ExitAction: domain.ExitNextPage})
	}
	h.buffer.Flush()

	m := h.Metrics()
	require.NotEmpty(t, m.Alerts)
	assert.Equal(t, domain.MetricErrorRate, m.Alerts[0].Metric)
}
