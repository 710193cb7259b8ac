package realtime

import (
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clientflow/journey-insights/internal/domain"
)

// recentWindow is the lookback for the live conversion rate and recent
// drop-off count on the dashboard.
const recentWindow = time.Hour

// ActiveCounter reports how many sessions are currently in progress. The
// session tracker satisfies it.
type ActiveCounter interface {
	ActiveCount() int
}

// HourMetrics are the running counters for one clock hour.
type HourMetrics struct {
	HourStart         time.Time `json:"hour_start"`
	SessionsStarted   int       `json:"sessions_started"`
	SessionsCompleted int       `json:"sessions_completed"`
	DropOffs          int       `json:"drop_offs"`
	PageViews         int       `json:"page_views"`
	Errors            int       `json:"errors"`
}

// Metrics is the live dashboard snapshot.
type Metrics struct {
	ActiveSessions     int            `json:"active_sessions"`
	RecentDropOffs     int            `json:"recent_drop_offs"`
	LiveConversionRate float64        `json:"live_conversion_rate"`
	CurrentHour        HourMetrics    `json:"current_hour"`
	Alerts             []domain.Alert `json:"alerts"`
}

// Hub wires the event buffer, analytics cache, and alert manager together
// and answers realtime metrics queries.
type Hub struct {
	buffer *EventBuffer
	cache  *AnalyticsCache
	alerts *AlertManager
	active ActiveCounter

	mu    sync.Mutex
	hours map[time.Time]*HourMetrics
	now   func() time.Time

	bufferMaxSize       int
	bufferFlushInterval time.Duration
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBufferConfig sets the event buffer's flush threshold and interval.
// Zero values keep the buffer defaults.
func WithBufferConfig(maxSize int, flushInterval time.Duration) HubOption {
	return func(h *Hub) {
		h.bufferMaxSize = maxSize
		h.bufferFlushInterval = flushInterval
	}
}

// NewHub builds the realtime pipeline. active may be nil when no tracker is
// attached (the metrics snapshot then reports zero active sessions);
// redisClient may be nil for memory-only caching.
func NewHub(active ActiveCounter, redisClient *redis.Client, opts ...HubOption) *Hub {
	h := &Hub{
		cache:  NewAnalyticsCache(redisClient),
		alerts: NewAlertManager(),
		active: active,
		hours:  make(map[time.Time]*HourMetrics),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.buffer = NewEventBuffer(h.processFlush, h.bufferMaxSize, h.bufferFlushInterval)
	return h
}

// Start launches the flush loop and cache cleanup sweep.
func (h *Hub) Start() {
	h.buffer.Start()
	h.cache.Start()
}

// Stop drains the buffer and halts the loops.
func (h *Hub) Stop() {
	h.buffer.Stop()
	h.cache.Stop()
}

// Alerts exposes the alert manager for threshold management endpoints.
func (h *Hub) Alerts() *AlertManager { return h.alerts }

// Cache exposes the analytics cache.
func (h *Hub) Cache() *AnalyticsCache { return h.cache }

// Ingest queues a raw journey event for the next flush.
func (h *Hub) Ingest(e domain.JourneyEvent) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = h.now()
	}
	h.buffer.Append(e)
}

// RecordSessionClosed feeds a closed session into the rolling metrics; the
// session tracker calls it on every closure.
func (h *Hub) RecordSessionClosed(s domain.JourneySession) {
	h.alerts.ObserveClosure(s)

	h.mu.Lock()
	hm := h.currentHourLocked()
	switch s.FinalOutcome {
	case domain.OutcomeCompleted:
		hm.SessionsCompleted++
	case domain.OutcomeDroppedOff:
		hm.DropOffs++
	}
	h.mu.Unlock()

	h.alerts.CheckThresholds()
}

// Metrics returns the live dashboard snapshot.
func (h *Hub) Metrics() Metrics {
	completed, dropped, _ := h.alerts.ClosureStats(recentWindow)

	var rate float64
	if completed+dropped > 0 {
		rate = float64(completed) / float64(completed+dropped)
	}

	h.mu.Lock()
	current := *h.currentHourLocked()
	h.mu.Unlock()

	var activeSessions int
	if h.active != nil {
		activeSessions = h.active.ActiveCount()
	}

	return Metrics{
		ActiveSessions:     activeSessions,
		RecentDropOffs:     dropped,
		LiveConversionRate: rate,
		CurrentHour:        current,
		Alerts:             h.alerts.ActiveAlerts(),
	}
}

// processFlush is the buffer's flush sink: it folds one category batch into
// the hour counters and alert windows, caches the aggregate, and runs the
// threshold checks once for the cycle.
func (h *Hub) processFlush(category string, events []domain.JourneyEvent) error {
	h.mu.Lock()
	hm := h.currentHourLocked()
	for _, e := range events {
		switch e.Type {
		case domain.EventSessionStart:
			hm.SessionsStarted++
		case domain.EventPageEnter:
			hm.PageViews++
		case domain.EventPageExit:
			if e.ExitAction == domain.ExitError {
				hm.Errors++
			}
		}
	}
	snapshot := *hm
	h.mu.Unlock()

	for _, e := range events {
		if e.Type == domain.EventPageExit {
			h.alerts.ObservePageExit(e.PageType, e.ExitAction)
		}
	}

	h.cache.Set("hour:"+snapshot.HourStart.Format("2006-01-02T15"), snapshot)
	h.cache.Set("last_flush:"+category, map[string]interface{}{
		"count":      len(events),
		"flushed_at": h.now().Unix(),
	})

	h.alerts.CheckThresholds()
	return nil
}

// currentHourLocked returns the counter block for the wall-clock hour,
// creating it on first touch. Callers hold h.mu.
func (h *Hub) currentHourLocked() *HourMetrics {
	hour := h.now().Truncate(time.Hour)
	hm, ok := h.hours[hour]
	if !ok {
		hm = &HourMetrics{HourStart: hour}
		h.hours[hour] = hm

		// Drop counter blocks older than a day.
		for start := range h.hours {
			if hour.Sub(start) > 24*time.Hour {
				delete(h.hours, start)
			}
		}
	}
	return hm
}
