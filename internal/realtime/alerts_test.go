package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clientflow/journey-insights/internal/domain"
)

func newTestAlertManager() (*AlertManager, *cacheClock) {
	clock := &cacheClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	m := NewAlertManager()
	m.now = clock.Now
	return m, clock
}

func closedSession(outcome domain.SessionOutcome, exitPage domain.PageType) domain.JourneySession {
	s := domain.JourneySession{ID: "s", FinalOutcome: outcome}
	if exitPage != "" {
		p := exitPage
		s.ExitPage = &p
	}
	return s
}

func TestDefaultThresholdsLoaded(t *testing.T) {
	m, _ := newTestAlertManager()
	thresholds := m.Thresholds()
	require.Len(t, thresholds, 4)

	byID := make(map[string]domain.AlertThreshold)
	for _, th := range thresholds {
		byID[th.ID] = th
	}
	assert.Equal(t, 0.20, byID["default-activation-dropoff"].Threshold)
	assert.Equal(t, domain.SeverityHigh, byID["default-agreement-dropoff"].Severity)
	assert.Equal(t, 60*time.Minute, byID["default-overall-conversion"].Window)
	assert.Equal(t, domain.SeverityCritical, byID["default-error-rate"].Severity)
}

func TestActivationDropOffAlert(t *testing.T) {
	m, _ := newTestAlertManager()

	// 3 of 10 closures dropped on activation: 30% > 20% threshold.
	for i := 0; i < 3; i++ {
		m.ObserveClosure(closedSession(domain.OutcomeDroppedOff, domain.PageActivation))
	}
	for i := 0; i < 7; i++ {
		m.ObserveClosure(closedSession(domain.OutcomeCompleted, ""))
	}

	raised := m.CheckThresholds()
	require.Len(t, raised, 1)
	assert.Equal(t, domain.MetricDropOffRate, raised[0].Metric)
	assert.Equal(t, domain.PageActivation, raised[0].PageType)
	assert.Equal(t, domain.SeverityHigh, raised[0].Severity)
	assert.InDelta(t, 0.3, raised[0].CurrentValue, 1e-9)
	assert.NotEmpty(t, raised[0].Message)
}

func TestConversionAlertFiresBelowThreshold(t *testing.T) {
	m, _ := newTestAlertManager()

	for i := 0; i < 4; i++ {
		m.ObserveClosure(closedSession(domain.OutcomeCompleted, ""))
	}
	for i := 0; i < 6; i++ {
		m.ObserveClosure(closedSession(domain.OutcomeDroppedOff, domain.PageProcessing))
	}

	raised := m.CheckThresholds()
	var conversion *domain.Alert
	for i := range raised {
		if raised[i].Metric == domain.MetricConversionRate {
			conversion = &raised[i]
		}
	}
	require.NotNil(t, conversion, "40%% conversion is below the 50%% floor")
	assert.Equal(t, domain.SeverityMedium, conversion.Severity)
}

func TestErrorRateAlert(t *testing.T) {
	m, _ := newTestAlertManager()

	m.ObservePageExit(domain.PageProcessing, domain.ExitError)
	for i := 0; i < 9; i++ {
		m.ObservePageExit(domain.PageProcessing, domain.ExitNextPage)
	}

	raised := m.CheckThresholds()
	require.Len(t, raised, 1)
	assert.Equal(t, domain.MetricErrorRate, raised[0].Metric)
	assert.Equal(t, domain.SeverityCritical, raised[0].Severity)
	assert.InDelta(t, 0.1, raised[0].CurrentValue, 1e-9)
}

func TestNoSamplesNoAlerts(t *testing.T) {
	m, _ := newTestAlertManager()
	assert.Empty(t, m.CheckThresholds())
}

func TestAlertDeduplicationWindow(t *testing.T) {
	m, clock := newTestAlertManager()

	for i := 0; i < 3; i++ {
		m.ObserveClosure(closedSession(domain.OutcomeDroppedOff, domain.PageActivation))
	}
	for i := 0; i < 7; i++ {
		m.ObserveClosure(closedSession(domain.OutcomeCompleted, ""))
	}

	first := m.CheckThresholds()
	require.Len(t, first, 1)

	// A second violation ten minutes later is suppressed.
	clock.Advance(10 * time.Minute)
	assert.Empty(t, m.CheckThresholds())

	var unacked int
	for _, a := range m.ActiveAlerts() {
		if a.Metric == domain.MetricDropOffRate && a.PageType == domain.PageActivation {
			unacked++
		}
	}
	assert.Equal(t, 1, unacked, "exactly one unacknowledged alert per page+type within 15 minutes")

	// Past the dedup window the violation raises again.
	clock.Advance(6 * time.Minute)
	assert.Len(t, m.CheckThresholds(), 1)
}

func TestAcknowledgeReopensAlerting(t *testing.T) {
	m, clock := newTestAlertManager()

	for i := 0; i < 3; i++ {
		m.ObserveClosure(closedSession(domain.OutcomeDroppedOff, domain.PageActivation))
	}
	for i := 0; i < 7; i++ {
		m.ObserveClosure(closedSession(domain.OutcomeCompleted, ""))
	}

	first := m.CheckThresholds()
	require.Len(t, first, 1)
	require.NoError(t, m.AcknowledgeAlert(first[0].ID))
	assert.Empty(t, m.ActiveAlerts())

	clock.Advance(time.Minute)
	assert.Len(t, m.CheckThresholds(), 1, "acknowledged alerts do not suppress new ones")
}

func TestThresholdCRUD(t *testing.T) {
	m, _ := newTestAlertManager()

	custom := m.SetThreshold(domain.AlertThreshold{
		Metric:    domain.MetricDropOffRate,
		PageType:  domain.PageConfirmation,
		Threshold: 0.25,
		Window:    20 * time.Minute,
		Severity:  domain.SeverityMedium,
		Active:    true,
	})
	assert.NotEmpty(t, custom.ID)
	assert.Len(t, m.Thresholds(), 5)

	require.NoError(t, m.RemoveThreshold(custom.ID))
	assert.Len(t, m.Thresholds(), 4)
	assert.ErrorIs(t, m.RemoveThreshold(custom.ID), ErrThresholdNotFound)
	assert.ErrorIs(t, m.AcknowledgeAlert("nope"), ErrAlertNotFound)
}

func TestInactiveThresholdSkipped(t *testing.T) {
	m, _ := newTestAlertManager()

	th := m.Thresholds()[0]
	th.Active = false
	m.SetThreshold(th)

	for i := 0; i < 5; i++ {
		m.ObserveClosure(closedSession(domain.OutcomeDroppedOff, domain.PageActivation))
	}
	for i := 0; i < 5; i++ {
		m.ObserveClosure(closedSession(domain.OutcomeCompleted, ""))
	}

	for _, a := range m.CheckThresholds() {
		assert.NotEqual(t, th.ID, a.ThresholdID)
	}
}
