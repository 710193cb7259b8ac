package realtime

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clientflow/journey-insights/internal/domain"
)

var (
	ErrThresholdNotFound = errors.New("alert threshold not found")
	ErrAlertNotFound     = errors.New("alert not found")
)

const (
	// dedupWindow suppresses a repeat alert for the same page+metric while
	// an unacknowledged one from the last 15 minutes exists.
	dedupWindow = 15 * time.Minute

	// observationRetention bounds the rolling windows; no default threshold
	// looks back further than an hour.
	observationRetention = 2 * time.Hour
)

type exitObservation struct {
	at     time.Time
	page   domain.PageType
	action domain.ExitAction
}

type closureObservation struct {
	at       time.Time
	outcome  domain.SessionOutcome
	exitPage *domain.PageType
}

// AlertManager evaluates configured thresholds against rolling metrics built
// from observed page exits and session closures.
type AlertManager struct {
	mu         sync.Mutex
	thresholds map[string]domain.AlertThreshold
	alerts     []domain.Alert

	exits    []exitObservation
	closures []closureObservation

	now func() time.Time
}

// NewAlertManager creates a manager preloaded with the default thresholds.
func NewAlertManager() *AlertManager {
	m := &AlertManager{
		thresholds: make(map[string]domain.AlertThreshold),
		now:        time.Now,
	}
	for _, t := range defaultThresholds() {
		m.thresholds[t.ID] = t
	}
	return m
}

func defaultThresholds() []domain.AlertThreshold {
	return []domain.AlertThreshold{
		{
			ID:        "default-activation-dropoff",
			Metric:    domain.MetricDropOffRate,
			PageType:  domain.PageActivation,
			Threshold: 0.20,
			Window:    30 * time.Minute,
			Severity:  domain.SeverityHigh,
			Active:    true,
		},
		{
			ID:        "default-agreement-dropoff",
			Metric:    domain.MetricDropOffRate,
			PageType:  domain.PageAgreement,
			Threshold: 0.15,
			Window:    30 * time.Minute,
			Severity:  domain.SeverityHigh,
			Active:    true,
		},
		{
			ID:        "default-overall-conversion",
			Metric:    domain.MetricConversionRate,
			Threshold: 0.50,
			Window:    60 * time.Minute,
			Severity:  domain.SeverityMedium,
			Active:    true,
		},
		{
			ID:        "default-error-rate",
			Metric:    domain.MetricErrorRate,
			Threshold: 0.05,
			Window:    15 * time.Minute,
			Severity:  domain.SeverityCritical,
			Active:    true,
		},
	}
}

// SetThreshold creates or replaces a threshold and returns it with an ID.
func (m *AlertManager) SetThreshold(t domain.AlertThreshold) domain.AlertThreshold {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	m.thresholds[t.ID] = t
	return t
}

// RemoveThreshold deletes a threshold by ID.
func (m *AlertManager) RemoveThreshold(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.thresholds[id]; !ok {
		return ErrThresholdNotFound
	}
	delete(m.thresholds, id)
	return nil
}

// Thresholds returns all configured thresholds, stable by ID.
func (m *AlertManager) Thresholds() []domain.AlertThreshold {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.AlertThreshold, 0, len(m.thresholds))
	for _, t := range m.thresholds {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AcknowledgeAlert marks an alert acknowledged, making its page+metric
// eligible for a new alert on the next violation.
func (m *AlertManager) AcknowledgeAlert(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Acknowledged = true
			return nil
		}
	}
	return ErrAlertNotFound
}

// ActiveAlerts returns unacknowledged alerts, newest first.
func (m *AlertManager) ActiveAlerts() []domain.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Alert
	for _, a := range m.alerts {
		if !a.Acknowledged {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RaisedAt.After(out[j].RaisedAt) })
	return out
}

// ObservePageExit feeds one page-exit sample into the rolling windows.
func (m *AlertManager) ObservePageExit(page domain.PageType, action domain.ExitAction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exits = append(m.exits, exitObservation{at: m.now(), page: page, action: action})
}

// ObserveClosure feeds one session closure into the rolling windows.
func (m *AlertManager) ObserveClosure(s domain.JourneySession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closures = append(m.closures, closureObservation{
		at:       m.now(),
		outcome:  s.FinalOutcome,
		exitPage: s.ExitPage,
	})
}

// CheckThresholds recomputes every active threshold's rolling metric and
// raises alerts for violations. Runs once per processing cycle. Returns the
// alerts raised by this check.
func (m *AlertManager) CheckThresholds() []domain.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.pruneLocked(now)

	var raised []domain.Alert
	for _, t := range m.thresholds {
		if !t.Active {
			continue
		}
		value, samples := m.metricValueLocked(t, now)
		if samples == 0 {
			continue
		}
		if !violated(t, value) {
			continue
		}
		if m.hasRecentUnacknowledgedLocked(t, now) {
			continue
		}

		alert := domain.Alert{
			ID:           uuid.New().String(),
			ThresholdID:  t.ID,
			Metric:       t.Metric,
			PageType:     t.PageType,
			Severity:     t.Severity,
			Message:      alertMessage(t, value),
			CurrentValue: value,
			RaisedAt:     now,
		}
		m.alerts = append(m.alerts, alert)
		raised = append(raised, alert)
		log.Printf("[AlertManager] Raised %s alert: %s", t.Severity, alert.Message)
	}
	return raised
}

// metricValueLocked computes the rolling metric for a threshold, returning
// the value and how many samples backed it.
func (m *AlertManager) metricValueLocked(t domain.AlertThreshold, now time.Time) (float64, int) {
	cutoff := now.Add(-t.Window)

	switch t.Metric {
	case domain.MetricDropOffRate:
		var total, dropped int
		for _, c := range m.closures {
			if c.at.Before(cutoff) {
				continue
			}
			total++
			if c.outcome != domain.OutcomeDroppedOff {
				continue
			}
			if t.PageType == "" || (c.exitPage != nil && *c.exitPage == t.PageType) {
				dropped++
			}
		}
		if total == 0 {
			return 0, 0
		}
		return float64(dropped) / float64(total), total

	case domain.MetricConversionRate:
		var total, completed int
		for _, c := range m.closures {
			if c.at.Before(cutoff) {
				continue
			}
			total++
			if c.outcome == domain.OutcomeCompleted {
				completed++
			}
		}
		if total == 0 {
			return 0, 0
		}
		return float64(completed) / float64(total), total

	case domain.MetricErrorRate:
		var total, errored int
		for _, e := range m.exits {
			if e.at.Before(cutoff) {
				continue
			}
			if t.PageType != "" && e.page != t.PageType {
				continue
			}
			total++
			if e.action == domain.ExitError {
				errored++
			}
		}
		if total == 0 {
			return 0, 0
		}
		return float64(errored) / float64(total), total
	}
	return 0, 0
}

// violated applies the metric's direction: conversion alerts fire when the
// rate falls below the threshold, all others when it rises above.
func violated(t domain.AlertThreshold, value float64) bool {
	if t.Metric == domain.MetricConversionRate {
		return value < t.Threshold
	}
	return value > t.Threshold
}

// ClosureStats reports completed, dropped, and total session closures seen
// within the window ending now.
func (m *AlertManager) ClosureStats(window time.Duration) (completed, dropped, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-window)
	for _, c := range m.closures {
		if c.at.Before(cutoff) {
			continue
		}
		total++
		switch c.outcome {
		case domain.OutcomeCompleted:
			completed++
		case domain.OutcomeDroppedOff:
			dropped++
		}
	}
	return completed, dropped, total
}

func (m *AlertManager) hasRecentUnacknowledgedLocked(t domain.AlertThreshold, now time.Time) bool {
	cutoff := now.Add(-dedupWindow)
	for _, a := range m.alerts {
		if a.Acknowledged {
			continue
		}
		if a.Metric == t.Metric && a.PageType == t.PageType && a.RaisedAt.After(cutoff) {
			return true
		}
	}
	return false
}

func (m *AlertManager) pruneLocked(now time.Time) {
	cutoff := now.Add(-observationRetention)

	exits := m.exits[:0]
	for _, e := range m.exits {
		if !e.at.Before(cutoff) {
			exits = append(exits, e)
		}
	}
	m.exits = exits

	closures := m.closures[:0]
	for _, c := range m.closures {
		if !c.at.Before(cutoff) {
			closures = append(closures, c)
		}
	}
	m.closures = closures
}

func alertMessage(t domain.AlertThreshold, value float64) string {
	scope := "overall"
	if t.PageType != "" {
		scope = string(t.PageType) + " page"
	}
	direction := "exceeds"
	if t.Metric == domain.MetricConversionRate {
		direction = "fell below"
	}
	return fmt.Sprintf("%s %s at %.1f%% %s threshold %.1f%% over %s",
		scope, t.Metric, value*100, direction, t.Threshold*100, t.Window)
}
