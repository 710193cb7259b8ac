// Package session maintains the authoritative state of in-progress journey
// sessions: page entries and exits, engagement scoring, outcome inference,
// and idle-timeout closure via a periodic sweep.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clientflow/journey-insights/internal/domain"
)

// Sentinel errors for the tracker.
var (
	ErrSessionNotFound = errors.New("session: session not found")
	ErrSessionClosed   = errors.New("session: session already closed")
	ErrVisitNotFound   = errors.New("session: visit not found")
	ErrInvalidPage     = errors.New("session: invalid page type")
)

const (
	defaultIdleTimeout   = 30 * time.Minute
	defaultSweepInterval = 5 * time.Minute
)

// EngagementSample carries late-arriving scroll/interaction counts delivered
// with a page-exit event.
type EngagementSample struct {
	ScrollDepth      float64
	InteractionCount int
}

// CloseFunc is invoked with an immutable copy of every session the tracker
// closes, regardless of how the closure was triggered.
type CloseFunc func(domain.JourneySession)

// Tracker owns the registry of active sessions. It is the only component
// that mutates session state; all other engines receive read-only snapshots.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*domain.JourneySession

	idleTimeout   time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	onClose       CloseFunc

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithIdleTimeout overrides the default 30-minute idle timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.idleTimeout = d }
}

// WithSweepInterval overrides the default 5-minute idle sweep interval.
func WithSweepInterval(d time.Duration) Option {
	return func(t *Tracker) { t.sweepInterval = d }
}

// WithClock injects the time source, so tests can advance a virtual clock
// and invoke the sweep deterministically.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithCloseFunc registers the callback receiving closed sessions.
func WithCloseFunc(fn CloseFunc) Option {
	return func(t *Tracker) { t.onClose = fn }
}

// NewTracker creates a session tracker. Call Start to run the idle sweep
// loop, or drive SweepIdle directly in tests.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		sessions:      make(map[string]*domain.JourneySession),
		idleTimeout:   defaultIdleTimeout,
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the periodic idle sweep loop.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.ctx, t.cancel = context.WithCancel(context.Background())
	ctx := t.ctx
	t.wg.Add(1)
	t.mu.Unlock()

	log.Printf("[SessionTracker] Starting idle sweep every %v (timeout %v)", t.sweepInterval, t.idleTimeout)

	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := t.SweepIdle(); n > 0 {
					log.Printf("[SessionTracker] Idle sweep closed %d sessions", n)
				}
			}
		}
	}()
}

// Stop terminates the sweep loop. The mutex is released before waiting so an
// in-flight sweep can finish acquiring it.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	cancel := t.cancel
	t.mu.Unlock()

	cancel()
	t.wg.Wait()
	log.Println("[SessionTracker] Stopped")
}

// CreateSession starts a new in-progress session for the client and arms its
// idle deadline.
func (t *Tracker) CreateSession(clientID string) (domain.JourneySession, error) {
	now := t.now()
	s := &domain.JourneySession{
		ID:           uuid.New().String(),
		ClientID:     clientID,
		StartedAt:    now,
		FinalOutcome: domain.OutcomeInProgress,
		IdleDeadline: now.Add(t.idleTimeout),
	}

	t.mu.Lock()
	t.sessions[s.ID] = s
	t.mu.Unlock()

	return copySession(s), nil
}

// RecordPageEntry opens a visit on the given page. A still-open prior visit
// is implicitly closed with exit action next_page first, preserving the
// single-open-visit invariant. The idle deadline is re-armed.
func (t *Tracker) RecordPageEntry(sessionID string, page domain.PageType, contentVariantID string) (domain.PageVisit, error) {
	if !domain.IsValidPageType(page) {
		return domain.PageVisit{}, ErrInvalidPage
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return domain.PageVisit{}, ErrSessionNotFound
	}
	if s.IsClosed() {
		return domain.PageVisit{}, ErrSessionClosed
	}

	now := t.now()
	if open := s.CurrentVisit(); open != nil {
		t.closeVisit(open, now, domain.ExitNextPage, nil)
	}

	visit := domain.PageVisit{
		ID:               uuid.New().String(),
		SessionID:        s.ID,
		PageType:         page,
		ContentVariantID: contentVariantID,
		EnteredAt:        now,
	}
	s.Visits = append(s.Visits, visit)
	s.IdleDeadline = now.Add(t.idleTimeout)

	return visit, nil
}

// RecordPageExit closes the visit: derives time-on-page, merges any
// late-arriving engagement sample, and computes the engagement score. Exit
// actions close, timeout, and error also close the whole session.
func (t *Tracker) RecordPageExit(sessionID, visitID string, action domain.ExitAction, sample *EngagementSample) error {
	t.mu.Lock()

	s, ok := t.sessions[sessionID]
	if !ok {
		t.mu.Unlock()
		return ErrSessionNotFound
	}
	if s.IsClosed() {
		t.mu.Unlock()
		return ErrSessionClosed
	}

	var visit *domain.PageVisit
	for i := range s.Visits {
		if s.Visits[i].ID == visitID {
			visit = &s.Visits[i]
			break
		}
	}
	if visit == nil {
		t.mu.Unlock()
		return ErrVisitNotFound
	}

	now := t.now()
	t.closeVisit(visit, now, action, sample)
	s.IdleDeadline = now.Add(t.idleTimeout)

	terminal := action == domain.ExitClose || action == domain.ExitTimeout || action == domain.ExitError
	var closed *domain.JourneySession
	if terminal {
		closed = t.closeLocked(s, nil, nil)
	}
	t.mu.Unlock()

	if closed != nil {
		t.notifyClosed(closed)
	}
	return nil
}

// CloseSession closes the session, inferring outcome and trigger when they
// are not supplied. A still-open current visit is closed with exit action
// timeout first so the closed session satisfies the all-visits-closed
// invariant.
func (t *Tracker) CloseSession(sessionID string, trigger *domain.ExitTrigger, outcome *domain.SessionOutcome) error {
	t.mu.Lock()

	s, ok := t.sessions[sessionID]
	if !ok {
		t.mu.Unlock()
		return ErrSessionNotFound
	}
	if s.IsClosed() {
		t.mu.Unlock()
		return ErrSessionClosed
	}

	closed := t.closeLocked(s, trigger, outcome)
	t.mu.Unlock()

	t.notifyClosed(closed)
	return nil
}

// closeLocked finalizes the session under the tracker lock and removes it
// from the registry. Returns the closed record.
func (t *Tracker) closeLocked(s *domain.JourneySession, trigger *domain.ExitTrigger, outcome *domain.SessionOutcome) *domain.JourneySession {
	now := t.now()

	if open := s.CurrentVisit(); open != nil {
		t.closeVisit(open, now, domain.ExitTimeout, nil)
	}

	end := now
	s.EndedAt = &end
	s.TotalDuration = end.Sub(s.StartedAt).Seconds()
	s.IdleDeadline = time.Time{}

	if outcome != nil {
		s.FinalOutcome = *outcome
	} else {
		s.FinalOutcome = inferOutcome(s)
	}

	if last := s.LastVisit(); last != nil {
		p := last.PageType
		s.ExitPage = &p
	}

	if s.FinalOutcome == domain.OutcomeDroppedOff {
		if trigger != nil {
			s.ExitTrigger = trigger
		} else {
			tr := inferTrigger(s)
			s.ExitTrigger = &tr
		}
	}

	delete(t.sessions, s.ID)
	return s
}

func (t *Tracker) notifyClosed(s *domain.JourneySession) {
	if t.onClose == nil {
		return
	}
	t.onClose(copySession(s))
}

// closeVisit finalizes a single visit: exit time, time-on-page, merged
// engagement counters, and the weighted engagement score.
func (t *Tracker) closeVisit(v *domain.PageVisit, now time.Time, action domain.ExitAction, sample *EngagementSample) {
	exited := now
	v.ExitedAt = &exited
	v.TimeOnPage = exited.Sub(v.EnteredAt).Seconds()
	v.ExitAction = action

	if sample != nil {
		if sample.ScrollDepth > v.ScrollDepth {
			v.ScrollDepth = sample.ScrollDepth
		}
		if sample.InteractionCount > v.InteractionCount {
			v.InteractionCount = sample.InteractionCount
		}
	}
	v.EngagementScore = ScoreEngagement(v.PageType, v.TimeOnPage, v.ScrollDepth, v.InteractionCount)
}

// RecordEngagement merges a mid-visit engagement sample into the open visit
// and re-arms the idle deadline.
func (t *Tracker) RecordEngagement(sessionID string, sample EngagementSample) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.IsClosed() {
		return ErrSessionClosed
	}

	open := s.CurrentVisit()
	if open == nil {
		return ErrVisitNotFound
	}
	if sample.ScrollDepth > open.ScrollDepth {
		open.ScrollDepth = sample.ScrollDepth
	}
	if sample.InteractionCount > open.InteractionCount {
		open.InteractionCount = sample.InteractionCount
	}
	s.IdleDeadline = t.now().Add(t.idleTimeout)
	return nil
}

// SweepIdle force-closes every session whose idle deadline has passed, as
// dropped_off with trigger time_based. Returns the number closed.
func (t *Tracker) SweepIdle() int {
	now := t.now()

	t.mu.Lock()
	var expired []*domain.JourneySession
	for _, s := range t.sessions {
		if !s.IdleDeadline.IsZero() && now.After(s.IdleDeadline) {
			expired = append(expired, s)
		}
	}

	trigger := domain.TriggerTimeBased
	outcome := domain.OutcomeDroppedOff
	closed := make([]*domain.JourneySession, 0, len(expired))
	for _, s := range expired {
		closed = append(closed, t.closeLocked(s, &trigger, &outcome))
	}
	t.mu.Unlock()

	for _, s := range closed {
		t.notifyClosed(s)
	}
	return len(closed)
}

// ActiveCount returns the number of in-progress sessions.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Snapshot returns a read-only copy of an active session.
func (t *Tracker) Snapshot(sessionID string) (domain.JourneySession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return domain.JourneySession{}, ErrSessionNotFound
	}
	return copySession(s), nil
}

// inferOutcome applies the closure inference rule: completed when the
// visited page types cover the whole funnel, otherwise dropped_off.
func inferOutcome(s *domain.JourneySession) domain.SessionOutcome {
	if s.VisitedFullFunnel() {
		return domain.OutcomeCompleted
	}
	return domain.OutcomeDroppedOff
}

// inferTrigger classifies why the session dropped, from its final visit:
// content_based for a quick skim (under 5s dwell or under 20% scroll),
// time_based for a stall (over 600s dwell), unknown otherwise.
func inferTrigger(s *domain.JourneySession) domain.ExitTrigger {
	last := s.LastVisit()
	if last == nil {
		return domain.TriggerUnknown
	}
	if last.ExitAction == domain.ExitError {
		return domain.TriggerTechnical
	}
	if last.TimeOnPage < 5 || last.ScrollDepth < 20 {
		return domain.TriggerContentBased
	}
	if last.TimeOnPage > 600 {
		return domain.TriggerTimeBased
	}
	return domain.TriggerUnknown
}

func copySession(s *domain.JourneySession) domain.JourneySession {
	cp := *s
	cp.Visits = make([]domain.PageVisit, len(s.Visits))
	copy(cp.Visits, s.Visits)
	return cp
}
