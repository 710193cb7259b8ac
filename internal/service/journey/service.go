package journey

import (
	"context"
	"fmt"
	"log"

	"github.com/clientflow/journey-insights/internal/domain"
)

// Service implements session record business logic. All public methods are
// safe for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
}

// NewService creates a journey record service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a single session record.
func (s *Service) Get(ctx context.Context, id string) (*domain.JourneySession, error) {
	return s.repo.Get(ctx, id)
}

// List returns session records matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.JourneySession, int, error) {
	return s.repo.List(ctx, f)
}

// Save persists a closed session. In-progress sessions are rejected: records
// are immutable analytic snapshots, not live state.
func (s *Service) Save(ctx context.Context, sess *domain.JourneySession) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if !sess.IsClosed() {
		return ErrSessionOpen
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// RecordClosure is the tracker's closure callback: it persists the closed
// session and logs rather than propagates failures, since the tracker cannot
// retry a closure.
func (s *Service) RecordClosure(sess domain.JourneySession) {
	if err := s.Save(context.Background(), &sess); err != nil {
		log.Printf("[journey.Service] Error persisting closed session %s: %v", sess.ID, err)
	}
}

// Population loads the closed sessions for an analysis window: both
// completed and dropped sessions matching the filter, unpaginated.
func (s *Service) Population(ctx context.Context, f ListFilter) ([]domain.JourneySession, error) {
	f.Outcome = ""
	f.Limit = 0
	f.Offset = 0
	sessions, _, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("load analysis population: %w", err)
	}

	closed := sessions[:0]
	for _, sess := range sessions {
		if sess.IsClosed() {
			closed = append(closed, sess)
		}
	}
	return closed, nil
}

// SuccessfulAndFailed splits a window's closed sessions by outcome for the
// pairing engine.
func (s *Service) SuccessfulAndFailed(ctx context.Context, f ListFilter) (successful, failed []domain.JourneySession, err error) {
	population, err := s.Population(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	for _, sess := range population {
		switch sess.FinalOutcome {
		case domain.OutcomeCompleted:
			successful = append(successful, sess)
		case domain.OutcomeDroppedOff:
			failed = append(failed, sess)
		}
	}
	return successful, failed, nil
}
