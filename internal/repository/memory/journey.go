// Package memory provides an in-process journey repository used when no
// database is configured. Records live only as long as the process.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/clientflow/journey-insights/internal/domain"
	"github.com/clientflow/journey-insights/internal/service/journey"
)

// JourneyRepo is a map-backed journey.Repository. Safe for concurrent use.
type JourneyRepo struct {
	mu       sync.RWMutex
	sessions map[string]domain.JourneySession
}

// NewJourneyRepo creates an empty in-memory repository.
func NewJourneyRepo() *JourneyRepo {
	return &JourneyRepo{sessions: make(map[string]domain.JourneySession)}
}

// Get returns a single session with its visits.
func (r *JourneyRepo) Get(_ context.Context, id string) (*domain.JourneySession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, journey.ErrNotFound
	}
	cp := copySession(s)
	return &cp, nil
}

// List returns sessions matching the filter, newest first, with the total
// match count before pagination.
func (r *JourneyRepo) List(_ context.Context, f journey.ListFilter) ([]domain.JourneySession, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

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
		out = append(out, copySession(s))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })

	total := len(out)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			out = nil
		} else {
			out = out[f.Offset:]
		}
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, total, nil
}

// Save upserts a session record.
func (r *JourneyRepo) Save(_ context.Context, s *domain.JourneySession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = copySession(*s)
	return nil
}

func copySession(s domain.JourneySession) domain.JourneySession {
	cp := s
	cp.Visits = make([]domain.PageVisit, len(s.Visits))
	copy(cp.Visits, s.Visits)
	return cp
}
