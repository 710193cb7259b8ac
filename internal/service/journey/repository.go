package journey

import (
	"context"
	"time"

	"github.com/clientflow/journey-insights/internal/domain"
)

// Repository defines the data access contract for journey session records.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single session with its visits. Returns ErrNotFound if
	// it doesn't exist.
	Get(ctx context.Context, id string) (*domain.JourneySession, error)

	// List returns sessions matching the given filter, ordered by
	// started_at DESC, with the total match count.
	List(ctx context.Context, f ListFilter) ([]domain.JourneySession, int, error)

	// Save upserts a closed session and its visits.
	Save(ctx context.Context, s *domain.JourneySession) error
}

// ListFilter controls filtering and pagination for session lists.
// Zero-value fields are not applied.
type ListFilter struct {
	From     time.Time
	To       time.Time
	Outcome  domain.SessionOutcome
	ClientID string
	Limit    int
	Offset   int
}
