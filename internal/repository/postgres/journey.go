// Package postgres implements the journey service repository against
// PostgreSQL using lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/clientflow/journey-insights/internal/domain"
	"github.com/clientflow/journey-insights/internal/service/journey"
)

// JourneyRepo implements journey.Repository against PostgreSQL.
type JourneyRepo struct{ db *sql.DB }

// NewJourneyRepo creates a Postgres-backed journey session repository.
func NewJourneyRepo(db *sql.DB) *JourneyRepo { return &JourneyRepo{db: db} }

func (r *JourneyRepo) Get(ctx context.Context, id string) (*domain.JourneySession, error) {
	s := &domain.JourneySession{}
	var endedAt sql.NullTime
	var exitPage, exitTrigger sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, client_id, started_at, ended_at, total_duration,
		       final_outcome, exit_page, exit_trigger
		FROM journey_sessions
		WHERE id = $1
	`, id).Scan(
		&s.ID, &s.ClientID, &s.StartedAt, &endedAt, &s.TotalDuration,
		&s.FinalOutcome, &exitPage, &exitTrigger,
	)
	if err == sql.ErrNoRows {
		return nil, journey.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	applyNullable(s, endedAt, exitPage, exitTrigger)

	visits, err := r.loadVisits(ctx, []string{s.ID})
	if err != nil {
		return nil, err
	}
	s.Visits = visits[s.ID]
	return s, nil
}

func (r *JourneyRepo) List(ctx context.Context, f journey.ListFilter) ([]domain.JourneySession, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	idx := 1
	add := func(clause string, val interface{}) {
		where += fmt.Sprintf(" AND %s $%d", clause, idx)
		args = append(args, val)
		idx++
	}

	if !f.From.IsZero() {
		add("started_at >=", f.From)
	}
	if !f.To.IsZero() {
		add("started_at <=", f.To)
	}
	if f.Outcome != "" {
		add("final_outcome =", string(f.Outcome))
	}
	if f.ClientID != "" {
		add("client_id =", f.ClientID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM journey_sessions "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	q := `
		SELECT id, client_id, started_at, ended_at, total_duration,
		       final_outcome, exit_page, exit_trigger
		FROM journey_sessions ` + where + " ORDER BY started_at DESC"
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.JourneySession
	var ids []string
	for rows.Next() {
		var s domain.JourneySession
		var endedAt sql.NullTime
		var exitPage, exitTrigger sql.NullString
		if err := rows.Scan(
			&s.ID, &s.ClientID, &s.StartedAt, &endedAt, &s.TotalDuration,
			&s.FinalOutcome, &exitPage, &exitTrigger,
		); err != nil {
			return nil, 0, fmt.Errorf("scan session: %w", err)
		}
		applyNullable(&s, endedAt, exitPage, exitTrigger)
		out = append(out, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	if len(ids) > 0 {
		visits, err := r.loadVisits(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		for i := range out {
			out[i].Visits = visits[out[i].ID]
		}
	}
	return out, total, nil
}

// Save upserts the session row and replaces its visits in one transaction.
func (r *JourneyRepo) Save(ctx context.Context, s *domain.JourneySession) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	var exitPage, exitTrigger interface{}
	if s.ExitPage != nil {
		exitPage = string(*s.ExitPage)
	}
	if s.ExitTrigger != nil {
		exitTrigger = string(*s.ExitTrigger)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO journey_sessions
			(id, client_id, started_at, ended_at, total_duration,
			 final_outcome, exit_page, exit_trigger)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			total_duration = EXCLUDED.total_duration,
			final_outcome = EXCLUDED.final_outcome,
			exit_page = EXCLUDED.exit_page,
			exit_trigger = EXCLUDED.exit_trigger
	`, s.ID, s.ClientID, s.StartedAt, s.EndedAt, s.TotalDuration,
		string(s.FinalOutcome), exitPage, exitTrigger)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM journey_page_visits WHERE session_id = $1`, s.ID); err != nil {
		return fmt.Errorf("clear visits: %w", err)
	}

	for i, v := range s.Visits {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO journey_page_visits
				(id, session_id, position, page_type, content_variant_id,
				 entered_at, exited_at, time_on_page, exit_action,
				 scroll_depth, interaction_count, engagement_score)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, v.ID, s.ID, i, string(v.PageType), v.ContentVariantID,
			v.EnteredAt, v.ExitedAt, v.TimeOnPage, string(v.ExitAction),
			v.ScrollDepth, v.InteractionCount, v.EngagementScore)
		if err != nil {
			return fmt.Errorf("insert visit %s: %w", v.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// loadVisits fetches visits for the given session IDs in visit order.
func (r *JourneyRepo) loadVisits(ctx context.Context, sessionIDs []string) (map[string][]domain.PageVisit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, page_type, content_variant_id,
		       entered_at, exited_at, time_on_page, exit_action,
		       scroll_depth, interaction_count, engagement_score
		FROM journey_page_visits
		WHERE session_id = ANY($1)
		ORDER BY session_id, position
	`, pq.Array(sessionIDs))
	if err != nil {
		return nil, fmt.Errorf("load visits: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.PageVisit)
	for rows.Next() {
		var v domain.PageVisit
		var exitedAt sql.NullTime
		var variant, action sql.NullString
		if err := rows.Scan(
			&v.ID, &v.SessionID, &v.PageType, &variant,
			&v.EnteredAt, &exitedAt, &v.TimeOnPage, &action,
			&v.ScrollDepth, &v.InteractionCount, &v.EngagementScore,
		); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		if exitedAt.Valid {
			t := exitedAt.Time
			v.ExitedAt = &t
		}
		v.ContentVariantID = variant.String
		v.ExitAction = domain.ExitAction(action.String)
		out[v.SessionID] = append(out[v.SessionID], v)
	}
	return out, rows.Err()
}

func applyNullable(s *domain.JourneySession, endedAt sql.NullTime, exitPage, exitTrigger sql.NullString) {
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	if exitPage.Valid {
		p := domain.PageType(exitPage.String)
		s.ExitPage = &p
	}
	if exitTrigger.Valid {
		tr := domain.ExitTrigger(exitTrigger.String)
		s.ExitTrigger = &tr
	}
}
