package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

// ExecutorRepository tracks running escalation scheduler processes.
type ExecutorRepository struct {
	q sqlx.ExtContext
}

func NewExecutorRepository(q sqlx.ExtContext) *ExecutorRepository {
	return &ExecutorRepository{q: q}
}

// Save inserts a new executor row and returns its ID.
func (r *ExecutorRepository) Save(ctx context.Context, e *domain.Executor) (int64, error) {
	started := e.Started
	if started.IsZero() {
		started = time.Now().UTC()
	}
	lastActive := e.LastActive
	if lastActive.IsZero() {
		lastActive = started
	}
	id, err := insertReturningID(ctx, r.q, `INSERT INTO executors (name, started, last_active) VALUES (?, ?, ?)`,
		e.Name, formatDateInDatabase(r.q, started), formatDateInDatabase(r.q, lastActive))
	if err != nil {
		return 0, err
	}
	e.ID = id
	e.Started = started
	e.LastActive = lastActive
	return id, nil
}

// UpdateLastActive sets last_active for the executor id to the provided timestamp.
func (r *ExecutorRepository) UpdateLastActive(ctx context.Context, id int64, ts time.Time) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`UPDATE executors SET last_active = ? WHERE id = ?`),
		formatDateInDatabase(r.q, ts), id)
	return classify(err)
}

func (r *ExecutorRepository) GetExecutorsByLastActive(ctx context.Context, limit int) ([]*domain.Executor, error) {
	query := `SELECT id, name, started, last_active FROM executors ORDER BY last_active DESC` + buildLimitsAndOffset(limit, 0)
	var executors []*domain.Executor
	if err := sqlx.SelectContext(ctx, r.q, &executors, query); err != nil {
		return nil, classify(err)
	}
	return executors, nil
}
