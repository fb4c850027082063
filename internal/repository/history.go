package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

// HistoryRepository is append only: there is no update or delete.
type HistoryRepository struct {
	q sqlx.ExtContext
}

func NewHistoryRepository(q sqlx.ExtContext) *HistoryRepository {
	return &HistoryRepository{q: q}
}

const historyColumns = ` id, instance_id, tenant_id, definition_id, sequence, action, step_number, actor_id,
		from_status, to_status, details, created `

func (r *HistoryRepository) Save(ctx context.Context, h *domain.HistoryEntry) (int64, error) {
	base := `INSERT INTO history (instance_id, tenant_id, definition_id, sequence, action, step_number, actor_id,
		from_status, to_status, details, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := insertReturningID(ctx, r.q, base,
		h.InstanceID, h.TenantID, h.DefinitionID, h.Sequence, h.Action, h.StepNumber, h.ActorID,
		h.FromStatus, h.ToStatus, h.Details, formatDateInDatabase(r.q, h.Created))
	if isUniqueViolation(err) {
		return 0, ErrStaleVersion
	}
	if err != nil {
		return 0, err
	}
	h.ID = id
	return id, nil
}

// FindAllByInstanceID returns the entries in commit order.
func (r *HistoryRepository) FindAllByInstanceID(ctx context.Context, instanceID string) ([]domain.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM history WHERE instance_id = ? ORDER BY sequence ASC`
	out := make([]domain.HistoryEntry, 0)
	if err := sqlx.SelectContext(ctx, r.q, &out, r.q.Rebind(query), instanceID); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// LastSequence returns the highest sequence written for the instance, 0 if none.
func (r *HistoryRepository) LastSequence(ctx context.Context, instanceID string) (int64, error) {
	var last int64
	err := sqlx.GetContext(ctx, r.q, &last,
		r.q.Rebind(`SELECT COALESCE(MAX(sequence), 0) FROM history WHERE instance_id = ?`), instanceID)
	return last, classify(err)
}
