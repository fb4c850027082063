package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

type InstanceStepRepository struct {
	q sqlx.ExtContext
}

func NewInstanceStepRepository(q sqlx.ExtContext) *InstanceStepRepository {
	return &InstanceStepRepository{q: q}
}

const stepColumns = ` instance_id, step_number, status, approvers, quorum, escalation_level, activated_at, due_at, resolved_at `

// Save inserts or replaces the activation record of one step.
func (r *InstanceStepRepository) Save(ctx context.Context, s *domain.InstanceStep) error {
	query := `INSERT INTO instance_steps (` + stepColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)` +
		upsertClause(r.q, []string{"instance_id", "step_number"},
			[]string{"status", "approvers", "quorum", "escalation_level", "activated_at", "due_at", "resolved_at"})
	_, err := r.q.ExecContext(ctx, r.q.Rebind(query),
		s.InstanceID, s.StepNumber, s.Status, s.Approvers, s.Quorum, s.EscalationLevel,
		formatDateInDatabase(r.q, s.ActivatedAt), formatDateInDatabaseNull(r.q, s.DueAt),
		formatDateInDatabaseNull(r.q, s.ResolvedAt))
	return classify(err)
}

func (r *InstanceStepRepository) Find(ctx context.Context, instanceID string, stepNumber int) (*domain.InstanceStep, error) {
	query := `SELECT ` + stepColumns + ` FROM instance_steps WHERE instance_id = ? AND step_number = ?`
	var s domain.InstanceStep
	if err := sqlx.GetContext(ctx, r.q, &s, r.q.Rebind(query), instanceID, stepNumber); err != nil {
		return nil, notFound(classify(err), "step %d of instance %s not found", stepNumber, instanceID)
	}
	return &s, nil
}

func (r *InstanceStepRepository) FindAllByInstanceID(ctx context.Context, instanceID string) ([]domain.InstanceStep, error) {
	query := `SELECT ` + stepColumns + ` FROM instance_steps WHERE instance_id = ? ORDER BY step_number ASC`
	out := make([]domain.InstanceStep, 0)
	if err := sqlx.SelectContext(ctx, r.q, &out, r.q.Rebind(query), instanceID); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
