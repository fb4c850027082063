package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

type ApprovalRepository struct {
	q sqlx.ExtContext
}

func NewApprovalRepository(q sqlx.ExtContext) *ApprovalRepository {
	return &ApprovalRepository{q: q}
}

const approvalColumns = ` id, instance_id, step_number, approver_id, decision, comment, response_seconds,
		after_resolution, on_behalf_of, decided_at `

// Upsert stores the approver's decision, overwriting any earlier one for the same step.
func (r *ApprovalRepository) Upsert(ctx context.Context, a *domain.Approval) error {
	query := `INSERT INTO approvals (instance_id, step_number, approver_id, decision, comment, response_seconds,
		after_resolution, on_behalf_of, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)` +
		upsertClause(r.q, []string{"instance_id", "step_number", "approver_id"},
			[]string{"decision", "comment", "response_seconds", "after_resolution", "on_behalf_of", "decided_at"})
	_, err := r.q.ExecContext(ctx, r.q.Rebind(query),
		a.InstanceID, a.StepNumber, a.ApproverID, a.Decision, a.Comment, a.ResponseSeconds,
		a.AfterResolution, a.OnBehalfOf, formatDateInDatabase(r.q, a.DecidedAt))
	if err != nil {
		return classify(err)
	}
	stored, err := r.Find(ctx, a.InstanceID, a.StepNumber, a.ApproverID)
	if err != nil {
		return err
	}
	a.ID = stored.ID
	return nil
}

// Find returns the decision of one approver, or a NotFound error.
func (r *ApprovalRepository) Find(ctx context.Context, instanceID string, stepNumber int, approverID string) (*domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE instance_id = ? AND step_number = ? AND approver_id = ?`
	var a domain.Approval
	if err := sqlx.GetContext(ctx, r.q, &a, r.q.Rebind(query), instanceID, stepNumber, approverID); err != nil {
		return nil, notFound(classify(err), "no decision by %s on step %d", approverID, stepNumber)
	}
	return &a, nil
}

// FindByStep returns the decisions counted for a step, excluding late ones.
func (r *ApprovalRepository) FindByStep(ctx context.Context, instanceID string, stepNumber int) ([]domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals
		WHERE instance_id = ? AND step_number = ? AND after_resolution = ?
		ORDER BY decided_at ASC, id ASC`
	out := make([]domain.Approval, 0)
	if err := sqlx.SelectContext(ctx, r.q, &out, r.q.Rebind(query), instanceID, stepNumber, false); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (r *ApprovalRepository) FindAllByInstanceID(ctx context.Context, instanceID string) ([]domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE instance_id = ? ORDER BY step_number ASC, decided_at ASC, id ASC`
	out := make([]domain.Approval, 0)
	if err := sqlx.SelectContext(ctx, r.q, &out, r.q.Rebind(query), instanceID); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
