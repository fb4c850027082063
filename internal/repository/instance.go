package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/models"
)

// ErrStaleVersion is returned by UpdateCAS when another writer committed first.
var ErrStaleVersion = errors.New("instance version is stale")

type InstanceRepository struct {
	q     sqlx.ExtContext
	clock core.Clock
}

func NewInstanceRepository(q sqlx.ExtContext, clock core.Clock) *InstanceRepository {
	return &InstanceRepository{q: q, clock: clock}
}

const ALL_INSTANCE_COLUMNS = ` id, tenant_id, definition_id, definition_version, title, description,
		reference_id, reference_type, status, current_step, total_steps, progress, context_data,
		priority, current_approvers, created_by, started_at, step_activated_at, due_at, completed_at,
		final_decision, escalation_level, version, created, modified `

func (r *InstanceRepository) FindByID(ctx context.Context, id string) (*domain.WorkflowInstance, error) {
	query := `SELECT ` + ALL_INSTANCE_COLUMNS + ` FROM workflow_instances WHERE id = ?`
	var inst domain.WorkflowInstance
	if err := sqlx.GetContext(ctx, r.q, &inst, r.q.Rebind(query), id); err != nil {
		return nil, notFound(classify(err), "instance %s not found", id)
	}
	return &inst, nil
}

func (r *InstanceRepository) Insert(ctx context.Context, inst *domain.WorkflowInstance) error {
	query := `INSERT INTO workflow_instances (` + ALL_INSTANCE_COLUMNS + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, r.q.Rebind(query),
		inst.ID, inst.TenantID, inst.DefinitionID, inst.DefinitionVersion, inst.Title, inst.Description,
		inst.ReferenceID, inst.ReferenceType, inst.Status, inst.CurrentStep, inst.TotalSteps, inst.Progress,
		inst.ContextData, inst.Priority, inst.CurrentApprovers, inst.CreatedBy,
		formatDateInDatabase(r.q, inst.StartedAt), formatDateInDatabaseNull(r.q, inst.StepActivatedAt),
		formatDateInDatabaseNull(r.q, inst.DueAt), formatDateInDatabaseNull(r.q, inst.CompletedAt),
		inst.FinalDecision, inst.EscalationLevel, inst.Version,
		formatDateInDatabase(r.q, inst.Created), formatDateInDatabase(r.q, inst.Modified))
	return classify(err)
}

// UpdateCAS writes the mutable state of inst only if the stored version still
// equals expectedVersion. inst.Version must already hold the new version.
func (r *InstanceRepository) UpdateCAS(ctx context.Context, inst *domain.WorkflowInstance, expectedVersion int64) error {
	query := `UPDATE workflow_instances
		SET status = ?, current_step = ?, progress = ?, current_approvers = ?, step_activated_at = ?,
		    due_at = ?, completed_at = ?, final_decision = ?, escalation_level = ?, version = ?, modified = ?
		WHERE id = ? AND version = ?`
	res, err := r.q.ExecContext(ctx, r.q.Rebind(query),
		inst.Status, inst.CurrentStep, inst.Progress, inst.CurrentApprovers,
		formatDateInDatabaseNull(r.q, inst.StepActivatedAt), formatDateInDatabaseNull(r.q, inst.DueAt),
		formatDateInDatabaseNull(r.q, inst.CompletedAt), inst.FinalDecision, inst.EscalationLevel,
		inst.Version, formatDateInDatabase(r.q, inst.Modified), inst.ID, expectedVersion)
	if err != nil {
		return classify(err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if rowsAffected != 1 {
		return ErrStaleVersion
	}
	return nil
}

func (r *InstanceRepository) Search(ctx context.Context, f models.InstanceFilter) ([]domain.WorkflowInstance, error) {
	where, args := buildInstanceWhereClause(f)
	query := `SELECT ` + ALL_INSTANCE_COLUMNS + ` FROM workflow_instances` + where +
		` ORDER BY created DESC, id ASC` + buildLimitsAndOffset(f.Limit, f.Offset)
	out := make([]domain.WorkflowInstance, 0)
	if err := sqlx.SelectContext(ctx, r.q, &out, r.q.Rebind(query), args...); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func buildInstanceWhereClause(f models.InstanceFilter) (string, []any) {
	var parts []string
	var args []any
	if f.TenantID != "" {
		parts = append(parts, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.Status != "" {
		parts = append(parts, "status = ?")
		args = append(args, f.Status)
	}
	if f.CreatedBy != "" {
		parts = append(parts, "created_by = ?")
		args = append(args, f.CreatedBy)
	}
	if f.Priority != "" {
		parts = append(parts, "priority = ?")
		args = append(args, f.Priority)
	}
	if f.DefinitionID != "" {
		parts = append(parts, "definition_id = ?")
		args = append(args, f.DefinitionID)
	}
	if f.AssignedTo != "" {
		// current_approvers is a JSON array of quoted ids
		parts = append(parts, "current_approvers LIKE ? ESCAPE '!'")
		args = append(args, "%"+jsonElementPattern(f.AssignedTo)+"%")
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// jsonElementPattern encodes id the way StringList stores it and escapes the
// LIKE wildcards with '!', which every dialect accepts as ESCAPE character.
func jsonElementPattern(id string) string {
	b, err := json.Marshal(id)
	if err != nil {
		b = []byte(`"` + id + `"`)
	}
	return likeEscaper.Replace(string(b))
}

// FindOverdue returns in-progress instances whose current step deadline has passed.
func (r *InstanceRepository) FindOverdue(ctx context.Context, now time.Time, limit int) ([]domain.WorkflowInstance, error) {
	query := `SELECT ` + ALL_INSTANCE_COLUMNS + ` FROM workflow_instances
		WHERE status = ? AND due_at IS NOT NULL AND due_at <= ?
		ORDER BY due_at ASC` + buildLimitsAndOffset(limit, 0)
	out := make([]domain.WorkflowInstance, 0)
	err := sqlx.SelectContext(ctx, r.q, &out, r.q.Rebind(query), domain.StatusInProgress, formatDateInDatabase(r.q, now))
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// FindModifiedSince feeds the stats reconciler.
func (r *InstanceRepository) FindModifiedSince(ctx context.Context, since time.Time, limit int) ([]domain.WorkflowInstance, error) {
	query := `SELECT ` + ALL_INSTANCE_COLUMNS + ` FROM workflow_instances
		WHERE modified >= ?
		ORDER BY modified ASC` + buildLimitsAndOffset(limit, 0)
	out := make([]domain.WorkflowInstance, 0)
	if err := sqlx.SelectContext(ctx, r.q, &out, r.q.Rebind(query), formatDateInDatabase(r.q, since)); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
