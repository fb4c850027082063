package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/models"
)

type DefinitionRepository struct {
	q     sqlx.ExtContext
	clock core.Clock
}

func NewDefinitionRepository(q sqlx.ExtContext, clock core.Clock) *DefinitionRepository {
	return &DefinitionRepository{q: q, clock: clock}
}

const definitionColumns = ` d.id, d.tenant_id, d.name, d.description, d.active, v.version,
		v.execution_mode, v.approval_policy, v.auto_approve_threshold, v.auto_reject_threshold,
		v.threshold_type, v.default_step_timeout, v.escalation_timeout, v.sla_target,
		v.business_hours_only, v.steps, d.created, d.updated `

// Insert writes the header and version 1 of a new definition.
func (r *DefinitionRepository) Insert(ctx context.Context, def *domain.WorkflowDefinition) error {
	query := `INSERT INTO workflow_definitions (id, tenant_id, name, description, active, current_version, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, r.q.Rebind(query),
		def.ID, def.TenantID, def.Name, def.Description, def.Active, def.Version,
		formatDateInDatabase(r.q, def.Created), formatDateInDatabase(r.q, def.Updated))
	if err != nil {
		return classify(err)
	}
	return r.InsertVersion(ctx, def)
}

// InsertVersion stores the immutable body of def.Version.
func (r *DefinitionRepository) InsertVersion(ctx context.Context, def *domain.WorkflowDefinition) error {
	query := `INSERT INTO workflow_definition_versions (definition_id, version, execution_mode, approval_policy,
		auto_approve_threshold, auto_reject_threshold, threshold_type, default_step_timeout, escalation_timeout,
		sla_target, business_hours_only, steps, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.q.ExecContext(ctx, r.q.Rebind(query),
		def.ID, def.Version, def.ExecutionMode, def.ApprovalPolicy,
		def.AutoApproveThreshold, def.AutoRejectThreshold, def.ThresholdType,
		def.DefaultStepTimeout, def.EscalationTimeout, def.SLATarget,
		def.BusinessHoursOnly, def.Steps, formatDateInDatabase(r.q, def.Updated))
	return classify(err)
}

// UpdateHeader writes the mutable columns and moves current_version.
func (r *DefinitionRepository) UpdateHeader(ctx context.Context, def *domain.WorkflowDefinition) error {
	query := `UPDATE workflow_definitions
		SET name = ?, description = ?, active = ?, current_version = ?, updated = ?
		WHERE id = ?`
	res, err := r.q.ExecContext(ctx, r.q.Rebind(query),
		def.Name, def.Description, def.Active, def.Version, formatDateInDatabase(r.q, def.Updated), def.ID)
	if err != nil {
		return classify(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.NotFoundf("definition %s not found", def.ID)
	}
	return nil
}

// FindByID returns the definition joined with its current version.
func (r *DefinitionRepository) FindByID(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + `
		FROM workflow_definitions d
		JOIN workflow_definition_versions v ON v.definition_id = d.id AND v.version = d.current_version
		WHERE d.id = ?`
	var def domain.WorkflowDefinition
	if err := sqlx.GetContext(ctx, r.q, &def, r.q.Rebind(query), id); err != nil {
		return nil, notFound(classify(err), "definition %s not found", id)
	}
	return &def, nil
}

// FindVersion returns a specific, possibly superseded, version.
func (r *DefinitionRepository) FindVersion(ctx context.Context, id string, version int) (*domain.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + `
		FROM workflow_definitions d
		JOIN workflow_definition_versions v ON v.definition_id = d.id
		WHERE d.id = ? AND v.version = ?`
	var def domain.WorkflowDefinition
	if err := sqlx.GetContext(ctx, r.q, &def, r.q.Rebind(query), id, version); err != nil {
		return nil, notFound(classify(err), "definition %s version %d not found", id, version)
	}
	return &def, nil
}

func (r *DefinitionRepository) Search(ctx context.Context, f models.DefinitionFilter) ([]domain.WorkflowDefinition, error) {
	var where []string
	var args []any
	where = append(where, "d.tenant_id = ?")
	args = append(args, f.TenantID)
	if f.ActiveOnly {
		where = append(where, "d.active = ?")
		args = append(args, true)
	}
	if f.Name != "" {
		where = append(where, "LOWER(d.name) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Name)+"%")
	}
	query := `SELECT ` + definitionColumns + `
		FROM workflow_definitions d
		JOIN workflow_definition_versions v ON v.definition_id = d.id AND v.version = d.current_version
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY d.name ASC, d.id ASC` + buildLimitsAndOffset(f.Limit, f.Offset)

	defs := make([]domain.WorkflowDefinition, 0)
	if err := sqlx.SelectContext(ctx, r.q, &defs, r.q.Rebind(query), args...); err != nil {
		return nil, classify(err)
	}
	return defs, nil
}

// CountInstances reports how many instances reference the definition, in any status.
func (r *DefinitionRepository) CountInstances(ctx context.Context, id string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n, r.q.Rebind(`SELECT COUNT(*) FROM workflow_instances WHERE definition_id = ?`), id)
	return n, classify(err)
}

func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM workflow_definition_versions WHERE definition_id = ?`), id); err != nil {
		return classify(err)
	}
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM workflow_definitions WHERE id = ?`), id)
	if err != nil {
		return classify(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.NotFoundf("definition %s not found", id)
	}
	return nil
}
