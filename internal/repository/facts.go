package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

// FactRepository persists the stats read model. Rows are derived data and
// may be rebuilt from instances and approvals at any time.
type FactRepository struct {
	q sqlx.ExtContext
}

func NewFactRepository(q sqlx.ExtContext) *FactRepository {
	return &FactRepository{q: q}
}

// UpsertInstanceFact replaces the fact unless a newer sequence is already
// stored. The check and the write are a single statement.
func (r *FactRepository) UpsertInstanceFact(ctx context.Context, f *domain.InstanceFact) error {
	query := `INSERT INTO stats_instance_facts (instance_id, tenant_id, definition_id, status, started_at,
		completed_at, duration_seconds, sla_met, last_sequence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)` +
		upsertIfNewerClause(r.q, "stats_instance_facts", []string{"instance_id"},
			[]string{"status", "completed_at", "duration_seconds", "sla_met", "last_sequence"}, "last_sequence")
	_, err := r.q.ExecContext(ctx, r.q.Rebind(query),
		f.InstanceID, f.TenantID, f.DefinitionID, f.Status, formatDateInDatabase(r.q, f.StartedAt),
		formatDateInDatabaseNull(r.q, f.CompletedAt), f.DurationSeconds, f.SLAMet, f.LastSequence)
	return classify(err)
}

func (r *FactRepository) UpsertResponseFact(ctx context.Context, f *domain.ResponseFact) error {
	query := `INSERT INTO stats_response_facts (instance_id, step_number, approver_id, tenant_id, definition_id,
		response_seconds, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)` +
		upsertClause(r.q, []string{"instance_id", "step_number", "approver_id"},
			[]string{"response_seconds", "decided_at"})
	_, err := r.q.ExecContext(ctx, r.q.Rebind(query),
		f.InstanceID, f.StepNumber, f.ApproverID, f.TenantID, f.DefinitionID, f.ResponseSeconds,
		formatDateInDatabase(r.q, f.DecidedAt))
	return classify(err)
}

// InstanceAggregate is the per-status rollup of instance facts.
type InstanceAggregate struct {
	Total       int      `db:"total"`
	Pending     int      `db:"pending"`
	InProgress  int      `db:"in_progress"`
	Approved    int      `db:"approved"`
	Rejected    int      `db:"rejected"`
	Cancelled   int      `db:"cancelled"`
	Expired     int      `db:"expired"`
	AvgDuration *float64 `db:"avg_duration"`
	SLAMeasured int      `db:"sla_measured"`
	SLAMet      int      `db:"sla_met"`
}

func (r *FactRepository) AggregateInstances(ctx context.Context, tenantID string, definitionID string, since time.Time) (*InstanceAggregate, error) {
	query := `SELECT
		COUNT(*) AS total,
		COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending,
		COALESCE(SUM(CASE WHEN status = 'in_progress' THEN 1 ELSE 0 END), 0) AS in_progress,
		COALESCE(SUM(CASE WHEN status = 'approved' THEN 1 ELSE 0 END), 0) AS approved,
		COALESCE(SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END), 0) AS rejected,
		COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0) AS cancelled,
		COALESCE(SUM(CASE WHEN status = 'expired' THEN 1 ELSE 0 END), 0) AS expired,
		AVG(CASE WHEN status IN ('approved', 'rejected') THEN duration_seconds END) AS avg_duration,
		COALESCE(SUM(CASE WHEN sla_met IS NOT NULL THEN 1 ELSE 0 END), 0) AS sla_measured,
		COALESCE(SUM(CASE WHEN sla_met = ? THEN 1 ELSE 0 END), 0) AS sla_met
		FROM stats_instance_facts
		WHERE tenant_id = ? AND started_at >= ?`
	args := []any{true, tenantID, formatDateInDatabase(r.q, since)}
	if definitionID != "" {
		query += ` AND definition_id = ?`
		args = append(args, definitionID)
	}
	var agg InstanceAggregate
	if err := sqlx.GetContext(ctx, r.q, &agg, r.q.Rebind(query), args...); err != nil {
		return nil, classify(err)
	}
	return &agg, nil
}

func (r *FactRepository) AggregateResponses(ctx context.Context, tenantID string, definitionID string, since time.Time) ([]domain.ApproverResponse, error) {
	query := `SELECT approver_id, COUNT(*) AS decisions, AVG(response_seconds) / 3600.0 AS avg_response_hours
		FROM stats_response_facts
		WHERE tenant_id = ? AND decided_at >= ?`
	args := []any{tenantID, formatDateInDatabase(r.q, since)}
	if definitionID != "" {
		query += ` AND definition_id = ?`
		args = append(args, definitionID)
	}
	query += ` GROUP BY approver_id ORDER BY approver_id`
	out := make([]domain.ApproverResponse, 0)
	if err := sqlx.SelectContext(ctx, r.q, &out, r.q.Rebind(query), args...); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
