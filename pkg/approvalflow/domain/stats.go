package domain

import "time"

type ApproverResponse struct {
	ApproverID       string  `json:"approverId" db:"approver_id"`
	Decisions        int     `json:"decisions" db:"decisions"`
	AvgResponseHours float64 `json:"avgResponseHours" db:"avg_response_hours"`
}

type WorkflowStats struct {
	TenantID           string             `json:"tenantId"`
	DefinitionID       string             `json:"definitionId,omitempty"`
	WindowDays         int                `json:"windowDays"`
	Total              int                `json:"total"`
	Pending            int                `json:"pending"`
	InProgress         int                `json:"inProgress"`
	Approved           int                `json:"approved"`
	Rejected           int                `json:"rejected"`
	Cancelled          int                `json:"cancelled"`
	Expired            int                `json:"expired"`
	CompletionRate     float64            `json:"completionRate"`
	AvgCompletionHours float64            `json:"avgCompletionHours"`
	SLAMetRatio        *float64           `json:"slaMetRatio,omitempty"`
	ApproverResponse   []ApproverResponse `json:"approverResponse"`
	GeneratedAt        time.Time          `json:"generatedAt"`
}

// InstanceFact is one row of the stats read model.
type InstanceFact struct {
	InstanceID      string     `db:"instance_id"`
	TenantID        string     `db:"tenant_id"`
	DefinitionID    string     `db:"definition_id"`
	Status          string     `db:"status"`
	StartedAt       time.Time  `db:"started_at"`
	CompletedAt     *time.Time `db:"completed_at"`
	DurationSeconds *int64     `db:"duration_seconds"`
	SLAMet          *bool      `db:"sla_met"`
	LastSequence    int64      `db:"last_sequence"`
}

type ResponseFact struct {
	InstanceID      string    `db:"instance_id"`
	StepNumber      int       `db:"step_number"`
	ApproverID      string    `db:"approver_id"`
	TenantID        string    `db:"tenant_id"`
	DefinitionID    string    `db:"definition_id"`
	ResponseSeconds int64     `db:"response_seconds"`
	DecidedAt       time.Time `db:"decided_at"`
}
