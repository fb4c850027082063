package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
)

type ExecutionMode string

const (
	ExecutionSequential ExecutionMode = "sequential"
	ExecutionParallel   ExecutionMode = "parallel"
)

type ApprovalPolicy string

const (
	PolicyRequireAll ApprovalPolicy = "require_all"
	PolicyRequireAny ApprovalPolicy = "require_any"
)

type ThresholdType string

const (
	ThresholdPercentage ThresholdType = "percentage"
	ThresholdCount      ThresholdType = "count"
)

type StepType string

const (
	StepApproval     StepType = "approval"
	StepNotification StepType = "notification"
	StepConditional  StepType = "conditional"
)

type ApproverKind string

const (
	ApproverUsers ApproverKind = "users"
	ApproverRole  ApproverKind = "role"
)

// ApproverSpec is either a list of explicit user ids or a role reference,
// resolved to concrete users when the step is activated.
type ApproverSpec struct {
	Kind    ApproverKind `json:"kind" yaml:"kind"`
	UserIDs []string     `json:"userIds,omitempty" yaml:"userIds,omitempty"`
	RoleID  string       `json:"roleId,omitempty" yaml:"roleId,omitempty"`
}

func ExplicitUsers(ids ...string) ApproverSpec {
	return ApproverSpec{Kind: ApproverUsers, UserIDs: ids}
}

func RoleRef(roleID string) ApproverSpec {
	return ApproverSpec{Kind: ApproverRole, RoleID: roleID}
}

type EscalationMode string

const (
	EscalationExtend   EscalationMode = "extend"
	EscalationReassign EscalationMode = "reassign"
)

// EscalationRule is an ordered fallback list; level i of an escalation uses Chain[i].
type EscalationRule struct {
	Mode  EscalationMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	Chain []ApproverSpec `json:"chain,omitempty" yaml:"chain,omitempty"`
}

type ConditionOperator string

const (
	OpEq        ConditionOperator = "eq"
	OpNe        ConditionOperator = "ne"
	OpGt        ConditionOperator = "gt"
	OpGte       ConditionOperator = "gte"
	OpLt        ConditionOperator = "lt"
	OpLte       ConditionOperator = "lte"
	OpIn        ConditionOperator = "in"
	OpNotIn     ConditionOperator = "not_in"
	OpContains  ConditionOperator = "contains"
	OpExists    ConditionOperator = "exists"
	OpNotExists ConditionOperator = "not_exists"
)

// Condition is a predicate over a dotted path in the instance context data.
// Non-optional conditions require the field to be present when an instance starts.
type Condition struct {
	Field    string            `json:"field" yaml:"field"`
	Operator ConditionOperator `json:"operator" yaml:"operator"`
	Value    any               `json:"value,omitempty" yaml:"value,omitempty"`
	Optional bool              `json:"optional,omitempty" yaml:"optional,omitempty"`
}

type StepDefinition struct {
	StepNumber        int             `json:"stepNumber" yaml:"stepNumber"`
	Name              string          `json:"name" yaml:"name"`
	Type              StepType        `json:"type" yaml:"type"`
	Required          *bool           `json:"required,omitempty" yaml:"required,omitempty"`
	Parallel          bool            `json:"parallel" yaml:"parallel"`
	Approvers         []ApproverSpec  `json:"approvers,omitempty" yaml:"approvers,omitempty"`
	RequiredApprovals int             `json:"requiredApprovals,omitempty" yaml:"requiredApprovals,omitempty"`
	Conditions        []Condition     `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	SkipTo            int             `json:"skipTo,omitempty" yaml:"skipTo,omitempty"`
	Timeout           core.Duration   `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Escalation        *EscalationRule `json:"escalation,omitempty" yaml:"escalation,omitempty"`
}

// IsRequired reports whether a rejection of this step rejects the instance.
// Steps are required unless explicitly marked otherwise.
func (s StepDefinition) IsRequired() bool {
	return s.Required == nil || *s.Required
}

// Quorum returns the configured approval count, defaulting to 1.
func (s StepDefinition) Quorum() int {
	if s.RequiredApprovals <= 0 {
		return 1
	}
	return s.RequiredApprovals
}

// Steps is the persisted step list of a definition version.
type Steps []StepDefinition

func (s Steps) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *Steps) Scan(src any) error {
	return scanJSON(src, s)
}

// WorkflowDefinition joins the mutable header with its current version body.
type WorkflowDefinition struct {
	ID                   string         `json:"id" yaml:"id,omitempty" db:"id"`
	TenantID             string         `json:"tenantId" yaml:"tenantId,omitempty" db:"tenant_id"`
	Name                 string         `json:"name" yaml:"name" db:"name"`
	Description          string         `json:"description" yaml:"description,omitempty" db:"description"`
	Active               bool           `json:"active" yaml:"active" db:"active"`
	Version              int            `json:"version" yaml:"-" db:"version"`
	ExecutionMode        ExecutionMode  `json:"executionMode" yaml:"executionMode" db:"execution_mode"`
	ApprovalPolicy       ApprovalPolicy `json:"approvalPolicy" yaml:"approvalPolicy" db:"approval_policy"`
	AutoApproveThreshold *float64       `json:"autoApproveThreshold,omitempty" yaml:"autoApproveThreshold,omitempty" db:"auto_approve_threshold"`
	AutoRejectThreshold  *float64       `json:"autoRejectThreshold,omitempty" yaml:"autoRejectThreshold,omitempty" db:"auto_reject_threshold"`
	ThresholdType        ThresholdType  `json:"thresholdType,omitempty" yaml:"thresholdType,omitempty" db:"threshold_type"`
	DefaultStepTimeout   core.Duration  `json:"defaultStepTimeout,omitempty" yaml:"defaultStepTimeout,omitempty" db:"default_step_timeout"`
	EscalationTimeout    core.Duration  `json:"escalationTimeout,omitempty" yaml:"escalationTimeout,omitempty" db:"escalation_timeout"`
	SLATarget            core.Duration  `json:"slaTarget,omitempty" yaml:"slaTarget,omitempty" db:"sla_target"`
	BusinessHoursOnly    bool           `json:"businessHoursOnly" yaml:"businessHoursOnly" db:"business_hours_only"`
	Steps                Steps          `json:"steps" yaml:"steps" db:"steps"`
	Created              time.Time      `json:"created" yaml:"-" db:"created"`
	Updated              time.Time      `json:"updated" yaml:"-" db:"updated"`
}

// Step returns the step with the given number, ok=false when out of range.
func (d *WorkflowDefinition) Step(n int) (StepDefinition, bool) {
	if n < 1 || n > len(d.Steps) {
		return StepDefinition{}, false
	}
	return d.Steps[n-1], true
}

func (d *WorkflowDefinition) TotalSteps() int { return len(d.Steps) }

// SameBody reports whether two definitions share the versioned body, i.e.
// an update between them does not need a new version.
func (d *WorkflowDefinition) SameBody(o *WorkflowDefinition) bool {
	a, errA := json.Marshal(d.body())
	b, errB := json.Marshal(o.body())
	return errA == nil && errB == nil && string(a) == string(b)
}

func (d *WorkflowDefinition) body() any {
	return struct {
		ExecutionMode        ExecutionMode
		ApprovalPolicy       ApprovalPolicy
		AutoApproveThreshold *float64
		AutoRejectThreshold  *float64
		ThresholdType        ThresholdType
		DefaultStepTimeout   core.Duration
		EscalationTimeout    core.Duration
		SLATarget            core.Duration
		BusinessHoursOnly    bool
		Steps                Steps
	}{d.ExecutionMode, d.ApprovalPolicy, d.AutoApproveThreshold, d.AutoRejectThreshold, d.ThresholdType,
		d.DefaultStepTimeout, d.EscalationTimeout, d.SLATarget, d.BusinessHoursOnly, d.Steps}
}

func scanJSON(src any, dest any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan json: unsupported type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
