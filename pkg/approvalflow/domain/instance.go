package domain

import (
	"database/sql/driver"
	"encoding/json"
	"slices"
	"time"
)

type InstanceStatus string

const (
	StatusPending    InstanceStatus = "pending"
	StatusInProgress InstanceStatus = "in_progress"
	StatusApproved   InstanceStatus = "approved"
	StatusRejected   InstanceStatus = "rejected"
	StatusCancelled  InstanceStatus = "cancelled"
	StatusExpired    InstanceStatus = "expired"
)

func (s InstanceStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

func (s InstanceStatus) Valid() bool {
	return s == StatusPending || s == StatusInProgress || s.Terminal()
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// JSONMap is free-form structured data stored as a JSON text column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(src any) error {
	return scanJSON(src, m)
}

// StringList is a JSON encoded list of identifiers.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	return scanJSON(src, l)
}

func (l StringList) Contains(id string) bool {
	return slices.Contains(l, id)
}

type WorkflowInstance struct {
	ID                string         `json:"id" db:"id"`
	TenantID          string         `json:"tenantId" db:"tenant_id"`
	DefinitionID      string         `json:"definitionId" db:"definition_id"`
	DefinitionVersion int            `json:"definitionVersion" db:"definition_version"`
	Title             string         `json:"title" db:"title"`
	Description       string         `json:"description" db:"description"`
	ReferenceID       string         `json:"referenceId" db:"reference_id"`
	ReferenceType     string         `json:"referenceType" db:"reference_type"`
	Status            InstanceStatus `json:"status" db:"status"`
	CurrentStep       int            `json:"currentStep" db:"current_step"`
	TotalSteps        int            `json:"totalSteps" db:"total_steps"`
	Progress          int            `json:"progress" db:"progress"`
	ContextData       JSONMap        `json:"contextData" db:"context_data"`
	Priority          Priority       `json:"priority" db:"priority"`
	CurrentApprovers  StringList     `json:"currentApprovers" db:"current_approvers"`
	CreatedBy         string         `json:"createdBy" db:"created_by"`
	StartedAt         time.Time      `json:"startedAt" db:"started_at"`
	StepActivatedAt   *time.Time     `json:"stepActivatedAt,omitempty" db:"step_activated_at"`
	DueAt             *time.Time     `json:"dueAt,omitempty" db:"due_at"`
	CompletedAt       *time.Time     `json:"completedAt,omitempty" db:"completed_at"`
	FinalDecision     *string        `json:"finalDecision,omitempty" db:"final_decision"`
	EscalationLevel   int            `json:"escalationLevel" db:"escalation_level"`
	Version           int64          `json:"version" db:"version"`
	Created           time.Time      `json:"created" db:"created"`
	Modified          time.Time      `json:"modified" db:"modified"`
}

// ComputeProgress derives the percentage of steps concluded.
func (i *WorkflowInstance) ComputeProgress() int {
	if i.TotalSteps == 0 {
		return 0
	}
	if i.Status == StatusApproved {
		return 100
	}
	done := i.CurrentStep - 1
	if i.Status.Terminal() {
		done = i.CurrentStep
	}
	if done < 0 {
		done = 0
	}
	return done * 100 / i.TotalSteps
}

type StepStatus string

const (
	StepActive   StepStatus = "active"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
	StepSkipped  StepStatus = "skipped"
	StepPassed   StepStatus = "passed"
	StepNotified StepStatus = "notified"
	StepExpired  StepStatus = "expired"
	StepAborted  StepStatus = "aborted"
)

// InstanceStep records one activation of a step within an instance.
type InstanceStep struct {
	InstanceID      string     `json:"instanceId" db:"instance_id"`
	StepNumber      int        `json:"stepNumber" db:"step_number"`
	Status          StepStatus `json:"status" db:"status"`
	Approvers       StringList `json:"approvers" db:"approvers"`
	Quorum          int        `json:"quorum" db:"quorum"`
	EscalationLevel int        `json:"escalationLevel" db:"escalation_level"`
	ActivatedAt     time.Time  `json:"activatedAt" db:"activated_at"`
	DueAt           *time.Time `json:"dueAt,omitempty" db:"due_at"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty" db:"resolved_at"`
}

type Decision string

const (
	DecisionApproved  Decision = "approved"
	DecisionRejected  Decision = "rejected"
	DecisionAbstained Decision = "abstained"
)

func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected || d == DecisionAbstained
}

type Approval struct {
	ID              int64     `json:"id" db:"id"`
	InstanceID      string    `json:"instanceId" db:"instance_id"`
	StepNumber      int       `json:"stepNumber" db:"step_number"`
	ApproverID      string    `json:"approverId" db:"approver_id"`
	Decision        Decision  `json:"decision" db:"decision"`
	Comment         string    `json:"comment" db:"comment"`
	ResponseSeconds int64     `json:"responseSeconds" db:"response_seconds"`
	AfterResolution bool      `json:"afterResolution" db:"after_resolution"`
	OnBehalfOf      string    `json:"onBehalfOf,omitempty" db:"on_behalf_of"`
	DecidedAt       time.Time `json:"decidedAt" db:"decided_at"`
}

type Attachment struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
}

type Attachments []Attachment

func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *Attachments) Scan(src any) error {
	return scanJSON(src, a)
}

type Comment struct {
	ID             int64       `json:"id" db:"id"`
	InstanceID     string      `json:"instanceId" db:"instance_id"`
	AuthorID       string      `json:"authorId" db:"author_id"`
	Text           string      `json:"text" db:"text"`
	IsInternal     bool        `json:"isInternal" db:"is_internal"`
	Attachments    Attachments `json:"attachments" db:"attachments"`
	ParentID       *int64      `json:"parentId,omitempty" db:"parent_id"`
	MentionedUsers StringList  `json:"mentionedUsers" db:"mentioned_users"`
	Created        time.Time   `json:"created" db:"created"`
}
