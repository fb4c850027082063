package models

import (
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

// StartInstanceRequest is the payload for starting an approval instance.
type StartInstanceRequest struct {
	DefinitionID  string         `json:"definitionId"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	ReferenceID   string         `json:"referenceId"`
	ReferenceType string         `json:"referenceType"`
	ContextData   map[string]any `json:"contextData"`
	Priority      string         `json:"priority"`
}

// DecisionRequest records the caller's decision. OnBehalfOf is honoured for administrators only.
type DecisionRequest struct {
	StepNumber int    `json:"stepNumber"`
	Decision   string `json:"decision"`
	Comment    string `json:"comment"`
	OnBehalfOf string `json:"onBehalfOf,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type AddCommentRequest struct {
	Text           string              `json:"text"`
	IsInternal     bool                `json:"isInternal"`
	Attachments    []domain.Attachment `json:"attachments"`
	ParentID       *int64              `json:"parentId,omitempty"`
	MentionedUsers []string            `json:"mentionedUsers"`
}

// InstanceFilter narrows ListInstances. Empty fields do not filter.
type InstanceFilter struct {
	TenantID     string
	Status       string
	AssignedTo   string
	CreatedBy    string
	Priority     string
	DefinitionID string
	Limit        int
	Offset       int
}

// DefinitionFilter narrows ListDefinitions.
type DefinitionFilter struct {
	TenantID   string
	Name       string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// InstanceDetail bundles an instance with its step activations and decisions.
type InstanceDetail struct {
	Instance  *domain.WorkflowInstance `json:"instance"`
	Steps     []domain.InstanceStep    `json:"steps"`
	Approvals []domain.Approval        `json:"approvals"`
}
