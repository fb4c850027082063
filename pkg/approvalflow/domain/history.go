package domain

import "time"

type HistoryAction string

const (
	ActionInstanceStarted   HistoryAction = "INSTANCE_STARTED"
	ActionDecisionRecorded  HistoryAction = "DECISION_RECORDED"
	ActionLateDecision      HistoryAction = "LATE_DECISION"
	ActionInstanceCancelled HistoryAction = "INSTANCE_CANCELLED"
	ActionEscalated         HistoryAction = "ESCALATED"
	ActionCommentAdded      HistoryAction = "COMMENT_ADDED"
)

// Transition is one step-level change folded into a history entry.
type Transition struct {
	StepNumber int        `json:"stepNumber"`
	From       StepStatus `json:"from,omitempty"`
	To         StepStatus `json:"to"`
	Note       string     `json:"note,omitempty"`
}

// HistoryEntry is append-only. Sequence equals the instance version the
// commit produced, so entries of one instance are totally ordered.
type HistoryEntry struct {
	ID           int64          `json:"id" db:"id"`
	InstanceID   string         `json:"instanceId" db:"instance_id"`
	TenantID     string         `json:"tenantId" db:"tenant_id"`
	DefinitionID string         `json:"definitionId" db:"definition_id"`
	Sequence     int64          `json:"sequence" db:"sequence"`
	Action       HistoryAction  `json:"action" db:"action"`
	StepNumber   int            `json:"stepNumber" db:"step_number"`
	ActorID      string         `json:"actorId" db:"actor_id"`
	FromStatus   InstanceStatus `json:"fromStatus" db:"from_status"`
	ToStatus     InstanceStatus `json:"toStatus" db:"to_status"`
	Details      JSONMap        `json:"details" db:"details"`
	Created      time.Time      `json:"created" db:"created"`
}

type NotificationKind string

const (
	NotifyStepActivated     NotificationKind = "step_activated"
	NotifyStepNotification  NotificationKind = "step_notification"
	NotifyInstanceApproved  NotificationKind = "instance_approved"
	NotifyInstanceRejected  NotificationKind = "instance_rejected"
	NotifyInstanceExpired   NotificationKind = "instance_expired"
	NotifyInstanceCancelled NotificationKind = "instance_cancelled"
	NotifyEscalationFired   NotificationKind = "escalation_fired"
	NotifyMentioned         NotificationKind = "mentioned"
)

// NotificationIntent is handed to the notification subsystem; delivery is not
// the engine's concern.
type NotificationIntent struct {
	Kind       NotificationKind `json:"kind"`
	TenantID   string           `json:"tenantId"`
	InstanceID string           `json:"instanceId"`
	StepNumber int              `json:"stepNumber,omitempty"`
	Recipients []string         `json:"recipients"`
	Title      string           `json:"title"`
	Priority   Priority         `json:"priority,omitempty"`
	DueAt      *time.Time       `json:"dueAt,omitempty"`
	Created    time.Time        `json:"created"`
}
