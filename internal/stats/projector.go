package stats

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/RealZimboGuy/approvalflow/internal/events"
	"github.com/RealZimboGuy/approvalflow/internal/repository"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

// Projector keeps the stats read model in step with committed history. It
// is driven by the event bus and never touches the write path.
type Projector struct {
	store *repository.Store
}

func NewProjector(store *repository.Store) *Projector {
	return &Projector{store: store}
}

// HandleHistory is the router handler for the history topic.
func (p *Projector) HandleHistory(msg *message.Message) error {
	h, err := events.DecodeHistory(msg)
	if err != nil {
		slog.Error("Dropping undecodable history entry", "message_id", msg.UUID, "error", err)
		return nil
	}
	if err := p.Apply(msg.Context(), h); err != nil {
		// the reconciler repairs whatever the projection missed
		slog.Warn("Stats projection failed", "instance_id", h.InstanceID, "sequence", h.Sequence, "error", err)
	}
	return nil
}

// Apply folds one history entry into the read model.
func (p *Projector) Apply(ctx context.Context, h domain.HistoryEntry) error {
	inst, err := p.store.Instances.FindByID(ctx, h.InstanceID)
	if err != nil {
		return err
	}
	def, err := p.store.Definitions.FindVersion(ctx, inst.DefinitionID, inst.DefinitionVersion)
	if err != nil {
		return err
	}
	if err := p.store.Facts.UpsertInstanceFact(ctx, InstanceFactOf(inst, def)); err != nil {
		return err
	}
	if h.Action != domain.ActionDecisionRecorded {
		return nil
	}
	approverID, _ := h.Details["approverId"].(string)
	if approverID == "" {
		return nil
	}
	a, err := p.store.Approvals.Find(ctx, inst.ID, h.StepNumber, approverID)
	if err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return nil
		}
		return err
	}
	return p.store.Facts.UpsertResponseFact(ctx, ResponseFactOf(inst, a))
}

// InstanceFactOf derives the read model row of an instance.
func InstanceFactOf(inst *domain.WorkflowInstance, def *domain.WorkflowDefinition) *domain.InstanceFact {
	f := &domain.InstanceFact{
		InstanceID:   inst.ID,
		TenantID:     inst.TenantID,
		DefinitionID: inst.DefinitionID,
		Status:       string(inst.Status),
		StartedAt:    inst.StartedAt,
		CompletedAt:  inst.CompletedAt,
		LastSequence: inst.Version,
	}
	if inst.CompletedAt != nil {
		d := int64(inst.CompletedAt.Sub(inst.StartedAt).Seconds())
		f.DurationSeconds = &d
		concluded := inst.Status == domain.StatusApproved || inst.Status == domain.StatusRejected
		if def != nil && def.SLATarget > 0 && concluded {
			met := inst.CompletedAt.Sub(inst.StartedAt) <= def.SLATarget.Std()
			f.SLAMet = &met
		}
	}
	return f
}

func ResponseFactOf(inst *domain.WorkflowInstance, a *domain.Approval) *domain.ResponseFact {
	return &domain.ResponseFact{
		InstanceID:      a.InstanceID,
		StepNumber:      a.StepNumber,
		ApproverID:      a.ApproverID,
		TenantID:        inst.TenantID,
		DefinitionID:    inst.DefinitionID,
		ResponseSeconds: a.ResponseSeconds,
		DecidedAt:       a.DecidedAt,
	}
}
