package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RealZimboGuy/approvalflow/internal/repository"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

const (
	escalationSkipped      = "skipped"
	escalationAutoApproved = "auto_approved"
	escalationAutoRejected = "auto_rejected"
	escalationExtended     = "escalated"
	escalationExpired      = "expired"
)

// Escalate acts on an overdue step observed by a scan at expectedVersion.
// When the instance moved on since the scan, or is no longer overdue, it
// returns false without retrying. Otherwise, in order: an auto-approve
// threshold met by the decisions so far approves the step, an auto-reject
// threshold rejects it, the next escalation level widens or replaces the
// approver set, and with no level left the instance expires.
func (o *Orchestrator) Escalate(ctx context.Context, instanceID string, stepNumber int, expectedVersion int64) (escalated bool, err error) {
	defer observe("escalate", time.Now(), &err)
	result := escalationSkipped
	var fx *effects
	err = o.store.InTx(ctx, func(tx *repository.Store) error {
		fx = &effects{}
		inst, err := tx.Instances.FindByID(ctx, instanceID)
		if err != nil {
			return err
		}
		now := o.clock.Now()
		if inst.Version != expectedVersion || inst.Status != domain.StatusInProgress ||
			inst.CurrentStep != stepNumber || inst.DueAt == nil || inst.DueAt.After(now) {
			return nil
		}
		def, err := tx.Definitions.FindVersion(ctx, inst.DefinitionID, inst.DefinitionVersion)
		if err != nil {
			return err
		}
		step, ok := def.Step(stepNumber)
		if !ok {
			return fmt.Errorf("instance %s points at missing step %d", inst.ID, stepNumber)
		}
		st, err := tx.Steps.Find(ctx, inst.ID, stepNumber)
		if err != nil {
			return err
		}
		decisions, err := tx.Approvals.FindByStep(ctx, inst.ID, stepNumber)
		if err != nil {
			return err
		}

		r := o.newRun(ctx, tx, fx, def, inst)
		from := inst.Status
		tally := Count(st.Approvers, decisions, nil)
		details := domain.JSONMap{"approved": tally.Approved, "rejected": tally.Rejected, "setSize": tally.SetSize}

		switch EvaluateThreshold(def, tally) {
		case OutcomeApproved:
			result = escalationAutoApproved
			details["autoDecision"] = domain.DecisionApproved
			if err := r.conclude(st, OutcomeApproved, "auto-approve threshold met"); err != nil {
				return err
			}
		case OutcomeRejected:
			result = escalationAutoRejected
			details["autoDecision"] = domain.DecisionRejected
			if err := r.conclude(st, OutcomeRejected, "auto-reject threshold met"); err != nil {
				return err
			}
		default:
			extended, err := r.escalateStep(step, st, decisions, details)
			if err != nil {
				return err
			}
			if extended {
				result = escalationExtended
			} else {
				result = escalationExpired
				r.resolveStep(st, domain.StepExpired, "no escalation level left")
				recipients := append(domain.StringList{inst.CreatedBy}, st.Approvers...)
				r.finalize(domain.StatusExpired, recipients)
			}
		}
		return r.recordAt(domain.ActionEscalated, stepNumber, systemActor, from, details)
	})
	if errors.Is(err, repository.ErrStaleVersion) {
		escalations.WithLabelValues(escalationSkipped).Inc()
		return false, nil
	}
	if err != nil {
		return false, err
	}
	escalations.WithLabelValues(result).Inc()
	if result == escalationSkipped {
		slog.DebugContext(ctx, "Escalation skipped, instance changed since scan", "instance_id", instanceID, "step", stepNumber)
		return false, nil
	}
	o.publish(ctx, fx)
	slog.InfoContext(ctx, "Escalated overdue step", "instance_id", instanceID, "step", stepNumber, "result", result)
	return true, nil
}

// nextLevel returns the approver spec of the next escalation level. A nil
// spec means the managers of the current approvers, the single default
// level used when the step has no chain of its own.
func nextLevel(step domain.StepDefinition, level int) (domain.EscalationMode, *domain.ApproverSpec, bool) {
	mode := domain.EscalationExtend
	var chain []domain.ApproverSpec
	if step.Escalation != nil {
		if step.Escalation.Mode != "" {
			mode = step.Escalation.Mode
		}
		chain = step.Escalation.Chain
	}
	if len(chain) > 0 {
		if level < len(chain) {
			return mode, &chain[level], true
		}
		return mode, nil, false
	}
	return mode, nil, level == 0
}

// escalateStep applies the next escalation level to the active step and
// re-resolves it, since a reassigned set may already hold quorum. It
// returns false when no level is left or the level adds nobody.
func (r *run) escalateStep(step domain.StepDefinition, st *domain.InstanceStep, decisions []domain.Approval, details domain.JSONMap) (bool, error) {
	mode, spec, ok := nextLevel(step, st.EscalationLevel)
	if !ok {
		return false, nil
	}
	var candidates []string
	var err error
	if spec == nil {
		candidates, err = r.directory().ManagersOf(r.ctx, r.inst.TenantID, st.Approvers)
	} else {
		candidates, err = r.resolveApprovers([]domain.ApproverSpec{*spec})
	}
	if err != nil {
		return false, err
	}

	var next domain.StringList
	quorum := st.Quorum
	if mode == domain.EscalationReassign {
		next = dedupe(candidates)
		quorum = r.quorumFor(step, len(next))
	} else {
		next = dedupe(append(append([]string{}, st.Approvers...), candidates...))
	}
	var added []string
	for _, id := range next {
		if !st.Approvers.Contains(id) {
			added = append(added, id)
		}
	}
	if len(next) == 0 || (mode == domain.EscalationExtend && len(added) == 0) {
		return false, nil
	}

	timeout := r.def.EscalationTimeout.Std()
	if timeout <= 0 {
		timeout = step.Timeout.Std()
	}
	if timeout <= 0 {
		timeout = r.def.DefaultStepTimeout.Std()
	}
	if timeout <= 0 {
		timeout = fallbackStepTimeout
	}
	due := r.deadline(timeout)
	level := st.EscalationLevel + 1

	r.transitions = append(r.transitions, domain.Transition{
		StepNumber: st.StepNumber, From: st.Status, To: st.Status,
		Note: fmt.Sprintf("escalated to level %d (%s)", level, mode),
	})
	st.Approvers = next
	st.Quorum = EffectiveQuorum(quorum, len(next))
	st.EscalationLevel = level
	st.DueAt = &due
	r.inst.CurrentApprovers = next
	r.inst.DueAt = &due
	r.inst.EscalationLevel = level

	details["level"] = level
	details["mode"] = mode
	details["added"] = added

	recipients := added
	if mode == domain.EscalationReassign {
		recipients = next
	}
	r.notify(domain.NotifyEscalationFired, st.StepNumber, recipients, &due)

	outcome, _ := Resolve(ResolveInput{Approvers: st.Approvers, Quorum: st.Quorum, Decisions: decisions})
	if outcome != OutcomePending {
		details["outcome"] = outcome
		return true, r.conclude(st, outcome, "resolved after escalation")
	}
	r.steps = append(r.steps, st)
	return true, nil
}
