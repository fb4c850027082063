package engine

import (
	"context"
	"time"

	"github.com/RealZimboGuy/approvalflow/internal/repository"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

// run is the working state of one mutation inside its transaction. Step rows
// are buffered and written after the instance row so foreign keys hold on
// insert.
type run struct {
	o           *Orchestrator
	ctx         context.Context
	tx          *repository.Store
	fx          *effects
	def         *domain.WorkflowDefinition
	inst        *domain.WorkflowInstance
	now         time.Time
	steps       []*domain.InstanceStep
	transitions []domain.Transition
}

func (o *Orchestrator) newRun(ctx context.Context, tx *repository.Store, fx *effects, def *domain.WorkflowDefinition, inst *domain.WorkflowInstance) *run {
	return &run{o: o, ctx: ctx, tx: tx, fx: fx, def: def, inst: inst, now: o.clock.Now()}
}

func (r *run) directory() Directory {
	if r.o.directory != nil {
		return r.o.directory
	}
	return r.tx.Users
}

// activateFrom walks forward from step n until an approval step becomes
// active or the definition runs out of steps, which approves the instance.
func (r *run) activateFrom(n int) error {
	total := r.def.TotalSteps()
	for n <= total {
		step, _ := r.def.Step(n)
		r.inst.CurrentStep = n
		if !conditionsHold(step.Conditions, r.inst.ContextData) {
			r.closeStep(step, domain.StepSkipped, nil, "conditions not met")
			if step.SkipTo > n {
				n = step.SkipTo
			} else {
				n++
			}
			continue
		}
		switch step.Type {
		case domain.StepConditional:
			r.closeStep(step, domain.StepPassed, nil, "")
			n++
			continue
		case domain.StepNotification:
			recipients, err := r.resolveApprovers(step.Approvers)
			if err != nil {
				return err
			}
			r.closeStep(step, domain.StepNotified, recipients, "")
			r.notify(domain.NotifyStepNotification, n, recipients, nil)
			n++
			continue
		}
		return r.activateApproval(step)
	}
	r.inst.CurrentStep = total
	r.finalize(domain.StatusApproved, domain.StringList{r.inst.CreatedBy})
	return nil
}

func (r *run) activateApproval(step domain.StepDefinition) error {
	approvers, err := r.resolveApprovers(step.Approvers)
	if err != nil {
		return err
	}
	due := r.dueAt(step.Timeout.Std(), len(approvers) == 0)
	st := &domain.InstanceStep{
		InstanceID:  r.inst.ID,
		StepNumber:  step.StepNumber,
		Status:      domain.StepActive,
		Approvers:   approvers,
		Quorum:      r.quorumFor(step, len(approvers)),
		ActivatedAt: r.now,
		DueAt:       &due,
	}
	r.steps = append(r.steps, st)
	r.transitions = append(r.transitions, domain.Transition{StepNumber: step.StepNumber, To: domain.StepActive})

	r.inst.Status = domain.StatusInProgress
	r.inst.CurrentApprovers = approvers
	r.inst.StepActivatedAt = &r.now
	r.inst.DueAt = &due
	r.inst.EscalationLevel = 0

	recipients := approvers
	if !r.fanOut(step) && len(approvers) > 0 {
		recipients = approvers[:1]
	}
	r.notify(domain.NotifyStepActivated, step.StepNumber, recipients, &due)
	return nil
}

// fanOut reports whether every approver of the step is notified at once.
func (r *run) fanOut(step domain.StepDefinition) bool {
	return r.def.ExecutionMode == domain.ExecutionParallel || step.Parallel
}

// notifyNextSequential asks the next undecided approver in order when the
// step notifies approvers one at a time.
func (r *run) notifyNextSequential(step domain.StepDefinition, st *domain.InstanceStep, decisions []domain.Approval) {
	if r.fanOut(step) {
		return
	}
	decided := make(map[string]bool, len(decisions))
	for _, d := range decisions {
		decided[d.ApproverID] = true
	}
	for _, a := range st.Approvers {
		if !decided[a] {
			r.notify(domain.NotifyStepActivated, st.StepNumber, []string{a}, st.DueAt)
			return
		}
	}
}

func (r *run) quorumFor(step domain.StepDefinition, setSize int) int {
	q := step.Quorum()
	if r.def.ApprovalPolicy == domain.PolicyRequireAll && setSize > 0 {
		q = setSize
	}
	return EffectiveQuorum(q, setSize)
}

// dueAt is the deadline of a step activated now. A step nobody can decide
// is due immediately so the scheduler escalates it.
func (r *run) dueAt(timeout time.Duration, immediate bool) time.Time {
	if immediate {
		return r.now
	}
	if timeout <= 0 {
		timeout = r.def.DefaultStepTimeout.Std()
	}
	if timeout <= 0 {
		timeout = fallbackStepTimeout
	}
	return r.deadline(timeout)
}

func (r *run) deadline(d time.Duration) time.Time {
	if r.def.BusinessHoursOnly {
		return r.o.hours.Add(r.now, d)
	}
	return r.now.Add(d)
}

// resolveApprovers turns approver specs into an ordered, duplicate free user list.
func (r *run) resolveApprovers(specs []domain.ApproverSpec) (domain.StringList, error) {
	dir := r.directory()
	var ids []string
	for _, spec := range specs {
		var users []string
		var err error
		switch spec.Kind {
		case domain.ApproverRole:
			users, err = dir.ResolveRole(r.ctx, r.inst.TenantID, spec.RoleID)
		default:
			users, err = dir.ActiveUsers(r.ctx, r.inst.TenantID, spec.UserIDs)
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, users...)
	}
	return dedupe(ids), nil
}

// closeStep records a step that concluded on activation without decisions.
func (r *run) closeStep(step domain.StepDefinition, status domain.StepStatus, approvers domain.StringList, note string) {
	if approvers == nil {
		approvers = domain.StringList{}
	}
	r.steps = append(r.steps, &domain.InstanceStep{
		InstanceID:  r.inst.ID,
		StepNumber:  step.StepNumber,
		Status:      status,
		Approvers:   approvers,
		ActivatedAt: r.now,
		ResolvedAt:  &r.now,
	})
	r.transitions = append(r.transitions, domain.Transition{StepNumber: step.StepNumber, To: status, Note: note})
}

func (r *run) resolveStep(st *domain.InstanceStep, status domain.StepStatus, note string) {
	r.transitions = append(r.transitions, domain.Transition{StepNumber: st.StepNumber, From: st.Status, To: status, Note: note})
	st.Status = status
	st.ResolvedAt = &r.now
	r.steps = append(r.steps, st)
}

// conclude resolves the active step with the outcome and advances the instance.
func (r *run) conclude(st *domain.InstanceStep, outcome Outcome, note string) error {
	if outcome == OutcomeApproved {
		r.resolveStep(st, domain.StepApproved, note)
	} else {
		r.resolveStep(st, domain.StepRejected, note)
	}
	return r.advance(st.StepNumber, outcome)
}

// advance moves past a resolved step. Rejection of a required step is final
// and leaves current_step on the rejected step.
func (r *run) advance(stepNumber int, outcome Outcome) error {
	step, _ := r.def.Step(stepNumber)
	if outcome == OutcomeRejected && step.IsRequired() {
		r.finalize(domain.StatusRejected, domain.StringList{r.inst.CreatedBy})
		return nil
	}
	return r.activateFrom(stepNumber + 1)
}

func (r *run) finalize(status domain.InstanceStatus, recipients domain.StringList) {
	decision := string(status)
	r.inst.Status = status
	r.inst.CompletedAt = &r.now
	r.inst.FinalDecision = &decision
	r.inst.DueAt = nil
	r.inst.CurrentApprovers = domain.StringList{}

	kind := map[domain.InstanceStatus]domain.NotificationKind{
		domain.StatusApproved:  domain.NotifyInstanceApproved,
		domain.StatusRejected:  domain.NotifyInstanceRejected,
		domain.StatusCancelled: domain.NotifyInstanceCancelled,
		domain.StatusExpired:   domain.NotifyInstanceExpired,
	}[status]
	r.notify(kind, r.inst.CurrentStep, dedupe(recipients), nil)
	r.fx.onCommit = append(r.fx.onCommit, func() {
		instancesFinished.WithLabelValues(string(status)).Inc()
	})
}

func (r *run) notify(kind domain.NotificationKind, step int, recipients []string, due *time.Time) {
	if len(recipients) == 0 {
		return
	}
	r.fx.intents = append(r.fx.intents, domain.NotificationIntent{
		Kind:       kind,
		TenantID:   r.inst.TenantID,
		InstanceID: r.inst.ID,
		StepNumber: step,
		Recipients: append([]string(nil), recipients...),
		Title:      r.inst.Title,
		Priority:   r.inst.Priority,
		DueAt:      due,
		Created:    r.now,
	})
}

func (r *run) record(action domain.HistoryAction, actorID string, from domain.InstanceStatus, details domain.JSONMap) error {
	return r.recordAt(action, r.inst.CurrentStep, actorID, from, details)
}

// recordAt writes the instance under its version check, flushes buffered
// step rows and appends the single history entry of this mutation. The
// entry's sequence is the new instance version. A concluded instance is
// immutable, so actions on it only append history.
func (r *run) recordAt(action domain.HistoryAction, stepNumber int, actorID string, from domain.InstanceStatus, details domain.JSONMap) error {
	if from.Terminal() && r.inst.Status == from {
		return r.appendTerminal(action, stepNumber, actorID, details)
	}
	expected := r.inst.Version
	r.inst.Version = expected + 1
	r.inst.Modified = r.now
	r.inst.Progress = r.inst.ComputeProgress()
	if expected == 0 {
		if err := r.tx.Instances.Insert(r.ctx, r.inst); err != nil {
			return err
		}
	} else if err := r.tx.Instances.UpdateCAS(r.ctx, r.inst, expected); err != nil {
		return err
	}
	for _, st := range r.steps {
		if err := r.tx.Steps.Save(r.ctx, st); err != nil {
			return err
		}
	}
	return r.saveHistory(action, stepNumber, actorID, from, r.inst.Version, details)
}

// appendTerminal records an action on a concluded instance without touching
// its row. Concurrent appends race on the unique (instance, sequence) key and
// the loser retries like a version conflict.
func (r *run) appendTerminal(action domain.HistoryAction, stepNumber int, actorID string, details domain.JSONMap) error {
	last, err := r.tx.History.LastSequence(r.ctx, r.inst.ID)
	if err != nil {
		return err
	}
	return r.saveHistory(action, stepNumber, actorID, r.inst.Status, last+1, details)
}

func (r *run) saveHistory(action domain.HistoryAction, stepNumber int, actorID string, from domain.InstanceStatus, sequence int64, details domain.JSONMap) error {
	if details == nil {
		details = domain.JSONMap{}
	}
	if len(r.transitions) > 0 {
		details["transitions"] = r.transitions
	}
	h := domain.HistoryEntry{
		InstanceID:   r.inst.ID,
		TenantID:     r.inst.TenantID,
		DefinitionID: r.inst.DefinitionID,
		Sequence:     sequence,
		Action:       action,
		StepNumber:   stepNumber,
		ActorID:      actorID,
		FromStatus:   from,
		ToStatus:     r.inst.Status,
		Details:      details,
		Created:      r.now,
	}
	if _, err := r.tx.History.Save(r.ctx, &h); err != nil {
		return err
	}
	r.fx.history = append(r.fx.history, h)
	return nil
}
