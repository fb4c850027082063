package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RealZimboGuy/approvalflow/internal/repository"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/models"
)

const (
	defaultRetries      = 3
	systemActor         = "system"
	fallbackStepTimeout = 24 * time.Hour
)

type Options struct {
	Clock core.Clock
	// Directory resolves approvers; nil uses the users tables inside the
	// mutating transaction.
	Directory       Directory
	Notifier        Notifier
	History         HistorySink
	ConflictRetries int
	BusinessHours   BusinessHours
}

// Orchestrator drives approval instances through their state machine. It
// keeps no mutable state of its own; every mutation is one transaction
// guarded by the instance version.
type Orchestrator struct {
	store     *repository.Store
	clock     core.Clock
	directory Directory
	notifier  Notifier
	history   HistorySink
	retries   int
	hours     BusinessHours
}

func NewOrchestrator(store *repository.Store, opts Options) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		clock:     opts.Clock,
		directory: opts.Directory,
		notifier:  opts.Notifier,
		history:   opts.History,
		retries:   opts.ConflictRetries,
		hours:     opts.BusinessHours,
	}
	if o.clock == nil {
		o.clock = core.NewRealClock()
	}
	if o.notifier == nil {
		o.notifier = noopNotifier{}
	}
	if o.history == nil {
		o.history = noopHistorySink{}
	}
	if o.retries <= 0 {
		o.retries = defaultRetries
	}
	return o
}

// effects collects what a mutation hands to the outside world once its
// transaction committed.
type effects struct {
	history  []domain.HistoryEntry
	intents  []domain.NotificationIntent
	onCommit []func()
	// result is returned to the caller after a successful commit
	result error
}

func (o *Orchestrator) mutate(ctx context.Context, op string, fn func(tx *repository.Store, fx *effects) error) error {
	var committed *effects
	err := retryOnConflict(ctx, op, o.retries, func() error {
		fx := &effects{}
		err := o.store.InTx(ctx, func(tx *repository.Store) error {
			return fn(tx, fx)
		})
		if err != nil {
			return err
		}
		committed = fx
		return nil
	})
	if err != nil {
		return err
	}
	o.publish(ctx, committed)
	return committed.result
}

func (o *Orchestrator) publish(ctx context.Context, fx *effects) {
	for _, f := range fx.onCommit {
		f()
	}
	if len(fx.history) > 0 {
		o.history.PublishHistory(ctx, fx.history...)
	}
	if len(fx.intents) > 0 {
		o.notifier.Notify(ctx, fx.intents...)
	}
}

func loadInstance(ctx context.Context, q *repository.Store, p core.Principal, id string) (*domain.WorkflowInstance, error) {
	inst, err := q.Instances.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.TenantID != p.TenantID {
		return nil, core.Forbiddenf("instance %s belongs to another tenant", id)
	}
	return inst, nil
}

// Start creates an instance of the definition and activates its first step.
func (o *Orchestrator) Start(ctx context.Context, p core.Principal, req models.StartInstanceRequest) (out *domain.WorkflowInstance, err error) {
	defer observe("start_instance", time.Now(), &err)
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, core.Validationf("title is required").WithOp("startInstance")
	}
	priority := domain.Priority(strings.ToLower(req.Priority))
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !priority.Valid() {
		return nil, core.Validationf("priority %q is not supported", req.Priority).WithOp("startInstance")
	}
	err = o.mutate(ctx, "startInstance", func(tx *repository.Store, fx *effects) error {
		def, err := tx.Definitions.FindByID(ctx, req.DefinitionID)
		if err != nil {
			return err
		}
		if def.TenantID != p.TenantID {
			return core.Forbiddenf("definition %s belongs to another tenant", def.ID).WithOp("startInstance")
		}
		if !def.Active {
			return core.Validationf("definition %s is not active", def.ID).WithOp("startInstance")
		}
		data := domain.JSONMap(req.ContextData)
		if data == nil {
			data = domain.JSONMap{}
		}
		if missing := missingFields(def.Steps, data); len(missing) > 0 {
			return core.Validationf("context data is missing required fields: %s", strings.Join(missing, ", ")).WithOp("startInstance")
		}
		now := o.clock.Now()
		inst := &domain.WorkflowInstance{
			ID:                uuid.NewString(),
			TenantID:          def.TenantID,
			DefinitionID:      def.ID,
			DefinitionVersion: def.Version,
			Title:             title,
			Description:       req.Description,
			ReferenceID:       req.ReferenceID,
			ReferenceType:     req.ReferenceType,
			Status:            domain.StatusPending,
			CurrentStep:       1,
			TotalSteps:        def.TotalSteps(),
			ContextData:       data,
			Priority:          priority,
			CurrentApprovers:  domain.StringList{},
			CreatedBy:         p.Username,
			StartedAt:         now,
			Created:           now,
		}
		r := o.newRun(ctx, tx, fx, def, inst)
		if err := r.activateFrom(1); err != nil {
			return err
		}
		details := domain.JSONMap{"definitionVersion": def.Version, "referenceId": req.ReferenceID}
		if err := r.record(domain.ActionInstanceStarted, p.Username, domain.StatusPending, details); err != nil {
			return err
		}
		fx.onCommit = append(fx.onCommit, instancesStarted.Inc)
		out = inst
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Started approval instance", "instance_id", out.ID, "tenant_id", out.TenantID,
		"definition_id", out.DefinitionID, "status", out.Status, "step", out.CurrentStep)
	return out, nil
}

// RecordDecision stores an approver's decision on a step and advances the
// instance when the step resolves. Resubmitting an identical decision is a
// no-op.
func (o *Orchestrator) RecordDecision(ctx context.Context, p core.Principal, instanceID string, req models.DecisionRequest) (out *domain.WorkflowInstance, err error) {
	defer observe("record_decision", time.Now(), &err)
	decision := domain.Decision(strings.ToLower(req.Decision))
	if !decision.Valid() {
		return nil, core.Validationf("decision %q must be approved, rejected or abstained", req.Decision).WithOp("recordDecision")
	}
	if req.StepNumber < 1 {
		return nil, core.Validationf("stepNumber must be positive").WithOp("recordDecision")
	}
	approverID, onBehalfOf := p.Username, ""
	if req.OnBehalfOf != "" && req.OnBehalfOf != p.Username {
		if !p.IsAdmin() {
			return nil, core.Forbiddenf("only administrators may decide on behalf of another approver").WithOp("recordDecision")
		}
		approverID, onBehalfOf = req.OnBehalfOf, p.Username
	}

	err = o.mutate(ctx, "recordDecision", func(tx *repository.Store, fx *effects) error {
		inst, err := loadInstance(ctx, tx, p, instanceID)
		if err != nil {
			return err
		}
		out = inst
		prior, err := tx.Approvals.Find(ctx, inst.ID, req.StepNumber, approverID)
		if err != nil && !core.IsKind(err, core.KindNotFound) {
			return err
		}
		if prior != nil && prior.Decision == decision && prior.Comment == req.Comment {
			return nil
		}
		if inst.Status != domain.StatusInProgress || req.StepNumber != inst.CurrentStep {
			return o.lateDecision(ctx, tx, fx, inst, prior, approverID, onBehalfOf, decision, req)
		}

		def, err := tx.Definitions.FindVersion(ctx, inst.DefinitionID, inst.DefinitionVersion)
		if err != nil {
			return err
		}
		st, err := tx.Steps.Find(ctx, inst.ID, inst.CurrentStep)
		if err != nil {
			return err
		}
		if st.Status != domain.StepActive {
			return core.Conflictf("step %d is %s", st.StepNumber, st.Status).
				WithInstance(inst.ID, inst.CurrentStep, string(inst.Status)).WithOp("recordDecision")
		}
		if !st.Approvers.Contains(approverID) {
			return core.Forbiddenf("%s is not an approver of step %d", approverID, st.StepNumber).
				WithInstance(inst.ID, inst.CurrentStep, string(inst.Status)).WithOp("recordDecision")
		}

		now := o.clock.Now()
		approval := &domain.Approval{
			InstanceID:      inst.ID,
			StepNumber:      st.StepNumber,
			ApproverID:      approverID,
			Decision:        decision,
			Comment:         req.Comment,
			ResponseSeconds: int64(now.Sub(st.ActivatedAt).Seconds()),
			OnBehalfOf:      onBehalfOf,
			DecidedAt:       now,
		}
		if err := tx.Approvals.Upsert(ctx, approval); err != nil {
			return err
		}
		decisions, err := tx.Approvals.FindByStep(ctx, inst.ID, st.StepNumber)
		if err != nil {
			return err
		}
		outcome, tally := Resolve(ResolveInput{Approvers: st.Approvers, Quorum: st.Quorum, Decisions: decisions})

		from := inst.Status
		r := o.newRun(ctx, tx, fx, def, inst)
		switch outcome {
		case OutcomeApproved, OutcomeRejected:
			if err := r.conclude(st, outcome, "quorum reached"); err != nil {
				return err
			}
		default:
			r.notifyNextSequential(def.Steps[st.StepNumber-1], st, decisions)
		}
		details := domain.JSONMap{
			"approverId": approverID,
			"decision":   decision,
			"outcome":    outcome,
			"approved":   tally.Approved,
			"rejected":   tally.Rejected,
			"abstained":  tally.Abstained,
			"quorum":     EffectiveQuorum(st.Quorum, tally.SetSize),
		}
		if onBehalfOf != "" {
			details["onBehalfOf"] = onBehalfOf
		}
		if prior != nil {
			details["previousDecision"] = prior.Decision
		}
		if err := r.recordAt(domain.ActionDecisionRecorded, st.StepNumber, p.Username, from, details); err != nil {
			return err
		}
		fx.onCommit = append(fx.onCommit, func() {
			decisionsRecorded.WithLabelValues(string(decision), "false").Inc()
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Recorded decision", "instance_id", out.ID, "step", req.StepNumber,
		"approver", approverID, "decision", decision, "status", out.Status)
	return out, nil
}

// lateDecision handles a decision on a step that is no longer open. A member
// of the step's approver set who had not decided yet gets the decision kept
// for audit; the caller always receives a Conflict.
func (o *Orchestrator) lateDecision(ctx context.Context, tx *repository.Store, fx *effects, inst *domain.WorkflowInstance,
	prior *domain.Approval, approverID string, onBehalfOf string, decision domain.Decision, req models.DecisionRequest) error {
	conflict := core.Conflictf("step %d is not open for decisions", req.StepNumber).
		WithInstance(inst.ID, inst.CurrentStep, string(inst.Status)).WithOp("recordDecision")
	st, err := tx.Steps.Find(ctx, inst.ID, req.StepNumber)
	if err != nil {
		if core.IsKind(err, core.KindNotFound) {
			return conflict
		}
		return err
	}
	if st.Status == domain.StepActive || !st.Approvers.Contains(approverID) || (prior != nil && !prior.AfterResolution) {
		return conflict
	}
	now := o.clock.Now()
	late := &domain.Approval{
		InstanceID:      inst.ID,
		StepNumber:      st.StepNumber,
		ApproverID:      approverID,
		Decision:        decision,
		Comment:         req.Comment,
		ResponseSeconds: int64(now.Sub(st.ActivatedAt).Seconds()),
		AfterResolution: true,
		OnBehalfOf:      onBehalfOf,
		DecidedAt:       now,
	}
	if err := tx.Approvals.Upsert(ctx, late); err != nil {
		return err
	}
	r := o.newRun(ctx, tx, fx, nil, inst)
	details := domain.JSONMap{"approverId": approverID, "decision": decision, "stepStatus": st.Status}
	if err := r.recordAt(domain.ActionLateDecision, st.StepNumber, approverID, inst.Status, details); err != nil {
		return err
	}
	fx.onCommit = append(fx.onCommit, func() {
		decisionsRecorded.WithLabelValues(string(decision), "true").Inc()
	})
	fx.result = conflict
	return nil
}

// Cancel aborts a pending or in-progress instance. Cancelling a cancelled
// instance succeeds without changes.
func (o *Orchestrator) Cancel(ctx context.Context, p core.Principal, instanceID string, reason string) (out *domain.WorkflowInstance, err error) {
	defer observe("cancel_instance", time.Now(), &err)
	err = o.mutate(ctx, "cancelInstance", func(tx *repository.Store, fx *effects) error {
		inst, err := loadInstance(ctx, tx, p, instanceID)
		if err != nil {
			return err
		}
		out = inst
		if inst.Status == domain.StatusCancelled {
			return nil
		}
		if inst.Status.Terminal() {
			return core.Conflictf("cannot cancel a %s instance", inst.Status).
				WithInstance(inst.ID, inst.CurrentStep, string(inst.Status)).WithOp("cancelInstance")
		}
		if inst.CreatedBy != p.Username && !p.IsAdmin() {
			return core.Forbiddenf("only the creator or an administrator may cancel").
				WithInstance(inst.ID, inst.CurrentStep, string(inst.Status)).WithOp("cancelInstance")
		}
		r := o.newRun(ctx, tx, fx, nil, inst)
		st, err := tx.Steps.Find(ctx, inst.ID, inst.CurrentStep)
		switch {
		case err == nil && st.Status == domain.StepActive:
			r.resolveStep(st, domain.StepAborted, "instance cancelled")
		case err != nil && !core.IsKind(err, core.KindNotFound):
			return err
		}
		from := inst.Status
		recipients := append(domain.StringList{inst.CreatedBy}, inst.CurrentApprovers...)
		r.finalize(domain.StatusCancelled, recipients)
		return r.record(domain.ActionInstanceCancelled, p.Username, from, domain.JSONMap{"reason": reason})
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Cancelled approval instance", "instance_id", out.ID, "actor", p.Username)
	return out, nil
}

// AddComment attaches a comment to an instance in any status. Replies nest
// one level deep.
func (o *Orchestrator) AddComment(ctx context.Context, p core.Principal, instanceID string, req models.AddCommentRequest) (out *domain.Comment, err error) {
	defer observe("add_comment", time.Now(), &err)
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, core.Validationf("comment text is required").WithOp("addComment")
	}
	err = o.mutate(ctx, "addComment", func(tx *repository.Store, fx *effects) error {
		inst, err := loadInstance(ctx, tx, p, instanceID)
		if err != nil {
			return err
		}
		if req.ParentID != nil {
			parent, err := tx.Comments.FindByID(ctx, *req.ParentID)
			if err != nil {
				return err
			}
			if parent.InstanceID != inst.ID {
				return core.Validationf("parent comment %d belongs to another instance", parent.ID).WithOp("addComment")
			}
			if parent.ParentID != nil {
				return core.Validationf("replies can only be made to top level comments").WithOp("addComment")
			}
		}
		c := &domain.Comment{
			InstanceID:     inst.ID,
			AuthorID:       p.Username,
			Text:           text,
			IsInternal:     req.IsInternal,
			Attachments:    domain.Attachments(req.Attachments),
			ParentID:       req.ParentID,
			MentionedUsers: dedupe(req.MentionedUsers),
			Created:        o.clock.Now(),
		}
		if _, err := tx.Comments.Save(ctx, c); err != nil {
			return err
		}
		r := o.newRun(ctx, tx, fx, nil, inst)
		var mentioned []string
		for _, u := range c.MentionedUsers {
			if u != p.Username {
				mentioned = append(mentioned, u)
			}
		}
		r.notify(domain.NotifyMentioned, inst.CurrentStep, mentioned, nil)
		details := domain.JSONMap{"commentId": c.ID, "internal": c.IsInternal}
		if c.ParentID != nil {
			details["parentId"] = *c.ParentID
		}
		if err := r.record(domain.ActionCommentAdded, p.Username, inst.Status, details); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListComments returns the thread of an instance. Internal comments are
// hidden from the instance's creator unless the caller is an administrator.
func (o *Orchestrator) ListComments(ctx context.Context, p core.Principal, instanceID string, includeInternal bool) ([]domain.Comment, error) {
	return retryRead(ctx, o.retries, func() ([]domain.Comment, error) {
		inst, err := loadInstance(ctx, o.store, p, instanceID)
		if err != nil {
			return nil, err
		}
		internal := includeInternal && (p.IsAdmin() || inst.CreatedBy != p.Username)
		return o.store.Comments.FindAllByInstanceID(ctx, inst.ID, internal)
	})
}

func (o *Orchestrator) GetInstance(ctx context.Context, p core.Principal, instanceID string) (*models.InstanceDetail, error) {
	return retryRead(ctx, o.retries, func() (*models.InstanceDetail, error) {
		inst, err := loadInstance(ctx, o.store, p, instanceID)
		if err != nil {
			return nil, err
		}
		steps, err := o.store.Steps.FindAllByInstanceID(ctx, inst.ID)
		if err != nil {
			return nil, err
		}
		approvals, err := o.store.Approvals.FindAllByInstanceID(ctx, inst.ID)
		if err != nil {
			return nil, err
		}
		return &models.InstanceDetail{Instance: inst, Steps: steps, Approvals: approvals}, nil
	})
}

func (o *Orchestrator) ListInstances(ctx context.Context, p core.Principal, f models.InstanceFilter) ([]domain.WorkflowInstance, error) {
	f.TenantID = p.TenantID
	if f.Status != "" && !domain.InstanceStatus(f.Status).Valid() {
		return nil, core.Validationf("status %q is not supported", f.Status).WithOp("listInstances")
	}
	return retryRead(ctx, o.retries, func() ([]domain.WorkflowInstance, error) {
		return o.store.Instances.Search(ctx, f)
	})
}

func (o *Orchestrator) GetHistory(ctx context.Context, p core.Principal, instanceID string) ([]domain.HistoryEntry, error) {
	return retryRead(ctx, o.retries, func() ([]domain.HistoryEntry, error) {
		inst, err := loadInstance(ctx, o.store, p, instanceID)
		if err != nil {
			return nil, err
		}
		return o.store.History.FindAllByInstanceID(ctx, inst.ID)
	})
}

func (o *Orchestrator) ListApprovals(ctx context.Context, p core.Principal, instanceID string) ([]domain.Approval, error) {
	return retryRead(ctx, o.retries, func() ([]domain.Approval, error) {
		inst, err := loadInstance(ctx, o.store, p, instanceID)
		if err != nil {
			return nil, err
		}
		return o.store.Approvals.FindAllByInstanceID(ctx, inst.ID)
	})
}

func (o *Orchestrator) ListSteps(ctx context.Context, p core.Principal, instanceID string) ([]domain.InstanceStep, error) {
	return retryRead(ctx, o.retries, func() ([]domain.InstanceStep, error) {
		inst, err := loadInstance(ctx, o.store, p, instanceID)
		if err != nil {
			return nil, err
		}
		return o.store.Steps.FindAllByInstanceID(ctx, inst.ID)
	})
}

func dedupe(ids []string) domain.StringList {
	out := domain.StringList{}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
