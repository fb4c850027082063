package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/approvalflow/internal/testutil"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/models"
)

func parallel(d *domain.WorkflowDefinition) { d.ExecutionMode = domain.ExecutionParallel }

func requireAll(d *domain.WorkflowDefinition) { d.ApprovalPolicy = domain.PolicyRequireAll }

func withQuorum(s domain.StepDefinition, n int) domain.StepDefinition {
	s.RequiredApprovals = n
	return s
}

func TestStart_ActivatesFirstApprovalStep(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice", "bob"), approvalStep(2, "carol")})

	inst := f.start(def.ID, nil)

	assert.Equal(t, domain.StatusInProgress, inst.Status)
	assert.Equal(t, 1, inst.CurrentStep)
	assert.Equal(t, 2, inst.TotalSteps)
	assert.Equal(t, domain.StringList{"alice", "bob"}, inst.CurrentApprovers)
	require.NotNil(t, inst.DueAt)
	assert.True(t, inst.DueAt.Equal(epoch.Add(4*time.Hour)))
	assert.Equal(t, int64(1), inst.Version)

	st := f.step(inst.ID, 1)
	assert.Equal(t, domain.StepActive, st.Status)
	assert.Equal(t, 1, st.Quorum)

	h := f.history(inst.ID)
	require.Len(t, h, 1)
	assert.Equal(t, domain.ActionInstanceStarted, h[0].Action)
	assert.Equal(t, int64(1), h[0].Sequence)

	// sequential definitions ask the first approver only
	activated := f.notify.ofKind(domain.NotifyStepActivated)
	require.Len(t, activated, 1)
	assert.Equal(t, []string{"alice"}, activated[0].Recipients)
}

func TestStart_AllStepsSkippedApproves(t *testing.T) {
	f := newFixture(t)
	big := []domain.Condition{{Field: "amount", Operator: domain.OpGt, Value: 1000}}
	s1, s2, s3 := approvalStep(1, "alice"), approvalStep(2, "bob"), approvalStep(3, "carol")
	s1.Conditions, s2.Conditions, s3.Conditions = big, big, big
	def := f.define([]domain.StepDefinition{s1, s2, s3})

	inst := f.start(def.ID, map[string]any{"amount": 10})

	assert.Equal(t, domain.StatusApproved, inst.Status)
	require.NotNil(t, inst.CompletedAt)
	assert.Equal(t, inst.TotalSteps, inst.CurrentStep)
	assert.Equal(t, 100, inst.Progress)
	for n := 1; n <= 3; n++ {
		assert.Equal(t, domain.StepSkipped, f.step(inst.ID, n).Status)
	}
	assert.Len(t, f.notify.ofKind(domain.NotifyInstanceApproved), 1)
}

func TestStart_SkipToJumpsForward(t *testing.T) {
	f := newFixture(t)
	s1 := approvalStep(1, "alice")
	s1.Conditions = []domain.Condition{{Field: "region", Operator: domain.OpEq, Value: "emea"}}
	s1.SkipTo = 3
	def := f.define([]domain.StepDefinition{s1, approvalStep(2, "bob"), approvalStep(3, "carol")})

	inst := f.start(def.ID, map[string]any{"region": "apac"})

	assert.Equal(t, 3, inst.CurrentStep)
	assert.Equal(t, domain.StringList{"carol"}, inst.CurrentApprovers)
	_, err := f.store.Steps.Find(f.ctx, inst.ID, 2)
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestStart_NotificationAndConditionalStepsPassThrough(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{
		{StepNumber: 1, Name: "inform", Type: domain.StepNotification, Approvers: []domain.ApproverSpec{domain.ExplicitUsers("carol")}},
		{StepNumber: 2, Name: "gate", Type: domain.StepConditional},
		approvalStep(3, "alice"),
	})

	inst := f.start(def.ID, nil)

	assert.Equal(t, 3, inst.CurrentStep)
	assert.Equal(t, domain.StepNotified, f.step(inst.ID, 1).Status)
	assert.Equal(t, domain.StepPassed, f.step(inst.ID, 2).Status)
	notified := f.notify.ofKind(domain.NotifyStepNotification)
	require.Len(t, notified, 1)
	assert.Equal(t, []string{"carol"}, notified[0].Recipients)
}

func TestStart_ResolvesRoleApprovers(t *testing.T) {
	f := newFixture(t)
	step := approvalStep(1)
	step.Approvers = []domain.ApproverSpec{domain.RoleRef("finance")}
	def := f.define([]domain.StepDefinition{step}, parallel)

	inst := f.start(def.ID, nil)

	assert.Equal(t, domain.StringList{"frank", "gina"}, inst.CurrentApprovers)
	activated := f.notify.ofKind(domain.NotifyStepActivated)
	require.Len(t, activated, 1)
	assert.Equal(t, []string{"frank", "gina"}, activated[0].Recipients)
}

func TestStart_Validation(t *testing.T) {
	f := newFixture(t)
	step := approvalStep(1, "alice")
	step.Conditions = []domain.Condition{{Field: "cost.center", Operator: domain.OpEq, Value: "r&d"}}
	def := f.define([]domain.StepDefinition{step})
	requester := testutil.Principal(tenant, "requester")

	tests := []struct {
		name string
		p    core.Principal
		req  models.StartInstanceRequest
		kind core.ErrorKind
	}{
		{"missing title", requester, models.StartInstanceRequest{DefinitionID: def.ID}, core.KindValidation},
		{"bad priority", requester, models.StartInstanceRequest{DefinitionID: def.ID, Title: "x", Priority: "asap"}, core.KindValidation},
		{"missing context field", requester, models.StartInstanceRequest{DefinitionID: def.ID, Title: "x"}, core.KindValidation},
		{"unknown definition", requester, models.StartInstanceRequest{DefinitionID: "nope", Title: "x"}, core.KindNotFound},
		{"other tenant", testutil.Principal("globex", "requester"), models.StartInstanceRequest{
			DefinitionID: def.ID, Title: "x", ContextData: map[string]any{"cost": map[string]any{"center": "r&d"}},
		}, core.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.Start(f.ctx, tt.p, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, core.KindOf(err))
		})
	}
}

func TestStart_InactiveDefinition(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice")}, func(d *domain.WorkflowDefinition) { d.Active = false })

	_, err := f.orch.Start(f.ctx, testutil.Principal(tenant, "requester"), models.StartInstanceRequest{DefinitionID: def.ID, Title: "x"})

	assert.True(t, core.IsKind(err, core.KindValidation))
}

func TestSequentialWorkflow_RejectionStopsAtRejectedStep(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice"), approvalStep(2, "bob"), approvalStep(3, "carol")})
	inst := f.start(def.ID, nil)

	inst, err := f.decide("alice", inst.ID, 1, domain.DecisionApproved)
	require.NoError(t, err)
	assert.Equal(t, 2, inst.CurrentStep)
	assert.Equal(t, domain.StatusInProgress, inst.Status)
	assert.Equal(t, domain.StringList{"bob"}, inst.CurrentApprovers)

	inst, err = f.decide("bob", inst.ID, 2, domain.DecisionRejected)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, inst.Status)
	assert.Equal(t, 2, inst.CurrentStep)
	require.NotNil(t, inst.FinalDecision)
	assert.Equal(t, "rejected", *inst.FinalDecision)

	stored := f.instance(inst.ID)
	assert.Equal(t, domain.StatusRejected, stored.Status)
	assert.Equal(t, 2, stored.CurrentStep)
	assert.Equal(t, domain.StepApproved, f.step(inst.ID, 1).Status)
	assert.Equal(t, domain.StepRejected, f.step(inst.ID, 2).Status)
	_, err = f.store.Steps.Find(f.ctx, inst.ID, 3)
	assert.True(t, core.IsKind(err, core.KindNotFound), "step 3 must never be activated")
}

func TestRecordDecision_OptionalStepRejectionContinues(t *testing.T) {
	f := newFixture(t)
	optional := false
	s1 := approvalStep(1, "alice")
	s1.Required = &optional
	def := f.define([]domain.StepDefinition{s1, approvalStep(2, "bob")})
	inst := f.start(def.ID, nil)

	inst, err := f.decide("alice", inst.ID, 1, domain.DecisionRejected)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, inst.Status)
	assert.Equal(t, 2, inst.CurrentStep)
	assert.Equal(t, domain.StepRejected, f.step(inst.ID, 1).Status)
}

func TestRecordDecision_TwoRejectsResolveWithoutThirdVote(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{withQuorum(approvalStep(1, "alice", "bob", "carol"), 2)}, parallel)
	inst := f.start(def.ID, nil)

	inst, err := f.decide("alice", inst.ID, 1, domain.DecisionRejected)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, inst.Status)

	inst, err = f.decide("bob", inst.ID, 1, domain.DecisionRejected)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, inst.Status)

	_, err = f.decide("carol", inst.ID, 1, domain.DecisionApproved)
	assert.True(t, core.IsKind(err, core.KindConflict))
}

func TestRecordDecision_RequireAllNeedsEveryApprover(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice", "bob")}, requireAll, parallel)
	inst := f.start(def.ID, nil)
	assert.Equal(t, 2, f.step(inst.ID, 1).Quorum)

	inst, err := f.decide("alice", inst.ID, 1, domain.DecisionApproved)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, inst.Status)

	inst, err = f.decide("bob", inst.ID, 1, domain.DecisionApproved)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, inst.Status)
	assert.Equal(t, 1, inst.CurrentStep)
}

func TestRecordDecision_SequentialNotifiesNextApprover(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{withQuorum(approvalStep(1, "alice", "bob"), 2)})
	inst := f.start(def.ID, nil)

	_, err := f.decide("alice", inst.ID, 1, domain.DecisionApproved)
	require.NoError(t, err)

	activated := f.notify.ofKind(domain.NotifyStepActivated)
	require.Len(t, activated, 2)
	assert.Equal(t, []string{"alice"}, activated[0].Recipients)
	assert.Equal(t, []string{"bob"}, activated[1].Recipients)
}

func TestRecordDecision_IdenticalResubmissionIsNoop(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{withQuorum(approvalStep(1, "alice", "bob", "carol"), 2)}, parallel)
	inst := f.start(def.ID, nil)

	first, err := f.decide("alice", inst.ID, 1, domain.DecisionApproved)
	require.NoError(t, err)
	historyBefore := f.history(inst.ID)

	second, err := f.decide("alice", inst.ID, 1, domain.DecisionApproved)
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.Version, f.instance(inst.ID).Version)
	assert.Len(t, f.history(inst.ID), len(historyBefore))
	approvals, err := f.store.Approvals.FindByStep(f.ctx, inst.ID, 1)
	require.NoError(t, err)
	assert.Len(t, approvals, 1)
}

func TestRecordDecision_ChangedDecisionOverwrites(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{withQuorum(approvalStep(1, "alice", "bob", "carol"), 2)}, parallel)
	inst := f.start(def.ID, nil)

	_, err := f.decide("alice", inst.ID, 1, domain.DecisionApproved)
	require.NoError(t, err)
	_, err = f.decide("alice", inst.ID, 1, domain.DecisionAbstained)
	require.NoError(t, err)

	approvals, err := f.store.Approvals.FindByStep(f.ctx, inst.ID, 1)
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, domain.DecisionAbstained, approvals[0].Decision)

	h := f.history(inst.ID)
	last := h[len(h)-1]
	assert.Equal(t, domain.ActionDecisionRecorded, last.Action)
	assert.Equal(t, "approved", last.Details["previousDecision"])
}

func TestRecordDecision_Authorization(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice")})
	inst := f.start(def.ID, nil)

	_, err := f.decide("carol", inst.ID, 1, domain.DecisionApproved)
	assert.True(t, core.IsKind(err, core.KindForbidden), "non approver")

	_, err = f.orch.RecordDecision(f.ctx, testutil.Principal(tenant, "bob"), inst.ID, models.DecisionRequest{
		StepNumber: 1, Decision: "approved", OnBehalfOf: "alice",
	})
	assert.True(t, core.IsKind(err, core.KindForbidden), "on behalf without admin")

	_, err = f.orch.RecordDecision(f.ctx, testutil.Principal("globex", "alice"), inst.ID, models.DecisionRequest{
		StepNumber: 1, Decision: "approved",
	})
	assert.True(t, core.IsKind(err, core.KindForbidden), "other tenant")

	_, err = f.decide("alice", inst.ID, 1, "maybe")
	assert.True(t, core.IsKind(err, core.KindValidation))

	out, err := f.orch.RecordDecision(f.ctx, testutil.Admin(tenant), inst.ID, models.DecisionRequest{
		StepNumber: 1, Decision: "approved", OnBehalfOf: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, out.Status)
	a, err := f.store.Approvals.Find(f.ctx, inst.ID, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, "admin", a.OnBehalfOf)
}

func TestRecordDecision_WrongStepIsConflict(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice"), approvalStep(2, "bob")})
	inst := f.start(def.ID, nil)

	_, err := f.decide("bob", inst.ID, 2, domain.DecisionApproved)

	require.Error(t, err)
	var ce *core.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, core.KindConflict, ce.Kind)
	assert.Equal(t, inst.ID, ce.InstanceID)
	assert.Equal(t, 1, ce.StepNumber)
}

func TestRecordDecision_LateDecisionIsKeptForAudit(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice", "bob")}, parallel)
	inst := f.start(def.ID, nil)
	_, err := f.decide("alice", inst.ID, 1, domain.DecisionApproved)
	require.NoError(t, err)
	version, modified := f.instance(inst.ID).Version, f.instance(inst.ID).Modified

	_, err = f.decide("bob", inst.ID, 1, domain.DecisionRejected)

	assert.True(t, core.IsKind(err, core.KindConflict))
	late, err := f.store.Approvals.Find(f.ctx, inst.ID, 1, "bob")
	require.NoError(t, err)
	assert.True(t, late.AfterResolution)
	stored := f.instance(inst.ID)
	assert.Equal(t, domain.StatusApproved, stored.Status)
	assert.Equal(t, version, stored.Version, "a concluded instance row is not rewritten")
	assert.Equal(t, modified, stored.Modified)
	h := f.history(inst.ID)
	assert.Equal(t, domain.ActionLateDecision, h[len(h)-1].Action)
	assert.Equal(t, version+1, h[len(h)-1].Sequence)

	// a counted decision cannot be revised once the step is resolved
	_, err = f.decide("alice", inst.ID, 1, domain.DecisionRejected)
	assert.True(t, core.IsKind(err, core.KindConflict))
	assert.Len(t, f.history(inst.ID), len(h))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice")})
	requester := testutil.Principal(tenant, "requester")

	t.Run("in progress instance is cancelled once", func(t *testing.T) {
		inst := f.start(def.ID, nil)

		out, err := f.orch.Cancel(f.ctx, requester, inst.ID, "no longer needed")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, out.Status)
		assert.NotNil(t, out.CompletedAt)
		assert.Empty(t, out.CurrentApprovers)
		assert.Equal(t, domain.StepAborted, f.step(inst.ID, 1).Status)
		historyLen := len(f.history(inst.ID))

		again, err := f.orch.Cancel(f.ctx, requester, inst.ID, "retry")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, again.Status)
		assert.Len(t, f.history(inst.ID), historyLen)
	})

	t.Run("only creator or admin", func(t *testing.T) {
		inst := f.start(def.ID, nil)

		_, err := f.orch.Cancel(f.ctx, testutil.Principal(tenant, "alice"), inst.ID, "")
		assert.True(t, core.IsKind(err, core.KindForbidden))

		out, err := f.orch.Cancel(f.ctx, testutil.Admin(tenant), inst.ID, "")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, out.Status)
	})

	t.Run("approved instance conflicts", func(t *testing.T) {
		inst := f.start(def.ID, nil)
		_, err := f.decide("alice", inst.ID, 1, domain.DecisionApproved)
		require.NoError(t, err)

		_, err = f.orch.Cancel(f.ctx, requester, inst.ID, "")
		assert.True(t, core.IsKind(err, core.KindConflict))
	})

	t.Run("rejected instance conflicts", func(t *testing.T) {
		inst := f.start(def.ID, nil)
		_, err := f.decide("alice", inst.ID, 1, domain.DecisionRejected)
		require.NoError(t, err)

		_, err = f.orch.Cancel(f.ctx, requester, inst.ID, "")
		assert.True(t, core.IsKind(err, core.KindConflict))
	})

	t.Run("unknown instance", func(t *testing.T) {
		_, err := f.orch.Cancel(f.ctx, requester, "missing", "")
		assert.True(t, core.IsKind(err, core.KindNotFound))
	})
}

func TestAddComment(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice")})
	inst := f.start(def.ID, nil)
	alice := testutil.Principal(tenant, "alice")

	top, err := f.orch.AddComment(f.ctx, alice, inst.ID, models.AddCommentRequest{
		Text:           "please attach the quote",
		MentionedUsers: []string{"requester", "alice", "requester"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StringList{"requester", "alice"}, top.MentionedUsers)
	mentioned := f.notify.ofKind(domain.NotifyMentioned)
	require.Len(t, mentioned, 1)
	assert.Equal(t, []string{"requester"}, mentioned[0].Recipients)

	reply, err := f.orch.AddComment(f.ctx, testutil.Principal(tenant, "requester"), inst.ID, models.AddCommentRequest{
		Text: "attached", ParentID: &top.ID,
	})
	require.NoError(t, err)

	_, err = f.orch.AddComment(f.ctx, alice, inst.ID, models.AddCommentRequest{Text: "thanks", ParentID: &reply.ID})
	assert.True(t, core.IsKind(err, core.KindValidation), "replies nest one level")

	_, err = f.orch.AddComment(f.ctx, alice, inst.ID, models.AddCommentRequest{Text: "  "})
	assert.True(t, core.IsKind(err, core.KindValidation))

	_, err = f.orch.AddComment(f.ctx, alice, inst.ID, models.AddCommentRequest{Text: "budget is tight", IsInternal: true})
	require.NoError(t, err)

	forCreator, err := f.orch.ListComments(f.ctx, testutil.Principal(tenant, "requester"), inst.ID, true)
	require.NoError(t, err)
	assert.Len(t, forCreator, 2)
	forApprover, err := f.orch.ListComments(f.ctx, alice, inst.ID, true)
	require.NoError(t, err)
	assert.Len(t, forApprover, 3)

	h := f.history(inst.ID)
	assert.Equal(t, domain.ActionCommentAdded, h[len(h)-1].Action)
}

func TestAddComment_AllowedOnTerminalInstance(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice")})
	inst := f.start(def.ID, nil)
	_, err := f.orch.Cancel(f.ctx, testutil.Principal(tenant, "requester"), inst.ID, "")
	require.NoError(t, err)

	cancelled := f.instance(inst.ID)

	_, err = f.orch.AddComment(f.ctx, testutil.Principal(tenant, "alice"), inst.ID, models.AddCommentRequest{Text: "noted"})
	require.NoError(t, err)
	_, err = f.orch.AddComment(f.ctx, testutil.Principal(tenant, "requester"), inst.ID, models.AddCommentRequest{Text: "thanks"})
	require.NoError(t, err)

	stored := f.instance(inst.ID)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
	assert.Equal(t, cancelled.Version, stored.Version)
	h := f.history(inst.ID)
	require.Len(t, h, int(cancelled.Version)+2)
	for i, e := range h {
		assert.Equal(t, int64(i+1), e.Sequence)
	}
	assert.Equal(t, domain.ActionCommentAdded, h[len(h)-1].Action)
	assert.Equal(t, domain.StatusCancelled, h[len(h)-1].FromStatus)
	assert.Equal(t, domain.StatusCancelled, h[len(h)-1].ToStatus)
}

func TestHistory_SequenceFollowsCommitOrder(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice"), approvalStep(2, "bob"), approvalStep(3, "carol")})
	inst := f.start(def.ID, nil)
	_, err := f.orch.AddComment(f.ctx, testutil.Principal(tenant, "alice"), inst.ID, models.AddCommentRequest{Text: "looks fine"})
	require.NoError(t, err)
	for i, who := range []string{"alice", "bob", "carol"} {
		_, err := f.decide(who, inst.ID, i+1, domain.DecisionApproved)
		require.NoError(t, err)
	}

	h := f.history(inst.ID)
	require.Len(t, h, 5)
	step := 0
	for i, e := range h {
		assert.Equal(t, int64(i+1), e.Sequence)
		assert.GreaterOrEqual(t, e.StepNumber, step, "current step never moves backwards")
		step = e.StepNumber
	}
	stored := f.instance(inst.ID)
	assert.Equal(t, domain.StatusApproved, stored.Status)
	assert.Equal(t, h[len(h)-1].Sequence, stored.Version)
	assert.Equal(t, domain.StatusApproved, h[len(h)-1].ToStatus)
}

func TestReads_RespectTenant(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice")})
	inst := f.start(def.ID, nil)

	detail, err := f.orch.GetInstance(f.ctx, testutil.Principal(tenant, "alice"), inst.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Steps, 1)

	_, err = f.orch.GetInstance(f.ctx, testutil.Principal("globex", "alice"), inst.ID)
	assert.True(t, core.IsKind(err, core.KindForbidden))

	list, err := f.orch.ListInstances(f.ctx, testutil.Principal(tenant, "alice"), models.InstanceFilter{AssignedTo: "alice"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, inst.ID, list[0].ID)

	list, err = f.orch.ListInstances(f.ctx, testutil.Principal("globex", "alice"), models.InstanceFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.orch.ListInstances(f.ctx, testutil.Principal(tenant, "alice"), models.InstanceFilter{Status: "unknown"})
	assert.True(t, core.IsKind(err, core.KindValidation))
}
