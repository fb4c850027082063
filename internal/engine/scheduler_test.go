package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/RealZimboGuy/approvalflow/internal/testutil"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

func (f *fixture) scheduler(workers int) *EscalationScheduler {
	return NewEscalationScheduler(f.store, f.orch, f.clock, SchedulerOptions{BatchSize: 50, Workers: workers})
}

func (f *fixture) escalations(id string) int {
	n := 0
	for _, h := range f.history(id) {
		if h.Action == domain.ActionEscalated {
			n++
		}
	}
	return n
}

func TestScheduler_NothingHappensBeforeDue(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice")})
	inst := f.start(def.ID, nil)

	f.clock.Add(4*time.Hour - time.Second)
	res, err := f.scheduler(2).Tick(f.ctx)

	require.NoError(t, err)
	assert.Equal(t, TickResult{}, res)
	assert.Equal(t, inst.Version, f.instance(inst.ID).Version)
	assert.Zero(t, f.escalations(inst.ID))
}

func TestScheduler_ConcurrentScansEscalateExactlyOnce(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice")})
	ids := make([]string, 6)
	for i := range ids {
		ids[i] = f.start(def.ID, nil).ID
	}
	f.clock.Add(4*time.Hour + time.Minute)

	schedulers := []*EscalationScheduler{f.scheduler(3), f.scheduler(3), f.scheduler(1)}
	results := make([]TickResult, len(schedulers))
	var g errgroup.Group
	for i, s := range schedulers {
		g.Go(func() error {
			res, err := s.Tick(f.ctx)
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	escalated := 0
	for _, r := range results {
		escalated += r.Escalated
		assert.Zero(t, r.Failed)
	}
	assert.Equal(t, len(ids), escalated)
	for _, id := range ids {
		assert.Equal(t, 1, f.escalations(id), "instance %s", id)
		inst := f.instance(id)
		assert.Equal(t, 1, inst.EscalationLevel)
		assert.Equal(t, domain.StringList{"alice", "dana"}, inst.CurrentApprovers)
	}

	// the new deadline is in the future, so a further scan finds nothing
	res, err := f.scheduler(1).Tick(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)
}

func TestEscalate_DefaultLevelThenExpiry(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice")})
	inst := f.start(def.ID, nil)
	s := f.scheduler(1)

	f.clock.Add(5 * time.Hour)
	res, err := s.Tick(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Escalated)
	st := f.step(inst.ID, 1)
	assert.Equal(t, domain.StepActive, st.Status)
	assert.Equal(t, domain.StringList{"alice", "dana"}, st.Approvers)
	fired := f.notify.ofKind(domain.NotifyEscalationFired)
	require.Len(t, fired, 1)
	assert.Equal(t, []string{"dana"}, fired[0].Recipients)

	f.clock.Add(5 * time.Hour)
	res, err = s.Tick(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Escalated)

	stored := f.instance(inst.ID)
	assert.Equal(t, domain.StatusExpired, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assert.Nil(t, stored.DueAt)
	assert.Equal(t, domain.StepExpired, f.step(inst.ID, 1).Status)

	_, err = f.orch.Cancel(f.ctx, testutil.Principal(tenant, "requester"), inst.ID, "")
	assert.True(t, core.IsKind(err, core.KindConflict))
}

func TestEscalate_ManagerCanDecideAfterExtension(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice")})
	inst := f.start(def.ID, nil)
	f.clock.Add(5 * time.Hour)
	_, err := f.scheduler(1).Tick(f.ctx)
	require.NoError(t, err)

	out, err := f.decide("dana", inst.ID, 1, domain.DecisionApproved)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, out.Status)
}

func TestEscalate_ReassignAlongChain(t *testing.T) {
	f := newFixture(t)
	step := approvalStep(1, "alice")
	step.Escalation = &domain.EscalationRule{
		Mode:  domain.EscalationReassign,
		Chain: []domain.ApproverSpec{domain.RoleRef("finance")},
	}
	def := f.define([]domain.StepDefinition{step}, func(d *domain.WorkflowDefinition) {
		d.EscalationTimeout = core.Duration(time.Hour)
	})
	inst := f.start(def.ID, nil)

	f.clock.Add(5 * time.Hour)
	_, err := f.scheduler(1).Tick(f.ctx)
	require.NoError(t, err)

	stored := f.instance(inst.ID)
	assert.Equal(t, domain.StringList{"frank", "gina"}, stored.CurrentApprovers)
	require.NotNil(t, stored.DueAt)
	assert.True(t, stored.DueAt.Equal(f.clock.Now().Add(time.Hour)))

	_, err = f.decide("alice", inst.ID, 1, domain.DecisionApproved)
	assert.True(t, core.IsKind(err, core.KindForbidden), "reassigned away from alice")
}

func TestEscalate_AutoApproveThreshold(t *testing.T) {
	f := newFixture(t)
	half := 50.0
	def := f.define([]domain.StepDefinition{withQuorum(approvalStep(1, "alice", "bob"), 2)}, parallel,
		func(d *domain.WorkflowDefinition) { d.AutoApproveThreshold = &half })
	inst := f.start(def.ID, nil)
	_, err := f.decide("alice", inst.ID, 1, domain.DecisionApproved)
	require.NoError(t, err)

	f.clock.Add(5 * time.Hour)
	_, err = f.scheduler(1).Tick(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusApproved, f.instance(inst.ID).Status)
	h := f.history(inst.ID)
	last := h[len(h)-1]
	assert.Equal(t, domain.ActionEscalated, last.Action)
	assert.Equal(t, "approved", last.Details["autoDecision"])
}

func TestEscalate_AutoRejectThreshold(t *testing.T) {
	f := newFixture(t)
	one := 1.0
	def := f.define([]domain.StepDefinition{withQuorum(approvalStep(1, "alice", "bob", "carol"), 2)}, parallel,
		func(d *domain.WorkflowDefinition) {
			d.AutoRejectThreshold = &one
			d.ThresholdType = domain.ThresholdCount
		})
	inst := f.start(def.ID, nil)
	_, err := f.decide("carol", inst.ID, 1, domain.DecisionRejected)
	require.NoError(t, err)

	f.clock.Add(5 * time.Hour)
	_, err = f.scheduler(1).Tick(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusRejected, f.instance(inst.ID).Status)
}

func TestEscalate_EmptyApproverSetIsDueImmediately(t *testing.T) {
	f := newFixture(t)
	step := approvalStep(1, "ghost")
	step.Escalation = &domain.EscalationRule{Chain: []domain.ApproverSpec{domain.ExplicitUsers("carol")}}
	def := f.define([]domain.StepDefinition{step})
	inst := f.start(def.ID, nil)
	require.Empty(t, inst.CurrentApprovers)

	res, err := f.scheduler(1).Tick(f.ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Escalated)
	assert.Equal(t, domain.StringList{"carol"}, f.instance(inst.ID).CurrentApprovers)
}

func TestEscalate_SkipsStaleOrEarlyCalls(t *testing.T) {
	f := newFixture(t)
	def := f.define([]domain.StepDefinition{approvalStep(1, "alice")})
	inst := f.start(def.ID, nil)

	ok, err := f.orch.Escalate(f.ctx, inst.ID, 1, inst.Version)
	require.NoError(t, err)
	assert.False(t, ok, "not due yet")

	f.clock.Add(5 * time.Hour)
	ok, err = f.orch.Escalate(f.ctx, inst.ID, 1, inst.Version+7)
	require.NoError(t, err)
	assert.False(t, ok, "version moved on")

	ok, err = f.orch.Escalate(f.ctx, inst.ID, 1, inst.Version)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.orch.Escalate(f.ctx, inst.ID, 1, inst.Version)
	require.NoError(t, err)
	assert.False(t, ok, "second call with the scanned version")
	assert.Equal(t, 1, f.escalations(inst.ID))
}
