package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/approvalflow/internal/repository"
	"github.com/RealZimboGuy/approvalflow/internal/testutil"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/models"
)

const tenant = "acme"

// Monday morning.
var epoch = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu      sync.Mutex
	intents []domain.NotificationIntent
}

func (n *recordingNotifier) Notify(_ context.Context, intents ...domain.NotificationIntent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.intents = append(n.intents, intents...)
}

func (n *recordingNotifier) ofKind(kind domain.NotificationKind) []domain.NotificationIntent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.NotificationIntent
	for _, i := range n.intents {
		if i.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	clock  *testutil.FakeClock
	store  *repository.Store
	defs   *DefinitionService
	orch   *Orchestrator
	notify *recordingNotifier
}

// newFixture seeds a small org: alice and bob report to dana, carol reports
// to erin, and "finance" holds frank and gina.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.NewFakeClock(epoch)
	store := testutil.NewSqliteStore(t, clock)
	testutil.SeedUser(t, store, tenant, "dana", "")
	testutil.SeedUser(t, store, tenant, "erin", "")
	testutil.SeedUser(t, store, tenant, "alice", "dana")
	testutil.SeedUser(t, store, tenant, "bob", "dana")
	testutil.SeedUser(t, store, tenant, "carol", "erin")
	testutil.SeedUser(t, store, tenant, "frank", "", "finance")
	testutil.SeedUser(t, store, tenant, "gina", "", "finance")
	testutil.SeedUser(t, store, tenant, "requester", "")

	notify := &recordingNotifier{}
	return &fixture{
		t:      t,
		ctx:    context.Background(),
		clock:  clock,
		store:  store,
		defs:   NewDefinitionService(store, clock),
		orch:   NewOrchestrator(store, Options{Clock: clock, Notifier: notify}),
		notify: notify,
	}
}

func approvalStep(n int, approvers ...string) domain.StepDefinition {
	return domain.StepDefinition{
		StepNumber: n,
		Name:       "step",
		Type:       domain.StepApproval,
		Approvers:  []domain.ApproverSpec{domain.ExplicitUsers(approvers...)},
		Timeout:    core.Duration(4 * time.Hour),
	}
}

func (f *fixture) define(steps []domain.StepDefinition, opts ...func(*domain.WorkflowDefinition)) *domain.WorkflowDefinition {
	f.t.Helper()
	def := &domain.WorkflowDefinition{Name: "purchase", Active: true, Steps: steps}
	for _, o := range opts {
		o(def)
	}
	out, err := f.defs.Create(f.ctx, testutil.Admin(tenant), def)
	require.NoError(f.t, err)
	return out
}

func (f *fixture) start(defID string, data map[string]any) *domain.WorkflowInstance {
	f.t.Helper()
	inst, err := f.orch.Start(f.ctx, testutil.Principal(tenant, "requester"), models.StartInstanceRequest{
		DefinitionID: defID,
		Title:        "Laptop for new hire",
		ContextData:  data,
	})
	require.NoError(f.t, err)
	return inst
}

func (f *fixture) decide(approver string, instanceID string, step int, d domain.Decision) (*domain.WorkflowInstance, error) {
	return f.orch.RecordDecision(f.ctx, testutil.Principal(tenant, approver), instanceID, models.DecisionRequest{
		StepNumber: step,
		Decision:   string(d),
	})
}

func (f *fixture) instance(id string) *domain.WorkflowInstance {
	f.t.Helper()
	inst, err := f.store.Instances.FindByID(f.ctx, id)
	require.NoError(f.t, err)
	return inst
}

func (f *fixture) history(id string) []domain.HistoryEntry {
	f.t.Helper()
	h, err := f.store.History.FindAllByInstanceID(f.ctx, id)
	require.NoError(f.t, err)
	return h
}

func (f *fixture) step(id string, n int) *domain.InstanceStep {
	f.t.Helper()
	st, err := f.store.Steps.Find(f.ctx, id, n)
	require.NoError(f.t, err)
	return st
}
