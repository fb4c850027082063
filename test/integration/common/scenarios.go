//go:build integration

package common

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/RealZimboGuy/approvalflow/internal/engine"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/models"
)

func step(n int, approvers ...string) domain.StepDefinition {
	return domain.StepDefinition{
		StepNumber: n,
		Name:       "review",
		Type:       domain.StepApproval,
		Approvers:  []domain.ApproverSpec{domain.ExplicitUsers(approvers...)},
		Timeout:    core.Duration(8 * time.Hour),
	}
}

// SequentialRejection drives a three step workflow over HTTP: alice approves
// step one, bob rejects step two and the instance stops there.
func SequentialRejection(t *testing.T, h *Harness) {
	requester := h.CreateUser(t, "requester", "")
	alice := h.CreateUser(t, "alice", "dana")
	bob := h.CreateUser(t, "bob", "dana")
	h.CreateUser(t, "carol", "")

	var def domain.WorkflowDefinition
	status := h.Do(t, http.MethodPost, "/api/definitions", h.AdminKey, domain.WorkflowDefinition{
		Name:      "purchase",
		Active:    true,
		SLATarget: core.Duration(24 * time.Hour),
		Steps:     []domain.StepDefinition{step(1, "alice"), step(2, "bob"), step(3, "carol")},
	}, &def)
	require.Equal(t, http.StatusCreated, status)

	var inst domain.WorkflowInstance
	status = h.Do(t, http.MethodPost, "/api/instances", requester, models.StartInstanceRequest{
		DefinitionID: def.ID,
		Title:        "Standing desk",
		ReferenceID:  "PO-1001",
	}, &inst)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, domain.StatusInProgress, inst.Status)

	path := "/api/instances/" + inst.ID
	status = h.Do(t, http.MethodPost, path+"/decisions", alice, models.DecisionRequest{StepNumber: 1, Decision: "approved"}, &inst)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, inst.CurrentStep)

	var denied models.ErrorResponse
	status = h.Do(t, http.MethodPost, path+"/decisions", alice, models.DecisionRequest{StepNumber: 2, Decision: "approved"}, &denied)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, string(core.KindForbidden), denied.Kind)

	status = h.Do(t, http.MethodPost, path+"/decisions", bob, models.DecisionRequest{StepNumber: 2, Decision: "rejected", Comment: "over budget"}, &inst)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.StatusRejected, inst.Status)
	assert.Equal(t, 2, inst.CurrentStep)

	var detail models.InstanceDetail
	status = h.Do(t, http.MethodGet, path, requester, nil, &detail)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, detail.Steps, 2, "step three is never activated")
	assert.Len(t, detail.Approvals, 2)

	var history []domain.HistoryEntry
	status = h.Do(t, http.MethodGet, path+"/history", requester, nil, &history)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, history, 3)
	for i, e := range history {
		assert.Equal(t, int64(i+1), e.Sequence)
	}

	var conflict models.ErrorResponse
	status = h.Do(t, http.MethodPost, path+"/cancel", requester, models.CancelRequest{Reason: "too late"}, &conflict)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, inst.ID, conflict.InstanceID)
	assert.Equal(t, string(domain.StatusRejected), conflict.Status)

	// the projection catches up asynchronously
	require.Eventually(t, func() bool {
		var stats domain.WorkflowStats
		if h.Do(t, http.MethodGet, "/api/stats?definitionId="+def.ID, h.AdminKey, nil, &stats) != http.StatusOK {
			return false
		}
		return stats.Total == 1 && stats.Rejected == 1 && len(stats.ApproverResponse) == 2
	}, 10*time.Second, 100*time.Millisecond)
}

// CancelIsIdempotent cancels twice and expects the same terminal state.
func CancelIsIdempotent(t *testing.T, h *Harness) {
	requester := h.CreateUser(t, "mallory", "")
	h.CreateUser(t, "trent", "")

	var def domain.WorkflowDefinition
	require.Equal(t, http.StatusCreated, h.Do(t, http.MethodPost, "/api/definitions", h.AdminKey, domain.WorkflowDefinition{
		Name: "access", Active: true, Steps: []domain.StepDefinition{step(1, "trent")},
	}, &def))
	var inst domain.WorkflowInstance
	require.Equal(t, http.StatusCreated, h.Do(t, http.MethodPost, "/api/instances", requester, models.StartInstanceRequest{
		DefinitionID: def.ID, Title: "prod access",
	}, &inst))

	for i := 0; i < 2; i++ {
		var out domain.WorkflowInstance
		status := h.Do(t, http.MethodPost, "/api/instances/"+inst.ID+"/cancel", requester, nil, &out)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, domain.StatusCancelled, out.Status)
	}
	var history []domain.HistoryEntry
	h.Do(t, http.MethodGet, "/api/instances/"+inst.ID+"/history", requester, nil, &history)
	assert.Len(t, history, 2)
}

// ConcurrentEscalation lets several schedulers scan the same overdue
// instances at once; each instance must be escalated exactly once.
func ConcurrentEscalation(t *testing.T, h *Harness) {
	ctx := context.Background()
	h.CreateUser(t, "erin", "")
	h.CreateUser(t, "oscar", "erin")
	admin := core.Principal{Username: "admin", TenantID: Tenant, Roles: []string{core.RoleAdmin}}

	s := step(1, "oscar")
	s.Timeout = core.Duration(time.Second)
	def, err := h.App.Definitions.Create(ctx, admin, &domain.WorkflowDefinition{
		Name:              "overdue",
		Active:            true,
		EscalationTimeout: core.Duration(time.Hour),
		Steps:             []domain.StepDefinition{s},
	})
	require.NoError(t, err)

	ids := make([]string, 8)
	for i := range ids {
		inst, err := h.App.Orchestrator.Start(ctx, admin, models.StartInstanceRequest{DefinitionID: def.ID, Title: "late"})
		require.NoError(t, err)
		ids[i] = inst.ID
	}
	time.Sleep(1500 * time.Millisecond)

	schedulers := make([]*engine.EscalationScheduler, 3)
	for i := range schedulers {
		schedulers[i] = engine.NewEscalationScheduler(h.App.Store, h.App.Orchestrator, h.App.Clock,
			engine.SchedulerOptions{BatchSize: 50, Workers: 4})
	}
	var mu sync.Mutex
	var total engine.TickResult
	var wg sync.WaitGroup
	for _, s := range schedulers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Tick(ctx)
			assert.NoError(t, err)
			mu.Lock()
			total.Escalated += res.Escalated
			total.Failed += res.Failed
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, len(ids), total.Escalated)
	assert.Zero(t, total.Failed)
	for _, id := range ids {
		history, err := h.App.Orchestrator.GetHistory(ctx, admin, id)
		require.NoError(t, err)
		escalations := 0
		for _, e := range history {
			if e.Action == domain.ActionEscalated {
				escalations++
			}
		}
		assert.Equal(t, 1, escalations, "instance %s", id)
	}
}

// ConcurrentDecisions has three approvers decide on the same step at the
// same moment. Every decision must land, the step must advance exactly once
// and the history must stay gap free.
func ConcurrentDecisions(t *testing.T, h *Harness) {
	ctx := context.Background()
	voters := []string{"uma", "vic", "wes"}
	for _, v := range voters {
		h.CreateUser(t, v, "")
	}
	h.CreateUser(t, "xena", "")
	admin := core.Principal{Username: "admin", TenantID: Tenant, Roles: []string{core.RoleAdmin}}

	board := step(1, voters...)
	board.RequiredApprovals = 3
	def, err := h.App.Definitions.Create(ctx, admin, &domain.WorkflowDefinition{
		Name:          "board",
		Active:        true,
		ExecutionMode: domain.ExecutionParallel,
		Steps:         []domain.StepDefinition{board, step(2, "xena")},
	})
	require.NoError(t, err)
	inst, err := h.App.Orchestrator.Start(ctx, admin, models.StartInstanceRequest{DefinitionID: def.ID, Title: "capex"})
	require.NoError(t, err)

	var g errgroup.Group
	for _, v := range voters {
		g.Go(func() error {
			p := core.Principal{Username: v, TenantID: Tenant}
			_, err := h.App.Orchestrator.RecordDecision(ctx, p, inst.ID, models.DecisionRequest{StepNumber: 1, Decision: "approved"})
			return err
		})
	}
	require.NoError(t, g.Wait())

	detail, err := h.App.Orchestrator.GetInstance(ctx, admin, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, detail.Instance.Status)
	assert.Equal(t, 2, detail.Instance.CurrentStep)
	assert.Equal(t, domain.StringList{"xena"}, detail.Instance.CurrentApprovers)
	assert.Len(t, detail.Approvals, 3)

	history, err := h.App.Orchestrator.GetHistory(ctx, admin, inst.ID)
	require.NoError(t, err)
	decisions := 0
	for i, e := range history {
		assert.Equal(t, int64(i+1), e.Sequence)
		if e.Action == domain.ActionDecisionRecorded {
			decisions++
		}
	}
	assert.Equal(t, 3, decisions)
	assert.Equal(t, int64(len(history)), detail.Instance.Version)
}
