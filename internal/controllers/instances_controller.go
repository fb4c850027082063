package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/RealZimboGuy/approvalflow/internal/util"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/models"
)

// InstanceService is implemented by engine.Orchestrator.
type InstanceService interface {
	Start(ctx context.Context, p core.Principal, req models.StartInstanceRequest) (*domain.WorkflowInstance, error)
	GetInstance(ctx context.Context, p core.Principal, instanceID string) (*models.InstanceDetail, error)
	ListInstances(ctx context.Context, p core.Principal, f models.InstanceFilter) ([]domain.WorkflowInstance, error)
	RecordDecision(ctx context.Context, p core.Principal, instanceID string, req models.DecisionRequest) (*domain.WorkflowInstance, error)
	Cancel(ctx context.Context, p core.Principal, instanceID string, reason string) (*domain.WorkflowInstance, error)
	AddComment(ctx context.Context, p core.Principal, instanceID string, req models.AddCommentRequest) (*domain.Comment, error)
	ListComments(ctx context.Context, p core.Principal, instanceID string, includeInternal bool) ([]domain.Comment, error)
}

// InstancesController holds dependencies for approval instance endpoints.
type InstancesController struct {
	AuthController
	Instances InstanceService
}

func NewInstancesController(instances InstanceService, base AuthController) *InstancesController {
	return &InstancesController{AuthController: base, Instances: instances}
}

func (c *InstancesController) handleStartInstance(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[models.StartInstanceRequest](r)
	if err != nil {
		badRequest(w, r, "invalid JSON payload")
		return
	}
	p := principal(r)
	slog.InfoContext(r.Context(), "Starting instance", "definition_id", req.DefinitionID, "tenant_id", p.TenantID, "user", p.Username)
	out, err := c.Instances.Start(r.Context(), p, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusCreated, out)
}

func (c *InstancesController) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	out, err := c.Instances.GetInstance(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, out)
}

func (c *InstancesController) handleListInstances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := c.Instances.ListInstances(r.Context(), principal(r), models.InstanceFilter{
		Status:       q.Get("status"),
		AssignedTo:   q.Get("assignedTo"),
		CreatedBy:    q.Get("createdBy"),
		Priority:     q.Get("priority"),
		DefinitionID: q.Get("definitionId"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, out)
}

func (c *InstancesController) handleRecordDecision(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[models.DecisionRequest](r)
	if err != nil {
		badRequest(w, r, "invalid JSON payload")
		return
	}
	out, err := c.Instances.RecordDecision(r.Context(), principal(r), r.PathValue("id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, out)
}

func (c *InstancesController) handleCancelInstance(w http.ResponseWriter, r *http.Request) {
	var req models.CancelRequest
	if r.ContentLength != 0 {
		decoded, err := util.DecodeJSONBody[models.CancelRequest](r)
		if err != nil {
			badRequest(w, r, "invalid JSON payload")
			return
		}
		req = decoded
	}
	out, err := c.Instances.Cancel(r.Context(), principal(r), r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, out)
}

func (c *InstancesController) handleAddComment(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[models.AddCommentRequest](r)
	if err != nil {
		badRequest(w, r, "invalid JSON payload")
		return
	}
	out, err := c.Instances.AddComment(r.Context(), principal(r), r.PathValue("id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusCreated, out)
}

func (c *InstancesController) handleListComments(w http.ResponseWriter, r *http.Request) {
	includeInternal := true
	if v := r.URL.Query().Get("includeInternal"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(w, r, "includeInternal must be a boolean")
			return
		}
		includeInternal = b
	}
	out, err := c.Instances.ListComments(r.Context(), principal(r), r.PathValue("id"), includeInternal)
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, out)
}
