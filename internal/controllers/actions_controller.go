package controllers

import (
	"context"
	"net/http"

	"github.com/RealZimboGuy/approvalflow/internal/util"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

// AuditService exposes the audit trail of an instance.
type AuditService interface {
	GetHistory(ctx context.Context, p core.Principal, instanceID string) ([]domain.HistoryEntry, error)
	ListApprovals(ctx context.Context, p core.Principal, instanceID string) ([]domain.Approval, error)
	ListSteps(ctx context.Context, p core.Principal, instanceID string) ([]domain.InstanceStep, error)
}

// ActionsController serves what happened to an instance: history entries,
// recorded decisions and step activations.
type ActionsController struct {
	AuthController
	Audit AuditService
}

func NewActionsController(audit AuditService, base AuthController) *ActionsController {
	return &ActionsController{AuthController: base, Audit: audit}
}

func (c *ActionsController) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	results, err := c.Audit.GetHistory(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, results)
}

func (c *ActionsController) handleGetApprovals(w http.ResponseWriter, r *http.Request) {
	results, err := c.Audit.ListApprovals(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, results)
}

func (c *ActionsController) handleGetSteps(w http.ResponseWriter, r *http.Request) {
	results, err := c.Audit.ListSteps(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, results)
}
