package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/RealZimboGuy/approvalflow/internal/util"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/models"
)

// DefinitionService is implemented by engine.DefinitionService.
type DefinitionService interface {
	Create(ctx context.Context, p core.Principal, def *domain.WorkflowDefinition) (*domain.WorkflowDefinition, error)
	Get(ctx context.Context, p core.Principal, id string) (*domain.WorkflowDefinition, error)
	List(ctx context.Context, p core.Principal, f models.DefinitionFilter) ([]domain.WorkflowDefinition, error)
	Update(ctx context.Context, p core.Principal, id string, in *domain.WorkflowDefinition) (*domain.WorkflowDefinition, error)
	Delete(ctx context.Context, p core.Principal, id string) error
}

type DefinitionsController struct {
	AuthController
	Definitions DefinitionService
}

func NewDefinitionsController(definitions DefinitionService, base AuthController) *DefinitionsController {
	return &DefinitionsController{AuthController: base, Definitions: definitions}
}

func (c *DefinitionsController) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := util.DecodeJSONBody[domain.WorkflowDefinition](r)
	if err != nil {
		badRequest(w, r, "invalid JSON payload")
		return
	}
	out, err := c.Definitions.Create(r.Context(), principal(r), &def)
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusCreated, out)
}

func (c *DefinitionsController) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	out, err := c.Definitions.Get(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, out)
}

func (c *DefinitionsController) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
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
	activeOnly, _ := strconv.ParseBool(q.Get("activeOnly"))
	out, err := c.Definitions.List(r.Context(), principal(r), models.DefinitionFilter{
		Name:       q.Get("name"),
		ActiveOnly: activeOnly,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, out)
}

func (c *DefinitionsController) handleUpdateDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := util.DecodeJSONBody[domain.WorkflowDefinition](r)
	if err != nil {
		badRequest(w, r, "invalid JSON payload")
		return
	}
	out, err := c.Definitions.Update(r.Context(), principal(r), r.PathValue("id"), &def)
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, out)
}

func (c *DefinitionsController) handleDeleteDefinition(w http.ResponseWriter, r *http.Request) {
	if err := c.Definitions.Delete(r.Context(), principal(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
