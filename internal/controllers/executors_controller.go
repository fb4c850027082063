package controllers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/RealZimboGuy/approvalflow/internal/util"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

// ExecutorRepo lists the escalation schedulers that have registered.
type ExecutorRepo interface {
	GetExecutorsByLastActive(ctx context.Context, limit int) ([]*domain.Executor, error)
}

type ExecutorsController struct {
	AuthController
	ExecutorsRepo ExecutorRepo
}

func NewExecutorsController(executorsRepo ExecutorRepo, base AuthController) *ExecutorsController {
	return &ExecutorsController{
		ExecutorsRepo:  executorsRepo,
		AuthController: base,
	}
}

func (c *ExecutorsController) handleGetExecutors(w http.ResponseWriter, r *http.Request) {
	slog.DebugContext(r.Context(), "GetExecutors called")

	results, err := c.ExecutorsRepo.GetExecutorsByLastActive(r.Context(), 20)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []*domain.Executor{}
	}
	util.WriteJSONResponse(w, http.StatusOK, results)
}
