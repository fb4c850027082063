package controllers

import (
	"context"
	"net/http"

	"github.com/RealZimboGuy/approvalflow/internal/util"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

type StatsService interface {
	GetStats(ctx context.Context, p core.Principal, definitionID string, windowDays int) (*domain.WorkflowStats, error)
}

type StatsController struct {
	AuthController
	Stats StatsService
}

func NewStatsController(stats StatsService, base AuthController) *StatsController {
	return &StatsController{AuthController: base, Stats: stats}
}

func (c *StatsController) handleGetStats(w http.ResponseWriter, r *http.Request) {
	windowDays, err := queryInt(r, "windowDays", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := c.Stats.GetStats(r.Context(), principal(r), r.URL.Query().Get("definitionId"), windowDays)
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, out)
}
