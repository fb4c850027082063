package controllers

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes wires the HTTP routes for this controller.
func (c *DefinitionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/definitions", c.RequireAuth(c.handleCreateDefinition))
	mux.HandleFunc("GET /api/definitions", c.RequireAuth(c.handleListDefinitions))
	mux.HandleFunc("GET /api/definitions/{id}", c.RequireAuth(c.handleGetDefinition))
	mux.HandleFunc("PUT /api/definitions/{id}", c.RequireAuth(c.handleUpdateDefinition))
	mux.HandleFunc("DELETE /api/definitions/{id}", c.RequireAuth(c.handleDeleteDefinition))
}
func (c *InstancesController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/instances", c.RequireAuth(c.handleStartInstance))
	mux.HandleFunc("GET /api/instances", c.RequireAuth(c.handleListInstances))
	mux.HandleFunc("GET /api/instances/{id}", c.RequireAuth(c.handleGetInstance))
	mux.HandleFunc("POST /api/instances/{id}/decisions", c.RequireAuth(c.handleRecordDecision))
	mux.HandleFunc("POST /api/instances/{id}/cancel", c.RequireAuth(c.handleCancelInstance))
	mux.HandleFunc("POST /api/instances/{id}/comments", c.RequireAuth(c.handleAddComment))
	mux.HandleFunc("GET /api/instances/{id}/comments", c.RequireAuth(c.handleListComments))
}
func (c *ActionsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/instances/{id}/history", c.RequireAuth(c.handleGetHistory))
	mux.HandleFunc("GET /api/instances/{id}/approvals", c.RequireAuth(c.handleGetApprovals))
	mux.HandleFunc("GET /api/instances/{id}/steps", c.RequireAuth(c.handleGetSteps))
}
func (c *StatsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stats", c.RequireAuth(c.handleGetStats))
}
func (c *ExecutorsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/executors", c.RequireAuth(c.handleGetExecutors))
}
func (c *UsersController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users", c.RequireAuth(c.handleGetUsers))
	mux.HandleFunc("POST /api/users", c.RequireAuth(c.handleCreateUser))
	mux.HandleFunc("DELETE /api/users/{id}", c.RequireAuth(c.handleDeleteUser))
	mux.HandleFunc("POST /api/users/{id}/roles", c.RequireAuth(c.handleAssignRoles))
}

// Services groups what the HTTP surface needs.
type Services struct {
	Definitions DefinitionService
	Instances   interface {
		InstanceService
		AuditService
	}
	Stats     StatsService
	Executors ExecutorRepo
	Users     UserRepo
	// Ping reports database reachability for /healthz.
	Ping func(ctx context.Context) error
}

// NewRouter registers every API route plus /metrics and /healthz.
func NewRouter(s Services, base AuthController) *http.ServeMux {
	mux := http.NewServeMux()
	NewDefinitionsController(s.Definitions, base).RegisterRoutes(mux)
	NewInstancesController(s.Instances, base).RegisterRoutes(mux)
	NewActionsController(s.Instances, base).RegisterRoutes(mux)
	NewStatsController(s.Stats, base).RegisterRoutes(mux)
	NewExecutorsController(s.Executors, base).RegisterRoutes(mux)
	NewUsersController(s.Users, base).RegisterRoutes(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if s.Ping != nil {
			if err := s.Ping(r.Context()); err != nil {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
