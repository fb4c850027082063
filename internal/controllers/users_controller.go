package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/RealZimboGuy/approvalflow/internal/auth"
	"github.com/RealZimboGuy/approvalflow/internal/util"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/models"
)

// UserRepo is the user store as seen by the users endpoints.
type UserRepo interface {
	UserLookup
	auth.KeyStore
	FindAll(ctx context.Context, tenantID string) ([]domain.User, error)
	DeleteById(ctx context.Context, id int64) error
	AssignRoles(ctx context.Context, userID int64, tenantID string, roles []string) error
}

type UsersController struct {
	AuthController
	UserRepo UserRepo
}

func NewUsersController(userRepo UserRepo, base AuthController) *UsersController {
	return &UsersController{
		UserRepo:       userRepo,
		AuthController: base,
	}
}

// handleGetUsers returns the caller's tenant users
func (c *UsersController) handleGetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := c.UserRepo.FindAll(r.Context(), principal(r).TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, users)
}

// handleCreateUser creates a user in the caller's tenant and returns its API key once
func (c *UsersController) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if !p.IsAdmin() {
		writeError(w, r, core.Forbiddenf("only administrators may create users"))
		return
	}
	req, err := util.DecodeJSONBody[models.CreateUserRequest](r)
	if err != nil {
		badRequest(w, r, "invalid user data")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		badRequest(w, r, "username is required")
		return
	}
	out, err := auth.CreateUser(r.Context(), c.UserRepo, p.TenantID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "User created", "user", out.Username, "tenant_id", p.TenantID, "by", p.Username)
	util.WriteJSONResponse(w, http.StatusCreated, out)
}

// handleDeleteUser deletes a user by ID
func (c *UsersController) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if !p.IsAdmin() {
		writeError(w, r, core.Forbiddenf("only administrators may delete users"))
		return
	}
	u, ok := c.tenantUser(w, r, p)
	if !ok {
		return
	}
	if err := c.UserRepo.DeleteById(r.Context(), u.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *UsersController) handleAssignRoles(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if !p.IsAdmin() {
		writeError(w, r, core.Forbiddenf("only administrators may assign roles"))
		return
	}
	u, ok := c.tenantUser(w, r, p)
	if !ok {
		return
	}
	req, err := util.DecodeJSONBody[models.AssignRolesRequest](r)
	if err != nil {
		badRequest(w, r, "invalid roles payload")
		return
	}
	if err := c.UserRepo.AssignRoles(r.Context(), u.ID, u.TenantID, req.Roles); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := c.UserRepo.FindById(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, updated)
}

// tenantUser loads the {id} user; users of other tenants are reported as missing.
func (c *UsersController) tenantUser(w http.ResponseWriter, r *http.Request, p core.Principal) (*domain.User, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		badRequest(w, r, "invalid user ID")
		return nil, false
	}
	u, err := c.UserRepo.FindById(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if u == nil || u.TenantID != p.TenantID {
		writeError(w, r, core.NotFoundf("user %d not found", id))
		return nil, false
	}
	return u, true
}
