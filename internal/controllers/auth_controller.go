package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/RealZimboGuy/approvalflow/internal/auth"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

// UserLookup is what authentication needs from the user store.
type UserLookup interface {
	FindById(ctx context.Context, id int64) (*domain.User, error)
	UpdateLastSeen(ctx context.Context, id int64, ts time.Time) error
}

type AuthController struct {
	UserRepo UserLookup
	Clock    core.Clock
}

func NewBaseController(userRepo UserLookup, clock core.Clock) AuthController {
	if clock == nil {
		clock = core.NewRealClock()
	}
	return AuthController{UserRepo: userRepo, Clock: clock}
}

// RequireAuth authenticates X-API-Key: <userID>.<secret> and attaches the
// caller's principal to the request context.
func (wc *AuthController) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			unauthorized(w)
			return
		}
		id, secret, err := auth.ParseKey(apiKey)
		if err != nil {
			unauthorized(w)
			return
		}
		u, err := wc.UserRepo.FindById(r.Context(), id)
		if err != nil {
			if core.IsKind(err, core.KindUnavailable) {
				writeError(w, r, err)
				return
			}
			unauthorized(w)
			return
		}
		if u == nil || !u.Enabled || !auth.Verify(u.ApiKeyHash, secret) {
			unauthorized(w)
			return
		}
		if err := wc.UserRepo.UpdateLastSeen(r.Context(), u.ID, wc.Clock.Now().UTC()); err != nil {
			slog.WarnContext(r.Context(), "Failed to update last seen", "user", u.Username, "error", err)
		}
		ctx := core.WithPrincipal(r.Context(), core.Principal{
			Username: u.Username,
			TenantID: u.TenantID,
			Roles:    u.Roles,
		})
		next(w, r.WithContext(ctx))
	}
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
