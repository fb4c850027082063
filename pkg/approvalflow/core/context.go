package core

import "context"

type ctxKey string

const (
	CtxKeyExecutorId ctxKey = ctxKey("executorId")
	CtxKeyUsername   ctxKey = ctxKey("username")
	CtxKeyTenantID   ctxKey = ctxKey("tenantId")
	CtxKeyRoles      ctxKey = ctxKey("roles")
)

const RoleAdmin = "admin"

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	Username string
	TenantID string
	Roles    []string
}

func (p Principal) IsAdmin() bool {
	for _, r := range p.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUsername, p.Username)
	ctx = context.WithValue(ctx, CtxKeyTenantID, p.TenantID)
	return context.WithValue(ctx, CtxKeyRoles, p.Roles)
}

// PrincipalFrom returns the caller stored by WithPrincipal, ok=false when absent.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	username, _ := ctx.Value(CtxKeyUsername).(string)
	tenant, _ := ctx.Value(CtxKeyTenantID).(string)
	roles, _ := ctx.Value(CtxKeyRoles).([]string)
	if username == "" || tenant == "" {
		return Principal{}, false
	}
	return Principal{Username: username, TenantID: tenant, Roles: roles}, true
}
