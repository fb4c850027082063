package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

// UserRepository provides persistence for users and user_roles, and is the
// SQL backed identity directory used to resolve approver roles.
type UserRepository struct {
	q     sqlx.ExtContext
	clock core.Clock
}

func NewUserRepository(q sqlx.ExtContext, clock core.Clock) *UserRepository {
	return &UserRepository{q: q, clock: clock}
}

const userColumns = ` id, tenant_id, username, api_key_hash, manager, enabled, created, last_seen `

// Save inserts a new user with its roles and returns the generated id.
// It will set Created to now if it's not provided.
func (r *UserRepository) Save(ctx context.Context, u *domain.User) (int64, error) {
	if u.Created.IsZero() {
		u.Created = r.clock.Now().UTC()
	}
	base := `INSERT INTO users (tenant_id, username, api_key_hash, manager, enabled, created)
		VALUES (?, ?, ?, ?, ?, ?)`
	id, err := insertReturningID(ctx, r.q, base,
		u.TenantID, u.Username, u.ApiKeyHash, u.Manager, u.Enabled, formatDateInDatabase(r.q, u.Created))
	if err != nil {
		return 0, err
	}
	u.ID = id
	if err := r.AssignRoles(ctx, u.ID, u.TenantID, u.Roles); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *UserRepository) AssignRoles(ctx context.Context, userID int64, tenantID string, roles []string) error {
	query := `INSERT INTO user_roles (user_id, tenant_id, role) VALUES (?, ?, ?)` +
		upsertClause(r.q, []string{"user_id", "role"}, []string{"tenant_id"})
	for _, role := range roles {
		if _, err := r.q.ExecContext(ctx, r.q.Rebind(query), userID, tenantID, role); err != nil {
			return classify(err)
		}
	}
	return nil
}

func (r *UserRepository) FindById(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	var u domain.User
	if err := sqlx.GetContext(ctx, r.q, &u, r.q.Rebind(query), id); err != nil {
		return nil, notFound(classify(err), "user %d not found", id)
	}
	return r.withRoles(ctx, &u)
}

func (r *UserRepository) FindByUsername(ctx context.Context, tenantID string, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = ? AND username = ?`
	var u domain.User
	if err := sqlx.GetContext(ctx, r.q, &u, r.q.Rebind(query), tenantID, username); err != nil {
		return nil, notFound(classify(err), "user %s not found", username)
	}
	return r.withRoles(ctx, &u)
}

// FindAll returns the tenant's users ordered by id ascending.
func (r *UserRepository) FindAll(ctx context.Context, tenantID string) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = ? ORDER BY id ASC`
	users := make([]domain.User, 0)
	if err := sqlx.SelectContext(ctx, r.q, &users, r.q.Rebind(query), tenantID); err != nil {
		return nil, classify(err)
	}
	for i := range users {
		if _, err := r.withRoles(ctx, &users[i]); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (r *UserRepository) withRoles(ctx context.Context, u *domain.User) (*domain.User, error) {
	roles := make([]string, 0)
	err := sqlx.SelectContext(ctx, r.q, &roles, r.q.Rebind(`SELECT role FROM user_roles WHERE user_id = ? ORDER BY role`), u.ID)
	if err != nil {
		return nil, classify(err)
	}
	u.Roles = roles
	return u, nil
}

func (r *UserRepository) DeleteById(ctx context.Context, id int64) error {
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM user_roles WHERE user_id = ?`), id); err != nil {
		return classify(err)
	}
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return classify(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.NotFoundf("user %d not found", id)
	}
	return nil
}

func (r *UserRepository) UpdateLastSeen(ctx context.Context, id int64, ts time.Time) error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`UPDATE users SET last_seen = ? WHERE id = ?`), formatDateInDatabase(r.q, ts), id)
	return classify(err)
}

func (r *UserRepository) UpdateApiKey(ctx context.Context, id int64, hash string) error {
	res, err := r.q.ExecContext(ctx, r.q.Rebind(`UPDATE users SET api_key_hash = ? WHERE id = ?`), hash, id)
	if err != nil {
		return classify(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.NotFoundf("user %d not found", id)
	}
	return nil
}

// ResolveRole returns the enabled users holding role within the tenant.
func (r *UserRepository) ResolveRole(ctx context.Context, tenantID string, role string) ([]string, error) {
	query := `SELECT u.username FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		WHERE u.tenant_id = ? AND ur.role = ? AND u.enabled = ?
		ORDER BY u.username`
	out := make([]string, 0)
	if err := sqlx.SelectContext(ctx, r.q, &out, r.q.Rebind(query), tenantID, role, true); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// ActiveUsers filters userIDs down to enabled members of the tenant, preserving order.
func (r *UserRepository) ActiveUsers(ctx context.Context, tenantID string, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return []string{}, nil
	}
	query, args, err := sqlx.In(`SELECT username FROM users WHERE tenant_id = ? AND enabled = ? AND username IN (?)`,
		tenantID, true, userIDs)
	if err != nil {
		return nil, err
	}
	found := make([]string, 0)
	if err := sqlx.SelectContext(ctx, r.q, &found, r.q.Rebind(query), args...); err != nil {
		return nil, classify(err)
	}
	active := make(map[string]bool, len(found))
	for _, u := range found {
		active[u] = true
	}
	out := make([]string, 0, len(found))
	for _, id := range userIDs {
		if active[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// ManagersOf returns the distinct managers of the given users.
func (r *UserRepository) ManagersOf(ctx context.Context, tenantID string, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return []string{}, nil
	}
	query, args, err := sqlx.In(`SELECT DISTINCT manager FROM users
		WHERE tenant_id = ? AND manager IS NOT NULL AND username IN (?)
		ORDER BY manager`, tenantID, userIDs)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0)
	if err := sqlx.SelectContext(ctx, r.q, &out, r.q.Rebind(query), args...); err != nil {
		return nil, classify(err)
	}
	return out, nil
}
