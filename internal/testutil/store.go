package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/approvalflow/internal/config"
	"github.com/RealZimboGuy/approvalflow/internal/repository"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

// NewSqliteStore opens a migrated SQLite database in a temp dir.
func NewSqliteStore(t testing.TB, clock core.Clock) *repository.Store {
	t.Helper()
	db, err := repository.Open(repository.DatabaseSettings{
		Type:       config.DATABASE_TYPE_SQLLITE,
		SqliteFile: filepath.Join(t.TempDir(), "approvalflow.db"),
	})
	require.NoError(t, err)
	store := repository.NewStore(db, clock)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// SeedUser creates an enabled user. manager may be empty.
func SeedUser(t testing.TB, store *repository.Store, tenant, username, manager string, roles ...string) *domain.User {
	t.Helper()
	u := &domain.User{TenantID: tenant, Username: username, Enabled: true, Roles: roles}
	if manager != "" {
		m := manager
		u.Manager = &m
	}
	if u.Roles == nil {
		u.Roles = []string{}
	}
	_, err := store.Users.Save(context.Background(), u)
	require.NoError(t, err)
	return u
}

func Principal(tenant, username string, roles ...string) core.Principal {
	return core.Principal{Username: username, TenantID: tenant, Roles: roles}
}

func Admin(tenant string) core.Principal {
	return Principal(tenant, "admin", core.RoleAdmin)
}
