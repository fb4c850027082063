//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/RealZimboGuy/approvalflow/internal/config"
	"github.com/RealZimboGuy/approvalflow/internal/repository"
	"github.com/RealZimboGuy/approvalflow/test/integration/common"
)

func SetupPostgresTestInstance(t *testing.T, ctx context.Context) repository.DatabaseSettings {
	t.Helper()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return repository.DatabaseSettings{Type: config.DATABASE_TYPE_POSTGRES, URL: dsn}
}

func runTestWithSetup(t *testing.T, testFunc func(t *testing.T, h *common.Harness)) {
	settings := SetupPostgresTestInstance(t, t.Context())
	testFunc(t, common.Boot(t, settings))
}
