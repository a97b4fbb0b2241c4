package sqlstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/warp/care-ledger/store/sqlstore"
)

// TestPostgres runs the store contract against a throwaway Postgres. Every
// subtest gets a fresh database cloned from a migrated snapshot.
func TestPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("careledger"),
		postgres.WithUsername("careledger"),
		postgres.WithPassword("careledger"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Migrate once, then snapshot the schema.
	s, err := sqlstore.OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, ctr.Snapshot(ctx, postgres.WithSnapshotName("migrated")))

	runContract(t, func(t *testing.T) *sqlstore.Store {
		t.Helper()
		require.NoError(t, ctr.Restore(ctx))
		s, err := sqlstore.OpenPostgres(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
