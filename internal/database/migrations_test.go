//go:build integration

package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/crmkb/internal/database"
	"github.com/cloo-solutions/crmkb/internal/testutil"
)

func TestRunMigrations_UpIsIdempotentAndReversible(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	url := pc.ConnectionString()
	require.NoError(t, database.RunMigrations(url, "../../migrations", nil))
	require.NoError(t, database.RunMigrations(url, "../../migrations", nil))

	pool, err := database.NewPool(ctx, database.Config{URL: url, MaxConns: 2})
	require.NoError(t, err)
	defer pool.Close()

	var fn string
	require.NoError(t, pool.QueryRow(ctx, `SELECT proname FROM pg_proc WHERE proname = 'match_crm_documents'`).Scan(&fn))
	assert.Equal(t, "match_crm_documents", fn)

	require.NoError(t, database.RollbackMigrations(url, "../../migrations", 1, nil))

	var exists bool
	require.NoError(t, pool.QueryRow(ctx, `SELECT to_regclass('public.knowledge_documents') IS NOT NULL`).Scan(&exists))
	assert.False(t, exists)
}
