//go:build postgres_integration

package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Ping(t.Context()))
	require.NoError(t, p.Migrate(t.Context()))

	j, err := p.CreateJob(t.Context(), Job{Kind: "vrp"})
	require.NoError(t, err)
	require.NoError(t, p.StartJob(t.Context(), j.ID))
	_, _, err = p.ListJobs(t.Context(), "", "", 1)
	require.NoError(t, err)
}
