package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/aretw0/promptflow/pkg/adapters/postgres"
	"github.com/aretw0/promptflow/pkg/ports"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("PROMPTFLOW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PROMPTFLOW_TEST_POSTGRES_DSN not set")
	}
	pool, err := postgres.Connect(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestGraphStore_Contract(t *testing.T) {
	ports.RunGraphStoreContract(t, postgres.NewGraphStore(connect(t)))
}

func TestJobStore_Contract(t *testing.T) {
	ports.RunJobStoreContract(t, postgres.NewJobStore(connect(t)))
}
