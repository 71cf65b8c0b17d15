package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/promptflow/pkg/adapters/sqlite"
	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "promptflow.db")
}

func TestGraphStore_Contract(t *testing.T) {
	db, err := sqlite.Open(context.Background(), openDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ports.RunGraphStoreContract(t, sqlite.NewGraphStore(db))
}

func TestJobStore_Contract(t *testing.T) {
	db, err := sqlite.Open(context.Background(), openDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ports.RunJobStoreContract(t, sqlite.NewJobStore(db))
}

func TestOpen_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := openDB(t)

	db, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, sqlite.NewGraphStore(db).Save(ctx, &domain.GraphDocument{UID: "g", Label: "kept"}))
	require.NoError(t, db.Close())

	db, err = sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()
	doc, err := sqlite.NewGraphStore(db).Load(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, "kept", doc.Label)
}
