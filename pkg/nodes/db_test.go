package nodes_test

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/promptflow/pkg/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteQueryNode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE pets (name TEXT, age INTEGER); INSERT INTO pets VALUES ('rex', 3), ('tom', 5);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	q := nodes.NewSQLiteQueryNode()
	configure(t, q, map[string]any{"dbpath": path})
	assert.Equal(t, "rex, 3\ntom, 5", mustRun(t, q, stateWith("SELECT name, age FROM pets ORDER BY name")))
	assert.Equal(t, "", mustRun(t, q, stateWith("SELECT name FROM pets WHERE age > 10")))

	_, err = run(t, q, stateWith("SELECT * FROM missing"))
	assert.Error(t, err)

	_, err = run(t, nodes.NewSQLiteQueryNode(), stateWith("SELECT 1"))
	assert.Error(t, err)
}

func TestPGQueryNode(t *testing.T) {
	dsn := os.Getenv("PROMPTFLOW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PROMPTFLOW_TEST_POSTGRES_DSN not set")
	}
	q := nodes.NewPGQueryNode()
	configure(t, q, map[string]any{"dsn": dsn})
	assert.Equal(t, "42", mustRun(t, q, stateWith("SELECT 42")))
	assert.Equal(t, "", mustRun(t, q, stateWith("SELECT 1 WHERE false")))
}
