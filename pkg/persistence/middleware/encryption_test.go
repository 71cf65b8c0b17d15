package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/promptflow/pkg/adapters/memory"
	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/persistence/middleware"
	"github.com/aretw0/promptflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, cfg middleware.EncryptionConfig) middleware.Middleware {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw
}

func newJob(t *testing.T, store ports.JobStore) string {
	t.Helper()
	id, err := store.Create(context.Background(), "g", nil)
	require.NoError(t, err)
	return id
}

func secretState(value string) *domain.State {
	st := domain.NewState()
	st.Snapshot["Secret"] = value
	st.Result = value
	st.History = append(st.History, domain.Message{Role: "user", Content: value})
	return st
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewJobStore()
	secure := encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	id := newJob(t, secure)

	require.NoError(t, secure.SetOutput(ctx, id, secretState("my-secret-sauce")))

	stored, err := underlying.Output(ctx, id)
	require.NoError(t, err)
	assert.NotContains(t, stored.Snapshot, "Secret")
	assert.Empty(t, stored.Result)
	assert.Empty(t, stored.History)
	assert.Contains(t, stored.Snapshot, "__encrypted__")

	loaded, err := secure.Output(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", loaded.Snapshot["Secret"])
	assert.Equal(t, "my-secret-sauce", loaded.Result)
	require.Len(t, loaded.History, 1)

	// Other operations pass through.
	job, err := secure.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "g", job.GraphID)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewJobStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)

	withOld := encrypted(t, middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	id := newJob(t, withOld)
	require.NoError(t, withOld.SetOutput(ctx, id, secretState("encrypted-with-old-key")))

	withNew := encrypted(t, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)

	loaded, err := withNew.Output(ctx, id)
	require.NoError(t, err, "fallback key decrypts old output")
	assert.Equal(t, "encrypted-with-old-key", loaded.Result)

	require.NoError(t, withNew.SetOutput(ctx, id, secretState("encrypted-with-new-key")))
	_, err = withOld.Output(ctx, id)
	assert.Error(t, err, "old key alone cannot read new output")
}

func TestEncryptionMiddleware_RefusesPlainOutput(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewJobStore()
	id := newJob(t, underlying)
	require.NoError(t, underlying.SetOutput(ctx, id, secretState("plain")))

	secure := encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	_, err := secure.Output(ctx, id)
	assert.ErrorContains(t, err, "missing encrypted data envelope")
}

func TestEncryptionMiddleware_NoOutputYet(t *testing.T) {
	underlying := memory.NewJobStore()
	secure := encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	id := newJob(t, secure)

	_, err := secure.Output(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNoOutput)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.Error(t, err)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	assert.Error(t, err)
}
