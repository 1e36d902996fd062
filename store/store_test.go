package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpay/chatpay-go/store"
)

func testSessionStore(t *testing.T, st store.SessionStore) {
	ctx := context.Background()

	token, err := st.GetToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, st.PutToken(ctx, "tok-1"))
	require.NoError(t, st.PutOnboardingHint(ctx, true))
	token, err = st.GetToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	pending, err := st.GetOnboardingHint(ctx)
	require.NoError(t, err)
	assert.True(t, pending)

	require.NoError(t, st.DeleteToken(ctx))
	token, err = st.GetToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
	pending, err = st.GetOnboardingHint(ctx)
	require.NoError(t, err)
	assert.True(t, pending, "deleting the token must not touch the hint")

	require.NoError(t, st.PutOnboardingHint(ctx, false))
	pending, err = st.GetOnboardingHint(ctx)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestMemoryStore(t *testing.T) {
	testSessionStore(t, store.NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	testSessionStore(t, store.NewFileStore(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "empty state should remove the file")

	fst := store.NewFileStore(path)
	require.NoError(t, fst.PutToken(context.Background(), "persisted"))
	token, err := store.NewFileStore(path).GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "persisted", token)
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	_, err := store.NewFileStore(path).GetToken(context.Background())
	assert.Error(t, err)
}
