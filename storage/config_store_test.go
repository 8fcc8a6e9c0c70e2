package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) ConfigStore {
	t.Helper()
	store, err := NewConfigStore(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestConfigStoreRoundTrip(t *testing.T) {
	store := testStore(t)

	require.NoError(t, store.SetValue(KeyTenantID, "tenant-42"))
	got, err := store.GetString(KeyTenantID)
	require.NoError(t, err)
	assert.Equal(t, "tenant-42", got)

	// Overwrite wins.
	require.NoError(t, store.SetValue(KeyTenantID, "tenant-43"))
	got, err = store.GetString(KeyTenantID)
	require.NoError(t, err)
	assert.Equal(t, "tenant-43", got)
}

func TestConfigStoreStructuredValues(t *testing.T) {
	store := testStore(t)

	type user struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	require.NoError(t, store.SetValue(KeyUser, user{Name: "Martin", Email: "m@example.com"}))

	var loaded user
	require.NoError(t, store.GetValue(KeyUser, &loaded))
	assert.Equal(t, "Martin", loaded.Name)

	require.NoError(t, store.SetValue(KeyHeartbeatInterval, 45))
	var interval int
	require.NoError(t, store.GetValue(KeyHeartbeatInterval, &interval))
	assert.Equal(t, 45, interval)

	require.NoError(t, store.SetValue(KeyAutoRegister, true))
	var auto bool
	require.NoError(t, store.GetValue(KeyAutoRegister, &auto))
	assert.True(t, auto)
}

func TestConfigStoreMissingAndDeleted(t *testing.T) {
	store := testStore(t)

	var dest string
	assert.ErrorIs(t, store.GetValue("ghost", &dest), ErrNotFound)

	got, err := store.GetString("ghost")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.SetValue(KeyAPIKey, "secret"))
	require.NoError(t, store.DeleteValue(KeyAPIKey))
	assert.ErrorIs(t, store.GetValue(KeyAPIKey, &dest), ErrNotFound)

	// Deleting a missing key is not an error.
	require.NoError(t, store.DeleteValue("ghost"))
}
