package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialCache_SetGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache, err := OpenCredentialCache(dir)
	require.NoError(t, err)

	require.NoError(t, cache.Set("u1", "hunter2"))

	got, ok := cache.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "hunter2", got)

	_, ok = cache.Get("unknown-device")
	assert.False(t, ok)
}

func TestCredentialCache_KeyFileIsPrivate(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenCredentialCache(dir)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, keyFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCredentialCache_ClearRemovesPasswordAndToken(t *testing.T) {
	dir := t.TempDir()
	cache, err := OpenCredentialCache(dir)
	require.NoError(t, err)

	require.NoError(t, cache.Set("u1", "hunter2"))
	cache.SetToken("u1", "tok-abc")

	require.NoError(t, cache.Clear("u1"))

	_, ok := cache.Get("u1")
	assert.False(t, ok)
	_, ok = cache.Token("u1")
	assert.False(t, ok)
}

func TestCredentialCache_CiphertextDiffersAcrossDevices(t *testing.T) {
	dir := t.TempDir()
	cache, err := OpenCredentialCache(dir)
	require.NoError(t, err)

	require.NoError(t, cache.Set("u1", "same-password"))
	require.NoError(t, cache.Set("u2", "same-password"))

	doc := cache.store.Snapshot()
	assert.NotEqual(t, doc.Entries["u1"].Ciphertext, doc.Entries["u2"].Ciphertext, "per-device subkeys must produce distinct ciphertext for the same password")
}

func TestCredentialCache_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cache, err := OpenCredentialCache(dir)
	require.NoError(t, err)
	require.NoError(t, cache.Set("u1", "hunter2"))

	reopened, err := OpenCredentialCache(dir)
	require.NoError(t, err)

	got, ok := reopened.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "hunter2", got)
}
