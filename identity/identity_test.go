package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_GeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()

	id1, err := Load(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, id1.UUID)

	// Starting N times in sequence yields the same uuid (spec.md §8.1).
	for i := 0; i < 3; i++ {
		id, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, id1.UUID, id.UUID)
	}
}

func TestLoad_DeletedIdentityYieldsFreshUUID(t *testing.T) {
	dir := t.TempDir()

	id1, err := Load(dir)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, fileName)))

	id2, err := Load(dir)
	require.NoError(t, err)
	assert.NotEqual(t, id1.UUID, id2.UUID)
}

func TestLoad_MalformedFileIsReplaced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, fileName)
	require.NoError(t, os.WriteFile(path, []byte("not-a-uuid"), 0o600))

	id, err := Load(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, id.UUID)
	assert.NotEqual(t, "not-a-uuid", id.UUID)
}

func TestShortPrefix(t *testing.T) {
	d := &DeviceIdentity{UUID: "abcdef12-3456-7890-abcd-ef1234567890"}
	assert.Equal(t, "abcdef12", d.ShortPrefix())
	assert.Len(t, d.ShortPrefix(), 8)
}
