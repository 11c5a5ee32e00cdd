package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSavedDevice_MatchKeyPrefersUUID(t *testing.T) {
	assert.Equal(t, "u1", SavedDevice{UUID: "u1", DisplayID: "old-box"}.matchKey())
	assert.Equal(t, "old-box", SavedDevice{DisplayID: "old-box"}.matchKey())
}

func TestStore_SeedsEmptyDocument(t *testing.T) {
	dir := t.TempDir()

	store, err := Store(dir)
	assert.NoError(t, err)
	assert.Empty(t, store.Snapshot().Devices)
}
