package sysinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect(t *testing.T) {
	snap, err := Collect()
	require.NoError(t, err)

	assert.Equal(t, runtime.GOOS, snap.OS)
	assert.Equal(t, runtime.GOARCH, snap.Arch)
	assert.NotEmpty(t, snap.Hostname)
	assert.Greater(t, snap.MemTotalBytes, uint64(0))
}
