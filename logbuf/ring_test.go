package logbuf

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(msg string) Record {
	return Record{Timestamp: time.Now(), Level: "info", Message: msg}
}

// TestRing_BoundAndOrder covers spec.md §8 invariant 9: after appending
// capacity+k records, the ring holds exactly capacity records, the most
// recent ones, newest first.
func TestRing_BoundAndOrder(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Append(rec(fmt.Sprintf("m%d", i)))
	}

	require.Equal(t, 3, r.Len())
	snap := r.Snapshot(0)
	require.Len(t, snap, 3)
	assert.Equal(t, "m4", snap[0].Message)
	assert.Equal(t, "m3", snap[1].Message)
	assert.Equal(t, "m2", snap[2].Message)
}

func TestRing_SnapshotBeforeFull(t *testing.T) {
	r := NewRing(5)
	r.Append(rec("a"))
	r.Append(rec("b"))

	snap := r.Snapshot(0)
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].Message)
	assert.Equal(t, "a", snap[1].Message)
}

func TestRing_SnapshotLimit(t *testing.T) {
	r := NewRing(10)
	for i := 0; i < 10; i++ {
		r.Append(rec(fmt.Sprintf("m%d", i)))
	}

	snap := r.Snapshot(3)
	require.Len(t, snap, 3)
	assert.Equal(t, "m9", snap[0].Message)
	assert.Equal(t, "m8", snap[1].Message)
	assert.Equal(t, "m7", snap[2].Message)
}

func TestRing_ConcurrentAppendDoesNotBlockSnapshot(t *testing.T) {
	r := NewRing(100)
	done := make(chan struct{})

	go func() {
		for i := 0; i < 1000; i++ {
			r.Append(rec("x"))
		}
		close(done)
	}()

	for i := 0; i < 50; i++ {
		_ = r.Snapshot(0)
	}
	<-done
	assert.Equal(t, 100, r.Len())
}
