package discovery

import (
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBrowser(t *testing.T) (*Browser, *[]Record, *[]string) {
	t.Helper()
	found := &[]Record{}
	removed := &[]string{}
	b := NewBrowser(hclog.NewNullLogger(), func(r Record) {
		*found = append(*found, r)
	}, func(key string) {
		*removed = append(*removed, key)
	})
	return b, found, removed
}

func TestBrowser_ObserveReportsNewAndChangedRecords(t *testing.T) {
	b, found, _ := newTestBrowser(t)

	b.observe(Record{UUID: "u1", Port: 8080})
	require.Len(t, *found, 1)

	// Same record again: no duplicate callback.
	b.observe(Record{UUID: "u1", Port: 8080})
	require.Len(t, *found, 1)

	// Changed port: reported again (spec.md §4.7/§8 invariant 11, scenario S5).
	b.observe(Record{UUID: "u1", Port: 9090})
	require.Len(t, *found, 2)
	assert.Equal(t, 9090, (*found)[1].Port)
}

func TestBrowser_ReapUnseenWaitsForMissedRounds(t *testing.T) {
	b, _, removed := newTestBrowser(t)
	b.observe(Record{UUID: "u1", Port: 8080})

	b.reapUnseen(map[string]bool{})
	assert.Empty(t, *removed, "first missed round should not remove yet")

	b.reapUnseen(map[string]bool{})
	assert.Equal(t, []string{"u1"}, *removed)
}

func TestBrowser_ReapUnseenResetsMissCountWhenSeenAgain(t *testing.T) {
	b, _, removed := newTestBrowser(t)
	b.observe(Record{UUID: "u1"})

	b.reapUnseen(map[string]bool{})
	b.reapUnseen(map[string]bool{"u1": true})
	b.reapUnseen(map[string]bool{})

	assert.Empty(t, *removed, "being seen again should reset the miss counter")
}
