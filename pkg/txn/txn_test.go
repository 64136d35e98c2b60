package txn

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_InsertLookupRemove(t *testing.T) {
	tbl := New()
	key := NewKey(&net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 3000}, 7)

	_, ok := tbl.Lookup(key)
	assert.False(t, ok)

	tbl.Insert(key, 1)
	e, ok := tbl.Lookup(key)
	assert.True(t, ok)
	assert.Equal(t, Handling, e.State)
	assert.EqualValues(t, 1, e.WorkerID)

	tbl.MarkReplied(key)
	e, _ = tbl.Lookup(key)
	assert.Equal(t, Replied, e.State)

	tbl.Remove(key)
	_, ok = tbl.Lookup(key)
	assert.False(t, ok)
}

func TestTable_PurgeWorkerRemovesAllMatchingEntries(t *testing.T) {
	tbl := New()
	k1 := NewKey(&net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1}, 1)
	k2 := NewKey(&net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 2}, 2)
	k3 := NewKey(&net.UDPAddr{IP: net.ParseIP("10.0.0.3"), Port: 3}, 3)

	tbl.Insert(k1, 42)
	tbl.Insert(k2, 42)
	tbl.Insert(k3, 99)

	tbl.PurgeWorker(42)

	assert.Equal(t, 1, tbl.Len())
	_, ok := tbl.Lookup(k3)
	assert.True(t, ok)
}

func TestTable_MarkRepliedOnAbsentKeyIsNoop(t *testing.T) {
	tbl := New()
	key := NewKey(&net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1}, 1)
	tbl.MarkReplied(key) // must not panic
	assert.Equal(t, 0, tbl.Len())
}
