package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticMonitor_SetAndGet(t *testing.T) {
	m := NewStaticMonitor()
	assert.Empty(t, m.NodesFor("auth"))

	m.SetNodes("auth", []NodeID{"node-a", "node-b"})
	assert.Equal(t, []NodeID{"node-a", "node-b"}, m.NodesFor("auth"))

	// Returned slice must not alias internal state.
	got := m.NodesFor("auth")
	got[0] = "tampered"
	assert.Equal(t, []NodeID{"node-a", "node-b"}, m.NodesFor("auth"))
}
