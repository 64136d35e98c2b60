// Package cluster pins the node-membership-monitor collaborator that
// spec.md §6 treats as external: "nodes_for(module) -> set<NodeId>".
package cluster

import "sync"

// NodeID identifies a worker node that may advertise handler modules.
type NodeID string

// Monitor reports which nodes currently advertise a given handler module.
type Monitor interface {
	NodesFor(module string) []NodeID
}

// StaticMonitor is an in-memory Monitor whose membership can be updated
// at runtime, standing in for whatever gossip/heartbeat mechanism a real
// deployment would use.
type StaticMonitor struct {
	mu    sync.RWMutex
	nodes map[string][]NodeID
}

// NewStaticMonitor returns an empty StaticMonitor.
func NewStaticMonitor() *StaticMonitor {
	return &StaticMonitor{nodes: make(map[string][]NodeID)}
}

// SetNodes replaces the advertised node set for module.
func (m *StaticMonitor) SetNodes(module string, nodes []NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]NodeID, len(nodes))
	copy(cp, nodes)
	m.nodes[module] = cp
}

// NodesFor implements Monitor.
func (m *StaticMonitor) NodesFor(module string) []NodeID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nodes := m.nodes[module]
	cp := make([]NodeID, len(nodes))
	copy(cp, nodes)
	return cp
}
