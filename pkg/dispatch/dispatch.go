// Package dispatch implements the pure node-selection algorithm of
// spec.md §4.3.
package dispatch

import (
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/vitalvas/radiuscore/pkg/cluster"
	"github.com/vitalvas/radiuscore/pkg/discard"
)

// Preference is a NAS's handler_nodes setting: either pinned to the
// local node, or an explicit set of acceptable remote nodes.
type Preference struct {
	Local bool
	Nodes []cluster.NodeID
}

// Result is the outcome of a Select call: either a node to run on, or a
// discard reason.
type Result struct {
	Node    cluster.NodeID
	IsLocal bool
	Reason  discard.Reason // zero value only meaningful when Node/IsLocal is set
	Discard bool
}

// Select picks the node that will execute a request, given the set of
// nodes currently advertising the handler module (candidates) and the
// NAS's node preference. self is this node's own identity, used only
// when pref.Local is set.
func Select(candidates []cluster.NodeID, pref Preference, self cluster.NodeID) Result {
	if len(candidates) == 0 {
		return Result{Discard: true, Reason: discard.NoNodes}
	}

	if pref.Local {
		if contains(candidates, self) {
			return Result{Node: self, IsLocal: true}
		}
		return Result{Discard: true, Reason: discard.NoNodesLocal}
	}

	c := intersect(candidates, pref.Nodes)
	switch len(c) {
	case 0:
		// spec.md §9: undefined by the source for |P| >= 1; treated as no_nodes.
		return Result{Discard: true, Reason: discard.NoNodes}
	case 1:
		return Result{Node: c[0], IsLocal: c[0] == self}
	default:
		n := c[fairIndex(len(c))]
		return Result{Node: n, IsLocal: n == self}
	}
}

// fairIndex hashes a fresh unique token modulo n, per spec.md §4.3's
// "select uniformly at random by hashing a fresh unique token". Using a
// UUID per call (rather than a shared math/rand source) keeps selection
// free of any cross-goroutine PRNG state, matching the source's
// per-request token.
func fairIndex(n int) int {
	id := uuid.New()
	h := fnv.New32a()
	h.Write(id[:])
	return int(h.Sum32() % uint32(n))
}

func contains(nodes []cluster.NodeID, target cluster.NodeID) bool {
	for _, n := range nodes {
		if n == target {
			return true
		}
	}
	return false
}

func intersect(a, b []cluster.NodeID) []cluster.NodeID {
	set := make(map[cluster.NodeID]struct{}, len(b))
	for _, n := range b {
		set[n] = struct{}{}
	}

	var out []cluster.NodeID
	for _, n := range a {
		if _, ok := set[n]; ok {
			out = append(out, n)
		}
	}
	return out
}
