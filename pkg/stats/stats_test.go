package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStore_IncAndRead(t *testing.T) {
	s := New()
	k := Key{Endpoint: "1.1.1.1:1812", NAS: "10.0.0.1", Metric: "requests"}

	s.Inc(k)
	s.Inc(k)
	assert.EqualValues(t, 2, s.Read(k))
	// Read must not mutate.
	assert.EqualValues(t, 2, s.Read(k))
}

func TestStore_PullResetsAtomically(t *testing.T) {
	s := New()
	k := Key{Endpoint: "e", NAS: "n", Metric: "dupRequests"}

	s.Add(k, 5)
	pulled := s.Pull(k)
	assert.EqualValues(t, 5, pulled)
	assert.EqualValues(t, 0, s.Read(k))
}

func TestStore_PullAllScopesByEndpoint(t *testing.T) {
	s := New()
	s.Inc(Key{Endpoint: "a", NAS: "n1", Metric: "requests"})
	s.Inc(Key{Endpoint: "b", NAS: "n1", Metric: "requests"})

	snap := s.PullAll("a")
	assert.Len(t, snap, 1)
	assert.EqualValues(t, 0, s.Read(Key{Endpoint: "a", NAS: "n1", Metric: "requests"}))
	assert.EqualValues(t, 1, s.Read(Key{Endpoint: "b", NAS: "n1", Metric: "requests"}))
}

func TestStore_Monotonicity(t *testing.T) {
	s := New()
	k := Key{Endpoint: "e", NAS: "n", Metric: "requests"}

	prev := uint64(0)
	for i := 0; i < 10; i++ {
		s.Inc(k)
		got := s.Read(k)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}
