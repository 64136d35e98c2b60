package nas

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticRegistry_AddAndLookup(t *testing.T) {
	reg := NewStaticRegistry()
	listenIP := net.ParseIP("0.0.0.0")
	nasIP := net.ParseIP("10.0.0.1")

	reg.Add(listenIP, 1812, nasIP, Handler{Module: "auth"}, Properties{
		Secret:       []byte("s3cret"),
		HandlerNodes: HandlerNodes{Local: true},
	})

	h, props, err := reg.Lookup(listenIP, 1812, nasIP)
	require.NoError(t, err)
	assert.Equal(t, "auth", h.Module)
	assert.Equal(t, []byte("s3cret"), props.Secret)
	assert.True(t, props.HandlerNodes.Local)
}

func TestStaticRegistry_LookupNotFound(t *testing.T) {
	reg := NewStaticRegistry()
	_, _, err := reg.Lookup(net.ParseIP("0.0.0.0"), 1812, net.ParseIP("10.0.0.9"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadStaticRegistryYAML(t *testing.T) {
	data := []byte(`
nases:
  - listen: "0.0.0.0:1812"
    nas_ip: "10.0.0.1"
    nas_port: 0
    secret: "testing123"
    trace: true
    handler:
      module: "auth"
    handler_nodes:
      local: false
      nodes: ["n1", "n2"]
`)

	reg, err := LoadStaticRegistryYAML(data)
	require.NoError(t, err)

	h, props, err := reg.Lookup(net.ParseIP("0.0.0.0"), 1812, net.ParseIP("10.0.0.1"))
	require.NoError(t, err)
	assert.Equal(t, "auth", h.Module)
	assert.Equal(t, []byte("testing123"), props.Secret)
	assert.True(t, props.Trace)
	assert.False(t, props.HandlerNodes.Local)
	assert.Len(t, props.HandlerNodes.Nodes, 2)
}

func TestLoadStaticRegistryYAML_InvalidListen(t *testing.T) {
	_, err := LoadStaticRegistryYAML([]byte(`nases: [{listen: "not-an-addr", nas_ip: "10.0.0.1"}]`))
	assert.Error(t, err)
}
