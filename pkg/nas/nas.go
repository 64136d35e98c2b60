// Package nas pins the NAS-registry collaborator of spec.md §6:
// "lookup(listen_ip, listen_port, nas_ip) -> (handler, nas_properties) | NotFound".
package nas

import (
	"errors"
	"net"

	"github.com/vitalvas/radiuscore/pkg/cluster"
)

// ErrNotFound is returned by Registry.Lookup when no NAS is registered
// for the given (listen endpoint, source IP) pair.
var ErrNotFound = errors.New("nas: not found")

// HandlerNodes is a NAS's node-preference setting (spec.md §3): either
// pinned to whichever node the listener itself is running on, or an
// explicit set of acceptable remote node identities.
type HandlerNodes struct {
	Local bool
	Nodes []cluster.NodeID
}

// Handler is the opaque module identifier plus opaque configuration
// term spec.md §3 associates with each NAS.
type Handler struct {
	Module string
	Config interface{}
}

// Properties is the per-NAS configuration spec.md §3 sources from the
// registry on every request.
type Properties struct {
	ServerIP     net.IP
	ServerPort   int
	NasIP        net.IP
	NasPort      int
	Secret       []byte
	Trace        bool
	HandlerNodes HandlerNodes
}

// Registry resolves a source NAS IP arriving on a given listen endpoint
// to the handler and properties that should govern the request.
type Registry interface {
	Lookup(listenIP net.IP, listenPort int, nasIP net.IP) (Handler, Properties, error)
}
