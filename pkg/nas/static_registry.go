package nas

import (
	"fmt"
	"net"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/vitalvas/radiuscore/pkg/cluster"
)

// StaticRegistry is an in-memory Registry, generalizing the network-keyed
// shared-secret lookup of goradius's DefaultHandler.GetSharedSecret
// (pkg/server/handler.go) from "secret per CIDR" to "handler + secret +
// handler-nodes per exact NAS IP, per listen endpoint" as spec.md §3
// requires.
type StaticRegistry struct {
	mu      sync.RWMutex
	entries map[endpointKey]entry
}

type endpointKey struct {
	listen string // "ip:port"
	nasIP  string
}

type entry struct {
	handler    Handler
	properties Properties
}

// NewStaticRegistry returns an empty StaticRegistry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{entries: make(map[endpointKey]entry)}
}

// Add registers a NAS's handler and properties for a specific listen
// endpoint. Properties.ServerIP/ServerPort/NasIP are filled in from the
// call arguments if left zero.
func (r *StaticRegistry) Add(listenIP net.IP, listenPort int, nasIP net.IP, h Handler, props Properties) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if props.ServerIP == nil {
		props.ServerIP = listenIP
	}
	if props.ServerPort == 0 {
		props.ServerPort = listenPort
	}
	if props.NasIP == nil {
		props.NasIP = nasIP
	}

	key := endpointKey{listen: fmt.Sprintf("%s:%d", listenIP, listenPort), nasIP: nasIP.String()}
	r.entries[key] = entry{handler: h, properties: props}
}

// Lookup implements Registry.
func (r *StaticRegistry) Lookup(listenIP net.IP, listenPort int, nasIP net.IP) (Handler, Properties, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := endpointKey{listen: fmt.Sprintf("%s:%d", listenIP, listenPort), nasIP: nasIP.String()}
	e, ok := r.entries[key]
	if !ok {
		return Handler{}, Properties{}, ErrNotFound
	}
	return e.handler, e.properties, nil
}

// yamlConfig is the on-disk shape a StaticRegistry can be loaded from.
type yamlConfig struct {
	Nases []yamlNAS `yaml:"nases"`
}

type yamlNAS struct {
	Listen  string `yaml:"listen"`
	NasIP   string `yaml:"nas_ip"`
	NasPort int    `yaml:"nas_port"`
	Secret  string `yaml:"secret"`
	Trace   bool   `yaml:"trace"`
	Handler struct {
		Module string                 `yaml:"module"`
		Config map[string]interface{} `yaml:"config"`
	} `yaml:"handler"`
	HandlerNodes struct {
		Local bool     `yaml:"local"`
		Nodes []string `yaml:"nodes"`
	} `yaml:"handler_nodes"`
}

// LoadStaticRegistryYAML parses a YAML NAS table into a StaticRegistry,
// the config-loading path SPEC_FULL.md's ambient stack section describes.
func LoadStaticRegistryYAML(data []byte) (*StaticRegistry, error) {
	var cfg yamlConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("nas: parsing registry config: %w", err)
	}

	reg := NewStaticRegistry()
	for _, n := range cfg.Nases {
		listenHost, listenPortStr, err := net.SplitHostPort(n.Listen)
		if err != nil {
			return nil, fmt.Errorf("nas: invalid listen address %q: %w", n.Listen, err)
		}
		listenIP := net.ParseIP(listenHost)
		if listenIP == nil {
			return nil, fmt.Errorf("nas: invalid listen IP %q", listenHost)
		}
		var listenPort int
		if _, err := fmt.Sscanf(listenPortStr, "%d", &listenPort); err != nil {
			return nil, fmt.Errorf("nas: invalid listen port %q: %w", listenPortStr, err)
		}

		nasIP := net.ParseIP(n.NasIP)
		if nasIP == nil {
			return nil, fmt.Errorf("nas: invalid nas_ip %q", n.NasIP)
		}

		var nodes []cluster.NodeID
		for _, id := range n.HandlerNodes.Nodes {
			nodes = append(nodes, cluster.NodeID(id))
		}

		handler := Handler{Module: n.Handler.Module, Config: n.Handler.Config}
		props := Properties{
			NasPort: n.NasPort,
			Secret:  []byte(n.Secret),
			Trace:   n.Trace,
			HandlerNodes: HandlerNodes{
				Local: n.HandlerNodes.Local,
				Nodes: nodes,
			},
		}

		reg.Add(listenIP, listenPort, nasIP, handler, props)
	}

	return reg, nil
}
