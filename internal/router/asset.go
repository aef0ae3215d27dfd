// Package router implements the routing table & context (C6): matching an
// inbound (method, path) to an Asset route descriptor and building the
// per-request Context that flows through the preprocessor chain and into
// the backend routers.
package router

import "github.com/vortex-gateway/vortex/internal/gwconfig"

// Kind identifies which backend router (C8.x) serves an Asset.
type Kind string

const (
	KindREST Kind = "REST"
	KindMQ   Kind = "MQ"
	KindWS   Kind = "WS"
	KindMCP  Kind = "MCP"
	KindLLM  Kind = "LLM"
)

// StreamMode selects the C9 response writer's emission strategy.
type StreamMode int

const (
	StreamBuffered StreamMode = 1
	StreamChunked  StreamMode = 2
)

// Asset is a route's static descriptor (spec.md §3).
type Asset struct {
	Method    string
	Kind      Kind
	Host      string
	Port      int
	Path      string
	URLTemplate string
	Timeout   int // ms
	Stream    StreamMode
	Metadata  map[string]string
	Instances []string
}

// FromRouteConfig converts a decoded YAML RouteConfig into an Asset.
func FromRouteConfig(rc gwconfig.RouteConfig) Asset {
	stream := StreamMode(rc.Stream)
	if stream != StreamBuffered && stream != StreamChunked {
		stream = StreamBuffered
	}
	return Asset{
		Method:      rc.Method,
		Kind:        Kind(rc.Kind),
		Host:        rc.Host,
		Port:        rc.Port,
		Path:        rc.Path,
		URLTemplate: rc.URL,
		Timeout:     rc.TimeoutMS,
		Stream:      stream,
		Metadata:    rc.Metadata,
		Instances:   rc.Instances,
	}
}
