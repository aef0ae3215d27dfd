// Package backend implements the backend routers (C8): one Router per
// Asset.Kind (REST/MQ/WS/MCP/LLM), each producing a uniform Result that
// internal/respwriter (C9) emits in buffered or chunked mode.
package backend

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/vortex-gateway/vortex/internal/reqbuilder"
	"github.com/vortex-gateway/vortex/internal/router"
)

// Result is the uniform response shape every router produces, matching
// spec.md §4.8's "route(request) -> Mono<ServerResponse>" contract: status
// + headers + a byte source, with the response writer choosing
// buffered-vs-chunked wire framing from the Asset's configured Stream mode.
type Result struct {
	Status        int
	Headers       http.Header
	Body          io.ReadCloser
	ContentLength int64 // -1 when unknown (forces chunked transfer)
	Stream        router.StreamMode
}

// Router is implemented by each of the five backend kinds.
type Router interface {
	Route(ctx context.Context, rc *router.Context, b *reqbuilder.Builder) (*Result, error)
}

func jsonResult(status int, body []byte, stream router.StreamMode) *Result {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &Result{
		Status:        status,
		Headers:       h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Stream:        stream,
	}
}
