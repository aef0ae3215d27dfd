// Package httpexec provides the call.Executor RESTRouter drives: a plain
// net/http.Client round trip wrapped in an OpenTelemetry span, so every
// Call's upstream leg is traced the way coreengine/observability/tracing.go
// traces the kernel's own engine calls.
package httpexec

import (
	"context"
	"net/http"
	"time"

	"github.com/vortex-gateway/vortex/internal/call"
	"github.com/vortex-gateway/vortex/internal/telemetry"
)

// New builds a call.Executor backed by client. Pass nil for a client with
// vortex's default transport (keep-alives on, no redirects followed — the
// gateway forwards whatever status the upstream returns rather than
// chasing 3xx itself).
func New(client *http.Client) call.Executor {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        256,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return func(ctx context.Context, req *http.Request) (*http.Response, error) {
		ctx, span := telemetry.StartCallSpan(ctx, req.URL.Path, "REST")
		defer span.End()
		return client.Do(req.WithContext(ctx))
	}
}
