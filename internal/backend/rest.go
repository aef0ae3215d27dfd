package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgryski/go-metro"
	"github.com/dgryski/go-rendezvous"

	"github.com/vortex-gateway/vortex/internal/call"
	"github.com/vortex-gateway/vortex/internal/gwerrors"
	"github.com/vortex-gateway/vortex/internal/reqbuilder"
	"github.com/vortex-gateway/vortex/internal/router"
)

// hopByHop are stripped from both the forwarded request and the returned
// response, matching spec.md §4.8.1 ("Forwards all inbound headers except
// Host and content-length-family").
var hopByHop = map[string]bool{
	"Host":              true,
	"Content-Length":    true,
	"Transfer-Encoding": true,
	"Connection":        true,
}

// RESTRouter proxies to an HTTP(S) upstream via the C3 Call engine. When
// Dispatcher is set, calls are scheduled through it (C2's global/per-host
// admission control); otherwise Route executes the call directly, which
// is enough for standalone router tests that don't exercise pooling.
type RESTRouter struct {
	Executor   call.Executor
	Dispatcher call.Dispatcher

	targets restTargetCache
}

func NewRESTRouter(executor call.Executor) *RESTRouter {
	return &RESTRouter{Executor: executor}
}

// NewRESTRouterWithDispatcher routes every call through dispatcher so C2's
// maxRequests/maxRequestsPerHost caps apply to REST egress traffic.
func NewRESTRouterWithDispatcher(executor call.Executor, dispatcher call.Dispatcher) *RESTRouter {
	return &RESTRouter{Executor: executor, Dispatcher: dispatcher}
}

func (r *RESTRouter) Route(ctx context.Context, rc *router.Context, b *reqbuilder.Builder) (*Result, error) {
	asset := rc.Asset
	host := r.selectHost(asset, rc.RequestID)
	target, err := r.buildTargetURL(asset, host, rc)
	if err != nil {
		return nil, gwerrors.New(gwerrors.KindValidationError, "rest_router", err.Error(), err)
	}

	body, err := b.Build(rc.Method)
	if err != nil {
		return nil, gwerrors.New(gwerrors.KindValidationError, "rest_router", err.Error(), err)
	}

	req, err := http.NewRequestWithContext(ctx, rc.Method, target, body.Reader)
	if err != nil {
		return nil, gwerrors.New(gwerrors.KindProtocolError, "rest_router", "building upstream request", err)
	}
	forwardHeaders(rc.Headers, req.Header)
	if body.ContentType != "" {
		req.Header.Set("Content-Type", body.ContentType)
	}

	timeout := time.Duration(asset.Timeout) * time.Millisecond
	c := call.New(req, host, rc.RequestID, timeout, r.Executor)

	resp, gerr := r.run(ctx, c)
	if gerr != nil {
		return nil, gerr
	}

	out := make(http.Header)
	for k, v := range resp.Header {
		if hopByHop[http.CanonicalHeaderKey(k)] {
			continue
		}
		out[k] = v
	}

	return &Result{
		Status:        resp.StatusCode,
		Headers:       out,
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
		Stream:        asset.Stream,
	}, nil
}

// run executes c directly, or through r.Dispatcher if configured,
// bridging Enqueue's callback-based completion back to a synchronous
// call so Route's signature stays the same either way.
func (r *RESTRouter) run(ctx context.Context, c *call.Call) (*http.Response, *gwerrors.GatewayError) {
	if r.Dispatcher == nil {
		return c.Execute(ctx)
	}

	type outcome struct {
		resp *http.Response
		err  *gwerrors.GatewayError
	}
	done := make(chan outcome, 1)
	c.Enqueue(ctx, r.Dispatcher, call.ResultCallback{
		OnResponse: func(resp *http.Response) { done <- outcome{resp: resp} },
		OnFailure:  func(err *gwerrors.GatewayError) { done <- outcome{err: err} },
	})

	select {
	case o := <-done:
		return o.resp, o.err
	case <-ctx.Done():
		c.Cancel()
		return nil, gwerrors.Canceled("rest_router")
	}
}

// selectHost resolves the upstream host:port to dial: a rendezvous pick
// among Asset.Instances when configured (keyed by requestID so the same
// request sticks to one instance across retries), otherwise the Asset's
// single configured Host/Port.
func (r *RESTRouter) selectHost(asset router.Asset, requestID string) string {
	if len(asset.Instances) > 0 {
		return r.targets.pick(asset.Instances, requestID)
	}
	if asset.Port != 0 {
		return fmt.Sprintf("%s:%d", asset.Host, asset.Port)
	}
	return asset.Host
}

func (r *RESTRouter) buildTargetURL(asset router.Asset, host string, rc *router.Context) (string, error) {
	path, err := reqbuilder.SubstitutePath(firstNonEmpty(asset.URLTemplate, asset.Path), rc.Params)
	if err != nil {
		return "", err
	}

	u := &url.URL{Scheme: "http", Host: host, Path: path}

	if rc.Method == http.MethodGet {
		q := u.Query()
		for k, v := range rc.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// restTargetCache picks a REST Asset's upstream instance by rendezvous
// (highest random weight) hashing, the same load-balancing strategy
// serviceGroup uses for MCP: a request's key (here, rc.RequestID) keeps
// landing on the same instance across retries, and only that key's share
// of traffic moves when Asset.Instances changes membership. Rendezvous
// rings are cached per distinct instance set since the route table is
// effectively static between config reloads.
type restTargetCache struct {
	mu    sync.Mutex
	rings map[string]*rendezvous.Rendezvous
}

func (c *restTargetCache) pick(instances []string, key string) string {
	sorted := append([]string(nil), instances...)
	sort.Strings(sorted)
	ringKey := strings.Join(sorted, ",")

	c.mu.Lock()
	if c.rings == nil {
		c.rings = make(map[string]*rendezvous.Rendezvous)
	}
	ring, ok := c.rings[ringKey]
	if !ok {
		ring = rendezvous.New(sorted, metro.Hash64Str)
		c.rings[ringKey] = ring
	}
	c.mu.Unlock()

	return ring.Lookup(key)
}

func forwardHeaders(in http.Header, out http.Header) {
	for name, values := range in {
		if hopByHop[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			out.Add(name, v)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
