// Package gateway wires the request pipeline end to end: match a route
// (C6), run the preprocessor chain (C7), consult the disk cache (C4) for
// cacheable REST GETs, dispatch to the matching backend router (C8), and
// write the response (C9). It is the http.Handler cmd/vortex installs.
//
// The overall "match, build context, run a staged pipeline, write a
// uniform response" shape is grounded on coreengine/runtime/runtime.go's
// top-level Execute (resolve a plan, run stages in order, surface the
// first failure), adapted here from a DAG executor to a single linear HTTP
// request pipeline.
package gateway

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/vortex-gateway/vortex/internal/backend"
	"github.com/vortex-gateway/vortex/internal/diskcache"
	"github.com/vortex-gateway/vortex/internal/gwerrors"
	"github.com/vortex-gateway/vortex/internal/preprocess"
	"github.com/vortex-gateway/vortex/internal/reqbuilder"
	"github.com/vortex-gateway/vortex/internal/respwriter"
	"github.com/vortex-gateway/vortex/internal/router"
	"github.com/vortex-gateway/vortex/internal/telemetry"
)

// Gateway is the assembled pipeline. All fields are required except Cache,
// Metrics and TrustedProxies, which degrade gracefully when nil/empty.
type Gateway struct {
	Table          *router.Table
	Chain          *preprocess.Chain
	Cache          *diskcache.Cache
	Routers        map[router.Kind]backend.Router
	WS             *backend.WSRouter
	Logger         telemetry.Logger
	Metrics        *telemetry.Metrics
	TrustedProxies map[string]bool
}

var _ http.Handler = (*Gateway)(nil)

func (g *Gateway) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()

	asset, params, ok := g.Table.Match(req.Method, req.URL.Path)
	if !ok {
		writeNotFound(w)
		return
	}

	clientIP := router.ResolveClientIP(req, g.TrustedProxies, hostOnly(req.RemoteAddr))
	rc := router.NewContext(req, asset, clientIP, params)
	logger := g.Logger.Bind("request_id", rc.RequestID, "route", asset.URLTemplate, "kind", string(asset.Kind))

	if asset.Kind == router.KindWS && g.WS != nil && backend.IsUpgradeRequest(req) {
		if err := g.WS.Bridge(w, req, rc); err != nil {
			logger.Warn("ws_bridge_failed", "error", err.Error())
		}
		return
	}

	if g.servedFromCache(w, req, rc, logger, start) {
		return
	}

	b := reqbuilder.New()
	sc, err := g.Chain.Run(req.Context(), rc, b, preprocess.Flags{})
	if err != nil {
		g.writeError(w, asset, err, logger, start)
		return
	}
	if sc != nil {
		g.writeShortCircuit(w, asset, sc, start)
		return
	}

	backendRouter, ok := g.Routers[asset.Kind]
	if !ok {
		g.writeError(w, asset, gwerrors.New(gwerrors.KindProtocolError, "gateway", "no router registered for kind "+string(asset.Kind), nil), logger, start)
		return
	}

	result, err := backendRouter.Route(req.Context(), rc, b)
	if err != nil {
		g.writeError(w, asset, err, logger, start)
		return
	}

	if g.shouldCache(req, result) {
		result = g.store(rc, result, logger)
	}

	g.recordRequest(asset, result.Status, start)
	if err := respwriter.Write(w, req, result, logger); err != nil {
		logger.Warn("response_write_failed", "error", err.Error())
	}
}

// servedFromCache answers directly from the disk cache for a cacheable GET
// whose key is already present, per spec.md §4.4's get path: the stored
// entry must match the incoming request's Vary-listed headers, and must
// either be fresh or successfully revalidate upstream via a conditional
// request. A miss (absent, non-matching, or failed revalidation) falls
// through to the normal pipeline; any cache error is treated as a miss
// rather than surfaced to the client, matching GatewayError's KindCacheError
// "never escapes to the response path" policy.
func (g *Gateway) servedFromCache(w http.ResponseWriter, req *http.Request, rc *router.Context, logger telemetry.Logger, start time.Time) bool {
	if g.Cache == nil || rc.Asset.Kind != router.KindREST || rc.Method != http.MethodGet {
		return false
	}
	g.Cache.RecordRequest()

	key := diskcache.KeyFor(req.URL.String())
	snap, ok, err := g.Cache.Get(key)
	if err != nil || !ok {
		g.recordCacheResult("miss")
		return false
	}
	defer snap.Close()

	meta, err := snap.Metadata()
	if err != nil {
		g.recordCacheResult("miss")
		return false
	}

	if !meta.Matches(rc.Method, req.Header) {
		g.recordCacheResult("miss")
		return false
	}

	if meta.IsFresh(time.Now()) {
		g.recordCacheResult("hit")
		g.Cache.RecordHit()
		writeFromSnapshot(w, meta.StatusCode, meta.Headers, snap)
		g.recordRequest(rc.Asset, meta.StatusCode, start)
		return true
	}

	return g.revalidate(w, req, rc, key, meta, snap, logger, start)
}

// revalidate re-issues the request upstream with If-None-Match/
// If-Modified-Since from the stored validators (spec.md §4.4's conditional
// get). A 304 rewrites only the entry's metadata (Cache.Revalidate) and
// serves the existing body; any other status is a fresh response, stored
// and served in its place. A 304 counts as a cache hit and a network call,
// matching concrete scenario 2's hitCount+=1, networkCount+=1; any other
// status counts as a network call and a cache miss.
func (g *Gateway) revalidate(w http.ResponseWriter, req *http.Request, rc *router.Context, key string, meta *diskcache.Metadata, snap *diskcache.Snapshot, logger telemetry.Logger, start time.Time) bool {
	restRouter, ok := g.Routers[router.KindREST]
	if !ok {
		g.recordCacheResult("miss")
		return false
	}
	cond := diskcache.ConditionalHeaders(meta)
	if len(cond) == 0 {
		g.recordCacheResult("miss")
		return false
	}
	for name, values := range cond {
		rc.Headers.Set(name, values[0])
	}

	result, err := restRouter.Route(req.Context(), rc, reqbuilder.New())
	if err != nil {
		logger.Warn("cache_revalidate_failed", "error", err.Error())
		g.recordCacheResult("miss")
		return false
	}

	if result.Status == http.StatusNotModified {
		io.Copy(io.Discard, result.Body)
		result.Body.Close()
		g.Cache.RecordNetwork()

		refreshed := &diskcache.Metadata{
			URL:         meta.URL,
			Method:      meta.Method,
			VaryHeaders: meta.VaryHeaders,
			StatusCode:  meta.StatusCode,
			StatusText:  meta.StatusText,
			Headers:     mergeRevalidatedHeaders(meta.Headers, result.Headers),
		}
		if err := g.Cache.Revalidate(key, refreshed); err != nil {
			logger.Warn("cache_revalidate_write_failed", "error", err.Error())
		}

		g.recordCacheResult("hit")
		g.Cache.RecordHit()
		if _, err := snap.BodyFile().Seek(0, io.SeekStart); err != nil {
			logger.Warn("cache_body_seek_failed", "error", err.Error())
		}
		writeFromSnapshot(w, refreshed.StatusCode, refreshed.Headers, snap)
		g.recordRequest(rc.Asset, refreshed.StatusCode, start)
		return true
	}

	fresh := g.store(rc, result, logger)
	g.recordCacheResult("miss")
	g.recordRequest(rc.Asset, fresh.Status, start)
	if err := respwriter.Write(w, req, fresh, logger); err != nil {
		logger.Warn("response_write_failed", "error", err.Error())
	}
	return true
}

// mergeRevalidatedHeaders applies a 304 response's headers over the stored
// ones (RFC 7234 §4.3.4: the network response's headers win where present,
// the cached entry's stand where the 304 omitted them).
func mergeRevalidatedHeaders(cached, fresh http.Header) http.Header {
	out := make(http.Header, len(cached))
	for name, values := range cached {
		out[name] = append([]string(nil), values...)
	}
	for name, values := range fresh {
		out[name] = append([]string(nil), values...)
	}
	return out
}

func writeFromSnapshot(w http.ResponseWriter, status int, headers http.Header, snap *diskcache.Snapshot) {
	for name, values := range headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(status)
	io.Copy(w, snap.BodyFile())
}

func (g *Gateway) shouldCache(req *http.Request, result *backend.Result) bool {
	return g.Cache != nil && req.Method == http.MethodGet &&
		diskcache.Cacheable(req.Method, result.Headers)
}

// store buffers result's body so it can both be written to the cache
// editor and returned to the client, then hands back a fresh Result reading
// from the buffer. Buffering here mirrors spec.md §4.4's put path, which
// only ever applies to buffered REST responses (chunked/streamed kinds
// never reach shouldCache since they're not REST GETs).
func (g *Gateway) store(rc *router.Context, result *backend.Result, logger telemetry.Logger) *backend.Result {
	g.Cache.RecordNetwork()

	data, err := io.ReadAll(result.Body)
	result.Body.Close()
	if err != nil {
		logger.Warn("cache_put_read_failed", "error", err.Error())
		return &backend.Result{Status: result.Status, Headers: result.Headers, Body: io.NopCloser(bytes.NewReader(nil)), ContentLength: 0, Stream: result.Stream}
	}

	fresh := &backend.Result{
		Status:        result.Status,
		Headers:       result.Headers,
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: int64(len(data)),
		Stream:        result.Stream,
	}

	key := diskcache.KeyFor(rc.Raw.URL.String())
	editor, err := g.Cache.Edit(key)
	if err != nil {
		return fresh
	}
	now := time.Now().UnixMilli()
	meta := &diskcache.Metadata{
		URL:            rc.Raw.URL.String(),
		Method:         rc.Method,
		VaryHeaders:    diskcache.VaryHeadersFor(result.Headers, rc.Headers),
		StatusCode:     result.Status,
		Headers:        result.Headers,
		SentMillis:     now,
		ReceivedMillis: now,
	}
	if err := editor.WriteMetadata(meta); err != nil {
		editor.Abort()
		return fresh
	}
	if _, err := editor.BodyWriter().Write(data); err != nil {
		editor.Abort()
		return fresh
	}
	if err := editor.Commit(); err != nil {
		logger.Warn("cache_commit_failed", "error", err.Error())
	}
	return fresh
}

func (g *Gateway) writeError(w http.ResponseWriter, asset router.Asset, err error, logger telemetry.Logger, start time.Time) {
	ge, ok := err.(*gwerrors.GatewayError)
	if !ok {
		ge = gwerrors.New(gwerrors.KindProtocolError, "gateway", err.Error(), err)
	}
	status := ge.HTTPStatus()
	logger.Warn("request_failed", "kind", string(ge.Kind), "stage", ge.Stage, "status", status)
	g.recordRequest(asset, status, start)
	writeJSONError(w, ge.ToEnvelope(), status)
}

func (g *Gateway) writeShortCircuit(w http.ResponseWriter, asset router.Asset, sc *preprocess.ShortCircuit, start time.Time) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(sc.Status)
	w.Write(sc.Body)
	g.recordRequest(asset, sc.Status, start)
}

func (g *Gateway) recordRequest(asset router.Asset, status int, start time.Time) {
	if g.Metrics == nil {
		return
	}
	g.Metrics.RecordRequest(asset.URLTemplate, string(asset.Kind), statusClass(status), time.Since(start))
}

func (g *Gateway) recordCacheResult(result string) {
	if g.Metrics == nil {
		return
	}
	g.Metrics.RecordCacheResult(result)
}
