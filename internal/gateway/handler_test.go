package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortex-gateway/vortex/internal/backend"
	"github.com/vortex-gateway/vortex/internal/diskcache"
	"github.com/vortex-gateway/vortex/internal/preprocess"
	"github.com/vortex-gateway/vortex/internal/reqbuilder"
	"github.com/vortex-gateway/vortex/internal/router"
	"github.com/vortex-gateway/vortex/internal/telemetry"
)

func newTestTable(t *testing.T, asset router.Asset) *router.Table {
	t.Helper()
	table := router.NewTable()
	table.Register(http.MethodGet, "/api/hello", asset)
	return table
}

type fakeRouter struct {
	status  int
	body    string
	headers http.Header
}

func (f *fakeRouter) Route(ctx context.Context, rc *router.Context, b *reqbuilder.Builder) (*backend.Result, error) {
	h := f.headers
	if h == nil {
		h = http.Header{}
	}
	return &backend.Result{
		Status:        f.status,
		Headers:       h,
		Body:          io.NopCloser(bytes.NewBufferString(f.body)),
		ContentLength: int64(len(f.body)),
		Stream:        router.StreamBuffered,
	}, nil
}

func newTestGateway(t *testing.T, asset router.Asset, r backend.Router) *Gateway {
	t.Helper()
	return &Gateway{
		Table:   newTestTable(t, asset),
		Chain:   preprocess.NewChain(time.Second, telemetry.NoopLogger()),
		Routers: map[router.Kind]backend.Router{asset.Kind: r},
		Logger:  telemetry.NoopLogger(),
	}
}

func TestGateway_UnmatchedRouteIs404(t *testing.T) {
	g := newTestGateway(t, router.Asset{Kind: router.KindREST, URLTemplate: "/api/hello"}, &fakeRouter{status: 200})

	req := httptest.NewRequest(http.MethodGet, "/api/missing", nil)
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateway_RoutesToBackendAndWritesResponse(t *testing.T) {
	g := newTestGateway(t, router.Asset{Kind: router.KindREST, URLTemplate: "/api/hello", Stream: router.StreamBuffered}, &fakeRouter{status: 200, body: "hi"})

	req := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hi", rec.Body.String())
}

func TestGateway_ShortCircuitingPreprocessorSkipsBackend(t *testing.T) {
	asset := router.Asset{Kind: router.KindREST, URLTemplate: "/api/hello", Stream: router.StreamBuffered}
	g := newTestGateway(t, asset, &fakeRouter{status: 200, body: "should not be reached"})
	g.Chain.RegisterSerial(rejectingPreprocessor{})

	req := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type rejectingPreprocessor struct{}

func (rejectingPreprocessor) Name() string { return "reject" }
func (rejectingPreprocessor) Process(ctx context.Context, rc *router.Context, b *reqbuilder.Builder) (*preprocess.ShortCircuit, error) {
	return &preprocess.ShortCircuit{Status: http.StatusUnauthorized, Body: []byte(`{"error":"unauthorized"}`)}, nil
}

func TestGateway_CachesCacheableGETAndServesSecondRequestFromCache(t *testing.T) {
	asset := router.Asset{Kind: router.KindREST, URLTemplate: "/api/hello", Stream: router.StreamBuffered}
	r := &fakeRouter{status: 200, body: "cached body", headers: http.Header{
		"ETag":          []string{`"v1"`},
		"Cache-Control": []string{"max-age=60"},
	}}
	g := newTestGateway(t, asset, r)

	cache, err := diskcache.Open(t.TempDir(), 1<<20)
	require.NoError(t, err)
	g.Cache = cache

	req1 := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
	rec1 := httptest.NewRecorder()
	g.ServeHTTP(rec1, req1)
	assert.Equal(t, "cached body", rec1.Body.String())

	r.body = "changed upstream"
	req2 := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
	rec2 := httptest.NewRecorder()
	g.ServeHTTP(rec2, req2)
	assert.Equal(t, "cached body", rec2.Body.String(), "fresh (max-age=60) second request should be served from cache without touching the backend")

	stats := cache.Stats()
	assert.EqualValues(t, 2, stats.RequestCount)
	assert.EqualValues(t, 1, stats.NetworkCount, "only the first request should have gone to the network")
	assert.EqualValues(t, 1, stats.HitCount)
}

func TestGateway_VaryMismatchIsTreatedAsMiss(t *testing.T) {
	asset := router.Asset{Kind: router.KindREST, URLTemplate: "/api/hello", Stream: router.StreamBuffered}
	r := &fakeRouter{status: 200, body: "variant-a", headers: http.Header{
		"Cache-Control": []string{"max-age=60"},
		"Vary":          []string{"Accept-Language"},
	}}
	g := newTestGateway(t, asset, r)

	cache, err := diskcache.Open(t.TempDir(), 1<<20)
	require.NoError(t, err)
	g.Cache = cache

	req1 := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
	req1.Header.Set("Accept-Language", "en")
	rec1 := httptest.NewRecorder()
	g.ServeHTTP(rec1, req1)
	assert.Equal(t, "variant-a", rec1.Body.String())

	r.body = "variant-b"
	req2 := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
	req2.Header.Set("Accept-Language", "fr")
	rec2 := httptest.NewRecorder()
	g.ServeHTTP(rec2, req2)
	assert.Equal(t, "variant-b", rec2.Body.String(), "a different Vary-listed header value must miss the cache, not replay the en variant")
}

// conditionalRouter simulates an upstream that answers 304 once a matching
// If-None-Match has been presented, per spec.md's concrete scenario 2.
type conditionalRouter struct {
	etag string
	body string
	n    int
}

func (r *conditionalRouter) Route(ctx context.Context, rc *router.Context, b *reqbuilder.Builder) (*backend.Result, error) {
	r.n++
	if rc.Headers.Get("If-None-Match") == r.etag {
		return &backend.Result{Status: http.StatusNotModified, Headers: http.Header{}, Body: io.NopCloser(bytes.NewReader(nil)), Stream: router.StreamBuffered}, nil
	}
	h := http.Header{"ETag": []string{r.etag}}
	return &backend.Result{Status: 200, Headers: h, Body: io.NopCloser(bytes.NewBufferString(r.body)), ContentLength: int64(len(r.body)), Stream: router.StreamBuffered}, nil
}

func TestGateway_ConditionalRevalidationServes304FromCache(t *testing.T) {
	asset := router.Asset{Kind: router.KindREST, URLTemplate: "/api/hello", Stream: router.StreamBuffered}
	r := &conditionalRouter{etag: `"abc"`, body: "cached body"}
	g := newTestGateway(t, asset, r)

	cache, err := diskcache.Open(t.TempDir(), 1<<20)
	require.NoError(t, err)
	g.Cache = cache

	req1 := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
	rec1 := httptest.NewRecorder()
	g.ServeHTTP(rec1, req1)
	assert.Equal(t, "cached body", rec1.Body.String())
	assert.Equal(t, 1, r.n)

	req2 := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
	rec2 := httptest.NewRecorder()
	g.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code, "client sees 200 even though upstream answered 304")
	assert.Equal(t, "cached body", rec2.Body.String())
	assert.Equal(t, 2, r.n, "second request must hit the backend with a conditional header")

	stats := cache.Stats()
	assert.EqualValues(t, 2, stats.RequestCount)
	assert.EqualValues(t, 2, stats.NetworkCount, "a 304 revalidation still counts as a network round trip")
	assert.EqualValues(t, 1, stats.HitCount, "only the revalidated second request is a cache hit")
}

func TestGateway_BackendErrorIsMappedToStatus(t *testing.T) {
	asset := router.Asset{Kind: router.KindREST, URLTemplate: "/api/hello"}
	g := newTestGateway(t, asset, &failingRouter{})

	req := httptest.NewRequest(http.MethodGet, "/api/hello", nil)
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

type failingRouter struct{}

func (failingRouter) Route(ctx context.Context, rc *router.Context, b *reqbuilder.Builder) (*backend.Result, error) {
	return nil, errors.New("dial failed")
}
