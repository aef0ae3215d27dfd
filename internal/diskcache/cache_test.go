package diskcache

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEntry(t *testing.T, c *Cache, key, url, body string) {
	t.Helper()
	ed, err := c.Edit(key)
	require.NoError(t, err)
	require.NoError(t, ed.WriteMetadata(&Metadata{
		URL:        url,
		Method:     http.MethodGet,
		Headers:    http.Header{"ETag": []string{`"abc"`}},
		StatusCode: 200,
		StatusText: "OK",
	}))
	_, err = ed.BodyWriter().Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, ed.Commit())
}

func TestCache_PutThenGetRoundTrips(t *testing.T) {
	c, err := Open(t.TempDir(), 1<<20)
	require.NoError(t, err)
	defer c.Close()

	writeEntry(t, c, "k1", "http://upstream/hello", "hi")

	snap, ok, err := c.Get("k1")
	require.NoError(t, err)
	require.True(t, ok)
	defer snap.Close()

	meta, err := snap.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "http://upstream/hello", meta.URL)

	data, err := io.ReadAll(snap.BodyFile())
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestCache_GetMissReturnsFalse(t *testing.T) {
	c, err := Open(t.TempDir(), 1<<20)
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_EditConflictWhileOpen(t *testing.T) {
	c, err := Open(t.TempDir(), 1<<20)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Edit("k1")
	require.NoError(t, err)

	_, err = c.Edit("k1")
	assert.Error(t, err)
}

func TestCache_AbortDiscardsEdit(t *testing.T) {
	c, err := Open(t.TempDir(), 1<<20)
	require.NoError(t, err)
	defer c.Close()

	ed, err := c.Edit("k1")
	require.NoError(t, err)
	ed.Abort()

	_, ok, err := c.Get("k1")
	require.NoError(t, err)
	assert.False(t, ok)

	// A fresh editor can now be opened for the same key.
	ed2, err := c.Edit("k1")
	require.NoError(t, err)
	ed2.Abort()
}

func TestCache_EvictsUnderMaxSize(t *testing.T) {
	c, err := Open(t.TempDir(), 1000)
	require.NoError(t, err)
	defer c.Close()

	big := make([]byte, 600)
	for i := range big {
		big[i] = 'a'
	}
	writeEntry(t, c, "k1", "http://u/1", string(big))
	writeEntry(t, c, "k2", "http://u/2", string(big))

	assert.LessOrEqual(t, c.Size(), int64(1000))
	_, ok, _ := c.Get("k1")
	assert.False(t, ok, "least recently used entry should have been evicted")
}

func TestCache_RemoveDeferredUntilSnapshotCloses(t *testing.T) {
	c, err := Open(t.TempDir(), 1<<20)
	require.NoError(t, err)
	defer c.Close()

	writeEntry(t, c, "k1", "http://u/1", "hi")
	snap, ok, err := c.Get("k1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Remove("k1"))
	// Snapshot still readable even though the entry is logically removed.
	data, err := io.ReadAll(snap.BodyFile())
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	require.NoError(t, snap.Close())
	_, ok, _ = c.Get("k1")
	assert.False(t, ok)
}

func TestCache_RevalidateRewritesMetadataOnly(t *testing.T) {
	c, err := Open(t.TempDir(), 1<<20)
	require.NoError(t, err)
	defer c.Close()

	writeEntry(t, c, "k1", "http://u/1", "hi")

	err = c.Revalidate("k1", &Metadata{
		URL:        "http://u/1",
		Method:     http.MethodGet,
		Headers:    http.Header{"ETag": []string{`"xyz"`}},
		StatusCode: 200,
		StatusText: "OK",
	})
	require.NoError(t, err)

	snap, ok, err := c.Get("k1")
	require.NoError(t, err)
	require.True(t, ok)
	defer snap.Close()

	meta, err := snap.Metadata()
	require.NoError(t, err)
	assert.Equal(t, `"xyz"`, meta.Headers.Get("ETag"))

	data, err := io.ReadAll(snap.BodyFile())
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestCache_JournalReplayPreservesEntries(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, 1<<20)
	require.NoError(t, err)
	writeEntry(t, c, "k1", "http://u/1", "hi")
	require.NoError(t, c.Close())

	c2, err := Open(dir, 1<<20)
	require.NoError(t, err)
	defer c2.Close()

	snap, ok, err := c2.Get("k1")
	require.NoError(t, err)
	require.True(t, ok)
	defer snap.Close()
}

func TestCacheable_RequiresValidatorOrFreshness(t *testing.T) {
	h := http.Header{}
	assert.False(t, Cacheable(http.MethodGet, h))

	h.Set("ETag", `"a"`)
	assert.True(t, Cacheable(http.MethodGet, h))
}

func TestCacheable_NoStoreWins(t *testing.T) {
	h := http.Header{"Cache-Control": []string{"no-store"}, "ETag": []string{`"a"`}}
	assert.False(t, Cacheable(http.MethodGet, h))
}

func TestCacheable_VaryStarDisablesCaching(t *testing.T) {
	h := http.Header{"Vary": []string{"*"}, "ETag": []string{`"a"`}}
	assert.False(t, Cacheable(http.MethodGet, h))
}

func TestMetadata_MatchesVaryHeaders(t *testing.T) {
	m := &Metadata{
		Method:      http.MethodGet,
		VaryHeaders: http.Header{"Accept-Encoding": []string{"gzip"}},
	}
	assert.True(t, m.Matches(http.MethodGet, http.Header{"Accept-Encoding": []string{"gzip"}}))
	assert.False(t, m.Matches(http.MethodGet, http.Header{"Accept-Encoding": []string{"br"}}))
}
