// Package diskcache implements the content-addressed on-disk LRU response
// cache (C4): a journal-backed directory of entries, reference-counted
// snapshots, vary-header matching, and conditional-revalidation rewrites.
//
// No grounding file implements an HTTP cache directly; the journal format
// itself is spec.md §6's own (a simplified OkHttp-style DiskLruCache). The
// reference-counting replacement for the original's cyclic Entry/Snapshot/
// Source ownership, and the result-type-not-exception error handling, are
// a deliberate redesign per spec.md §9's Go-idiomatic error-handling
// guidance. The cache is not wrapped in an http.RoundTripper: internal/
// gateway's handler calls Get/Edit/Revalidate on it directly.
package diskcache

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

const appVersion = 1

// Stats are the monotonic counters from spec.md §4.4, reset only on fresh
// Cache construction.
type Stats struct {
	RequestCount     int64
	NetworkCount     int64
	HitCount         int64
	WriteSuccessCount int64
	WriteAbortCount  int64
}

// Cache is the disk-backed LRU response cache.
type Cache struct {
	dir     string
	maxSize int64

	mu          sync.Mutex
	entries     map[string]*list.Element // key -> LRU element wrapping *entry
	lru         *list.List               // front = most recently used
	currentSize int64
	journal     *journalWriter
	opCount     int
	redundant   int

	stats Stats

	lockFile *os.File
}

// Open opens (creating if absent) a disk cache rooted at dir, replaying its
// journal to rebuild the in-memory LRU order (spec.md §4.4 invariant iii).
// It writes the process id to a cache.lock file in the directory. The lock
// file is not exclusive: a second Open of the same directory, from this or
// another process, is not refused.
func Open(dir string, maxSize int64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("diskcache: creating cache dir: %w", err)
	}

	lock, err := acquireLock(dir)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		dir:      dir,
		maxSize:  maxSize,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		lockFile: lock,
	}

	journalPath := filepath.Join(dir, journalFileName)
	replayed, lineCount, _, err := readJournal(journalPath)
	if err != nil {
		// Journal corruption is a CacheError, recovered by rebuilding from
		// scratch rather than surfaced to callers (spec.md §7).
		_ = os.Remove(journalPath)
		replayed, lineCount = nil, 0
	}
	c.opCount = lineCount

	for _, je := range replayed {
		e := &entry{key: je.key, lengths: je.lengths}
		if !bothFilesExist(c, je.key) {
			continue
		}
		elem := c.lru.PushFront(e)
		c.entries[je.key] = elem
		c.currentSize += e.totalBytes()
	}

	jw, err := openJournalForAppend(dir, appVersion)
	if err != nil {
		lock.Close()
		return nil, err
	}
	c.journal = jw

	return c, nil
}

func bothFilesExist(c *Cache, key string) bool {
	_, err0 := os.Stat(c.finalPath(key, 0))
	_, err1 := os.Stat(c.finalPath(key, 1))
	return err0 == nil && err1 == nil
}

func acquireLock(dir string) (*os.File, error) {
	path := filepath.Join(dir, "cache.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("diskcache: acquiring lock file: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	return f, nil
}

func (c *Cache) tmpPath(key string, slot int) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s.%d.tmp", key, slot))
}

func (c *Cache) finalPath(key string, slot int) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s.%d", key, slot))
}

// Get opens a Snapshot for key, promoting the entry in the LRU order and
// recording a READ journal entry. Returns ok=false on a miss.
func (c *Cache) Get(key string) (*Snapshot, bool, error) {
	c.mu.Lock()
	elem, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, false, nil
	}
	e := elem.Value.(*entry)
	e.readers++
	c.lru.MoveToFront(elem)
	_ = c.journal.appendRead(key)
	c.opCount++
	c.mu.Unlock()

	snap, err := c.openSnapshot(key)
	if err != nil {
		c.mu.Lock()
		e.readers--
		c.mu.Unlock()
		return nil, false, err
	}
	return snap, true, nil
}

// Edit opens an Editor for key; fails if one is already open for the same
// key (spec.md §4.4: "if an editor is already open, put is aborted").
func (c *Cache) Edit(key string) (*Editor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if ok && elem.Value.(*entry).editor != nil {
		return nil, fmt.Errorf("diskcache: editor already open for %q", key)
	}

	ed, err := c.newEditor(key)
	if err != nil {
		return nil, err
	}

	var e *entry
	if ok {
		e = elem.Value.(*entry)
	} else {
		e = &entry{key: key}
		elem = c.lru.PushFront(e)
		c.entries[key] = elem
	}
	e.editor = ed
	_ = c.journal.appendDirty(key)
	c.opCount++

	return ed, nil
}

func (c *Cache) completeEdit(key string, lengths [2]int64, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return
	}
	e := elem.Value.(*entry)
	e.editor = nil

	if success {
		c.currentSize += -e.totalBytes() + lengths[0] + lengths[1]
		e.lengths = lengths
		_ = c.journal.appendClean(key, lengths[0], lengths[1])
		c.opCount++
		c.redundant++
		atomic.AddInt64(&c.stats.WriteSuccessCount, 1)
		c.evictLocked()
		c.maybeCompactLocked()
	} else {
		atomic.AddInt64(&c.stats.WriteAbortCount, 1)
		if e.lengths == [2]int64{} && !bothFilesExist(c, key) {
			c.lru.Remove(elem)
			delete(c.entries, key)
		}
	}
}

// Remove evicts key immediately if unread, or marks it for deferred
// deletion once every open Snapshot referencing it closes.
func (c *Cache) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		return nil
	}
	e := elem.Value.(*entry)
	e.removed = true
	_ = c.journal.appendRemove(key)
	c.opCount++
	c.redundant++
	if e.readers == 0 {
		c.deleteEntryLocked(elem, e)
	}
	return nil
}

func (c *Cache) releaseSnapshot(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		return
	}
	e := elem.Value.(*entry)
	e.readers--
	if e.readers <= 0 && e.removed {
		c.deleteEntryLocked(elem, e)
	}
	c.evictLocked()
}

func (c *Cache) deleteEntryLocked(elem *list.Element, e *entry) {
	os.Remove(c.finalPath(e.key, 0))
	os.Remove(c.finalPath(e.key, 1))
	c.currentSize -= e.totalBytes()
	c.lru.Remove(elem)
	delete(c.entries, e.key)
}

// evictLocked drops least-recently-used entries until currentSize <=
// maxSize (spec.md invariant 5), skipping entries still open for read or
// edit — those are evicted by the pass that runs when a snapshot closes or
// an edit commits.
func (c *Cache) evictLocked() {
	for elem := c.lru.Back(); elem != nil && c.currentSize > c.maxSize; {
		prev := elem.Prev()
		e := elem.Value.(*entry)
		if e.readers == 0 && e.editor == nil {
			e.removed = true
			_ = c.journal.appendRemove(e.key)
			c.opCount++
			c.deleteEntryLocked(elem, e)
		}
		elem = prev
	}
}

// maybeCompactLocked rewrites the journal when redundant history dominates
// it, per spec.md §4.4: "redundantOpCount >= 2000 && redundantOpCount >=
// journalEntryCount".
func (c *Cache) maybeCompactLocked() {
	if c.redundant < 2000 || c.redundant < len(c.entries) {
		return
	}
	live := make([]*entry, 0, len(c.entries))
	for e := c.lru.Back(); e != nil; e = e.Prev() {
		live = append(live, e.Value.(*entry))
	}
	if err := c.journal.close(); err != nil {
		return
	}
	jw, err := rebuild(c.dir, appVersion, live)
	if err != nil {
		return
	}
	c.journal = jw
	c.opCount = len(live)
	c.redundant = 0
}

// Urls iterates live keys in LRU order (most-recently-used first); it is a
// live snapshot of the map at call time (spec.md §4.4: "urls() is live but
// supports remove() which evicts").
func (c *Cache) Urls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for e := c.lru.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*entry).key)
	}
	return out
}

func (c *Cache) Stats() Stats {
	return Stats{
		RequestCount:      atomic.LoadInt64(&c.stats.RequestCount),
		NetworkCount:      atomic.LoadInt64(&c.stats.NetworkCount),
		HitCount:          atomic.LoadInt64(&c.stats.HitCount),
		WriteSuccessCount: atomic.LoadInt64(&c.stats.WriteSuccessCount),
		WriteAbortCount:   atomic.LoadInt64(&c.stats.WriteAbortCount),
	}
}

func (c *Cache) RecordRequest() { atomic.AddInt64(&c.stats.RequestCount, 1) }
func (c *Cache) RecordNetwork() { atomic.AddInt64(&c.stats.NetworkCount, 1) }
func (c *Cache) RecordHit()     { atomic.AddInt64(&c.stats.HitCount, 1) }

// Size reports current total bytes on disk across live entries.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

// Close releases the cache's journal and directory lock.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.journal != nil {
		c.journal.close()
	}
	if c.lockFile != nil {
		c.lockFile.Close()
	}
	return nil
}
