package diskcache

// entry is the cache's in-memory record for one key: lengths of the two
// on-disk files, dirty/clean state, and a reader refcount so evict() can
// defer deletion until every open Snapshot has closed (spec.md §9's
// reference-counting replacement for DiskLruCache's cyclic Entry/Snapshot/
// Source ownership).
type entry struct {
	key      string
	lengths  [2]int64
	readers  int
	editor   *Editor
	removed  bool
}

func (e *entry) totalBytes() int64 {
	return e.lengths[0] + e.lengths[1]
}
