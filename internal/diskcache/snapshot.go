package diskcache

import (
	"fmt"
	"os"
)

// Snapshot is a frozen, reference-counted view of one entry's files,
// returned by Cache.Get. Concurrent Put/evict activity on the same key
// never disturbs an open Snapshot (spec.md §4.4 invariant v); the
// underlying entry is only actually deleted from disk once every Snapshot
// referencing it has closed.
type Snapshot struct {
	cache    *Cache
	key      string
	metaFile *os.File
	bodyFile *os.File
	closed   bool
}

// Metadata re-reads and parses the snapshot's metadata file.
func (s *Snapshot) Metadata() (*Metadata, error) {
	if _, err := s.metaFile.Seek(0, os.SEEK_SET); err != nil {
		return nil, err
	}
	return ReadMetadata(s.metaFile)
}

// BodyFile exposes the body file for streaming reads (including Range
// support via Seek).
func (s *Snapshot) BodyFile() *os.File {
	return s.bodyFile
}

// Close releases this snapshot's reference; once the last reference to a
// since-removed entry closes, its files are deleted.
func (s *Snapshot) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.metaFile.Close()
	s.bodyFile.Close()
	s.cache.releaseSnapshot(s.key)
	return nil
}

func (c *Cache) openSnapshot(key string) (*Snapshot, error) {
	meta, err := os.Open(c.finalPath(key, 0))
	if err != nil {
		return nil, fmt.Errorf("diskcache: opening metadata file for %q: %w", key, err)
	}
	body, err := os.Open(c.finalPath(key, 1))
	if err != nil {
		meta.Close()
		return nil, fmt.Errorf("diskcache: opening body file for %q: %w", key, err)
	}
	return &Snapshot{cache: c, key: key, metaFile: meta, bodyFile: body}, nil
}
