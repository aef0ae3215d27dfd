package diskcache

import (
	"fmt"
	"os"
)

// Revalidate rewrites only the metadata file of an existing entry, used
// when an upstream 304 confirms the cached body is still fresh (spec.md
// §4.4: "a 304 triggers update(cached, networkResponse) which rewrites
// only the metadata of the current snapshot via a short-lived editor").
// The body file is untouched.
func (c *Cache) Revalidate(key string, m *Metadata) error {
	c.mu.Lock()
	elem, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("diskcache: revalidate: no entry for %q", key)
	}
	e := elem.Value.(*entry)
	if e.editor != nil {
		c.mu.Unlock()
		return fmt.Errorf("diskcache: revalidate: editor already open for %q", key)
	}
	c.mu.Unlock()

	tmpPath := c.tmpPath(key, 0)
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("diskcache: revalidate: creating tmp metadata file: %w", err)
	}
	if err := m.WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("diskcache: revalidate: writing metadata: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, c.finalPath(key, 0)); err != nil {
		return fmt.Errorf("diskcache: revalidate: committing metadata: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentSize += info.Size() - e.lengths[0]
	e.lengths[0] = info.Size()
	_ = c.journal.appendClean(key, e.lengths[0], e.lengths[1])
	c.opCount++
	c.redundant++
	c.evictLocked()
	return nil
}
