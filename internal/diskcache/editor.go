package diskcache

import (
	"fmt"
	"io"
	"os"
)

// Editor is returned by Cache.Edit; it owns the "<key>.0.tmp"/"<key>.1.tmp"
// files until Commit or Abort. Only one Editor per key may be open at a
// time (spec.md §4.4's "if an editor is already open, put is aborted").
type Editor struct {
	cache    *Cache
	key      string
	metaFile *os.File
	bodyFile *os.File
	done     bool
}

func (c *Cache) newEditor(key string) (*Editor, error) {
	meta, err := os.Create(c.tmpPath(key, 0))
	if err != nil {
		return nil, fmt.Errorf("diskcache: creating metadata tmp file: %w", err)
	}
	body, err := os.Create(c.tmpPath(key, 1))
	if err != nil {
		meta.Close()
		return nil, fmt.Errorf("diskcache: creating body tmp file: %w", err)
	}
	return &Editor{cache: c, key: key, metaFile: meta, bodyFile: body}, nil
}

// WriteMetadata writes the metadata file in full; callers must write it
// before streaming the body (spec.md §4.4: "Metadata is written first").
func (e *Editor) WriteMetadata(m *Metadata) error {
	return m.WriteTo(e.metaFile)
}

// BodyWriter returns the sink the body is streamed through. Commit only
// succeeds if the sink was closed normally beforehand (the caller finishes
// writing and then calls Commit; Go's explicit error handling makes the
// "sink closed normally" condition simply "no write error occurred").
func (e *Editor) BodyWriter() io.Writer {
	return e.bodyFile
}

// Commit finalizes the edit: both tmp files are renamed into place and a
// CLEAN journal record is appended. Commit is a no-op (returns an error) if
// already committed or aborted.
func (e *Editor) Commit() error {
	if e.done {
		return fmt.Errorf("diskcache: editor for %q already finalized", e.key)
	}
	e.done = true

	metaInfo, err := e.metaFile.Stat()
	if err != nil {
		e.cleanupTmp()
		return err
	}
	bodyInfo, err := e.bodyFile.Stat()
	if err != nil {
		e.cleanupTmp()
		return err
	}
	if err := e.metaFile.Close(); err != nil {
		e.cleanupTmp()
		return err
	}
	if err := e.bodyFile.Close(); err != nil {
		e.cleanupTmp()
		return err
	}

	if err := os.Rename(e.cache.tmpPath(e.key, 0), e.cache.finalPath(e.key, 0)); err != nil {
		return err
	}
	if err := os.Rename(e.cache.tmpPath(e.key, 1), e.cache.finalPath(e.key, 1)); err != nil {
		return err
	}

	e.cache.completeEdit(e.key, [2]int64{metaInfo.Size(), bodyInfo.Size()}, true)
	return nil
}

// Abort discards the edit: tmp files are removed, no journal record is
// written for a first-time key (the entry never becomes visible).
func (e *Editor) Abort() {
	if e.done {
		return
	}
	e.done = true
	e.metaFile.Close()
	e.bodyFile.Close()
	e.cleanupTmp()
	e.cache.completeEdit(e.key, [2]int64{}, false)
}

func (e *Editor) cleanupTmp() {
	os.Remove(e.cache.tmpPath(e.key, 0))
	os.Remove(e.cache.tmpPath(e.key, 1))
}
