// Package respwriter implements the response writer (C9): a uniform
// adapter from a backend.Result to the wire, choosing buffered (known
// Content-Length) or chunked (periodic-flush) framing from the result's
// stream mode, and propagating client disconnect back to the source.
//
// The channel-mediated streaming loop is grounded on
// coreengine/runtime/dag_executor.go's ExecuteStreaming: a goroutine reads
// from the upstream source and forwards onto a bounded channel, the HTTP
// handler drains and flushes, and closing the channel signals completion.
package respwriter

import (
	"io"
	"net/http"
	"strconv"

	"github.com/vortex-gateway/vortex/internal/backend"
	"github.com/vortex-gateway/vortex/internal/gwerrors"
	"github.com/vortex-gateway/vortex/internal/router"
	"github.com/vortex-gateway/vortex/internal/telemetry"
)

// chunkSize is the read granularity for chunked mode; also the writer's
// high-water mark in flight (spec.md §8 invariant 8: "never buffers more
// than one chunk above the writer high-water mark").
const chunkSize = 32 * 1024

// Write emits result to w according to result.Stream, closing result.Body
// when done (normally, on error, or on client disconnect).
func Write(w http.ResponseWriter, req *http.Request, result *backend.Result, logger telemetry.Logger) error {
	defer result.Body.Close()

	for name, values := range result.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}

	if result.Stream == router.StreamChunked || result.ContentLength < 0 {
		return writeChunked(w, req, result, logger)
	}
	return writeBuffered(w, req, result, logger)
}

func writeBuffered(w http.ResponseWriter, req *http.Request, result *backend.Result, logger telemetry.Logger) error {
	if result.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(result.ContentLength, 10))
	}
	w.WriteHeader(result.Status)

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(w, result.Body)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Warn("response_write_failed", "error", err.Error())
			return gwerrors.New(gwerrors.KindNetworkError, "respwriter", "writing buffered response", err)
		}
		return nil
	case <-req.Context().Done():
		return gwerrors.Canceled("respwriter")
	}
}

func writeChunked(w http.ResponseWriter, req *http.Request, result *backend.Result, logger telemetry.Logger) error {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(result.Status)
	if flusher != nil {
		flusher.Flush()
	}

	chunks := make(chan []byte, 1)
	readErr := make(chan error, 1)

	go func() {
		defer close(chunks)
		buf := make([]byte, chunkSize)
		for {
			n, err := result.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-req.Context().Done():
					readErr <- req.Context().Err()
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					readErr <- err
				}
				return
			}
		}
	}()

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				select {
				case err := <-readErr:
					logger.Warn("chunked_stream_read_failed", "error", err.Error())
					return gwerrors.New(gwerrors.KindNetworkError, "respwriter", "reading chunked source", err)
				default:
					return nil
				}
			}
			if _, err := w.Write(chunk); err != nil {
				logger.Warn("chunked_stream_write_failed", "error", err.Error())
				return gwerrors.New(gwerrors.KindNetworkError, "respwriter", "writing chunk", err)
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-req.Context().Done():
			return gwerrors.Canceled("respwriter")
		}
	}
}
