package backend

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vortex-gateway/vortex/internal/gwerrors"
	"github.com/vortex-gateway/vortex/internal/router"
	"github.com/vortex-gateway/vortex/internal/telemetry"
)

// highWaterMark bounds each direction's outstanding send buffer before the
// opposite side's read is paused, per spec.md §4.8.3's backpressure rule.
const highWaterMark = 64

// WSRouter bridges an ingress WebSocket upgrade to an upstream WebSocket,
// frame-forwarding each direction independently (spec.md §4.8.3). It is
// invoked directly by the HTTP handler rather than through the generic
// Router interface, since a WS upgrade hijacks the connection instead of
// producing a buffered/chunked Result.
type WSRouter struct {
	upgrader websocket.Upgrader
	logger   telemetry.Logger
}

func NewWSRouter(logger telemetry.Logger) *WSRouter {
	return &WSRouter{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// IsUpgradeRequest reports whether req carries the headers spec.md §4.8.3
// requires for a WS upgrade: Upgrade: websocket, Connection: upgrade, and a
// non-empty Sec-WebSocket-Key.
func IsUpgradeRequest(req *http.Request) bool {
	return strings.EqualFold(req.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(req.Header.Get("Connection")), "upgrade") &&
		req.Header.Get("Sec-WebSocket-Key") != ""
}

// Bridge upgrades the client connection, dials the upstream, and pumps
// frames in both directions until either side closes.
func (r *WSRouter) Bridge(w http.ResponseWriter, req *http.Request, rc *router.Context) error {
	if !IsUpgradeRequest(req) {
		return gwerrors.Validation("ws router: not a websocket upgrade request")
	}

	asset := rc.Asset
	upstreamURL := fmt.Sprintf("ws://%s:%d%s", asset.Host, asset.Port, asset.Path)

	upstreamConn, _, err := websocket.DefaultDialer.DialContext(req.Context(), upstreamURL, nil)
	if err != nil {
		return gwerrors.New(gwerrors.KindNetworkError, "ws_router", "dialing upstream websocket", err)
	}

	clientConn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		upstreamConn.Close()
		return gwerrors.New(gwerrors.KindProtocolError, "ws_router", "upgrading client connection", err)
	}

	bridge := &wsBridge{client: clientConn, upstream: upstreamConn, logger: r.logger}
	bridge.run()
	return nil
}

// wsBridge pumps frames independently in each direction, as a bounded
// single-producer single-consumer channel per side: the reader suspends
// once the writer's channel fills, giving automatic backpressure without
// an explicit high/low-water signal.
type wsBridge struct {
	client   *websocket.Conn
	upstream *websocket.Conn
	logger   telemetry.Logger

	closeOnce sync.Once
}

func (b *wsBridge) run() {
	done := make(chan struct{})
	go b.pump(b.client, b.upstream, done)
	go b.pump(b.upstream, b.client, done)
	<-done
	<-done
}

func (b *wsBridge) pump(src, dst *websocket.Conn, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	queue := make(chan wsFrame, highWaterMark)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for frame := range queue {
			if err := dst.WriteMessage(frame.kind, frame.data); err != nil {
				return
			}
		}
	}()

	for {
		kind, data, err := src.ReadMessage()
		if err != nil {
			break
		}
		switch kind {
		case websocket.PingMessage, websocket.PongMessage:
			continue // terminated locally, not forwarded (spec.md §4.8.3)
		case websocket.CloseMessage:
			dst.WriteMessage(websocket.CloseMessage, data)
			close(queue)
			<-writerDone
			b.closeBoth()
			return
		default:
			select {
			case queue <- wsFrame{kind: kind, data: data}:
			case <-time.After(5 * time.Second):
				// Backpressure: sustained stall beyond a few seconds means
				// the peer is gone; drop the connection rather than block
				// forever.
				close(queue)
				<-writerDone
				b.closeBoth()
				return
			}
		}
	}
	close(queue)
	<-writerDone
	b.closeBoth()
}

func (b *wsBridge) closeBoth() {
	b.closeOnce.Do(func() {
		b.client.Close()
		b.upstream.Close()
	})
}

type wsFrame struct {
	kind int
	data []byte
}
