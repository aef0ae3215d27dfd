package backend

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/vortex-gateway/vortex/internal/gwerrors"
	"github.com/vortex-gateway/vortex/internal/reqbuilder"
	"github.com/vortex-gateway/vortex/internal/router"
)

// Broker is the message-bus abstraction MQRouter enqueues onto, grounded
// on commbus/bus.go's InMemoryCommBus.Send — fire-and-forget, handler
// errors logged rather than propagated to the publisher.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// MQRouter forwards the request body to a broker topic and answers
// immediately on successful enqueue, per spec.md §4.8.2: "returns 200
// {"status":"forwarded"} immediately after enqueue success (fire-and-
// forget semantics)". The bounded worker pool (size 2*cores) decouples the
// enqueue call from the dispatching goroutine.
type MQRouter struct {
	broker Broker
	work   chan mqJob
}

type mqJob struct {
	ctx     context.Context
	topic   string
	payload []byte
	done    chan error
}

func NewMQRouter(broker Broker) *MQRouter {
	workers := 2 * runtime.NumCPU()
	r := &MQRouter{broker: broker, work: make(chan mqJob, workers*4)}
	for i := 0; i < workers; i++ {
		go r.loop()
	}
	return r
}

func (r *MQRouter) loop() {
	for job := range r.work {
		job.done <- r.broker.Publish(job.ctx, job.topic, job.payload)
	}
}

func (r *MQRouter) Route(ctx context.Context, rc *router.Context, b *reqbuilder.Builder) (*Result, error) {
	topic := rc.Asset.Method
	if topic == "" {
		return nil, gwerrors.Validation("mq router: asset has no topic configured")
	}

	var payload []byte
	if rc.Raw.Body != nil {
		data, err := io.ReadAll(rc.Raw.Body)
		if err != nil {
			return nil, gwerrors.New(gwerrors.KindProtocolError, "mq_router", "reading request body", err)
		}
		payload = data
	}

	done := make(chan error, 1)
	select {
	case r.work <- mqJob{ctx: ctx, topic: topic, payload: payload, done: done}:
	case <-ctx.Done():
		return nil, gwerrors.Canceled("mq_enqueue")
	}

	select {
	case err := <-done:
		if err != nil {
			return nil, gwerrors.New(gwerrors.KindBrokerError, "mq_router", fmt.Sprintf("broker publish failed for topic %q", topic), err)
		}
	case <-ctx.Done():
		return nil, gwerrors.Timeout("mq_enqueue")
	}

	return jsonResult(200, []byte(`{"status":"forwarded"}`), rc.Asset.Stream), nil
}
