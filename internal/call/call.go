// Package call implements the Call engine (C3): one HTTP exchange modeled
// as a small state machine, synchronous (Execute) or dispatcher-scheduled
// (Enqueue), with idempotent cancellation and a call-wide deadline spanning
// every suspension point from DNS resolution through body read.
//
// The state machine and its validTransitions table are grounded on
// coreengine/kernel/lifecycle.go's ProcessState machine (New/Ready/Running/
// Waiting/Blocked/Terminated/Zombie): the same "map[State]map[State]bool"
// idiom, narrowed to the six Call states spec.md §4.3 actually needs.
package call

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vortex-gateway/vortex/internal/gwerrors"
)

// State is a Call's lifecycle state.
type State string

const (
	StateNew       State = "new"
	StateEnqueued  State = "enqueued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

var validTransitions = map[State]map[State]bool{
	StateNew: {
		StateEnqueued: true,
		StateRunning:  true,
		StateCanceled: true,
	},
	StateEnqueued: {
		StateRunning:  true,
		StateCanceled: true,
	},
	StateRunning: {
		StateCompleted: true,
		StateFailed:    true,
		StateCanceled:  true,
	},
	StateCompleted: {},
	StateFailed:    {},
	StateCanceled:  {},
}

// IsValidTransition reports whether from->to is an allowed Call transition.
func IsValidTransition(from, to State) bool {
	targets, ok := validTransitions[from]
	return ok && targets[to]
}

// ResultCallback receives exactly one of OnResponse/OnFailure, matching
// invariant 3 (spec.md §8): "exactly one of onResponse/onFailure has fired".
type ResultCallback struct {
	OnResponse func(*http.Response)
	OnFailure  func(*gwerrors.GatewayError)
}

// Executor performs the actual network exchange. Production code wires this
// to an *http.Client-backed transport; tests substitute a stub.
type Executor func(ctx context.Context, req *http.Request) (*http.Response, error)

// Call is a one-shot HTTP exchange (spec.md §4.3).
type Call struct {
	mu        sync.Mutex
	state     State
	req       *http.Request
	host      string
	tag       string
	timeout   time.Duration
	executor  Executor
	cancelFn  context.CancelFunc
	noThrow   bool
}

// New creates a Call in StateNew.
func New(req *http.Request, host, tag string, timeout time.Duration, executor Executor) *Call {
	return &Call{
		state:    StateNew,
		req:      req,
		host:     host,
		tag:      tag,
		timeout:  timeout,
		executor: executor,
	}
}

func (c *Call) Host() string  { return c.host }
func (c *Call) Tag() string   { return c.tag }
func (c *Call) State() State  { c.mu.Lock(); defer c.mu.Unlock(); return c.state }

func (c *Call) transition(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !IsValidTransition(c.state, to) {
		return fmt.Errorf("call: invalid transition %s -> %s", c.state, to)
	}
	c.state = to
	return nil
}

// Execute runs the call synchronously, blocking until the exchange
// completes, fails, or the call-wide deadline (spanning DNS -> connect ->
// TLS -> body write -> server processing -> body read, even across
// redirects) elapses.
func (c *Call) Execute(ctx context.Context) (*http.Response, *gwerrors.GatewayError) {
	if err := c.transition(StateRunning); err != nil {
		return nil, gwerrors.New(gwerrors.KindProtocolError, "state", err.Error(), err)
	}

	deadline := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		deadline, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		deadline, cancel = context.WithCancel(ctx)
	}
	c.mu.Lock()
	c.cancelFn = cancel
	c.mu.Unlock()
	defer cancel()

	resp, err := c.executor(deadline, c.req)
	if err != nil {
		gerr := classifyError(deadline, err)
		_ = c.transition(terminalFor(gerr))
		if c.noThrow {
			return nil, gerr
		}
		return nil, gerr
	}

	_ = c.transition(StateCompleted)
	return resp, nil
}

func terminalFor(err *gwerrors.GatewayError) State {
	if err.Kind == gwerrors.KindCancellation {
		return StateCanceled
	}
	return StateFailed
}

func classifyError(ctx context.Context, err error) *gwerrors.GatewayError {
	if ctx.Err() == context.Canceled {
		return gwerrors.Canceled("execute")
	}
	if ctx.Err() == context.DeadlineExceeded {
		return gwerrors.Timeout("execute")
	}
	return gwerrors.New(gwerrors.KindNetworkError, "execute", err.Error(), err)
}

// Enqueue schedules the call via dispatcher d and invokes exactly one of
// cb.OnResponse/cb.OnFailure when it settles.
func (c *Call) Enqueue(ctx context.Context, d Dispatcher, cb ResultCallback) {
	if err := c.transition(StateEnqueued); err != nil {
		cb.OnFailure(gwerrors.New(gwerrors.KindProtocolError, "state", err.Error(), err))
		return
	}
	d.Enqueue(c, func() {
		resp, gerr := c.Execute(ctx)
		if gerr != nil {
			cb.OnFailure(gerr)
			return
		}
		cb.OnResponse(resp)
	})
}

// Cancel is idempotent and safe from any scheduling context (spec.md §4.3,
// §5's cancellation semantics): it sets the canceled flag atomically and
// interrupts the underlying socket via the call's own context.
func (c *Call) Cancel() {
	c.mu.Lock()
	if c.state == StateCompleted || c.state == StateFailed || c.state == StateCanceled {
		c.mu.Unlock()
		return
	}
	cancelFn := c.cancelFn
	c.state = StateCanceled
	c.mu.Unlock()
	if cancelFn != nil {
		cancelFn()
	}
}

// Clone returns a fresh Call with identical request/config state for retry.
func (c *Call) Clone() *Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := c.req.Clone(c.req.Context())
	return New(clone, c.host, c.tag, c.timeout, c.executor)
}

// SetNoThrow configures the call so failures are surfaced on the result
// rather than via a thrown error from Execute — Execute in Go always
// returns the error value, so this flag only affects HTTP-layer callers
// that choose to ignore vs. propagate it (kept for parity with spec.md's
// nothrow() fluent flag).
func (c *Call) SetNoThrow(v bool) { c.mu.Lock(); c.noThrow = v; c.mu.Unlock() }

// Dispatcher is the interface Call.Enqueue schedules against; implemented
// by internal/pool.Dispatcher.
type Dispatcher interface {
	Enqueue(c *Call, run func())
}
