// Package preprocess implements the preprocessor chain (C7): serial
// interceptors that run in order and may suspend the pipeline up to a
// global timeout, and parallel interceptors that fire concurrently while
// the pipeline continues immediately.
//
// The chaining mechanics are grounded on coreengine/grpc/interceptors.go's
// ChainUnaryInterceptors (build the handler chain right-to-left so the
// first-registered interceptor is outermost) and RecoveryInterceptor
// (panic recovery wraps every interceptor). The suspend-with-timeout
// semantics replace a nested-callback-plus-CountDownLatch pattern with
// structured concurrency: a single context.WithTimeout bounds the whole
// serial chain instead.
package preprocess

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/vortex-gateway/vortex/internal/gwerrors"
	"github.com/vortex-gateway/vortex/internal/reqbuilder"
	"github.com/vortex-gateway/vortex/internal/router"
	"github.com/vortex-gateway/vortex/internal/telemetry"
)

// Preprocessor mutates a Context+builder, optionally short-circuiting with a
// response or failing outright (spec.md §4.7).
type Preprocessor interface {
	Name() string
	Process(ctx context.Context, rc *router.Context, b *reqbuilder.Builder) (shortCircuit *ShortCircuit, err error)
}

// ShortCircuit lets a preprocessor answer the request directly without
// reaching a backend router.
type ShortCircuit struct {
	Status int
	Body   []byte
}

// Flags carries the per-request skip flags from spec.md §4.7.
type Flags struct {
	SkipPreproc       bool
	SkipSerialPreproc bool
}

// Chain holds the serial and parallel preprocessor registries.
type Chain struct {
	serial   []Preprocessor
	parallel []Preprocessor
	timeout  time.Duration
	logger   telemetry.Logger
}

func NewChain(timeout time.Duration, logger telemetry.Logger) *Chain {
	return &Chain{timeout: timeout, logger: logger}
}

func (c *Chain) RegisterSerial(p Preprocessor)   { c.serial = append(c.serial, p) }
func (c *Chain) RegisterParallel(p Preprocessor) { c.parallel = append(c.parallel, p) }

// Run executes the chain per spec.md §4.7: serial preprocessors run in
// order inside a timeout budget; parallel preprocessors are fired without
// blocking the pipeline. Timeout expiry yields a GatewayError of
// KindTimeout with Stage "preprocess" (spec.md §7's per-stage timeout
// taxonomy).
func (c *Chain) Run(ctx context.Context, rc *router.Context, b *reqbuilder.Builder, flags Flags) (*ShortCircuit, error) {
	if !flags.SkipPreproc {
		for _, p := range c.parallel {
			go c.runParallel(ctx, p, rc, b)
		}
	}

	if flags.SkipPreproc || flags.SkipSerialPreproc {
		return nil, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		sc  *ShortCircuit
		err error
	}
	done := make(chan result, 1)

	go func() {
		sc, err := c.runSerialChain(timeoutCtx, rc, b)
		done <- result{sc, err}
	}()

	select {
	case r := <-done:
		return r.sc, r.err
	case <-timeoutCtx.Done():
		return nil, gwerrors.Timeout("preprocess")
	}
}

// runSerialChain runs the serial preprocessors in registration order, so
// the first-registered one can inspect/short-circuit before any later one
// runs; it stops at the first short-circuit or error.
func (c *Chain) runSerialChain(ctx context.Context, rc *router.Context, b *reqbuilder.Builder) (sc *ShortCircuit, err error) {
	for _, p := range c.serial {
		sc, err = c.runOne(ctx, p, rc, b)
		if err != nil || sc != nil {
			return sc, err
		}
	}
	return nil, nil
}

func (c *Chain) runOne(ctx context.Context, p Preprocessor, rc *router.Context, b *reqbuilder.Builder) (sc *ShortCircuit, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("preprocessor_panic_recovered",
				"preprocessor", p.Name(), "panic", fmt.Sprintf("%v", r), "stack", string(debug.Stack()))
			err = gwerrors.New(gwerrors.KindProtocolError, "preprocess", "preprocessor panicked", fmt.Errorf("%v", r))
		}
	}()
	return p.Process(ctx, rc, b)
}

func (c *Chain) runParallel(ctx context.Context, p Preprocessor, rc *router.Context, b *reqbuilder.Builder) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("parallel_preprocessor_panic_recovered", "preprocessor", p.Name(), "panic", fmt.Sprintf("%v", r))
		}
	}()
	if _, err := p.Process(ctx, rc, b); err != nil {
		c.logger.Warn("parallel_preprocessor_error", "preprocessor", p.Name(), "error", err.Error())
	}
}
