package preprocess

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortex-gateway/vortex/internal/reqbuilder"
	"github.com/vortex-gateway/vortex/internal/router"
	"github.com/vortex-gateway/vortex/internal/telemetry"
)

type fakePreprocessor struct {
	name    string
	sc      *ShortCircuit
	err     error
	delay   time.Duration
	panics  bool
	calls   *int
}

func (f *fakePreprocessor) Name() string { return f.name }

func (f *fakePreprocessor) Process(ctx context.Context, rc *router.Context, b *reqbuilder.Builder) (*ShortCircuit, error) {
	if f.calls != nil {
		*f.calls++
	}
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}
	return f.sc, f.err
}

func newTestContext() *router.Context {
	return &router.Context{RequestID: "r1", Asset: router.Asset{Kind: router.KindREST}}
}

func TestRun_SerialChainStopsOnShortCircuit(t *testing.T) {
	c := NewChain(time.Second, telemetry.NoopLogger())
	calledAfter := 0
	c.RegisterSerial(&fakePreprocessor{name: "auth", sc: &ShortCircuit{Status: 401}})
	c.RegisterSerial(&fakePreprocessor{name: "never", calls: &calledAfter})

	sc, err := c.Run(context.Background(), newTestContext(), reqbuilder.New(), Flags{})
	require.NoError(t, err)
	require.NotNil(t, sc)
	assert.Equal(t, 401, sc.Status)
	assert.Equal(t, 0, calledAfter)
}

func TestRun_SerialChainPropagatesError(t *testing.T) {
	c := NewChain(time.Second, telemetry.NoopLogger())
	c.RegisterSerial(&fakePreprocessor{name: "bad", err: assertError{}})

	_, err := c.Run(context.Background(), newTestContext(), reqbuilder.New(), Flags{})
	assert.Error(t, err)
}

func TestRun_TimeoutYieldsGatewayTimeout(t *testing.T) {
	c := NewChain(5*time.Millisecond, telemetry.NoopLogger())
	c.RegisterSerial(&fakePreprocessor{name: "slow", delay: 50 * time.Millisecond})

	_, err := c.Run(context.Background(), newTestContext(), reqbuilder.New(), Flags{})
	require.Error(t, err)
}

func TestRun_SkipPreprocSkipsEverything(t *testing.T) {
	c := NewChain(time.Second, telemetry.NoopLogger())
	serialCalls := 0
	parallelCalls := 0
	c.RegisterSerial(&fakePreprocessor{name: "s", calls: &serialCalls})
	c.RegisterParallel(&fakePreprocessor{name: "p", calls: &parallelCalls})

	sc, err := c.Run(context.Background(), newTestContext(), reqbuilder.New(), Flags{SkipPreproc: true})
	require.NoError(t, err)
	assert.Nil(t, sc)
	assert.Equal(t, 0, serialCalls)
}

func TestRun_PanicInSerialPreprocessorRecovered(t *testing.T) {
	c := NewChain(time.Second, telemetry.NoopLogger())
	c.RegisterSerial(&fakePreprocessor{name: "panicky", panics: true})

	_, err := c.Run(context.Background(), newTestContext(), reqbuilder.New(), Flags{})
	assert.Error(t, err)
}

func TestRun_ParallelPreprocessorPanicDoesNotFailPipeline(t *testing.T) {
	c := NewChain(time.Second, telemetry.NoopLogger())
	c.RegisterParallel(&fakePreprocessor{name: "panicky", panics: true})

	sc, err := c.Run(context.Background(), newTestContext(), reqbuilder.New(), Flags{})
	require.NoError(t, err)
	assert.Nil(t, sc)
	time.Sleep(10 * time.Millisecond)
}

type assertError struct{}

func (assertError) Error() string { return "bad preprocessor" }
