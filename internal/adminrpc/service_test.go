package adminrpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vortex-gateway/vortex/internal/diskcache"
	"github.com/vortex-gateway/vortex/internal/pool"
	"github.com/vortex-gateway/vortex/internal/tagcancel"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cache, err := diskcache.Open(t.TempDir(), 1<<20)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	return &Service{
		Dispatcher: pool.New(10, 2, time.Minute, nil),
		Tags:       tagcancel.NewRegistry(),
		Cache:      cache,
	}
}

func TestService_GetPoolStatsReportsZeroWhenIdle(t *testing.T) {
	svc := newTestService(t)
	resp, err := svc.GetPoolStats(context.Background(), &structpb.Struct{})
	require.NoError(t, err)
	assert.Equal(t, float64(0), resp.Fields["queued_count"].GetNumberValue())
	assert.Equal(t, float64(0), resp.Fields["running_count"].GetNumberValue())
}

type fakeCancelable struct{ canceled bool }

func (f *fakeCancelable) Cancel() { f.canceled = true }

func TestService_CancelTagCancelsMatchingTasks(t *testing.T) {
	svc := newTestService(t)
	c := &fakeCancelable{}
	svc.Tags.AddTagTask("user.42.download", c, "owner-1")

	req, _ := structpb.NewStruct(map[string]any{"tag": "user.42"})
	resp, err := svc.CancelTag(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, float64(1), resp.Fields["canceled_count"].GetNumberValue())
	assert.True(t, c.canceled)
}

func TestService_CancelTagMissingFieldIsInvalidArgument(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CancelTag(context.Background(), &structpb.Struct{})
	require.Error(t, err)
}

func TestService_GetCacheStatsReflectsRecordedCounters(t *testing.T) {
	svc := newTestService(t)
	svc.Cache.RecordRequest()
	svc.Cache.RecordRequest()
	svc.Cache.RecordHit()

	resp, err := svc.GetCacheStats(context.Background(), &structpb.Struct{})
	require.NoError(t, err)
	assert.Equal(t, float64(2), resp.Fields["request_count"].GetNumberValue())
	assert.Equal(t, float64(1), resp.Fields["hit_count"].GetNumberValue())
}

type fakeReloader struct{ calls int }

func (r *fakeReloader) Reload(ctx context.Context) error {
	r.calls++
	return nil
}

func TestService_ReloadCallsReloader(t *testing.T) {
	svc := newTestService(t)
	reloader := &fakeReloader{}
	svc.Reloader = reloader

	resp, err := svc.Reload(context.Background(), &structpb.Struct{})
	require.NoError(t, err)
	assert.True(t, resp.Fields["reloaded"].GetBoolValue())
	assert.Equal(t, 1, reloader.calls)
}

func TestService_ReloadWithoutReloaderIsUnimplemented(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Reload(context.Background(), &structpb.Struct{})
	require.Error(t, err)
}
