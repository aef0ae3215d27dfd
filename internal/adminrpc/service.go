package adminrpc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vortex-gateway/vortex/internal/diskcache"
	"github.com/vortex-gateway/vortex/internal/pool"
	"github.com/vortex-gateway/vortex/internal/tagcancel"
)

// Reloader applies a new gateway configuration in place, matching
// spec.md §3's Reload operation. The concrete implementation lives in
// cmd/vortex, which owns the gwconfig.Config lifecycle; adminrpc only
// needs something it can call.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Service implements the four admin operations named in spec.md §3 by
// calling straight into the already-built dispatcher, tag registry, and
// disk cache; there's no separate business-logic layer to adapt into,
// since jeeves-core's admin surface (coreengine/grpc) was a pipeline-
// execution RPC, not an operational one.
type Service struct {
	Dispatcher *pool.Dispatcher
	Tags       tagcancel.TagRegistry
	Cache      *diskcache.Cache
	Reloader   Reloader
}

// GetPoolStats reports queued/running call counts per spec.md's pool
// introspection requirement.
func (s *Service) GetPoolStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	queued := s.Dispatcher.QueuedCalls()
	running := s.Dispatcher.RunningCalls()
	return structpb.NewStruct(map[string]any{
		"queued_count":  float64(len(queued)),
		"running_count": float64(len(running)),
	})
}

// CancelTag cancels every in-flight call whose tag contains req["tag"] and
// reports how many were canceled, per spec.md §4.10's cancelByTag.
func (s *Service) CancelTag(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tag, ok := req.Fields["tag"]
	if !ok || tag.GetStringValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "missing required field: tag")
	}
	count := s.Tags.CancelByTag(tag.GetStringValue())
	return structpb.NewStruct(map[string]any{"canceled_count": float64(count)})
}

// GetCacheStats reports the disk cache's monotonic counters (spec.md §6).
func (s *Service) GetCacheStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	stats := s.Cache.Stats()
	return structpb.NewStruct(map[string]any{
		"request_count":      float64(stats.RequestCount),
		"network_count":      float64(stats.NetworkCount),
		"hit_count":          float64(stats.HitCount),
		"write_success_count": float64(stats.WriteSuccessCount),
		"write_abort_count":  float64(stats.WriteAbortCount),
		"current_size_bytes": float64(s.Cache.Size()),
	})
}

// Reload invokes the configured Reloader and reports whether it succeeded.
// The Reloader cmd/vortex installs re-reads the YAML file and installs it
// with gwconfig.Set; the route table, preprocessor chain and routers built
// at startup are not rebuilt.
func (s *Service) Reload(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.Reloader == nil {
		return nil, status.Error(codes.Unimplemented, "reload not wired")
	}
	if err := s.Reloader.Reload(ctx); err != nil {
		return nil, status.Errorf(codes.Internal, "reload failed: %v", err)
	}
	return structpb.NewStruct(map[string]any{"reloaded": true})
}
