package adminrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name admin clients dial.
const ServiceName = "vortex.admin.v1.AdminService"

// serviceDesc hand-registers the four admin methods against structpb.Struct
// as a generic, schema-less payload type: the pack's protobuf generator
// output (coreengine/proto) is for the kernel pipeline's Envelope wire
// format, not for this gateway's admin surface, so there is no .proto for
// admin operations to generate from. structpb.Struct lets the methods stay
// real protobuf messages (and thus interceptor/codec-compatible) without
// fabricating a generated package.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetPoolStats", Handler: getPoolStatsHandler},
		{MethodName: "CancelTag", Handler: cancelTagHandler},
		{MethodName: "GetCacheStats", Handler: getCacheStatsHandler},
		{MethodName: "Reload", Handler: reloadHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vortex/admin.proto",
}

func decodeRequest(dec func(any) error) (*structpb.Struct, error) {
	req := &structpb.Struct{}
	if err := dec(req); err != nil {
		return nil, err
	}
	return req, nil
}

func getPoolStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req, err := decodeRequest(dec)
	if err != nil {
		return nil, err
	}
	svc := srv.(*Service)
	if interceptor == nil {
		return svc.GetPoolStats(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetPoolStats"}
	handler := func(ctx context.Context, req any) (any, error) {
		return svc.GetPoolStats(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, req, info, handler)
}

func cancelTagHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req, err := decodeRequest(dec)
	if err != nil {
		return nil, err
	}
	svc := srv.(*Service)
	if interceptor == nil {
		return svc.CancelTag(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/CancelTag"}
	handler := func(ctx context.Context, req any) (any, error) {
		return svc.CancelTag(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, req, info, handler)
}

func getCacheStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req, err := decodeRequest(dec)
	if err != nil {
		return nil, err
	}
	svc := srv.(*Service)
	if interceptor == nil {
		return svc.GetCacheStats(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetCacheStats"}
	handler := func(ctx context.Context, req any) (any, error) {
		return svc.GetCacheStats(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, req, info, handler)
}

func reloadHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req, err := decodeRequest(dec)
	if err != nil {
		return nil, err
	}
	svc := srv.(*Service)
	if interceptor == nil {
		return svc.Reload(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Reload"}
	handler := func(ctx context.Context, req any) (any, error) {
		return svc.Reload(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, req, info, handler)
}

// RegisterAdminServiceServer registers svc against grpcServer the way
// generated *_grpc.pb.go code would call RegisterXxxServer.
func RegisterAdminServiceServer(grpcServer *grpc.Server, svc *Service) {
	grpcServer.RegisterService(&serviceDesc, svc)
}
