package adminrpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/vortex-gateway/vortex/internal/telemetry"
)

func TestRecoveryInterceptor_ConvertsPanicToError(t *testing.T) {
	interceptor := RecoveryInterceptor(telemetry.NoopLogger(), nil)
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		panic("boom")
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/vortex.admin.v1.AdminService/GetPoolStats"}

	_, err := interceptor(context.Background(), nil, info, handler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestChainUnaryInterceptors_RunsInOrder(t *testing.T) {
	var order []string
	mark := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
			order = append(order, name)
			return handler(ctx, req)
		}
	}

	chain := ChainUnaryInterceptors(mark("first"), mark("second"))
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		order = append(order, "handler")
		return nil, nil
	}

	_, err := chain(context.Background(), nil, &grpc.UnaryServerInfo{}, handler)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}
