package adminrpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/vortex-gateway/vortex/internal/telemetry"
)

// Server wraps a grpc.Server exposing the admin Service, adapted from
// coreengine/grpc/server.go's GracefulServer: same listen/serve/drain
// lifecycle, retargeted at the admin ServiceDesc instead of the generated
// EngineService and at telemetry.Logger instead of the local Logger type.
type Server struct {
	grpcServer *grpc.Server
	logger     telemetry.Logger
	address    string
	shutdownMu sync.Mutex
	isShutdown bool
}

// NewServer builds the admin gRPC server with the standard
// recovery+logging interceptor chain and registers svc against it.
func NewServer(svc *Service, address string, logger telemetry.Logger, opts ...grpc.ServerOption) *Server {
	if len(opts) == 0 {
		opts = ServerOptions(logger)
	}
	grpcServer := grpc.NewServer(opts...)
	RegisterAdminServiceServer(grpcServer, svc)

	return &Server{
		grpcServer: grpcServer,
		logger:     logger,
		address:    address,
	}
}

// Start listens on s.address and serves until ctx is canceled, then
// performs a graceful drain.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("adminrpc: listen %s: %w", s.address, err)
	}

	s.logger.Info("admin_grpc_server_started", "address", s.address)

	errCh := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("admin_grpc_shutdown_initiated", "reason", ctx.Err().Error())
		s.GracefulStop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// GracefulStop stops accepting new connections and waits for in-flight
// RPCs to finish. Idempotent.
func (s *Server) GracefulStop() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	if s.isShutdown {
		return
	}
	s.isShutdown = true
	s.grpcServer.GracefulStop()
	s.logger.Info("admin_grpc_stop_completed")
}

// ShutdownWithTimeout gracefully stops, forcing an immediate stop if the
// drain does not finish within timeout.
func (s *Server) ShutdownWithTimeout(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("admin_grpc_shutdown_timeout", "timeout_ms", timeout.Milliseconds())
		s.shutdownMu.Lock()
		s.isShutdown = true
		s.shutdownMu.Unlock()
		s.grpcServer.Stop()
	}
}
