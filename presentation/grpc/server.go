package grpc

import (
	"context"
	"errors"
	"net"

	"github.com/glekoz/resize-service/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// ServiceName is what probes pass to grpc_health_v1.Health/Check.
	ServiceName = "resizer"

	maxMessageSize = 1 << 20
)

// HealthServer exposes the standard gRPC health service. The resizer
// entry is SERVING only while a consumer session is attached.
type HealthServer struct {
	health *health.Server
	srv    *grpc.Server
	logger logging.Logger
}

func NewHealthServer(logger logging.Logger) *HealthServer {
	h := health.NewServer()
	h.SetServingStatus(ServiceName, healthgrpc.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer(grpc.MaxRecvMsgSize(maxMessageSize))
	healthgrpc.RegisterHealthServer(srv, h)
	return &HealthServer{health: h, srv: srv, logger: logger}
}

func (s *HealthServer) SetServing(serving bool) {
	status := healthgrpc.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthgrpc.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Serve blocks until the server is stopped.
func (s *HealthServer) Serve(lis net.Listener) error {
	err := s.srv.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Run listens on addr and serves until ctx is canceled.
func (s *HealthServer) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()
	s.logger.Info(ctx, "health endpoint listening", "addr", lis.Addr().String())
	return s.Serve(lis)
}

// Shutdown marks every service NOT_SERVING and stops accepting calls.
func (s *HealthServer) Shutdown() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
