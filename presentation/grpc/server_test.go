package grpc

import (
	"context"
	"net"
	"testing"

	"github.com/glekoz/resize-service/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startHealth(t *testing.T) (*HealthServer, healthgrpc.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := NewHealthServer(logging.Discard())
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Shutdown)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return s, healthgrpc.NewHealthClient(conn)
}

func check(t *testing.T, c healthgrpc.HealthClient, service string) healthgrpc.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := c.Check(context.Background(), &healthgrpc.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthServer_FollowsConsumerState(t *testing.T) {
	s, c := startHealth(t)

	assert.Equal(t, healthgrpc.HealthCheckResponse_NOT_SERVING, check(t, c, ServiceName))

	s.SetServing(true)
	assert.Equal(t, healthgrpc.HealthCheckResponse_SERVING, check(t, c, ServiceName))

	s.SetServing(false)
	assert.Equal(t, healthgrpc.HealthCheckResponse_NOT_SERVING, check(t, c, ServiceName))
}

func TestHealthServer_ProcessIsServing(t *testing.T) {
	_, c := startHealth(t)
	assert.Equal(t, healthgrpc.HealthCheckResponse_SERVING, check(t, c, ""))
}

func TestHealthServer_UnknownService(t *testing.T) {
	_, c := startHealth(t)

	_, err := c.Check(context.Background(), &healthgrpc.HealthCheckRequest{Service: "nope"})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}
