package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

func startHealthServer(t *testing.T) (string, *health.Server) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(srv.Stop)
	return listener.Addr().String(), hs
}

func TestHealthClient(t *testing.T) {
	req := require.New(t)
	addr, hs := startHealthServer(t)
	hs.SetServingStatus("chat", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	c, err := NewHealthClient(addr)
	req.NoError(err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	statuses, err := c.Status(ctx, "", "chat")
	req.NoError(err)
	req.Equal(map[string]string{"": "SERVING", "chat": "NOT_SERVING"}, statuses)

	// When the service comes up later
	go func() {
		time.Sleep(100 * time.Millisecond)
		hs.SetServingStatus("chat", grpc_health_v1.HealthCheckResponse_SERVING)
	}()
	req.NoError(c.WaitServing(ctx, "chat"))

	_, err = c.Status(ctx, "unknown")
	req.Error(err)
}

func TestHealthClient_WaitServing_Respects_Context(t *testing.T) {
	addr, hs := startHealthServer(t)
	hs.SetServingStatus("chat", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	c, err := NewHealthClient(addr)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, c.WaitServing(ctx, "chat"), context.DeadlineExceeded)
}
