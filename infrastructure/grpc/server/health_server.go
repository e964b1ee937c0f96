package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the chat gateway.
const ServiceName = "talent-chat.ChatGateway"

// Probe reports whether a dependency of the gateway answers.
type Probe func(ctx context.Context) error

// HealthServer exposes the standard gRPC health protocol. The chat service
// status follows the probe, the overall status stays SERVING while the
// process runs.
type HealthServer struct {
	address  string
	probe    Probe
	interval time.Duration
	log      *slog.Logger
	health   *health.Server
}

func NewHealthServer(address string, probe Probe, interval time.Duration, log *slog.Logger) *HealthServer {
	return &HealthServer{
		address:  address,
		probe:    probe,
		interval: interval,
		log:      log,
		health:   health.NewServer(),
	}
}

func (s *HealthServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	return s.Serve(ctx, listener)
}

func (s *HealthServer) Serve(ctx context.Context, listener net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(s.log)))
	grpc_health_v1.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.check(ctx)

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("Starting gRPC health server", "address", listener.Addr().String())
		if err := srv.Serve(listener); err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			srv.GracefulStop()
			s.log.Info("gRPC health server stopped")
			return nil
		case err := <-errChan:
			return err
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *HealthServer) check(ctx context.Context) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := s.probe(ctx); err != nil {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		s.log.Warn("Health probe failed", "service", ServiceName, "error", err)
	}
	s.health.SetServingStatus(ServiceName, status)
}
