// Package client talks to a running chat daemon over its gRPC health endpoint.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

type HealthClient struct {
	conn   *grpc.ClientConn
	client grpc_health_v1.HealthClient
}

func NewHealthClient(address string) (*HealthClient, error) {
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return &HealthClient{conn: conn, client: grpc_health_v1.NewHealthClient(conn)}, nil
}

func (c *HealthClient) Close() error {
	return c.conn.Close()
}

// Status returns the serving status of each service, "" being the process itself.
func (c *HealthClient) Status(ctx context.Context, services ...string) (map[string]string, error) {
	statuses := make(map[string]string, len(services))
	for _, service := range services {
		resp, err := c.client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
		if err != nil {
			return nil, fmt.Errorf("health of %q: %w", service, err)
		}
		statuses[service] = resp.GetStatus().String()
	}
	return statuses, nil
}

// WaitServing blocks until the service reports SERVING or ctx ends.
func (c *HealthClient) WaitServing(ctx context.Context, service string) error {
	backoff := 200 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		resp, err := c.client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %q: %w", service, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, time.Second)
	}
}
