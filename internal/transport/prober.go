package transport

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/shardpulse/shardpulse/internal/logging"
)

// HealthProber confirms node liveness over gRPC health checks before the
// control loop removes a node for repeated collection timeouts. Connections
// are pooled per address and recycled when they degrade.
type HealthProber struct {
	mu     sync.Mutex
	conns  map[string]*grpc.ClientConn
	logger *logging.Logger
}

// NewHealthProber creates an empty prober
func NewHealthProber(logger *logging.Logger) *HealthProber {
	return &HealthProber{
		conns:  make(map[string]*grpc.ClientConn),
		logger: logger,
	}
}

// Probe runs a health check against the node address. A nil error means the
// node answered SERVING; anything else leaves the caller's removal decision
// in force.
func (p *HealthProber) Probe(ctx context.Context, address string) error {
	conn, err := p.connection(address)
	if err != nil {
		return err
	}

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("health check against %s failed: %w", address, err)
	}

	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("node at %s reported status %s", address, resp.Status)
	}

	return nil
}

// connection returns a pooled connection, replacing ones that have shut down
func (p *HealthProber) connection(address string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, exists := p.conns[address]; exists {
		state := conn.GetState()
		if state != connectivity.TransientFailure && state != connectivity.Shutdown {
			return conn, nil
		}
		_ = conn.Close()
		delete(p.conns, address)
	}

	conn, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}

	p.conns[address] = conn
	return conn, nil
}

// Close closes all pooled connections
func (p *HealthProber) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for address, conn := range p.conns {
		if err := conn.Close(); err != nil {
			p.logger.Warn("Failed to close probe connection",
				"address", address, "error", err)
		}
		delete(p.conns, address)
	}
	return nil
}
