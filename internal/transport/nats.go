package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/shardpulse/shardpulse/internal/models"
)

// metricsSubjectPrefix is the request/reply subject per node; node agents
// subscribe to shardpulse.metrics.<node_id> and answer with a JSON sample
const metricsSubjectPrefix = "shardpulse.metrics."

// NATSCollector implements MetricsCollector over NATS request/reply
type NATSCollector struct {
	conn     *nats.Conn
	ownsConn bool
}

// NewNATSCollector connects to NATS and creates a collector
func NewNATSCollector(url string) (*NATSCollector, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSCollector{conn: conn, ownsConn: true}, nil
}

// NewNATSCollectorWithConn creates a collector over an existing connection
// (used in tests)
func NewNATSCollectorWithConn(conn *nats.Conn) *NATSCollector {
	return &NATSCollector{conn: conn}
}

// Collect requests a metric sample from the node's subject. A context
// deadline or NATS no-responder condition surfaces as ErrCollectTimeout.
func (c *NATSCollector) Collect(ctx context.Context, node models.Node) (models.MetricSample, error) {
	subject := metricsSubjectPrefix + node.ID

	msg, err := c.conn.RequestWithContext(ctx, subject, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, nats.ErrTimeout) ||
			errors.Is(err, nats.ErrNoResponders) {
			return models.MetricSample{}, ErrCollectTimeout
		}
		return models.MetricSample{}, fmt.Errorf("metric request to %s failed: %w", node.ID, err)
	}

	var sample models.MetricSample
	if err := json.Unmarshal(msg.Data, &sample); err != nil {
		return models.MetricSample{}, fmt.Errorf("malformed metric reply from %s: %w", node.ID, err)
	}

	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	return clampSample(sample), nil
}

// Close closes the connection if this collector opened it
func (c *NATSCollector) Close() error {
	if c.ownsConn {
		c.conn.Close()
	}
	return nil
}

// clampSample bounds reported percentages to [0, 100]
func clampSample(s models.MetricSample) models.MetricSample {
	s.CPU = clampPct(s.CPU)
	s.Memory = clampPct(s.Memory)
	s.NetworkLoad = clampPct(s.NetworkLoad)
	return s
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
