package transport

import (
	"context"
	"errors"

	"github.com/shardpulse/shardpulse/internal/models"
)

// ErrCollectTimeout marks a per-node collection that did not answer within
// its time box. Timeouts are recoverable: the node is skipped for the tick.
var ErrCollectTimeout = errors.New("metric collection timed out")

// MetricsCollector fetches one metric sample from a node. Implementations
// must honor ctx cancellation; the control loop time-boxes every call.
type MetricsCollector interface {
	Collect(ctx context.Context, node models.Node) (models.MetricSample, error)
	Close() error
}
