package transport

import (
	"context"
	"sync"

	"github.com/shardpulse/shardpulse/internal/models"
)

// MemoryCollector implements MetricsCollector from scripted samples.
// Used in tests and local development: queue samples per node with Push,
// or mark a node silent to simulate collection timeouts.
type MemoryCollector struct {
	mu      sync.Mutex
	queues  map[string][]models.MetricSample
	silent  map[string]bool
	repeats map[string]models.MetricSample // last sample replayed when the queue drains
}

// NewMemoryCollector creates an empty scripted collector
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{
		queues:  make(map[string][]models.MetricSample),
		silent:  make(map[string]bool),
		repeats: make(map[string]models.MetricSample),
	}
}

// Push queues samples to be returned in order for a node
func (c *MemoryCollector) Push(nodeID string, samples ...models.MetricSample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues[nodeID] = append(c.queues[nodeID], samples...)
}

// SetSilent marks a node as unresponsive; Collect returns ErrCollectTimeout
func (c *MemoryCollector) SetSilent(nodeID string, silent bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.silent[nodeID] = silent
}

// Collect pops the next queued sample for the node. When the queue is empty
// the last popped sample is replayed; a node with no script at all times out.
func (c *MemoryCollector) Collect(_ context.Context, node models.Node) (models.MetricSample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.silent[node.ID] {
		return models.MetricSample{}, ErrCollectTimeout
	}

	queue := c.queues[node.ID]
	if len(queue) > 0 {
		sample := queue[0]
		c.queues[node.ID] = queue[1:]
		c.repeats[node.ID] = sample
		return sample, nil
	}

	if sample, ok := c.repeats[node.ID]; ok {
		return sample, nil
	}

	return models.MetricSample{}, ErrCollectTimeout
}

// Close is a no-op
func (c *MemoryCollector) Close() error {
	return nil
}
