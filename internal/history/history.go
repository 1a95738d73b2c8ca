package history

import (
	"sync"
	"time"

	"github.com/shardpulse/shardpulse/internal/models"
)

// History holds bounded per-node time series of metric samples.
// Each node owns an independent window; appends to different nodes never
// contend on the same lock.
type History struct {
	mu      sync.RWMutex
	windows map[string]*nodeWindow

	maxAge     time.Duration
	minSamples int
}

type nodeWindow struct {
	mu      sync.Mutex
	samples []models.MetricSample
}

// New creates a history store retaining maxAge worth of samples per node.
// minSamples is the count below which a node's window is reported as
// insufficient for forecasting.
func New(maxAge time.Duration, minSamples int) *History {
	if minSamples < 1 {
		minSamples = 1
	}
	return &History{
		windows:    make(map[string]*nodeWindow),
		maxAge:     maxAge,
		minSamples: minSamples,
	}
}

// Record appends a sample to the node's window and evicts samples older
// than maxAge relative to the newest sample
func (h *History) Record(nodeID string, sample models.MetricSample) {
	w := h.window(nodeID)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, sample)

	cutoff := sample.Timestamp.Add(-h.maxAge)
	i := 0
	for i < len(w.samples) && !w.samples[i].Timestamp.After(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}

// Window returns a copy of the node's sample window, oldest first.
// An unknown node yields an empty slice.
func (h *History) Window(nodeID string) []models.MetricSample {
	h.mu.RLock()
	w, exists := h.windows[nodeID]
	h.mu.RUnlock()

	if !exists {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]models.MetricSample, len(w.samples))
	copy(out, w.samples)
	return out
}

// Sufficient reports whether the node has enough samples for forecasting
func (h *History) Sufficient(nodeID string) bool {
	return h.Len(nodeID) >= h.minSamples
}

// Len returns the node's current sample count
func (h *History) Len(nodeID string) int {
	h.mu.RLock()
	w, exists := h.windows[nodeID]
	h.mu.RUnlock()

	if !exists {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// Drop removes a node's window entirely, used when the node leaves the mesh
func (h *History) Drop(nodeID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.windows, nodeID)
}

// MinSamples returns the configured forecasting minimum
func (h *History) MinSamples() int {
	return h.minSamples
}

// window returns the node's window, creating it if needed
func (h *History) window(nodeID string) *nodeWindow {
	h.mu.RLock()
	w, exists := h.windows[nodeID]
	h.mu.RUnlock()

	if exists {
		return w
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if w, exists = h.windows[nodeID]; exists {
		return w
	}
	w = &nodeWindow{}
	h.windows[nodeID] = w
	return w
}
