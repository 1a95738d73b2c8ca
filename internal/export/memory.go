package export

import (
	"context"
	"sync"
)

// MemoryExporter retains snapshots in memory. Useful for tests and for
// running without an external sink.
type MemoryExporter struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

// NewMemoryExporter creates an empty in-memory exporter
func NewMemoryExporter() *MemoryExporter {
	return &MemoryExporter{}
}

// Export stores the snapshot. The payload round-trips through the shared
// codec so memory behaves like the networked backends.
func (e *MemoryExporter) Export(_ context.Context, snapshot Snapshot) error {
	payload, err := encode(snapshot)
	if err != nil {
		return err
	}

	decoded, err := decode(payload)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshots = append(e.snapshots, decoded)
	return nil
}

// Snapshots returns a copy of everything exported so far
func (e *MemoryExporter) Snapshots() []Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Snapshot, len(e.snapshots))
	copy(out, e.snapshots)
	return out
}

// Close is a no-op
func (e *MemoryExporter) Close() error {
	return nil
}
