package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/snappy"

	"github.com/shardpulse/shardpulse/internal/models"
)

// Snapshot is one export unit: the recent decision log plus the system
// metrics aggregated for the tick that produced it
type Snapshot struct {
	Decisions  []models.ScalingDecision `json:"decisions"`
	Metrics    models.SystemMetrics     `json:"metrics"`
	ExportedAt time.Time                `json:"exported_at"`
}

// Exporter persists snapshots to an external sink. Export is called
// opportunistically after a tick; failures are logged by the caller and
// never block the loop.
type Exporter interface {
	Export(ctx context.Context, snapshot Snapshot) error
	Close() error
}

// encode serializes a snapshot as snappy-compressed JSON
func encode(snapshot Snapshot) ([]byte, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return snappy.Encode(nil, data), nil
}

// decode reverses encode; exposed for consumers and tests
func decode(payload []byte) (Snapshot, error) {
	data, err := snappy.Decode(nil, payload)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to decompress snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snapshot, nil
}

// Decode parses a snappy-compressed snapshot payload
func Decode(payload []byte) (Snapshot, error) {
	return decode(payload)
}
