package export

import (
	"context"
	"testing"
	"time"

	"github.com/shardpulse/shardpulse/internal/config"
	"github.com/shardpulse/shardpulse/internal/models"
)

func testSnapshot() Snapshot {
	return Snapshot{
		Decisions: []models.ScalingDecision{
			{
				ID:        "d1",
				NodeID:    "node1",
				Action:    models.ActionScaleUp,
				Reason:    "forecast load exceeds high watermark",
				Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			},
		},
		Metrics: models.SystemMetrics{
			AvgCPU:             62.5,
			ActiveNodes:        3,
			TotalNodes:         4,
			PredictionAccuracy: 0.91,
		},
		ExportedAt: time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC),
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	original := testSnapshot()

	payload, err := encode(original)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(decoded.Decisions) != 1 || decoded.Decisions[0].ID != "d1" {
		t.Errorf("Decisions did not survive the round trip: %+v", decoded.Decisions)
	}
	if decoded.Decisions[0].Action != models.ActionScaleUp {
		t.Errorf("Expected scale_up action, got %s", decoded.Decisions[0].Action)
	}
	if decoded.Metrics.ActiveNodes != 3 || decoded.Metrics.PredictionAccuracy != 0.91 {
		t.Errorf("Metrics did not survive the round trip: %+v", decoded.Metrics)
	}
	if !decoded.ExportedAt.Equal(original.ExportedAt) {
		t.Errorf("ExportedAt drifted: %v vs %v", decoded.ExportedAt, original.ExportedAt)
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("definitely not snappy")); err == nil {
		t.Error("Expected error decoding garbage payload")
	}
}

func TestMemoryExporter(t *testing.T) {
	e := NewMemoryExporter()
	defer func() { _ = e.Close() }()

	if err := e.Export(context.Background(), testSnapshot()); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if err := e.Export(context.Background(), Snapshot{}); err != nil {
		t.Fatalf("Export of empty snapshot failed: %v", err)
	}

	snapshots := e.Snapshots()
	if len(snapshots) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(snapshots))
	}
	if snapshots[0].Metrics.ActiveNodes != 3 {
		t.Errorf("First snapshot corrupted: %+v", snapshots[0].Metrics)
	}
}

func TestFactory(t *testing.T) {
	exporter, err := New(config.ExportConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := exporter.(*MemoryExporter); !ok {
		t.Errorf("Expected *MemoryExporter, got %T", exporter)
	}
	_ = exporter.Close()

	upper, err := New(config.ExportConfig{Type: "MEMORY"})
	if err != nil {
		t.Fatalf("Type matching should be case-insensitive: %v", err)
	}
	_ = upper.Close()
}

func TestFactory_UnknownType(t *testing.T) {
	if _, err := New(config.ExportConfig{Type: "carrier-pigeon"}); err == nil {
		t.Error("Expected error for unknown export type")
	}
}
