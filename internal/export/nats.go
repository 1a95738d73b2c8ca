package export

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// exportSubject carries compressed decision/metrics snapshots
const exportSubject = "shardpulse.export.snapshots"

// NATSExporter publishes snapshots to a NATS subject
type NATSExporter struct {
	conn     *nats.Conn
	ownsConn bool
}

// newNATSExporter connects to NATS and creates an exporter
func newNATSExporter(url string) (*NATSExporter, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSExporter{conn: conn, ownsConn: true}, nil
}

// NewNATSExporterWithConn creates an exporter over an existing connection
// (used in tests)
func NewNATSExporterWithConn(conn *nats.Conn) *NATSExporter {
	return &NATSExporter{conn: conn}
}

// Export publishes one compressed snapshot
func (e *NATSExporter) Export(_ context.Context, snapshot Snapshot) error {
	payload, err := encode(snapshot)
	if err != nil {
		return err
	}

	if err := e.conn.Publish(exportSubject, payload); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Close closes the connection if this exporter opened it
func (e *NATSExporter) Close() error {
	if e.ownsConn {
		e.conn.Close()
	}
	return nil
}
