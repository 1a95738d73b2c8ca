package export

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// kafkaConfig represents Kafka export configuration
type kafkaConfig struct {
	Brokers      []string
	Topic        string // default: "shardpulse-decisions"
	BatchTimeout time.Duration
}

// KafkaExporter publishes snapshots to a Kafka topic
type KafkaExporter struct {
	writer *kafka.Writer
}

// newKafkaExporter creates a Kafka exporter
func newKafkaExporter(cfg kafkaConfig) (*KafkaExporter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	if cfg.Topic == "" {
		cfg.Topic = "shardpulse-decisions"
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaExporter{writer: writer}, nil
}

// Export publishes one compressed snapshot
func (e *KafkaExporter) Export(ctx context.Context, snapshot Snapshot) error {
	payload, err := encode(snapshot)
	if err != nil {
		return err
	}

	err = e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(snapshot.ExportedAt.UTC().Format(time.RFC3339Nano)),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to write snapshot to kafka: %w", err)
	}
	return nil
}

// Close closes the Kafka writer
func (e *KafkaExporter) Close() error {
	return e.writer.Close()
}
