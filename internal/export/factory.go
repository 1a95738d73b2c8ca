package export

import (
	"fmt"
	"strings"

	"github.com/shardpulse/shardpulse/internal/config"
)

// New creates an Exporter based on configuration.
// Default is NATS if type is not specified.
func New(cfg config.ExportConfig) (Exporter, error) {
	exportType := strings.ToLower(cfg.Type)
	if exportType == "" {
		exportType = "nats"
	}

	switch exportType {
	case "nats":
		return newNATSExporter(cfg.URL)

	case "redis":
		return newRedisExporter(redisConfig{
			URL:      cfg.URL,
			Password: cfg.Password,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
		})

	case "kafka":
		return newKafkaExporter(kafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})

	case "memory":
		return NewMemoryExporter(), nil

	default:
		return nil, fmt.Errorf("unsupported export type: %s (supported: nats, redis, kafka, memory)", exportType)
	}
}
