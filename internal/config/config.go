package config

import (
	"fmt"
	"time"
)

// Config represents the complete controller configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Controller ControllerConfig `mapstructure:"controller"`
	Etcd       EtcdConfig       `mapstructure:"etcd"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Export     ExportConfig     `mapstructure:"export"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig represents the status API server configuration
type ServerConfig struct {
	Host     string `mapstructure:"host"`      // Bind address (e.g., 0.0.0.0)
	HTTPPort int    `mapstructure:"http_port"` // HTTP status API port
}

// ControllerConfig holds the control-loop tuning parameters.
// All values are fixed at construction; the loop never reloads them.
type ControllerConfig struct {
	Strategy                    string        `mapstructure:"strategy"`                      // reactive, trend, hybrid
	HistoryWindow               time.Duration `mapstructure:"history_window"`                // how much per-node history to retain
	PredictionHorizon           time.Duration `mapstructure:"prediction_horizon"`            // how far ahead to forecast
	MonitoringInterval          time.Duration `mapstructure:"monitoring_interval"`           // tick interval
	CollectTimeout              time.Duration `mapstructure:"collect_timeout"`               // per-node metric collection timeout
	CooldownPeriod              time.Duration `mapstructure:"cooldown_period"`               // hysteresis window after a scaling decision
	HighWatermark               float64       `mapstructure:"high_watermark"`                // fraction of capacity triggering scale-up
	LowWatermark                float64       `mapstructure:"low_watermark"`                 // fraction of capacity triggering scale-down
	TotalShards                 int           `mapstructure:"total_shards"`                  // number of shards in the keyspace
	ReplicationFactor           int           `mapstructure:"replication_factor"`            // nodes per shard
	ConsecutiveFailureThreshold int           `mapstructure:"consecutive_failure_threshold"` // missed ticks before a node is removed
	DecisionLogSize             int           `mapstructure:"decision_log_size"`             // bounded audit log capacity
	MinSamples                  int           `mapstructure:"min_samples"`                   // samples required before forecasting
	SeasonalPeriod              int           `mapstructure:"seasonal_period"`               // buckets per seasonal cycle
	MemoryPressureThreshold     float64       `mapstructure:"memory_pressure_threshold"`     // memory% above which capacity is penalized
	AccuracyWindow              int           `mapstructure:"accuracy_window"`               // forecast/actual pairs in the rolling accuracy score
}

// EtcdConfig represents etcd registry configuration
type EtcdConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	LeaseTTL    int64         `mapstructure:"lease_ttl"` // seconds
}

// TransportConfig represents metric collection transport configuration
type TransportConfig struct {
	Type string `mapstructure:"type"` // nats (default), memory
	URL  string `mapstructure:"url"`  // e.g., nats://localhost:4222
}

// ExportConfig represents decision/metrics export configuration
type ExportConfig struct {
	Type     string `mapstructure:"type"` // nats (default), redis, kafka, memory
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// Redis-specific options
	RedisDB     int    `mapstructure:"redis_db"`
	RedisStream string `mapstructure:"redis_stream"`

	// Kafka-specific options
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Controller.Validate(); err != nil {
		return fmt.Errorf("controller config: %w", err)
	}

	if c.Etcd.Enabled {
		if err := c.Etcd.Validate(); err != nil {
			return fmt.Errorf("etcd config: %w", err)
		}
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (c *ServerConfig) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}
	return nil
}

// Validate validates controller configuration
func (c *ControllerConfig) Validate() error {
	switch c.Strategy {
	case "reactive", "trend", "hybrid":
	default:
		return fmt.Errorf("strategy must be one of: reactive, trend, hybrid")
	}

	if c.HistoryWindow <= 0 {
		return fmt.Errorf("history_window must be positive")
	}

	if c.MonitoringInterval <= 0 {
		return fmt.Errorf("monitoring_interval must be positive")
	}

	if c.CollectTimeout <= 0 {
		return fmt.Errorf("collect_timeout must be positive")
	}

	if c.CooldownPeriod <= 0 {
		return fmt.Errorf("cooldown_period must be positive")
	}

	if c.HighWatermark <= 0 || c.HighWatermark > 1 {
		return fmt.Errorf("high_watermark must be in (0, 1]")
	}

	if c.LowWatermark < 0 || c.LowWatermark >= c.HighWatermark {
		return fmt.Errorf("low_watermark must be in [0, high_watermark)")
	}

	if c.TotalShards < 1 {
		return fmt.Errorf("total_shards must be at least 1")
	}

	if c.ReplicationFactor < 1 {
		return fmt.Errorf("replication_factor must be at least 1")
	}

	if c.ConsecutiveFailureThreshold < 1 {
		return fmt.Errorf("consecutive_failure_threshold must be at least 1")
	}

	if c.MemoryPressureThreshold <= 0 || c.MemoryPressureThreshold >= 100 {
		return fmt.Errorf("memory_pressure_threshold must be in (0, 100)")
	}

	return nil
}

// Validate validates etcd configuration
func (c *EtcdConfig) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("etcd.endpoints is required")
	}

	if c.DialTimeout <= 0 {
		return fmt.Errorf("etcd.dial_timeout must be positive")
	}

	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	return nil
}
