package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default config locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/shardpulse")
	}

	setDefaults(v)

	// Enable environment variable overrides
	v.SetEnvPrefix("SHARDPULSE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 7070)

	// Controller defaults
	v.SetDefault("controller.strategy", "hybrid")
	v.SetDefault("controller.history_window", "1h")
	v.SetDefault("controller.prediction_horizon", "5m")
	v.SetDefault("controller.monitoring_interval", "30s")
	v.SetDefault("controller.collect_timeout", "5s")
	v.SetDefault("controller.cooldown_period", "5m")
	v.SetDefault("controller.high_watermark", 0.85)
	v.SetDefault("controller.low_watermark", 0.40)
	v.SetDefault("controller.total_shards", 64)
	v.SetDefault("controller.replication_factor", 2)
	v.SetDefault("controller.consecutive_failure_threshold", 3)
	v.SetDefault("controller.decision_log_size", 100)
	v.SetDefault("controller.min_samples", 3)
	v.SetDefault("controller.seasonal_period", 24)
	v.SetDefault("controller.memory_pressure_threshold", 70.0)
	v.SetDefault("controller.accuracy_window", 50)

	// Etcd defaults
	v.SetDefault("etcd.enabled", false)
	v.SetDefault("etcd.endpoints", []string{"http://localhost:2379"})
	v.SetDefault("etcd.dial_timeout", "5s")
	v.SetDefault("etcd.lease_ttl", 10)

	// Transport defaults
	v.SetDefault("transport.type", "nats")
	v.SetDefault("transport.url", "nats://localhost:4222")

	// Export defaults
	v.SetDefault("export.type", "memory")
	v.SetDefault("export.url", "nats://localhost:4222")
	v.SetDefault("export.redis_stream", "shardpulse")
	v.SetDefault("export.kafka_topic", "shardpulse-decisions")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads configuration from file or returns default config
func LoadOrDefault(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			HTTPPort: 7070,
		},
		Controller: ControllerConfig{
			Strategy:                    "hybrid",
			HistoryWindow:               time.Hour,
			PredictionHorizon:           5 * time.Minute,
			MonitoringInterval:          30 * time.Second,
			CollectTimeout:              5 * time.Second,
			CooldownPeriod:              5 * time.Minute,
			HighWatermark:               0.85,
			LowWatermark:                0.40,
			TotalShards:                 64,
			ReplicationFactor:           2,
			ConsecutiveFailureThreshold: 3,
			DecisionLogSize:             100,
			MinSamples:                  3,
			SeasonalPeriod:              24,
			MemoryPressureThreshold:     70.0,
			AccuracyWindow:              50,
		},
		Etcd: EtcdConfig{
			Enabled:     false,
			Endpoints:   []string{"http://localhost:2379"},
			DialTimeout: 5 * time.Second,
			LeaseTTL:    10,
		},
		Transport: TransportConfig{
			Type: "nats",
			URL:  "nats://localhost:4222",
		},
		Export: ExportConfig{
			Type:        "memory",
			URL:         "nats://localhost:4222",
			RedisStream: "shardpulse",
			KafkaTopic:  "shardpulse-decisions",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}
