// Package config handles configuration loading for LiveSec.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Queue      QueueConfig      `yaml:"queue"`
	Validation ValidationConfig `yaml:"validation"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Detection  DetectionConfig  `yaml:"detection"`
	Explainer  ExplainerConfig  `yaml:"explainer"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// IngestConfig holds ingestion settings.
type IngestConfig struct {
	MaxBatchSize    int `yaml:"max_batch_size"`
	MaxPayloadSize  int `yaml:"max_payload_size"`
	RecentAnomalies int `yaml:"recent_anomalies"` // size of the in-memory ring served on /v1/anomalies
}

// QueueConfig holds queue settings.
type QueueConfig struct {
	Size int `yaml:"size"`
}

// ValidationConfig holds validation settings.
type ValidationConfig struct {
	MaxEntryAge time.Duration `yaml:"max_entry_age"`
	MaxFuture   time.Duration `yaml:"max_future"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	APIKeyHeader string   `yaml:"api_key_header"`
	APIKeys      []string `yaml:"api_keys"`
	Enabled      bool     `yaml:"enabled"`
}

// RateLimitConfig holds per-IP request rate limiting settings for the
// intake API.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RequestsPerIP int           `yaml:"requests_per_ip"`
	BurstSize     int           `yaml:"burst_size"`
	WindowSize    time.Duration `yaml:"window_size"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
	TrustProxy    bool          `yaml:"trust_proxy"`
	ExemptPaths   []string      `yaml:"exempt_paths"`
}

// DetectionConfig holds every threshold and list the detection engine
// consumes. The engine treats this as immutable for the run.
type DetectionConfig struct {
	HighRiskCountries []string `yaml:"high_risk_countries"`

	// Business hours window, local hours [start, end). Entries outside the
	// window are off-hours.
	BusinessHoursStart int `yaml:"business_hours_start"`
	BusinessHoursEnd   int `yaml:"business_hours_end"`

	SpikeStddevK float64 `yaml:"spike_stddev_k"`
	MinSamples   int     `yaml:"min_samples"` // observations required before statistical checks apply

	BruteForceWindow    time.Duration `yaml:"brute_force_window"`
	BruteForceThreshold int           `yaml:"brute_force_threshold"`

	// Impossible travel: flag when the implied speed between two logins for
	// the same user exceeds this, and the distance is at least the minimum.
	TravelMaxSpeedKmh   float64 `yaml:"travel_max_speed_kmh"`
	TravelMinDistanceKm float64 `yaml:"travel_min_distance_km"`

	SuspiciousPorts          []int `yaml:"suspicious_ports"`
	ConnectionFloodThreshold int   `yaml:"connection_flood_threshold"`

	LargeTransferBytes    int64    `yaml:"large_transfer_bytes"`
	OffhoursTransferBytes int64    `yaml:"offhours_transfer_bytes"` // secondary, lower threshold for off-hours movement
	SensitivePathPatterns []string `yaml:"sensitive_path_patterns"`
	InternalDestinations  []string `yaml:"internal_destinations"`

	// Escalation thresholds: crossing one raises the anomaly's severity by a tier.
	Escalation EscalationConfig `yaml:"escalation"`
}

// EscalationConfig holds the secondary thresholds that escalate severity.
type EscalationConfig struct {
	BruteForceCount  int     `yaml:"brute_force_count"`
	TransferBytes    int64   `yaml:"transfer_bytes"`
	ExfilBytes       int64   `yaml:"exfil_bytes"`
	SpikeStddevK     float64 `yaml:"spike_stddev_k"`
	TravelDistanceKm float64 `yaml:"travel_distance_km"`
}

// ExplainerConfig holds explainer collaborator settings.
type ExplainerConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`

	Cache ExplainerCacheConfig `yaml:"cache"`
}

// ExplainerCacheConfig holds the Redis explanation cache settings.
type ExplainerCacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	Enabled     bool              `yaml:"enabled"`
	ClickHouse  ClickHouseConfig  `yaml:"clickhouse"`
	BatchWriter BatchWriterConfig `yaml:"batch_writer"`
	Retention   RetentionConfig   `yaml:"retention"`
}

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Hosts           []string      `yaml:"hosts"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// BatchWriterConfig holds batch writer settings.
type BatchWriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// RetentionConfig holds the table TTLs applied after migrations run.
type RetentionConfig struct {
	AnomaliesTTL time.Duration `yaml:"anomalies_ttl"`
	RollupTTL    time.Duration `yaml:"rollup_ttl"`
}

// KafkaConfig holds the anomaly publisher settings.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ArchiveConfig holds S3 archive settings.
type ArchiveConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Region          string        `yaml:"region"`
	Bucket          string        `yaml:"bucket"`
	Prefix          string        `yaml:"prefix"`
	Endpoint        string        `yaml:"endpoint"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	UsePathStyle    bool          `yaml:"use_path_style"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	MaxBatch        int           `yaml:"max_batch"`
}

// ConsumerConfig holds consumer settings.
type ConsumerConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ShutdownWait time.Duration `yaml:"shutdown_wait"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Ingest: IngestConfig{
			MaxBatchSize:    1000,
			MaxPayloadSize:  10 * 1024 * 1024, // 10MB
			RecentAnomalies: 500,
		},
		Queue: QueueConfig{
			Size: 100000,
		},
		Validation: ValidationConfig{
			MaxEntryAge: 7 * 24 * time.Hour,
			MaxFuture:   5 * time.Minute,
		},
		Auth: AuthConfig{
			APIKeyHeader: "X-API-Key",
			Enabled:      false, // Disabled by default for development
		},
		RateLimit: RateLimitConfig{
			Enabled:       false,
			RequestsPerIP: 1000,
			BurstSize:     100,
			WindowSize:    time.Minute,
			CleanupPeriod: 5 * time.Minute,
			ExemptPaths:   []string{"/health", "/metrics"},
		},
		Detection: DetectionConfig{
			HighRiskCountries:        []string{"Russia", "China", "North Korea", "Iran"},
			BusinessHoursStart:       6,
			BusinessHoursEnd:         22,
			SpikeStddevK:             3.0,
			MinSamples:               10,
			BruteForceWindow:         10 * time.Minute,
			BruteForceThreshold:      5,
			TravelMaxSpeedKmh:        900, // airliner cruise speed
			TravelMinDistanceKm:      1000,
			SuspiciousPorts:          []int{1337, 4444, 6666, 31337, 1234, 12345},
			ConnectionFloodThreshold: 100,
			LargeTransferBytes:       100 * 1000 * 1000, // 100MB
			OffhoursTransferBytes:    10 * 1000 * 1000,  // 10MB
			SensitivePathPatterns:    []string{"password", "key", "secret", "confidential", "customer", "financial", "security"},
			InternalDestinations:     []string{"fileserver01", "fileserver02", "backup01", "nas01"},
			Escalation: EscalationConfig{
				BruteForceCount:  10,
				TransferBytes:    1000 * 1000 * 1000, // 1GB
				ExfilBytes:       10 * 1000 * 1000,   // 10MB
				SpikeStddevK:     6.0,
				TravelDistanceKm: 5000,
			},
		},
		Explainer: ExplainerConfig{
			Enabled: false,
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 30 * time.Second,
			Cache: ExplainerCacheConfig{
				Enabled: false,
				Addr:    "localhost:6379",
				TTL:     24 * time.Hour,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			Enabled: false, // Disabled by default for development without ClickHouse
			ClickHouse: ClickHouseConfig{
				Hosts:           []string{"localhost:9000"},
				Database:        "livesec",
				Username:        "default",
				Password:        "",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
				TLSEnabled:      false,
				DialTimeout:     10 * time.Second,
			},
			BatchWriter: BatchWriterConfig{
				BatchSize:     1000,
				FlushInterval: 5 * time.Second,
				MaxRetries:    3,
				RetryDelay:    time.Second,
			},
			Retention: RetentionConfig{
				AnomaliesTTL: 90 * 24 * time.Hour,
				RollupTTL:    365 * 24 * time.Hour,
			},
		},
		Kafka: KafkaConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   "livesec.anomalies",
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Region:        "us-east-1",
			Bucket:        "livesec-archive",
			Prefix:        "anomalies/",
			FlushInterval: 5 * time.Minute,
			MaxBatch:      5000,
		},
		Consumer: ConsumerConfig{
			Workers:      4,
			PollInterval: 10 * time.Millisecond,
			ShutdownWait: 30 * time.Second,
		},
	}
}

// Load loads configuration from a file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("LIVESEC_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("LIVESEC_HTTP_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Server.HTTPPort)
	}

	if level := os.Getenv("LIVESEC_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if apiKey := os.Getenv("LIVESEC_API_KEY"); apiKey != "" {
		c.Auth.APIKeys = append(c.Auth.APIKeys, apiKey)
		c.Auth.Enabled = true
	}

	if enabled := os.Getenv("LIVESEC_STORAGE_ENABLED"); enabled == "true" {
		c.Storage.Enabled = true
	}

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.Storage.ClickHouse.Hosts = []string{host}
	}

	if db := os.Getenv("CLICKHOUSE_DATABASE"); db != "" {
		c.Storage.ClickHouse.Database = db
	}

	if user := os.Getenv("CLICKHOUSE_USER"); user != "" {
		c.Storage.ClickHouse.Username = user
	}

	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.Storage.ClickHouse.Password = pass
	}

	if brokers := os.Getenv("LIVESEC_KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitAndTrim(brokers, ",")
		c.Kafka.Enabled = true
	}

	if key := os.Getenv("LIVESEC_EXPLAINER_API_KEY"); key != "" {
		c.Explainer.APIKey = key
		c.Explainer.Enabled = true
	}

	if addr := os.Getenv("LIVESEC_REDIS_ADDR"); addr != "" {
		c.Explainer.Cache.Addr = addr
		c.Explainer.Cache.Enabled = true
	}
}

// splitAndTrim splits a string by separator and trims whitespace from each part.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	if c.Queue.Size <= 0 {
		return fmt.Errorf("queue size must be positive")
	}

	if c.Ingest.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive")
	}

	return c.Detection.Validate()
}

// Validate validates the detection thresholds.
func (d *DetectionConfig) Validate() error {
	if d.BusinessHoursStart < 0 || d.BusinessHoursStart > 23 {
		return fmt.Errorf("invalid business_hours_start: %d", d.BusinessHoursStart)
	}

	if d.BusinessHoursEnd < 0 || d.BusinessHoursEnd > 24 {
		return fmt.Errorf("invalid business_hours_end: %d", d.BusinessHoursEnd)
	}

	if d.SpikeStddevK <= 0 {
		return fmt.Errorf("spike_stddev_k must be positive")
	}

	if d.MinSamples < 2 {
		return fmt.Errorf("min_samples must be at least 2")
	}

	if d.BruteForceWindow <= 0 {
		return fmt.Errorf("brute_force_window must be positive")
	}

	if d.BruteForceThreshold <= 0 {
		return fmt.Errorf("brute_force_threshold must be positive")
	}

	if d.LargeTransferBytes <= 0 {
		return fmt.Errorf("large_transfer_bytes must be positive")
	}

	return nil
}
