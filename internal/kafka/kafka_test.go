package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"livesec/internal/schema"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.Brokers) == 0 {
		t.Error("expected default brokers")
	}
	if cfg.Topic != "livesec-anomalies" {
		t.Errorf("Topic = %q, want livesec-anomalies", cfg.Topic)
	}
	if cfg.Partitions < 1 {
		t.Error("expected partitions >= 1")
	}
	if cfg.ReplicationFactor < 1 {
		t.Error("expected replication factor >= 1")
	}
	if cfg.BatchSize < 1 {
		t.Error("expected batch size >= 1")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"empty brokers", func(c *Config) { c.Brokers = nil }, true},
		{"empty topic", func(c *Config) { c.Topic = "" }, true},
		{"invalid partitions", func(c *Config) { c.Partitions = 0 }, true},
		{"invalid replication factor", func(c *Config) { c.ReplicationFactor = 0 }, true},
		{"invalid security protocol", func(c *Config) { c.SecurityProtocol = "INVALID" }, true},
		{
			"sasl without credentials",
			func(c *Config) {
				c.SecurityProtocol = "SASL_PLAINTEXT"
				c.SASLMechanism = "PLAIN"
			},
			true,
		},
		{
			"sasl plain with credentials",
			func(c *Config) {
				c.SecurityProtocol = "SASL_PLAINTEXT"
				c.SASLMechanism = "PLAIN"
				c.SASLUsername = "user"
				c.SASLPassword = "pass"
			},
			false,
		},
		{
			"sasl invalid mechanism",
			func(c *Config) {
				c.SecurityProtocol = "SASL_SSL"
				c.SASLMechanism = "DIGEST-MD5"
				c.SASLUsername = "user"
				c.SASLPassword = "pass"
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigCompression(t *testing.T) {
	tests := []struct {
		in   string
		want kafkago.Compression
	}{
		{"gzip", kafkago.Gzip},
		{"snappy", kafkago.Snappy},
		{"lz4", kafkago.Lz4},
		{"zstd", kafkago.Zstd},
		{"none", 0},
		{"", 0},
	}

	for _, tt := range tests {
		cfg := &Config{CompressionType: tt.in}
		if got := cfg.compression(); got != tt.want {
			t.Errorf("compression(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConfigDialerSASL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SecurityProtocol = "SASL_PLAINTEXT"
	cfg.SASLMechanism = "SCRAM-SHA-256"
	cfg.SASLUsername = "user"
	cfg.SASLPassword = "pass"

	dialer, err := cfg.dialer()
	if err != nil {
		t.Fatalf("dialer() error = %v", err)
	}
	if dialer.SASLMechanism == nil {
		t.Error("expected SASL mechanism on the dialer")
	}
	if dialer.TLS != nil {
		t.Error("expected no TLS for SASL_PLAINTEXT")
	}
}

func TestAnomalyRecordMessageShape(t *testing.T) {
	rec := &schema.AnomalyRecord{
		RecordID:  uuid.New(),
		Timestamp: time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC),
		Category:  schema.CategoryLogin,
		Type:      schema.AnomalySuspiciousGeoLocation,
		Severity:  schema.SeverityHigh,
		Message:   "login from a high-risk country",
		Metrics:   map[string]any{"country": "Russia"},
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal error = %v", err)
	}

	if decoded["anomaly_type"] != string(schema.AnomalySuspiciousGeoLocation) {
		t.Errorf("anomaly_type = %v, want %s", decoded["anomaly_type"], schema.AnomalySuspiciousGeoLocation)
	}
	if decoded["severity"] != string(schema.SeverityHigh) {
		t.Errorf("severity = %v, want %s", decoded["severity"], schema.SeverityHigh)
	}
}

func TestIsNonRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{kafkago.MessageSizeTooLarge, true},
		{kafkago.InvalidTopic, true},
		{kafkago.TopicAuthorizationFailed, true},
		{kafkago.LeaderNotAvailable, false},
		{kafkago.RequestTimedOut, false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := isNonRetryableError(tt.err); got != tt.want {
			t.Errorf("isNonRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestKafkaTopicConfig(t *testing.T) {
	cfg := DefaultConfig()
	tc := kafkaTopicConfig(cfg)

	if tc.Topic != cfg.Topic {
		t.Errorf("Topic = %q, want %q", tc.Topic, cfg.Topic)
	}
	if tc.NumPartitions != cfg.Partitions {
		t.Errorf("NumPartitions = %d, want %d", tc.NumPartitions, cfg.Partitions)
	}
	if len(tc.ConfigEntries) == 0 || tc.ConfigEntries[0].ConfigName != "retention.ms" {
		t.Error("expected a retention.ms config entry")
	}
}
