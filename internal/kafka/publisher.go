package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"livesec/internal/schema"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = fmt.Errorf("kafka: publisher is closed")

// Publisher sends anomaly records to the configured topic. Records are
// keyed by anomaly type so each type lands on a stable partition.
type Publisher struct {
	writer  *kafka.Writer
	config  *Config
	logger  *slog.Logger
	metrics *publisherMetrics
	closed  atomic.Bool
}

type publisherMetrics struct {
	published   atomic.Int64
	bytes       atomic.Int64
	errors      atomic.Int64
	retries     atomic.Int64
	lastError   atomic.Value // error
	lastErrorAt atomic.Value // time.Time
}

// NewPublisher creates a publisher for the configured topic.
func NewPublisher(config *Config, logger *slog.Logger) (*Publisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dialer, err := config.dialer()
	if err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		MaxAttempts:  config.MaxRetries,
		WriteTimeout: config.WriteTimeout,
		ReadTimeout:  config.ReadTimeout,
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		Compression:  config.compression(),
		Transport: &kafka.Transport{
			Dial: dialer.DialFunc,
			TLS:  dialer.TLS,
			SASL: dialer.SASLMechanism,
		},
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
	}

	p := &Publisher{
		writer:  writer,
		config:  config,
		logger:  logger,
		metrics: &publisherMetrics{},
	}

	logger.Info("kafka publisher initialized",
		"brokers", config.Brokers,
		"topic", config.Topic,
		"compression", config.CompressionType,
	)

	return p, nil
}

// Publish sends one anomaly record as JSON.
func (p *Publisher) Publish(ctx context.Context, rec *schema.AnomalyRecord) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("kafka: failed to marshal anomaly record: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(rec.Type),
		Value: data,
		Time:  rec.Timestamp,
	}

	return p.write(ctx, msg)
}

// PublishBatch sends multiple records in one write.
func (p *Publisher) PublishBatch(ctx context.Context, records []*schema.AnomalyRecord) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	if len(records) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("kafka: failed to marshal anomaly record: %w", err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(rec.Type),
			Value: data,
			Time:  rec.Timestamp,
		})
	}

	return p.write(ctx, messages...)
}

// write sends messages with exponential-backoff retries.
func (p *Publisher) write(ctx context.Context, messages ...kafka.Message) error {
	var lastErr error
	backoff := p.config.RetryBackoff

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			p.metrics.retries.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := p.writer.WriteMessages(ctx, messages...)
		if err == nil {
			for _, msg := range messages {
				p.metrics.published.Add(1)
				p.metrics.bytes.Add(int64(len(msg.Value) + len(msg.Key)))
			}
			return nil
		}

		lastErr = err
		p.metrics.errors.Add(1)
		p.metrics.lastError.Store(err)
		p.metrics.lastErrorAt.Store(time.Now())

		p.logger.Warn("kafka publish failed",
			"error", err,
			"attempt", attempt+1,
			"max_attempts", p.config.MaxRetries+1,
		)

		if isNonRetryableError(err) {
			return fmt.Errorf("kafka: non-retryable error: %w", err)
		}
	}

	return fmt.Errorf("kafka: failed after %d attempts: %w", p.config.MaxRetries+1, lastErr)
}

// Metrics returns current publisher counters.
func (p *Publisher) Metrics() Metrics {
	m := Metrics{
		MessagesPublished: p.metrics.published.Load(),
		BytesPublished:    p.metrics.bytes.Load(),
		Errors:            p.metrics.errors.Load(),
		Retries:           p.metrics.retries.Load(),
	}

	if err := p.metrics.lastError.Load(); err != nil {
		m.LastError = err.(error)
	}
	if t := p.metrics.lastErrorAt.Load(); t != nil {
		m.LastErrorTime = t.(time.Time)
	}

	return m
}

// HealthCheck verifies a broker is reachable.
func (p *Publisher) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{LastCheck: time.Now()}

	if p.closed.Load() {
		status.Error = "publisher is closed"
		return status
	}

	start := time.Now()

	dialer, err := p.config.dialer()
	if err != nil {
		status.Error = fmt.Sprintf("failed to create dialer: %v", err)
		return status
	}

	conn, err := dialer.DialContext(ctx, "tcp", p.config.Brokers[0])
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer conn.Close()

	brokers, err := conn.Brokers()
	if err != nil {
		status.Error = fmt.Sprintf("failed to get brokers: %v", err)
		return status
	}

	status.Latency = time.Since(start)
	status.Connected = true
	status.Healthy = true
	status.BrokerCount = len(brokers)

	return status
}

// Close flushes buffered messages and shuts the writer down.
func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.logger.Info("closing kafka publisher",
		"messages_published", p.metrics.published.Load(),
		"bytes_published", p.metrics.bytes.Load(),
	)

	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("kafka: failed to close publisher: %w", err)
	}

	return nil
}

// isNonRetryableError reports whether a retry cannot succeed.
func isNonRetryableError(err error) bool {
	switch err {
	case kafka.MessageSizeTooLarge,
		kafka.InvalidTopic,
		kafka.TopicAuthorizationFailed,
		kafka.GroupAuthorizationFailed,
		kafka.ClusterAuthorizationFailed:
		return true
	}
	return false
}
