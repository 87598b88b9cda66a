package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/segmentio/kafka-go"
)

// kafkaTopicConfig maps our Config onto the kafka-go topic config.
func kafkaTopicConfig(c *Config) kafka.TopicConfig {
	return kafka.TopicConfig{
		Topic:             c.Topic,
		NumPartitions:     c.Partitions,
		ReplicationFactor: c.ReplicationFactor,
		ConfigEntries: []kafka.ConfigEntry{
			{ConfigName: "retention.ms", ConfigValue: fmt.Sprintf("%d", c.RetentionMs)},
		},
	}
}

// Admin provisions the anomaly topic at startup.
type Admin struct {
	config *Config
	logger *slog.Logger
}

// NewAdmin creates a Kafka admin client.
func NewAdmin(config *Config, logger *slog.Logger) (*Admin, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Admin{config: config, logger: logger}, nil
}

// EnsureTopic creates the configured topic if it does not exist.
func (a *Admin) EnsureTopic(ctx context.Context) error {
	topics, err := a.listTopics(ctx)
	if err != nil {
		return err
	}

	for _, t := range topics {
		if t == a.config.Topic {
			a.logger.Debug("topic already exists", "topic", a.config.Topic)
			return nil
		}
	}

	return a.createTopic(ctx)
}

func (a *Admin) createTopic(ctx context.Context) error {
	dialer, err := a.config.dialer()
	if err != nil {
		return fmt.Errorf("kafka: failed to create dialer: %w", err)
	}

	conn, err := dialer.DialContext(ctx, "tcp", a.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka: failed to connect to broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka: failed to get controller: %w", err)
	}

	controllerConn, err := dialer.DialContext(ctx, "tcp",
		net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka: failed to connect to controller: %w", err)
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaTopicConfig(a.config))
	if err != nil {
		return fmt.Errorf("kafka: failed to create topic %s: %w", a.config.Topic, err)
	}

	a.logger.Info("kafka topic created",
		"topic", a.config.Topic,
		"partitions", a.config.Partitions,
		"replication_factor", a.config.ReplicationFactor,
	)

	return nil
}

func (a *Admin) listTopics(ctx context.Context) ([]string, error) {
	dialer, err := a.config.dialer()
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to create dialer: %w", err)
	}

	conn, err := dialer.DialContext(ctx, "tcp", a.config.Brokers[0])
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to connect to broker: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to read partitions: %w", err)
	}

	seen := make(map[string]bool)
	var topics []string
	for _, p := range partitions {
		if !seen[p.Topic] {
			seen[p.Topic] = true
			topics = append(topics, p.Topic)
		}
	}

	return topics, nil
}
