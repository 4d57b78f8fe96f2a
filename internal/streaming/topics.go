package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/fraudguard-io/fraudguard/internal/retry"
)

// TopicConfig names one topic and its partition count.
type TopicConfig struct {
	Name       string
	Partitions int
}

// DefaultTopicConfigs returns the three fraud-detection topics. Transactions
// and processed results are partitioned for parallel consumers; alerts are a
// single ordered stream.
func DefaultTopicConfigs(transactions, alerts, processed string) []TopicConfig {
	return []TopicConfig{
		{Name: transactions, Partitions: 3},
		{Name: alerts, Partitions: 1},
		{Name: processed, Partitions: 3},
	}
}

// EnsureTopics creates the given topics with replication factor 1, tolerating
// topics that already exist. Broker startup races are absorbed by retrying
// the controller dial with backoff.
func EnsureTopics(ctx context.Context, brokers []string, topics []TopicConfig, logger *slog.Logger) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	return retry.Do(ctx, 5, time.Second, func() error {
		conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
		if err != nil {
			return fmt.Errorf("failed to dial kafka broker: %w", err)
		}
		defer conn.Close()

		// Topic creation must go through the controller broker.
		controller, err := conn.Controller()
		if err != nil {
			return fmt.Errorf("failed to resolve kafka controller: %w", err)
		}
		ctrl, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
		if err != nil {
			return fmt.Errorf("failed to dial kafka controller: %w", err)
		}
		defer ctrl.Close()

		configs := make([]kafka.TopicConfig, 0, len(topics))
		for _, t := range topics {
			configs = append(configs, kafka.TopicConfig{
				Topic:             t.Name,
				NumPartitions:     t.Partitions,
				ReplicationFactor: 1,
			})
		}

		if err := ctrl.CreateTopics(configs...); err != nil {
			if errors.Is(err, kafka.TopicAlreadyExists) {
				logger.Debug("kafka topics already exist")
				return nil
			}
			// Bad partition or replication settings never become valid
			// on a later attempt.
			if errors.Is(err, kafka.InvalidPartitionNumber) || errors.Is(err, kafka.InvalidReplicationFactor) {
				return retry.Permanent(fmt.Errorf("failed to create kafka topics: %w", err))
			}
			return fmt.Errorf("failed to create kafka topics: %w", err)
		}

		for _, t := range topics {
			logger.Info("kafka topic ready", "topic", t.Name, "partitions", t.Partitions)
		}
		return nil
	})
}
