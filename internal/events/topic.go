package events

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/TemirB/shop/internal/config"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EnsureTopic creates the order events topic when it is missing and waits
// until its partitions show up in the metadata. Safe to call concurrently.
func EnsureTopic(ctx context.Context, cfg config.Kafka, logger *zap.Logger) error {
	if len(cfg.Brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return errors.New("empty topic")
	}

	dialer := &kafkago.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	if parts, err := conn.ReadPartitions(cfg.Topic); err == nil && len(parts) > 0 {
		logger.Info("kafka topic exists", zap.String("topic", cfg.Topic), zap.Int("partitions", len(parts)))
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("get controller: %w", err)
	}
	ctrlAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	ctrlConn, err := dialer.DialContext(ctx, "tcp", ctrlAddr)
	if err != nil {
		return fmt.Errorf("dial controller %s: %w", ctrlAddr, err)
	}
	defer ctrlConn.Close()

	logger.Info("creating kafka topic",
		zap.String("topic", cfg.Topic),
		zap.Int("partitions", cfg.Partitions),
		zap.Int("replication", cfg.Replication),
	)
	err = ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             cfg.Topic,
		NumPartitions:     cfg.Partitions,
		ReplicationFactor: cfg.Replication,
	})
	if err != nil && !errors.Is(err, kafkago.TopicAlreadyExists) {
		return fmt.Errorf("create topic: %w", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		parts, err := conn.ReadPartitions(cfg.Topic)
		if err == nil && len(parts) >= cfg.Partitions {
			logger.Info("kafka topic is ready", zap.String("topic", cfg.Topic), zap.Int("partitions", len(parts)))
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("topic %s not visible after creation", cfg.Topic)
		}
		sleepWithContext(ctx, 500*time.Millisecond)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
