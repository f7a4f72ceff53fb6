package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/TemirB/shop/internal/config"
	"github.com/TemirB/shop/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

//go:generate mockgen -source internal/events/publisher.go -destination=internal/events/publisher_mock_test.go -package=events

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewWriter hashes on the message key so that all events of one user land
// on the same partition.
func NewWriter(cfg config.Kafka) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireOne,
	}
}

// KafkaPublisher invalidates the local export first, then announces the
// change to the other instances through Kafka.
type KafkaPublisher struct {
	writer Writer
	local  Invalidator
	logger *zap.Logger
}

func NewKafkaPublisher(writer Writer, local Invalidator, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		local:  local,
		logger: logger,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev domain.OrderChanged) error {
	if p.local != nil {
		if err := p.local.Invalidate(ctx, ev.UserID); err != nil {
			p.logger.Warn("local invalidate failed", zap.Int64("user_id", ev.UserID), zap.Error(err))
		}
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(strconv.FormatInt(ev.UserID, 10)),
		Value: value,
		Time:  ev.At,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	p.logger.Debug("order event published",
		zap.Int64("user_id", ev.UserID),
		zap.Int64("order_id", ev.OrderID),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Local applies order events in-process; used when no brokers are set.
type Local struct {
	invalidator Invalidator
	logger      *zap.Logger
}

func NewLocal(invalidator Invalidator, logger *zap.Logger) *Local {
	return &Local{
		invalidator: invalidator,
		logger:      logger,
	}
}

func (l *Local) Publish(ctx context.Context, ev domain.OrderChanged) error {
	if err := l.invalidator.Invalidate(ctx, ev.UserID); err != nil {
		return err
	}
	l.logger.Debug("export invalidated in-process", zap.Int64("user_id", ev.UserID))
	return nil
}
