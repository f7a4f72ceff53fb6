package events

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/TemirB/shop/internal/config"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

//go:generate mockgen -source internal/events/consumer.go -destination=internal/events/consumer_mock_test.go -package=events

type MessageHandler interface {
	Handle(ctx context.Context, msg kafkago.Message) error
}

type Reader interface {
	Config() kafkago.ReaderConfig
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// NewReader builds a group reader for the order events topic. With a
// per-instance group every process sees every event, which is what an
// in-process cache needs; a shared cache only needs one group.
func NewReader(cfg config.Kafka, perInstance bool) *kafkago.Reader {
	rc := kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  GroupID(cfg.Group, perInstance),
		MinBytes: 1,
		MaxBytes: 1 << 20,
		MaxWait:  time.Second,
	}
	if perInstance {
		rc.StartOffset = kafkago.LastOffset
	}
	return kafkago.NewReader(rc)
}

func GroupID(base string, perInstance bool) string {
	if !perInstance {
		return base
	}
	return base + "-" + uuid.NewString()
}

type Consumer struct {
	handler MessageHandler
	reader  Reader
	logger  *zap.Logger

	workers    int
	jobs       chan jobItem
	wg         sync.WaitGroup
	retryDelay time.Duration
}

type jobItem struct {
	msg    kafkago.Message
	result chan error
}

func NewConsumer(handler MessageHandler, reader Reader, workers int, logger *zap.Logger) *Consumer {
	if workers < 1 {
		workers = 1
	}
	return &Consumer{
		handler: handler,
		reader:  reader,
		logger:  logger,
		workers:    workers,
		jobs:       make(chan jobItem, workers*2),
		retryDelay: 200 * time.Millisecond,
	}
}

// Start blocks until ctx is done. Each fetched message is handed to a
// worker and its result awaited before the next fetch, so offsets are
// committed in the order they were received. A message whose handler
// fails is redelivered to a worker until it succeeds.
func (c *Consumer) Start(ctx context.Context) {
	rc := c.reader.Config()
	c.logger.Info("Starting Kafka consumer",
		zap.Strings("brokers", rc.Brokers),
		zap.String("group", rc.GroupID),
		zap.String("topic", rc.Topic),
		zap.Int("workers", c.workers),
	)

	c.wg.Add(c.workers)
	for i := 0; i < c.workers; i++ {
		go c.worker(ctx, i)
	}
	defer c.wg.Wait()

	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			if isBenignFetchTimeout(err) {
				c.logger.Debug("fetch timeout (idle), backing off", zap.Error(err))
				sleepWithContext(ctx, 10*time.Second)
				continue
			}
			c.logger.Warn("FetchMessage error, backing off", zap.Error(err))
			sleepWithContext(ctx, 500*time.Millisecond)
			continue
		}

		if !c.process(ctx, msg) {
			return
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn("commit failed",
				zap.Error(err),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			sleepWithContext(ctx, 200*time.Millisecond)
			continue
		}
		c.logger.Debug("message committed",
			zap.String("topic", msg.Topic), zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))
	}
}

// process hands msg to a worker until it is handled or found malformed.
// A failed message is retried in place, so nothing behind it is committed
// first. It returns false once ctx is done.
func (c *Consumer) process(ctx context.Context, msg kafkago.Message) bool {
	for attempt := 1; ; attempt++ {
		done := make(chan error, 1)
		select {
		case c.jobs <- jobItem{msg: msg, result: done}:
		case <-ctx.Done():
			return false
		}

		var procErr error
		select {
		case procErr = <-done:
		case <-ctx.Done():
			return false
		}

		switch {
		case procErr == nil:
			return true
		case errors.Is(procErr, ErrBadJSON):
			c.logger.Warn("dropping malformed message",
				zap.String("topic", msg.Topic), zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))
			return true
		}

		c.logger.Error("handler failed, retrying message", zap.Error(procErr),
			zap.Int("attempt", attempt),
			zap.String("topic", msg.Topic), zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))
		sleepWithContext(ctx, c.retryDelay)
		if ctx.Err() != nil {
			return false
		}
	}
}

func (c *Consumer) worker(ctx context.Context, id int) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker", id))

	for {
		select {
		case <-ctx.Done():
			return
		case it := <-c.jobs:
			start := time.Now()
			err := c.handler.Handle(ctx, it.msg)
			log.Debug("message handled",
				zap.Int("partition", it.msg.Partition),
				zap.Int64("offset", it.msg.Offset),
				zap.Int("value_bytes", len(it.msg.Value)),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			it.result <- err
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func isBenignFetchTimeout(err error) bool {
	s := err.Error()
	return strings.Contains(s, "Request Timed Out") ||
		strings.Contains(s, "no messages received from kafka within the allocated time")
}
