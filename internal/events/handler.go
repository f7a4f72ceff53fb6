package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TemirB/shop/internal/config"
	"github.com/TemirB/shop/internal/domain"
	"github.com/TemirB/shop/internal/observability"
	"github.com/TemirB/shop/internal/pkg/retry"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

//go:generate mockgen -source internal/events/handler.go -destination=internal/events/handler_mock_test.go -package=events

var (
	ErrBadJSON     = errors.New("bad json")
	ErrInvalidate  = errors.New("invalidate failed")
	ErrCircuitOpen = errors.New("circuit breaker open")
)

type Invalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

type Breaker interface {
	Allow() error
	Success()
	Failure()
}

// Handler drops the export cache entry of the user named by an
// OrderChanged message.
type Handler struct {
	invalidator Invalidator
	breaker     Breaker
	logger      *zap.Logger
	metrics     observability.Metrics
	retryPolicy config.Retry
}

func NewHandler(invalidator Invalidator, brk Breaker, retryPolicy config.Retry, logger *zap.Logger, metrics observability.Metrics) *Handler {
	return &Handler{
		invalidator: invalidator,
		breaker:     brk,
		logger:      logger,
		metrics:     metrics,
		retryPolicy: retryPolicy,
	}
}

// Handle is called by the consumer for a single message. The consumer
// commits the offset once Handle returns nil or ErrBadJSON.
func (h *Handler) Handle(ctx context.Context, message kafkago.Message) error {
	start := time.Now()

	var ev domain.OrderChanged
	if err := json.Unmarshal(message.Value, &ev); err != nil {
		h.logger.Error("bad json format",
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		h.metrics.ObserveEvent(sinceMs(start), false)
		return ErrBadJSON
	}
	if ev.UserID <= 0 {
		h.logger.Error("missing user_id",
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		h.metrics.ObserveEvent(sinceMs(start), false)
		return ErrBadJSON
	}

	if err := h.breaker.Allow(); err != nil {
		h.logger.Warn("circuit breaker is open",
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		h.metrics.ObserveEvent(sinceMs(start), false)
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}

	if err := retry.Do(ctx, h.retryPolicy, func() error {
		return h.invalidator.Invalidate(ctx, ev.UserID)
	}); err != nil {
		h.logger.Error("invalidate failed after retries",
			zap.Int64("user_id", ev.UserID),
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		h.breaker.Failure()
		h.metrics.ObserveEvent(sinceMs(start), false)
		return fmt.Errorf("%w: %v", ErrInvalidate, err)
	}

	h.breaker.Success()
	h.metrics.ObserveEvent(sinceMs(start), true)
	h.logger.Debug("export cache invalidated",
		zap.Int64("user_id", ev.UserID),
		zap.Int64("order_id", ev.OrderID),
		zap.Int("partition", message.Partition),
		zap.Int64("offset", message.Offset),
	)
	return nil
}

func sinceMs(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
