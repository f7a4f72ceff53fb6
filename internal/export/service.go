package export

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/TemirB/shop/internal/cache"
	"github.com/TemirB/shop/internal/domain"
	"github.com/TemirB/shop/internal/observability"
	"github.com/TemirB/shop/internal/pkg/pool"
	"go.uber.org/zap"
)

//go:generate mockgen -source internal/export/service.go -destination=internal/export/service_mock_test.go -package=export

const warmWorkers = 4

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Storage interface {
	OrdersForUser(ctx context.Context, userID int64) ([]domain.Order, error)
	RecentCustomerIDs(ctx context.Context, limit int) ([]int64, error)
}

type Stager interface {
	Stage(ctx context.Context, userID int64, payload []byte) (*Attachment, error)
}

type Service struct {
	cache   Cache
	storage Storage
	stager  Stager
	ttl     time.Duration
	logger  *zap.Logger
	metrics observability.Metrics
}

func NewService(cache Cache, storage Storage, stager Stager, ttl time.Duration, logger *zap.Logger, metrics observability.Metrics) *Service {
	return &Service{
		cache:   cache,
		storage: storage,
		stager:  stager,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// Export returns the user's orders as a staged JSON attachment. The caller
// owns the attachment body and must close it.
func (s *Service) Export(ctx context.Context, userID int64) (*Attachment, LookupStats, error) {
	payload, st, err := s.Payload(ctx, userID)
	if err != nil {
		return nil, st, err
	}

	att, err := s.stager.Stage(ctx, userID, payload)
	if err != nil {
		s.logger.Error("Can't stage orders export",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return nil, st, fmt.Errorf("stage export: %w", err)
	}
	return att, st, nil
}

// Payload returns the serialized export, from cache when possible.
func (s *Service) Payload(ctx context.Context, userID int64) ([]byte, LookupStats, error) {
	var st LookupStats
	key := cache.ExportKey(userID)

	tCacheStart := time.Now()
	payload, ok, err := s.cache.Get(ctx, key)
	st.CacheMs = convertToMs(tCacheStart)
	if err != nil {
		s.logger.Warn("Export cache read failed, treating as miss",
			zap.String("key", key),
			zap.Error(err),
		)
		ok = false
	}
	if ok {
		st.Source = SourceCache
		s.metrics.IncCacheHit()
		s.metrics.ObserveExport(string(st.Source), st.CacheMs, 0)

		s.logger.Info("Orders export served from cache",
			zap.Int64("user_id", userID),
			zap.Float64("cache_ms", st.CacheMs),
		)
		return payload, st, nil
	}

	s.metrics.IncCacheMiss()
	tDBStart := time.Now()
	payload, err = s.build(ctx, userID)
	if err != nil {
		s.logger.Error("Can't build orders export",
			zap.Int64("user_id", userID),
			zap.Error(err),
			zap.Float64("cache_ms", st.CacheMs),
		)
		return nil, st, err
	}
	st.Source = SourceDB
	st.DBMs = convertToMs(tDBStart)

	s.metrics.ObserveExport(string(st.Source), st.CacheMs, st.DBMs)
	s.logger.Info("Orders export built from DB",
		zap.Int64("user_id", userID),
		zap.Int("bytes", len(payload)),
		zap.Float64("cache_ms", st.CacheMs),
		zap.Float64("db_ms", st.DBMs),
	)
	return payload, st, nil
}

// build queries, serializes and stores the export. A failed cache write
// is logged; the payload is still returned.
func (s *Service) build(ctx context.Context, userID int64) ([]byte, error) {
	orders, err := s.storage.OrdersForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	payload, err := Serialize(orders)
	if err != nil {
		return nil, err
	}
	key := cache.ExportKey(userID)
	if err := s.cache.Set(ctx, key, payload, s.ttl); err != nil {
		s.logger.Warn("Export cache write failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return payload, nil
}

// Invalidate drops the cached export so the next request rebuilds it.
func (s *Service) Invalidate(ctx context.Context, userID int64) error {
	if err := s.cache.Delete(ctx, cache.ExportKey(userID)); err != nil {
		return fmt.Errorf("invalidate export for user %d: %w", userID, err)
	}
	s.logger.Debug("Orders export invalidated", zap.Int64("user_id", userID))
	return nil
}

// Warm pre-renders exports for the most recent customers. Failures for a
// single user are logged and skipped.
func (s *Service) Warm(ctx context.Context, limit int) int {
	if limit <= 0 {
		return 0
	}
	ids, err := s.storage.RecentCustomerIDs(ctx, limit)
	if err != nil {
		s.logger.Warn("Export cache warm-up skipped", zap.Error(err))
		return 0
	}

	var warmed atomic.Int64
	p := pool.New(warmWorkers)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		p.Submit(func() {
			if _, err := s.build(ctx, id); err != nil {
				s.logger.Warn("Export cache warm-up failed for user",
					zap.Int64("user_id", id),
					zap.Error(err),
				)
				return
			}
			warmed.Add(1)
		})
	}
	p.Wait()

	n := int(warmed.Load())
	s.logger.Info("Export cache warmed", zap.Int("users", n))
	return n
}
