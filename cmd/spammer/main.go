package main

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/TemirB/shop/internal/config"
	"github.com/TemirB/shop/internal/domain"
	"github.com/TemirB/shop/internal/events"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Spammer floods the order events topic so the cache invalidation
// consumer can be exercised under load.
type Spammer struct {
	publisher publisher
	users     int64
	logger    *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning atomic.Bool
	totalSent atomic.Int64
	failed    atomic.Int64
	startedAt time.Time
}

type publisher interface {
	Publish(ctx context.Context, ev domain.OrderChanged) error
}

type SpamRequest struct {
	Rate     int    `json:"rate"`
	Duration string `json:"duration"`
}

type SpamStats struct {
	Running   bool    `json:"running"`
	TotalSent int64   `json:"total_sent"`
	Failed    int64   `json:"failed"`
	Rate      float64 `json:"rate"`
}

func NewSpammer(p publisher, users int64, logger *zap.Logger) *Spammer {
	if users < 1 {
		users = 1
	}
	return &Spammer{
		publisher: p,
		users:     users,
		logger:    logger,
	}
}

// StartSpam publishes rate events per second for duration. A second call
// while running is ignored.
func (s *Spammer) StartSpam(rate int, duration time.Duration) bool {
	if rate <= 0 || !s.isRunning.CompareAndSwap(false, true) {
		return false
	}
	s.totalSent.Store(0)
	s.failed.Store(0)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	s.mu.Lock()
	s.cancel = cancel
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("Starting spam", zap.Int("rate", rate), zap.Duration("duration", duration))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.isRunning.Store(false)
		defer cancel()

		ticker := time.NewTicker(time.Second / time.Duration(rate))
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ev := domain.OrderChanged{
					UserID:  rand.Int63n(s.users) + 1,
					OrderID: rand.Int63n(1_000_000) + 1,
					At:      time.Now(),
				}
				if err := s.publisher.Publish(ctx, ev); err != nil {
					if ctx.Err() != nil {
						continue
					}
					s.failed.Add(1)
					s.logger.Warn("publish failed", zap.Error(err))
					continue
				}
				s.totalSent.Add(1)
			case <-ctx.Done():
				s.logger.Info("Spam finished", zap.Int64("total_sent", s.totalSent.Load()))
				return
			}
		}
	}()
	return true
}

func (s *Spammer) StopSpam() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Spammer) Stats() SpamStats {
	s.mu.Lock()
	started := s.startedAt
	s.mu.Unlock()

	st := SpamStats{
		Running:   s.isRunning.Load(),
		TotalSent: s.totalSent.Load(),
		Failed:    s.failed.Load(),
	}
	if secs := time.Since(started).Seconds(); !started.IsZero() && secs > 0 {
		st.Rate = float64(st.TotalSent) / secs
	}
	return st
}

func (s *Spammer) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/start", func(w http.ResponseWriter, r *http.Request) {
		var req SpamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		if req.Rate <= 0 {
			req.Rate = 10
		}
		duration, err := time.ParseDuration(req.Duration)
		if err != nil || duration <= 0 {
			http.Error(w, "Invalid duration", http.StatusBadRequest)
			return
		}
		if !s.StartSpam(req.Rate, duration) {
			http.Error(w, "already running", http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusAccepted, req)
	})
	r.Post("/stop", func(w http.ResponseWriter, _ *http.Request) {
		s.StopSpam()
		writeJSON(w, http.StatusOK, s.Stats())
	})
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.Stats())
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	cfg := config.Load()
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.Kafka.Enabled() {
		logger.Fatal("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := events.EnsureTopic(ctx, cfg.Kafka, logger); err != nil {
		logger.Fatal("ensure topic", zap.Error(err))
	}
	p := events.NewKafkaPublisher(events.NewWriter(cfg.Kafka), nil, logger)
	defer p.Close()

	users, _ := strconv.ParseInt(os.Getenv("SPAMMER_USERS"), 10, 64)
	spammer := NewSpammer(p, users, logger)
	defer spammer.StopSpam()

	addr := ":8082"
	if port := os.Getenv("SPAMMER_PORT"); port != "" {
		addr = ":" + port
	}
	srv := &http.Server{Addr: addr, Handler: spammer.routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Info("Spammer server started", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("spammer server", zap.Error(err))
	}
}
