package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/TemirB/shop/internal/application/accounts"
	"github.com/TemirB/shop/internal/application/catalog"
	"github.com/TemirB/shop/internal/application/orders"
	"github.com/TemirB/shop/internal/domain"
	"github.com/TemirB/shop/internal/export"
	"github.com/TemirB/shop/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

//go:generate mockgen -source internal/httpapi/httpapi.go -destination=internal/httpapi/httpapi_mock_test.go -package=httpapi

type Catalog interface {
	ListActive(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error)
	List(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error)
	All(ctx context.Context) ([]domain.Product, error)
	Latest(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, id int64) (*domain.Product, error)
	Create(ctx context.Context, actor *domain.User, in catalog.ProductInput) (*domain.Product, error)
	Update(ctx context.Context, actor *domain.User, id int64, in catalog.ProductInput) (*domain.Product, error)
	Archive(ctx context.Context, actor *domain.User, id int64) error
	AddImages(ctx context.Context, actor *domain.User, id int64, files []domain.Upload) ([]domain.ProductImage, error)
	ImportCSV(ctx context.Context, actor *domain.User, r io.Reader, charset string) ([]domain.Product, error)
	ExportCSV(ctx context.Context, w io.Writer, f domain.ProductFilter) error
}

type Orders interface {
	List(ctx context.Context, actor *domain.User, f domain.OrderFilter) ([]domain.Order, error)
	Get(ctx context.Context, actor *domain.User, id int64) (*domain.Order, error)
	ListForUser(ctx context.Context, actor *domain.User, userID int64) ([]domain.Order, error)
	Create(ctx context.Context, actor *domain.User, in orders.OrderInput) (*domain.Order, error)
	Update(ctx context.Context, actor *domain.User, id int64, in orders.OrderInput) (*domain.Order, error)
	Delete(ctx context.Context, actor *domain.User, id int64) error
	ImportCSV(ctx context.Context, actor *domain.User, r io.Reader, charset string) (*orders.ImportReport, error)
}

type Accounts interface {
	Register(ctx context.Context, in accounts.RegisterInput) (*domain.User, error)
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	Get(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context, page domain.Page) ([]domain.User, error)
	UpdateProfile(ctx context.Context, actor *domain.User, userID int64, in accounts.ProfileInput) (*domain.User, error)
	SetAvatar(ctx context.Context, actor *domain.User, userID int64, file domain.Upload) (*domain.User, error)
}

type Exporter interface {
	Export(ctx context.Context, userID int64) (*export.Attachment, export.LookupStats, error)
}

type Server struct {
	catalog  Catalog
	orders   Orders
	accounts Accounts
	exporter Exporter
	router   chi.Router
	logger   *zap.Logger
	metrics  observability.Metrics
}

func New(catalog Catalog, orders Orders, accounts Accounts, exporter Exporter, logger *zap.Logger, metrics observability.Metrics) *Server {
	if metrics == nil {
		metrics = observability.NewNoop()
	}
	s := &Server{
		catalog:  catalog,
		orders:   orders,
		accounts: accounts,
		exporter: exporter,
		router:   chi.NewRouter(),
		logger:   logger,
		metrics:  metrics,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		RequestLogger(s.logger),
		middleware.Recoverer,
		ServerTimingApp(s.metrics),
		s.authenticate,
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/debug/metrics", s.debugMetrics)

	r.Route("/shop", func(r chi.Router) {
		r.Get("/products", s.shopProducts)
		r.Get("/products/latest", s.latestProducts)
		r.Get("/products/export", s.productsExport)
		r.Get("/products/{id}", s.getProduct)
		r.Get("/users/{userID}/orders", s.userOrders)
		r.Get("/users/{userID}/orders/export", s.exportOrders)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", s.listProducts)
			r.Post("/", s.createProduct)
			r.Get("/download_csv", s.downloadProductsCSV)
			r.Post("/upload_csv", s.uploadProductsCSV)
			r.Get("/{id}", s.getProduct)
			r.Put("/{id}", s.updateProduct)
			r.Delete("/{id}", s.archiveProduct)
			r.Post("/{id}/images", s.uploadProductImages)
		})
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", s.listOrders)
			r.Post("/", s.createOrder)
			r.Post("/upload_csv", s.uploadOrdersCSV)
			r.Get("/{id}", s.getOrder)
			r.Put("/{id}", s.updateOrder)
			r.Delete("/{id}", s.deleteOrder)
		})
		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.listUsers)
			r.Post("/register", s.register)
			r.Get("/me", s.me)
			r.Get("/{id}", s.getUser)
			r.Put("/{id}/profile", s.updateProfile)
			r.Post("/{id}/avatar", s.uploadAvatar)
		})
	})
}

// debugMetrics serves the in-memory recorder when one is configured.
func (s *Server) debugMetrics(w http.ResponseWriter, r *http.Request) {
	src, ok := s.metrics.(interface {
		Snapshot() observability.Snapshot
	})
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, src.Snapshot())
}

// ListenAndServe serves until ctx is done, then shuts down gracefully
// within timeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, timeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) Handler() http.Handler { return s.router }
