package catalog

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/TemirB/shop/internal/domain"
	"github.com/TemirB/shop/internal/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//go:generate mockgen -source internal/application/catalog/catalog.go -destination=internal/application/catalog/catalog_mock_test.go -package=catalog

// LatestCount is the size of the latest products feed.
const LatestCount = 3

type Storage interface {
	ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error)
	LatestProducts(ctx context.Context, n int) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, p *domain.Product) error
	UpdateProduct(ctx context.Context, p *domain.Product) error
	ArchiveProduct(ctx context.Context, id int64) error
	BulkCreateProducts(ctx context.Context, products []domain.Product) error
	AddProductImages(ctx context.Context, productID int64, paths []string) ([]domain.ProductImage, error)
}

type Media interface {
	Save(ctx context.Context, dir, filename string, r io.Reader) (string, error)
	Remove(rel string) error
}

type ProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Discount    int             `json:"discount"`
	Archived    bool            `json:"archived"`
}

type Service struct {
	storage Storage
	media   Media
	logger  *zap.Logger
	metrics observability.Metrics
}

func NewService(storage Storage, media Media, logger *zap.Logger, metrics observability.Metrics) *Service {
	return &Service{
		storage: storage,
		media:   media,
		logger:  logger,
		metrics: metrics,
	}
}

// ListActive lists products that are not archived.
func (s *Service) ListActive(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	active := false
	f.Archived = &active
	f.Page = f.Page.Normalize()
	return s.storage.ListProducts(ctx, f)
}

func (s *Service) List(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	f.Page = f.Page.Normalize()
	return s.storage.ListProducts(ctx, f)
}

// Get returns a product by id, archived or not.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Product, error) {
	return s.storage.GetProduct(ctx, id)
}

// All returns every product ordered by id, archived ones included.
func (s *Service) All(ctx context.Context) ([]domain.Product, error) {
	return s.storage.ListProducts(ctx, domain.ProductFilter{})
}

func (s *Service) Latest(ctx context.Context) ([]domain.Product, error) {
	return s.storage.LatestProducts(ctx, LatestCount)
}

func (s *Service) Create(ctx context.Context, actor *domain.User, in ProductInput) (*domain.Product, error) {
	if err := canEditProducts(actor); err != nil {
		return nil, err
	}
	p := in.product()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.storage.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("Product created",
		zap.Int64("product_id", p.ID),
		zap.String("by", actor.Username),
	)
	return p, nil
}

func (s *Service) Update(ctx context.Context, actor *domain.User, id int64, in ProductInput) (*domain.Product, error) {
	if err := canEditProducts(actor); err != nil {
		return nil, err
	}
	current, err := s.storage.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	p := in.product()
	p.ID = id
	p.Preview = current.Preview
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.storage.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	p.Images = current.Images
	s.logger.Info("Product updated",
		zap.Int64("product_id", id),
		zap.String("by", actor.Username),
	)
	return p, nil
}

// Archive hides the product from active listings; it stays retrievable
// by id and referenced by existing orders.
func (s *Service) Archive(ctx context.Context, actor *domain.User, id int64) error {
	if err := canEditProducts(actor); err != nil {
		return err
	}
	if err := s.storage.ArchiveProduct(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Product archived",
		zap.Int64("product_id", id),
		zap.String("by", actor.Username),
	)
	return nil
}

func (s *Service) AddImages(ctx context.Context, actor *domain.User, id int64, files []domain.Upload) ([]domain.ProductImage, error) {
	if err := canEditProducts(actor); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, domain.NewValidationError("images", "no files were submitted")
	}
	if _, err := s.storage.GetProduct(ctx, id); err != nil {
		return nil, err
	}

	dir := fmt.Sprintf("products/product_%d/images", id)
	paths := make([]string, 0, len(files))
	for _, f := range files {
		p, err := s.media.Save(ctx, dir, f.Filename, f.Body)
		if err != nil {
			s.removeMedia(paths)
			return nil, fmt.Errorf("save image %q: %w", f.Filename, err)
		}
		paths = append(paths, p)
	}
	images, err := s.storage.AddProductImages(ctx, id, paths)
	if err != nil {
		s.removeMedia(paths)
		return nil, err
	}
	return images, nil
}

// removeMedia drops files whose rows were never written.
func (s *Service) removeMedia(paths []string) {
	for _, p := range paths {
		if err := s.media.Remove(p); err != nil {
			s.logger.Warn("Can't remove media file", zap.String("path", p), zap.Error(err))
		}
	}
}

func (in ProductInput) product() *domain.Product {
	return &domain.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Discount:    in.Discount,
		Archived:    in.Archived,
	}
}

// canEditProducts: products have no owner, so only staff pass CanEdit.
func canEditProducts(actor *domain.User) error {
	if actor == nil {
		return domain.ErrUnauthenticated
	}
	if !domain.CanEdit(actor, 0) {
		return domain.ErrPermissionDenied
	}
	return nil
}

func sinceMs(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
