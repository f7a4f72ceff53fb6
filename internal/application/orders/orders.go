package orders

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/TemirB/shop/internal/domain"
	"github.com/TemirB/shop/internal/observability"
	"go.uber.org/zap"
)

//go:generate mockgen -source internal/application/orders/orders.go -destination=internal/application/orders/orders_mock_test.go -package=orders

const maxPromocode = 20

var timeNow = time.Now

type Storage interface {
	OrdersForUser(ctx context.Context, userID int64) ([]domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error)
	CreateOrder(ctx context.Context, o *domain.Order, productIDs []int64) error
	CreateOrderForUsername(ctx context.Context, username string, o *domain.Order, productIDs []int64) error
	UpdateOrder(ctx context.Context, o *domain.Order, productIDs []int64) (int64, error)
	DeleteOrder(ctx context.Context, id int64) (int64, error)
}

// Publisher announces that a user's orders changed.
type Publisher interface {
	Publish(ctx context.Context, ev domain.OrderChanged) error
}

type OrderInput struct {
	DeliveryAddress string  `json:"delivery_address"`
	Promocode       string  `json:"promocode"`
	UserID          int64   `json:"user"`
	Products        []int64 `json:"products"`
}

type Service struct {
	storage   Storage
	publisher Publisher
	logger    *zap.Logger
	metrics   observability.Metrics
}

func NewService(storage Storage, publisher Publisher, logger *zap.Logger, metrics observability.Metrics) *Service {
	return &Service{
		storage:   storage,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
	}
}

// List returns orders matching f. Customers only ever see their own orders.
func (s *Service) List(ctx context.Context, actor *domain.User, f domain.OrderFilter) ([]domain.Order, error) {
	if actor == nil {
		return nil, domain.ErrUnauthenticated
	}
	if !actor.IsStaff {
		f.UserID = actor.ID
	}
	f.Page = f.Page.Normalize()
	return s.storage.ListOrders(ctx, f)
}

func (s *Service) Get(ctx context.Context, actor *domain.User, id int64) (*domain.Order, error) {
	if actor == nil {
		return nil, domain.ErrUnauthenticated
	}
	o, err := s.storage.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanEdit(actor, o.UserID) {
		return nil, domain.ErrPermissionDenied
	}
	return o, nil
}

// ListForUser returns the user's orders by ascending id.
func (s *Service) ListForUser(ctx context.Context, actor *domain.User, userID int64) ([]domain.Order, error) {
	if actor == nil {
		return nil, domain.ErrUnauthenticated
	}
	return s.storage.OrdersForUser(ctx, userID)
}

func (s *Service) Create(ctx context.Context, actor *domain.User, in OrderInput) (*domain.Order, error) {
	if actor == nil {
		return nil, domain.ErrUnauthenticated
	}
	if in.UserID == 0 {
		in.UserID = actor.ID
	}
	if !domain.CanEdit(actor, in.UserID) {
		return nil, domain.ErrPermissionDenied
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	o := &domain.Order{
		DeliveryAddress: in.DeliveryAddress,
		Promocode:       in.Promocode,
		UserID:          in.UserID,
	}
	if err := s.storage.CreateOrder(ctx, o, dedupe(in.Products)); err != nil {
		return nil, err
	}
	s.logger.Info("Order created",
		zap.Int64("order_id", o.ID),
		zap.Int64("user_id", o.UserID),
	)
	s.notify(ctx, o.UserID, o.ID)
	return s.storage.GetOrder(ctx, o.ID)
}

// Update rewrites the order. A zero UserID keeps the owner and a nil
// product list keeps the current products.
func (s *Service) Update(ctx context.Context, actor *domain.User, id int64, in OrderInput) (*domain.Order, error) {
	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if in.UserID == 0 {
		in.UserID = current.UserID
	}
	if !domain.CanEdit(actor, in.UserID) {
		return nil, domain.ErrPermissionDenied
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	o := &domain.Order{
		ID:              id,
		DeliveryAddress: in.DeliveryAddress,
		Promocode:       in.Promocode,
		UserID:          in.UserID,
	}
	var productIDs []int64
	if in.Products != nil {
		productIDs = dedupe(in.Products)
	}
	prevUserID, err := s.storage.UpdateOrder(ctx, o, productIDs)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Order updated",
		zap.Int64("order_id", id),
		zap.Int64("user_id", o.UserID),
	)
	s.notify(ctx, o.UserID, id)
	if prevUserID != 0 && prevUserID != o.UserID {
		s.notify(ctx, prevUserID, id)
	}
	return s.storage.GetOrder(ctx, id)
}

func (s *Service) Delete(ctx context.Context, actor *domain.User, id int64) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	userID, err := s.storage.DeleteOrder(ctx, id)
	if err != nil {
		return err
	}
	s.logger.Info("Order deleted",
		zap.Int64("order_id", id),
		zap.Int64("user_id", userID),
	)
	s.notify(ctx, userID, id)
	return nil
}

// notify publishes OrderChanged. The mutation is already committed, so a
// failed publish is logged and not returned.
func (s *Service) notify(ctx context.Context, userID, orderID int64) {
	ev := domain.OrderChanged{UserID: userID, OrderID: orderID, At: timeNow()}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Error("Can't publish order change",
			zap.Int64("user_id", userID),
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
	}
}

func (in OrderInput) validate() error {
	v := &domain.ValidationError{}
	if utf8.RuneCountInString(in.Promocode) > maxPromocode {
		v.Add("promocode", "ensure this field has no more than 20 characters")
	}
	for _, id := range in.Products {
		if id <= 0 {
			v.Add("products", "invalid product id")
			break
		}
	}
	return v.OrNil()
}

// dedupe drops repeated ids and keeps the first occurrence order.
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
