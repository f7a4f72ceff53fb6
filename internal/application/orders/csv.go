package orders

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/TemirB/shop/internal/domain"
	"github.com/TemirB/shop/internal/pkg/csvio"
	"go.uber.org/zap"
)

// RowError reports one CSV row that was rolled back.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }
func (e RowError) Unwrap() error { return e.Err }

type ImportReport struct {
	Created []domain.Order
	Failed  []RowError
}

// ImportCSV creates one order per row, each in its own transaction. A bad
// row is rolled back and reported; earlier and later rows are unaffected.
// Rows name the user by username and list product ids comma separated.
func (s *Service) ImportCSV(ctx context.Context, actor *domain.User, r io.Reader, charset string) (*ImportReport, error) {
	if actor == nil {
		return nil, domain.ErrUnauthenticated
	}
	if !actor.IsStaff {
		return nil, domain.ErrPermissionDenied
	}
	t0 := time.Now()

	records, err := csvio.ReadAll(r, charset, "delivery_address", "promocode", "user", "products")
	if err != nil {
		return nil, domain.NewValidationError("file", err.Error())
	}

	report := &ImportReport{Created: []domain.Order{}, Failed: []RowError{}}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		o, err := s.importRow(ctx, rec)
		if err != nil {
			s.logger.Warn("Order CSV row rejected",
				zap.Int("row", rec.Line),
				zap.Error(err),
			)
			report.Failed = append(report.Failed, RowError{Row: rec.Line, Err: err})
			continue
		}
		report.Created = append(report.Created, *o)
		s.notify(ctx, o.UserID, o.ID)
	}

	s.metrics.ObserveImport("orders", len(report.Created), len(report.Failed), float64(time.Since(t0).Microseconds())/1000.0)
	s.logger.Info("Orders imported",
		zap.Int("created", len(report.Created)),
		zap.Int("failed", len(report.Failed)),
		zap.String("by", actor.Username),
	)
	return report, nil
}

func (s *Service) importRow(ctx context.Context, rec csvio.Record) (*domain.Order, error) {
	productIDs, err := parseIDs(rec.Get("products"))
	if err != nil {
		return nil, err
	}
	in := OrderInput{Promocode: rec.Get("promocode"), Products: productIDs}
	if err := in.validate(); err != nil {
		return nil, err
	}
	username := rec.Get("user")
	if username == "" {
		return nil, domain.NewValidationError("user", "this field is required")
	}

	o := &domain.Order{
		DeliveryAddress: rec.Fields["delivery_address"],
		Promocode:       in.Promocode,
	}
	ids := dedupe(productIDs)
	if err := s.storage.CreateOrderForUsername(ctx, username, o, ids); err != nil {
		return nil, err
	}
	o.Products = make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		o.Products = append(o.Products, domain.Product{ID: id})
	}
	return o, nil
}

func parseIDs(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, domain.NewValidationError("products", fmt.Sprintf("%q is not a valid product id", strings.TrimSpace(p)))
		}
		ids = append(ids, id)
	}
	return ids, nil
}
