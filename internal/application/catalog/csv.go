package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/TemirB/shop/internal/domain"
	"github.com/TemirB/shop/internal/pkg/csvio"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var csvHeader = []string{"name", "description", "price", "discount"}

// ImportCSV creates every product in r or none of them. Rows are validated
// before anything is written; the first bad row is reported by number.
func (s *Service) ImportCSV(ctx context.Context, actor *domain.User, r io.Reader, charset string) ([]domain.Product, error) {
	if err := canEditProducts(actor); err != nil {
		return nil, err
	}
	t0 := time.Now()

	records, err := csvio.ReadAll(r, charset, "name", "price")
	if err != nil {
		return nil, domain.NewValidationError("file", err.Error())
	}

	products := make([]domain.Product, 0, len(records))
	for _, rec := range records {
		p, err := productFromRecord(rec)
		if err != nil {
			s.metrics.ObserveImport("products", 0, 1, sinceMs(t0))
			return nil, err
		}
		products = append(products, *p)
	}

	if err := s.storage.BulkCreateProducts(ctx, products); err != nil {
		s.logger.Error("Products import failed",
			zap.Int("rows", len(products)),
			zap.Error(err),
		)
		s.metrics.ObserveImport("products", 0, len(products), sinceMs(t0))
		return nil, err
	}

	s.metrics.ObserveImport("products", len(products), 0, sinceMs(t0))
	s.logger.Info("Products imported",
		zap.Int("rows", len(products)),
		zap.String("by", actor.Username),
	)
	return products, nil
}

func productFromRecord(rec csvio.Record) (*domain.Product, error) {
	rowErr := func(field, msg string) error {
		return domain.NewValidationError(fmt.Sprintf("row %d: %s", rec.Line, field), msg)
	}

	p := &domain.Product{
		Name:        rec.Get("name"),
		Description: rec.Fields["description"],
	}
	price, err := decimal.NewFromString(rec.Get("price"))
	if err != nil {
		return nil, rowErr("price", "a valid number is required")
	}
	p.Price = price
	if v := rec.Get("discount"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			return nil, rowErr("discount", "a valid integer is required")
		}
		p.Discount = d
	}
	if v := rec.Get("archived"); v != "" {
		a, err := strconv.ParseBool(v)
		if err != nil {
			return nil, rowErr("archived", "must be a boolean")
		}
		p.Archived = a
	}

	if err := p.Validate(); err != nil {
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		prefixed := &domain.ValidationError{}
		for field, msg := range verr.Fields {
			prefixed.Add(fmt.Sprintf("row %d: %s", rec.Line, field), msg)
		}
		return nil, prefixed
	}
	return p, nil
}

// ExportCSV writes products matching f with the name, description, price
// and discount columns. Prices are written with the two decimal places
// they are stored with, so the output can be imported again unchanged.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, f domain.ProductFilter) error {
	f.Page = domain.Page{}
	products, err := s.storage.ListProducts(ctx, f)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range products {
		if err := cw.Write([]string{
			p.Name,
			p.Description,
			p.Price.StringFixed(2),
			strconv.Itoa(p.Discount),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
