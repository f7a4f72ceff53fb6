package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	maxProductName = 100
	maxDiscount    = 100
	priceScale     = 2
)

// maxPrice matches NUMERIC(8, 2).
var maxPrice = decimal.New(1, 6)

type Product struct {
	ID          int64           `json:"pk"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Discount    int             `json:"discount"`
	Archived    bool            `json:"archived"`
	Preview     string          `json:"preview,omitempty"`
	Images      []ProductImage  `json:"images,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ProductImage struct {
	ID        int64  `json:"pk"`
	ProductID int64  `json:"product"`
	Image     string `json:"image"`
}

// ValidatePrice rejects negative prices; zero is a valid price.
func ValidatePrice(p decimal.Decimal) error {
	if p.IsNegative() {
		return NewValidationError("price", "the value must not be less than zero")
	}
	return nil
}

func (p *Product) Validate() error {
	v := &ValidationError{}
	name := strings.TrimSpace(p.Name)
	switch {
	case name == "":
		v.Add("name", "this field is required")
	case utf8.RuneCountInString(name) > maxProductName:
		v.Add("name", "ensure this field has no more than 100 characters")
	}
	switch {
	case p.Price.IsNegative():
		v.Add("price", "the value must not be less than zero")
	case p.Price.GreaterThanOrEqual(maxPrice):
		v.Add("price", "ensure that there are no more than 8 digits in total")
	case !p.Price.Equal(p.Price.Round(priceScale)):
		v.Add("price", "ensure that there are no more than 2 decimal places")
	}
	if p.Discount < 0 || p.Discount > maxDiscount {
		v.Add("discount", "must be between 0 and 100")
	}
	return v.OrNil()
}
