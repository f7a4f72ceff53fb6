package domain

import "strings"

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

type Page struct {
	Limit  int
	Offset int
}

func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Ordering is a field name with an optional "-" prefix for descending order.
type Ordering string

func (o Ordering) Field() string { return strings.TrimPrefix(string(o), "-") }
func (o Ordering) Desc() bool    { return strings.HasPrefix(string(o), "-") }

type ProductFilter struct {
	Search   string
	Archived *bool
	Ordering Ordering
	Page     Page
}

type OrderFilter struct {
	UserID          int64
	DeliveryAddress string
	Promocode       string
	Ordering        Ordering
	Page            Page
}
