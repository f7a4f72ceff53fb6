package domain

import "time"

type Order struct {
	ID              int64     `json:"pk"`
	DeliveryAddress string    `json:"delivery_address"`
	Promocode       string    `json:"promocode"`
	UserID          int64     `json:"user"`
	User            *User     `json:"-"`
	Products        []Product `json:"-"`
	Receipt         string    `json:"receipt,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ProductIDs keeps the association order of the order's products.
func (o *Order) ProductIDs() []int64 {
	ids := make([]int64, 0, len(o.Products))
	for _, p := range o.Products {
		ids = append(ids, p.ID)
	}
	return ids
}

// OrderChanged is emitted after any mutation of a user's orders.
type OrderChanged struct {
	UserID  int64     `json:"user_id"`
	OrderID int64     `json:"order_id"`
	At      time.Time `json:"at"`
}
