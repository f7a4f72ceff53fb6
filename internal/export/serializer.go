package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/TemirB/shop/internal/domain"
)

const indent = "    "

// exportOrder fixes the field order of one order in the export document.
type exportOrder struct {
	DeliveryAddress string  `json:"delivery_address"`
	Promocode       string  `json:"promocode"`
	User            int64   `json:"user"`
	Products        []int64 `json:"products"`
	Receipt         *string `json:"receipt"`
}

type document struct {
	Orders []exportOrder `json:"orders"`
}

// Serialize renders orders as {"orders": [...]} indented by four spaces.
// Output depends only on the input, so equal order sets give equal bytes.
func Serialize(orders []domain.Order) ([]byte, error) {
	doc := document{Orders: make([]exportOrder, 0, len(orders))}
	for i := range orders {
		o := &orders[i]
		eo := exportOrder{
			DeliveryAddress: o.DeliveryAddress,
			Promocode:       o.Promocode,
			User:            o.UserID,
			Products:        o.ProductIDs(),
		}
		if o.Receipt != "" {
			receipt := o.Receipt
			eo.Receipt = &receipt
		}
		doc.Orders = append(doc.Orders, eo)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
