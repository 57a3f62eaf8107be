package catalog

import "time"

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	PriceCents int       `json:"price_cents"`
	Quantity   int       `json:"quantity"`
	InStock    bool      `json:"in_stock"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Deduction is one line item's worth of stock movement.
type Deduction struct {
	ProductID string
	Qty       int
}

// StockChange reports where a product landed after a deduction, so callers
// can classify the new level without a second read.
type StockChange struct {
	ProductID   string
	Name        string
	NewQuantity int
}
