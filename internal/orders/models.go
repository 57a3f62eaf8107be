package orders

import "time"

type Order struct {
	ID            string      `json:"id"`
	OrderNumber   string      `json:"order_number"`
	CustomerID    string      `json:"customer_id"`
	Status        Status      `json:"status"`
	TotalCents    int         `json:"total_cents"`
	StockDeducted bool        `json:"stock_deducted"`
	Items         []OrderItem `json:"items"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// OrderItem snapshots qty and unit price at order time; it is never
// recomputed from the current product price.
type OrderItem struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

// NewItem is a requested line item before pricing.
type NewItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}
