package catalog

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var ErrProductNotFound = errors.New("product not found")

// ShortItem is one line item that could not be covered by available stock.
type ShortItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

// InsufficientStockError rejects a whole deduction. It lists every short
// item, not just the first one found.
type InsufficientStockError struct {
	Items []ShortItem
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		parts = append(parts, fmt.Sprintf("%s: requested %d, available %d", it.Name, it.Requested, it.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}
