// Package inventory holds the stock policy and the inventory plugin that
// applies it on order lifecycle hooks.
package inventory

import "github.com/modakita/go-fashion-storefront/internal/catalog"

// Config is fixed at plugin initialization. There is no live
// reconfiguration path.
type Config struct {
	Enabled            bool
	LowStockThreshold  int
	PreventOverselling bool
	NotifyOnLowStock   bool
}

type Level int

const (
	LevelOK Level = iota
	LevelLow
	LevelOut
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelOut:
		return "out"
	default:
		return "ok"
	}
}

// CanDeduct reports whether a deduction is permitted. With oversell
// prevention off it always is; the ledger clamps at zero instead.
func CanDeduct(p catalog.Product, requested int, cfg Config) bool {
	if !cfg.PreventOverselling {
		return true
	}
	return p.Quantity-requested >= 0
}

// Classify buckets a post-deduction quantity. Out wins over low: a product
// at zero is out of stock, not low.
func Classify(newQty int, cfg Config) Level {
	switch {
	case newQty <= 0:
		return LevelOut
	case newQty <= cfg.LowStockThreshold:
		return LevelLow
	default:
		return LevelOK
	}
}
