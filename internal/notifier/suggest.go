package notifier

import (
	"math"
	"time"

	"stockwatch/internal/inventory"
)

// SalesSource reports units sold per product.
type SalesSource interface {
	SalesSince(id string, since time.Time) int
}

type SuggestConfig struct {
	// Window is the sell-velocity lookback. Default 7 days.
	Window time.Duration
	// CoverDays is how many days of sales a reorder should cover. Default 14.
	CoverDays int
	Threshold int
}

func (c SuggestConfig) withDefaults() SuggestConfig {
	if c.Window <= 0 {
		c.Window = 7 * 24 * time.Hour
	}
	if c.CoverDays <= 0 {
		c.CoverDays = 14
	}
	if c.Threshold <= 0 {
		c.Threshold = inventory.DefaultLowStockThreshold
	}
	return c
}

// Suggest computes reorder advice from recent sell velocity.
//
// For each product with sales in the window the target level is the daily
// rate times CoverDays, rounded up, and never below the low-stock threshold.
// Products already at or above target, and products with no sales, get no
// advice.
func Suggest(products []inventory.Product, sales SalesSource, now time.Time, cfg SuggestConfig) []ReorderItem {
	cfg = cfg.withDefaults()
	since := now.Add(-cfg.Window)
	days := cfg.Window.Hours() / 24

	items := []ReorderItem{}
	for _, p := range products {
		sold := sales.SalesSince(p.ID, since)
		if sold <= 0 {
			continue
		}
		daily := float64(sold) / days
		target := int(math.Ceil(daily * float64(cfg.CoverDays)))
		if target < cfg.Threshold {
			target = cfg.Threshold
		}
		if p.Quantity >= target {
			continue
		}
		items = append(items, ReorderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  p.Quantity,
			Sold:      sold,
			DailyRate: daily,
			Reorder:   target - p.Quantity,
		})
	}
	return items
}
