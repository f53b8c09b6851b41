package cli

import (
	"fmt"
	"math"
)

// FormatPrice renders a price with precision scaled to its magnitude, so
// sub-dollar assets stay readable.
func FormatPrice(price float64) string {
	abs := math.Abs(price)
	switch {
	case abs >= 1000:
		return fmt.Sprintf("%.2f", price)
	case abs >= 1:
		return fmt.Sprintf("%.4f", price)
	default:
		return fmt.Sprintf("%.6f", price)
	}
}

// FormatPercent renders a fraction as a signed percentage.
func FormatPercent(value float64) string {
	return fmt.Sprintf("%+.2f%%", value*100)
}

// FormatPnL renders a profit/loss amount with an explicit sign.
func FormatPnL(pnl float64) string {
	return fmt.Sprintf("%+.2f", pnl)
}

// FormatCompact renders large amounts with K/M suffixes.
func FormatCompact(amount float64) string {
	abs := math.Abs(amount)
	switch {
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", amount/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.1fK", amount/1e3)
	default:
		return fmt.Sprintf("%.2f", amount)
	}
}
