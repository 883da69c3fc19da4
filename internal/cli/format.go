package cli

import (
	"fmt"
	"math"
	"strings"
	"time"

	"options-analyzer/internal/models"
	"options-analyzer/pkg/utils"
)

const missing = "--"

// FormatNumber formats v with thousands separators, or "--" when NaN.
func FormatNumber(v float64, decimals int) string {
	if math.IsNaN(v) {
		return missing
	}
	return utils.FormatThousands(v, decimals)
}

// FormatNull formats an optional value, "--" when absent.
func FormatNull(n models.NullFloat, decimals int) string {
	if !n.Valid {
		return missing
	}
	return FormatNumber(n.Value, decimals)
}

// FormatIV formats a fractional volatility as a percentage.
func FormatIV(iv float64) string {
	if math.IsNaN(iv) {
		return missing
	}
	return fmt.Sprintf("%.2f%%", iv*100)
}

// FormatDTE formats a days-to-expiration value that may be NaN.
func FormatDTE(dte float64) string {
	if math.IsNaN(dte) {
		return missing
	}
	return fmt.Sprintf("%.0fd", dte)
}

// FormatRatio formats a ratio with two decimals; an infinite ratio prints as ∞.
func FormatRatio(r float64) string {
	switch {
	case math.IsNaN(r):
		return missing
	case math.IsInf(r, 1):
		return "∞"
	case math.IsInf(r, -1):
		return "-∞"
	}
	return fmt.Sprintf("%.2f", r)
}

// FormatSigned formats v with an explicit sign.
func FormatSigned(v float64, decimals int) string {
	if math.IsNaN(v) {
		return missing
	}
	s := utils.FormatThousands(v, decimals)
	if v > 0 {
		s = "+" + s
	}
	return s
}

// FormatDateTime formats a snapshot instant in its own location.
func FormatDateTime(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

// Sparkbar renders v as a bar of at most width cells relative to max.
func Sparkbar(v, max float64, width int) string {
	if max <= 0 || math.IsNaN(v) || v <= 0 || width <= 0 {
		return ""
	}
	n := int(math.Round(v / max * float64(width)))
	if n > width {
		n = width
	}
	return strings.Repeat("█", n)
}

// nullable maps NaN and infinities to absent values for JSON output.
func nullable(v float64) models.NullFloat {
	if math.IsInf(v, 0) {
		return models.None()
	}
	return models.FromFloat(v)
}

// nullableGrid maps a matrix for JSON output.
func nullableGrid(grid [][]float64) [][]models.NullFloat {
	out := make([][]models.NullFloat, len(grid))
	for i, row := range grid {
		out[i] = make([]models.NullFloat, len(row))
		for j, v := range row {
			out[i][j] = nullable(v)
		}
	}
	return out
}
