// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
	"strings"
)

// FormatThousands formats a number with comma thousands separators and the
// given number of decimals: 1234567.891 → "1,234,567.89".
func FormatThousands(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Sprintf("%v", value)
	}
	negative := value < 0
	if negative {
		value = -value
	}

	str := fmt.Sprintf("%.*f", decimals, value)
	intPart, decPart, hasDec := strings.Cut(str, ".")

	result := groupThousands(intPart)
	if hasDec {
		result += "." + decPart
	}
	if negative && strings.Trim(result, "0.,") != "" {
		result = "-" + result
	}
	return result
}

// groupThousands inserts a comma every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatAmount formats a cash amount rounded to units, followed by the
// currency code when one is given.
func FormatAmount(amount float64, change string) string {
	s := FormatThousands(amount, 0)
	if change == "" {
		return s
	}
	return s + " " + change
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	if math.IsNaN(value) {
		return "-- %"
	}
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatPnL formats P&L with an explicit sign.
func FormatPnL(pnl float64, change string) string {
	formatted := FormatAmount(pnl, change)
	if pnl >= 0.5 {
		return "+" + formatted
	}
	return formatted
}

// FormatCompact formats a number in compact form (K/M/B).
func FormatCompact(amount float64) string {
	absAmount := math.Abs(amount)

	switch {
	case absAmount >= 1e9:
		return fmt.Sprintf("%.2fB", amount/1e9)
	case absAmount >= 1e6:
		return fmt.Sprintf("%.2fM", amount/1e6)
	case absAmount >= 1e4:
		return fmt.Sprintf("%.1fK", amount/1e3)
	}
	return FormatThousands(amount, 0)
}
