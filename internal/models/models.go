// Package models provides domain models for the options analytics engine.
package models

import (
	"math"
	"strconv"
	"strings"
	"time"

	apperrors "options-analyzer/internal/errors"
)

// OptionType represents the type of an option contract.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// ParseOptionType parses a case-insensitive option type.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c", "ce":
		return Call, nil
	case "put", "p", "pe":
		return Put, nil
	default:
		return "", apperrors.NewValidationErrorFor(apperrors.ErrInvalidOptionType, "option_type", s, "must be 'call' or 'put'")
	}
}

// Valid reports whether t is Call or Put.
func (t OptionType) Valid() bool {
	return t == Call || t == Put
}

// Position represents the side held on an option leg.
type Position string

const (
	Long  Position = "Long"
	Short Position = "Short"
)

// ParsePosition parses a case-insensitive position.
func ParsePosition(s string) (Position, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return Long, nil
	case "short", "sell":
		return Short, nil
	default:
		return "", apperrors.NewValidationErrorFor(apperrors.ErrInvalidPosition, "position", s, "must be 'Long' or 'Short'")
	}
}

// Valid reports whether p is Long or Short.
func (p Position) Valid() bool {
	return p == Long || p == Short
}

// NullFloat is a float64 that may be absent.
type NullFloat struct {
	Value float64
	Valid bool
}

// Some returns a present NullFloat.
func Some(v float64) NullFloat {
	return NullFloat{Value: v, Valid: true}
}

// None returns an absent NullFloat.
func None() NullFloat {
	return NullFloat{}
}

// FromFloat maps NaN to an absent value.
func FromFloat(v float64) NullFloat {
	if math.IsNaN(v) {
		return None()
	}
	return Some(v)
}

// Or returns the value, or def when absent.
func (n NullFloat) Or(def float64) float64 {
	if !n.Valid {
		return def
	}
	return n.Value
}

// Float returns the value, or NaN when absent.
func (n NullFloat) Float() float64 {
	return n.Or(math.NaN())
}

// MarshalJSON encodes an absent or non-finite value as null.
func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid || math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, n.Value, 'g', -1, 64), nil
}

// Interval represents a price bar interval.
type Interval string

const (
	Interval1m Interval = "1m"
	Interval1h Interval = "1h"
	Interval1d Interval = "1d"
)

// Bar represents OHLCV data for a time period.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}
