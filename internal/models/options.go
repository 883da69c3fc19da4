package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "options-analyzer/internal/errors"
)

// OptionRecord represents one row of an options-chain snapshot.
// Numeric fields that were missing or unparseable hold NaN.
type OptionRecord struct {
	ContractSymbol    string
	UnderlyingSymbol  string
	UnderlyingPrice   float64
	Expiration        time.Time
	DTE               int
	Strike            float64
	Type              OptionType
	OpenInterest      float64
	Volume            float64
	ImpliedVolatility float64
	Delta             float64
	Gamma             float64
	Theta             float64
	Vega              float64
	Bid               float64
	Ask               float64
}

// SnapshotMeta identifies when and for what a chain was acquired.
type SnapshotMeta struct {
	Ticker string
	Date   time.Time
	Hour   string // hour bucket, "15_30" style
}

// Snapshot is an immutable options-chain table plus acquisition metadata.
type Snapshot struct {
	Meta SnapshotMeta
	Rows []OptionRecord
}

// Spot returns the underlying price shared by the snapshot's rows, or 0 when empty.
func (s Snapshot) Spot() float64 {
	if len(s.Rows) == 0 {
		return 0
	}
	return s.Rows[0].UnderlyingPrice
}

// QuotationType describes how an option premium is quoted.
type QuotationType string

const (
	DirectQuote  QuotationType = "direct_quote"
	Points       QuotationType = "points"
	NominalValue QuotationType = "nominal_value"
)

// UnderlyingInfo describes an underlying and its contract conventions.
type UnderlyingInfo struct {
	Ticker             string        `json:"underlying_ticker"`
	Change             string        `json:"change"`
	QuotationType      QuotationType `json:"quotation_type"`
	QuotationTypeValue float64       `json:"quotation_type_value"`
	LotSize            int           `json:"lot_size"`
}

// PremiumFactor returns the multiplier converting a quoted premium into cash.
func (u UnderlyingInfo) PremiumFactor() (float64, error) {
	switch u.QuotationType {
	case DirectQuote, Points:
		return u.QuotationTypeValue * float64(u.LotSize), nil
	case NominalValue:
		return u.QuotationTypeValue, nil
	default:
		return 0, apperrors.NewValidationError("quotation_type", u.QuotationType, "must be direct_quote, points or nominal_value")
	}
}

// OptionLeg is one leg of a user-assembled option combination.
// Premium is already expressed in cash.
type OptionLeg struct {
	Type     OptionType `json:"type"`
	Position Position   `json:"pos"`
	Strike   float64    `json:"strike"`
	Premium  float64    `json:"premium"`
	Maturity string     `json:"maturity"` // "30 days"
}

// MaturityDays parses the leading day count of the maturity label.
func (l OptionLeg) MaturityDays() (int, error) {
	fields := strings.Fields(l.Maturity)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty maturity")
	}
	return strconv.Atoi(fields[0])
}
