package store

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/models"
)

// csvFloat is a numeric CSV cell. Empty or unparseable cells decode to NaN.
type csvFloat float64

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (f *csvFloat) UnmarshalCSV(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*f = csvFloat(math.NaN())
		return nil
	}
	*f = csvFloat(v)
	return nil
}

type chainRow struct {
	ContractSymbol    string   `csv:"contract_symbol"`
	UnderlyingSymbol  string   `csv:"underlying_symbol"`
	UnderlyingPrice   csvFloat `csv:"underlying_price"`
	Expiration        string   `csv:"expiration"`
	DTE               csvFloat `csv:"dte"`
	Strike            csvFloat `csv:"strike"`
	OptionType        string   `csv:"option_type"`
	OpenInterest      csvFloat `csv:"open_interest"`
	Volume            csvFloat `csv:"volume"`
	ImpliedVolatility csvFloat `csv:"implied_volatility"`
	Delta             csvFloat `csv:"delta"`
	Gamma             csvFloat `csv:"gamma"`
	Theta             csvFloat `csv:"theta"`
	Vega              csvFloat `csv:"vega"`
	Bid               csvFloat `csv:"bid"`
	Ask               csvFloat `csv:"ask"`
}

type barRow struct {
	Timestamp string   `csv:"timestamp"`
	Open      csvFloat `csv:"open"`
	High      csvFloat `csv:"high"`
	Low       csvFloat `csv:"low"`
	Close     csvFloat `csv:"close"`
	Volume    csvFloat `csv:"volume"`
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ReadChainCSV decodes an options-chain export with snake_case headers.
// Unknown columns are ignored and missing numeric cells become NaN. A row
// without an option type or days to expiration is rejected.
func ReadChainCSV(r io.Reader) ([]models.OptionRecord, error) {
	var rows []*chainRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode chain csv: %w", err)
	}

	records := make([]models.OptionRecord, 0, len(rows))
	for i, row := range rows {
		typ, err := models.ParseOptionType(row.OptionType)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		dte := float64(row.DTE)
		if math.IsNaN(dte) {
			return nil, apperrors.NewValidationError("dte", row.ContractSymbol, fmt.Sprintf("line %d: missing days to expiration", i+2))
		}

		rec := models.OptionRecord{
			ContractSymbol:    row.ContractSymbol,
			UnderlyingSymbol:  row.UnderlyingSymbol,
			UnderlyingPrice:   float64(row.UnderlyingPrice),
			DTE:               int(dte),
			Strike:            float64(row.Strike),
			Type:              typ,
			OpenInterest:      float64(row.OpenInterest),
			Volume:            float64(row.Volume),
			ImpliedVolatility: float64(row.ImpliedVolatility),
			Delta:             float64(row.Delta),
			Gamma:             float64(row.Gamma),
			Theta:             float64(row.Theta),
			Vega:              float64(row.Vega),
			Bid:               float64(row.Bid),
			Ask:               float64(row.Ask),
		}
		if row.Expiration != "" {
			if t, err := parseTimestamp(row.Expiration); err == nil {
				rec.Expiration = t
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReadBarsCSV decodes OHLCV bars with a timestamp column (RFC3339, naive
// datetime or date; naive values are taken as UTC).
func ReadBarsCSV(r io.Reader) ([]models.Bar, error) {
	var rows []*barRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode bars csv: %w", err)
	}

	bars := make([]models.Bar, 0, len(rows))
	for i, row := range rows {
		ts, err := parseTimestamp(row.Timestamp)
		if err != nil {
			return nil, apperrors.NewValidationError("timestamp", row.Timestamp, fmt.Sprintf("line %d: unrecognised timestamp", i+2))
		}
		b := models.Bar{
			Timestamp: ts,
			Open:      float64(row.Open),
			High:      float64(row.High),
			Low:       float64(row.Low),
			Close:     float64(row.Close),
		}
		if math.IsNaN(b.Open) || math.IsNaN(b.High) || math.IsNaN(b.Low) || math.IsNaN(b.Close) {
			return nil, apperrors.NewValidationError("bar", row.Timestamp, fmt.Sprintf("line %d: incomplete OHLC", i+2))
		}
		if v := float64(row.Volume); !math.IsNaN(v) {
			b.Volume = int64(v)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// ReadUnderlyingsJSON decodes a symbol → conventions map.
func ReadUnderlyingsJSON(r io.Reader) (map[string]models.UnderlyingInfo, error) {
	var out map[string]models.UnderlyingInfo
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode underlyings: %w", err)
	}
	for symbol, info := range out {
		if _, err := info.PremiumFactor(); err != nil {
			return nil, fmt.Errorf("underlying %s: %w", symbol, err)
		}
	}
	return out, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
