package marketdata

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"options-analyzer/internal/models"
)

// DefaultCloseHour is the hour bucket standing for the session close.
const DefaultCloseHour = "21_59"

// Lookup resolves spot prices and risk-free rates from a BarSource. Dates and
// hour buckets are interpreted in the market timezone.
type Lookup struct {
	source    BarSource
	loc       *time.Location
	closeHour string
	rateProxy string
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures a Lookup.
type Option func(*Lookup)

// WithCloseHour sets the hour bucket answered with the daily close.
func WithCloseHour(hour string) Option {
	return func(l *Lookup) { l.closeHour = hour }
}

// WithRateProxy sets the ticker whose close is used as the risk-free rate.
func WithRateProxy(ticker string) Option {
	return func(l *Lookup) { l.rateProxy = ticker }
}

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Lookup) { l.logger = logger }
}

// WithClock overrides the current time.
func WithClock(now func() time.Time) Option {
	return func(l *Lookup) { l.now = now }
}

// NewLookup creates a Lookup. A nil location means UTC.
func NewLookup(source BarSource, loc *time.Location, opts ...Option) *Lookup {
	if loc == nil {
		loc = time.UTC
	}
	l := &Lookup{
		source:    source,
		loc:       loc,
		closeHour: DefaultCloseHour,
		rateProxy: "^IRX",
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Location returns the market timezone.
func (l *Lookup) Location() *time.Location { return l.loc }

// ParseHour parses an "HH_MM" hour bucket.
func ParseHour(hour string) (h, m int, err error) {
	if _, err := fmt.Sscanf(hour, "%d_%d", &h, &m); err != nil {
		return 0, 0, fmt.Errorf("invalid hour %q: %w", hour, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid hour %q", hour)
	}
	return h, m, nil
}

// At returns the instant of an hour bucket on date in the market timezone.
func (l *Lookup) At(date time.Time, hour string) (time.Time, error) {
	return HourIn(date, hour, l.loc)
}

// HourIn returns the instant of an hour bucket on the calendar date of date
// in loc.
func HourIn(date time.Time, hour string, loc *time.Location) (time.Time, error) {
	h, m, err := ParseHour(hour)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := date.Date()
	return time.Date(y, mo, d, h, m, 0, 0, loc), nil
}

// Spot returns the underlying price at the hour bucket of date. It tries the
// exact minute bar's close, then the median OHLC of the nearest hourly bar,
// then the daily bar (its close for the close bucket, its median OHLC
// otherwise). Each level must produce a positive price; 0 means every level
// failed.
func (l *Lookup) Spot(ctx context.Context, ticker string, date time.Time, hour string) float64 {
	target, err := l.At(date, hour)
	if err != nil {
		l.logger.Warn().Err(err).Str("ticker", ticker).Msg("Cannot resolve spot hour")
		return 0
	}
	y, mo, d := date.Date()
	day := time.Date(y, mo, d, 0, 0, 0, 0, l.loc)
	end := day.AddDate(0, 0, 1)

	levels := []struct {
		interval models.Interval
		pick     func([]models.Bar) float64
	}{
		{models.Interval1m, func(bars []models.Bar) float64 { return l.exactMinute(bars, target) }},
		{models.Interval1h, func(bars []models.Bar) float64 { return medianOHLC(nearest(bars, target)) }},
		{models.Interval1d, func(bars []models.Bar) float64 {
			if hour == l.closeHour {
				return bars[0].Close
			}
			return medianOHLC(nearest(bars, target))
		}},
	}

	for _, lvl := range levels {
		bars, err := l.source.Bars(ctx, BarRequest{Ticker: ticker, Interval: lvl.interval, From: day, To: end})
		if err != nil {
			l.logger.Debug().Err(err).Str("ticker", ticker).Str("interval", string(lvl.interval)).Msg("Spot level unavailable")
			continue
		}
		if len(bars) == 0 {
			continue
		}
		if v := lvl.pick(bars); v > 0 && !math.IsNaN(v) {
			l.logger.Debug().Str("ticker", ticker).Str("interval", string(lvl.interval)).Float64("spot", v).Msg("Spot resolved")
			return v
		}
	}

	l.logger.Warn().Str("ticker", ticker).Time("at", target).Msg("Spot not found")
	return 0
}

func (l *Lookup) exactMinute(bars []models.Bar, target time.Time) float64 {
	for _, b := range bars {
		ts := b.Timestamp.In(l.loc)
		if ts.Hour() == target.Hour() && ts.Minute() == target.Minute() {
			return round2(b.Close)
		}
	}
	return 0
}

// nearest returns the first bar closest to t.
func nearest(bars []models.Bar, t time.Time) models.Bar {
	best := 0
	bestDist := absDuration(bars[0].Timestamp.Sub(t))
	for i := 1; i < len(bars); i++ {
		if dist := absDuration(bars[i].Timestamp.Sub(t)); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return bars[best]
}

// medianOHLC returns the median of a bar's four prices rounded to cents.
func medianOHLC(b models.Bar) float64 {
	prices := []float64{b.Open, b.High, b.Low, b.Close}
	sort.Float64s(prices)
	return round2((prices[1] + prices[2]) / 2)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
