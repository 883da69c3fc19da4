package marketdata

import (
	"context"
	"time"

	"options-analyzer/internal/models"
)

// RiskFreeRate returns the rate proxy's close, in percent, before date: the
// last daily close of the previous day, widened to the three previous days
// when that is empty. On the current date the latest minute close is used.
// 0 means no quote was found.
func (l *Lookup) RiskFreeRate(ctx context.Context, date time.Time) float64 {
	return l.LastClose(ctx, l.rateProxy, date)
}

// LastClose returns the most recent close of ticker before date, rounded to
// cents, using the same windows as RiskFreeRate.
func (l *Lookup) LastClose(ctx context.Context, ticker string, date time.Time) float64 {
	y, mo, d := date.In(l.loc).Date()
	day := time.Date(y, mo, d, 0, 0, 0, 0, l.loc)

	ny, nmo, nd := l.now().In(l.loc).Date()
	var windows []BarRequest
	if y == ny && mo == nmo && d == nd {
		windows = []BarRequest{{Ticker: ticker, Interval: models.Interval1m, From: day, To: day.AddDate(0, 0, 1)}}
	} else {
		windows = []BarRequest{
			{Ticker: ticker, Interval: models.Interval1d, From: day.AddDate(0, 0, -1), To: day},
			{Ticker: ticker, Interval: models.Interval1d, From: day.AddDate(0, 0, -3), To: day},
		}
	}

	for _, req := range windows {
		bars, err := l.source.Bars(ctx, req)
		if err != nil {
			l.logger.Debug().Err(err).Str("ticker", ticker).Msg("Close window unavailable")
			continue
		}
		if len(bars) > 0 {
			return round2(bars[len(bars)-1].Close)
		}
	}
	l.logger.Warn().Str("ticker", ticker).Time("date", day).Msg("No close found")
	return 0
}
