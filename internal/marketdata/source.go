// Package marketdata provides the price lookups the analytics depend on:
// underlying spot at a snapshot time and the risk-free rate proxy.
package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/logging"
	"options-analyzer/internal/models"
	"options-analyzer/pkg/utils"
)

// BarRequest asks for the bars of one ticker in [From, To).
type BarRequest struct {
	Ticker   string
	Interval models.Interval
	From     time.Time
	To       time.Time
}

// BarSource supplies OHLC bars in ascending time order.
type BarSource interface {
	Bars(ctx context.Context, req BarRequest) ([]models.Bar, error)
}

// RetryingSource retries failed fetches of an underlying source with
// exponential backoff and logs every attempt.
type RetryingSource struct {
	source BarSource
	cfg    utils.RetryConfig
	logger zerolog.Logger
}

// NewRetryingSource wraps source.
func NewRetryingSource(source BarSource, cfg utils.RetryConfig, logger zerolog.Logger) *RetryingSource {
	return &RetryingSource{source: source, cfg: cfg, logger: logger}
}

// Bars fetches bars, retrying on error.
func (r *RetryingSource) Bars(ctx context.Context, req BarRequest) ([]models.Bar, error) {
	bars, err := utils.RetryWithResult(ctx, r.cfg, func() ([]models.Bar, error) {
		start := time.Now()
		bars, err := r.source.Bars(ctx, req)
		logging.LogFetch(r.logger, req.Ticker, string(req.Interval), time.Since(start), err)
		return bars, err
	})
	if err != nil {
		return nil, apperrors.NewDataError("bars", req.Ticker, "fetch failed", apperrors.Wrap(apperrors.ErrFetchFailed, err.Error()))
	}
	return bars, nil
}
