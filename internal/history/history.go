// Package history computes indicator time series across the stored snapshots
// of one option symbol: ATM implied volatility against realized volatility,
// and delta-targeted skew.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"options-analyzer/internal/analysis/volatility"
	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/logging"
	"options-analyzer/internal/marketdata"
	"options-analyzer/internal/models"
	"options-analyzer/internal/performance"
	"options-analyzer/internal/store"
)

// SnapshotReader is the part of the store history reads from.
type SnapshotReader interface {
	ListSnapshots(ctx context.Context, filter store.SnapshotFilter) ([]models.SnapshotMeta, error)
	GetSnapshot(ctx context.Context, ticker string, date time.Time, hour string) (*models.Snapshot, error)
}

// Expiry selects which maturity an ATM series reads.
type Expiry string

const (
	// ExpiryNearest reads the nearest expiration of each side.
	ExpiryNearest Expiry = "nearest"
	// ExpiryTarget interpolates to the target maturity.
	ExpiryTarget Expiry = "target"
)

// ParseExpiry parses "nearest"/"closest" or "target"/"30".
func ParseExpiry(s string) (Expiry, error) {
	switch s {
	case "nearest", "closest":
		return ExpiryNearest, nil
	case "target", "30", "":
		return ExpiryTarget, nil
	default:
		return "", apperrors.NewValidationError("expiry", s, "must be nearest or target")
	}
}

// Request selects the snapshots a series is built from.
type Request struct {
	Symbol           string    // option symbol snapshots are stored under
	UnderlyingTicker string    // ticker whose bars feed realized volatility
	From             time.Time // inclusive
	To               time.Time // inclusive
	TargetDTE        int
	Delta            float64
	Skew             volatility.SkewKind
}

// ATMPoint is one snapshot of an ATM IV series. Volatilities are fractions.
type ATMPoint struct {
	Time   time.Time        `json:"datetime"`
	MeanIV models.NullFloat `json:"mean_iv"`
	CallIV models.NullFloat `json:"call_iv"`
	PutIV  models.NullFloat `json:"put_iv"`
	DTE1   models.NullFloat `json:"dte_1"`
	DTE2   models.NullFloat `json:"dte_2"`
	RV     models.NullFloat `json:"rv"`
}

// SkewPoint is one snapshot of a skew series, in percent.
type SkewPoint struct {
	Time   time.Time        `json:"datetime"`
	Skew   models.NullFloat `json:"iv_skew"`
	CallIV models.NullFloat `json:"call_iv"`
	PutIV  models.NullFloat `json:"put_iv"`
	DTE1   models.NullFloat `json:"dte_1"`
	DTE2   models.NullFloat `json:"dte_2"`
}

// Service builds series on a worker pool.
type Service struct {
	snapshots SnapshotReader
	bars      marketdata.BarSource
	loc       *time.Location
	pool      *performance.WorkerPool
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a Service. The pool must be started by the caller.
func NewService(snapshots SnapshotReader, bars marketdata.BarSource, loc *time.Location, pool *performance.WorkerPool, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		snapshots: snapshots,
		bars:      bars,
		loc:       loc,
		pool:      pool,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the current time used to pick realized-volatility regimes.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// ATM returns the ATM IV series of req.Symbol with realized volatility of the
// underlying measured over the regime matching expiry.
func (s *Service) ATM(ctx context.Context, req Request, expiry Expiry) ([]ATMPoint, error) {
	return run(ctx, s, req, "atm_history", func(ctx context.Context, snap *models.Snapshot, at time.Time) (ATMPoint, error) {
		var ind volatility.ATMIndicator
		var plan volatility.RVPlan
		now := s.now()
		if expiry == ExpiryNearest {
			ind = volatility.NearestATM(snap.Rows)
			dte := 0
			if nearest := models.FromFloat(ind.DTE1); nearest.Valid {
				dte = int(nearest.Value)
			}
			plan = volatility.NearestPlan(at, dte, now)
		} else {
			ind = volatility.TargetATM(snap.Rows, req.TargetDTE)
			plan = volatility.FixedPlan(at, now)
		}

		rv, err := s.realized(ctx, req.UnderlyingTicker, plan)
		if err != nil {
			return ATMPoint{}, err
		}
		return ATMPoint{
			Time:   at,
			MeanIV: models.FromFloat(ind.Mean),
			CallIV: models.FromFloat(ind.Call),
			PutIV:  models.FromFloat(ind.Put),
			DTE1:   models.FromFloat(ind.DTE1),
			DTE2:   models.FromFloat(ind.DTE2),
			RV:     models.FromFloat(rv),
		}, nil
	})
}

// Skew returns the delta skew series of req.Symbol in percent.
func (s *Service) Skew(ctx context.Context, req Request) ([]SkewPoint, error) {
	return run(ctx, s, req, "skew_history", func(_ context.Context, snap *models.Snapshot, at time.Time) (SkewPoint, error) {
		ind := volatility.DeltaSkew(snap.Rows, req.TargetDTE, req.Delta, req.Skew)
		return SkewPoint{
			Time:   at,
			Skew:   models.FromFloat(ind.Skew * 100),
			CallIV: models.FromFloat(ind.Call * 100),
			PutIV:  models.FromFloat(ind.Put * 100),
			DTE1:   models.FromFloat(ind.DTE1),
			DTE2:   models.FromFloat(ind.DTE2),
		}, nil
	})
}

// realized requests the plan's windows in order and applies its estimator to
// the first non-empty one. NaN means no bars were found.
func (s *Service) realized(ctx context.Context, ticker string, plan volatility.RVPlan) (float64, error) {
	for _, w := range plan.Windows {
		bars, err := s.bars.Bars(ctx, marketdata.BarRequest{Ticker: ticker, Interval: plan.Interval, From: w.Start, To: w.End})
		if err != nil {
			return 0, err
		}
		if len(bars) > 0 {
			return plan.Compute(bars), nil
		}
	}
	return plan.Compute(nil), nil
}

// run lists the snapshots of req, evaluates point on each of them in parallel
// and returns the points in time order. Snapshots that fail are logged and
// skipped.
func run[P any](ctx context.Context, s *Service, req Request, operation string, point func(context.Context, *models.Snapshot, time.Time) (P, error)) ([]P, error) {
	start := time.Now()
	logger := logging.WithOperation(logging.WithRunID(logging.WithTicker(s.logger, req.Symbol), uuid.NewString()), operation)

	metas, err := s.snapshots.ListSnapshots(ctx, store.SnapshotFilter{Ticker: req.Symbol, StartDate: req.From, EndDate: req.To})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(metas) == 0 {
		return nil, apperrors.NewDataError("snapshot", req.Symbol,
			fmt.Sprintf("no snapshots between %s and %s", req.From.Format("2006-01-02"), req.To.Format("2006-01-02")),
			apperrors.ErrDataNotFound)
	}

	results, errs := performance.Map(ctx, s.pool, metas, func(ctx context.Context, meta models.SnapshotMeta) (P, error) {
		var zero P
		at, err := marketdata.HourIn(meta.Date, meta.Hour, s.loc)
		if err != nil {
			return zero, err
		}
		snap, err := s.snapshots.GetSnapshot(ctx, meta.Ticker, meta.Date, meta.Hour)
		if err != nil {
			return zero, err
		}
		return point(ctx, snap, at)
	})

	out := make([]P, 0, len(results))
	for i, err := range errs {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn().Err(err).
				Str("date", metas[i].Date.Format("2006-01-02")).
				Str("hour", metas[i].Hour).
				Msg("Skipping snapshot")
			continue
		}
		out = append(out, results[i])
	}

	logging.LogAnalysis(logger, operation, req.Symbol, len(out), time.Since(start))
	return out, nil
}
