package cli

import (
	"context"
	"math"

	"github.com/spf13/cobra"

	"options-analyzer/internal/analysis/chain"
	"options-analyzer/internal/marketdata"
	"options-analyzer/internal/models"
	"options-analyzer/internal/store"
)

const defaultLotSize = 100

// chainFlags are the expiration and strike filters shared by chain commands.
type chainFlags struct {
	selector    string
	expirations []string
	days        bool
	strikeLow   float64
	strikeHigh  float64
}

func (f *chainFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.selector, "select", "All", "expiration selector: All, Specific or Peak")
	cmd.Flags().StringSliceVar(&f.expirations, "exp", nil, "expiration values for Specific/Peak (dates, or days with --days)")
	cmd.Flags().BoolVar(&f.days, "days", false, "use days to expiration instead of calendar dates")
	cmd.Flags().Float64Var(&f.strikeLow, "strike-min", 0, "exclusive lower strike bound")
	cmd.Flags().Float64Var(&f.strikeHigh, "strike-max", 0, "exclusive upper strike bound (0: unbounded)")
}

func (f chainFlags) axis() chain.ExpirationAxis {
	return chain.AxisFor(f.days)
}

func (f chainFlags) high() float64 {
	if f.strikeHigh <= 0 {
		return math.Inf(1)
	}
	return f.strikeHigh
}

func (f chainFlags) options() (chain.FilterOptions, error) {
	sel, err := chain.ParseSelector(f.selector, f.expirations)
	if err != nil {
		return chain.FilterOptions{}, err
	}
	return chain.FilterOptions{
		Axis:       f.axis(),
		Expiration: sel,
		StrikeLow:  f.strikeLow,
		StrikeHigh: f.high(),
	}, nil
}

func (f chainFlags) apply(rows []models.OptionRecord) ([]models.OptionRecord, error) {
	opts, err := f.options()
	if err != nil {
		return nil, err
	}
	return chain.Filter(rows, opts)
}

// underlying returns the stored definition of an option symbol.
func (a *App) underlying(ctx context.Context, ds store.DataStore, symbol string) (models.UnderlyingInfo, bool) {
	info, err := ds.GetUnderlying(ctx, symbol)
	if err != nil {
		a.Logger.Debug().Err(err).Str("symbol", symbol).Msg("No underlying definition")
		return models.UnderlyingInfo{}, false
	}
	return *info, true
}

// priceTicker maps an option symbol to the ticker its price bars are stored under.
func (a *App) priceTicker(ctx context.Context, ds store.DataStore, symbol string) string {
	if info, ok := a.underlying(ctx, ds, symbol); ok && info.Ticker != "" {
		return info.Ticker
	}
	return symbol
}

// lotSize resolves the contract multiplier: the flag when set, else the
// stored definition, else 100.
func (a *App) lotSize(ctx context.Context, ds store.DataStore, symbol string, flag int) int {
	if flag > 0 {
		return flag
	}
	if info, ok := a.underlying(ctx, ds, symbol); ok && info.LotSize > 0 {
		return info.LotSize
	}
	return defaultLotSize
}

// spotFor resolves the underlying price at a snapshot's acquisition time
// through the bar cascade, falling back to the price carried by the chain.
func (a *App) spotFor(ctx context.Context, ds store.DataStore, lookup *marketdata.Lookup, snap *models.Snapshot) float64 {
	ticker := a.priceTicker(ctx, ds, snap.Meta.Ticker)
	if spot := lookup.Spot(ctx, ticker, snap.Meta.Date, snap.Meta.Hour); spot > 0 {
		return spot
	}
	a.Logger.Debug().Str("snapshot", snapshotLabel(snap.Meta)).Msg("Using chain underlying price as spot")
	return snap.Spot()
}
