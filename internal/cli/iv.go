package cli

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"options-analyzer/internal/analysis/chain"
	"options-analyzer/internal/analysis/volatility"
	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/history"
	"options-analyzer/internal/logging"
	"options-analyzer/internal/marketdata"
	"options-analyzer/internal/models"
)

func addIVCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "iv",
		Short: "Implied and realized volatility analysis",
	}
	cmd.AddCommand(newSmileCmd(app))
	cmd.AddCommand(newSurfaceCmd(app))
	cmd.AddCommand(newATMCmd(app))
	cmd.AddCommand(newSkewCmd(app))
	cmd.AddCommand(newRVCmd(app))
	rootCmd.AddCommand(cmd)
}

type curveJSON struct {
	Expiration string             `json:"expiration"`
	Frame      volatility.Frame   `json:"frame"`
	Type       models.OptionType  `json:"type"`
	Strikes    []float64          `json:"strikes"`
	IV         []models.NullFloat `json:"iv"`
}

// nearestExpiration returns the smallest expiration on axis, formatted.
func nearestExpiration(rows []models.OptionRecord, axis chain.ExpirationAxis) (string, bool) {
	best, found := int64(0), false
	for _, r := range rows {
		if k, ok := axis.Key(r); ok && (!found || k < best) {
			best, found = k, true
		}
	}
	if !found {
		return "", false
	}
	return axis.Format(best), true
}

func parseMoneyness(s string) (volatility.Moneyness, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ALL":
		return volatility.MoneynessAll, nil
	case "OTM":
		return volatility.MoneynessOTM, nil
	case "ITM":
		return volatility.MoneynessITM, nil
	default:
		return "", apperrors.NewValidationError("moneyness", s, "must be All, OTM or ITM")
	}
}

func newSmileCmd(app *App) *cobra.Command {
	var (
		current, compare snapshotRef
		exps, cmpExps    []string
		days             bool
		moneyness        string
		snapshotSpot     bool
		smoothing        string
	)

	cmd := &cobra.Command{
		Use:   "smile",
		Short: "Implied volatility smile of one or two snapshots",
		Long: `Build the implied volatility smile (in percent) of selected expirations.
With --cmp-date the smile of a second snapshot is overlaid.

Moneyness filtering compares strikes with the latest close of the underlying,
inclusive. With --snapshot-spot each snapshot uses its own acquisition spot
and the comparison is strict.`,
		Example: `  optanalyzer iv smile --ticker SPX --exp 2024-03-15,2024-04-19 --moneyness OTM
  optanalyzer iv smile --ticker SPX --days --exp 30 --cmp-date 2024-03-01 --cmp-exp 34`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			start := time.Now()

			m, err := parseMoneyness(moneyness)
			if err != nil {
				return err
			}
			if smoothing == "" {
				smoothing = app.Config.Analytics.Smoothing
			}
			axis := chain.AxisFor(days)

			ds, err := app.Store()
			if err != nil {
				return err
			}
			snap1, err := current.load(ctx, ds)
			if err != nil {
				return err
			}
			if len(exps) == 0 {
				if nearest, ok := nearestExpiration(snap1.Rows, axis); ok {
					exps = []string{nearest}
					app.Logger.Debug().Str("expiration", nearest).Msg("Defaulting smile to nearest expiration")
				}
			}

			var cmpSet *volatility.SmileSet
			var snap2 *models.Snapshot
			if compare.date != "" {
				if compare.ticker == "" {
					compare.ticker = current.ticker
				}
				if snap2, err = compare.load(ctx, ds); err != nil {
					return err
				}
				if len(cmpExps) == 0 {
					cmpExps = exps
				}
				cmpSet = &volatility.SmileSet{Rows: snap2.Rows, Expirations: cmpExps}
			}

			points, err := volatility.Smile(axis, volatility.SmileSet{Rows: snap1.Rows, Expirations: exps}, cmpSet)
			if err != nil {
				return err
			}

			if m != volatility.MoneynessAll {
				lookup := app.Lookup(ds)
				spots := volatility.Spots{Frame1: app.spotFor(ctx, ds, lookup, snap1)}
				if snap2 != nil {
					spots.Frame2 = app.spotFor(ctx, ds, lookup, snap2)
				}
				mode := volatility.SpotSnapshot
				if !snapshotSpot {
					mode = volatility.SpotCurrent
					spots.Current = lookup.LastClose(ctx, app.priceTicker(ctx, ds, snap1.Meta.Ticker), time.Now())
					if spots.Current <= 0 {
						spots.Current = spots.Frame1
					}
				}
				points = volatility.ApplyMoneyness(points, m, mode, spots)
			}

			curves := volatility.SmileCurves(points, volatility.ParseSmoothMethod(smoothing))
			logging.LogAnalysis(logging.WithTicker(app.Logger, snap1.Meta.Ticker), "iv_smile", snap1.Meta.Ticker, len(points), time.Since(start))

			if output.IsJSON() {
				out := make([]curveJSON, len(curves))
				for i, c := range curves {
					iv := make([]models.NullFloat, len(c.IV))
					for j, v := range c.IV {
						iv[j] = nullable(v)
					}
					out[i] = curveJSON{Expiration: axis.Format(c.Expiration), Frame: c.Frame, Type: c.Type, Strikes: c.Strikes, IV: iv}
				}
				return output.JSON(map[string]interface{}{
					"snapshot":  snapshotLabel(snap1.Meta),
					"moneyness": m,
					"smoothing": smoothing,
					"curves":    out,
				})
			}

			output.Bold("IV smile: %s", snapshotLabel(snap1.Meta))
			if snap2 != nil {
				output.Dim("compared with %s", snapshotLabel(snap2.Meta))
			}
			if len(points) == 0 {
				output.Warning("No quotes for the selected expirations")
				return nil
			}
			table := NewTable(output, "Expiration", "Frame", "Strike", "Call IV", "Put IV")
			for _, p := range points {
				table.AddRow(axis.Format(p.Expiration), string(p.Frame), FormatNumber(p.Strike, 2),
					FormatNull(p.Call, 2), FormatNull(p.Put, 2))
			}
			table.Render()
			output.Dim("%d smoothed curve(s) with %s smoothing; use --json for the curve points", len(curves), smoothing)
			return nil
		},
	}

	current.bind(cmd, "", "current snapshot")
	compare.bind(cmd, "cmp", "compare snapshot")
	cmd.Flags().StringSliceVar(&exps, "exp", nil, "expirations of the current snapshot (default: nearest)")
	cmd.Flags().StringSliceVar(&cmpExps, "cmp-exp", nil, "expirations of the compare snapshot (default: --exp)")
	cmd.Flags().BoolVar(&days, "days", false, "expirations are days to expiration")
	cmd.Flags().StringVar(&moneyness, "moneyness", "All", "All, OTM or ITM")
	cmd.Flags().BoolVar(&snapshotSpot, "snapshot-spot", false, "use each snapshot's own spot for moneyness")
	cmd.Flags().StringVar(&smoothing, "smoothing", "", "interpolate, savgol or none (default: config)")
	return cmd
}

func newSurfaceCmd(app *App) *cobra.Command {
	var (
		ref        snapshotRef
		side       string
		strikeLow  float64
		strikeHigh float64
		maxDTE     string
		resolution int
	)

	cmd := &cobra.Command{
		Use:   "surface",
		Short: "Implied volatility surface over strike and days to expiration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			start := time.Now()

			if resolution <= 0 {
				resolution = app.Config.Analytics.SurfaceGrid
			}
			bounds := chainFlags{strikeLow: strikeLow, strikeHigh: strikeHigh}

			ds, err := app.Store()
			if err != nil {
				return err
			}
			snap, err := ref.load(cmd.Context(), ds)
			if err != nil {
				return err
			}

			grid, err := volatility.Surface(snap.Rows, volatility.SurfaceOptions{
				Mode:       volatility.ParseSurfaceMode(side),
				StrikeLow:  bounds.strikeLow,
				StrikeHigh: bounds.high(),
				MaxDTE:     maxDTE,
				Resolution: resolution,
			})
			if err != nil {
				return err
			}
			logging.LogAnalysis(logging.WithTicker(app.Logger, snap.Meta.Ticker), "iv_surface", snap.Meta.Ticker, grid.Points, time.Since(start))

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"snapshot": snapshotLabel(snap.Meta),
					"mode":     volatility.ParseSurfaceMode(side),
					"strikes":  grid.Strikes,
					"dtes":     grid.DTEs,
					"iv":       nullableGrid(grid.IV),
					"points":   grid.Points,
				})
			}

			output.Bold("IV surface (%s): %s", volatility.ParseSurfaceMode(side), snapshotLabel(snap.Meta))
			output.Dim("%d observations on a %d×%d grid", grid.Points, len(grid.Strikes), len(grid.DTEs))
			renderSurface(output, grid, 8)
			return nil
		},
	}

	ref.bind(cmd, "", "snapshot")
	cmd.Flags().StringVar(&side, "side", "call", "call, put or mean")
	cmd.Flags().Float64Var(&strikeLow, "strike-min", 0, "exclusive lower strike bound")
	cmd.Flags().Float64Var(&strikeHigh, "strike-max", 0, "exclusive upper strike bound (0: unbounded)")
	cmd.Flags().StringVar(&maxDTE, "max-dte", "", "keep expirations up to this many days")
	cmd.Flags().IntVar(&resolution, "grid", 0, "grid nodes per axis (default: config)")
	return cmd
}

// renderSurface prints an evenly sampled n×n view of the grid. Rows are DTEs.
func renderSurface(output *Output, grid *volatility.SurfaceGrid, n int) {
	sample := func(total int) []int {
		if total <= n {
			idx := make([]int, total)
			for i := range idx {
				idx[i] = i
			}
			return idx
		}
		idx := make([]int, n)
		for i := range idx {
			idx[i] = int(math.Round(float64(i) * float64(total-1) / float64(n-1)))
		}
		return idx
	}
	cols := sample(len(grid.Strikes))
	rows := sample(len(grid.DTEs))

	headers := []string{"DTE \\ Strike"}
	for _, j := range cols {
		headers = append(headers, FormatNumber(grid.Strikes[j], 0))
	}
	table := NewTable(output, headers...)
	for _, i := range rows {
		cells := []string{FormatDTE(grid.DTEs[i])}
		for _, j := range cols {
			cells = append(cells, FormatIV(grid.IV[i][j]))
		}
		table.AddRow(cells...)
	}
	table.Render()
}

// seriesFlags select the snapshots of a history series.
type seriesFlags struct {
	symbol    string
	from, to  string
	targetDTE int
}

func (f *seriesFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.symbol, "ticker", "", "option symbol")
	cmd.Flags().StringVar(&f.from, "from", "", "first snapshot date (inclusive)")
	cmd.Flags().StringVar(&f.to, "to", "", "last snapshot date (inclusive)")
	cmd.Flags().IntVar(&f.targetDTE, "target-dte", 0, "target days to expiration (default: config)")
	cmd.MarkFlagRequired("ticker")
}

func (f seriesFlags) request(app *App, cmd *cobra.Command) (history.Request, *history.Service, error) {
	ds, err := app.Store()
	if err != nil {
		return history.Request{}, nil, err
	}
	req := history.Request{
		Symbol:           f.symbol,
		UnderlyingTicker: app.priceTicker(cmd.Context(), ds, f.symbol),
		TargetDTE:        f.targetDTE,
		Delta:            app.Config.Analytics.DeltaTarget,
	}
	if req.TargetDTE <= 0 {
		req.TargetDTE = app.Config.Analytics.TargetDTE
	}
	if req.From, err = optionalDate("from", f.from); err != nil {
		return history.Request{}, nil, err
	}
	if req.To, err = optionalDate("to", f.to); err != nil {
		return history.Request{}, nil, err
	}
	svc := history.NewService(ds, app.BarSource(ds), app.Location(), app.Pool(), app.Logger)
	return req, svc, nil
}

func newATMCmd(app *App) *cobra.Command {
	var (
		series seriesFlags
		expiry string
	)

	cmd := &cobra.Command{
		Use:   "atm",
		Short: "ATM implied volatility series with realized volatility",
		Long: `Compute the at-the-money implied volatility of every stored snapshot in the
date range, together with the realized volatility of the underlying.

  nearest  ATM IV of the nearest expiration; realized volatility over a window
           matching that expiration
  target   ATM IV interpolated to the target days to expiration; realized
           volatility over the previous 30 days`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			exp, err := history.ParseExpiry(expiry)
			if err != nil {
				return err
			}
			req, svc, err := series.request(app, cmd)
			if err != nil {
				return err
			}
			points, err := svc.ATM(cmd.Context(), req, exp)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(points)
			}

			output.Bold("ATM IV (%s): %s", exp, req.Symbol)
			table := NewTable(output, "Time", "Mean IV", "Call IV", "Put IV", "DTE 1", "DTE 2", "RV")
			for _, p := range points {
				table.AddRow(
					FormatDateTime(p.Time),
					FormatIV(p.MeanIV.Float()),
					FormatIV(p.CallIV.Float()),
					FormatIV(p.PutIV.Float()),
					FormatDTE(p.DTE1.Float()),
					FormatDTE(p.DTE2.Float()),
					FormatIV(p.RV.Float()),
				)
			}
			table.Render()
			return nil
		},
	}

	series.bind(cmd)
	cmd.Flags().StringVar(&expiry, "expiry", string(history.ExpiryTarget), "nearest or target")
	return cmd
}

func newSkewCmd(app *App) *cobra.Command {
	var (
		series seriesFlags
		kind   string
		delta  float64
	)

	cmd := &cobra.Command{
		Use:   "skew",
		Short: "Delta-targeted implied volatility skew series",
		Long: `Compute the skew of the target-delta call and put, interpolated to the target
days to expiration, for every stored snapshot in the date range. Values are in
percent.

  classic    call IV - put IV
  butterfly  (call IV + put IV) / 2 * ATM IV`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			k := volatility.SkewKind(strings.ToLower(kind))
			if k != volatility.SkewClassic && k != volatility.SkewButterfly {
				return apperrors.NewValidationError("kind", kind, "must be classic or butterfly")
			}
			req, svc, err := series.request(app, cmd)
			if err != nil {
				return err
			}
			req.Skew = k
			if delta > 0 {
				req.Delta = delta
			}
			points, err := svc.Skew(cmd.Context(), req)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(points)
			}

			output.Bold("%s skew at %.0f delta, %dd: %s", k, req.Delta*100, req.TargetDTE, req.Symbol)
			table := NewTable(output, "Time", "Skew", "Call IV", "Put IV", "DTE 1", "DTE 2")
			for _, p := range points {
				table.AddRow(
					FormatDateTime(p.Time),
					output.Signed(p.Skew.Or(0), FormatNull(p.Skew, 2)),
					FormatNull(p.CallIV, 2),
					FormatNull(p.PutIV, 2),
					FormatDTE(p.DTE1.Float()),
					FormatDTE(p.DTE2.Float()),
				)
			}
			table.Render()
			return nil
		},
	}

	series.bind(cmd)
	cmd.Flags().StringVar(&kind, "kind", string(volatility.SkewClassic), "classic or butterfly")
	cmd.Flags().Float64Var(&delta, "delta", 0, "target absolute delta (default: config)")
	return cmd
}

func newRVCmd(app *App) *cobra.Command {
	var (
		ticker string
		at     string
		days   int
	)

	cmd := &cobra.Command{
		Use:   "rv",
		Short: "Realized volatility estimators over a trailing window",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			if days <= 0 {
				return apperrors.NewValidationError("days", days, "must be positive")
			}
			end := time.Now().In(app.Location())
			if at != "" {
				d, err := chain.ParseDate(at)
				if err != nil {
					return apperrors.NewValidationError("at", at, err.Error())
				}
				y, m, dd := d.Date()
				end = time.Date(y, m, dd, 0, 0, 0, 0, app.Location()).AddDate(0, 0, 1)
			}

			ds, err := app.Store()
			if err != nil {
				return err
			}
			source := app.BarSource(ds)
			symbol := app.priceTicker(ctx, ds, ticker)
			fetch := func(interval models.Interval) []models.Bar {
				bars, err := source.Bars(ctx, marketdata.BarRequest{
					Ticker: symbol, Interval: interval, From: end.AddDate(0, 0, -days), To: end,
				})
				if err != nil {
					app.Logger.Warn().Err(err).Str("interval", string(interval)).Msg("Bars unavailable")
				}
				return bars
			}
			daily := fetch(models.Interval1d)
			hourly := fetch(models.Interval1h)

			result := map[string]models.NullFloat{
				"close_to_close": models.FromFloat(volatility.DailyVol(daily)),
				"parkinson":      models.FromFloat(volatility.ParkinsonVol(daily)),
				"intraday":       models.FromFloat(volatility.IntradayVol(hourly)),
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"ticker":      symbol,
					"window_days": days,
					"end":         end,
					"daily_bars":  len(daily),
					"hourly_bars": len(hourly),
					"rv":          result,
				})
			}

			output.Bold("Realized volatility: %s, %d days to %s", symbol, days, FormatDateTime(end))
			table := NewTable(output, "Estimator", "Bars", "Annualised")
			table.AddRow("Close-to-close (1d)", fmt.Sprint(len(daily)), FormatIV(result["close_to_close"].Float()))
			table.AddRow("Parkinson (1d)", fmt.Sprint(len(daily)), FormatIV(result["parkinson"].Float()))
			table.AddRow("Intraday (1h)", fmt.Sprint(len(hourly)), FormatIV(result["intraday"].Float()))
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&ticker, "ticker", "", "option symbol or price ticker")
	cmd.Flags().StringVar(&at, "at", "", "last day of the window (default: now)")
	cmd.Flags().IntVar(&days, "days", 30, "window length in calendar days")
	cmd.MarkFlagRequired("ticker")
	return cmd
}
