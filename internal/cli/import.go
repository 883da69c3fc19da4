package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"options-analyzer/internal/analysis/chain"
	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/logging"
	"options-analyzer/internal/marketdata"
	"options-analyzer/internal/models"
	"options-analyzer/internal/store"
)

func addImportCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import chain snapshots, price bars and underlying definitions",
	}
	cmd.AddCommand(newImportChainCmd(app))
	cmd.AddCommand(newImportBarsCmd(app))
	cmd.AddCommand(newImportUnderlyingCmd(app))
	rootCmd.AddCommand(cmd)
}

func newImportChainCmd(app *App) *cobra.Command {
	var ticker, date, hour string

	cmd := &cobra.Command{
		Use:   "chain <file.csv>",
		Short: "Import an option chain snapshot from CSV",
		Long: `Import an option chain snapshot. The CSV needs a header row with at least
strike, option_type, dte and implied_volatility; other chain columns are read
when present. Re-importing the same ticker, date and hour replaces the snapshot.`,
		Example: "  optanalyzer import chain spx_2024-03-04_15_30.csv --ticker SPX --date 2024-03-04 --hour 15_30",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			start := time.Now()

			d, err := chain.ParseDate(date)
			if err != nil {
				return apperrors.NewValidationError("date", date, err.Error())
			}
			if _, _, err := marketdata.ParseHour(hour); err != nil {
				return apperrors.NewValidationError("hour", hour, err.Error())
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			rows, err := store.ReadChainCSV(f)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return apperrors.NewDataError("chain", ticker, "csv has no rows", apperrors.ErrInsufficientData)
			}
			if ticker == "" {
				ticker = rows[0].UnderlyingSymbol
			}

			ds, err := app.Store()
			if err != nil {
				return err
			}
			snap := models.Snapshot{
				Meta: models.SnapshotMeta{Ticker: ticker, Date: d, Hour: hour},
				Rows: rows,
			}
			if err := ds.SaveSnapshot(cmd.Context(), snap); err != nil {
				return err
			}
			logging.LogAnalysis(logging.WithTicker(app.Logger, ticker), "import_chain", ticker, len(rows), time.Since(start))

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"snapshot": snapshotLabel(snap.Meta),
					"rows":     len(rows),
				})
			}
			output.Success("✓ Imported %d rows into %s", len(rows), snapshotLabel(snap.Meta))
			return nil
		},
	}

	cmd.Flags().StringVar(&ticker, "ticker", "", "snapshot ticker (default: underlying_symbol of the first row)")
	cmd.Flags().StringVar(&date, "date", "", "snapshot date")
	cmd.Flags().StringVar(&hour, "hour", "", "snapshot hour bucket, e.g. 15_30")
	cmd.MarkFlagRequired("date")
	cmd.MarkFlagRequired("hour")
	return cmd
}

func newImportBarsCmd(app *App) *cobra.Command {
	var ticker, interval string

	cmd := &cobra.Command{
		Use:     "bars <file.csv>",
		Short:   "Import OHLCV price bars from CSV",
		Example: "  optanalyzer import bars spx_1h.csv --ticker ^SPX --interval 1h",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			start := time.Now()

			iv := models.Interval(interval)
			switch iv {
			case models.Interval1m, models.Interval1h, models.Interval1d:
			default:
				return apperrors.NewValidationError("interval", interval, "must be 1m, 1h or 1d")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			bars, err := store.ReadBarsCSV(f)
			if err != nil {
				return err
			}

			ds, err := app.Store()
			if err != nil {
				return err
			}
			if err := ds.SaveBars(cmd.Context(), ticker, iv, bars); err != nil {
				return err
			}
			latest, err := ds.GetBarsFreshness(cmd.Context(), ticker, iv)
			if err != nil {
				return err
			}
			logging.LogFetch(logging.WithTicker(app.Logger, ticker), ticker, interval, time.Since(start), nil)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"ticker":   ticker,
					"interval": interval,
					"bars":     len(bars),
					"latest":   latest,
				})
			}
			output.Success("✓ Imported %d %s bars for %s", len(bars), interval, ticker)
			if !latest.IsZero() {
				output.Dim("Latest stored bar: %s", FormatDateTime(latest.In(app.Location())))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ticker, "ticker", "", "price ticker, e.g. ^SPX")
	cmd.Flags().StringVar(&interval, "interval", string(models.Interval1d), "bar interval: 1m, 1h or 1d")
	cmd.MarkFlagRequired("ticker")
	return cmd
}

func newImportUnderlyingCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "underlying <file.json>",
		Short: "Import underlying definitions from JSON",
		Long: `Import underlying definitions keyed by option symbol:

  {"SPX": {"underlying_ticker": "^SPX", "change": "USD",
           "quotation_type": "points", "quotation_type_value": 1, "lot_size": 100}}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			infos, err := store.ReadUnderlyingsJSON(f)
			if err != nil {
				return err
			}

			ds, err := app.Store()
			if err != nil {
				return err
			}
			for symbol, info := range infos {
				if err := ds.SaveUnderlying(cmd.Context(), symbol, info); err != nil {
					return fmt.Errorf("saving %s: %w", symbol, err)
				}
			}
			app.Logger.Info().Int("count", len(infos)).Msg("Underlyings imported")

			if output.IsJSON() {
				return output.JSON(map[string]int{"imported": len(infos)})
			}
			output.Success("✓ Imported %d underlying(s)", len(infos))
			return nil
		},
	}
}
