package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"options-analyzer/internal/analysis/aggregate"
	"options-analyzer/internal/analysis/variation"
	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/logging"
	"options-analyzer/internal/models"
)

func addOICommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "oi",
		Short: "Open interest and volume analysis",
	}
	cmd.AddCommand(newOIStrikeCmd(app))
	cmd.AddCommand(newOIExpirationCmd(app))
	cmd.AddCommand(newOIVariationCmd(app))
	rootCmd.AddCommand(cmd)
}

// volumeStatsJSON carries the put/call ratio as a nullable so an infinite
// ratio encodes as null.
type volumeStatsJSON struct {
	Call         aggregate.SideStats `json:"call"`
	Put          aggregate.SideStats `json:"put"`
	PutCallRatio models.NullFloat    `json:"put_call_ratio"`
}

func toVolumeStatsJSON(s aggregate.VolumeStats) volumeStatsJSON {
	return volumeStatsJSON{Call: s.Call, Put: s.Put, PutCallRatio: nullable(s.PutCallRatio)}
}

func resolveMetric(name string) (aggregate.Metric, error) {
	m, ok := aggregate.MetricByName(name)
	if !ok {
		return aggregate.Metric{}, apperrors.NewValidationError("metric", name, "must be volume, open_interest or adj_volume")
	}
	return m, nil
}

func newOIStrikeCmd(app *App) *cobra.Command {
	var (
		ref     snapshotRef
		filters chainFlags
		metric  string
	)

	cmd := &cobra.Command{
		Use:   "strike",
		Short: "Open interest and volume by strike",
		Example: `  optanalyzer oi strike --ticker SPX --metric open_interest
  optanalyzer oi strike --ticker SPX --select Peak --exp 30 --days --strike-min 4800 --strike-max 5400`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			start := time.Now()

			m, err := resolveMetric(metric)
			if err != nil {
				return err
			}
			ds, err := app.Store()
			if err != nil {
				return err
			}
			snap, err := ref.load(cmd.Context(), ds)
			if err != nil {
				return err
			}
			rows, err := filters.apply(snap.Rows)
			if err != nil {
				return err
			}

			pivot := aggregate.ByStrike(rows, aggregate.StandardMetrics()...)
			stats := aggregate.Summarize(pivot, aggregate.Volume)
			logging.LogAnalysis(logging.WithTicker(app.Logger, snap.Meta.Ticker), "oi_strike", snap.Meta.Ticker, len(rows), time.Since(start))

			if output.IsJSON() {
				type row struct {
					Strike float64        `json:"strike"`
					Cell   aggregate.Cell `json:"value"`
				}
				out := make([]row, pivot.Len())
				for i, k := range pivot.Keys {
					out[i] = row{Strike: k, Cell: pivot.Cell(m.Name, i)}
				}
				return output.JSON(map[string]interface{}{
					"snapshot":     snapshotLabel(snap.Meta),
					"metric":       m.Name,
					"strikes":      out,
					"volume_stats": toVolumeStatsJSON(stats),
				})
			}

			output.Bold("%s by strike: %s", m.Name, snapshotLabel(snap.Meta))
			if pivot.Len() == 0 {
				output.Warning("No rows match the filters")
				return nil
			}
			renderPivot(output, pivot.Len(), func(i int) string { return FormatNumber(pivot.Keys[i], 2) },
				func(i int) aggregate.Cell { return pivot.Cell(m.Name, i) }, "Strike")
			output.Println()
			renderVolumeStats(output, stats)
			return nil
		},
	}

	ref.bind(cmd, "", "snapshot")
	filters.bind(cmd)
	cmd.Flags().StringVar(&metric, "metric", aggregate.Volume, "metric: volume, open_interest or adj_volume")
	return cmd
}

func newOIExpirationCmd(app *App) *cobra.Command {
	var (
		ref     snapshotRef
		filters chainFlags
		metric  string
	)

	cmd := &cobra.Command{
		Use:   "expiration",
		Short: "Open interest and volume by expiration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			start := time.Now()

			m, err := resolveMetric(metric)
			if err != nil {
				return err
			}
			ds, err := app.Store()
			if err != nil {
				return err
			}
			snap, err := ref.load(cmd.Context(), ds)
			if err != nil {
				return err
			}
			rows, err := filters.apply(snap.Rows)
			if err != nil {
				return err
			}

			axis := filters.axis()
			pivot := aggregate.ByExpiration(rows, axis, m)
			logging.LogAnalysis(logging.WithTicker(app.Logger, snap.Meta.Ticker), "oi_expiration", snap.Meta.Ticker, len(rows), time.Since(start))

			if output.IsJSON() {
				type row struct {
					Expiration string         `json:"expiration"`
					Cell       aggregate.Cell `json:"value"`
				}
				out := make([]row, pivot.Len())
				for i, k := range pivot.Keys {
					out[i] = row{Expiration: axis.Format(k), Cell: pivot.Cell(m.Name, i)}
				}
				return output.JSON(map[string]interface{}{
					"snapshot":    snapshotLabel(snap.Meta),
					"metric":      m.Name,
					"expirations": out,
				})
			}

			output.Bold("%s by expiration: %s", m.Name, snapshotLabel(snap.Meta))
			if pivot.Len() == 0 {
				output.Warning("No rows match the filters")
				return nil
			}
			renderPivot(output, pivot.Len(), func(i int) string { return axis.Format(pivot.Keys[i]) },
				func(i int) aggregate.Cell { return pivot.Cell(m.Name, i) }, "Expiration")
			return nil
		},
	}

	ref.bind(cmd, "", "snapshot")
	filters.bind(cmd)
	cmd.Flags().StringVar(&metric, "metric", aggregate.OpenInterest, "metric: volume, open_interest or adj_volume")
	return cmd
}

func newOIVariationCmd(app *App) *cobra.Command {
	var (
		current, compare snapshotRef
		filters          chainFlags
		optionType       string
		mode             string
	)

	cmd := &cobra.Command{
		Use:   "variation",
		Short: "Per-strike variation between two snapshots",
		Long: `Compare one option side between two snapshots of the same underlying.
The variation at each strike is (current - compare) / compare * 100.

In oi mode the compare snapshot contributes its volume unless
analytics.symmetric_oi is set in the configuration.`,
		Example: "  optanalyzer oi variation --ticker SPX --date 2024-03-05 --cmp-ticker SPX --cmp-date 2024-03-04 --type put --mode oi",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			start := time.Now()

			m, err := variation.ParseMode(mode)
			if err != nil {
				return err
			}
			// Unknown types fall back to calls inside Compare.
			typ, _ := models.ParseOptionType(optionType)
			sel, err := filters.options()
			if err != nil {
				return err
			}
			if compare.ticker == "" {
				compare.ticker = current.ticker
			}

			ds, err := app.Store()
			if err != nil {
				return err
			}
			snap1, err := current.load(ctx, ds)
			if err != nil {
				return err
			}
			snap2, err := compare.load(ctx, ds)
			if err != nil {
				return err
			}

			points, err := variation.Compare(snap1.Rows, snap2.Rows, variation.Options{
				Type:        typ,
				Axis:        sel.Axis,
				Expiration:  sel.Expiration,
				StrikeLow:   sel.StrikeLow,
				StrikeHigh:  sel.StrikeHigh,
				Mode:        m,
				SymmetricOI: app.Config.Analytics.SymmetricOI,
			})
			if err != nil {
				return err
			}

			lookup := app.Lookup(ds)
			spot1 := app.spotFor(ctx, ds, lookup, snap1)
			spot2 := app.spotFor(ctx, ds, lookup, snap2)
			stats := variation.Summarize(points, spot1, spot2)
			logging.LogAnalysis(logging.WithTicker(app.Logger, snap1.Meta.Ticker), "oi_variation", snap1.Meta.Ticker, len(points), time.Since(start))

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"current": snapshotLabel(snap1.Meta),
					"compare": snapshotLabel(snap2.Meta),
					"mode":    m,
					"points":  points,
					"stats": map[string]models.NullFloat{
						"max_var":        nullable(stats.Max),
						"max_var_strike": nullable(stats.MaxStrike),
						"min_var":        nullable(stats.Min),
						"min_var_strike": nullable(stats.MinStrike),
						"mean":           nullable(stats.Mean),
						"median":         nullable(stats.Median),
						"std":            nullable(stats.Std),
						"st_var":         nullable(stats.SpotVariation),
					},
				})
			}

			output.Bold("%s variation: %s vs %s", m, snapshotLabel(snap1.Meta), snapshotLabel(snap2.Meta))
			if len(points) == 0 {
				output.Warning("No common strikes between the snapshots")
				return nil
			}
			table := NewTable(output, "Strike", "Current", "Compare", "Variation")
			for _, p := range points {
				table.AddRow(
					FormatNumber(p.Strike, 2),
					FormatNumber(p.Current, 0),
					FormatNumber(p.Compare, 0),
					output.Signed(p.Pct, FormatSigned(p.Pct, 2)+"%"),
				)
			}
			table.Render()
			output.Println()
			output.Printf("  Max:    %s%% at %s\n", FormatSigned(stats.Max, 2), FormatNumber(stats.MaxStrike, 2))
			output.Printf("  Min:    %s%% at %s\n", FormatSigned(stats.Min, 2), FormatNumber(stats.MinStrike, 2))
			output.Printf("  Mean:   %s%%  Median: %s%%  Std: %s\n",
				FormatSigned(stats.Mean, 2), FormatSigned(stats.Median, 2), FormatNumber(stats.Std, 2))
			output.Printf("  Spot:   %s → %s (%s)\n", FormatNumber(spot2, 2), FormatNumber(spot1, 2), FormatRatio(stats.SpotVariation))
			return nil
		},
	}

	current.bind(cmd, "", "current snapshot")
	compare.bind(cmd, "cmp", "compare snapshot")
	filters.bind(cmd)
	cmd.Flags().StringVar(&optionType, "type", "call", "option side: call or put")
	cmd.Flags().StringVar(&mode, "mode", string(variation.ModeVolume), "metric mode: volume, volAndOI or oi")
	return cmd
}

// renderPivot prints one metric of a pivot as a call/put/All table.
func renderPivot(output *Output, n int, label func(int) string, cell func(int) aggregate.Cell, keyHeader string) {
	peak := 0.0
	for i := 0; i < n; i++ {
		if v := cell(i).All.Or(0); v > peak {
			peak = v
		}
	}

	table := NewTable(output, keyHeader, "Call", "Put", "All", "")
	var totals aggregate.Cell
	sum := func(acc *models.NullFloat, v models.NullFloat) {
		if v.Valid {
			*acc = models.Some(acc.Value + v.Value)
		}
	}
	for i := 0; i < n; i++ {
		c := cell(i)
		table.AddRow(
			label(i),
			FormatNull(c.Call, 0),
			FormatNull(c.Put, 0),
			FormatNull(c.All, 0),
			output.dim.Sprint(Sparkbar(c.All.Or(0), peak, 20)),
		)
		sum(&totals.Call, c.Call)
		sum(&totals.Put, c.Put)
		sum(&totals.All, c.All)
	}
	table.AddRow("Total", FormatNull(totals.Call, 0), FormatNull(totals.Put, 0), FormatNull(totals.All, 0), "")
	table.Render()
}

func renderVolumeStats(output *Output, s aggregate.VolumeStats) {
	output.Bold("Volume statistics")
	side := func(name string, st aggregate.SideStats) {
		output.Printf("  %-5s total %s  max %s @ %s  min %s @ %s  median strike %s\n", name,
			FormatNumber(st.Total, 0),
			FormatNumber(st.Max, 0), FormatNumber(st.MaxStrike, 2),
			FormatNumber(st.Min, 0), FormatNumber(st.MinStrike, 2),
			FormatNumber(st.MedianStrike, 2))
	}
	side("Call", s.Call)
	side("Put", s.Put)
	output.Printf("  Put/Call ratio: %s\n", FormatRatio(s.PutCallRatio))
	if s.PutCallRatio > 1 {
		output.Dim("  %s", fmt.Sprintf("puts lead calls by %.0f%%", (s.PutCallRatio-1)*100))
	}
}
