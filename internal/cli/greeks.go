package cli

import (
	"math"
	"time"

	"github.com/spf13/cobra"

	"options-analyzer/internal/analysis/aggregate"
	"options-analyzer/internal/analysis/exposure"
	"options-analyzer/internal/logging"
)

func addGreeksCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "greeks",
		Short: "Dealer gamma, delta and vanna exposure by strike",
	}
	cmd.AddCommand(newExposureCmd(app, "gex", "Gamma exposure (GEX) by strike", exposure.GEX, exposure.AbsGEX))
	cmd.AddCommand(newExposureCmd(app, "dex", "Delta exposure (DEX) by strike", exposure.DEX, ""))
	cmd.AddCommand(newExposureCmd(app, "vex", "Vanna exposure (VEX) by strike", exposure.VEX, exposure.AbsVEX))
	rootCmd.AddCommand(cmd)
}

// exposureInputs are the market values an exposure computation used.
type exposureInputs struct {
	Spot    float64 `json:"spot"`
	LotSize int     `json:"lot_size"`
	Rate    float64 `json:"rate_pct,omitempty"`
}

func newExposureCmd(app *App, use, short, signed, abs string) *cobra.Command {
	var (
		ref     snapshotRef
		filters chainFlags
		lot     int
		spot    float64
		rate    float64
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			start := time.Now()

			ds, err := app.Store()
			if err != nil {
				return err
			}
			snap, err := ref.load(ctx, ds)
			if err != nil {
				return err
			}
			rows, err := filters.apply(snap.Rows)
			if err != nil {
				return err
			}

			lookup := app.Lookup(ds)
			in := exposureInputs{Spot: spot, LotSize: app.lotSize(ctx, ds, snap.Meta.Ticker, lot)}
			if in.Spot <= 0 {
				in.Spot = app.spotFor(ctx, ds, lookup, snap)
			}

			var pivot *aggregate.Pivot[float64]
			switch signed {
			case exposure.GEX:
				pivot = exposure.Gamma(rows, in.Spot, in.LotSize)
			case exposure.DEX:
				pivot = exposure.Delta(rows, in.LotSize)
			default:
				in.Rate = rate
				if math.IsNaN(in.Rate) {
					in.Rate = lookup.RiskFreeRate(ctx, snap.Meta.Date)
				}
				pivot = exposure.VannaExposure(rows, exposure.VannaParams{
					Spot:        in.Spot,
					LotSize:     in.LotSize,
					RatePercent: in.Rate,
					TradingDays: app.Config.Analytics.TradingDays,
					SingleSpot:  app.Config.Analytics.SingleSpotVEX,
				})
			}
			logging.LogAnalysis(logging.WithTicker(app.Logger, snap.Meta.Ticker), use, snap.Meta.Ticker, len(rows), time.Since(start))

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"snapshot": snapshotLabel(snap.Meta),
					"inputs":   in,
					"strikes":  pivot.Rows(),
				})
			}

			output.Bold("%s: %s", short, snapshotLabel(snap.Meta))
			output.Dim("spot %s  lot %d", FormatNumber(in.Spot, 2), in.LotSize)
			if signed == exposure.VEX {
				output.Dim("rate %s%%", FormatNumber(in.Rate, 2))
			}
			if pivot.Len() == 0 {
				output.Warning("No rows match the filters")
				return nil
			}
			renderExposure(output, pivot, signed, abs)
			return nil
		},
	}

	ref.bind(cmd, "", "snapshot")
	filters.bind(cmd)
	cmd.Flags().IntVar(&lot, "lot", 0, "contract multiplier (default: stored lot size, else 100)")
	cmd.Flags().Float64Var(&spot, "spot", 0, "underlying price (default: resolved from stored bars)")
	if signed == exposure.VEX {
		cmd.Flags().Float64Var(&rate, "rate", math.NaN(), "risk-free rate in percent (default: rate proxy close)")
	}
	return cmd
}

func renderExposure(output *Output, pivot *aggregate.Pivot[float64], signed, abs string) {
	headers := []string{"Strike", "Call", "Put", "Net"}
	if abs != "" {
		headers = append(headers, "Abs")
	}
	table := NewTable(output, headers...)

	peak, peakStrike := 0.0, math.NaN()
	for i, k := range pivot.Keys {
		c := pivot.Cell(signed, i)
		net := c.All.Or(0)
		cells := []string{
			FormatNumber(k, 2),
			FormatNull(c.Call, 0),
			FormatNull(c.Put, 0),
			output.Signed(net, FormatSigned(net, 0)),
		}
		if abs != "" {
			cells = append(cells, FormatNull(pivot.Cell(abs, i).All, 0))
		}
		table.AddRow(cells...)
		if math.Abs(net) > peak {
			peak, peakStrike = math.Abs(net), k
		}
	}
	table.Render()
	output.Println()

	net := pivot.Total(signed, aggregate.ColAll)
	output.Printf("  Net total:  %s\n", output.Signed(net, FormatSigned(net, 0)))
	if abs != "" {
		output.Printf("  Abs total:  %s\n", FormatNumber(pivot.Total(abs, aggregate.ColAll), 0))
	}
	output.Printf("  Peak strike: %s\n", FormatNumber(peakStrike, 2))
}

