package cli

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"options-analyzer/internal/analysis/montecarlo"
	"options-analyzer/internal/analysis/payoff"
	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/logging"
	"options-analyzer/internal/marketdata"
	"options-analyzer/internal/models"
	"options-analyzer/internal/store"
)

const defaultMaturity = "30 days"

func addStrategyCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPayoffCmd(app))
	rootCmd.AddCommand(newMonteCarloCmd(app))
}

// parseLeg parses "<pos> <type> <strike> <premium> [days]", for example
// "long call 5000 12.5 30". The premium is in quoted units.
func parseLeg(s string) (models.OptionLeg, error) {
	fields := strings.Fields(s)
	if len(fields) < 4 || len(fields) > 5 {
		return models.OptionLeg{}, apperrors.NewValidationError("leg", s, "expected: <long|short> <call|put> <strike> <premium> [days]")
	}
	pos, err := models.ParsePosition(fields[0])
	if err != nil {
		return models.OptionLeg{}, err
	}
	typ, err := models.ParseOptionType(fields[1])
	if err != nil {
		return models.OptionLeg{}, err
	}
	strike, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return models.OptionLeg{}, apperrors.NewValidationError("strike", fields[2], "not a number")
	}
	premium, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return models.OptionLeg{}, apperrors.NewValidationError("premium", fields[3], "not a number")
	}
	maturity := defaultMaturity
	if len(fields) == 5 {
		days, err := strconv.Atoi(fields[4])
		if err != nil || days < 0 {
			return models.OptionLeg{}, apperrors.NewValidationError("maturity", fields[4], "must be a number of days")
		}
		maturity = fmt.Sprintf("%d days", days)
	}
	return models.OptionLeg{Type: typ, Position: pos, Strike: strike, Premium: premium, Maturity: maturity}, nil
}

// legFlags are the option combination inputs shared by payoff and montecarlo.
type legFlags struct {
	legs     []string
	symbol   string
	spot     float64
	strategy string
	cash     bool
}

func (f *legFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.legs, "leg", nil, `option leg "<long|short> <call|put> <strike> <premium> [days]" (repeatable)`)
	cmd.Flags().StringVar(&f.symbol, "ticker", "", "option symbol used for the premium factor and spot")
	cmd.Flags().Float64Var(&f.spot, "spot", 0, "underlying price (default: latest stored close)")
	cmd.Flags().StringVar(&f.strategy, "strategy", string(payoff.OpenPayoff), "simplePayoff or openPayoff")
	cmd.Flags().BoolVar(&f.cash, "cash-premium", false, "premiums are already in cash; skip the premium factor")
	cmd.MarkFlagRequired("leg")
}

// resolved holds the legs in cash terms and the spot they are evaluated at.
type resolved struct {
	Legs   []models.OptionLeg `json:"legs"`
	Labels []string           `json:"labels"`
	Spot   float64            `json:"spot"`
	Factor float64            `json:"premium_factor"`
	ticker string
}

func (f legFlags) resolve(ctx context.Context, app *App, ds store.DataStore, lookup *marketdata.Lookup) (*resolved, error) {
	legs := make([]models.OptionLeg, 0, len(f.legs))
	for _, s := range f.legs {
		leg, err := parseLeg(s)
		if err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}
	if err := payoff.CheckStrategy(payoff.Strategy(f.strategy), legs); err != nil {
		return nil, err
	}

	r := &resolved{Factor: 1, Spot: f.spot, ticker: f.symbol}
	if f.symbol != "" {
		r.ticker = app.priceTicker(ctx, ds, f.symbol)
		if info, ok := app.underlying(ctx, ds, f.symbol); ok && !f.cash {
			factor, err := info.PremiumFactor()
			if err != nil {
				return nil, err
			}
			r.Factor = factor
		}
	}
	for i := range legs {
		legs[i].Premium *= r.Factor
	}
	r.Legs = legs

	if r.Spot <= 0 {
		if r.ticker == "" {
			return nil, apperrors.NewValidationError("spot", f.spot, "give --spot or --ticker")
		}
		r.Spot = lookup.LastClose(ctx, r.ticker, time.Now())
		if r.Spot <= 0 {
			return nil, apperrors.NewDataError("spot", r.ticker, "no stored close; give --spot", apperrors.ErrDataNotFound)
		}
	}

	r.Labels = make([]string, len(legs))
	for i, leg := range legs {
		r.Labels[i] = payoff.Label(i, leg)
	}
	return r, nil
}

func newPayoffCmd(app *App) *cobra.Command {
	var (
		legs  legFlags
		steps int
	)

	cmd := &cobra.Command{
		Use:   "payoff",
		Short: "Expiry payoff of an option combination",
		Long: `Evaluate the payoff at expiry of each leg and of the whole combination over
an integer price range derived from the strikes and the spot. Quoted premiums
are converted to cash with the premium factor of the underlying.`,
		Example: `  optanalyzer payoff --ticker SPX --leg "long call 5000 42.5" --leg "short call 5100 18"
  optanalyzer payoff --spot 100 --cash-premium --leg "long put 95 2.1 30"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			start := time.Now()

			ds, err := app.Store()
			if err != nil {
				return err
			}
			r, err := legs.resolve(ctx, app, ds, app.Lookup(ds))
			if err != nil {
				return err
			}

			curve, err := payoff.Build(r.Legs, r.Spot)
			if err != nil {
				return err
			}
			summary := payoff.Summarize(curve, r.Spot)
			logging.LogAnalysis(app.Logger, "payoff", r.ticker, len(r.Legs), time.Since(start))

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"inputs":  r,
					"summary": summary,
					"curve":   curve,
				})
			}

			output.Bold("Payoff at expiry, spot %s", FormatNumber(r.Spot, 2))
			for _, l := range r.Labels {
				output.Println("  " + l)
			}
			output.Println()
			renderPayoffCurve(output, curve, steps)
			output.Println()

			if summary.PnL.Valid {
				output.Printf("  P&L at spot:  %s\n", output.Signed(summary.PnL.Value, FormatSigned(summary.PnL.Value, 2)))
			} else {
				output.Printf("  P&L at spot:  not found\n")
			}
			output.Printf("  Max return:   %s\n", FormatSigned(summary.Max, 2))
			output.Printf("  Max loss:     %s\n", FormatSigned(summary.Min, 2))
			if summary.BreakEven.Valid {
				output.Printf("  Break-even:   %s (%s, %s%%)\n", FormatNumber(summary.BreakEven.Value, 0),
					FormatSigned(summary.Distance.Value, 0), FormatSigned(summary.DistancePct.Float(), 2))
			} else {
				output.Printf("  Break-even:   Beyond reach\n")
			}
			return nil
		},
	}

	legs.bind(cmd)
	cmd.Flags().IntVar(&steps, "rows", 15, "price rows shown in the table")
	return cmd
}

// renderPayoffCurve prints up to n evenly spaced prices of the curve.
func renderPayoffCurve(output *Output, c *payoff.Curve, n int) {
	if c.Len() == 0 || n <= 0 {
		return
	}
	headers := []string{"Price"}
	for i := range c.Legs {
		headers = append(headers, fmt.Sprintf("(%d)", i+1))
	}
	headers = append(headers, "Global")
	table := NewTable(output, headers...)

	stride := int(math.Max(1, math.Ceil(float64(c.Len())/float64(n))))
	for j := 0; j < c.Len(); j += stride {
		cells := []string{FormatNumber(float64(c.Prices[j]), 0)}
		for i := range c.Legs {
			cells = append(cells, FormatNumber(c.Legs[i][j], 2))
		}
		g := c.Global[j]
		cells = append(cells, output.Signed(g, FormatSigned(g, 2)))
		table.AddRow(cells...)
	}
	table.Render()
}

func newMonteCarloCmd(app *App) *cobra.Command {
	var (
		legs     legFlags
		horizon  string
		sims     int
		seed     int64
		mu       string
		sigma    string
		lookback int
	)

	cmd := &cobra.Command{
		Use:     "montecarlo",
		Aliases: []string{"mc"},
		Short:   "Simulate the payoff distribution of an option combination",
		Long: `Draw terminal prices of the underlying from geometric Brownian motion over the
horizon and evaluate the combination's payoff on each. Drift and volatility are
estimated from stored daily closes unless --mu and --sigma are given.

Horizons: 1w, 2w, 1mo, 3mo, 6mo, 1y, 2y, or min/max of the leg maturities.`,
		Example: `  optanalyzer montecarlo --ticker SPX --leg "long call 5000 42.5 30" --horizon min
  optanalyzer mc --spot 100 --cash-premium --leg "long put 95 2.1" --mu 5% --sigma 20% --seed 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			start := time.Now()

			ds, err := app.Store()
			if err != nil {
				return err
			}
			r, err := legs.resolve(ctx, app, ds, app.Lookup(ds))
			if err != nil {
				return err
			}
			days, err := montecarlo.ParseHorizon(horizon, r.Legs)
			if err != nil {
				return err
			}

			params := montecarlo.Params{Spot: r.Spot, Days: days, Simulations: sims, Seed: seed}
			if params.Simulations <= 0 {
				params.Simulations = app.Config.MonteCarlo.Simulations
			}
			if params.Seed == 0 {
				params.Seed = app.Config.MonteCarlo.Seed
			}
			if params.Seed == 0 {
				params.Seed = time.Now().UnixNano()
			}
			if params.Mu, params.Sigma, err = driftVol(ctx, app, ds, r.ticker, mu, sigma, lookback); err != nil {
				return err
			}

			logging.LogSimulation(logging.WithTicker(app.Logger, r.ticker), params.Simulations, float64(days), params.Seed)
			result, err := montecarlo.Simulate(r.Legs, params)
			if err != nil {
				return err
			}
			logging.LogAnalysis(app.Logger, "montecarlo", r.ticker, params.Simulations, time.Since(start))

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"inputs":    r,
					"params":    params,
					"stats":     result.Stats,
					"histogram": result.Histogram,
				})
			}

			output.Bold("Monte Carlo: %s paths over %d trading days", FormatNumber(float64(params.Simulations), 0), days)
			for _, l := range r.Labels {
				output.Println("  " + l)
			}
			output.Dim("spot %s  mu %.2f%%  sigma %.2f%%  seed %d",
				FormatNumber(r.Spot, 2), params.Mu*100, params.Sigma*100, params.Seed)
			output.Println()

			st := result.Stats
			output.Bold("Payoff distribution")
			output.Printf("  Mean %s  Std %s\n", FormatSigned(st.Mean, 2), FormatNumber(st.StdDev, 2))
			output.Printf("  P5 %s  Median %s  P95 %s\n", FormatSigned(st.P5, 2), FormatSigned(st.Median, 2), FormatSigned(st.P95, 2))
			output.Println()

			h := result.Histogram
			output.Bold("Histogram")
			output.Printf("  Most likely:  %s to %s (%s)\n", FormatNumber(h.MaxProbRange.Lo, 0), FormatNumber(h.MaxProbRange.Hi, 0), FormatIV(h.MaxProb))
			output.Printf("  Least likely: %s to %s (%s)\n", FormatNumber(h.MinProbRange.Lo, 0), FormatNumber(h.MinProbRange.Hi, 0), FormatIV(h.MinProb))
			output.Printf("  Max payoff:   %s (%s)\n", FormatSigned(h.MaxPayoff, 2), FormatIV(h.MaxPayoffProb))
			output.Printf("  Min payoff:   %s (%s)\n", FormatSigned(h.MinPayoff, 2), FormatIV(h.MinPayoffProb))
			output.Printf("  Profitable:   %s\n", output.success.Sprint(FormatIV(h.Positive)))
			output.Printf("  Not:          %s\n", output.failure.Sprint(FormatIV(h.NonPositive)))
			return nil
		},
	}

	legs.bind(cmd)
	cmd.Flags().StringVar(&horizon, "horizon", "1mo", "1w, 2w, 1mo, 3mo, 6mo, 1y, 2y, min or max")
	cmd.Flags().IntVar(&sims, "sims", 0, "number of simulated paths (default: config)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (default: config, 0 for time-based)")
	cmd.Flags().StringVar(&mu, "mu", "", "annual drift, e.g. 5%")
	cmd.Flags().StringVar(&sigma, "sigma", "", "annual volatility, e.g. 20%")
	cmd.Flags().IntVar(&lookback, "lookback", 365, "calendar days of daily closes for drift and volatility")
	return cmd
}

// driftVol returns the annual drift and volatility from the flags, estimating
// whichever is missing from stored daily closes.
func driftVol(ctx context.Context, app *App, ds store.DataStore, ticker, muFlag, sigmaFlag string, lookback int) (float64, float64, error) {
	var mu, sigma float64
	var err error
	if muFlag != "" {
		if mu, err = montecarlo.ParseRate(muFlag); err != nil {
			return 0, 0, err
		}
	}
	if sigmaFlag != "" {
		if sigma, err = montecarlo.ParseRate(sigmaFlag); err != nil {
			return 0, 0, err
		}
	}
	if muFlag != "" && sigmaFlag != "" {
		return mu, sigma, nil
	}
	if ticker == "" {
		return 0, 0, apperrors.NewValidationError("sigma", sigmaFlag, "give --mu and --sigma or --ticker")
	}

	end := time.Now()
	bars, err := app.BarSource(ds).Bars(ctx, marketdata.BarRequest{
		Ticker: ticker, Interval: models.Interval1d, From: end.AddDate(0, 0, -lookback), To: end,
	})
	if err != nil {
		return 0, 0, err
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	estMu, estSigma, err := montecarlo.EstimateDriftVol(closes)
	if err != nil {
		return 0, 0, apperrors.NewDataError("closes", ticker, "cannot estimate drift and volatility", err)
	}
	lg := logging.FromContext(ctx)
	lg.Debug().Float64("mu", estMu).Float64("sigma", estSigma).Int("closes", len(closes)).Msg("Estimated drift and volatility")
	if muFlag == "" {
		mu = estMu
	}
	if sigmaFlag == "" {
		sigma = estSigma
	}
	return mu, sigma, nil
}
