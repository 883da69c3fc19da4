// Package montecarlo simulates the expiry payoff distribution of an option
// combination under geometric Brownian motion.
package montecarlo

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"options-analyzer/internal/analysis/payoff"
	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/models"
	"options-analyzer/pkg/utils"
)

// TradingDays is the annualisation basis.
const TradingDays = 252

var horizonDays = []struct {
	code string
	days int
}{
	{"1w", 5},
	{"2w", 10},
	{"1mo", 21},
	{"3mo", 63},
	{"6mo", 126},
	{"1y", 252},
	{"2y", 730},
}

// ParseHorizon maps a horizon code to trading days. "min" and "max" pick the
// shortest and longest leg maturity.
func ParseHorizon(code string, legs []models.OptionLeg) (int, error) {
	code = strings.TrimSpace(code)
	for _, h := range horizonDays {
		if strings.Contains(code, h.code) {
			return h.days, nil
		}
	}

	pickMin := strings.Contains(code, "min")
	if !pickMin && !strings.Contains(code, "max") {
		return 0, apperrors.NewValidationError("horizon", code, "expected 1w, 2w, 1mo, 3mo, 6mo, 1y, 2y, min or max")
	}
	if len(legs) == 0 {
		return 0, apperrors.NewValidationErrorFor(apperrors.ErrInvalidStrategy, "horizon", code, "min/max needs at least one leg")
	}

	best := 0
	for i, leg := range legs {
		d, err := leg.MaturityDays()
		if err != nil {
			return 0, apperrors.NewValidationError("maturity", leg.Maturity, err.Error())
		}
		if i == 0 || (pickMin && d < best) || (!pickMin && d > best) {
			best = d
		}
	}
	return best, nil
}

// Scale converts annual drift and volatility to a horizon of days trading days.
func Scale(mu, sigma float64, days int) (float64, float64) {
	t := float64(days) / TradingDays
	return mu * t, sigma * math.Sqrt(t)
}

// ParseRate parses a percentage such as "12.5%" or "12.5" into 0.125.
func ParseRate(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, "%", "")), 64)
	if err != nil {
		return 0, apperrors.NewValidationError("rate", s, "not a number")
	}
	return v / 100, nil
}

// EstimateDriftVol annualises the mean and sample standard deviation of daily
// log returns of closes.
func EstimateDriftVol(closes []float64) (mu, sigma float64, err error) {
	returns := make([]float64, 0, len(closes))
	for i := 1; i < len(closes); i++ {
		r := math.Log(closes[i] / closes[i-1])
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		returns = append(returns, r)
	}
	if len(returns) < 2 {
		return 0, 0, apperrors.Wrapf(apperrors.ErrInsufficientData, "need at least 3 closes, have %d", len(closes))
	}
	mu = stat.Mean(returns, nil) * TradingDays
	sigma = stat.StdDev(returns, nil) * math.Sqrt(TradingDays)
	return mu, sigma, nil
}

// Params are the inputs of one simulation.
type Params struct {
	Spot        float64
	Mu          float64 // annual drift
	Sigma       float64 // annual volatility
	Days        int
	Simulations int
	Seed        int64
}

// Result is a simulated payoff distribution.
type Result struct {
	Terminal  []float64    `json:"-"`
	Payoffs   []float64    `json:"-"`
	Stats     Distribution `json:"stats"`
	Histogram Histogram    `json:"histogram"`
}

// Terminal draws n terminal prices S0·exp((mu - σ²/2) + σZ) in a single
// step, mu and sigma already scaled to the horizon.
func Terminal(spot, mu, sigma float64, n int, seed int64) []float64 {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(uint64(seed))}
	drift := mu - 0.5*sigma*sigma
	out := make([]float64, n)
	for i := range out {
		out[i] = spot * math.Exp(drift+sigma*normal.Rand())
	}
	return out
}

// Simulate draws terminal prices and evaluates the legs' payoff on each.
func Simulate(legs []models.OptionLeg, p Params) (*Result, error) {
	if p.Simulations <= 0 {
		return nil, apperrors.NewValidationError("simulations", p.Simulations, "must be positive")
	}
	if p.Days <= 0 {
		return nil, apperrors.NewValidationError("horizon", p.Days, "must be positive")
	}
	if err := payoff.Validate(legs); err != nil {
		return nil, err
	}

	mu, sigma := Scale(p.Mu, p.Sigma, p.Days)
	terminal := Terminal(p.Spot, mu, sigma, p.Simulations, p.Seed)

	payoffs := make([]float64, len(terminal))
	for i, s := range terminal {
		v, err := payoff.Evaluate(legs, s)
		if err != nil {
			return nil, err
		}
		payoffs[i] = v
	}

	return &Result{
		Terminal:  terminal,
		Payoffs:   payoffs,
		Stats:     Describe(payoffs),
		Histogram: BuildHistogram(payoffs),
	}, nil
}

// Distribution summarises simulated payoffs.
type Distribution struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std"`
	P5     float64 `json:"p5"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
}

// Describe returns the mean, sample standard deviation and the 5th, 50th and
// 95th linearly interpolated percentiles of values.
func Describe(values []float64) Distribution {
	if len(values) == 0 {
		nan := math.NaN()
		return Distribution{Mean: nan, StdDev: nan, P5: nan, Median: nan, P95: nan}
	}
	return Distribution{
		Mean:   stat.Mean(values, nil),
		StdDev: stat.StdDev(values, nil),
		P5:     utils.Percentile(values, 5),
		Median: utils.Percentile(values, 50),
		P95:    utils.Percentile(values, 95),
	}
}
