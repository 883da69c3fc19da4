package payoff

import (
	"math"

	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/models"
)

// Strategy selects the payoff editor mode.
type Strategy string

const (
	// SimplePayoff accepts a single option.
	SimplePayoff Strategy = "simplePayoff"
	// OpenPayoff accepts any number of legs.
	OpenPayoff Strategy = "openPayoff"
)

// ErrSimpleTooManyLegs is the message shown when a simple payoff gets more than one leg.
const ErrSimpleTooManyLegs = "Simple Payoff strategy accepts only one option."

// CheckStrategy validates the leg count for a strategy. It does not look at
// the legs themselves; see Validate.
func CheckStrategy(s Strategy, legs []models.OptionLeg) error {
	switch s {
	case SimplePayoff:
		if len(legs) > 1 {
			return apperrors.NewValidationErrorFor(apperrors.ErrInvalidStrategy, "legs", len(legs), ErrSimpleTooManyLegs)
		}
		return nil
	case OpenPayoff, "":
		return nil
	default:
		return apperrors.NewValidationErrorFor(apperrors.ErrInvalidStrategy, "strategy", s, "unknown payoff strategy")
	}
}

// Summary holds the headline statistics of a payoff curve.
type Summary struct {
	// PnL is the global payoff at floor(spot); absent when that price is
	// outside the curve.
	PnL models.NullFloat `json:"pnl"`
	Max float64          `json:"max_return"`
	Min float64          `json:"max_loss"`
	// BreakEven is the zero of the global payoff nearest to spot; absent
	// when the payoff never hits exactly zero on the grid.
	BreakEven models.NullFloat `json:"break_even"`
	// Distance is BreakEven - spot, DistancePct the same relative to spot.
	Distance    models.NullFloat `json:"distance"`
	DistancePct models.NullFloat `json:"distance_pct"`
}

// Summarize computes the summary of c for the given spot.
func Summarize(c *Curve, spot float64) Summary {
	s := Summary{Max: math.NaN(), Min: math.NaN()}
	if c == nil || c.Len() == 0 {
		return s
	}

	if v, ok := c.At(int(math.Floor(spot))); ok {
		s.PnL = models.Some(v)
	}

	s.Max, s.Min = math.Inf(-1), math.Inf(1)
	best, bestDist := 0, math.Inf(1)
	found := false
	for j, v := range c.Global {
		s.Max = math.Max(s.Max, v)
		s.Min = math.Min(s.Min, v)
		if v != 0 {
			continue
		}
		if d := math.Abs(float64(c.Prices[j]) - spot); d < bestDist {
			best, bestDist, found = c.Prices[j], d, true
		}
	}

	if found {
		closest := float64(best)
		s.BreakEven = models.Some(closest)
		s.Distance = models.Some(closest - spot)
		if spot != 0 {
			s.DistancePct = models.Some(-(spot - closest) / spot * 100)
		}
	}
	return s
}
