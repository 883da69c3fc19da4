// Package payoff evaluates expiry payoffs of option combinations.
package payoff

import (
	"fmt"
	"math"

	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/models"
	"options-analyzer/pkg/utils"
)

const (
	rangeUpFactor = 1.8
	rangeDwFactor = 0.2
)

// LegPayoff returns the expiry P&L of one leg at underlying price s.
func LegPayoff(leg models.OptionLeg, s float64) (float64, error) {
	var intrinsic float64
	switch leg.Type {
	case models.Call:
		intrinsic = math.Max(0, s-leg.Strike)
	case models.Put:
		intrinsic = math.Max(0, leg.Strike-s)
	default:
		return 0, apperrors.NewValidationErrorFor(apperrors.ErrInvalidOptionType, "type", leg.Type, "type must be call or put")
	}

	switch leg.Position {
	case models.Long:
		return -leg.Premium + intrinsic, nil
	case models.Short:
		return leg.Premium - intrinsic, nil
	default:
		return 0, apperrors.NewValidationErrorFor(apperrors.ErrInvalidPosition, "pos", leg.Position, "position must be Long or Short")
	}
}

// Evaluate returns the summed payoff of all legs at s.
func Evaluate(legs []models.OptionLeg, s float64) (float64, error) {
	var total float64
	for _, leg := range legs {
		v, err := LegPayoff(leg, s)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}

// Validate checks every leg's type and position.
func Validate(legs []models.OptionLeg) error {
	if len(legs) == 0 {
		return apperrors.NewValidationErrorFor(apperrors.ErrInvalidStrategy, "legs", 0, "at least one option is required")
	}
	for _, leg := range legs {
		if _, err := LegPayoff(leg, leg.Strike); err != nil {
			return err
		}
	}
	return nil
}

// Domain returns the half-open integer price range [lo, hi) the curve is
// evaluated on. Strikes all below spot give [0.2·min, 1.8·spot); strikes all
// above spot give [0.2·spot, 1.8·max); otherwise [0.2·min, 1.8·max).
func Domain(legs []models.OptionLeg, spot float64) (lo, hi int, err error) {
	if len(legs) == 0 {
		return 0, 0, apperrors.NewValidationErrorFor(apperrors.ErrInvalidStrategy, "legs", 0, "at least one option is required")
	}
	minStrike, maxStrike := math.Inf(1), math.Inf(-1)
	for _, leg := range legs {
		minStrike = math.Min(minStrike, leg.Strike)
		maxStrike = math.Max(maxStrike, leg.Strike)
	}

	switch {
	case maxStrike < spot:
		return int(rangeDwFactor * minStrike), int(rangeUpFactor * spot), nil
	case minStrike > spot:
		return int(rangeDwFactor * spot), int(rangeUpFactor * maxStrike), nil
	default:
		return int(rangeDwFactor * minStrike), int(rangeUpFactor * maxStrike), nil
	}
}

// Label names leg i (zero-based) the way it is displayed: (1) Long call "4,500" 30 days.
func Label(i int, leg models.OptionLeg) string {
	return fmt.Sprintf("(%d) %s %s %q %s", i+1, leg.Position, leg.Type, utils.FormatThousands(leg.Strike, 0), leg.Maturity)
}

// Curve is a payoff table over consecutive integer prices.
type Curve struct {
	Prices []int       `json:"prices"`
	Labels []string    `json:"labels"`
	Legs   [][]float64 `json:"legs"` // Legs[i][j] is leg i at Prices[j]
	Global []float64   `json:"global"`
}

// Len returns the number of prices in the curve.
func (c *Curve) Len() int { return len(c.Prices) }

// At returns the global payoff at an exact price.
func (c *Curve) At(price int) (float64, bool) {
	if len(c.Prices) == 0 {
		return 0, false
	}
	i := price - c.Prices[0]
	if i < 0 || i >= len(c.Prices) {
		return 0, false
	}
	return c.Global[i], true
}

// Build evaluates every leg and their sum over the domain implied by spot.
func Build(legs []models.OptionLeg, spot float64) (*Curve, error) {
	if err := Validate(legs); err != nil {
		return nil, err
	}
	lo, hi, err := Domain(legs, spot)
	if err != nil {
		return nil, err
	}

	n := hi - lo
	if n <= 0 {
		return nil, apperrors.NewValidationErrorFor(apperrors.ErrInsufficientData, "strike", lo, "price range is empty")
	}
	c := &Curve{
		Prices: make([]int, n),
		Labels: make([]string, len(legs)),
		Legs:   make([][]float64, len(legs)),
		Global: make([]float64, n),
	}
	for j := range c.Prices {
		c.Prices[j] = lo + j
	}
	for i, leg := range legs {
		c.Labels[i] = Label(i, leg)
		c.Legs[i] = make([]float64, n)
		for j, price := range c.Prices {
			v, _ := LegPayoff(leg, float64(price))
			c.Legs[i][j] = v
			c.Global[j] += v
		}
	}
	return c, nil
}
