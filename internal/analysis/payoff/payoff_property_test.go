package payoff

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/models"
)

func leg(t models.OptionType, pos models.Position, strike, premium float64) models.OptionLeg {
	return models.OptionLeg{Type: t, Position: pos, Strike: strike, Premium: premium, Maturity: "30 days"}
}

// Property: a long call pays max(0, S-K) - p everywhere on its curve, the
// short call the opposite, and the two together sum to zero.
func TestProperty_PayoffRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("long, short and their sum", prop.ForAll(
		func(strike, premium, spot float64) bool {
			long := leg(models.Call, models.Long, strike, premium)
			short := leg(models.Call, models.Short, strike, premium)

			c, err := Build([]models.OptionLeg{long, short}, spot)
			if err != nil {
				return false
			}
			for j, price := range c.Prices {
				s := float64(price)
				want := math.Max(0, s-strike) - premium
				if math.Abs(c.Legs[0][j]-want) > 1e-9 || math.Abs(c.Legs[1][j]+want) > 1e-9 {
					return false
				}
				if math.Abs(c.Global[j]) > 1e-9 {
					return false
				}
			}
			return true
		},
		gen.Float64Range(10, 5000),
		gen.Float64Range(0, 500),
		gen.Float64Range(10, 5000),
	))

	properties.TestingRun(t)
}

// Property: a zero-cost call spread's break-even is a grid price where the
// global payoff is exactly zero, and no other zero lies nearer to spot.
func TestProperty_BreakEvenExact(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("nearest exact zero", prop.ForAll(
		func(k1, width, spot int) bool {
			legs := []models.OptionLeg{
				leg(models.Call, models.Long, float64(k1), 0),
				leg(models.Call, models.Short, float64(k1+width), 0),
			}
			c, err := Build(legs, float64(spot))
			if err != nil {
				return false
			}
			s := Summarize(c, float64(spot))
			if !s.BreakEven.Valid {
				return false
			}
			be := int(s.BreakEven.Value)
			if v, ok := c.At(be); !ok || v != 0 {
				return false
			}
			for j, v := range c.Global {
				if v == 0 && math.Abs(float64(c.Prices[j]-spot)) < math.Abs(float64(be-spot)) {
					return false
				}
			}
			return true
		},
		gen.IntRange(50, 500),
		gen.IntRange(1, 100),
		gen.IntRange(50, 700),
	))

	properties.TestingRun(t)
}

func TestLegPayoff(t *testing.T) {
	tests := []struct {
		name string
		leg  models.OptionLeg
		s    float64
		want float64
	}{
		{"long call ITM", leg(models.Call, models.Long, 100, 5), 120, 15},
		{"long call OTM", leg(models.Call, models.Long, 100, 5), 80, -5},
		{"short call ITM", leg(models.Call, models.Short, 100, 5), 120, -15},
		{"long put ITM", leg(models.Put, models.Long, 100, 5), 80, 15},
		{"short put OTM", leg(models.Put, models.Short, 100, 5), 120, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LegPayoff(tt.leg, tt.s)
			if err != nil {
				t.Fatalf("LegPayoff: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLegPayoff_InvalidInputs(t *testing.T) {
	_, err := LegPayoff(models.OptionLeg{Type: "straddle", Position: models.Long}, 100)
	if !errors.Is(err, apperrors.ErrInvalidOptionType) {
		t.Errorf("expected ErrInvalidOptionType, got %v", err)
	}
	_, err = LegPayoff(models.OptionLeg{Type: models.Put, Position: "flat"}, 100)
	if !errors.Is(err, apperrors.ErrInvalidPosition) {
		t.Errorf("expected ErrInvalidPosition, got %v", err)
	}
	if _, err := Build([]models.OptionLeg{{Type: models.Call, Position: "flat", Strike: 100}}, 100); err == nil {
		t.Error("Build must reject invalid legs")
	}
}

func TestDomain(t *testing.T) {
	tests := []struct {
		name    string
		strikes []float64
		spot    float64
		lo, hi  int
	}{
		{"all below spot", []float64{80, 90}, 100, 16, 180},
		{"all above spot", []float64{110, 120}, 100, 20, 216},
		{"straddling spot", []float64{90, 110}, 100, 18, 198},
		{"strike at spot", []float64{100}, 100, 20, 180},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var legs []models.OptionLeg
			for _, k := range tt.strikes {
				legs = append(legs, leg(models.Call, models.Long, k, 1))
			}
			lo, hi, err := Domain(legs, tt.spot)
			if err != nil {
				t.Fatalf("Domain: %v", err)
			}
			if lo != tt.lo || hi != tt.hi {
				t.Errorf("got [%d, %d), want [%d, %d)", lo, hi, tt.lo, tt.hi)
			}
		})
	}

	if _, _, err := Domain(nil, 100); err == nil {
		t.Error("expected error for empty legs")
	}
}

func TestBuild_LabelsAndShape(t *testing.T) {
	legs := []models.OptionLeg{
		leg(models.Call, models.Long, 4500, 10),
		leg(models.Put, models.Short, 4400, 8),
	}
	c, err := Build(legs, 4450)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if c.Labels[0] != `(1) Long call "4,500" 30 days` {
		t.Errorf("label 0 = %s", c.Labels[0])
	}
	if c.Labels[1] != `(2) Short put "4,400" 30 days` {
		t.Errorf("label 1 = %s", c.Labels[1])
	}
	if c.Prices[0] != 880 || c.Prices[c.Len()-1] != 8099 {
		t.Errorf("domain [%d, %d]", c.Prices[0], c.Prices[c.Len()-1])
	}
}

func TestSummarize(t *testing.T) {
	legs := []models.OptionLeg{leg(models.Call, models.Long, 100, 5)}
	c, err := Build(legs, 110.7)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	s := Summarize(c, 110.7)

	if !s.PnL.Valid || s.PnL.Value != 5 {
		t.Errorf("PnL = %+v, want 5 at price 110", s.PnL)
	}
	if !s.BreakEven.Valid || s.BreakEven.Value != 105 {
		t.Fatalf("BreakEven = %+v", s.BreakEven)
	}
	if math.Abs(s.Distance.Value-(105-110.7)) > 1e-9 {
		t.Errorf("Distance = %v", s.Distance.Value)
	}
	if math.Abs(s.DistancePct.Value-(-(110.7-105)/110.7*100)) > 1e-9 {
		t.Errorf("DistancePct = %v", s.DistancePct.Value)
	}
	if s.Min != -5 {
		t.Errorf("Min = %v", s.Min)
	}
	if s.Max != float64(c.Prices[c.Len()-1])-105 {
		t.Errorf("Max = %v", s.Max)
	}
}

func TestSummarize_BeyondReachAndNotFound(t *testing.T) {
	legs := []models.OptionLeg{leg(models.Call, models.Long, 100, 0.5)}
	c, err := Build(legs, 110)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	s := Summarize(c, 110)
	if s.BreakEven.Valid || s.Distance.Valid {
		t.Errorf("a fractional premium never hits zero on the grid: %+v", s)
	}

	far := Summarize(c, 10000)
	if far.PnL.Valid {
		t.Errorf("spot outside the curve must not have a P&L: %+v", far.PnL)
	}
}

func TestCheckStrategy(t *testing.T) {
	one := []models.OptionLeg{leg(models.Call, models.Long, 100, 1)}
	two := append(one, leg(models.Put, models.Long, 90, 1))

	if err := CheckStrategy(SimplePayoff, one); err != nil {
		t.Errorf("single leg: %v", err)
	}
	err := CheckStrategy(SimplePayoff, two)
	var verr *apperrors.ValidationError
	if !errors.As(err, &verr) || verr.Message != ErrSimpleTooManyLegs {
		t.Errorf("expected too-many-legs validation error, got %v", err)
	}
	if err := CheckStrategy(OpenPayoff, two); err != nil {
		t.Errorf("open payoff: %v", err)
	}
}
