package montecarlo

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

func callLeg(strike, premium float64, maturity string) models.OptionLeg {
	return models.OptionLeg{Type: models.Call, Position: models.Long, Strike: strike, Premium: premium, Maturity: maturity}
}

// Property: for any simulation, p5 <= median <= p95.
func TestProperty_PercentileMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("p5 <= median <= p95", prop.ForAll(
		func(spot, sigma float64, n int, seed int64) bool {
			res, err := Simulate([]models.OptionLeg{callLeg(spot, 5, "30 days")}, Params{
				Spot: spot, Mu: 0.05, Sigma: sigma, Days: 21, Simulations: n, Seed: seed,
			})
			if err != nil {
				return false
			}
			s := res.Stats
			return s.P5 <= s.Median && s.Median <= s.P95
		},
		gen.Float64Range(10, 1000),
		gen.Float64Range(0.01, 1.5),
		gen.IntRange(1, 400),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// Property: histogram probabilities sum to one and positive plus
// non-positive fractions sum to one.
func TestProperty_HistogramMass(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("mass is conserved", prop.ForAll(
		func(values []float64) bool {
			h := BuildHistogram(values)
			var sum float64
			for _, p := range h.Prob {
				sum += p
			}
			if math.Abs(sum-1) > 1e-9 {
				return false
			}
			if len(h.Edges) != len(h.Prob)+1 {
				return false
			}
			return math.Abs(h.Positive+h.NonPositive-1) < 1e-12
		},
		gen.SliceOf(gen.Float64Range(-5000, 5000)).SuchThat(func(v []float64) bool { return len(v) > 0 }),
	))

	properties.TestingRun(t)
}

func TestParseHorizon(t *testing.T) {
	legs := []models.OptionLeg{callLeg(100, 1, "30 days"), callLeg(110, 1, "90 days"), callLeg(90, 1, "7 days")}
	tests := []struct {
		code string
		want int
	}{
		{"1w", 5},
		{"2w", 10},
		{"1mo", 21},
		{"3mo", 63},
		{"6mo", 126},
		{"1y", 252},
		{"2y", 730},
		{"min", 7},
		{"max", 90},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, err := ParseHorizon(tt.code, legs)
			if err != nil {
				t.Fatalf("ParseHorizon: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := ParseHorizon("forever", legs); err == nil {
		t.Error("expected error for unknown horizon")
	}
	if _, err := ParseHorizon("max", []models.OptionLeg{callLeg(1, 1, "soon")}); err == nil {
		t.Error("expected error for malformed maturity")
	}
}

func TestScaleAndParseRate(t *testing.T) {
	mu, sigma := Scale(0.10, 0.20, 63)
	if math.Abs(mu-0.025) > 1e-12 || math.Abs(sigma-0.10) > 1e-12 {
		t.Errorf("Scale = %v, %v", mu, sigma)
	}

	r, err := ParseRate("12.5%")
	if err != nil || r != 0.125 {
		t.Errorf("ParseRate = %v, %v", r, err)
	}
	if _, err := ParseRate("abc"); err == nil {
		t.Error("expected error")
	}
}

func TestEstimateDriftVol(t *testing.T) {
	closes := []float64{100, 101, 100, 102}
	mu, sigma, err := EstimateDriftVol(closes)
	if err != nil {
		t.Fatalf("EstimateDriftVol: %v", err)
	}
	wantMu := math.Log(102.0/100) / 3 * 252
	if math.Abs(mu-wantMu) > 1e-9 {
		t.Errorf("mu = %v, want %v", mu, wantMu)
	}
	if sigma <= 0 {
		t.Errorf("sigma = %v", sigma)
	}

	if _, _, err := EstimateDriftVol([]float64{100, 101}); !errors.Is(err, apperrors.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestSimulate_Reproducible(t *testing.T) {
	legs := []models.OptionLeg{callLeg(100, 3, "30 days")}
	p := Params{Spot: 100, Mu: 0.05, Sigma: 0.3, Days: 21, Simulations: 500, Seed: 42}

	a, err := Simulate(legs, p)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	b, err := Simulate(legs, p)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	for i := range a.Payoffs {
		if a.Payoffs[i] != b.Payoffs[i] {
			t.Fatalf("seeded runs differ at %d", i)
		}
	}
	for i, s := range a.Terminal {
		want := math.Max(0, s-100) - 3
		if a.Payoffs[i] != want {
			t.Fatalf("payoff %d = %v, want %v", i, a.Payoffs[i], want)
		}
	}
	if a.Histogram.MinPayoff < -3 {
		t.Errorf("a long call cannot lose more than its premium: %v", a.Histogram.MinPayoff)
	}
}

func TestSimulate_ZeroVolatility(t *testing.T) {
	legs := []models.OptionLeg{callLeg(90, 0, "30 days")}
	res, err := Simulate(legs, Params{Spot: 100, Mu: 0, Sigma: 0, Days: 252, Simulations: 10, Seed: 1})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	for _, s := range res.Terminal {
		if s != 100 {
			t.Fatalf("terminal = %v, want 100", s)
		}
	}
	if res.Stats.Mean != 10 || res.Stats.P5 != 10 || res.Stats.P95 != 10 {
		t.Errorf("stats %+v", res.Stats)
	}
}

func TestSimulate_Invalid(t *testing.T) {
	legs := []models.OptionLeg{callLeg(100, 1, "30 days")}
	if _, err := Simulate(legs, Params{Spot: 100, Days: 5, Simulations: 0}); err == nil {
		t.Error("expected error for zero simulations")
	}
	bad := []models.OptionLeg{{Type: "fwd", Position: models.Long, Strike: 1}}
	if _, err := Simulate(bad, Params{Spot: 100, Days: 5, Simulations: 10}); !errors.Is(err, apperrors.ErrInvalidOptionType) {
		t.Errorf("expected ErrInvalidOptionType, got %v", err)
	}
}

func TestBuildHistogram(t *testing.T) {
	// 4 values: bin width floor(sqrt(4))*10 = 20, edges 0, 20, 40, 60.
	values := []float64{0, 5, 25, 45}
	h := BuildHistogram(values)

	wantEdges := []float64{0, 20, 40, 60}
	if len(h.Edges) != len(wantEdges) {
		t.Fatalf("edges = %v", h.Edges)
	}
	for i := range wantEdges {
		if h.Edges[i] != wantEdges[i] {
			t.Fatalf("edges = %v", h.Edges)
		}
	}
	wantProb := []float64{0.5, 0.25, 0.25}
	for i := range wantProb {
		if h.Prob[i] != wantProb[i] {
			t.Errorf("prob[%d] = %v, want %v", i, h.Prob[i], wantProb[i])
		}
	}
	if h.MaxProb != 0.5 || h.MaxProbRange != (Range{0, 20}) {
		t.Errorf("modal bin %v %+v", h.MaxProb, h.MaxProbRange)
	}
	if h.MinProb != 0.25 || h.MinProbRange != (Range{20, 40}) {
		t.Errorf("least bin %v %+v", h.MinProb, h.MinProbRange)
	}
	if h.MaxPayoffProb != 0.25 || h.MinPayoffProb != 0.5 {
		t.Errorf("extreme mass %v %v", h.MaxPayoffProb, h.MinPayoffProb)
	}
	if h.Positive != 0.75 || h.NonPositive != 0.25 {
		t.Errorf("sign split %v %v", h.Positive, h.NonPositive)
	}
}

func TestBuildHistogram_MaxOnLastEdge(t *testing.T) {
	// width 10, edges 0, 10: the maximum sits on the closing edge.
	h := BuildHistogram([]float64{0, 10})
	if len(h.Prob) != 1 || h.Prob[0] != 1 {
		t.Fatalf("prob = %v", h.Prob)
	}
	if h.MaxPayoffProb != 0 {
		t.Errorf("max payoff mass = %v, want 0", h.MaxPayoffProb)
	}
}

func TestBuildHistogram_Constant(t *testing.T) {
	h := BuildHistogram([]float64{7, 7, 7})
	if len(h.Edges) != 2 || h.Prob[0] != 1 {
		t.Errorf("constant input: edges %v prob %v", h.Edges, h.Prob)
	}
}
