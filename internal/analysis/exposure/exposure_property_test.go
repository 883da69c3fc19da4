package exposure

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"options-analyzer/internal/analysis/aggregate"
	"options-analyzer/internal/models"
)

func singleTypeRows(typ models.OptionType, ois, gammas []float64) []models.OptionRecord {
	n := len(ois)
	if len(gammas) < n {
		n = len(gammas)
	}
	rows := make([]models.OptionRecord, n)
	for i := 0; i < n; i++ {
		rows[i] = models.OptionRecord{
			Strike:       float64(90 + 5*(i%5)),
			Type:         typ,
			OpenInterest: ois[i],
			Gamma:        gammas[i],
			Volume:       1,
		}
	}
	return rows
}

// Property: a calls-only chain has gex == abs_gex; a puts-only chain has
// gex == -abs_gex, on every side of every strike.
func TestProperty_GEXSignConvention(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	check := func(typ models.OptionType, want float64) func([]float64, []float64, float64) bool {
		return func(ois, gammas []float64, spot float64) bool {
			p := Gamma(singleTypeRows(typ, ois, gammas), spot, 100)
			for i := 0; i < p.Len(); i++ {
				g, a := p.Cell(GEX, i), p.Cell(AbsGEX, i)
				for _, col := range []aggregate.Column{aggregate.ColCall, aggregate.ColPut, aggregate.ColAll} {
					gv, av := g.Get(col), a.Get(col)
					if gv.Valid != av.Valid {
						return false
					}
					if gv.Valid && gv.Value != want*av.Value {
						return false
					}
				}
			}
			return true
		}
	}

	properties.Property("calls only: gex == abs_gex", prop.ForAll(
		check(models.Call, 1),
		gen.SliceOf(gen.Float64Range(0, 10000)),
		gen.SliceOf(gen.Float64Range(0, 0.2)),
		gen.Float64Range(1, 5000),
	))

	properties.Property("puts only: gex == -abs_gex", prop.ForAll(
		check(models.Put, -1),
		gen.SliceOf(gen.Float64Range(0, 10000)),
		gen.SliceOf(gen.Float64Range(0, 0.2)),
		gen.Float64Range(1, 5000),
	))

	properties.TestingRun(t)
}

// Property: vanna is exactly zero whenever T <= 0 or sigma <= 0.
func TestProperty_VannaBoundary(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("T <= 0 gives zero", prop.ForAll(
		func(s, k, tt, r, q, sigma float64) bool {
			return Vanna(s, k, tt, r, q, sigma) == 0.0
		},
		gen.Float64Range(-1e4, 1e4),
		gen.Float64Range(-1e4, 1e4),
		gen.Float64Range(-10, 0),
		gen.Float64Range(-1, 1),
		gen.Float64Range(-1, 1),
		gen.Float64Range(-5, 5),
	))

	properties.Property("sigma <= 0 gives zero", prop.ForAll(
		func(s, k, tt, r, q, sigma float64) bool {
			return Vanna(s, k, tt, r, q, sigma) == 0.0
		},
		gen.Float64Range(-1e4, 1e4),
		gen.Float64Range(-1e4, 1e4),
		gen.Float64Range(-10, 10),
		gen.Float64Range(-1, 1),
		gen.Float64Range(-1, 1),
		gen.Float64Range(-5, 0),
	))

	properties.TestingRun(t)
}

func TestGamma_TwoRowExample(t *testing.T) {
	rows := []models.OptionRecord{
		{Strike: 100, Type: models.Call, OpenInterest: 10, Gamma: 0.05, Volume: 5},
		{Strike: 100, Type: models.Put, OpenInterest: 8, Gamma: 0.05, Volume: 3},
	}

	p := Gamma(rows, 100, 100)
	if p.Len() != 1 {
		t.Fatalf("expected one strike, got %d", p.Len())
	}

	gex := p.Cell(GEX, 0)
	assertClose(t, "call gex", gex.Call.Value, 5000)
	assertClose(t, "put gex", gex.Put.Value, -4000)
	assertClose(t, "net gex", gex.All.Value, 1000)
	assertClose(t, "abs gex", p.Cell(AbsGEX, 0).All.Value, 9000)
	assertClose(t, "adj volume", p.Cell(aggregate.AdjVolume, 0).All.Value, 26)
}

func TestGamma_MissingGammaCountsZero(t *testing.T) {
	rows := []models.OptionRecord{
		{Strike: 100, Type: models.Call, OpenInterest: 10, Gamma: math.NaN()},
		{Strike: 100, Type: models.Call, OpenInterest: 10, Gamma: 0.01},
	}
	p := Gamma(rows, 50, 10)
	assertClose(t, "gex", p.Cell(GEX, 0).Call.Value, 10*0.01*10*50)
}

func TestDelta_NetSum(t *testing.T) {
	rows := []models.OptionRecord{
		{Strike: 100, Type: models.Call, OpenInterest: 10, Delta: 0.6},
		{Strike: 100, Type: models.Put, OpenInterest: 20, Delta: -0.4},
	}
	p := Delta(rows, 100)
	d := p.Cell(DEX, 0)
	assertClose(t, "call dex", d.Call.Value, 600)
	assertClose(t, "put dex", d.Put.Value, -800)
	assertClose(t, "net dex", d.All.Value, -200)
}

func TestVanna_KnownValue(t *testing.T) {
	// S=K, r=q=0, sigma=0.2, T=1: d1=0.1, d2=-0.1
	want := math.Exp(-0.005) / math.Sqrt(2*math.Pi) * -0.1 / 0.2
	assertClose(t, "vanna", Vanna(100, 100, 1, 0, 0, 0.2), want)
}

func TestVannaExposure_SpotFactor(t *testing.T) {
	rows := []models.OptionRecord{
		{Strike: 105, DTE: 30, Type: models.Put, OpenInterest: 100, ImpliedVolatility: 0.25},
		{Strike: 110, DTE: 30, Type: models.Call, OpenInterest: 100, ImpliedVolatility: math.NaN()},
	}
	params := VannaParams{Spot: 100, LotSize: 100, RatePercent: 5}

	double := VannaExposure(rows, params)
	params.SingleSpot = true
	single := VannaExposure(rows, params)

	v := Vanna(100, 105, 30.0/252, 0.05, 0, 0.25)
	base := 100 * v * 100 * 100 * 0.25

	assertClose(t, "single spot vex", single.Cell(VEX, 0).Put.Value, -base)
	assertClose(t, "double spot vex", double.Cell(VEX, 0).Put.Value, -base*100)
	assertClose(t, "abs vex", double.Cell(AbsVEX, 0).All.Value, base*100)

	if got := double.Cell(VEX, 1).Call.Value; got != 0 {
		t.Errorf("missing IV should give zero exposure, got %v", got)
	}
}

func assertClose(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9*math.Max(1, math.Abs(want)) {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}
