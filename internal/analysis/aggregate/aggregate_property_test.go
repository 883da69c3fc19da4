package aggregate

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"options-analyzer/internal/analysis/chain"
	"options-analyzer/internal/models"
)

// rowGen generates rows on a coarse strike grid so groups collide, with some
// missing volumes.
func rowGen() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(18, 22),
		gen.Bool(),
		gen.Float64Range(0, 1000),
		gen.Float64Range(0, 1000),
		gen.IntRange(0, 9),
	).Map(func(vals []interface{}) models.OptionRecord {
		typ := models.Call
		if vals[1].(bool) {
			typ = models.Put
		}
		vol := vals[3].(float64)
		if vals[4].(int) == 0 {
			vol = math.NaN()
		}
		return models.OptionRecord{
			Strike:       float64(vals[0].(int)) * 5,
			Type:         typ,
			OpenInterest: vals[2].(float64),
			Volume:       vol,
			DTE:          vals[4].(int) * 7,
		}
	})
}

// Property: for every metric, sum(All) == sum(call) + sum(put) with invalid
// cells counted as zero.
func TestProperty_AggregationConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("All column conserves call plus put", prop.ForAll(
		func(rows []models.OptionRecord) bool {
			for _, p := range []interface {
				Total(string, Column) float64
			}{ByStrike(rows), ByExpiration(rows, chain.AxisDays)} {
				for _, m := range StandardMetrics() {
					all := p.Total(m.Name, ColAll)
					parts := p.Total(m.Name, ColCall) + p.Total(m.Name, ColPut)
					if math.Abs(all-parts) > 1e-6*math.Max(1, math.Abs(all)) {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(rowGen()),
	))

	properties.Property("keys ascending and unique", prop.ForAll(
		func(rows []models.OptionRecord) bool {
			p := ByStrike(rows)
			for i := 1; i < len(p.Keys); i++ {
				if p.Keys[i] <= p.Keys[i-1] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(rowGen()),
	))

	properties.TestingRun(t)
}

func TestByStrike_MissingSideIsInvalid(t *testing.T) {
	rows := []models.OptionRecord{
		{Strike: 100, Type: models.Call, OpenInterest: 10, Volume: 5},
		{Strike: 100, Type: models.Put, OpenInterest: 8, Volume: 3},
		{Strike: 105, Type: models.Call, OpenInterest: 4, Volume: math.NaN()},
	}

	p := ByStrike(rows)
	if p.Len() != 2 {
		t.Fatalf("expected 2 strikes, got %d", p.Len())
	}

	c := p.Cell(AdjVolume, 0)
	if c.Call.Value != 15 || c.Put.Value != 11 || c.All.Value != 26 {
		t.Errorf("strike 100 adj_volume = %+v", c)
	}

	c = p.Cell(Volume, 1)
	if !c.Call.Valid || c.Call.Value != 0 {
		t.Errorf("NaN volume should sum to 0, got %+v", c.Call)
	}
	if c.Put.Valid {
		t.Errorf("strike 105 has no put rows, expected invalid cell")
	}
	if !c.All.Valid {
		t.Errorf("All cell must always be present")
	}
	if adj := p.Cell(AdjVolume, 1); adj.Call.Value != 0 {
		t.Errorf("OI + NaN volume should drop out of the sum, got %v", adj.Call.Value)
	}
}

func TestByExpiration_DateAxis(t *testing.T) {
	d := time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)
	rows := []models.OptionRecord{
		{Expiration: d, Type: models.Call, OpenInterest: 1, Volume: 1},
		{Expiration: d.AddDate(0, 1, 0), Type: models.Put, OpenInterest: 2, Volume: 2},
		{Expiration: d, Type: models.Put, OpenInterest: 3, Volume: 3},
		{Type: models.Put, OpenInterest: 100},
	}

	p := ByExpiration(rows, chain.AxisDate, OpenInterestMetric)
	if p.Len() != 2 {
		t.Fatalf("expected 2 expirations, got %d", p.Len())
	}
	if got := chain.AxisDate.Format(p.Keys[0]); got != "2024-06-21" {
		t.Errorf("first key = %s", got)
	}
	if got := p.Cell(OpenInterest, 0).All.Value; got != 4 {
		t.Errorf("All OI at first expiration = %v, want 4", got)
	}
}

func TestSummarize(t *testing.T) {
	rows := []models.OptionRecord{
		{Strike: 90, Type: models.Call, Volume: 10},
		{Strike: 100, Type: models.Call, Volume: 30},
		{Strike: 110, Type: models.Call, Volume: 20},
		{Strike: 90, Type: models.Put, Volume: 40},
		{Strike: 100, Type: models.Put, Volume: 5},
	}

	s := Summarize(ByStrike(rows, VolumeMetric), Volume)

	if s.Call.Max != 30 || s.Call.MaxStrike != 100 {
		t.Errorf("call max = %v@%v", s.Call.Max, s.Call.MaxStrike)
	}
	if s.Call.Min != 10 || s.Call.MinStrike != 90 {
		t.Errorf("call min = %v@%v", s.Call.Min, s.Call.MinStrike)
	}
	// cumsum 10, 40, 60; half = 30 -> first index with cumsum >= 30 is strike 100
	if s.Call.MedianStrike != 100 {
		t.Errorf("call median strike = %v, want 100", s.Call.MedianStrike)
	}
	// put cumsum 40, 45, 45; half = 22.5 -> strike 90
	if s.Put.MedianStrike != 90 {
		t.Errorf("put median strike = %v, want 90", s.Put.MedianStrike)
	}
	if math.Abs(s.PutCallRatio-45.0/60.0) > 1e-12 {
		t.Errorf("put/call ratio = %v", s.PutCallRatio)
	}
}

func TestSummarize_Degenerate(t *testing.T) {
	callsOnly := []models.OptionRecord{{Strike: 100, Type: models.Call, Volume: 10}}
	if s := Summarize(ByStrike(callsOnly), Volume); s != (VolumeStats{}) {
		t.Errorf("expected zero stats when puts are absent, got %+v", s)
	}

	zeroCalls := []models.OptionRecord{
		{Strike: 100, Type: models.Call, Volume: 0},
		{Strike: 100, Type: models.Put, Volume: 7},
	}
	if s := Summarize(ByStrike(zeroCalls), Volume); !math.IsInf(s.PutCallRatio, 1) {
		t.Errorf("expected +Inf ratio, got %v", s.PutCallRatio)
	}
}
