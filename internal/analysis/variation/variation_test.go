package variation

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"options-analyzer/internal/analysis/chain"
	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/models"
)

var expiry = time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)

func row(sym string, strike, vol, oi float64, dte int) models.OptionRecord {
	return models.OptionRecord{
		ContractSymbol: sym,
		Strike:         strike,
		Type:           models.Call,
		Volume:         vol,
		OpenInterest:   oi,
		DTE:            dte,
		Expiration:     expiry.AddDate(0, 0, dte-30),
	}
}

func allStrikes(mode Mode) Options {
	return Options{Type: models.Call, Axis: chain.AxisDays, StrikeLow: 0, StrikeHigh: 1e9, Mode: mode}
}

func TestCompare_VolumeExample(t *testing.T) {
	cur := []models.OptionRecord{row("A", 100, 120, 0, 30)}
	cmp := []models.OptionRecord{row("A", 100, 100, 0, 30)}

	points, err := Compare(cur, cmp, allStrikes(ModeVolume))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 1 || points[0].Pct != 20.0 {
		t.Fatalf("got %+v, want a single 20%% variation", points)
	}
}

func TestCompare_DropsUncommonAndInfinite(t *testing.T) {
	cur := []models.OptionRecord{
		row("A", 100, 50, 0, 30),
		row("B", 105, 10, 0, 30),
		row("C", 110, 0, 0, 30),
		row("ONLY1", 115, 10, 0, 30),
	}
	cmp := []models.OptionRecord{
		row("A", 100, 25, 0, 30),
		row("B", 105, 0, 0, 30),
		row("C", 110, 0, 0, 30),
		row("ONLY2", 120, 10, 0, 30),
	}

	points, err := Compare(cur, cmp, allStrikes(ModeVolume))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected strikes 100 and 110, got %+v", points)
	}
	if points[0].Strike != 100 || points[0].Pct != 100 {
		t.Errorf("strike 100: %+v", points[0])
	}
	if points[1].Strike != 110 || points[1].Pct != 0 {
		t.Errorf("0/0 should report 0, got %+v", points[1])
	}
}

func TestCompare_OIModes(t *testing.T) {
	cur := []models.OptionRecord{row("A", 100, 5, 200, 30)}
	cmp := []models.OptionRecord{row("A", 100, 50, 100, 30)}

	asym, err := Compare(cur, cmp, allStrikes(ModeOI))
	if err != nil {
		t.Fatal(err)
	}
	// current OI against compare volume
	if asym[0].Pct != 300 {
		t.Errorf("oi mode = %v, want 300", asym[0].Pct)
	}

	opts := allStrikes(ModeOI)
	opts.SymmetricOI = true
	sym, err := Compare(cur, cmp, opts)
	if err != nil {
		t.Fatal(err)
	}
	if sym[0].Pct != 100 {
		t.Errorf("symmetric oi mode = %v, want 100", sym[0].Pct)
	}

	both, err := Compare(cur, cmp, allStrikes(ModeVolAndOI))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(both[0].Pct-(205.0-150.0)/150.0*100) > 1e-9 {
		t.Errorf("volAndOI mode = %v", both[0].Pct)
	}
}

func TestCompare_ExpirationSelectors(t *testing.T) {
	cur := []models.OptionRecord{
		row("A", 100, 20, 0, 30),
		row("B", 100, 40, 0, 60),
	}
	cmp := []models.OptionRecord{
		row("A", 100, 10, 0, 30),
		row("B", 100, 10, 0, 60),
	}

	opts := allStrikes(ModeVolume)
	opts.Expiration = chain.Specific("30")
	points, err := Compare(cur, cmp, opts)
	if err != nil {
		t.Fatal(err)
	}
	// days map to dates via the current snapshot, so B is excluded on both sides
	if len(points) != 1 || points[0].Pct != 100 {
		t.Errorf("specific: %+v", points)
	}

	opts.Expiration = chain.Peak("60")
	points, err = Compare(cur, cmp, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 1 || points[0].Pct != 200 {
		t.Errorf("peak: %+v", points)
	}

	opts.Expiration = chain.Peak("45")
	if _, err := Compare(cur, cmp, opts); !errors.Is(err, apperrors.ErrInvalidSelector) {
		t.Errorf("expected ErrInvalidSelector for unmapped peak, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	points := []Point{
		{Strike: 90, Pct: 10},
		{Strike: 95, Pct: -20},
		{Strike: 100, Pct: 40},
		{Strike: 105, Pct: 40},
	}
	s := Summarize(points, 100, 95)

	if s.Max != 40 || s.MaxStrike != 100 {
		t.Errorf("max = %v@%v, want first occurrence 40@100", s.Max, s.MaxStrike)
	}
	if s.Min != -20 || s.MinStrike != 95 {
		t.Errorf("min = %v@%v", s.Min, s.MinStrike)
	}
	if s.Mean != 17.5 {
		t.Errorf("mean = %v", s.Mean)
	}
	if s.Median != 25 {
		t.Errorf("median = %v", s.Median)
	}
	wantStd := math.Sqrt((7.5*7.5 + 37.5*37.5 + 22.5*22.5 + 22.5*22.5) / 4)
	if math.Abs(s.Std-wantStd) > 1e-9 {
		t.Errorf("std = %v, want %v", s.Std, wantStd)
	}
	if math.Abs(s.SpotVariation-0.05) > 1e-12 {
		t.Errorf("spot variation = %v", s.SpotVariation)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, 0, 10)
	if !math.IsNaN(s.Mean) || !math.IsNaN(s.Max) || !math.IsNaN(s.Std) {
		t.Errorf("expected NaN stats, got %+v", s)
	}
	if !math.IsInf(s.SpotVariation, 1) {
		t.Errorf("expected +Inf spot variation, got %v", s.SpotVariation)
	}
}

// Property: every reported variation is finite and matches its inputs.
func TestProperty_VariationFinite(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("finite and consistent", prop.ForAll(
		func(v1, v2 []int) bool {
			n := len(v1)
			if len(v2) < n {
				n = len(v2)
			}
			cur := make([]models.OptionRecord, n)
			cmp := make([]models.OptionRecord, n)
			for i := 0; i < n; i++ {
				sym := string(rune('A' + i%26))
				cur[i] = row(sym, float64(100+i), float64(v1[i]), 0, 30)
				cmp[i] = row(sym, float64(100+i), float64(v2[i]), 0, 30)
			}
			points, err := Compare(cur, cmp, allStrikes(ModeVolume))
			if err != nil {
				return false
			}
			for _, p := range points {
				if math.IsNaN(p.Pct) || math.IsInf(p.Pct, 0) {
					return false
				}
				if p.Compare != 0 && math.Abs(p.Pct-(p.Current-p.Compare)/p.Compare*100) > 1e-9 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 50)),
		gen.SliceOf(gen.IntRange(0, 50)),
	))

	properties.TestingRun(t)
}
