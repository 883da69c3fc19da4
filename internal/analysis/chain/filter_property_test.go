package chain

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/models"
)

var baseDate = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// recordGen generates option rows with DTE in [0, 120] and strikes in [50, 150].
func recordGen() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 120),
		gen.Float64Range(50, 150),
		gen.Bool(),
		gen.Float64Range(0, 5000),
	).Map(func(vals []interface{}) models.OptionRecord {
		dte := vals[0].(int)
		typ := models.Call
		if vals[2].(bool) {
			typ = models.Put
		}
		return models.OptionRecord{
			ContractSymbol: fmt.Sprintf("X%d%.2f%s", dte, vals[1].(float64), typ),
			DTE:            dte,
			Expiration:     baseDate.AddDate(0, 0, dte),
			Strike:         vals[1].(float64),
			Type:           typ,
			OpenInterest:   vals[3].(float64),
			Volume:         vals[3].(float64) / 2,
		}
	})
}

// Property: filtering with the same parameters twice equals filtering once.
func TestProperty_FilterIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("filter(filter(t)) == filter(t)", prop.ForAll(
		func(rows []models.OptionRecord, lo, width float64, peak int, showDays bool) bool {
			axis := AxisFor(showDays)
			value := fmt.Sprintf("%d", peak)
			if !showDays {
				value = baseDate.AddDate(0, 0, peak).Format("2006-01-02")
			}
			opts := FilterOptions{Axis: axis, Expiration: Peak(value), StrikeLow: lo, StrikeHigh: lo + width}

			once, err := Filter(rows, opts)
			if err != nil {
				return false
			}
			twice, err := Filter(once, opts)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(once, twice)
		},
		gen.SliceOf(recordGen()),
		gen.Float64Range(40, 120),
		gen.Float64Range(0, 80),
		gen.IntRange(0, 120),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property: every surviving strike lies strictly inside the bounds.
func TestProperty_FilterStrikeExclusive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("lo < strike < hi for every output row", prop.ForAll(
		func(rows []models.OptionRecord, lo, width float64) bool {
			out, err := Filter(rows, FilterOptions{Axis: AxisDays, Expiration: All(), StrikeLow: lo, StrikeHigh: lo + width})
			if err != nil {
				return false
			}
			for _, r := range out {
				if r.Strike <= lo || r.Strike >= lo+width {
					return false
				}
			}
			return true
		},
		gen.SliceOf(recordGen()),
		gen.Float64Range(40, 120),
		gen.Float64Range(0, 80),
	))

	properties.Property("bounds equal to a strike exclude it", prop.ForAll(
		func(rec models.OptionRecord) bool {
			out, err := Filter([]models.OptionRecord{rec}, FilterOptions{Axis: AxisDays, StrikeLow: rec.Strike, StrikeHigh: rec.Strike + 10})
			return err == nil && len(out) == 0
		},
		recordGen(),
	))

	properties.TestingRun(t)
}

// Property: filtering never modifies its input.
func TestProperty_FilterPure(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("input rows unchanged", prop.ForAll(
		func(rows []models.OptionRecord, peak int) bool {
			before := make([]models.OptionRecord, len(rows))
			copy(before, rows)
			_, err := Filter(rows, FilterOptions{Axis: AxisDays, Expiration: Peak(fmt.Sprintf("%d", peak)), StrikeLow: 60, StrikeHigh: 140})
			if err != nil {
				return false
			}
			for i := range rows {
				if !reflect.DeepEqual(before[i], rows[i]) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(recordGen()),
		gen.IntRange(0, 120),
	))

	properties.TestingRun(t)
}

func TestFilter_Selectors(t *testing.T) {
	rows := []models.OptionRecord{
		{ContractSymbol: "A", DTE: 7, Expiration: baseDate.AddDate(0, 0, 7), Strike: 100, Type: models.Call},
		{ContractSymbol: "B", DTE: 30, Expiration: baseDate.AddDate(0, 0, 30), Strike: 100, Type: models.Put},
		{ContractSymbol: "C", DTE: 60, Expiration: baseDate.AddDate(0, 0, 60), Strike: 105, Type: models.Call},
		{ContractSymbol: "D", DTE: 30, Expiration: baseDate.AddDate(0, 0, 30), Strike: 120, Type: models.Call},
	}

	tests := []struct {
		name string
		opts FilterOptions
		want []string
	}{
		{"all", FilterOptions{Axis: AxisDays, Expiration: All(), StrikeLow: 0, StrikeHigh: 1000}, []string{"A", "B", "C", "D"}},
		{"specific days with unit", FilterOptions{Axis: AxisDays, Expiration: Specific("30 days"), StrikeLow: 0, StrikeHigh: 1000}, []string{"B", "D"}},
		{"specific dates", FilterOptions{Axis: AxisDate, Expiration: Specific("2024-03-08", "2024-04-30"), StrikeLow: 0, StrikeHigh: 1000}, []string{"A", "C"}},
		{"peak inclusive", FilterOptions{Axis: AxisDays, Expiration: Peak("30"), StrikeLow: 0, StrikeHigh: 1000}, []string{"A", "B", "D"}},
		{"peak by date", FilterOptions{Axis: AxisDate, Expiration: Peak("2024-03-08"), StrikeLow: 0, StrikeHigh: 1000}, []string{"A"}},
		{"empty specific is no filter", FilterOptions{Axis: AxisDays, Expiration: Specific(), StrikeLow: 0, StrikeHigh: 1000}, []string{"A", "B", "C", "D"}},
		{"strike bounds exclusive", FilterOptions{Axis: AxisDays, StrikeLow: 100, StrikeHigh: 120}, []string{"C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Filter(rows, tt.opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var got []string
			for _, r := range out {
				got = append(got, r.ContractSymbol)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_InvalidSelectorValue(t *testing.T) {
	rows := []models.OptionRecord{{DTE: 7, Strike: 100}}

	_, err := Filter(rows, FilterOptions{Axis: AxisDays, Expiration: Specific("soon"), StrikeLow: 0, StrikeHigh: 1000})
	if !errors.Is(err, apperrors.ErrInvalidSelector) {
		t.Errorf("expected ErrInvalidSelector, got %v", err)
	}

	_, err = Filter(rows, FilterOptions{Axis: AxisDate, Expiration: Peak("not-a-date"), StrikeLow: 0, StrikeHigh: 1000})
	if !errors.Is(err, apperrors.ErrInvalidSelector) {
		t.Errorf("expected ErrInvalidSelector, got %v", err)
	}

	if _, err := ParseSelector("ItemChosen", nil); !errors.Is(err, apperrors.ErrInvalidSelector) {
		t.Errorf("expected ErrInvalidSelector for unknown kind, got %v", err)
	}
}

func TestDateForDays(t *testing.T) {
	rows := []models.OptionRecord{
		{DTE: 7, Expiration: baseDate.AddDate(0, 0, 7)},
		{DTE: 30, Expiration: baseDate.AddDate(0, 0, 30)},
	}
	got, ok := DateForDays(rows, 30)
	if !ok || !got.Equal(baseDate.AddDate(0, 0, 30)) {
		t.Errorf("DateForDays(30) = %v, %v", got, ok)
	}
	if _, ok := DateForDays(rows, 45); ok {
		t.Error("expected no date for 45 days")
	}
}
