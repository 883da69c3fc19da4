// Package variation measures the relative change of volume or open interest
// between two snapshots of the same chain.
package variation

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"options-analyzer/internal/analysis/aggregate"
	"options-analyzer/internal/analysis/chain"
	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/models"
	"options-analyzer/pkg/utils"
)

// Mode selects the compared metric.
type Mode string

const (
	ModeVolume   Mode = "volume"
	ModeVolAndOI Mode = "volAndOI"
	ModeOI       Mode = "oi"
)

// ParseMode parses a metric mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "volume":
		return ModeVolume, nil
	case "volandoi", "vol+oi", "adj_volume":
		return ModeVolAndOI, nil
	case "oi", "open_interest":
		return ModeOI, nil
	default:
		return "", apperrors.NewValidationError("mode", s, "must be volume, volAndOI or oi")
	}
}

// Options configures Compare.
type Options struct {
	Type       models.OptionType
	Axis       chain.ExpirationAxis
	Expiration chain.ExpirationSelector
	StrikeLow  float64
	StrikeHigh float64
	Mode       Mode
	// SymmetricOI compares open interest on both snapshots in ModeOI.
	// Otherwise the second snapshot contributes its volume.
	SymmetricOI bool
}

// Point is the variation at one strike.
type Point struct {
	Strike  float64 `json:"strike"`
	Current float64 `json:"current"`
	Compare float64 `json:"compare"`
	Pct     float64 `json:"variation_pct"`
}

// Compare returns the per-strike percentage change (current-compare)/compare*100
// for contracts present in both snapshots. Strikes missing on either side and
// infinite variations are dropped; 0/0 is reported as 0.
func Compare(current, compare []models.OptionRecord, opts Options) ([]Point, error) {
	typ := opts.Type
	if !typ.Valid() {
		typ = models.Call
	}

	df1 := chain.ByType(current, typ)
	df2 := chain.ByType(compare, typ)
	df1, df2 = commonContracts(df1, df2)

	match, err := expirationFilter(df1, opts)
	if err != nil {
		return nil, err
	}
	df1 = keep(df1, match, opts)
	df2 = keep(df2, match, opts)

	m1, m2 := metrics(opts)
	col := aggregate.ColumnFor(typ)
	p1 := aggregate.ByStrike(df1, m1)
	p2 := aggregate.ByStrike(df2, m2)

	points := make([]Point, 0, p1.Len())
	for i, strike := range p1.Keys {
		j := p2.Index(strike)
		if j < 0 {
			continue
		}
		a := p1.Cell(m1.Name, i).Get(col)
		b := p2.Cell(m2.Name, j).Get(col)
		if !a.Valid || !b.Valid {
			continue
		}
		pct := (a.Value - b.Value) / b.Value * 100
		if math.IsNaN(pct) {
			pct = 0
		}
		if math.IsInf(pct, 0) {
			continue
		}
		points = append(points, Point{Strike: strike, Current: a.Value, Compare: b.Value, Pct: pct})
	}
	return points, nil
}

func metrics(opts Options) (aggregate.Metric, aggregate.Metric) {
	switch opts.Mode {
	case ModeVolume:
		return aggregate.VolumeMetric, aggregate.VolumeMetric
	case ModeOI:
		if opts.SymmetricOI {
			return aggregate.OpenInterestMetric, aggregate.OpenInterestMetric
		}
		// Same name on both sides so the cells line up.
		return aggregate.OpenInterestMetric, aggregate.Metric{Name: aggregate.OpenInterest, Value: aggregate.VolumeMetric.Value}
	default:
		return aggregate.AdjVolumeMetric, aggregate.AdjVolumeMetric
	}
}

func commonContracts(a, b []models.OptionRecord) ([]models.OptionRecord, []models.OptionRecord) {
	inA := make(map[string]struct{}, len(a))
	for _, r := range a {
		inA[r.ContractSymbol] = struct{}{}
	}
	inB := make(map[string]struct{}, len(b))
	for _, r := range b {
		inB[r.ContractSymbol] = struct{}{}
	}

	outA := make([]models.OptionRecord, 0, len(a))
	for _, r := range a {
		if _, ok := inB[r.ContractSymbol]; ok {
			outA = append(outA, r)
		}
	}
	outB := make([]models.OptionRecord, 0, len(b))
	for _, r := range b {
		if _, ok := inA[r.ContractSymbol]; ok {
			outB = append(outB, r)
		}
	}
	return outA, outB
}

// expirationFilter resolves the selector to calendar dates using the current
// snapshot, so both snapshots are cut at the same expirations.
func expirationFilter(current []models.OptionRecord, opts Options) (func(models.OptionRecord) bool, error) {
	sel := opts.Expiration
	if sel.Empty() {
		return func(models.OptionRecord) bool { return true }, nil
	}

	keys, err := sel.Keys(opts.Axis)
	if err != nil {
		return nil, err
	}

	dateKey := func(r models.OptionRecord) (int64, bool) { return chain.AxisDate.Key(r) }

	switch sel.Kind {
	case chain.SelectSpecific:
		dates := make(map[int64]struct{})
		if opts.Axis == chain.AxisDays {
			wanted := make(map[int64]struct{}, len(keys))
			for _, k := range keys {
				wanted[k] = struct{}{}
			}
			for _, r := range current {
				if _, ok := wanted[int64(r.DTE)]; !ok {
					continue
				}
				if d, ok := dateKey(r); ok {
					dates[d] = struct{}{}
				}
			}
		} else {
			for _, k := range keys {
				dates[k] = struct{}{}
			}
		}
		return func(r models.OptionRecord) bool {
			d, ok := dateKey(r)
			if !ok {
				return false
			}
			_, hit := dates[d]
			return hit
		}, nil

	case chain.SelectPeak:
		limit := keys[0]
		if opts.Axis == chain.AxisDays {
			date, ok := chain.DateForDays(current, int(limit))
			if !ok {
				return nil, apperrors.NewValidationErrorFor(apperrors.ErrInvalidSelector, "expiration", sel.Values[0],
					fmt.Sprintf("no contract expires in %d days", limit))
			}
			limit, _ = dateKey(models.OptionRecord{Expiration: date})
		}
		return func(r models.OptionRecord) bool {
			d, ok := dateKey(r)
			return ok && d <= limit
		}, nil

	default:
		return nil, apperrors.NewValidationErrorFor(apperrors.ErrInvalidSelector, "selector", sel.Kind, "must be All, Specific or Peak")
	}
}

func keep(rows []models.OptionRecord, match func(models.OptionRecord) bool, opts Options) []models.OptionRecord {
	out := make([]models.OptionRecord, 0, len(rows))
	for _, r := range rows {
		if match(r) && chain.InStrikeRange(r.Strike, opts.StrikeLow, opts.StrikeHigh) {
			out = append(out, r)
		}
	}
	return out
}

// Stats summarises a variation table.
type Stats struct {
	Max           float64 `json:"max_var"`
	MaxStrike     float64 `json:"max_var_strike"`
	Min           float64 `json:"min_var"`
	MinStrike     float64 `json:"min_var_strike"`
	Mean          float64 `json:"mean"`
	Median        float64 `json:"median"`
	Std           float64 `json:"std"`
	SpotVariation float64 `json:"st_var"`
}

// Summarize returns extremes (first occurrence), mean, median and population
// standard deviation of the variations, plus the relative spot change
// (spot1-spot2)/spot1. An empty table yields NaN statistics. SpotVariation is
// +Inf when spot1 is zero.
func Summarize(points []Point, spot1, spot2 float64) Stats {
	s := Stats{SpotVariation: math.Inf(1)}
	if spot1 != 0 {
		s.SpotVariation = (spot1 - spot2) / spot1
	}

	if len(points) == 0 {
		nan := math.NaN()
		s.Max, s.MaxStrike, s.Min, s.MinStrike = nan, nan, nan, nan
		s.Mean, s.Median, s.Std = nan, nan, nan
		return s
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Pct
	}

	s.Max, s.MaxStrike = points[0].Pct, points[0].Strike
	s.Min, s.MinStrike = points[0].Pct, points[0].Strike
	for _, p := range points[1:] {
		if p.Pct > s.Max {
			s.Max, s.MaxStrike = p.Pct, p.Strike
		}
		if p.Pct < s.Min {
			s.Min, s.MinStrike = p.Pct, p.Strike
		}
	}

	s.Mean = stat.Mean(values, nil)
	s.Median = utils.Median(values)
	s.Std = stat.PopStdDev(values, nil)
	return s
}
