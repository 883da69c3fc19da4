package volatility

import (
	"math"
	"sort"

	"options-analyzer/internal/models"
)

// TermPoint is the contract chosen to represent one expiration bucket.
type TermPoint struct {
	DTE    int     `json:"dte"`
	Strike float64 `json:"strike"`
	IV     float64 `json:"iv"`
	Delta  float64 `json:"delta"`
}

// TermResult is an implied volatility read off a term structure. DTELow and
// DTEHigh are the bracketing buckets, NaN when not bracketed.
type TermResult struct {
	IV      float64 `json:"iv"`
	DTELow  float64 `json:"dte_1"`
	DTEHigh float64 `json:"dte_2"`
}

func nanTerm() TermResult {
	nan := math.NaN()
	return TermResult{IV: nan, DTELow: nan, DTEHigh: nan}
}

// pickByDTE returns, for each DTE bucket of the given side, the first row
// minimising score, sorted by DTE. NaN scores never win.
func pickByDTE(rows []models.OptionRecord, t models.OptionType, score func(models.OptionRecord) float64) []TermPoint {
	type best struct {
		rec   models.OptionRecord
		score float64
	}
	buckets := make(map[int]*best)
	for _, r := range rows {
		if r.Type != t {
			continue
		}
		s := score(r)
		if math.IsNaN(s) {
			continue
		}
		b, ok := buckets[r.DTE]
		if !ok || s < b.score {
			buckets[r.DTE] = &best{rec: r, score: s}
		}
	}

	points := make([]TermPoint, 0, len(buckets))
	for dte, b := range buckets {
		points = append(points, TermPoint{DTE: dte, Strike: b.rec.Strike, IV: b.rec.ImpliedVolatility, Delta: b.rec.Delta})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].DTE < points[j].DTE })
	return points
}

// ATMByDTE picks, per expiration, the strike nearest to the row's underlying price.
func ATMByDTE(rows []models.OptionRecord, t models.OptionType) []TermPoint {
	return pickByDTE(rows, t, func(r models.OptionRecord) float64 {
		return math.Abs(r.Strike - r.UnderlyingPrice)
	})
}

// DeltaByDTE picks, per expiration, the strike whose absolute delta is nearest
// to target. Puts are compared on |delta|.
func DeltaByDTE(rows []models.OptionRecord, t models.OptionType, target float64) []TermPoint {
	return pickByDTE(rows, t, func(r models.OptionRecord) float64 {
		d := r.Delta
		if t == models.Put {
			d = math.Abs(d)
		}
		return math.Abs(d - target)
	})
}

// InterpolateTerm reads the IV at target days from points sorted by DTE.
// An exact bucket is returned as is, tagged with target on both sides.
// Otherwise the nearest buckets below and above are linearly interpolated; a
// single available side is returned unmodified; no points gives NaN.
func InterpolateTerm(points []TermPoint, target int) TermResult {
	if len(points) == 0 {
		return nanTerm()
	}

	for _, p := range points {
		if p.DTE == target {
			return TermResult{IV: p.IV, DTELow: float64(target), DTEHigh: float64(target)}
		}
	}

	below, above := -1, -1
	for i, p := range points {
		if p.DTE <= target {
			below = i
		}
		if p.DTE >= target && above < 0 {
			above = i
		}
	}

	res := nanTerm()
	switch {
	case below >= 0 && above >= 0:
		lo, hi := points[below], points[above]
		res.IV = lo.IV + float64(target-lo.DTE)*(hi.IV-lo.IV)/float64(hi.DTE-lo.DTE)
		res.DTELow, res.DTEHigh = float64(lo.DTE), float64(hi.DTE)
	case below >= 0:
		res.IV = points[below].IV
	case above >= 0:
		res.IV = points[above].IV
	}
	return res
}

// ATMIndicator is the at-the-money IV of both sides and their mean.
type ATMIndicator struct {
	Mean float64 `json:"mean_iv"`
	Call float64 `json:"call_iv"`
	Put  float64 `json:"put_iv"`
	DTE1 float64 `json:"dte_1"`
	DTE2 float64 `json:"dte_2"`
}

// NearestATM reads the ATM IV of the nearest expiration of each side.
// DTE1 and DTE2 are the call and put expirations used.
func NearestATM(rows []models.OptionRecord) ATMIndicator {
	nan := math.NaN()
	ind := ATMIndicator{Call: nan, Put: nan, DTE1: nan, DTE2: nan}
	if calls := ATMByDTE(rows, models.Call); len(calls) > 0 {
		ind.Call, ind.DTE1 = calls[0].IV, float64(calls[0].DTE)
	}
	if puts := ATMByDTE(rows, models.Put); len(puts) > 0 {
		ind.Put, ind.DTE2 = puts[0].IV, float64(puts[0].DTE)
	}
	ind.Mean = (ind.Call + ind.Put) / 2
	return ind
}

// TargetATM interpolates the ATM IV of each side to target days.
// DTE1 and DTE2 are the call-side bracketing buckets.
func TargetATM(rows []models.OptionRecord, target int) ATMIndicator {
	call := InterpolateTerm(ATMByDTE(rows, models.Call), target)
	put := InterpolateTerm(ATMByDTE(rows, models.Put), target)
	return ATMIndicator{
		Mean: (call.IV + put.IV) / 2,
		Call: call.IV,
		Put:  put.IV,
		DTE1: call.DTELow,
		DTE2: call.DTEHigh,
	}
}

// SkewKind selects how call and put wing IVs combine.
type SkewKind string

const (
	// SkewClassic is call IV minus put IV.
	SkewClassic SkewKind = "classic"
	// SkewButterfly is the wing average multiplied by the ATM IV.
	SkewButterfly SkewKind = "butterfly"
)

// SkewIndicator is a delta-targeted skew read at a target maturity.
type SkewIndicator struct {
	Skew float64 `json:"iv_skew"`
	Call float64 `json:"call_iv"`
	Put  float64 `json:"put_iv"`
	DTE1 float64 `json:"dte_1"`
	DTE2 float64 `json:"dte_2"`
}

// DeltaSkew interpolates the IV of the target-delta call and put to target
// days and combines them according to kind.
func DeltaSkew(rows []models.OptionRecord, target int, delta float64, kind SkewKind) SkewIndicator {
	call := InterpolateTerm(DeltaByDTE(rows, models.Call, delta), target)
	put := InterpolateTerm(DeltaByDTE(rows, models.Put, delta), target)

	ind := SkewIndicator{Call: call.IV, Put: put.IV, DTE1: call.DTELow, DTE2: call.DTEHigh}
	switch kind {
	case SkewButterfly:
		ind.Skew = (call.IV + put.IV) / 2 * TargetATM(rows, target).Mean
	default:
		ind.Skew = call.IV - put.IV
	}
	return ind
}
