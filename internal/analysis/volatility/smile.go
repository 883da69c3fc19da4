// Package volatility implements implied and realized volatility analytics:
// smiles, term-structure interpolation, delta skew, realized-volatility
// estimators and the implied volatility surface.
package volatility

import (
	"math"
	"sort"

	"options-analyzer/internal/analysis/chain"
	"options-analyzer/internal/models"
)

// Frame tags which snapshot a smile point comes from.
type Frame string

const (
	FrameCurrent Frame = "current"
	FrameCompare Frame = "compare"
)

func (f Frame) rank() int {
	if f == FrameCompare {
		return 1
	}
	return 0
}

// SmileSet is one snapshot restricted to a list of expirations.
type SmileSet struct {
	Rows        []models.OptionRecord
	Expirations []string
}

// SmilePoint is the mean implied volatility, in percent, of each side at one
// (expiration, strike, frame).
type SmilePoint struct {
	Expiration int64            `json:"expiration"`
	Strike     float64          `json:"strike"`
	Frame      Frame            `json:"frame"`
	Call       models.NullFloat `json:"call"`
	Put        models.NullFloat `json:"put"`
}

// Side returns the value of one option side.
func (p SmilePoint) Side(t models.OptionType) models.NullFloat {
	if t == models.Put {
		return p.Put
	}
	return p.Call
}

type smileKey struct {
	exp    int64
	strike float64
	frame  Frame
}

type meanAcc struct {
	sum float64
	n   int
}

func (m *meanAcc) add(v float64) {
	if math.IsNaN(v) {
		return
	}
	m.sum += v
	m.n++
}

func (m meanAcc) value() models.NullFloat {
	if m.n == 0 {
		return models.None()
	}
	return models.Some(m.sum / float64(m.n))
}

// Smile pivots the selected expirations of current (and of compare when not
// nil) into per-strike call and put IV in percent, averaging duplicates.
// Points are ordered by expiration, strike, then frame. An empty expiration
// list selects nothing.
func Smile(axis chain.ExpirationAxis, current SmileSet, compare *SmileSet) ([]SmilePoint, error) {
	type acc struct{ call, put meanAcc }
	groups := make(map[smileKey]*acc)

	collect := func(set SmileSet, frame Frame) error {
		keys, err := chain.Specific(set.Expirations...).Keys(axis)
		if err != nil {
			return err
		}
		wanted := make(map[int64]struct{}, len(keys))
		for _, k := range keys {
			wanted[k] = struct{}{}
		}
		for _, r := range set.Rows {
			exp, ok := axis.Key(r)
			if !ok || math.IsNaN(r.Strike) {
				continue
			}
			if _, hit := wanted[exp]; !hit {
				continue
			}
			k := smileKey{exp: exp, strike: r.Strike, frame: frame}
			a, exists := groups[k]
			if !exists {
				a = &acc{}
				groups[k] = a
			}
			switch r.Type {
			case models.Call:
				a.call.add(r.ImpliedVolatility * 100)
			case models.Put:
				a.put.add(r.ImpliedVolatility * 100)
			}
		}
		return nil
	}

	if err := collect(current, FrameCurrent); err != nil {
		return nil, err
	}
	if compare != nil {
		if err := collect(*compare, FrameCompare); err != nil {
			return nil, err
		}
	}

	points := make([]SmilePoint, 0, len(groups))
	for k, a := range groups {
		p := SmilePoint{Expiration: k.exp, Strike: k.strike, Frame: k.frame, Call: a.call.value(), Put: a.put.value()}
		// A row whose sides are both missing is not part of the pivot.
		if !p.Call.Valid && !p.Put.Valid {
			continue
		}
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool {
		a, b := points[i], points[j]
		if a.Expiration != b.Expiration {
			return a.Expiration < b.Expiration
		}
		if a.Strike != b.Strike {
			return a.Strike < b.Strike
		}
		return a.Frame.rank() < b.Frame.rank()
	})
	return points, nil
}

// Moneyness selects which side of the spot a smile keeps.
type Moneyness string

const (
	MoneynessAll Moneyness = "All"
	MoneynessOTM Moneyness = "OTM"
	MoneynessITM Moneyness = "ITM"
)

// SpotMode selects the reference spot and comparison used by ApplyMoneyness.
type SpotMode int

const (
	// SpotCurrent uses one point-in-time spot for every frame, inclusive.
	SpotCurrent SpotMode = iota
	// SpotSnapshot uses each frame's acquisition spot, strict.
	SpotSnapshot
)

// Spots holds the reference prices for ApplyMoneyness.
type Spots struct {
	Current float64 // live spot used by SpotCurrent
	Frame1  float64 // acquisition spot of the current frame
	Frame2  float64 // acquisition spot of the compare frame
}

// ApplyMoneyness blanks the sides outside the requested moneyness. OTM keeps
// calls at or above spot and puts at or below it; ITM is the complement.
// In SpotSnapshot mode the comparisons are strict.
func ApplyMoneyness(points []SmilePoint, m Moneyness, mode SpotMode, spots Spots) []SmilePoint {
	out := make([]SmilePoint, len(points))
	copy(out, points)
	if m != MoneynessOTM && m != MoneynessITM {
		return out
	}

	for i := range out {
		p := &out[i]
		spot := spots.Current
		if mode == SpotSnapshot {
			spot = spots.Frame1
			if p.Frame == FrameCompare {
				spot = spots.Frame2
			}
		}

		var keepCall, keepPut bool
		switch {
		case mode == SpotCurrent && m == MoneynessOTM:
			keepCall, keepPut = p.Strike >= spot, p.Strike <= spot
		case mode == SpotCurrent && m == MoneynessITM:
			keepCall, keepPut = p.Strike <= spot, p.Strike >= spot
		case m == MoneynessOTM:
			keepCall, keepPut = p.Strike > spot, p.Strike < spot
		default:
			keepCall, keepPut = p.Strike < spot, p.Strike > spot
		}
		if !keepCall {
			p.Call = models.None()
		}
		if !keepPut {
			p.Put = models.None()
		}
	}
	return out
}

// Curve is one plotted smile line.
type Curve struct {
	Expiration int64             `json:"expiration"`
	Frame      Frame             `json:"frame"`
	Type       models.OptionType `json:"type"`
	Strikes    []float64         `json:"strikes"`
	IV         []float64         `json:"iv"`
}

// SmileCurves splits points into one curve per (frame, expiration, side) and
// smooths each. A side is drawn only when it has a positive value.
func SmileCurves(points []SmilePoint, method SmoothMethod) []Curve {
	type curveKey struct {
		frame Frame
		exp   int64
	}
	var order []curveKey
	byKey := make(map[curveKey][]SmilePoint)
	for _, p := range points {
		k := curveKey{frame: p.Frame, exp: p.Expiration}
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], p)
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].frame != order[j].frame {
			return order[i].frame.rank() < order[j].frame.rank()
		}
		return order[i].exp < order[j].exp
	})

	var curves []Curve
	for _, k := range order {
		group := byKey[k]
		for _, t := range []models.OptionType{models.Call, models.Put} {
			x := make([]float64, len(group))
			y := make([]float64, len(group))
			positive := false
			for i, p := range group {
				x[i] = p.Strike
				y[i] = p.Side(t).Float()
				if y[i] > 0 {
					positive = true
				}
			}
			if !positive {
				continue
			}
			xs, ys := Smooth(x, y, method)
			if len(xs) == 0 {
				continue
			}
			curves = append(curves, Curve{Expiration: k.exp, Frame: k.frame, Type: t, Strikes: xs, IV: ys})
		}
	}
	return curves
}
