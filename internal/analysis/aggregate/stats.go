package aggregate

import (
	"math"
	"sort"

	"options-analyzer/internal/models"
)

// SideStats summarises one side of a strike pivot.
type SideStats struct {
	Total        float64 `json:"total"`
	Max          float64 `json:"max"`
	MaxStrike    float64 `json:"max_strike"`
	Min          float64 `json:"min"`
	MinStrike    float64 `json:"min_strike"`
	MedianStrike float64 `json:"median_strike"`
}

// VolumeStats summarises a metric of a strike pivot for both sides.
type VolumeStats struct {
	Call         SideStats `json:"call"`
	Put          SideStats `json:"put"`
	PutCallRatio float64   `json:"put_call_ratio"`
}

// Summarize computes per-side extremes, the cumulative median strike and the
// put/call ratio of metric. When either side has no rows at all every field
// is zero. The ratio is +Inf when the call total is zero.
func Summarize(p *Pivot[float64], metric string) VolumeStats {
	if !p.HasColumn(metric, ColCall) || !p.HasColumn(metric, ColPut) {
		return VolumeStats{}
	}

	stats := VolumeStats{
		Call: sideStats(p, metric, ColCall),
		Put:  sideStats(p, metric, ColPut),
	}
	if stats.Call.Total != 0 {
		stats.PutCallRatio = stats.Put.Total / stats.Call.Total
	} else {
		stats.PutCallRatio = math.Inf(1)
	}
	return stats
}

func sideStats(p *Pivot[float64], metric string, col Column) SideStats {
	s := SideStats{Max: math.Inf(-1), Min: math.Inf(1)}
	values := p.Column(metric, col)

	for i, v := range values {
		if !v.Valid {
			continue
		}
		s.Total += v.Value
		if v.Value > s.Max {
			s.Max, s.MaxStrike = v.Value, p.Keys[i]
		}
		if v.Value < s.Min {
			s.Min, s.MinStrike = v.Value, p.Keys[i]
		}
	}

	if s.Total > 0 {
		s.MedianStrike = cumulativeMedian(p.Keys, values, s.Total)
	}
	return s
}

// cumulativeMedian returns the first strike at which the running sum reaches
// half of total. Keys are already ascending.
func cumulativeMedian(strikes []float64, values []models.NullFloat, total float64) float64 {
	cumsum := make([]float64, len(values))
	var running float64
	for i, v := range values {
		running += v.Or(0)
		cumsum[i] = running
	}
	idx := sort.SearchFloat64s(cumsum, total/2)
	if idx > len(strikes)-1 {
		idx = len(strikes) - 1
	}
	return strikes[idx]
}
