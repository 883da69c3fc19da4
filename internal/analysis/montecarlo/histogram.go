package montecarlo

import (
	"math"
	"sort"
)

// Range is a closed [Lo, Hi] bin range.
type Range struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// Histogram is a probability-mass histogram of simulated payoffs.
type Histogram struct {
	Edges []float64 `json:"edges"`
	// Prob[i] is the share of values in [Edges[i], Edges[i+1]); the last bin
	// also holds its right edge.
	Prob []float64 `json:"prob"`

	MaxProb      float64 `json:"max_prob"`
	MaxProbRange Range   `json:"max_prob_range"`
	MinProb      float64 `json:"min_prob"`
	MinProbRange Range   `json:"min_prob_range"`

	MaxPayoff     float64 `json:"max_payoff"`
	MinPayoff     float64 `json:"min_payoff"`
	MaxPayoffProb float64 `json:"max_payoff_prob"`
	MinPayoffProb float64 `json:"min_payoff_prob"`

	Positive    float64 `json:"positive"`
	NonPositive float64 `json:"non_positive"`
}

// BinWidth returns the bin count for n values, floor(sqrt(n))·10, which is
// also used as the bin width in payoff units.
func BinWidth(n int) float64 {
	return math.Floor(math.Sqrt(float64(n))) * 10
}

// BuildHistogram bins values into bins of width BinWidth(len(values))
// starting at the minimum. The modal and least populated bins are the first
// ones found. The mass at the extreme payoffs is read from the bin each
// extreme falls into with a half-open lookup, so a maximum lying on the last
// edge reports zero.
func BuildHistogram(values []float64) Histogram {
	var h Histogram
	n := len(values)
	if n == 0 {
		return h
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	var positive int
	for _, v := range values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
		if v > 0 {
			positive++
		}
	}
	h.MaxPayoff, h.MinPayoff = hi, lo
	h.Positive = float64(positive) / float64(n)
	h.NonPositive = float64(n-positive) / float64(n)

	width := BinWidth(n)
	count := int(math.Ceil((hi + width - lo) / width))
	if count < 2 {
		count = 2
	}
	h.Edges = make([]float64, count)
	for i := range h.Edges {
		h.Edges[i] = lo + float64(i)*width
	}

	bins := len(h.Edges) - 1
	counts := make([]int, bins)
	last := h.Edges[bins]
	for _, v := range values {
		var idx int
		if v == last {
			idx = bins - 1
		} else {
			idx = sort.SearchFloat64s(h.Edges, v)
			if idx < len(h.Edges) && h.Edges[idx] == v {
				idx++
			}
			idx--
		}
		if idx >= 0 && idx < bins {
			counts[idx]++
		}
	}

	var total int
	for _, c := range counts {
		total += c
	}
	h.Prob = make([]float64, bins)
	for i, c := range counts {
		if total > 0 {
			h.Prob[i] = float64(c) / float64(total)
		}
	}

	maxIdx, minIdx := 0, 0
	for i, p := range h.Prob {
		if p > h.Prob[maxIdx] {
			maxIdx = i
		}
		if p < h.Prob[minIdx] {
			minIdx = i
		}
	}
	h.MaxProb, h.MaxProbRange = h.Prob[maxIdx], Range{h.Edges[maxIdx], h.Edges[maxIdx+1]}
	h.MinProb, h.MinProbRange = h.Prob[minIdx], Range{h.Edges[minIdx], h.Edges[minIdx+1]}

	h.MaxPayoffProb = h.massAt(hi)
	h.MinPayoffProb = h.massAt(lo)
	return h
}

// massAt returns the probability of the bin i with Edges[i] <= v < Edges[i+1],
// or 0 when v lies outside every such bin.
func (h Histogram) massAt(v float64) float64 {
	idx := sort.Search(len(h.Edges), func(i int) bool { return h.Edges[i] > v }) - 1
	if idx < 0 || idx >= len(h.Prob) {
		return 0
	}
	return h.Prob[idx]
}
