// Package aggregate groups option rows by strike or expiration and pivots the
// sums into call, put and All columns.
package aggregate

import (
	"cmp"
	"math"
	"slices"

	"options-analyzer/internal/analysis/chain"
	"options-analyzer/internal/models"
)

// Standard metric names.
const (
	Volume       = "volume"
	OpenInterest = "open_interest"
	AdjVolume    = "adj_volume"
)

// Column selects one side of a pivot cell.
type Column int

const (
	ColCall Column = iota
	ColPut
	ColAll
)

// String returns the column label.
func (c Column) String() string {
	switch c {
	case ColCall:
		return "call"
	case ColPut:
		return "put"
	default:
		return "All"
	}
}

// ColumnFor maps an option type to its pivot column.
func ColumnFor(t models.OptionType) Column {
	if t == models.Put {
		return ColPut
	}
	return ColCall
}

// Cell is one (key, metric) entry of a pivot.
// A side with no rows is invalid.
type Cell struct {
	Call models.NullFloat `json:"call"`
	Put  models.NullFloat `json:"put"`
	All  models.NullFloat `json:"All"`
}

// Get returns the value of the selected column.
func (c Cell) Get(col Column) models.NullFloat {
	switch col {
	case ColCall:
		return c.Call
	case ColPut:
		return c.Put
	default:
		return c.All
	}
}

// Metric extracts one summed quantity from an option row.
// NaN values count as zero in sums.
type Metric struct {
	Name  string
	Value func(models.OptionRecord) float64
}

// VolumeMetric sums traded volume.
var VolumeMetric = Metric{Name: Volume, Value: func(r models.OptionRecord) float64 { return r.Volume }}

// OpenInterestMetric sums open interest.
var OpenInterestMetric = Metric{Name: OpenInterest, Value: func(r models.OptionRecord) float64 { return r.OpenInterest }}

// AdjVolumeMetric sums open interest plus volume.
var AdjVolumeMetric = Metric{Name: AdjVolume, Value: func(r models.OptionRecord) float64 { return r.OpenInterest + r.Volume }}

// StandardMetrics returns volume, open interest and adjusted volume.
func StandardMetrics() []Metric {
	return []Metric{VolumeMetric, OpenInterestMetric, AdjVolumeMetric}
}

// MetricByName resolves a standard metric name.
func MetricByName(name string) (Metric, bool) {
	for _, m := range StandardMetrics() {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// Pivot is an ordered key index crossed with metric cells.
type Pivot[K cmp.Ordered] struct {
	Keys    []K
	Metrics []string
	cells   map[string][]Cell
}

// Row is one key of a pivot with all of its metric cells.
type Row[K cmp.Ordered] struct {
	Key   K               `json:"key"`
	Cells map[string]Cell `json:"cells"`
}

// Len returns the number of keys.
func (p *Pivot[K]) Len() int {
	return len(p.Keys)
}

// Cell returns the cell for metric at key index i.
func (p *Pivot[K]) Cell(metric string, i int) Cell {
	return p.cells[metric][i]
}

// Column returns one side of a metric across all keys.
func (p *Pivot[K]) Column(metric string, col Column) []models.NullFloat {
	cells := p.cells[metric]
	out := make([]models.NullFloat, len(cells))
	for i, c := range cells {
		out[i] = c.Get(col)
	}
	return out
}

// Total sums one side of a metric, counting invalid cells as zero.
func (p *Pivot[K]) Total(metric string, col Column) float64 {
	var sum float64
	for _, c := range p.cells[metric] {
		sum += c.Get(col).Or(0)
	}
	return sum
}

// HasColumn reports whether any key carries a valid value on col.
func (p *Pivot[K]) HasColumn(metric string, col Column) bool {
	for _, c := range p.cells[metric] {
		if c.Get(col).Valid {
			return true
		}
	}
	return false
}

// Index returns the position of key, or -1.
func (p *Pivot[K]) Index(key K) int {
	i, found := slices.BinarySearch(p.Keys, key)
	if !found {
		return -1
	}
	return i
}

// Rows returns the pivot as a key-ordered list.
func (p *Pivot[K]) Rows() []Row[K] {
	rows := make([]Row[K], len(p.Keys))
	for i, k := range p.Keys {
		cells := make(map[string]Cell, len(p.Metrics))
		for _, m := range p.Metrics {
			cells[m] = p.cells[m][i]
		}
		rows[i] = Row[K]{Key: k, Cells: cells}
	}
	return rows
}

type sums struct {
	call, put, all  []float64
	hasCall, hasPut bool
}

// Aggregate groups rows by key and option type, sums each metric, and adds
// the synthetic All side summed across types. Rows for which key reports
// false are skipped.
func Aggregate[K cmp.Ordered](rows []models.OptionRecord, key func(models.OptionRecord) (K, bool), metrics []Metric) *Pivot[K] {
	groups := make(map[K]*sums)
	for _, r := range rows {
		k, ok := key(r)
		if !ok {
			continue
		}
		g, exists := groups[k]
		if !exists {
			g = &sums{
				call: make([]float64, len(metrics)),
				put:  make([]float64, len(metrics)),
				all:  make([]float64, len(metrics)),
			}
			groups[k] = g
		}

		var side []float64
		switch r.Type {
		case models.Call:
			side = g.call
			g.hasCall = true
		case models.Put:
			side = g.put
			g.hasPut = true
		}

		for j, m := range metrics {
			v := m.Value(r)
			if math.IsNaN(v) {
				continue
			}
			g.all[j] += v
			if side != nil {
				side[j] += v
			}
		}
	}

	keys := make([]K, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	p := &Pivot[K]{
		Keys:    keys,
		Metrics: make([]string, len(metrics)),
		cells:   make(map[string][]Cell, len(metrics)),
	}
	for j, m := range metrics {
		p.Metrics[j] = m.Name
		cells := make([]Cell, len(keys))
		for i, k := range keys {
			g := groups[k]
			cells[i].All = models.Some(g.all[j])
			if g.hasCall {
				cells[i].Call = models.Some(g.call[j])
			}
			if g.hasPut {
				cells[i].Put = models.Some(g.put[j])
			}
		}
		p.cells[m.Name] = cells
	}
	return p
}

func strikeKey(r models.OptionRecord) (float64, bool) {
	return r.Strike, !math.IsNaN(r.Strike)
}

// ByStrike pivots rows by strike. With no metrics the standard set is used.
func ByStrike(rows []models.OptionRecord, metrics ...Metric) *Pivot[float64] {
	if len(metrics) == 0 {
		metrics = StandardMetrics()
	}
	return Aggregate(rows, strikeKey, metrics)
}

// ByExpiration pivots rows by expiration on the given axis.
func ByExpiration(rows []models.OptionRecord, axis chain.ExpirationAxis, metrics ...Metric) *Pivot[int64] {
	if len(metrics) == 0 {
		metrics = StandardMetrics()
	}
	return Aggregate(rows, axis.Key, metrics)
}
