package volatility

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"options-analyzer/internal/analysis/chain"
	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/models"
)

// SurfaceMode selects which side feeds the surface.
type SurfaceMode string

const (
	SurfaceCall SurfaceMode = "call"
	SurfacePut  SurfaceMode = "put"
	SurfaceMean SurfaceMode = "mean"
)

// ParseSurfaceMode parses a surface side. Unknown values fall back to calls.
func ParseSurfaceMode(s string) SurfaceMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "put":
		return SurfacePut
	case "mean":
		return SurfaceMean
	default:
		return SurfaceCall
	}
}

// SurfaceOptions configures Surface.
type SurfaceOptions struct {
	Mode       SurfaceMode
	StrikeLow  float64
	StrikeHigh float64
	// MaxDTE keeps expirations at or before this many days when set.
	MaxDTE string
	// Resolution is the number of grid nodes per axis. Zero means 50.
	Resolution int
}

// SurfacePoint is one scattered (strike, dte, iv) observation.
type SurfacePoint struct {
	Strike float64 `json:"strike"`
	DTE    float64 `json:"dte"`
	IV     float64 `json:"iv"`
}

// SurfaceGrid is IV sampled on a regular strike × DTE grid. IV[i][j] is the
// value at DTEs[i], Strikes[j], NaN outside the convex hull of the data.
type SurfaceGrid struct {
	Strikes []float64   `json:"strikes"`
	DTEs    []float64   `json:"dtes"`
	IV      [][]float64 `json:"iv"`
	Points  int         `json:"points"`
}

type surfaceKey struct {
	strike float64
	dte    int
}

// SurfacePoints selects the observations feeding the surface. Mean mode
// averages call and put IV and keeps only pairs quoted on both sides.
// Duplicate (strike, dte) observations are averaged.
func SurfacePoints(rows []models.OptionRecord, opts SurfaceOptions) ([]SurfacePoint, error) {
	maxDTE := math.MaxInt
	if strings.TrimSpace(opts.MaxDTE) != "" {
		v, err := strconv.Atoi(strings.Fields(opts.MaxDTE)[0])
		if err != nil {
			return nil, apperrors.NewValidationErrorFor(apperrors.ErrInvalidSelector, "expiration", opts.MaxDTE, "peak must be a number of days")
		}
		maxDTE = v
	}

	type acc struct{ call, put meanAcc }
	groups := make(map[surfaceKey]*acc)
	var order []surfaceKey
	for _, r := range rows {
		if !chain.InStrikeRange(r.Strike, opts.StrikeLow, opts.StrikeHigh) || r.DTE > maxDTE {
			continue
		}
		if math.IsNaN(r.ImpliedVolatility) {
			continue
		}
		k := surfaceKey{strike: r.Strike, dte: r.DTE}
		a, ok := groups[k]
		if !ok {
			a = &acc{}
			groups[k] = a
			order = append(order, k)
		}
		switch r.Type {
		case models.Call:
			a.call.add(r.ImpliedVolatility)
		case models.Put:
			a.put.add(r.ImpliedVolatility)
		}
	}

	points := make([]SurfacePoint, 0, len(order))
	for _, k := range order {
		a := groups[k]
		var v models.NullFloat
		switch opts.Mode {
		case SurfacePut:
			v = a.put.value()
		case SurfaceMean:
			c, p := a.call.value(), a.put.value()
			if c.Valid && p.Valid {
				v = models.Some((c.Value + p.Value) / 2)
			}
		default:
			v = a.call.value()
		}
		if v.Valid {
			points = append(points, SurfacePoint{Strike: k.strike, DTE: float64(k.dte), IV: v.Value})
		}
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].DTE != points[j].DTE {
			return points[i].DTE < points[j].DTE
		}
		return points[i].Strike < points[j].Strike
	})
	return points, nil
}

// Surface linearly interpolates IV over a resolution × resolution grid spanning
// the observed strikes and DTEs. It fails when fewer than three points remain
// or when they are collinear.
func Surface(rows []models.OptionRecord, opts SurfaceOptions) (*SurfaceGrid, error) {
	points, err := SurfacePoints(rows, opts)
	if err != nil {
		return nil, err
	}
	return InterpolateSurface(points, opts.Resolution)
}

// InterpolateSurface grids scattered points by piecewise-linear interpolation
// over their Delaunay triangulation.
func InterpolateSurface(points []SurfacePoint, resolution int) (*SurfaceGrid, error) {
	if resolution <= 0 {
		resolution = 50
	}
	if len(points) < 3 {
		return nil, apperrors.Wrapf(apperrors.ErrInsufficientData, "surface needs at least 3 points, have %d", len(points))
	}

	pts := make([]point2, len(points))
	values := make([]float64, len(points))
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i, p := range points {
		pts[i] = point2{p.Strike, p.DTE}
		values[i] = p.IV
		minX, maxX = math.Min(minX, p.Strike), math.Max(maxX, p.Strike)
		minY, maxY = math.Min(minY, p.DTE), math.Max(maxY, p.DTE)
	}
	if collinear(pts) {
		return nil, apperrors.Wrap(apperrors.ErrDegenerateGeometry, "surface points are collinear")
	}

	tris := triangulate(pts)
	if len(tris) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrDegenerateGeometry, "triangulation is empty")
	}
	li := &linearInterpolator{pts: pts, values: values, tris: tris}

	grid := &SurfaceGrid{
		Strikes: linspace(minX, maxX, resolution),
		DTEs:    linspace(minY, maxY, resolution),
		IV:      make([][]float64, resolution),
		Points:  len(points),
	}
	for i, dte := range grid.DTEs {
		row := make([]float64, resolution)
		for j, strike := range grid.Strikes {
			row[j] = li.at(point2{strike, dte})
		}
		grid.IV[i] = row
	}
	return grid, nil
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = lo
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}
