package volatility

import (
	"errors"
	"math"
	"strings"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

// SmoothMethod selects how a smile is smoothed.
type SmoothMethod string

const (
	SmoothNone          SmoothMethod = "none"
	SmoothInterpolate   SmoothMethod = "interpolate"
	SmoothSavitzkyGolay SmoothMethod = "savgol"
)

// ParseSmoothMethod maps a config value to a method. Unknown values mean none.
func ParseSmoothMethod(s string) SmoothMethod {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "interpolate", "pchip":
		return SmoothInterpolate
	case "savgol", "savitzky-golay":
		return SmoothSavitzkyGolay
	default:
		return SmoothNone
	}
}

var errTooFewPoints = errors.New("too few points to smooth")

const (
	minSmoothPoints = 3
	pchipSamples    = 100
	savgolWindow    = 5
	savgolOrder     = 2
)

// Smooth applies method to the (strike, iv) series. Interpolation resamples the
// non-negative points with a monotone cubic on 100 evenly spaced strikes,
// clipped at zero. Savitzky-Golay filters the positive points. With fewer than
// three usable points, or when fitting fails, the usable points are returned
// unchanged.
func Smooth(x, y []float64, method SmoothMethod) ([]float64, []float64) {
	if len(x) == 0 || len(y) == 0 {
		return nil, nil
	}
	switch method {
	case SmoothInterpolate:
		xv, yv := mask(x, y, func(v float64) bool { return v >= 0 })
		if len(xv) < minSmoothPoints {
			return xv, yv
		}
		xs, ys, err := SmoothPCHIP(xv, yv)
		if err != nil {
			return xv, yv
		}
		return xs, ys
	case SmoothSavitzkyGolay:
		xv, yv := mask(x, y, func(v float64) bool { return v >= 0 })
		if len(xv) < minSmoothPoints {
			return xv, yv
		}
		xv, yv = mask(x, y, func(v float64) bool { return v > 0 })
		if len(yv) < minSmoothPoints {
			return xv, yv
		}
		ys, err := SmoothSavGol(yv)
		if err != nil {
			return xv, yv
		}
		return xv, ys
	default:
		return x, y
	}
}

func mask(x, y []float64, keep func(float64) bool) ([]float64, []float64) {
	var xv, yv []float64
	for i := range y {
		if i < len(x) && keep(y[i]) {
			xv = append(xv, x[i])
			yv = append(yv, y[i])
		}
	}
	return xv, yv
}

// SmoothPCHIP fits a monotone piecewise cubic through (x, y) and samples it at
// 100 evenly spaced points across [min x, max x], clipping at zero. x must be
// strictly increasing.
func SmoothPCHIP(x, y []float64) ([]float64, []float64, error) {
	if len(x) < minSmoothPoints || len(x) != len(y) {
		return nil, nil, errTooFewPoints
	}
	for i := 1; i < len(x); i++ {
		if !(x[i] > x[i-1]) {
			return nil, nil, errors.New("strikes must be strictly increasing")
		}
	}

	var fb interp.FritschButland
	if err := fb.Fit(x, y); err != nil {
		return nil, nil, err
	}

	lo, hi := x[0], x[len(x)-1]
	xs := make([]float64, pchipSamples)
	ys := make([]float64, pchipSamples)
	step := (hi - lo) / float64(pchipSamples-1)
	for i := range xs {
		xs[i] = lo + float64(i)*step
		if i == pchipSamples-1 {
			xs[i] = hi
		}
		ys[i] = math.Max(0, fb.Predict(xs[i]))
	}
	return xs, ys, nil
}

// SmoothSavGol applies a Savitzky-Golay filter of polynomial order 2 with a
// window of min(5, n) forced odd. Near the edges the polynomial fitted to the
// first or last full window is evaluated in place.
func SmoothSavGol(y []float64) ([]float64, error) {
	n := len(y)
	if n < minSmoothPoints {
		return nil, errTooFewPoints
	}
	window := n
	if window%2 == 0 {
		window--
	}
	if window > savgolWindow {
		window = savgolWindow
	}
	half := window / 2

	out := make([]float64, n)
	for i := range y {
		start := i - half
		if start < 0 {
			start = 0
		}
		if start > n-window {
			start = n - window
		}
		coef, err := polyfit(y[start:start+window], savgolOrder)
		if err != nil {
			return nil, err
		}
		t := float64(i - start)
		out[i] = coef[0] + coef[1]*t + coef[2]*t*t
	}
	return out, nil
}

// polyfit returns least-squares coefficients c0..c_order of a polynomial in
// the sample index 0..len(y)-1.
func polyfit(y []float64, order int) ([]float64, error) {
	rows, cols := len(y), order+1
	a := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		v := 1.0
		for j := 0; j < cols; j++ {
			a.Set(i, j, v)
			v *= float64(i)
		}
	}
	b := mat.NewDense(rows, 1, append([]float64(nil), y...))

	var qr mat.QR
	qr.Factorize(a)
	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, b); err != nil {
		return nil, err
	}
	coef := make([]float64, cols)
	for j := range coef {
		coef[j] = sol.At(j, 0)
	}
	return coef, nil
}
