package exposure

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Vanna returns the Black-Scholes sensitivity of delta to volatility:
//
//	d1 = (ln(S/K) + (r - q + σ²/2)T) / (σ√T)
//	d2 = d1 - σ√T
//	vanna = e^(-qT) φ(d1) d2 / σ
//
// It is zero when T or sigma is not positive.
func Vanna(s, k, t, r, q, sigma float64) float64 {
	if t <= 0 || sigma <= 0 {
		return 0
	}
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(s/k) + (r-q+0.5*sigma*sigma)*t) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	return math.Exp(-q*t) * distuv.UnitNormal.Prob(d1) * d2 / sigma
}
