// Package exposure computes dealer gamma, delta and vanna exposure per strike.
package exposure

import (
	"math"

	"options-analyzer/internal/analysis/aggregate"
	"options-analyzer/internal/models"
)

// Exposure metric names.
const (
	GEX    = "gex"
	AbsGEX = "abs_gex"
	DEX    = "dex"
	VEX    = "vex"
	AbsVEX = "abs_vex"
)

// sign returns +1 for calls and -1 for anything else.
func sign(t models.OptionType) float64 {
	if t == models.Call {
		return 1
	}
	return -1
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// GammaBase returns open_interest * gamma * lot * spot for one row.
func GammaBase(r models.OptionRecord, spot float64, lot int) float64 {
	return r.OpenInterest * r.Gamma * float64(lot) * spot
}

// Gamma aggregates signed and absolute gamma exposure per strike together with
// volume, open interest and adjusted volume. Calls count positive and puts
// negative in the signed column.
func Gamma(rows []models.OptionRecord, spot float64, lot int) *aggregate.Pivot[float64] {
	gex := aggregate.Metric{Name: GEX, Value: func(r models.OptionRecord) float64 {
		return zeroNaN(sign(r.Type) * GammaBase(r, spot, lot))
	}}
	abs := aggregate.Metric{Name: AbsGEX, Value: func(r models.OptionRecord) float64 {
		return zeroNaN(GammaBase(r, spot, lot))
	}}
	return aggregate.ByStrike(rows,
		aggregate.VolumeMetric,
		aggregate.OpenInterestMetric,
		aggregate.AdjVolumeMetric,
		gex,
		abs,
	)
}

// Delta aggregates open_interest * delta * lot per strike. Delta already
// carries the sign of the contract.
func Delta(rows []models.OptionRecord, lot int) *aggregate.Pivot[float64] {
	dex := aggregate.Metric{Name: DEX, Value: func(r models.OptionRecord) float64 {
		return r.OpenInterest * r.Delta * float64(lot)
	}}
	return aggregate.ByStrike(rows, dex)
}

// VannaParams configures VannaExposure.
type VannaParams struct {
	Spot    float64
	LotSize int
	// RatePercent is the annualised short rate in percent.
	RatePercent float64
	// TradingDays converts days to expiration into years. Zero means 252.
	TradingDays int
	// SingleSpot drops the second spot factor from the exposure.
	SingleSpot bool
}

func (p VannaParams) years(dte int) float64 {
	days := p.TradingDays
	if days <= 0 {
		days = 252
	}
	return float64(dte) / float64(days)
}

// RowVanna returns the Black-Scholes vanna of a row at the params' spot and
// rate, or 0 when the strike or implied volatility is missing.
func RowVanna(r models.OptionRecord, p VannaParams) float64 {
	if math.IsNaN(r.Strike) || math.IsNaN(r.ImpliedVolatility) {
		return 0
	}
	return Vanna(p.Spot, r.Strike, p.years(r.DTE), p.RatePercent/100, 0, r.ImpliedVolatility)
}

// VannaBase returns the unsigned vanna exposure of a row:
// open_interest * vanna * lot * spot * iv * spot.
func VannaBase(r models.OptionRecord, p VannaParams) float64 {
	base := r.OpenInterest * RowVanna(r, p) * float64(p.LotSize) * p.Spot * r.ImpliedVolatility
	if !p.SingleSpot {
		base *= p.Spot
	}
	return base
}

// VannaExposure aggregates signed and absolute vanna exposure per strike.
func VannaExposure(rows []models.OptionRecord, p VannaParams) *aggregate.Pivot[float64] {
	vex := aggregate.Metric{Name: VEX, Value: func(r models.OptionRecord) float64 {
		return zeroNaN(sign(r.Type) * VannaBase(r, p))
	}}
	abs := aggregate.Metric{Name: AbsVEX, Value: func(r models.OptionRecord) float64 {
		return zeroNaN(VannaBase(r, p))
	}}
	return aggregate.ByStrike(rows, vex, abs)
}
