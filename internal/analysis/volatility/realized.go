package volatility

import (
	"math"
	"time"

	"options-analyzer/internal/models"
)

const (
	tradingDays  = 252
	sessionHours = 6.5
)

// IntradayVol annualises hourly close-to-close log returns:
// sqrt(sum(r²)/N)·sqrt(252·6.5), N being the number of bars.
// Returns NaN without bars.
func IntradayVol(bars []models.Bar) float64 {
	return closeToClose(bars) * math.Sqrt(tradingDays*sessionHours)
}

// DailyVol annualises daily close-to-close log returns:
// sqrt(sum(r²)/N)·sqrt(252).
func DailyVol(bars []models.Bar) float64 {
	return closeToClose(bars) * math.Sqrt(tradingDays)
}

func closeToClose(bars []models.Bar) float64 {
	if len(bars) == 0 {
		return math.NaN()
	}
	var sum float64
	for i := 1; i < len(bars); i++ {
		r := math.Log(bars[i].Close / bars[i-1].Close)
		if math.IsNaN(r) {
			continue
		}
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(bars)))
}

// ParkinsonVol estimates volatility from daily high-low ranges:
// sqrt(sum((ln H - ln L)²) / (4 ln2 (N-1)))·sqrt(252).
// Returns NaN with fewer than two bars.
func ParkinsonVol(bars []models.Bar) float64 {
	if len(bars) < 2 {
		return math.NaN()
	}
	var sum float64
	for _, b := range bars {
		hl := math.Log(b.High) - math.Log(b.Low)
		if math.IsNaN(hl) {
			continue
		}
		sum += hl * hl
	}
	return math.Sqrt(sum/(4*math.Ln2*float64(len(bars)-1))) * math.Sqrt(tradingDays)
}

// TruncateAt keeps the bars up to and including the bar closest to t.
// Bars must be in time order.
func TruncateAt(bars []models.Bar, t time.Time) []models.Bar {
	if len(bars) == 0 {
		return nil
	}
	closest := 0
	best := absDuration(bars[0].Timestamp.Sub(t))
	for i := 1; i < len(bars); i++ {
		if d := absDuration(bars[i].Timestamp.Sub(t)); d < best {
			closest, best = i, d
		}
	}
	limit := bars[closest].Timestamp
	out := make([]models.Bar, 0, closest+1)
	for _, b := range bars {
		if !b.Timestamp.After(limit) {
			out = append(out, b)
		}
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Estimator names a realized-volatility formula.
type Estimator string

const (
	EstimatorIntraday  Estimator = "intraday"
	EstimatorParkinson Estimator = "parkinson"
	EstimatorDaily     Estimator = "daily"
)

// Window is a half-open [Start, End) bar request.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RVPlan describes how to measure realized volatility for one snapshot:
// request Windows in order until one returns bars, optionally truncate at
// the snapshot time, then apply the estimator.
type RVPlan struct {
	Interval  models.Interval `json:"interval"`
	Windows   []Window        `json:"windows"`
	Truncate  bool            `json:"truncate"`
	At        time.Time       `json:"at"`
	Estimator Estimator       `json:"estimator"`
}

// Compute applies the plan's estimator to bars fetched for one of its windows.
func (p RVPlan) Compute(bars []models.Bar) float64 {
	if p.Truncate {
		bars = TruncateAt(bars, p.At)
	}
	switch p.Estimator {
	case EstimatorIntraday:
		return IntradayVol(bars)
	case EstimatorParkinson:
		return ParkinsonVol(bars)
	default:
		return DailyVol(bars)
	}
}

const (
	nearestRecentDays = 30
	fixedRecentDays   = 50
	fixedWindowDays   = 30
	hourlyRetries     = 7
)

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NearestPlan measures volatility over the life of the nearest expiration.
// Snapshots within 30 days of now use hourly bars from dte days before the
// snapshot date (at least one, widened a day at a time up to six more days)
// until the snapshot date, truncated at the snapshot time. Older snapshots
// use the Parkinson estimator on daily bars over the same span.
func NearestPlan(at time.Time, dte int, now time.Time) RVPlan {
	day := startOfDay(at)
	days := dte
	if days < 1 {
		days = 1
	}

	if !at.Before(now.AddDate(0, 0, -nearestRecentDays)) {
		windows := make([]Window, hourlyRetries)
		for i := range windows {
			windows[i] = Window{Start: day.AddDate(0, 0, -(days + i)), End: day}
		}
		return RVPlan{Interval: models.Interval1h, Windows: windows, Truncate: true, At: at, Estimator: EstimatorIntraday}
	}

	return RVPlan{
		Interval:  models.Interval1d,
		Windows:   []Window{{Start: day.AddDate(0, 0, -days), End: day}},
		At:        at,
		Estimator: EstimatorParkinson,
	}
}

// FixedPlan measures volatility over the 30 days before a snapshot. Snapshots
// within 50 days of now use hourly bars through the end of the snapshot day,
// truncated at the snapshot time; older ones use daily close-to-close returns.
func FixedPlan(at time.Time, now time.Time) RVPlan {
	day := startOfDay(at)
	start := day.AddDate(0, 0, -fixedWindowDays)

	if !at.Before(now.AddDate(0, 0, -fixedRecentDays)) {
		return RVPlan{
			Interval:  models.Interval1h,
			Windows:   []Window{{Start: start, End: day.AddDate(0, 0, 1)}},
			Truncate:  true,
			At:        at,
			Estimator: EstimatorIntraday,
		}
	}

	return RVPlan{
		Interval:  models.Interval1d,
		Windows:   []Window{{Start: start, End: day}},
		At:        at,
		Estimator: EstimatorDaily,
	}
}
