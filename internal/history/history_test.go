package history

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"options-analyzer/internal/analysis/volatility"
	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/marketdata"
	"options-analyzer/internal/models"
	"options-analyzer/internal/performance"
	"options-analyzer/internal/store"
)

type memSnapshots struct {
	metas  []models.SnapshotMeta
	rows   []models.OptionRecord
	broken string // hour whose snapshot fails to load
}

func (m *memSnapshots) ListSnapshots(_ context.Context, f store.SnapshotFilter) ([]models.SnapshotMeta, error) {
	var out []models.SnapshotMeta
	for _, meta := range m.metas {
		if meta.Ticker != f.Ticker {
			continue
		}
		if (!f.StartDate.IsZero() && meta.Date.Before(f.StartDate)) || (!f.EndDate.IsZero() && meta.Date.After(f.EndDate)) {
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

func (m *memSnapshots) GetSnapshot(_ context.Context, ticker string, date time.Time, hour string) (*models.Snapshot, error) {
	if hour == m.broken {
		return nil, errors.New("corrupt snapshot")
	}
	return &models.Snapshot{Meta: models.SnapshotMeta{Ticker: ticker, Date: date, Hour: hour}, Rows: m.rows}, nil
}

type flatBars struct {
	ch chan marketdata.BarRequest
}

// Bars returns one flat daily bar per day of the window.
func (f *flatBars) Bars(_ context.Context, req marketdata.BarRequest) ([]models.Bar, error) {
	f.ch <- req
	if req.Ticker != "^SPX" {
		return nil, nil
	}
	var bars []models.Bar
	for t := req.From; t.Before(req.To); t = t.AddDate(0, 0, 1) {
		bars = append(bars, models.Bar{Timestamp: t, Open: 100, High: 100, Low: 100, Close: 100})
	}
	return bars, nil
}

func row(typ models.OptionType, dte int, strike, iv, delta float64) models.OptionRecord {
	return models.OptionRecord{
		ContractSymbol:    fmt.Sprintf("SPX%d%s%.0f", dte, typ, strike),
		UnderlyingPrice:   100,
		DTE:               dte,
		Strike:            strike,
		Type:              typ,
		ImpliedVolatility: iv,
		Delta:             delta,
	}
}

func testChain() []models.OptionRecord {
	return []models.OptionRecord{
		row(models.Call, 10, 100, 0.30, 0.5),
		row(models.Put, 10, 100, 0.32, -0.5),
		row(models.Call, 30, 100, 0.20, 0.5),
		row(models.Put, 30, 100, 0.22, -0.5),
		row(models.Call, 30, 110, 0.18, 0.25),
		row(models.Put, 30, 90, 0.25, -0.25),
	}
}

func newTestService(t *testing.T, snaps *memSnapshots) (*Service, *flatBars) {
	t.Helper()
	pool := performance.NewWorkerPool(2)
	pool.Start()
	t.Cleanup(pool.Stop)

	bars := &flatBars{ch: make(chan marketdata.BarRequest, 64)}
	svc := NewService(snaps, bars, time.UTC, pool, zerolog.Nop())
	svc.SetClock(func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) })
	return svc, bars
}

func testSnapshots() *memSnapshots {
	d1 := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	return &memSnapshots{
		metas: []models.SnapshotMeta{
			{Ticker: "SPX", Date: d1, Hour: "15_30"},
			{Ticker: "SPX", Date: d2, Hour: "10_00"},
			{Ticker: "SPX", Date: d2, Hour: "21_59"},
		},
		rows:   testChain(),
		broken: "10_00",
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestATM_TargetSeries(t *testing.T) {
	svc, bars := newTestService(t, testSnapshots())
	req := Request{
		Symbol: "SPX", UnderlyingTicker: "^SPX",
		From: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		TargetDTE: 30,
	}

	points, err := svc.ATM(context.Background(), req, ExpiryTarget)
	if err != nil {
		t.Fatalf("ATM: %v", err)
	}
	// The broken snapshot is skipped.
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if !points[0].Time.Equal(time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC)) || !points[1].Time.Before(time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected times %v, %v", points[0].Time, points[1].Time)
	}
	p := points[0]
	if !approx(p.MeanIV.Value, 0.21) || !approx(p.CallIV.Value, 0.20) || !approx(p.PutIV.Value, 0.22) {
		t.Errorf("unexpected IVs %+v", p)
	}
	if p.DTE1.Value != 30 || p.DTE2.Value != 30 {
		t.Errorf("unexpected DTEs %+v", p)
	}
	if !p.RV.Valid || p.RV.Value != 0 {
		t.Errorf("flat bars should give zero RV, got %+v", p.RV)
	}

	close(bars.ch)
	for r := range bars.ch {
		if r.Interval != models.Interval1d {
			t.Errorf("old snapshots should use daily bars, got %s", r.Interval)
		}
		if r.To.Sub(r.From) != 30*24*time.Hour {
			t.Errorf("expected a 30 day window, got %v", r.To.Sub(r.From))
		}
	}
}

func TestATM_NearestSeries(t *testing.T) {
	svc, bars := newTestService(t, testSnapshots())
	req := Request{Symbol: "SPX", UnderlyingTicker: "^SPX", TargetDTE: 30}

	points, err := svc.ATM(context.Background(), req, ExpiryNearest)
	if err != nil {
		t.Fatalf("ATM: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	p := points[1]
	if !approx(p.CallIV.Value, 0.30) || !approx(p.PutIV.Value, 0.32) || p.DTE1.Value != 10 || p.DTE2.Value != 10 {
		t.Errorf("unexpected nearest indicator %+v", p)
	}
	if !p.RV.Valid || p.RV.Value != 0 {
		t.Errorf("expected Parkinson RV 0, got %+v", p.RV)
	}

	close(bars.ch)
	for r := range bars.ch {
		if r.To.Sub(r.From) != 10*24*time.Hour {
			t.Errorf("expected a window spanning the nearest DTE, got %v", r.To.Sub(r.From))
		}
	}
}

func TestATM_MissingBarsGiveNullRV(t *testing.T) {
	svc, _ := newTestService(t, testSnapshots())
	points, err := svc.ATM(context.Background(), Request{Symbol: "SPX", UnderlyingTicker: "^NDX", TargetDTE: 30}, ExpiryTarget)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range points {
		if p.RV.Valid {
			t.Errorf("expected null RV, got %v", p.RV.Value)
		}
	}
}

func TestSkewSeries(t *testing.T) {
	svc, _ := newTestService(t, testSnapshots())
	req := Request{Symbol: "SPX", TargetDTE: 30, Delta: 0.25, Skew: volatility.SkewClassic}

	points, err := svc.Skew(context.Background(), req)
	if err != nil {
		t.Fatalf("Skew: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	p := points[0]
	if math.Abs(p.Skew.Value-(-7)) > 1e-9 || math.Abs(p.CallIV.Value-18) > 1e-9 || math.Abs(p.PutIV.Value-25) > 1e-9 {
		t.Errorf("unexpected skew point %+v", p)
	}

	req.Skew = volatility.SkewButterfly
	points, _ = svc.Skew(context.Background(), req)
	want := (0.18 + 0.25) / 2 * 0.21 * 100
	if math.Abs(points[0].Skew.Value-want) > 1e-9 {
		t.Errorf("butterfly = %v, want %v", points[0].Skew.Value, want)
	}
}

func TestSeries_NoSnapshots(t *testing.T) {
	svc, _ := newTestService(t, testSnapshots())
	_, err := svc.Skew(context.Background(), Request{Symbol: "NDX"})
	if !errors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("expected ErrDataNotFound, got %v", err)
	}
}

func TestParseExpiry(t *testing.T) {
	cases := map[string]Expiry{"nearest": ExpiryNearest, "closest": ExpiryNearest, "30": ExpiryTarget, "": ExpiryTarget}
	for in, want := range cases {
		if got, err := ParseExpiry(in); err != nil || got != want {
			t.Errorf("ParseExpiry(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseExpiry("weekly"); err == nil {
		t.Error("expected error")
	}
}
