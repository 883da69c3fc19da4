// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"options-analyzer/internal/marketdata"
	"options-analyzer/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Snapshots
	SaveSnapshot(ctx context.Context, snap models.Snapshot) error
	GetSnapshot(ctx context.Context, ticker string, date time.Time, hour string) (*models.Snapshot, error)
	ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]models.SnapshotMeta, error)
	DeleteSnapshot(ctx context.Context, meta models.SnapshotMeta) error

	// Price bars
	SaveBars(ctx context.Context, ticker string, interval models.Interval, bars []models.Bar) error
	Bars(ctx context.Context, req marketdata.BarRequest) ([]models.Bar, error)
	GetBarsFreshness(ctx context.Context, ticker string, interval models.Interval) (time.Time, error)

	// Underlyings
	SaveUnderlying(ctx context.Context, symbol string, info models.UnderlyingInfo) error
	GetUnderlying(ctx context.Context, symbol string) (*models.UnderlyingInfo, error)
	ListUnderlyings(ctx context.Context) (map[string]models.UnderlyingInfo, error)

	// Lifecycle
	Close() error
}

// SnapshotFilter represents filters for listing snapshots.
type SnapshotFilter struct {
	Ticker    string
	StartDate time.Time // inclusive, zero means unbounded
	EndDate   time.Time // inclusive, zero means unbounded
	Hour      string
	Limit     int
}

