// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/marketdata"
	"options-analyzer/internal/models"
)

const dateLayout = "2006-01-02"

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- One row per acquired chain
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		date TEXT NOT NULL,
		hour TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(ticker, date, hour)
	);

	-- Chain rows; missing numbers are stored as NULL
	CREATE TABLE IF NOT EXISTS option_rows (
		snapshot_id INTEGER NOT NULL,
		contract_symbol TEXT NOT NULL,
		underlying_symbol TEXT,
		underlying_price REAL,
		expiration TEXT,
		dte INTEGER NOT NULL,
		strike REAL,
		option_type TEXT NOT NULL,
		open_interest REAL,
		volume REAL,
		implied_volatility REAL,
		delta REAL,
		gamma REAL,
		theta REAL,
		vega REAL,
		bid REAL,
		ask REAL,
		FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
	);

	-- Underlying OHLCV bars, timestamps in unix seconds
	CREATE TABLE IF NOT EXISTS price_bars (
		ticker TEXT NOT NULL,
		interval TEXT NOT NULL,
		ts INTEGER NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		PRIMARY KEY (ticker, interval, ts)
	);

	-- Contract conventions per option symbol
	CREATE TABLE IF NOT EXISTS underlyings (
		symbol TEXT PRIMARY KEY,
		underlying_ticker TEXT NOT NULL,
		change TEXT NOT NULL,
		quotation_type TEXT NOT NULL,
		quotation_type_value REAL NOT NULL,
		lot_size INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_ticker_date ON snapshots(ticker, date);
	CREATE INDEX IF NOT EXISTS idx_option_rows_snapshot ON option_rows(snapshot_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Snapshot Methods
// ============================================================================

// SaveSnapshot stores a chain, replacing any snapshot with the same ticker,
// date and hour.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	if snap.Meta.Ticker == "" || snap.Meta.Hour == "" || snap.Meta.Date.IsZero() {
		return apperrors.NewValidationError("snapshot", snap.Meta, "ticker, date and hour are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	date := snap.Meta.Date.Format(dateLayout)
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE ticker = ? AND date = ? AND hour = ?`,
		snap.Meta.Ticker, date, snap.Meta.Hour); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (ticker, date, hour, row_count) VALUES (?, ?, ?, ?)
	`, snap.Meta.Ticker, date, snap.Meta.Hour, len(snap.Rows))
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read snapshot id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO option_rows (snapshot_id, contract_symbol, underlying_symbol, underlying_price, expiration, dte,
			strike, option_type, open_interest, volume, implied_volatility, delta, gamma, theta, vega, bid, ask)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range snap.Rows {
		var expiration string
		if !r.Expiration.IsZero() {
			expiration = r.Expiration.Format(dateLayout)
		}
		_, err := stmt.ExecContext(ctx, id, r.ContractSymbol, r.UnderlyingSymbol, nullable(r.UnderlyingPrice), expiration, r.DTE,
			nullable(r.Strike), string(r.Type), nullable(r.OpenInterest), nullable(r.Volume), nullable(r.ImpliedVolatility),
			nullable(r.Delta), nullable(r.Gamma), nullable(r.Theta), nullable(r.Vega), nullable(r.Bid), nullable(r.Ask))
		if err != nil {
			return fmt.Errorf("failed to insert option row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetSnapshot loads one snapshot. It returns ErrDataNotFound when absent.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, ticker string, date time.Time, hour string) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM snapshots WHERE ticker = ? AND date = ? AND hour = ?
	`, ticker, date.Format(dateLayout), hour).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewDataError("snapshot", ticker, fmt.Sprintf("no snapshot for %s %s", date.Format(dateLayout), hour), apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT contract_symbol, underlying_symbol, underlying_price, expiration, dte, strike, option_type,
			open_interest, volume, implied_volatility, delta, gamma, theta, vega, bid, ask
		FROM option_rows WHERE snapshot_id = ? ORDER BY rowid ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query option rows: %w", err)
	}
	defer rows.Close()

	snap := &models.Snapshot{Meta: models.SnapshotMeta{Ticker: ticker, Date: truncateDay(date), Hour: hour}}
	for rows.Next() {
		var (
			r                                                 models.OptionRecord
			underlying, expiration, typ                       sql.NullString
			spot, strike, oi, vol, iv, delta, gamma, theta, v sql.NullFloat64
			bid, ask                                          sql.NullFloat64
		)
		if err := rows.Scan(&r.ContractSymbol, &underlying, &spot, &expiration, &r.DTE, &strike, &typ,
			&oi, &vol, &iv, &delta, &gamma, &theta, &v, &bid, &ask); err != nil {
			return nil, fmt.Errorf("failed to scan option row: %w", err)
		}
		r.UnderlyingSymbol = underlying.String
		r.Type = models.OptionType(typ.String)
		if expiration.String != "" {
			if t, err := time.Parse(dateLayout, expiration.String); err == nil {
				r.Expiration = t
			}
		}
		r.UnderlyingPrice, r.Strike = orNaN(spot), orNaN(strike)
		r.OpenInterest, r.Volume, r.ImpliedVolatility = orNaN(oi), orNaN(vol), orNaN(iv)
		r.Delta, r.Gamma, r.Theta, r.Vega = orNaN(delta), orNaN(gamma), orNaN(theta), orNaN(v)
		r.Bid, r.Ask = orNaN(bid), orNaN(ask)
		snap.Rows = append(snap.Rows, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating option rows: %w", err)
	}

	return snap, nil
}

// ListSnapshots returns snapshot metadata in ascending date and hour order.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]models.SnapshotMeta, error) {
	query := "SELECT ticker, date, hour FROM snapshots WHERE 1=1"
	args := []interface{}{}

	if filter.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, filter.Ticker)
	}
	if !filter.StartDate.IsZero() {
		query += " AND date >= ?"
		args = append(args, filter.StartDate.Format(dateLayout))
	}
	if !filter.EndDate.IsZero() {
		query += " AND date <= ?"
		args = append(args, filter.EndDate.Format(dateLayout))
	}
	if filter.Hour != "" {
		query += " AND hour = ?"
		args = append(args, filter.Hour)
	}

	query += " ORDER BY ticker ASC, date ASC, hour ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var metas []models.SnapshotMeta
	for rows.Next() {
		var m models.SnapshotMeta
		var date string
		if err := rows.Scan(&m.Ticker, &date, &m.Hour); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if m.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("invalid snapshot date %q: %w", date, err)
		}
		metas = append(metas, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return metas, nil
}

// DeleteSnapshot removes a snapshot and its rows.
func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, meta models.SnapshotMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE ticker = ? AND date = ? AND hour = ?`,
		meta.Ticker, meta.Date.Format(dateLayout), meta.Hour)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewDataError("snapshot", meta.Ticker, "nothing to delete", apperrors.ErrDataNotFound)
	}
	return nil
}

// ============================================================================
// Price Bar Methods
// ============================================================================

// SaveBars saves bars to the database, replacing bars at the same timestamps.
func (s *SQLiteStore) SaveBars(ctx context.Context, ticker string, interval models.Interval, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO price_bars (ticker, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, ticker, string(interval), b.Timestamp.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Bars returns the stored bars of req.Ticker in [req.From, req.To), in UTC
// and ascending order. It makes the store a marketdata.BarSource.
func (s *SQLiteStore) Bars(ctx context.Context, req marketdata.BarRequest) ([]models.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM price_bars
		WHERE ticker = ? AND interval = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, req.Ticker, string(req.Interval), req.From.Unix(), req.To.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		var ts int64
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.Timestamp = time.Unix(ts, 0).UTC()
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}

	return bars, nil
}

// GetBarsFreshness returns the timestamp of the most recent bar.
func (s *SQLiteStore) GetBarsFreshness(ctx context.Context, ticker string, interval models.Interval) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(ts) FROM price_bars WHERE ticker = ? AND interval = ?
	`, ticker, string(interval)).Scan(&ts)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("failed to get bars freshness: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}

// ============================================================================
// Underlying Methods
// ============================================================================

// SaveUnderlying stores the contract conventions of an option symbol.
func (s *SQLiteStore) SaveUnderlying(ctx context.Context, symbol string, info models.UnderlyingInfo) error {
	if _, err := info.PremiumFactor(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO underlyings (symbol, underlying_ticker, change, quotation_type, quotation_type_value, lot_size, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, symbol, info.Ticker, info.Change, string(info.QuotationType), info.QuotationTypeValue, info.LotSize)
	if err != nil {
		return fmt.Errorf("failed to save underlying: %w", err)
	}
	return nil
}

// GetUnderlying loads the conventions of an option symbol.
func (s *SQLiteStore) GetUnderlying(ctx context.Context, symbol string) (*models.UnderlyingInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var info models.UnderlyingInfo
	var qt string
	err := s.db.QueryRowContext(ctx, `
		SELECT underlying_ticker, change, quotation_type, quotation_type_value, lot_size
		FROM underlyings WHERE symbol = ?
	`, symbol).Scan(&info.Ticker, &info.Change, &qt, &info.QuotationTypeValue, &info.LotSize)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewDataError("underlying", symbol, "unknown option symbol", apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query underlying: %w", err)
	}
	info.QuotationType = models.QuotationType(qt)
	return &info, nil
}

// ListUnderlyings returns every stored option symbol and its conventions.
func (s *SQLiteStore) ListUnderlyings(ctx context.Context) (map[string]models.UnderlyingInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, underlying_ticker, change, quotation_type, quotation_type_value, lot_size
		FROM underlyings ORDER BY symbol ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query underlyings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.UnderlyingInfo)
	for rows.Next() {
		var symbol, qt string
		var info models.UnderlyingInfo
		if err := rows.Scan(&symbol, &info.Ticker, &info.Change, &qt, &info.QuotationTypeValue, &info.LotSize); err != nil {
			return nil, fmt.Errorf("failed to scan underlying: %w", err)
		}
		info.QuotationType = models.QuotationType(qt)
		out[symbol] = info
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating underlyings: %w", err)
	}

	return out, nil
}

// nullable maps NaN to SQL NULL.
func nullable(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
