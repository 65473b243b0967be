package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"marketsim/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNoRuns is returned by LatestRun on an empty archive.
var ErrNoRuns = errors.New("sqlite: archive has no runs")

// Reader provides read-only access to the archive.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadPoints returns a run's points for ticker with from <= ts < to, ordered
// by timestamp ascending. A zero from or to leaves that side open.
func (r *Reader) ReadPoints(runID, ticker string, from, to time.Time) ([]model.PricePoint, error) {
	lo, hi := bounds(from, to)
	rows, err := r.db.Query(`
		SELECT ts, price, volume
		FROM price_points
		WHERE run_id = ? AND ticker = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, runID, ticker, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("sqlite query price_points: %w", err)
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var tsUnix int64
		if err := rows.Scan(&tsUnix, &p.Price, &p.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan price_points: %w", err)
		}
		p.Timestamp = time.Unix(tsUnix, 0).UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

// ReadBars returns a run's daily bars for ticker with from <= day < to.
func (r *Reader) ReadBars(runID, ticker string, from, to time.Time) ([]model.Bar, error) {
	lo, hi := bounds(from, to)
	rows, err := r.db.Query(`
		SELECT ticker, day, open, high, low, close, volume, points
		FROM daily_bars
		WHERE run_id = ? AND ticker = ? AND day >= ? AND day < ?
		ORDER BY day ASC
	`, runID, ticker, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("sqlite query daily_bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var day int64
		if err := rows.Scan(&b.Ticker, &day, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Points); err != nil {
			return nil, fmt.Errorf("sqlite scan daily_bars: %w", err)
		}
		b.TS = time.Unix(day, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ListRuns returns every recorded run, newest first.
func (r *Reader) ListRuns() ([]RunInfo, error) {
	rows, err := r.db.Query(`SELECT run_id, started_at, seed, tickers FROM runs ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var info RunInfo
		var started int64
		var tickers string
		if err := rows.Scan(&info.ID, &started, &info.Seed, &tickers); err != nil {
			return nil, fmt.Errorf("sqlite scan runs: %w", err)
		}
		info.StartedAt = time.Unix(started, 0).UTC()
		if err := json.Unmarshal([]byte(tickers), &info.Tickers); err != nil {
			return nil, fmt.Errorf("unmarshal run tickers: %w", err)
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recently started run.
func (r *Reader) LatestRun() (RunInfo, error) {
	runs, err := r.ListRuns()
	if err != nil {
		return RunInfo{}, err
	}
	if len(runs) == 0 {
		return RunInfo{}, ErrNoRuns
	}
	return runs[0], nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}

func bounds(from, to time.Time) (int64, int64) {
	var lo, hi int64 = math.MinInt64, math.MaxInt64
	if !from.IsZero() {
		lo = from.Unix()
	}
	if !to.IsZero() {
		hi = to.Unix()
	}
	return lo, hi
}
