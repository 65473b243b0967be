package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"marketsim/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

const dsnOptions = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/marketsim.db"
	RunID  string // every row written is tagged with this run
}

// RunInfo describes one engine run recorded in the archive.
type RunInfo struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Seed      int64     `json:"seed"`
	Tickers   []string  `json:"tickers"`
}

// archivedPoint is one price point with its ticker, the unit of batching.
type archivedPoint struct {
	ticker string
	point  model.PricePoint
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db    *sql.DB
	runID string

	// OnCommit is called after each successful batch commit.
	OnCommit func(rows int, took time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// RunID returns the run every row is tagged with.
func (w *Writer) RunID() string { return w.runID }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	if cfg.RunID == "" {
		return nil, fmt.Errorf("sqlite: run id is required")
	}
	db, err := sql.Open("sqlite3", cfg.DBPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s (run %s)", cfg.DBPath, cfg.RunID)
	return &Writer{db: db, runID: cfg.RunID}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id     TEXT    PRIMARY KEY,
			started_at INTEGER NOT NULL,
			seed       INTEGER NOT NULL,
			tickers    TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS price_points (
			run_id TEXT    NOT NULL,
			ticker TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			price  REAL    NOT NULL,
			volume INTEGER NOT NULL,
			PRIMARY KEY (run_id, ticker, ts)
		);

		CREATE TABLE IF NOT EXISTS daily_bars (
			run_id TEXT    NOT NULL,
			ticker TEXT    NOT NULL,
			day    INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			volume INTEGER NOT NULL,
			points INTEGER NOT NULL,
			PRIMARY KEY (run_id, ticker, day)
		);
	`)
	return err
}

// RecordRun stores the run's metadata. Recording the same run twice
// replaces the earlier row.
func (w *Writer) RecordRun(info RunInfo) error {
	tickers, err := json.Marshal(info.Tickers)
	if err != nil {
		return fmt.Errorf("marshal tickers: %w", err)
	}
	_, err = w.db.Exec(
		`INSERT OR REPLACE INTO runs (run_id, started_at, seed, tickers) VALUES (?, ?, ?, ?)`,
		w.runID, info.StartedAt.Unix(), info.Seed, string(tickers),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert run: %w", err)
	}
	return nil
}

// Run reads updates and archives every generated point in batched
// transactions. Flushes every batchSize points OR every flushDelay,
// whichever first. Blocks until ctx is cancelled or updates is closed.
func (w *Writer) Run(ctx context.Context, updates <-chan model.Update) {
	batch := make([]archivedPoint, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.commitPoints(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case u, ok := <-updates:
			if !ok {
				flush()
				return
			}
			if !u.Generated {
				continue
			}
			for _, iu := range u.Instruments {
				if iu.Point != nil {
					batch = append(batch, archivedPoint{ticker: iu.Ticker, point: *iu.Point})
				}
			}
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// WritePoints archives a whole history for one ticker, in chunks of
// batchSize per transaction.
func (w *Writer) WritePoints(ticker string, points []model.PricePoint) error {
	batch := make([]archivedPoint, 0, defaultBatchSize)
	for _, p := range points {
		batch = append(batch, archivedPoint{ticker: ticker, point: p})
		if len(batch) == defaultBatchSize {
			if err := w.commitPoints(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	return w.commitPoints(batch)
}

func (w *Writer) commitPoints(batch []archivedPoint) error {
	if len(batch) == 0 {
		return nil
	}
	start := time.Now()
	if err := w.insertPoints(batch); err != nil {
		return err
	}
	if w.OnCommit != nil {
		w.OnCommit(len(batch), time.Since(start))
	}
	return nil
}

// insertPoints inserts a batch of points in a single transaction.
func (w *Writer) insertPoints(points []archivedPoint) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO price_points (run_id, ticker, ts, price, volume)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		_, err := stmt.Exec(w.runID, p.ticker, p.point.Timestamp.Unix(), p.point.Price, p.point.Volume)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// RunBars reads daily bars from a channel and inserts them in batched transactions.
func (w *Writer) RunBars(ctx context.Context, bars <-chan model.Bar) {
	batch := make([]model.Bar, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBars(batch); err != nil {
			log.Printf("[sqlite] bar batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d daily bars in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case b, ok := <-bars:
			if !ok {
				flush()
				return
			}
			batch = append(batch, b)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// WriteBars stores bars that were built outside the live stream, such as
// the completed days of a replayed backfill.
func (w *Writer) WriteBars(bars []model.Bar) error {
	for len(bars) > 0 {
		n := min(len(bars), defaultBatchSize)
		if err := w.insertBars(bars[:n]); err != nil {
			return fmt.Errorf("sqlite insert bars: %w", err)
		}
		bars = bars[n:]
	}
	return nil
}

// insertBars inserts a batch of daily bars in a single transaction.
func (w *Writer) insertBars(bars []model.Bar) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO daily_bars (run_id, ticker, day, open, high, low, close, volume, points)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.Exec(w.runID, b.Ticker, b.TS.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume, b.Points)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
