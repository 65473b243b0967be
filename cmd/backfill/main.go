// cmd/backfill generates a run's history offline and stores it in the
// SQLite archive without starting the live clock.
//
// Usage:
//
//	go run ./cmd/backfill --db=data/marketsim.db --days=90 --seed=42
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"marketsim/config"
	"marketsim/internal/engine"
	"marketsim/internal/logger"
	"marketsim/internal/marketdata/series"
	"marketsim/internal/model"
	sqlitestore "marketsim/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[backfill] config: %v", err)
	}

	// Flags override the environment.
	dbPath := flag.String("db", cfg.SQLitePath, "Path to SQLite database")
	days := flag.Int("days", int(cfg.Lookback/(24*time.Hour)), "Days of history to generate")
	seed := flag.Int64("seed", cfg.Seed, "Random seed (0=wall clock)")
	until := flag.String("until", "", "End of the window, RFC3339 (default: now)")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("[backfill] no database path; set --db or SQLITE_PATH")
	}
	if *days <= 0 {
		log.Fatalf("[backfill] --days must be positive, got %d", *days)
	}
	end := time.Now()
	if *until != "" {
		end, err = time.Parse(time.RFC3339, *until)
		if err != nil {
			log.Fatalf("[backfill] bad --until: %v", err)
		}
	}

	cfg.Seed = *seed
	cfg.Lookback = time.Duration(*days) * 24 * time.Hour
	logger.Init("backfill", logger.ParseLevel(cfg.LogLevel))

	catalog, err := config.ResolveCatalog(cfg)
	if err != nil {
		log.Fatalf("[backfill] catalog: %v", err)
	}
	opts, err := catalog.EngineOptions(cfg)
	if err != nil {
		log.Fatalf("[backfill] engine options: %v", err)
	}
	opts.Start = end
	eng, err := engine.New(opts)
	if err != nil {
		log.Fatalf("[backfill] engine init failed: %v", err)
	}

	started := time.Now()
	n, err := eng.Backfill(end)
	if err != nil {
		log.Fatalf("[backfill] generate: %v", err)
	}
	log.Printf("[backfill] generated %d points per instrument in %v", n, time.Since(started).Truncate(time.Millisecond))

	if dir := filepath.Dir(*dbPath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: *dbPath, RunID: eng.RunID()})
	if err != nil {
		log.Fatalf("[backfill] sqlite open failed: %v", err)
	}
	defer w.Close()

	instruments := eng.Instruments()
	info := sqlitestore.RunInfo{ID: eng.RunID(), StartedAt: started, Seed: *seed}
	for _, inst := range instruments {
		info.Tickers = append(info.Tickers, inst.Ticker)
	}
	if err := w.RecordRun(info); err != nil {
		log.Fatalf("[backfill] record run: %v", err)
	}

	loc := eng.Calendar().Location()
	for _, inst := range instruments {
		if err := w.WritePoints(inst.Ticker, inst.PriceHistory); err != nil {
			log.Fatalf("[backfill] write %s: %v", inst.Ticker, err)
		}
		nBars := writeBars(w, loc, inst)
		log.Printf("[backfill] %s: %d points, %d daily bars, last %.2f",
			inst.Ticker, len(inst.PriceHistory), nBars, inst.CurrentPrice)
	}
	log.Printf("[backfill] run %s stored in %s", eng.RunID(), *dbPath)
}

// writeBars replays inst's history through the daily aggregator and
// stores the resulting bars, the last session included. Returns the number
// of bars written.
func writeBars(w *sqlitestore.Writer, loc *time.Location, inst model.Instrument) int {
	agg := series.NewAggregator(loc)
	bars := agg.Seed(inst.Ticker, inst.PriceHistory)
	if open, ok := agg.OpenBar(inst.Ticker); ok {
		bars = append(bars, open)
	}
	if err := w.WriteBars(bars); err != nil {
		log.Fatalf("[backfill] bars %s: %v", inst.Ticker, err)
	}
	return len(bars)
}
