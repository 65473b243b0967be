package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"marketsim/config"
	"marketsim/internal/api"
	"marketsim/internal/engine"
	"marketsim/internal/gateway"
	"marketsim/internal/logger"
	"marketsim/internal/marketdata/bus"
	"marketsim/internal/marketdata/series"
	"marketsim/internal/metrics"
	"marketsim/internal/model"
	"marketsim/internal/notification"
	"marketsim/internal/scheduler"
	redisstore "marketsim/internal/store/redis"
	sqlitestore "marketsim/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[simserver] starting...")

	// ---- Load config from env ----
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[simserver] config: %v", err)
	}
	slogger := logger.Init("simserver", logger.ParseLevel(cfg.LogLevel))

	catalog, err := config.ResolveCatalog(cfg)
	if err != nil {
		log.Fatalf("[simserver] catalog: %v", err)
	}
	opts, err := catalog.EngineOptions(cfg)
	if err != nil {
		log.Fatalf("[simserver] engine options: %v", err)
	}

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Engine ----
	fanout := bus.New(engine.DefaultBusSize)
	fanout.OnDrop = func(subscriberID int) {
		prom.FanoutDropsTotal.WithLabelValues(strconv.Itoa(subscriberID)).Inc()
	}
	opts.Bus = fanout
	opts.Scheduler = scheduler.Ticker{}
	opts.Hooks = prom.EngineHooks(health)
	opts.Logger = slogger

	eng, err := engine.New(opts)
	if err != nil {
		log.Fatalf("[simserver] engine init failed: %v", err)
	}
	ctx = logger.WithRunID(ctx, eng.RunID())
	slogger.InfoContext(ctx, "engine ready", logger.LogWithRun(ctx)...)

	n, err := eng.Backfill(time.Now())
	if err != nil {
		log.Fatalf("[simserver] backfill failed: %v", err)
	}
	log.Printf("[simserver] backfilled %d points per instrument", n)

	// ---- Start SQLite archive (off hot path) ----
	var (
		sqlWriter   *sqlitestore.Writer
		archive     api.Archive
		archiveDone <-chan struct{}
	)
	if cfg.ArchiveEnabled() {
		sqlWriter, archive, archiveDone = startArchive(ctx, cfg, eng, prom)
		health.SetSQLiteOK(true)
	} else {
		log.Println("[simserver] archive disabled (SQLITE_PATH empty)")
	}

	// ---- Start Redis publisher ----
	var redisWriter *redisstore.Writer
	if cfg.RedisEnabled() {
		redisWriter, err = redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Printf("[simserver] WARNING: redis init failed: %v (continuing without redis)", err)
			health.SetRedisConnected(false)
		} else {
			startRedis(ctx, redisWriter, eng, prom)
			health.SetRedisConnected(true)
			log.Println("[simserver] redis publisher ready")
		}
	}

	// ---- Periodic liveness checks ----
	if redisWriter != nil && sqlWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), nil, 10*time.Second)
	} else if sqlWriter != nil {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Live stream ----
	hub := gateway.NewHub()
	hub.OnClients = func(n int) {
		prom.WSClients.Set(float64(n))
		health.SetWSClients(n)
	}
	hub.Status = func() interface{} { return api.StateOf(eng) }
	hubIn, _ := eng.Subscribe()
	go hub.Run(ctx, hubIn)
	go hub.StartStatusBroadcast(ctx, 2*time.Second)

	// ---- Alerts ----
	watcher := notification.NewWatcher(buildNotifier(cfg))
	watcher.OnAlert = func(a notification.Alert, err error) {
		result := "sent"
		if err != nil {
			result = "failed"
		}
		prom.AlertsTotal.WithLabelValues(string(a.Level), result).Inc()
	}
	alertIn, _ := eng.Subscribe()
	go watcher.Run(ctx, alertIn)

	// ---- Channel saturation ----
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, s := range fanout.ChannelStats() {
					if s.Cap > 0 {
						pct := float64(s.Len) / float64(s.Cap) * 100
						prom.ChannelSaturationPct.WithLabelValues("fanout_" + strconv.Itoa(s.ID)).Set(pct)
					}
				}
			}
		}
	}()

	// ---- HTTP ----
	mux := api.NewRouter(api.Deps{Engine: eng, Archive: archive})
	mux.Handle("/ws", hub)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[simserver] http server: %v", err)
		}
	}()

	if cfg.AutoStart {
		eng.Start()
	}

	tickers := make([]string, 0, len(opts.Instruments))
	for _, inst := range eng.Summaries() {
		tickers = append(tickers, inst.Ticker)
	}
	log.Println("[simserver] ╔═══════════════════════════════════════════════════════════════╗")
	log.Println("[simserver] ║  Market Simulation Server                                     ║")
	log.Println("[simserver] ║                                                               ║")
	log.Println("[simserver] ║  [Engine] → [Bus] → [WS hub / SQLite / Redis]                 ║")
	log.Printf("[simserver] ║  Run: %-55s ║", eng.RunID())
	log.Printf("[simserver] ║  Instruments: %-47s ║", strings.Join(tickers, ","))
	log.Printf("[simserver] ║  HTTP: %-54s ║", cfg.HTTPAddr)
	log.Printf("[simserver] ║  Speed: %-53s ║", eng.Config().Speed)
	log.Println("[simserver] ╚═══════════════════════════════════════════════════════════════╝")
	log.Printf("[simserver] %s", eng.MarketStatus())

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[simserver] shutdown signal received, cleaning up...")
	eng.Stop()
	cancel()
	fanout.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[simserver] http shutdown: %v", err)
	}
	metricsSrv.Stop(shutdownCtx)

	if redisWriter != nil {
		redisWriter.Close()
	}
	if archiveDone != nil {
		select {
		case <-archiveDone:
		case <-shutdownCtx.Done():
			log.Println("[simserver] archive flush timed out")
		}
		sqlWriter.Close()
	}
	if closer, ok := archive.(*sqlitestore.Reader); ok {
		closer.Close()
	}

	log.Println("[simserver] shutdown complete.")
}

// startArchive opens the SQLite writer and reader, records the run, stores
// the backfilled history and its daily bars, and wires the live point and
// bar streams. The returned channel closes once both writers have flushed.
func startArchive(ctx context.Context, cfg *config.Config, eng *engine.Engine, prom *metrics.Metrics) (*sqlitestore.Writer, api.Archive, <-chan struct{}) {
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath, RunID: eng.RunID()})
	if err != nil {
		log.Fatalf("[simserver] sqlite init failed: %v", err)
	}
	w.OnCommit = func(rows int, took time.Duration) {
		prom.SQLiteCommitDur.Observe(took.Seconds())
		prom.ArchivedPoints.Add(float64(rows))
	}

	instruments := eng.Instruments()
	info := sqlitestore.RunInfo{
		ID:        eng.RunID(),
		StartedAt: time.Now(),
		Seed:      cfg.Seed,
	}
	for _, inst := range instruments {
		info.Tickers = append(info.Tickers, inst.Ticker)
	}
	if err := w.RecordRun(info); err != nil {
		log.Fatalf("[simserver] record run: %v", err)
	}

	// The aggregator replays the backfill so the session in progress keeps
	// its morning when live points arrive.
	agg := series.NewAggregator(eng.Calendar().Location())
	agg.OnLatePoint = func() { prom.LatePoints.Inc() }
	for _, inst := range instruments {
		if err := w.WritePoints(inst.Ticker, inst.PriceHistory); err != nil {
			log.Printf("[simserver] archive backfill %s: %v", inst.Ticker, err)
		}
		seeded := agg.Seed(inst.Ticker, inst.PriceHistory)
		if open, ok := agg.OpenBar(inst.Ticker); ok {
			seeded = append(seeded, open)
		}
		if err := w.WriteBars(seeded); err != nil {
			log.Printf("[simserver] archive bars %s: %v", inst.Ticker, err)
		}
	}

	points, _ := eng.Subscribe()
	pointsDone := make(chan struct{})
	go func() {
		defer close(pointsDone)
		w.Run(ctx, points)
	}()

	aggIn, _ := eng.Subscribe()
	bars := make(chan model.Bar, 256)
	go func() {
		agg.Run(ctx, aggIn, bars)
		close(bars)
	}()
	// RunBars stops when bars closes, after the aggregator's final flush.
	done := make(chan struct{})
	go func() {
		w.RunBars(context.Background(), bars)
		<-pointsDone
		close(done)
	}()

	r, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[simserver] sqlite reader: %v", err)
	}
	log.Printf("[simserver] archive ready at %s", cfg.SQLitePath)
	return w, r, done
}

// startRedis wires the Redis publisher behind a circuit breaker so a Redis
// outage buffers updates instead of stalling the stream.
func startRedis(ctx context.Context, w *redisstore.Writer, eng *engine.Engine, prom *metrics.Metrics) {
	w.OnWrite = func(took time.Duration) { prom.RedisWriteDur.Observe(took.Seconds()) }

	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to redisstore.State) {
		prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			prom.RedisCircuitBreakerTrips.Inc()
		}
		slog.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
	}

	bw := redisstore.NewBufferedWriter(ctx, w, cb, 10000)
	bw.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
	bw.OnFlush = func(count int) {
		log.Printf("[simserver] redis recovered, flushed %d buffered updates", count)
	}

	updates, _ := eng.Subscribe()
	go bw.Run(ctx, updates)
}

// buildNotifier picks the alert backends from config. Alerts are always
// logged; webhook and Telegram are added when configured.
func buildNotifier(cfg *config.Config) notification.Notifier {
	backends := notification.Multi{notification.NewLogNotifier()}
	if cfg.AlertWebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
		log.Printf("[simserver] alerts: webhook %s", cfg.AlertWebhookURL)
	}
	if cfg.TelegramBotToken != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
		log.Println("[simserver] alerts: telegram")
	}
	return backends
}
