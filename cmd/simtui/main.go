// cmd/simtui runs a simulation in-process and shows it in the terminal.
//
// Usage:
//
//	go run ./cmd/simtui --log=data/simtui.log
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"marketsim/config"
	"marketsim/internal/engine"
	"marketsim/internal/logger"
	"marketsim/internal/scheduler"
	"marketsim/internal/tui"
)

func main() {
	logPath := flag.String("log", "", "Write logs to this file (default: discard)")
	start := flag.Bool("start", false, "Start the clock immediately")
	flag.Parse()

	// Anything written to stdout would tear the alt screen.
	var logOut io.Writer = io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "simtui: open log: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	log.SetOutput(logOut)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "simtui: config: %v\n", err)
		os.Exit(1)
	}
	slogger := logger.InitWriter(logOut, "simtui", logger.ParseLevel(cfg.LogLevel))

	catalog, err := config.ResolveCatalog(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simtui: catalog: %v\n", err)
		os.Exit(1)
	}
	opts, err := catalog.EngineOptions(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simtui: engine options: %v\n", err)
		os.Exit(1)
	}
	opts.Scheduler = scheduler.Ticker{}
	opts.Logger = slogger

	eng, err := engine.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simtui: engine: %v\n", err)
		os.Exit(1)
	}
	if _, err := eng.Backfill(time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "simtui: backfill: %v\n", err)
		os.Exit(1)
	}

	updates, unsubscribe := eng.Subscribe()
	defer unsubscribe()
	if *start || cfg.AutoStart {
		eng.Start()
	}
	defer eng.Stop()

	p := tea.NewProgram(tui.NewModel(eng, updates), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "simtui: %v\n", err)
		os.Exit(1)
	}
	log.Printf("[simtui] exited, run %s", eng.RunID())
}
