// Package engine owns the simulated clock and drives ticks across every
// instrument: calendar gate, indicator advance, price step, history append,
// then a published update.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketsim/internal/indicator"
	"marketsim/internal/marketdata/bus"
	"marketsim/internal/markethours"
	"marketsim/internal/model"
	"marketsim/internal/pricing"
	"marketsim/internal/scheduler"
)

var (
	ErrInvalidSpeed         = errors.New("engine: speed must be positive")
	ErrUnknownInstrument    = errors.New("engine: unknown instrument")
	ErrBackfillWhileRunning = errors.New("engine: cannot backfill while running")
)

type instrumentState struct {
	model.Instrument
	tech *indicator.Technicals
}

// Engine is the simulation driver. All mutable state is guarded by mu;
// timer callbacks, commands and queries may arrive from any goroutine.
// Queries return deep copies.
type Engine struct {
	mu sync.Mutex

	cal      *markethours.Calendar
	rng      indicator.Rand
	bank     *indicator.Bank
	stepper  *pricing.Stepper
	sched    scheduler.Scheduler
	bus      *bus.FanOut
	step     time.Duration
	lookback time.Duration
	histCap  int
	hooks    Hooks
	log      *slog.Logger
	runID    string

	instruments []*instrumentState
	cfg         model.SimulationConfig
	cancel      scheduler.Cancel
	gen         uint64 // bumped on every start/stop; stale timer callbacks compare against it
	seq         int64
	quarter     int
}

// New validates opts and builds the instruments. The engine starts
// stopped, with empty histories; call Backfill to seed them.
func New(opts Options) (*Engine, error) {
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	rng := opts.Rand
	if rng == nil {
		seed := opts.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewSource(seed))
	}
	bank, err := indicator.NewBank(opts.Bank, rng)
	if err != nil {
		return nil, err
	}
	stepper, err := pricing.NewStepper(opts.Pricing, rng)
	if err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	e := &Engine{
		cal:      opts.Calendar,
		rng:      rng,
		bank:     bank,
		stepper:  stepper,
		sched:    opts.Scheduler,
		bus:      opts.Bus,
		step:     opts.Step,
		lookback: opts.Lookback,
		histCap:  opts.HistoryLimit,
		hooks:    opts.Hooks,
		log:      opts.Logger.With(slog.String("run_id", runID)),
		runID:    runID,
		cfg: model.SimulationConfig{
			Speed:       opts.Speed,
			CurrentDate: opts.Start,
		},
		quarter: indicator.Quarter(opts.Start),
	}

	for _, spec := range opts.Instruments {
		inds, err := bank.Initialize(spec.Indicators)
		if err != nil {
			return nil, fmt.Errorf("engine: %s: %w", spec.Ticker, err)
		}
		funds, err := indicator.InitializeFundamentals(rng, spec.Fundamentals)
		if err != nil {
			return nil, fmt.Errorf("engine: %s: %w", spec.Ticker, err)
		}
		tech := indicator.NewTechnicals()
		e.instruments = append(e.instruments, &instrumentState{
			Instrument: model.Instrument{
				ID:           spec.ID,
				Name:         spec.Name,
				Ticker:       strings.ToUpper(strings.TrimSpace(spec.Ticker)),
				CurrentPrice: spec.InitialPrice,
				Indicators:   inds,
				Fundamentals: funds,
				Technicals:   tech.Readings(),
			},
			tech: tech,
		})
	}

	e.log.Info("engine created",
		slog.Int("instruments", len(e.instruments)),
		slog.Duration("speed", e.cfg.Speed),
		slog.Duration("step", e.step),
		slog.Time("start", e.cfg.CurrentDate))
	return e, nil
}

// RunID identifies this engine instance in logs and archives.
func (e *Engine) RunID() string { return e.runID }

// Calendar returns the trading calendar the engine gates on.
func (e *Engine) Calendar() *markethours.Calendar { return e.cal }

// Start arms the repeating timer. Starting a running engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.IsRunning {
		return
	}
	e.startLocked()
	e.log.Info("simulation started", slog.Duration("speed", e.cfg.Speed))
}

// Stop cancels the timer. Stopping a stopped engine is a no-op. A tick
// already in progress completes; no tick starts afterwards.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.cfg.IsRunning {
		return
	}
	e.stopLocked()
	e.log.Info("simulation stopped", slog.Time("current_date", e.cfg.CurrentDate))
}

// SetSpeed changes the tick interval. While running, the old timer is
// cancelled before the new one is armed. Non-positive values are rejected
// without changing any state.
func (e *Engine) SetSpeed(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, d)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Speed = d
	if e.cfg.IsRunning {
		e.stopLocked()
		e.startLocked()
	} else {
		e.notifyStateLocked()
	}
	e.log.Info("simulation speed changed", slog.Duration("speed", d))
	return nil
}

// MaxSpeedMillis is the largest tick interval, in milliseconds, that fits
// in a time.Duration.
const MaxSpeedMillis = math.MaxInt64 / int64(time.Millisecond)

// SpeedFromMillis converts a millisecond interval from a command or the
// environment into a Duration, rejecting values that are not positive or
// would overflow.
func SpeedFromMillis(ms int64) (time.Duration, error) {
	switch {
	case ms <= 0:
		return 0, fmt.Errorf("%w: %dms", ErrInvalidSpeed, ms)
	case ms > MaxSpeedMillis:
		return 0, fmt.Errorf("%w: %dms exceeds the %dms maximum", ErrInvalidSpeed, ms, MaxSpeedMillis)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Tick runs one simulation step immediately, regardless of the timer.
func (e *Engine) Tick() model.Update {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickLocked()
}

// Subscribe registers an observer. Updates are delivered without blocking
// the engine; a full subscriber misses updates. Call the returned func to
// unsubscribe.
func (e *Engine) Subscribe() (<-chan model.Update, func()) {
	return e.bus.Subscribe()
}

// Config returns the clock and lifecycle state.
func (e *Engine) Config() model.SimulationConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Instruments returns a deep copy of every instrument including history.
func (e *Engine) Instruments() []model.Instrument {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Instrument, len(e.instruments))
	for i, s := range e.instruments {
		out[i] = s.Clone()
	}
	return out
}

// Summaries returns every instrument without price history.
func (e *Engine) Summaries() []model.Instrument {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Instrument, len(e.instruments))
	for i, s := range e.instruments {
		out[i] = s.Summary()
	}
	return out
}

// Instrument returns a deep copy of the instrument with the given id.
func (e *Engine) Instrument(id int) (model.Instrument, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.instruments {
		if s.ID == id {
			return s.Clone(), nil
		}
	}
	return model.Instrument{}, fmt.Errorf("%w: id %d", ErrUnknownInstrument, id)
}

// InstrumentByTicker returns a deep copy of the instrument with the given
// ticker (case-insensitive).
func (e *Engine) InstrumentByTicker(ticker string) (model.Instrument, error) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.instruments {
		if s.Ticker == t {
			return s.Clone(), nil
		}
	}
	return model.Instrument{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, ticker)
}

// MarketStatus describes the calendar state at the simulated time.
func (e *Engine) MarketStatus() string {
	e.mu.Lock()
	now := e.cfg.CurrentDate
	e.mu.Unlock()
	return e.cal.StatusString(now)
}

func (e *Engine) startLocked() {
	e.gen++
	gen := e.gen
	e.cancel = e.sched.Every(e.cfg.Speed, func() { e.onTimer(gen) })
	e.cfg.IsRunning = true
	e.notifyStateLocked()
}

func (e *Engine) stopLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
	e.cfg.IsRunning = false
	e.notifyStateLocked()
}

func (e *Engine) notifyStateLocked() {
	if e.hooks.OnStateChange != nil {
		e.hooks.OnStateChange(e.cfg.IsRunning, e.cfg.Speed)
	}
}

// onTimer is the scheduler callback. A callback from a cancelled timer
// may still arrive; the generation check discards it.
func (e *Engine) onTimer(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.cfg.IsRunning || gen != e.gen {
		return
	}
	e.tickLocked()
}
