package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marketsim/internal/indicator"
	"marketsim/internal/marketdata/bus"
	"marketsim/internal/markethours"
	"marketsim/internal/pricing"
	"marketsim/internal/scheduler"
)

// Defaults applied by New when the corresponding option is zero.
const (
	DefaultSpeed    = time.Second
	DefaultStep     = 5 * time.Minute
	DefaultLookback = 30 * 24 * time.Hour
	DefaultBusSize  = 64
)

// InstrumentSpec describes one synthetic stock at construction time.
type InstrumentSpec struct {
	ID           int                         `yaml:"id"`
	Name         string                      `yaml:"name"`
	Ticker       string                      `yaml:"ticker"`
	InitialPrice float64                     `yaml:"initial_price"`
	Indicators   []indicator.Spec            `yaml:"indicators"`
	Fundamentals []indicator.FundamentalSpec `yaml:"fundamentals"`
}

// DefaultInstruments returns Tech Corp and Stable Industries with the
// default indicator and fundamental sets.
func DefaultInstruments() []InstrumentSpec {
	return []InstrumentSpec{
		{
			ID: 1, Name: "Tech Corp", Ticker: "TCH", InitialPrice: 100,
			Indicators:   indicator.DefaultSpecs(),
			Fundamentals: indicator.DefaultFundamentals(),
		},
		{
			ID: 2, Name: "Stable Industries", Ticker: "STB", InitialPrice: 50,
			Indicators:   indicator.DefaultSpecs(),
			Fundamentals: indicator.DefaultFundamentals(),
		},
	}
}

// Hooks are optional callbacks invoked under the engine lock. They must
// be fast and must not call back into the engine.
type Hooks struct {
	OnTick        func(generated bool, took time.Duration)
	OnPoint       func(ticker string, price float64, spiked bool)
	OnStateChange func(running bool, speed time.Duration)
}

// Options configures an Engine. Zero values pick the defaults above.
type Options struct {
	Instruments []InstrumentSpec
	Calendar    *markethours.Calendar
	Speed       time.Duration // wall-clock interval between ticks
	Step        time.Duration // simulated time per open-market tick
	Lookback    time.Duration // backfill window

	// HistoryLimit caps points kept per instrument; 0 keeps everything.
	HistoryLimit int

	Bank    indicator.BankParams
	Pricing pricing.Params

	// Rand drives every random draw. Nil seeds a math/rand source from
	// Seed, or from the wall clock when Seed is 0.
	Rand indicator.Rand
	Seed int64

	Scheduler scheduler.Scheduler
	Bus       *bus.FanOut
	Start     time.Time // initial simulated time; zero means time.Now()
	RunID     string
	Logger    *slog.Logger
	Hooks     Hooks
}

func (o *Options) applyDefaults() error {
	if len(o.Instruments) == 0 {
		o.Instruments = DefaultInstruments()
	}
	if o.Calendar == nil {
		cal, err := markethours.NewCalendar(markethours.DefaultConfig())
		if err != nil {
			return err
		}
		o.Calendar = cal
	}
	if o.Speed == 0 {
		o.Speed = DefaultSpeed
	}
	if o.Step == 0 {
		o.Step = DefaultStep
	}
	if o.Lookback == 0 {
		o.Lookback = DefaultLookback
	}
	if o.Bank == (indicator.BankParams{}) {
		o.Bank = indicator.DefaultBankParams()
	}
	if o.Pricing == (pricing.Params{}) {
		o.Pricing = pricing.DefaultParams()
	}
	if o.Scheduler == nil {
		o.Scheduler = scheduler.Ticker{}
	}
	if o.Bus == nil {
		o.Bus = bus.New(DefaultBusSize)
	}
	if o.Start.IsZero() {
		o.Start = time.Now()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return nil
}

func (o *Options) validate() error {
	if o.Speed < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, o.Speed)
	}
	if o.Step <= 0 {
		return fmt.Errorf("engine: step must be positive, got %v", o.Step)
	}
	if o.Lookback < 0 {
		return fmt.Errorf("engine: lookback must not be negative, got %v", o.Lookback)
	}
	if o.HistoryLimit < 0 {
		return errors.New("engine: history limit must not be negative")
	}
	ids := make(map[int]bool)
	tickers := make(map[string]bool)
	for _, s := range o.Instruments {
		t := strings.ToUpper(strings.TrimSpace(s.Ticker))
		switch {
		case t == "":
			return fmt.Errorf("engine: instrument %d has no ticker", s.ID)
		case ids[s.ID]:
			return fmt.Errorf("engine: duplicate instrument id %d", s.ID)
		case tickers[t]:
			return fmt.Errorf("engine: duplicate ticker %s", t)
		case !(s.InitialPrice > 0):
			return fmt.Errorf("engine: %s initial price must be positive", t)
		}
		ids[s.ID] = true
		tickers[t] = true
	}
	return nil
}
