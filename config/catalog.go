package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"marketsim/internal/engine"
	"marketsim/internal/indicator"
	"marketsim/internal/markethours"
	"marketsim/internal/pricing"
)

// Catalog is the YAML description of what is simulated: the calendar,
// the stepper and bank tuning, and the instruments. Fields left out of the
// file keep their defaults.
type Catalog struct {
	Calendar    CalendarConfig          `yaml:"calendar"`
	Pricing     pricing.Params          `yaml:"pricing"`
	Bank        indicator.BankParams    `yaml:"bank"`
	Instruments []engine.InstrumentSpec `yaml:"instruments"`
}

// CalendarConfig is the YAML form of markethours.Config.
type CalendarConfig struct {
	Open        string   `yaml:"open"`
	Close       string   `yaml:"close"`
	TradingDays []string `yaml:"trading_days"`
	Timezone    string   `yaml:"timezone"`
	Holidays    []string `yaml:"holidays"`
}

// DefaultCatalog returns the built-in two-instrument catalogue.
func DefaultCatalog() *Catalog {
	c := &Catalog{
		Calendar: CalendarConfig{
			Open:        markethours.DefaultOpen,
			Close:       markethours.DefaultClose,
			TradingDays: []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
			Timezone:    "UTC",
		},
		Pricing:     pricing.DefaultParams(),
		Bank:        indicator.DefaultBankParams(),
		Instruments: engine.DefaultInstruments(),
	}
	c.normalise()
	return c
}

// LoadCatalog reads a catalogue from disk.
func LoadCatalog(path string) (*Catalog, error) {
	LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer file.Close()
	return LoadCatalogFromReader(file)
}

// LoadCatalogFromReader decodes a catalogue over the defaults, then
// normalises and validates it.
func LoadCatalogFromReader(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	cat := DefaultCatalog()
	cat.Instruments = nil
	if err := yaml.Unmarshal(data, cat); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}
	if len(cat.Instruments) == 0 {
		cat.Instruments = engine.DefaultInstruments()
	}
	cat.normalise()
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

func (c *Catalog) normalise() {
	c.Calendar.Open = strings.TrimSpace(os.ExpandEnv(c.Calendar.Open))
	c.Calendar.Close = strings.TrimSpace(os.ExpandEnv(c.Calendar.Close))
	c.Calendar.Timezone = strings.TrimSpace(os.ExpandEnv(c.Calendar.Timezone))
	for i := range c.Instruments {
		inst := &c.Instruments[i]
		inst.Ticker = strings.ToUpper(strings.TrimSpace(inst.Ticker))
		inst.Name = strings.TrimSpace(inst.Name)
		if inst.Name == "" {
			inst.Name = inst.Ticker
		}
		if len(inst.Indicators) == 0 {
			inst.Indicators = indicator.DefaultSpecs()
		}
		if len(inst.Fundamentals) == 0 {
			inst.Fundamentals = indicator.DefaultFundamentals()
		}
		for j := range inst.Indicators {
			inst.Indicators[j] = inst.Indicators[j].Normalised()
		}
	}
}

// Validate checks every section and returns the first problem found.
func (c *Catalog) Validate() error {
	if len(c.Instruments) == 0 {
		return errors.New("catalog: no instruments")
	}
	if _, err := c.CalendarConfig(); err != nil {
		return err
	}
	if err := c.Pricing.Validate(); err != nil {
		return fmt.Errorf("catalog: pricing: %w", err)
	}
	if err := c.Bank.Validate(); err != nil {
		return fmt.Errorf("catalog: bank: %w", err)
	}
	ids := make(map[int]bool)
	tickers := make(map[string]bool)
	for _, inst := range c.Instruments {
		switch {
		case inst.Ticker == "":
			return fmt.Errorf("catalog: instrument %d has no ticker", inst.ID)
		case ids[inst.ID]:
			return fmt.Errorf("catalog: duplicate instrument id %d", inst.ID)
		case tickers[inst.Ticker]:
			return fmt.Errorf("catalog: duplicate ticker %s", inst.Ticker)
		case !(inst.InitialPrice > 0):
			return fmt.Errorf("catalog: %s: initial_price must be positive", inst.Ticker)
		}
		ids[inst.ID] = true
		tickers[inst.Ticker] = true
		for _, s := range inst.Indicators {
			if err := s.Validate(); err != nil {
				return fmt.Errorf("catalog: %s: %w", inst.Ticker, err)
			}
		}
		for _, f := range inst.Fundamentals {
			if err := f.Validate(); err != nil {
				return fmt.Errorf("catalog: %s: %w", inst.Ticker, err)
			}
		}
	}
	return nil
}

// CalendarConfig converts the YAML calendar into markethours.Config and
// checks it builds.
func (c *Catalog) CalendarConfig() (markethours.Config, error) {
	days, err := markethours.ParseWeekdays(strings.Join(c.Calendar.TradingDays, ","))
	if err != nil {
		return markethours.Config{}, fmt.Errorf("catalog: calendar: %w", err)
	}
	loc := time.UTC
	if tz := c.Calendar.Timezone; tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return markethours.Config{}, fmt.Errorf("catalog: calendar timezone %q: %w", tz, err)
		}
	}
	cfg := markethours.Config{
		Open:        c.Calendar.Open,
		Close:       c.Calendar.Close,
		TradingDays: days,
		Location:    loc,
		Holidays:    c.Calendar.Holidays,
	}
	if _, err := markethours.NewCalendar(cfg); err != nil {
		return markethours.Config{}, fmt.Errorf("catalog: calendar: %w", err)
	}
	return cfg, nil
}

// EngineOptions maps the catalogue and runtime config onto engine options.
// Scheduler, bus, hooks and logger are left for the caller.
func (c *Catalog) EngineOptions(rt *Config) (engine.Options, error) {
	calCfg, err := c.CalendarConfig()
	if err != nil {
		return engine.Options{}, err
	}
	cal, err := markethours.NewCalendar(calCfg)
	if err != nil {
		return engine.Options{}, err
	}
	opts := engine.Options{
		Instruments: c.Instruments,
		Calendar:    cal,
		Bank:        c.Bank,
		Pricing:     c.Pricing,
	}
	if rt != nil {
		opts.Speed = rt.Speed
		opts.Lookback = rt.Lookback
		opts.HistoryLimit = rt.HistoryLimit
		opts.Seed = rt.Seed
	}
	return opts, nil
}

// ResolveCatalog loads rt.CatalogPath, or returns the default catalogue
// when no path is set.
func ResolveCatalog(rt *Config) (*Catalog, error) {
	if rt == nil || rt.CatalogPath == "" {
		return DefaultCatalog(), nil
	}
	return LoadCatalog(rt.CatalogPath)
}
