package engine

import (
	"log/slog"
	"time"

	"marketsim/internal/indicator"
	"marketsim/internal/model"
)

// Backfill regenerates every instrument's history over the lookback window
// ending at now, then parks the clock at now. Prices continue from their
// current values. Nothing is published. Returns the number of points
// appended per instrument.
func (e *Engine) Backfill(now time.Time) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.IsRunning {
		return 0, ErrBackfillWhileRunning
	}

	started := time.Now()
	for _, s := range e.instruments {
		s.PriceHistory = s.PriceHistory[:0]
		s.tech.Replay(nil)
	}

	d := now.Add(-e.lookback)
	e.quarter = indicator.Quarter(d)
	n := 0
	for d.Before(now) {
		if !e.cal.IsMarketOpen(d) {
			d = e.cal.NextOpen(d)
			continue
		}
		e.stepAllLocked(d)
		n++
		d = d.Add(e.step)
	}
	e.cfg.CurrentDate = now
	e.quarter = indicator.Quarter(now)

	e.log.Info("backfill complete",
		slog.Int("points", n),
		slog.Time("from", now.Add(-e.lookback)),
		slog.Time("to", now),
		slog.Duration("took", time.Since(started)))
	return n, nil
}

// tickLocked runs one step of the simulated clock. A closed market jumps
// the clock to the next open and generates nothing; an open market steps
// every instrument and advances the clock by one step.
func (e *Engine) tickLocked() model.Update {
	started := time.Now()
	at := e.cfg.CurrentDate
	e.seq++
	u := model.Update{Seq: e.seq, RunID: e.runID}

	if !e.cal.IsMarketOpen(at) {
		next := e.cal.NextOpen(at)
		e.cfg.CurrentDate = next
		u.CurrentDate = next
		e.log.Debug("market closed, clock jumped",
			slog.Time("from", at),
			slog.Time("to", next))
	} else {
		u.Generated = true
		u.Instruments = e.stepAllLocked(at)
		e.cfg.CurrentDate = at.Add(e.step)
		u.CurrentDate = e.cfg.CurrentDate
	}

	e.bus.Publish(u)
	if e.hooks.OnTick != nil {
		e.hooks.OnTick(u.Generated, time.Since(started))
	}
	return u
}

// stepAllLocked appends one point at time at to every instrument.
func (e *Engine) stepAllLocked(at time.Time) []model.InstrumentUpdate {
	if q := indicator.Quarter(at); q != e.quarter {
		e.quarter = q
		for _, s := range e.instruments {
			s.Fundamentals = indicator.UpdateFundamentals(e.rng, s.Fundamentals)
		}
		e.log.Debug("quarter rollover, fundamentals updated", slog.Time("at", at))
	}

	out := make([]model.InstrumentUpdate, 0, len(e.instruments))
	for _, s := range e.instruments {
		if last, ok := s.LastPoint(); ok && !at.After(last.Timestamp) {
			e.log.Warn("non-increasing timestamp, point skipped",
				slog.String("ticker", s.Ticker),
				slog.Time("at", at),
				slog.Time("last", last.Timestamp))
			continue
		}

		s.Indicators = e.bank.Advance(s.Indicators)
		r := e.stepper.Step(s.CurrentPrice, s.Momentum, s.Indicators, s.Fundamentals)
		p := model.PricePoint{Timestamp: at, Price: r.Price, Volume: e.stepper.Volume(r.Change)}

		s.CurrentPrice = r.Price
		s.Momentum = r.Momentum
		s.PriceHistory = append(s.PriceHistory, p)
		if e.histCap > 0 && len(s.PriceHistory) > e.histCap {
			s.PriceHistory = append(s.PriceHistory[:0], s.PriceHistory[len(s.PriceHistory)-e.histCap:]...)
		}
		s.tech.Update(p)
		s.Technicals = s.tech.Readings()

		if r.Floored {
			e.log.Warn("price clamped to floor", slog.String("ticker", s.Ticker), slog.Float64("price", r.Price))
		}
		if e.hooks.OnPoint != nil {
			e.hooks.OnPoint(s.Ticker, r.Price, r.Spiked)
		}

		pt := p
		out = append(out, model.InstrumentUpdate{
			ID:         s.ID,
			Ticker:     s.Ticker,
			Price:      r.Price,
			Momentum:   r.Momentum,
			Change:     r.Change,
			Spike:      r.Spiked,
			Point:      &pt,
			Indicators: append([]model.Indicator(nil), s.Indicators...),
			Technicals: append([]model.TechnicalReading(nil), s.Technicals...),
		})
	}
	return out
}
