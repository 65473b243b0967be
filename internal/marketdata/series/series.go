// Package series re-buckets 5-minute price points into the windows a chart
// consumer shows: the intraday session, one week and one month of daily bars.
package series

import (
	"fmt"
	"strings"
	"time"

	"marketsim/internal/model"
)

// Timeframe names a chart window.
type Timeframe string

const (
	Day   Timeframe = "1D"
	Week  Timeframe = "1W"
	Month Timeframe = "1M"
)

// ParseTimeframe accepts 1D, 1W or 1M (case-insensitive). Empty means 1D.
func ParseTimeframe(s string) (Timeframe, error) {
	switch Timeframe(strings.ToUpper(strings.TrimSpace(s))) {
	case "", Day:
		return Day, nil
	case Week:
		return Week, nil
	case Month:
		return Month, nil
	}
	return "", fmt.Errorf("series: unknown timeframe %q (want 1D, 1W or 1M)", s)
}

// Lookback is the calendar span a timeframe covers, ending at the last point.
func (tf Timeframe) Lookback() time.Duration {
	switch tf {
	case Week:
		return 7 * 24 * time.Hour
	case Month:
		return 30 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// SessionOpener reports the session open on a given date.
// *markethours.Calendar satisfies it.
type SessionOpener interface {
	TodayOpen(t time.Time) time.Time
	Location() *time.Location
}

// Build returns the bars for tf from history (oldest first).
// 1D yields one bar per point since the open of the last point's session.
// 1W and 1M yield one bar per trading day in the lookback window: the
// close is the day's last price and the volume is summed.
func Build(ticker string, history []model.PricePoint, tf Timeframe, cal SessionOpener) []model.Bar {
	if len(history) == 0 {
		return nil
	}
	last := history[len(history)-1].Timestamp

	if tf == Day {
		open := cal.TodayOpen(last)
		var out []model.Bar
		for _, p := range history[firstAtOrAfter(history, open):] {
			out = append(out, pointBar(ticker, p))
		}
		return out
	}

	from := dayStart(last.Add(-tf.Lookback()), cal.Location())
	var out []model.Bar
	for _, p := range history[firstAtOrAfter(history, from):] {
		day := dayStart(p.Timestamp, cal.Location())
		if n := len(out); n > 0 && out[n-1].TS.Equal(day) {
			merge(&out[n-1], p)
			continue
		}
		b := pointBar(ticker, p)
		b.TS = day
		out = append(out, b)
	}
	return out
}

// firstAtOrAfter returns the index of the first point with Timestamp >= t.
func firstAtOrAfter(history []model.PricePoint, t time.Time) int {
	lo, hi := 0, len(history)
	for lo < hi {
		mid := (lo + hi) / 2
		if history[mid].Timestamp.Before(t) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

func pointBar(ticker string, p model.PricePoint) model.Bar {
	return model.Bar{
		Ticker: ticker,
		TS:     p.Timestamp,
		Open:   p.Price,
		High:   p.Price,
		Low:    p.Price,
		Close:  p.Price,
		Volume: p.Volume,
		Points: 1,
	}
}

func merge(b *model.Bar, p model.PricePoint) {
	if p.Price > b.High {
		b.High = p.Price
	}
	if p.Price < b.Low {
		b.Low = p.Price
	}
	b.Close = p.Price
	b.Volume += p.Volume
	b.Points++
}
