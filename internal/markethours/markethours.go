// Package markethours decides whether a simulated instant falls inside a
// trading session and where the next session begins.
package markethours

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoTradingDays = errors.New("markethours: trading day set is empty")
	ErrInvalidHours  = errors.New("markethours: open must be before close")
)

// Default session: 09:30-16:00, Monday to Friday.
const (
	DefaultOpen  = "09:30"
	DefaultClose = "16:00"
)

// Config describes a weekly trading session.
type Config struct {
	Open        string         // "HH:MM", inclusive
	Close       string         // "HH:MM", exclusive
	TradingDays []time.Weekday // must be non-empty
	Location    *time.Location // nil means UTC
	Holidays    []string       // "2006-01-02" dates with no session
}

// DefaultConfig returns the Monday-Friday 09:30-16:00 UTC session.
func DefaultConfig() Config {
	return Config{
		Open:  DefaultOpen,
		Close: DefaultClose,
		TradingDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
		Location: time.UTC,
	}
}

// Calendar is an immutable trading calendar. Safe for concurrent use.
type Calendar struct {
	loc      *time.Location
	openMin  int // minutes after midnight
	closeMin int
	days     [7]bool
	holidays map[string]bool
}

// NewCalendar validates cfg and builds a Calendar.
func NewCalendar(cfg Config) (*Calendar, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	openMin, err := parseHHMM(cfg.Open)
	if err != nil {
		return nil, fmt.Errorf("markethours: open: %w", err)
	}
	closeMin, err := parseHHMM(cfg.Close)
	if err != nil {
		return nil, fmt.Errorf("markethours: close: %w", err)
	}
	if openMin >= closeMin {
		return nil, fmt.Errorf("%w (open %s, close %s)", ErrInvalidHours, cfg.Open, cfg.Close)
	}

	c := &Calendar{
		loc:      loc,
		openMin:  openMin,
		closeMin: closeMin,
		holidays: make(map[string]bool, len(cfg.Holidays)),
	}
	for _, wd := range cfg.TradingDays {
		if wd < time.Sunday || wd > time.Saturday {
			return nil, fmt.Errorf("markethours: invalid weekday %d", wd)
		}
		c.days[wd] = true
	}
	if len(cfg.TradingDays) == 0 {
		return nil, ErrNoTradingDays
	}
	for _, h := range cfg.Holidays {
		d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(h), loc)
		if err != nil {
			return nil, fmt.Errorf("markethours: holiday %q: %w", h, err)
		}
		c.holidays[dateKey(d)] = true
	}
	return c, nil
}

// Location returns the calendar's time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// SessionLength is the duration of one trading session.
func (c *Calendar) SessionLength() time.Duration {
	return time.Duration(c.closeMin-c.openMin) * time.Minute
}

// IsTradingDay reports whether t's calendar date has a session.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	lt := t.In(c.loc)
	return c.days[lt.Weekday()] && !c.IsHoliday(lt)
}

// IsHoliday reports whether t's calendar date is a configured holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	return c.holidays[dateKey(t.In(c.loc))]
}

// IsMarketOpen reports whether t is inside [open, close) on a trading day.
func (c *Calendar) IsMarketOpen(t time.Time) bool {
	lt := t.In(c.loc)
	if !c.IsTradingDay(lt) {
		return false
	}
	hm := lt.Hour()*60 + lt.Minute()
	return hm >= c.openMin && hm < c.closeMin
}

// NextOpen returns the earliest instant >= t at which the market is open.
// An instant that is already open is returned unchanged. Before the open on
// a trading day it returns that day's open; otherwise the open of the next
// trading day.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	if c.IsMarketOpen(t) {
		return t
	}
	lt := t.In(c.loc)
	if c.IsTradingDay(lt) && lt.Hour()*60+lt.Minute() < c.openMin {
		return c.openOn(lt, 0)
	}
	// Every holiday can cost at most one extra week.
	limit := 7 * (len(c.holidays) + 1)
	for i := 1; i <= limit; i++ {
		d := c.openOn(lt, i)
		if c.IsTradingDay(d) {
			return d
		}
	}
	return c.openOn(lt, limit+1)
}

// TodayOpen returns the session open on t's calendar date.
func (c *Calendar) TodayOpen(t time.Time) time.Time {
	return c.openOn(t.In(c.loc), 0)
}

// TodayClose returns the session close on t's calendar date.
func (c *Calendar) TodayClose(t time.Time) time.Time {
	lt := t.In(c.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), c.closeMin/60, c.closeMin%60, 0, 0, c.loc)
}

// TimeUntilClose returns the duration until today's close, or 0 when the
// market is closed.
func (c *Calendar) TimeUntilClose(t time.Time) time.Duration {
	if !c.IsMarketOpen(t) {
		return 0
	}
	return c.TodayClose(t).Sub(t)
}

// TimeUntilOpen returns the duration until the next open, or 0 while the
// market is open.
func (c *Calendar) TimeUntilOpen(t time.Time) time.Duration {
	return c.NextOpen(t).Sub(t)
}

// StatusString returns a human-readable market status for t.
func (c *Calendar) StatusString(t time.Time) string {
	if c.IsMarketOpen(t) {
		return fmt.Sprintf("Market Open - closes in %s", fmtDur(c.TimeUntilClose(t)))
	}
	lt := c.NextOpen(t).In(c.loc)
	return fmt.Sprintf("Market Closed - opens %s %s (%s)",
		lt.Weekday().String()[:3], lt.Format("15:04"), fmtDur(c.TimeUntilOpen(t)))
}

func (c *Calendar) openOn(lt time.Time, addDays int) time.Time {
	return time.Date(lt.Year(), lt.Month(), lt.Day()+addDays, c.openMin/60, c.openMin%60, 0, 0, c.loc)
}

func parseHHMM(s string) (int, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h >= 24 {
		return fmt.Sprintf("%dd%dh", h/24, h%24)
	}
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
