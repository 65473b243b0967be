package series

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsim/internal/markethours"
	"marketsim/internal/model"
)

func defaultCalendar(t *testing.T) *markethours.Calendar {
	t.Helper()
	cal, err := markethours.NewCalendar(markethours.DefaultConfig())
	require.NoError(t, err)
	return cal
}

// session returns n five-minute points starting at 09:30 UTC on the given day.
func session(day time.Time, n int, price float64) []model.PricePoint {
	open := time.Date(day.Year(), day.Month(), day.Day(), 9, 30, 0, 0, time.UTC)
	out := make([]model.PricePoint, n)
	for i := range out {
		out[i] = model.PricePoint{
			Timestamp: open.Add(time.Duration(i) * 5 * time.Minute),
			Price:     price + float64(i),
			Volume:    100,
		}
	}
	return out
}

func TestParseTimeframe(t *testing.T) {
	for in, want := range map[string]Timeframe{"": Day, "1d": Day, "1W": Week, " 1m ": Month} {
		got, err := ParseTimeframe(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseTimeframe("5Y")
	assert.Error(t, err)
}

func TestBuild_DayKeepsLastSessionOnly(t *testing.T) {
	cal := defaultCalendar(t)
	var hist []model.PricePoint
	hist = append(hist, session(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), 78, 100)...)
	hist = append(hist, session(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 12, 200)...)

	bars := Build("TCH", hist, Day, cal)
	require.Len(t, bars, 12)
	assert.Equal(t, 200.0, bars[0].Open)
	assert.Equal(t, hist[78].Timestamp, bars[0].TS)
	assert.Equal(t, 1, bars[11].Points)
}

func TestBuild_WeekAggregatesDaily(t *testing.T) {
	cal := defaultCalendar(t)
	var hist []model.PricePoint
	for d := 1; d <= 15; d++ {
		day := time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
		if !cal.IsTradingDay(day) {
			continue
		}
		hist = append(hist, session(day, 78, float64(d))...)
	}

	bars := Build("TCH", hist, Week, cal)
	// 2024-03-08 through 2024-03-15 contains six trading days.
	require.Len(t, bars, 6)
	first := bars[0]
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), first.TS)
	assert.Equal(t, 8.0, first.Open)
	assert.Equal(t, 8.0+77, first.Close)
	assert.Equal(t, 8.0+77, first.High)
	assert.Equal(t, 8.0, first.Low)
	assert.Equal(t, int64(78*100), first.Volume)
	assert.Equal(t, 78, first.Points)

	month := Build("TCH", hist, Month, cal)
	assert.Len(t, month, 11)
}

func TestBuild_EmptyHistory(t *testing.T) {
	cal := defaultCalendar(t)
	assert.Nil(t, Build("TCH", nil, Month, cal))
}

func TestAggregator_EmitsOnDayRollover(t *testing.T) {
	agg := NewAggregator(time.UTC)
	bars := make(chan model.Bar, 10)

	day1 := session(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), 3, 100)
	day2 := session(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 1, 110)
	for i, p := range append(day1, day2...) {
		pt := p
		agg.Process(model.Update{Seq: int64(i + 1), Generated: true, Instruments: []model.InstrumentUpdate{
			{Ticker: "TCH", Point: &pt},
		}}, bars)
	}
	agg.Process(model.Update{Generated: false}, bars)

	require.Len(t, bars, 1)
	b := <-bars
	assert.Equal(t, "TCH", b.Ticker)
	assert.Equal(t, 100.0, b.Open)
	assert.Equal(t, 102.0, b.Close)
	assert.Equal(t, int64(300), b.Volume)
	assert.Equal(t, 3, b.Points)
}

func TestAggregator_DropsLatePoints(t *testing.T) {
	agg := NewAggregator(nil)
	var late int
	agg.OnLatePoint = func() { late++ }
	bars := make(chan model.Bar, 10)

	newer := session(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 1, 110)[0]
	older := session(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), 1, 100)[0]
	agg.Process(model.Update{Generated: true, Instruments: []model.InstrumentUpdate{{Ticker: "STB", Point: &newer}}}, bars)
	agg.Process(model.Update{Generated: true, Instruments: []model.InstrumentUpdate{{Ticker: "STB", Point: &older}}}, bars)

	assert.Equal(t, 1, late)
	assert.Empty(t, bars)
}

func TestAggregator_RunFlushesOnCancel(t *testing.T) {
	agg := NewAggregator(time.UTC)
	updates := make(chan model.Update, 4)
	bars := make(chan model.Bar, 4)

	p := session(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), 1, 100)[0]
	updates <- model.Update{Generated: true, Instruments: []model.InstrumentUpdate{{Ticker: "TCH", Point: &p}}}
	close(updates)

	agg.Run(context.Background(), updates, bars)
	require.Len(t, bars, 1)
	assert.Equal(t, 100.0, (<-bars).Close)
}

func TestAggregator_SeedKeepsOpenDay(t *testing.T) {
	agg := NewAggregator(time.UTC)

	// Two backfilled days; the second is still in session.
	history := append(
		session(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), 4, 100),
		session(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), 3, 200)...,
	)
	closed := agg.Seed("TCH", history)
	require.Len(t, closed, 1)
	assert.Equal(t, 100.0, closed[0].Open)
	assert.Equal(t, 103.0, closed[0].Close)
	assert.Equal(t, 4, closed[0].Points)

	open, ok := agg.OpenBar("TCH")
	require.True(t, ok)
	assert.Equal(t, 200.0, open.Open)
	assert.Equal(t, 3, open.Points)

	// A live point at 09:45 extends the backfilled morning.
	live := model.PricePoint{Timestamp: time.Date(2024, 3, 5, 9, 45, 0, 0, time.UTC), Price: 190, Volume: 50}
	bars := make(chan model.Bar, 4)
	agg.Process(model.Update{Generated: true, Instruments: []model.InstrumentUpdate{{Ticker: "TCH", Point: &live}}}, bars)
	assert.Empty(t, bars)

	agg.flushAll(bars)
	require.Len(t, bars, 1)
	b := <-bars
	assert.Equal(t, 200.0, b.Open, "open comes from the first backfilled point")
	assert.Equal(t, 202.0, b.High)
	assert.Equal(t, 190.0, b.Low)
	assert.Equal(t, 190.0, b.Close)
	assert.Equal(t, int64(350), b.Volume)
	assert.Equal(t, 4, b.Points)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), b.TS)
}

func TestAggregator_OpenBarUnknownTicker(t *testing.T) {
	_, ok := NewAggregator(nil).OpenBar("ZZZ")
	assert.False(t, ok)
}
