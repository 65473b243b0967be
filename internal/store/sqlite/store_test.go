package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsim/internal/model"
)

func openTestStore(t *testing.T, runID string) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.db")
	w, err := New(WriterConfig{DBPath: path, RunID: runID})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	r, err := NewReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return w, r
}

func points(start time.Time, n int) []model.PricePoint {
	out := make([]model.PricePoint, n)
	for i := range out {
		out[i] = model.PricePoint{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Price:     100 + float64(i)/100,
			Volume:    int64(1000 + i),
		}
	}
	return out
}

func TestNew_RequiresRunID(t *testing.T) {
	_, err := New(WriterConfig{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestWritePoints_ReadBackInOrder(t *testing.T) {
	w, r := openTestStore(t, "run-a")
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	pts := points(start, 250)

	require.NoError(t, w.WritePoints("TCH", pts))

	got, err := r.ReadPoints("run-a", "TCH", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 250)
	assert.Equal(t, pts[0], got[0])
	assert.Equal(t, pts[249], got[249])

	window, err := r.ReadPoints("run-a", "TCH", start.Add(10*time.Minute), start.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Len(t, window, 4)

	other, err := r.ReadPoints("run-b", "TCH", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRun_ArchivesGeneratedUpdates(t *testing.T) {
	w, r := openTestStore(t, "run-live")
	var committed int
	w.OnCommit = func(rows int, _ time.Duration) { committed += rows }

	updates := make(chan model.Update, 8)
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	for i, p := range points(start, 3) {
		pt := p
		updates <- model.Update{Seq: int64(i + 1), Generated: true, Instruments: []model.InstrumentUpdate{
			{Ticker: "STB", Point: &pt},
		}}
	}
	updates <- model.Update{Seq: 4, Generated: false}
	close(updates)

	w.Run(context.Background(), updates)

	got, err := r.ReadPoints("run-live", "STB", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 3, committed)
}

func TestRunBars_AndRuns(t *testing.T) {
	w, r := openTestStore(t, "run-bars")
	require.NoError(t, w.RecordRun(RunInfo{
		StartedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Seed:      42,
		Tickers:   []string{"TCH", "STB"},
	}))

	bars := make(chan model.Bar, 2)
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	bars <- model.Bar{Ticker: "TCH", TS: day, Open: 100, High: 103, Low: 99, Close: 102, Volume: 78000, Points: 78}
	close(bars)
	w.RunBars(context.Background(), bars)

	got, err := r.ReadBars("run-bars", "TCH", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 102.0, got[0].Close)
	assert.Equal(t, 78, got[0].Points)
	assert.Equal(t, day, got[0].TS)

	latest, err := r.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, "run-bars", latest.ID)
	assert.Equal(t, int64(42), latest.Seed)
	assert.Equal(t, []string{"TCH", "STB"}, latest.Tickers)
}

func TestWriteBars_ChunksAndReplaces(t *testing.T) {
	w, r := openTestStore(t, "run-seed")
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, 130)
	for i := range bars {
		bars[i] = model.Bar{Ticker: "STB", TS: first.AddDate(0, 0, i), Open: 50, High: 51, Low: 49, Close: 50.5, Volume: 100, Points: 78}
	}
	require.NoError(t, w.WriteBars(bars))

	// Rewriting the open day replaces the earlier row.
	last := bars[129]
	last.Close, last.Points = 52, 80
	require.NoError(t, w.WriteBars([]model.Bar{last}))

	got, err := r.ReadBars("run-seed", "STB", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 130)
	assert.Equal(t, first, got[0].TS)
	assert.Equal(t, 52.0, got[129].Close)
	assert.Equal(t, 80, got[129].Points)
}

func TestLatestRun_Empty(t *testing.T) {
	_, r := openTestStore(t, "unused")
	_, err := r.LatestRun()
	assert.ErrorIs(t, err, ErrNoRuns)
}
