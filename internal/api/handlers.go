package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketsim/internal/engine"
	"marketsim/internal/marketdata/series"
	"marketsim/internal/model"
)

// SimulationState is the response of GET /api/v1/simulation.
type SimulationState struct {
	RunID        string    `json:"run_id"`
	SpeedMs      int64     `json:"speed_ms"`
	IsRunning    bool      `json:"is_running"`
	CurrentDate  time.Time `json:"current_date"`
	MarketOpen   bool      `json:"market_open"`
	MarketStatus string    `json:"market_status"`

	// Simulated seconds until the next open and until today's close.
	// Exactly one is non-zero.
	SecondsToOpen  int64 `json:"seconds_to_open"`
	SecondsToClose int64 `json:"seconds_to_close"`
}

// SeriesResponse is the response of GET /api/v1/instruments/{id}/series.
type SeriesResponse struct {
	Ticker    string      `json:"ticker"`
	Timeframe string      `json:"timeframe"`
	Bars      []model.Bar `json:"bars"`
}

type speedRequest struct {
	SpeedMs int64 `json:"speed_ms"`
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	cfg := s.eng.Config()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"running": cfg.IsRunning,
		"run_id":  s.eng.RunID(),
	})
}

func (s *server) listInstruments(w http.ResponseWriter, r *http.Request) {
	if withHistory(r) {
		writeJSON(w, http.StatusOK, s.eng.Instruments())
		return
	}
	writeJSON(w, http.StatusOK, s.eng.Summaries())
}

func withHistory(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("history"))
	return v
}

func (s *server) lookup(w http.ResponseWriter, r *http.Request) (model.Instrument, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errBadID)
		return model.Instrument{}, false
	}
	inst, err := s.eng.Instrument(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrUnknownInstrument) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return model.Instrument{}, false
	}
	return inst, true
}

func (s *server) getInstrument(w http.ResponseWriter, r *http.Request) {
	if inst, ok := s.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, inst)
	}
}

func (s *server) getSeries(w http.ResponseWriter, r *http.Request) {
	tf, err := series.ParseTimeframe(r.URL.Query().Get("timeframe"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	inst, ok := s.lookup(w, r)
	if !ok {
		return
	}
	bars := series.Build(inst.Ticker, inst.PriceHistory, tf, s.eng.Calendar())
	if bars == nil {
		bars = []model.Bar{}
	}
	writeJSON(w, http.StatusOK, SeriesResponse{Ticker: inst.Ticker, Timeframe: string(tf), Bars: bars})
}

func (s *server) state() SimulationState { return StateOf(s.eng) }

// StateOf snapshots the lifecycle state of eng. The live stream reuses it
// for its periodic status message.
func StateOf(eng Engine) SimulationState {
	cfg := eng.Config()
	cal := eng.Calendar()
	return SimulationState{
		RunID:          eng.RunID(),
		SpeedMs:        cfg.SpeedMillis(),
		IsRunning:      cfg.IsRunning,
		CurrentDate:    cfg.CurrentDate,
		MarketOpen:     cal.IsMarketOpen(cfg.CurrentDate),
		MarketStatus:   eng.MarketStatus(),
		SecondsToOpen:  int64(cal.TimeUntilOpen(cfg.CurrentDate).Seconds()),
		SecondsToClose: int64(cal.TimeUntilClose(cfg.CurrentDate).Seconds()),
	}
}

func (s *server) getSimulation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *server) start(w http.ResponseWriter, r *http.Request) {
	s.eng.Start()
	log.Printf("[api] simulation started")
	writeJSON(w, http.StatusOK, s.state())
}

func (s *server) stop(w http.ResponseWriter, r *http.Request) {
	s.eng.Stop()
	log.Printf("[api] simulation stopped")
	writeJSON(w, http.StatusOK, s.state())
}

func (s *server) setSpeed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	d, err := engine.SpeedFromMillis(req.SpeedMs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.eng.SetSpeed(d); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrInvalidSpeed) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	log.Printf("[api] speed set to %dms", req.SpeedMs)
	writeJSON(w, http.StatusOK, s.state())
}

// archiveQuery is the parsed form of an archive request.
type archiveQuery struct {
	runID, ticker string
	from, to      time.Time
}

// parseArchiveQuery reads run, from and to from the query string and the
// ticker from the path. On failure it has already written the response.
func (s *server) parseArchiveQuery(w http.ResponseWriter, r *http.Request) (archiveQuery, bool) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, errArchiveDisabled)
		return archiveQuery{}, false
	}
	q := r.URL.Query()
	from, err := parseTime(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("from: %w", err))
		return archiveQuery{}, false
	}
	to, err := parseTime(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("to: %w", err))
		return archiveQuery{}, false
	}
	aq := archiveQuery{
		runID:  q.Get("run"),
		ticker: strings.ToUpper(r.PathValue("ticker")),
		from:   from,
		to:     to,
	}
	if aq.runID == "" {
		aq.runID = s.eng.RunID()
	}
	if aq.runID == s.eng.RunID() {
		if _, err := s.eng.InstrumentByTicker(aq.ticker); err != nil {
			writeError(w, http.StatusNotFound, err)
			return archiveQuery{}, false
		}
	}
	return aq, true
}

func (s *server) getArchive(w http.ResponseWriter, r *http.Request) {
	aq, ok := s.parseArchiveQuery(w, r)
	if !ok {
		return
	}
	points, err := s.archive.ReadPoints(aq.runID, aq.ticker, aq.from, aq.to)
	if err != nil {
		log.Printf("[api] archive read %s/%s: %v", aq.runID, aq.ticker, err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if points == nil {
		points = []model.PricePoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *server) getArchiveBars(w http.ResponseWriter, r *http.Request) {
	aq, ok := s.parseArchiveQuery(w, r)
	if !ok {
		return
	}
	bars, err := s.archive.ReadBars(aq.runID, aq.ticker, aq.from, aq.to)
	if err != nil {
		log.Printf("[api] archive bars %s/%s: %v", aq.runID, aq.ticker, err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if bars == nil {
		bars = []model.Bar{}
	}
	writeJSON(w, http.StatusOK, bars)
}

// parseTime accepts RFC 3339 or unix seconds. Empty means unbounded.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}
