// Package api provides the HTTP query and command surface of the simulator.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"marketsim/internal/markethours"
	"marketsim/internal/model"
)

// Engine is the part of *engine.Engine the handlers need.
type Engine interface {
	RunID() string
	Calendar() *markethours.Calendar
	Config() model.SimulationConfig
	MarketStatus() string
	Instruments() []model.Instrument
	Summaries() []model.Instrument
	Instrument(id int) (model.Instrument, error)
	InstrumentByTicker(ticker string) (model.Instrument, error)
	Start()
	Stop()
	SetSpeed(d time.Duration) error
}

// Archive reads archived points and daily bars for a run.
// *sqlite.Reader satisfies it.
type Archive interface {
	ReadPoints(runID, ticker string, from, to time.Time) ([]model.PricePoint, error)
	ReadBars(runID, ticker string, from, to time.Time) ([]model.Bar, error)
}

// Deps are the collaborators wired into the router. Archive is optional.
type Deps struct {
	Engine  Engine
	Archive Archive
}

type server struct {
	eng     Engine
	archive Archive
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(d Deps) *http.ServeMux {
	s := &server{eng: d.Engine, archive: d.Archive}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.health)

	mux.HandleFunc("GET /api/v1/instruments", s.listInstruments)
	mux.HandleFunc("GET /api/v1/instruments/{id}", s.getInstrument)
	mux.HandleFunc("GET /api/v1/instruments/{id}/series", s.getSeries)

	mux.HandleFunc("GET /api/v1/simulation", s.getSimulation)
	mux.HandleFunc("POST /api/v1/simulation/start", s.start)
	mux.HandleFunc("POST /api/v1/simulation/stop", s.stop)
	mux.HandleFunc("POST /api/v1/simulation/speed", s.setSpeed)

	mux.HandleFunc("GET /api/v1/archive/{ticker}", s.getArchive)
	mux.HandleFunc("GET /api/v1/archive/{ticker}/bars", s.getArchiveBars)

	mux.HandleFunc("OPTIONS /api/v1/", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var (
	errBadID           = errors.New("instrument id must be an integer")
	errArchiveDisabled = errors.New("archive is not enabled")
)
