package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/grow-controller/db"
	"github.com/thatsimonsguy/grow-controller/internal/model"
	"github.com/thatsimonsguy/grow-controller/internal/state"
)

const (
	defaultCycleLimit = 50
	maxCycleLimit     = 1000
)

type Server struct {
	tracker    *state.Tracker
	db         *sql.DB
	thresholds model.Thresholds
}

type SensorDataResponse struct {
	SoilTemp          float64 `json:"SoilTemp"`
	AirTemp           float64 `json:"AirTemp"`
	Humidity          float64 `json:"Humidity"`
	SoilMoisture      int     `json:"SoilMoisture"`
	IdealSoilTemp     float64 `json:"IdealSoilTemp"`
	IdealAirTemp      float64 `json:"IdealAirTemp"`
	IdealHumidity     float64 `json:"IdealHumidity"`
	IdealSoilMoisture int     `json:"IdealSoilMoisture"`
	TakenAt           string  `json:"TakenAt,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the read-only status API. database may be nil when the
// cycle history is disabled.
func NewServer(tracker *state.Tracker, database *sql.DB, thresholds model.Thresholds) *Server {
	return &Server{
		tracker:    tracker,
		db:         database,
		thresholds: thresholds,
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.getStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/sensor-data", s.getSensorData).Methods(http.MethodGet)
	r.HandleFunc("/api/thresholds", s.getThresholds).Methods(http.MethodGet)
	r.HandleFunc("/api/cycles", s.getCycles).Methods(http.MethodGet)
	r.HandleFunc("/api/cycles/{id}", s.getCycle).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(r)
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handlers.RecoveryHandler()(s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("REST API server shutdown failed")
		}
	}()

	log.Info().Str("address", addr).Msg("Starting REST API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) getSensorData(w http.ResponseWriter, r *http.Request) {
	resp := SensorDataResponse{
		IdealSoilTemp:     s.thresholds.TargetSoilTempC,
		IdealAirTemp:      s.thresholds.TargetAirTempC,
		IdealHumidity:     s.thresholds.TargetHumidityPct,
		IdealSoilMoisture: s.thresholds.TargetMoisturePct,
	}

	last := s.tracker.Snapshot().LastReported
	if last == nil {
		s.writeError(w, http.StatusServiceUnavailable, "No sensor data yet")
		return
	}

	snap := last.Snapshot
	resp.SoilTemp = snap.SoilTempC
	resp.AirTemp = snap.AirTempC
	resp.Humidity = snap.HumidityPct
	resp.SoilMoisture = snap.SoilMoisturePct
	resp.TakenAt = snap.TakenAt.Format(time.RFC3339)

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getThresholds(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.thresholds)
}

func (s *Server) getCycles(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Cycle history disabled")
		return
	}

	limit := defaultCycleLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxCycleLimit {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid limit. Must be between 1 and %d", maxCycleLimit))
			return
		}
		limit = n
	}

	records, err := db.GetRecentCycles(s.db, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get recent cycles")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []model.CycleRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) getCycle(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Cycle history disabled")
		return
	}

	id := mux.Vars(r)["id"]
	rec, err := db.GetCycleByID(s.db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, http.StatusNotFound, "Cycle not found")
		} else {
			log.Error().Err(err).Str("cycle", id).Msg("Failed to get cycle")
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
