// Package server exposes the engine's data contract over HTTP. It is a thin
// boundary doing parameter parsing, error mapping, and JSON encoding; no
// market logic lives here.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"depthwatch/internal/analytics"
	"depthwatch/internal/book"
	"depthwatch/internal/config"
	"depthwatch/internal/depth"
	"depthwatch/internal/metrics"
	"depthwatch/internal/types"
)

// Server hosts the downstream boundary. Analytics may be nil when every
// analytics feature is disabled.
type Server struct {
	manager   *book.Manager
	analytics *analytics.Engine
	features  config.FeatureConfig
	addr      string
	log       *logrus.Entry
	http      *http.Server
}

// New builds the server and its route table.
func New(cfg config.ServerConfig, features config.FeatureConfig, manager *book.Manager, engine *analytics.Engine, logger *logrus.Logger) *Server {
	s := &Server{
		manager:   manager,
		analytics: engine,
		features:  features,
		addr:      cfg.ListenAddr,
		log:       logger.WithField("component", "server"),
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/book/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/book/{symbol}/metrics", s.handleMetrics).Methods(http.MethodGet)
	api.HandleFunc("/book/{symbol}/depth", s.handleDepth).Methods(http.MethodGet)
	api.HandleFunc("/book/{symbol}", s.handleEvict).Methods(http.MethodDelete)

	// Disabled analytics features never get a route; their paths 404.
	if engine != nil {
		ar := api.PathPrefix("/analytics/{symbol}").Subrouter()
		if features.OrderFlow {
			ar.HandleFunc("/flow", s.handleFlow).Methods(http.MethodGet)
		}
		if features.VolumeProfile {
			ar.HandleFunc("/profile", s.handleProfile).Methods(http.MethodGet)
		}
		if features.Anomalies {
			ar.HandleFunc("/anomalies", s.handleAnomalies).Methods(http.MethodGet)
		}
		if features.Liquidity {
			ar.HandleFunc("/liquidity", s.handleLiquidity).Methods(http.MethodGet)
		}
		if features.HealthScore {
			ar.HandleFunc("/score", s.handleScore).Methods(http.MethodGet)
		}
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.log.WithField("addr", s.addr).Info("server listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Health())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	v, err := s.manager.View(r.Context(), symbol)
	if err != nil {
		s.writeError(w, err)
		return
	}
	m, err := metrics.Compute(v)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	levels := 20
	if raw := r.URL.Query().Get("levels"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, types.ErrInvalidParameter)
			return
		}
		levels = parsed
	}

	v, err := s.manager.View(r.Context(), symbol)
	if err != nil {
		s.writeError(w, err)
		return
	}
	enc, err := depth.Encode(v.Symbol, v.LastUpdateID, v.LastUpdate, v.Bids, v.Asks, levels)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enc)
}

func (s *Server) handleEvict(w http.ResponseWriter, r *http.Request) {
	s.manager.Evict(mux.Vars(r)["symbol"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	symbol, window, err := analyticsParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	snap, err := s.analytics.OrderFlow(r.Context(), symbol, window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	symbol, window, err := analyticsParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	profile, err := s.analytics.VolumeProfile(r.Context(), symbol, window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	symbol, window, err := analyticsParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	anomalies, err := s.analytics.Anomalies(r.Context(), symbol, window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, anomalies)
}

func (s *Server) handleLiquidity(w http.ResponseWriter, r *http.Request) {
	symbol, window, err := analyticsParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	report, err := s.analytics.Liquidity(r.Context(), symbol, window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	score, err := s.analytics.HealthScore(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func analyticsParams(r *http.Request) (string, types.Window, error) {
	symbol := mux.Vars(r)["symbol"]
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return symbol, types.Window60s, nil
	}
	window, err := types.ParseWindow(raw)
	if err != nil {
		return "", 0, err
	}
	return symbol, window, nil
}

// errorBody is the wire error shape: a stable machine code plus a message
// that never leaks internal state.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	// Bodies carry only the sentinel's message; wrapped upstream detail
	// stays in the logs.
	switch {
	case errors.Is(err, types.ErrSymbolNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{"symbol_not_found", types.ErrSymbolNotFound.Error()})
	case errors.Is(err, types.ErrInvalidParameter):
		writeJSON(w, http.StatusBadRequest, errorBody{"invalid_parameter", types.ErrInvalidParameter.Error()})
	case errors.Is(err, types.ErrCapacityExceeded):
		writeJSON(w, http.StatusConflict, errorBody{"capacity_exceeded", types.ErrCapacityExceeded.Error()})
	case errors.Is(err, types.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorBody{"rate_limited", types.ErrRateLimited.Error()})
	case errors.Is(err, types.ErrInitializationFailed):
		s.log.WithError(err).Warn("initialization failed")
		writeJSON(w, http.StatusBadGateway, errorBody{"initialization_failed", types.ErrInitializationFailed.Error()})
	case errors.Is(err, types.ErrInsufficientData):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{"insufficient_data", types.ErrInsufficientData.Error()})
	default:
		s.log.WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{"internal_error", "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
