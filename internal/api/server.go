package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"ubi-pricer/internal/features"
	"ubi-pricer/internal/pricing"
	"ubi-pricer/internal/risk"
	"ubi-pricer/internal/service"
	"ubi-pricer/internal/storage"
	"ubi-pricer/internal/telemetry"
)

const maxBodyBytes = 32 << 20

// Options configure the HTTP server.
type Options struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server exposes the pricing pipeline over HTTP. Stores may be nil; the
// storage-backed endpoints then report the capability as unavailable.
type Server struct {
	opts     Options
	pipeline *service.Pipeline
	engine   *pricing.Engine
	rows     storage.PricedRowStore
	runs     storage.RunStore
	router   *mux.Router
	logger   zerolog.Logger
}

// NewServer wires handlers onto a router.
func NewServer(opts Options, pipeline *service.Pipeline, engine *pricing.Engine, rows storage.PricedRowStore, runs storage.RunStore, logger zerolog.Logger) *Server {
	s := &Server{
		opts:     opts,
		pipeline: pipeline,
		engine:   engine,
		rows:     rows,
		runs:     runs,
		router:   mux.NewRouter(),
		logger:   logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/api/v1/validate", s.handleValidate).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/price", s.handlePrice).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/pipeline", s.handlePipeline).Methods(http.MethodPost)

	s.router.HandleFunc("/api/v1/rows", s.handleRows).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/runs", s.handleRuns).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/snapshot", s.handleSnapshot).Methods(http.MethodGet)

	s.router.Use(s.loggingMiddleware)
	s.router.Use(jsonMiddleware)
}

// Router returns the configured router, mainly for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.ListenAddr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleValidate runs schema and cross-field validation without pricing.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := telemetry.ParseBatch(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, _ := telemetry.ValidateBatch(records)
	respondJSON(w, http.StatusOK, summary)
}

// handlePrice prices already-aggregated feature rows. Rows carrying model
// outputs are repriced without consulting the model.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var rows []features.Row
	if err := json.Unmarshal(body, &rows); err != nil {
		var single features.Row
		if err := json.Unmarshal(body, &single); err != nil {
			respondError(w, http.StatusBadRequest, "body must be a feature row or an array of feature rows")
			return
		}
		rows = []features.Row{single}
	}

	priced, err := s.engine.Price(r.Context(), rows)
	if err != nil {
		s.respondPricingError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, priced)
}

// handlePipeline runs the full chain over a raw telemetry batch.
func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.pipeline.ExecuteBody(r.Context(), body)
	if err != nil {
		if errors.Is(err, telemetry.ErrMalformedInput) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondPricingError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"validation": result.Validation,
		"priced":     result.Priced,
		"snapshot":   pricing.Summarize(result.Priced),
	})
}

func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	if s.rows == nil {
		respondError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}
	records, err := s.rows.ListRecentPricedRows(r.Context(), queryLimit(r, 50))
	if err != nil {
		s.logger.Error().Err(err).Msg("list priced rows failed")
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}
	records, err := s.runs.ListRecentRuns(r.Context(), queryLimit(r, 20))
	if err != nil {
		s.logger.Error().Err(err).Msg("list runs failed")
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.rows == nil {
		respondError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}
	stats, err := s.rows.PremiumStats(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("premium stats failed")
		respondError(w, http.StatusInternalServerError, "query failed")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) respondPricingError(w http.ResponseWriter, err error) {
	if errors.Is(err, risk.ErrModelUnavailable) {
		respondError(w, http.StatusServiceUnavailable, "risk model unavailable")
		return
	}
	s.logger.Error().Err(err).Msg("pricing failed")
	respondError(w, http.StatusInternalServerError, "pricing failed")
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
}

func queryLimit(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 1000 {
		return def
	}
	return n
}
