// Package api exposes simulations and saved history over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/signalnine/dilemmalab/simulation"
	"github.com/signalnine/dilemmalab/snapshot"
	"github.com/signalnine/dilemmalab/store"
	"github.com/signalnine/dilemmalab/strategy"
)

// Repository is the persistence the server needs. *store.Store implements it.
type Repository interface {
	SaveConfiguration(ctx context.Context, c *store.Configuration) error
	UpdateConfiguration(ctx context.Context, c *store.Configuration) error
	GetConfiguration(ctx context.Context, id int64) (*store.Configuration, error)
	ListConfigurations(ctx context.Context) ([]store.Configuration, error)
	SaveResult(ctx context.Context, r *store.Result) error
	GetResult(ctx context.Context, id string) (*store.Result, error)
	ListResults(ctx context.Context, q store.ResultsQuery) (*store.ResultsList, error)
	ResultsForConfiguration(ctx context.Context, configurationID int64) ([]store.Result, error)
}

// ErrNoRepository is reported by persistence endpoints when the server runs
// without a database.
var ErrNoRepository = errors.New("persistence is not configured")

// Server handles HTTP requests.
type Server struct {
	repo      Repository
	registry  *strategy.Registry
	logger    *slog.Logger
	maxRounds int
	maxAgents int
	workers   int
	startTime time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithMaxRounds caps the rounds a request may ask for. Zero means no cap.
func WithMaxRounds(n int) Option {
	return func(s *Server) { s.maxRounds = n }
}

// WithMaxAgents caps the population a request may configure.
func WithMaxAgents(n int) Option {
	return func(s *Server) { s.maxAgents = n }
}

// WithWorkers bounds the worker pool used for replicate requests.
func WithWorkers(n int) Option {
	return func(s *Server) { s.workers = n }
}

// NewServer creates a server. repo may be nil, in which case only the
// stateless endpoints work.
func NewServer(repo Repository, registry *strategy.Registry, logger *slog.Logger, opts ...Option) *Server {
	if registry == nil {
		registry = strategy.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		repo:      repo,
		registry:  registry,
		logger:    logger,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes sets up the HTTP routes with middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Heartbeat("/health"))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/games", s.handleListGames)
		r.Get("/strategies", s.handleListStrategies)
		r.Post("/validate", s.handleValidate)
		r.Post("/simulate", s.handleSimulate)
		r.Post("/replicates", s.handleReplicates)

		r.Route("/configs", func(r chi.Router) {
			r.Get("/", s.handleListConfigs)
			r.Post("/", s.handleCreateConfig)
			r.Get("/{id}", s.handleGetConfig)
			r.Put("/{id}", s.handleUpdateConfig)
			r.Get("/{id}/results", s.handleConfigResults)
		})

		r.Route("/results", func(r chi.Router) {
			r.Get("/", s.handleListResults)
			r.Get("/{id}", s.handleGetResult)
			r.Get("/{id}/summary", s.handleResultSummary)
		})
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("api shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// writeJSON writes a JSON response with proper headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps err to a status code and writes {success: false, error}.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, ErrorResponse{Success: false, Error: err.Error()})
}

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, simulation.ErrInvalidConfig), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrNotFound), errors.Is(err, snapshot.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNoRepository):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
