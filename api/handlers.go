package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/signalnine/dilemmalab/config"
	"github.com/signalnine/dilemmalab/engine"
	"github.com/signalnine/dilemmalab/export"
	"github.com/signalnine/dilemmalab/simulation"
	"github.com/signalnine/dilemmalab/store"
	"github.com/signalnine/dilemmalab/strategy"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// SimulateRequest starts a run from an inline configuration or a saved one.
type SimulateRequest struct {
	Config      json.RawMessage `json:"config,omitempty"`
	ConfigID    *int64          `json:"config_id,omitempty"`
	Rounds      int             `json:"rounds,omitempty"`
	Seed        *int64          `json:"seed,omitempty"`
	Save        *bool           `json:"save,omitempty"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
}

// SimulateResponse carries the run's results and, when saved, its record ID.
type SimulateResponse struct {
	Success  bool            `json:"success"`
	ResultID string          `json:"result_id,omitempty"`
	Results  *engine.Results `json:"results"`
}

// ReplicatesRequest runs one configuration several times.
type ReplicatesRequest struct {
	Config     json.RawMessage `json:"config"`
	Replicates int             `json:"replicates"`
	Seed       int64           `json:"seed,omitempty"`
}

// StatusResponse describes the running server.
type StatusResponse struct {
	Uptime      string `json:"uptime"`
	Persistence bool   `json:"persistence"`
	Extensions  bool   `json:"extensions"`
	MaxRounds   int    `json:"max_rounds,omitempty"`
	MaxAgents   int    `json:"max_agents,omitempty"`
}

// GameInfo describes one supported game type.
type GameInfo struct {
	Type       engine.GameType `json:"type"`
	Family     strategy.Family `json:"family"`
	Strategies []string        `json:"strategies"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Uptime:      time.Since(s.startTime).Round(time.Second).String(),
		Persistence: s.repo != nil,
		Extensions:  s.registry.Extended(),
		MaxRounds:   s.maxRounds,
		MaxAgents:   s.maxAgents,
	})
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games := make([]GameInfo, 0, len(engine.GameTypes))
	for _, g := range engine.GameTypes {
		games = append(games, GameInfo{Type: g, Family: g.Family(), Strategies: s.registry.Names(g.Family())})
	}
	s.writeJSON(w, http.StatusOK, games)
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	if f := r.URL.Query().Get("family"); f != "" {
		family := strategy.Family(strategy.Normalize(f))
		specs := s.registry.Specs(family)
		if len(specs) == 0 {
			s.writeError(w, badRequest("unknown strategy family %q", f))
			return
		}
		s.writeJSON(w, http.StatusOK, map[strategy.Family][]strategy.Spec{family: specs})
		return
	}

	out := make(map[strategy.Family][]strategy.Spec, len(strategy.Families))
	for _, family := range strategy.Families {
		out[family] = s.registry.Specs(family)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.readConfig(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := simulation.Validate(cfg, s.registry); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "valid": true})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	var (
		cfg      *config.Config
		configID *int64
	)
	switch {
	case req.ConfigID != nil:
		if s.repo == nil {
			s.writeError(w, ErrNoRepository)
			return
		}
		saved, err := s.repo.GetConfiguration(r.Context(), *req.ConfigID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if cfg, err = saved.Config(); err != nil {
			s.writeError(w, err)
			return
		}
		configID = req.ConfigID
	case len(req.Config) > 0:
		var err error
		if cfg, err = config.ParseJSON(req.Config); err != nil {
			s.writeError(w, badRequest("%v", err))
			return
		}
	default:
		s.writeError(w, badRequest("config or config_id is required"))
		return
	}

	opts := []simulation.Option{
		simulation.WithLogger(s.logger),
		simulation.WithRounds(req.Rounds),
		simulation.WithMaxAgents(s.maxAgents),
	}
	if req.Seed != nil {
		opts = append(opts, simulation.WithSeed(*req.Seed))
	}
	sim, err := simulation.New(cfg, s.registry, opts...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.checkRounds(sim.Rounds()); err != nil {
		s.writeError(w, err)
		return
	}

	res := sim.Run()
	resp := SimulateResponse{Success: true, Results: res}

	save := s.repo != nil
	if req.Save != nil {
		save = *req.Save
	}
	if save {
		if s.repo == nil {
			s.writeError(w, ErrNoRepository)
			return
		}
		record, err := store.NewResult(req.Name, req.Description, cfg, res, configID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.repo.SaveResult(r.Context(), record); err != nil {
			s.writeError(w, err)
			return
		}
		resp.ResultID = record.ID
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReplicates(w http.ResponseWriter, r *http.Request) {
	var req ReplicatesRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if len(req.Config) == 0 {
		s.writeError(w, badRequest("config is required"))
		return
	}
	if req.Replicates <= 0 || req.Replicates > 1000 {
		s.writeError(w, badRequest("replicates must be between 1 and 1000"))
		return
	}
	cfg, err := config.ParseJSON(req.Config)
	if err != nil {
		s.writeError(w, badRequest("%v", err))
		return
	}
	first, err := simulation.New(cfg, s.registry,
		simulation.WithLogger(s.logger),
		simulation.WithSeed(req.Seed),
		simulation.WithMaxAgents(s.maxAgents))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.checkRounds(first.Rounds()); err != nil {
		s.writeError(w, err)
		return
	}

	summary, err := simulation.RunReplicates(cfg, s.registry, req.Replicates, s.workers, req.Seed, s.logger)
	if err != nil && summary.Replicates == 0 {
		s.writeError(w, err)
		return
	}
	if err != nil {
		s.logger.Warn("some replicates failed", "error", err)
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		s.writeError(w, ErrNoRepository)
		return
	}
	configs, err := s.repo.ListConfigurations(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if configs == nil {
		configs = []store.Configuration{}
	}
	s.writeJSON(w, http.StatusOK, configs)
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		s.writeError(w, ErrNoRepository)
		return
	}
	cfg, err := s.readConfig(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := simulation.Validate(cfg, s.registry); err != nil {
		s.writeError(w, err)
		return
	}
	record, err := store.NewConfiguration(cfg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.repo.SaveConfiguration(r.Context(), record); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		s.writeError(w, ErrNoRepository)
		return
	}
	id, err := configIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	record, err := s.repo.GetConfiguration(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		s.writeError(w, ErrNoRepository)
		return
	}
	id, err := configIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	cfg, err := s.readConfig(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := simulation.Validate(cfg, s.registry); err != nil {
		s.writeError(w, err)
		return
	}
	record, err := store.NewConfiguration(cfg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	record.ID = id
	if err := s.repo.UpdateConfiguration(r.Context(), record); err != nil {
		s.writeError(w, err)
		return
	}
	updated, err := s.repo.GetConfiguration(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleConfigResults(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		s.writeError(w, ErrNoRepository)
		return
	}
	id, err := configIDParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	results, err := s.repo.ResultsForConfiguration(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if results == nil {
		results = []store.Result{}
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		s.writeError(w, ErrNoRepository)
		return
	}
	q := r.URL.Query()
	query := store.ResultsQuery{
		GameType: q.Get("game_type"),
		Search:   q.Get("search"),
		Sort:     q.Get("sort"),
	}
	var err error
	if query.Page, err = intParam(q.Get("page"), 1); err != nil {
		s.writeError(w, err)
		return
	}
	if query.PerPage, err = intParam(q.Get("per_page"), 10); err != nil {
		s.writeError(w, err)
		return
	}
	list, err := s.repo.ListResults(r.Context(), query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		s.writeError(w, ErrNoRepository)
		return
	}
	record, err := s.repo.GetResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// handleResultSummary returns the FlatBuffers summary of a saved run, or the
// same summary as JSON with ?format=json.
func (s *Server) handleResultSummary(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		s.writeError(w, ErrNoRepository)
		return
	}
	record, err := s.repo.GetResult(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := record.Results()
	if err != nil {
		s.writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "json" {
		s.writeJSON(w, http.StatusOK, export.Summarize(res))
		return
	}
	buf := export.EncodeSummary(res)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf); err != nil {
		s.logger.Error("failed to write summary", "error", err)
	}
}

func (s *Server) checkRounds(n int) error {
	if s.maxRounds > 0 && n > s.maxRounds {
		return &simulation.ConfigError{
			Field:   "rounds",
			Message: fmt.Sprintf("%d rounds exceeds the server limit of %d", n, s.maxRounds),
			Cause:   simulation.ErrInvalidParameter,
		}
	}
	return nil
}

// readConfig parses the request body as a configuration document, JSON or YAML.
func (s *Server) readConfig(w http.ResponseWriter, r *http.Request) (*config.Config, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	cfg, err := config.Parse(data)
	if err != nil {
		return nil, badRequest("%v", err)
	}
	return cfg, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func configIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid configuration id %q", raw)
	}
	return id, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, badRequest("invalid positive integer %q", raw)
	}
	return n, nil
}
