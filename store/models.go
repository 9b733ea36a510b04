// Package store persists simulation configurations and results in SQLite.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/signalnine/dilemmalab/config"
	"github.com/signalnine/dilemmalab/engine"
	"github.com/signalnine/dilemmalab/export"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Sort orders accepted by ListResults.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
	SortName   = "name"
)

// Configuration is a saved simulation configuration.
type Configuration struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	GameType    string    `json:"game_type"`
	ConfigJSON  string    `json:"config_data"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Config decodes the stored configuration document.
func (c *Configuration) Config() (*config.Config, error) {
	return config.ParseJSON([]byte(c.ConfigJSON))
}

// Result is a saved simulation run.
type Result struct {
	ID              string    `json:"id"`
	ConfigurationID *int64    `json:"configuration_id,omitempty"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	GameType        string    `json:"game_type"`
	ConfigSnapshot  string    `json:"config_snapshot,omitempty"`
	ResultJSON      string    `json:"result_data"`
	StatsSummary    string    `json:"stats_summary,omitempty"`
	TotalRounds     int       `json:"total_rounds"`
	NumAgents       int       `json:"num_agents"`
	IsComplete      bool      `json:"is_complete"`
	CreatedAt       time.Time `json:"created_at"`
}

// Results decodes the stored simulation results.
func (r *Result) Results() (*engine.Results, error) {
	var res engine.Results
	if err := json.Unmarshal([]byte(r.ResultJSON), &res); err != nil {
		return nil, fmt.Errorf("failed to decode result %s: %w", r.ID, err)
	}
	return &res, nil
}

// ResultsQuery filters and pages ListResults.
type ResultsQuery struct {
	GameType string `json:"game_type,omitempty"`
	Search   string `json:"search,omitempty"`
	Sort     string `json:"sort,omitempty"`
	Page     int    `json:"page"`
	PerPage  int    `json:"per_page"`
}

// ResultsList is one page of results.
type ResultsList struct {
	Results    []Result `json:"results"`
	TotalCount int      `json:"total_count"`
	Page       int      `json:"page"`
	PerPage    int      `json:"per_page"`
	TotalPages int      `json:"total_pages"`
}

// NewConfiguration builds a record for cfg. The name falls back to
// "Unnamed Configuration" and the game type to the configured one.
func NewConfiguration(cfg *config.Config) (*Configuration, error) {
	data, err := cfg.JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	name := cfg.Name
	if name == "" {
		name = "Unnamed Configuration"
	}
	gameType := cfg.TypeName()
	if gameType == "" {
		gameType = string(engine.PrisonersDilemma)
	}
	return &Configuration{
		Name:        name,
		Description: cfg.Description,
		GameType:    gameType,
		ConfigJSON:  string(data),
	}, nil
}

// NewResult builds a record for a finished run. cfg may be nil.
func NewResult(name, description string, cfg *config.Config, res *engine.Results, configurationID *int64) (*Result, error) {
	if res == nil {
		return nil, fmt.Errorf("no results to save")
	}
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode results: %w", err)
	}
	summary, err := json.Marshal(export.Summarize(res))
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}

	r := &Result{
		ConfigurationID: configurationID,
		Name:            name,
		Description:     description,
		GameType:        string(res.GameType),
		ResultJSON:      string(resultJSON),
		StatsSummary:    string(summary),
		TotalRounds:     len(res.Rounds),
		IsComplete:      res.Error == "" && res.FinalStats.Error == "",
	}
	if res.Metadata != nil {
		r.NumAgents = res.Metadata.Agents
	}
	if cfg != nil {
		snap, err := cfg.JSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode configuration: %w", err)
		}
		r.ConfigSnapshot = string(snap)
		if r.Name == "" {
			r.Name = cfg.Name
		}
		if r.Description == "" {
			r.Description = cfg.Description
		}
		if r.GameType == "" {
			r.GameType = cfg.TypeName()
		}
	}
	if r.Name == "" {
		r.Name = "Unnamed Simulation"
	}
	if r.GameType == "" {
		r.GameType = "unknown"
	}
	return r, nil
}
