package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Settings configures the dilemma CLI and server.
type Settings struct {
	// Logging contains log level and formatting.
	Logging LoggingSettings `json:"logging" yaml:"logging"`

	// DBPath is the SQLite database holding saved configurations and results.
	DBPath string `json:"db_path" yaml:"db_path"`

	// Addr is the listen address for the HTTP API.
	Addr string `json:"addr" yaml:"addr"`

	// SnapshotDir receives JSON snapshots written by run --save.
	SnapshotDir string `json:"snapshot_dir" yaml:"snapshot_dir"`

	// Extensions registers the optional strategies.
	Extensions bool `json:"extensions" yaml:"extensions"`

	// Workers bounds parallel replicate runs (0 = number of CPUs).
	Workers int `json:"workers" yaml:"workers"`

	// MaxRounds caps the rounds of a single run, whether configured or overridden.
	MaxRounds int `json:"max_rounds" yaml:"max_rounds"`

	// MaxAgents caps the population of a single run.
	MaxAgents int `json:"max_agents" yaml:"max_agents"`
}

// LoggingSettings configures the slog handler.
type LoggingSettings struct {
	// Level is one of "debug", "info", "warn" or "error".
	Level string `json:"level" yaml:"level"`

	// Color enables ANSI colors on terminal output.
	Color bool `json:"color" yaml:"color"`
}

// DefaultSettings returns Settings with sensible defaults.
func DefaultSettings() *Settings {
	return &Settings{
		Logging: LoggingSettings{
			Level: "info",
			Color: true,
		},
		DBPath:      "dilemma.db",
		Addr:        ":8080",
		SnapshotDir: "snapshots",
		MaxRounds:   10000,
		MaxAgents:   1000,
	}
}

// LoadSettings loads settings from path, if it exists, then applies
// environment overrides. An empty path skips the file.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading settings file: %w", err)
		default:
			if err := yaml.Unmarshal(data, s); err != nil {
				return nil, fmt.Errorf("parsing settings file: %w", err)
			}
		}
	}
	applyEnvOverrides(s)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that the settings are usable.
func (s *Settings) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if s.Logging.Level != "" && !validLevels[s.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", s.Logging.Level)
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", s.Workers)
	}
	if s.MaxRounds < 0 {
		return fmt.Errorf("max_rounds must be non-negative, got %d", s.MaxRounds)
	}
	if s.MaxAgents < 0 {
		return fmt.Errorf("max_agents must be non-negative, got %d", s.MaxAgents)
	}
	return nil
}

func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("DILEMMA_LOG_LEVEL"); v != "" {
		s.Logging.Level = v
	}
	if v := os.Getenv("NO_COLOR"); v != "" {
		s.Logging.Color = false
	}
	if v := os.Getenv("DILEMMA_DB_PATH"); v != "" {
		s.DBPath = v
	}
	if v := os.Getenv("DILEMMA_ADDR"); v != "" {
		s.Addr = v
	}
	if v := os.Getenv("DILEMMA_SNAPSHOT_DIR"); v != "" {
		s.SnapshotDir = v
	}
	if v := os.Getenv("DILEMMA_EXTENSIONS"); v != "" {
		s.Extensions = v == "true" || v == "1"
	}
	if v := os.Getenv("DILEMMA_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Workers = n
		}
	}
}
