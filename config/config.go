// Package config provides the simulation configuration document and the
// application settings. Simulation configs load from JSON or YAML; settings
// load from YAML with environment variable overrides.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config describes one simulation. Numeric fields are Scalars so that
// validation can report values that do not coerce.
type Config struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// GameType and DilemmaType are interchangeable; GameType wins if both are set.
	GameType    string `json:"game_type,omitempty" yaml:"game_type,omitempty"`
	DilemmaType string `json:"dilemma_type,omitempty" yaml:"dilemma_type,omitempty"`

	Rounds     Scalar            `json:"rounds" yaml:"rounds,omitempty"`
	Seed       Scalar            `json:"seed" yaml:"seed,omitempty"`
	Strategies Population        `json:"strategies" yaml:"strategies"`
	Payoffs    map[string]Scalar `json:"payoffs,omitempty" yaml:"payoffs,omitempty"`
	Parameters map[string]Scalar `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Parameter keys understood by the dilemma engines.
const (
	ParamResourceSize      = "resource_size"
	ParamRegenerationRate  = "regeneration_rate"
	ParamHarvestLimit      = "harvest_limit"
	ParamProjectCost       = "project_cost"
	ParamBenefitMultiplier = "benefit_multiplier"
	ParamThreshold         = "threshold"
	ParamEndowment         = "endowment"
	ParamMultiplier        = "multiplier"
	ParamDistribution      = "distribution"
)

// IsEmpty reports whether the document set nothing at all.
func (c *Config) IsEmpty() bool {
	return c == nil || (c.Name == "" && c.Description == "" && c.GameType == "" && c.DilemmaType == "" &&
		!c.Rounds.IsSet() && !c.Seed.IsSet() && c.Strategies == nil &&
		len(c.Payoffs) == 0 && len(c.Parameters) == 0)
}

// TypeName returns the configured game or dilemma type, or "" if neither is set.
func (c *Config) TypeName() string {
	if c.GameType != "" {
		return c.GameType
	}
	return c.DilemmaType
}

// Param returns a dilemma parameter.
func (c *Config) Param(key string) (Scalar, bool) {
	v, ok := c.Parameters[key]
	return v, ok && v.IsSet()
}

// SetParam sets a dilemma parameter.
func (c *Config) SetParam(key string, v Scalar) {
	if c.Parameters == nil {
		c.Parameters = make(map[string]Scalar)
	}
	c.Parameters[key] = v
}

// ParseJSON decodes a JSON configuration document.
func ParseJSON(data []byte) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var c Config
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parsing JSON config: %w", err)
	}
	return &c, nil
}

// ParseYAML decodes a YAML configuration document.
func ParseYAML(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing YAML config: %w", err)
	}
	return &c, nil
}

// Parse decodes JSON or YAML, picking JSON when the document starts with '{'.
func Parse(data []byte) (*Config, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return ParseJSON(trimmed)
	}
	return ParseYAML(data)
}

// LoadFile reads a configuration from disk. .json files are decoded as JSON,
// .yaml and .yml as YAML, anything else by content.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Parse(data)
	}
}

// JSON encodes the config for storage.
func (c *Config) JSON() ([]byte, error) {
	return json.Marshal(c)
}
