// Package simulation builds dilemma engines from configurations and drives
// them for a fixed number of rounds.
package simulation

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/signalnine/dilemmalab/engine"
)

// ErrNotConfigured is reported when Run is called on a Simulation that New
// did not build.
var ErrNotConfigured = errors.New("simulation has no engine")

// Simulation is one configured run. It owns its engine and agents and must
// not be shared between goroutines.
type Simulation struct {
	engine   engine.Engine
	rounds   int
	seed     int64
	warnings []string
	logger   *slog.Logger
}

// NewFromEngine wraps an already-built engine.
func NewFromEngine(eng engine.Engine, rounds int, seed int64, logger *slog.Logger) *Simulation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulation{engine: eng, rounds: rounds, seed: seed, logger: logger}
}

// Engine returns the engine being driven.
func (s *Simulation) Engine() engine.Engine { return s.engine }

// Rounds returns the number of rounds Run will play.
func (s *Simulation) Rounds() int { return s.rounds }

// Seed returns the seed the agents' random source was created with.
func (s *Simulation) Seed() int64 { return s.seed }

// GameType returns the game being played.
func (s *Simulation) GameType() engine.GameType { return s.engine.GameType() }

// Run plays every round and computes final statistics. It never panics and
// never fails outright: a failed round is recorded with its error and the run
// continues, a failure computing final statistics leaves an error in
// FinalStats, and anything else yields empty results carrying the error.
func (s *Simulation) Run() (res *engine.Results) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("simulation failed: %v", r)
			if s != nil && s.logger != nil {
				s.logger.Error("simulation aborted", "error", err)
			}
			res = engine.EmptyResults(err)
		}
	}()
	if s == nil || s.engine == nil {
		return engine.EmptyResults(ErrNotConfigured)
	}

	start := time.Now()
	res = s.engine.Results()
	failed := 0
	for round := 1; round <= s.rounds; round++ {
		rec, err := s.playRound(round)
		if err != nil {
			failed++
			s.logger.Error("round failed", "round", round, "error", err)
			rec = s.engine.FailedRound(round, err)
			rec.Round = round
			if rec.Error == "" {
				rec.Error = err.Error()
			}
		}
		res.Rounds = append(res.Rounds, rec)
	}

	final, err := s.finalize()
	if err != nil {
		s.logger.Error("final statistics failed", "error", err)
		res.FinalStats = engine.FinalStats{Error: err.Error()}
	} else {
		res.FinalStats = final
	}

	if res.Metadata == nil {
		res.Metadata = &engine.Metadata{}
	}
	res.Metadata.Agents = s.engine.Agents()
	res.Metadata.Rounds = s.rounds
	res.Metadata.Seed = s.seed
	res.Metadata.Warnings = append(append([]string{}, s.warnings...), res.Metadata.Warnings...)

	s.logger.Info("simulation complete",
		"game_type", s.engine.GameType(),
		"rounds", s.rounds,
		"failed_rounds", failed,
		"duration", time.Since(start))
	return res
}

func (s *Simulation) playRound(round int) (rec engine.RoundRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRoundPanic, r)
		}
	}()
	return s.engine.PlayRound(round)
}

func (s *Simulation) finalize() (stats engine.FinalStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("final statistics panicked: %v", r)
		}
	}()
	return s.engine.Finalize()
}
