package simulation

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"testing"

	"go.uber.org/multierr"

	"github.com/signalnine/dilemmalab/config"
	"github.com/signalnine/dilemmalab/engine"
	"github.com/signalnine/dilemmalab/strategy"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func mustParse(t *testing.T, doc string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}
	return cfg
}

func mustNew(t *testing.T, doc string, opts ...Option) *Simulation {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithSeed(42)}, opts...)
	sim, err := New(mustParse(t, doc), strategy.NewRegistry(strategy.WithExtensions()), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return sim
}

func TestMutualCooperationScenario(t *testing.T) {
	sim := mustNew(t, `{"rounds": 1, "strategies": {"always-cooperate": 2}}`)
	res := sim.Run()

	if len(res.Rounds) != 1 {
		t.Fatalf("Expected 1 round, got %d", len(res.Rounds))
	}
	ix := res.Rounds[0].Interactions
	if len(ix) != 1 {
		t.Fatalf("Expected 1 interaction, got %d", len(ix))
	}
	if ix[0].Move1 != strategy.Cooperate || ix[0].Move2 != strategy.Cooperate {
		t.Errorf("Expected (C,C), got (%s,%s)", ix[0].Move1, ix[0].Move2)
	}
	if ix[0].Score1 != 3 || ix[0].Score2 != 3 {
		t.Errorf("Expected scores (3,3), got (%v,%v)", ix[0].Score1, ix[0].Score2)
	}
	if res.GameType != engine.PrisonersDilemma {
		t.Errorf("Expected default game type prisoners_dilemma, got %s", res.GameType)
	}
}

func TestMutualDefectionScenario(t *testing.T) {
	sim := mustNew(t, `{"game_type": "prisoners_dilemma", "rounds": 1, "strategies": {"always-defect": 2}}`)
	res := sim.Run()

	ix := res.Rounds[0].Interactions[0]
	if ix.Move1 != strategy.Defect || ix.Move2 != strategy.Defect {
		t.Errorf("Expected (D,D), got (%s,%s)", ix.Move1, ix.Move2)
	}
	if ix.Score1 != 1 || ix.Score2 != 1 {
		t.Errorf("Expected scores (1,1), got (%v,%v)", ix.Score1, ix.Score2)
	}
}

func TestCommonsScenario(t *testing.T) {
	sim := mustNew(t, `
dilemma_type: tragedy_commons
rounds: 1
strategies:
  fair_share: 4
parameters:
  resource_size: 1000
  regeneration_rate: 200
  harvest_limit: 30
`)
	res := sim.Run()

	for _, h := range res.Rounds[0].Harvests {
		if math.Abs(h.Harvest-30) > 1e-9 {
			t.Errorf("Agent %d: expected harvest 30, got %v", h.AgentID, h.Harvest)
		}
	}
	if len(res.ResourceLevels) != 2 {
		t.Fatalf("Expected 2 resource levels, got %d", len(res.ResourceLevels))
	}
	if got := res.ResourceLevels[1]; math.Abs(got-1091.2) > 1e-6 {
		t.Errorf("Expected resource 1091.2, got %v", got)
	}
}

func TestRoundCounts(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"pairwise", `{"rounds": 7, "strategies": {"tit_for_tat": 2, "random": 2}}`},
		{"commons", `{"dilemma_type": "tragedy_commons", "rounds": 7, "strategies": {"greedy": 3}}`},
		{"threshold", `{"dilemma_type": "free_rider", "rounds": 7, "strategies": {"partial": 2, "free_rider": 1}}`},
		{"public goods", `{"dilemma_type": "public_goods", "rounds": 7, "strategies": {"random": 2, "matching": 2}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustNew(t, tt.doc).Run()
			if len(res.Rounds) != 7 {
				t.Fatalf("Expected 7 rounds, got %d", len(res.Rounds))
			}
			for i, rec := range res.Rounds {
				if rec.Round != i+1 {
					t.Errorf("Expected round index %d, got %d", i+1, rec.Round)
				}
				if rec.Error != "" {
					t.Errorf("Round %d failed: %s", rec.Round, rec.Error)
				}
			}
			if res.FinalStats.Error != "" {
				t.Errorf("Final stats failed: %s", res.FinalStats.Error)
			}
			if res.Metadata == nil || res.Metadata.Rounds != 7 || res.Metadata.Seed != 42 {
				t.Errorf("Unexpected metadata: %+v", res.Metadata)
			}
		})
	}
}

func TestInvalidRoundsFallsBack(t *testing.T) {
	sim := mustNew(t, `{"rounds": "lots", "strategies": {"grudger": 2}}`)
	if sim.Rounds() != DefaultRounds {
		t.Errorf("Expected %d rounds, got %d", DefaultRounds, sim.Rounds())
	}
	res := sim.Run()
	if len(res.Rounds) != DefaultRounds {
		t.Errorf("Expected %d round records, got %d", DefaultRounds, len(res.Rounds))
	}
	if len(res.Metadata.Warnings) == 0 || !strings.Contains(res.Metadata.Warnings[0], "rounds") {
		t.Errorf("Expected a rounds warning, got %v", res.Metadata.Warnings)
	}
}

func TestWithRoundsOverrides(t *testing.T) {
	sim := mustNew(t, `{"rounds": 50, "strategies": {"grudger": 2}}`, WithRounds(3))
	if got := len(sim.Run().Rounds); got != 3 {
		t.Errorf("Expected 3 rounds, got %d", got)
	}
}

func TestAgentLabelsFollowDocumentOrder(t *testing.T) {
	sim := mustNew(t, `{"rounds": 1, "strategies": {"tit_for_tat": 2, "grudger": 1, "always-cooperate": 0}}`)
	res := sim.Run()

	for _, label := range []string{"tit_for_tat_1", "tit_for_tat_2", "grudger_1"} {
		if _, ok := res.Scores[label]; !ok {
			t.Errorf("Expected agent %s, got %v", label, res.Scores)
		}
	}
	if len(res.Scores) != 3 {
		t.Errorf("Expected 3 agents, got %d", len(res.Scores))
	}
	if _, ok := res.StrategyPerformance["always_cooperate"]; ok {
		t.Error("Expected zero-count strategy to be absent from performance")
	}
	ix := res.Rounds[0].Interactions
	if ix[0].Agent1 != "tit_for_tat_1" || ix[0].Agent2 != "tit_for_tat_2" {
		t.Errorf("Expected first pair (tit_for_tat_1, tit_for_tat_2), got (%s, %s)", ix[0].Agent1, ix[0].Agent2)
	}
}

func TestAliasesShareLabels(t *testing.T) {
	sim := mustNew(t, `{"rounds": 1, "strategies": {"always-cooperate": 1, "all_cooperate": 1}}`)
	res := sim.Run()
	if _, ok := res.Scores["always_cooperate_2"]; !ok {
		t.Errorf("Expected aliases to be numbered together, got %v", res.Scores)
	}
	if perf := res.StrategyPerformance["always_cooperate"]; perf == nil || perf.Agents != 2 {
		t.Errorf("Expected 2 always_cooperate agents, got %+v", perf)
	}
}

func TestSeedReproducibility(t *testing.T) {
	doc := `{"rounds": 20, "strategies": {"random": 4}}`
	a := mustNew(t, doc, WithSeed(7)).Run()
	b := mustNew(t, doc, WithSeed(7)).Run()

	for r := range a.Rounds {
		for i := range a.Rounds[r].Interactions {
			if a.Rounds[r].Interactions[i] != b.Rounds[r].Interactions[i] {
				t.Fatalf("Round %d interaction %d differs between runs with the same seed", r+1, i)
			}
		}
	}
}

func TestConfigSeedIsUsed(t *testing.T) {
	sim, err := New(mustParse(t, `{"seed": 99, "strategies": {"random": 2}}`), nil, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if sim.Seed() != 99 {
		t.Errorf("Expected seed 99, got %d", sim.Seed())
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		cause error
	}{
		{"empty", `{}`, ErrEmptyConfig},
		{"missing strategies", `{"rounds": 5}`, ErrNoStrategies},
		{"empty strategies", `{"strategies": {}}`, ErrNoStrategies},
		{"non-numeric count", `{"strategies": {"grudger": "two"}}`, ErrInvalidParameter},
		{"fractional count", `{"strategies": {"grudger": 1.5}}`, ErrInvalidParameter},
		{"negative count", `{"strategies": {"grudger": -1}}`, ErrInvalidParameter},
		{"zero agents", `{"strategies": {"grudger": 0, "random": 0}}`, ErrNoAgents},
		{"unknown type", `{"game_type": "ultimatum_game", "strategies": {"grudger": 2}}`, ErrUnknownType},
		{"unknown strategy", `{"strategies": {"grudger": 1, "saint": 1}}`, ErrUnknownStrategy},
		{"wrong family", `{"dilemma_type": "tragedy_commons", "strategies": {"grudger": 2}}`, ErrUnknownStrategy},
		{"extension not registered", `{"dilemma_type": "tragedy_commons", "strategies": {"seasonal": 2}}`, ErrUnknownStrategy},
		{"bad payoff", `{"strategies": {"grudger": 2}, "payoffs": {"T": "high"}}`, ErrInvalidParameter},
		{"bad regeneration", `{"dilemma_type": "tragedy_commons", "strategies": {"greedy": 2}, "parameters": {"regeneration_rate": "fast"}}`, ErrInvalidParameter},
		{"bad distribution", `{"dilemma_type": "public_goods", "strategies": {"full": 2}, "parameters": {"distribution": "lottery"}}`, ErrInvalidParameter},
		{"engine rejects", `{"dilemma_type": "tragedy_commons", "strategies": {"greedy": 2}, "parameters": {"resource_size": 0}}`, ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, err := New(mustParse(t, tt.doc), strategy.NewRegistry(), WithLogger(quietLogger()))
			if err == nil {
				t.Fatal("Expected an error")
			}
			if sim != nil {
				t.Error("Expected no simulation on failure")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
			if !errors.Is(err, tt.cause) {
				t.Errorf("Expected %v, got %v", tt.cause, err)
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("Expected *ConfigError, got %T", err)
			}
		})
	}
}

func TestAgentLimit(t *testing.T) {
	cfg := mustParse(t, `{"rounds": 1, "strategies": {"tit_for_tat": 6, "always_defect": 5}}`)

	_, err := New(cfg, strategy.NewRegistry(), WithLogger(quietLogger()), WithMaxAgents(10))
	if !errors.Is(err, ErrInvalidConfig) || !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected an invalid parameter, got %v", err)
	}
	if _, err := New(cfg, strategy.NewRegistry(), WithLogger(quietLogger()), WithMaxAgents(11)); err != nil {
		t.Errorf("Expected 11 agents to fit a limit of 11, got %v", err)
	}

	// Validate stops at the hard limit without building the population.
	huge := mustParse(t, fmt.Sprintf(`{"strategies": {"tit_for_tat": %d, "nope": 1}}`, MaxAgents))
	err = Validate(huge, nil)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("Expected an invalid parameter, got %v", err)
	}
}

func TestNilConfigIsEmpty(t *testing.T) {
	_, err := New(nil, nil, WithLogger(quietLogger()))
	if !errors.Is(err, ErrEmptyConfig) {
		t.Errorf("Expected ErrEmptyConfig, got %v", err)
	}
}

func TestValidationOrder(t *testing.T) {
	// Zero agents is checked before the game type.
	_, err := New(mustParse(t, `{"game_type": "ultimatum_game", "strategies": {"grudger": 0}}`), nil, WithLogger(quietLogger()))
	if !errors.Is(err, ErrNoAgents) {
		t.Errorf("Expected ErrNoAgents first, got %v", err)
	}
	if errors.Is(err, ErrUnknownType) {
		t.Error("Expected only the first failure from New")
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := &config.Config{Payoffs: map[string]config.Scalar{"T": config.Text("x")}}
	cfg.Strategies.Set("tit_for_tat", config.Int(-1))
	cfg.Strategies.Set("nope", config.Int(1))

	err := Validate(cfg, nil)
	if err == nil {
		t.Fatal("Expected validation errors")
	}
	errs := multierr.Errors(err)
	if len(errs) != 3 {
		t.Fatalf("Expected 3 errors, got %d: %v", len(errs), err)
	}
	if !errors.Is(errs[0], ErrInvalidParameter) || !errors.Is(errs[1], ErrUnknownStrategy) || !errors.Is(errs[2], ErrInvalidParameter) {
		t.Errorf("Unexpected errors: %v", errs)
	}
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	cfg := mustParse(t, `{"dilemma_type": "public_goods", "rounds": 10, "strategies": {"full": 2, "zero": 1}, "parameters": {"distribution": "proportional"}}`)
	if err := Validate(cfg, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

// stubEngine fails in scripted ways.
type stubEngine struct {
	res          *engine.Results
	failRound    int
	panicRound   int
	finalErr     error
	panicResults bool
}

func newStub() *stubEngine {
	return &stubEngine{res: &engine.Results{
		GameType:            engine.PrisonersDilemma,
		Rounds:              []engine.RoundRecord{},
		StrategyPerformance: map[string]*engine.StrategyPerformance{},
	}}
}

func (s *stubEngine) GameType() engine.GameType { return engine.PrisonersDilemma }
func (s *stubEngine) Agents() int               { return 2 }

func (s *stubEngine) PlayRound(round int) (engine.RoundRecord, error) {
	if round == s.panicRound {
		panic("boom")
	}
	if round == s.failRound {
		return engine.RoundRecord{}, errors.New("bad round")
	}
	return engine.RoundRecord{Round: round}, nil
}

func (s *stubEngine) FailedRound(round int, err error) engine.RoundRecord {
	return engine.RoundRecord{Round: round, Error: err.Error()}
}

func (s *stubEngine) Finalize() (engine.FinalStats, error) {
	if s.finalErr != nil {
		return engine.FinalStats{}, s.finalErr
	}
	return engine.FinalStats{Strategies: map[string]engine.StrategyOutcome{}}, nil
}

func (s *stubEngine) Results() *engine.Results {
	if s.panicResults {
		panic("results unavailable")
	}
	return s.res
}

func TestFailedRoundDoesNotAbortRun(t *testing.T) {
	stub := newStub()
	stub.failRound = 2
	stub.panicRound = 4
	res := NewFromEngine(stub, 5, 1, quietLogger()).Run()

	if len(res.Rounds) != 5 {
		t.Fatalf("Expected 5 rounds, got %d", len(res.Rounds))
	}
	for i, rec := range res.Rounds {
		round := i + 1
		if rec.Round != round {
			t.Errorf("Expected round %d, got %d", round, rec.Round)
		}
		switch round {
		case 2:
			if rec.Error != "bad round" {
				t.Errorf("Expected 'bad round', got %q", rec.Error)
			}
		case 4:
			if !strings.Contains(rec.Error, "boom") {
				t.Errorf("Expected panic message, got %q", rec.Error)
			}
		default:
			if rec.Error != "" {
				t.Errorf("Round %d: unexpected error %q", round, rec.Error)
			}
		}
	}
	if res.FinalStats.Error != "" {
		t.Errorf("Expected final stats to succeed, got %q", res.FinalStats.Error)
	}
}

func TestFinalStatsFailure(t *testing.T) {
	stub := newStub()
	stub.finalErr = errors.New("stats exploded")
	res := NewFromEngine(stub, 3, 1, quietLogger()).Run()

	if res.FinalStats.Error != "stats exploded" {
		t.Errorf("Expected final stats error, got %q", res.FinalStats.Error)
	}
	if res.FinalStats.Strategies != nil {
		t.Error("Expected no strategy outcomes")
	}
	if len(res.Rounds) != 3 {
		t.Errorf("Expected completed rounds to be kept, got %d", len(res.Rounds))
	}
}

func TestCatastrophicFailure(t *testing.T) {
	stub := newStub()
	stub.panicResults = true
	res := NewFromEngine(stub, 3, 1, quietLogger()).Run()

	if res == nil {
		t.Fatal("Expected results")
	}
	if !strings.Contains(res.Error, "results unavailable") {
		t.Errorf("Expected error to be carried, got %q", res.Error)
	}
	if len(res.Rounds) != 0 {
		t.Errorf("Expected empty rounds, got %d", len(res.Rounds))
	}
}

func TestRunWithoutEngine(t *testing.T) {
	var sim *Simulation
	res := sim.Run()
	if res.Error != ErrNotConfigured.Error() {
		t.Errorf("Expected %q, got %q", ErrNotConfigured, res.Error)
	}
	res = (&Simulation{}).Run()
	if res.Error == "" {
		t.Error("Expected an error for a zero Simulation")
	}
}

func TestRunReplicatesIsDeterministic(t *testing.T) {
	cfg := mustParse(t, `{"rounds": 10, "strategies": {"random": 2, "tit_for_tat": 2}}`)
	reg := strategy.NewRegistry()

	serial, err := RunReplicates(cfg, reg, 6, 1, 123, quietLogger())
	if err != nil {
		t.Fatalf("RunReplicates: %v", err)
	}
	parallel, err := RunReplicates(cfg, reg, 6, 4, 123, quietLogger())
	if err != nil {
		t.Fatalf("RunReplicates: %v", err)
	}

	if serial.Replicates != 6 || len(serial.Seeds) != 6 {
		t.Errorf("Expected 6 replicates, got %d", serial.Replicates)
	}
	if serial.Errors != 0 {
		t.Errorf("Expected no errors, got %d", serial.Errors)
	}
	for name, s := range serial.Strategies {
		p := parallel.Strategies[name]
		if p == nil {
			t.Fatalf("Strategy %s missing from parallel summary", name)
		}
		if s.Runs != 6 {
			t.Errorf("%s: expected 6 runs, got %d", name, s.Runs)
		}
		if math.Abs(s.MeanScore-p.MeanScore) > 1e-9 {
			t.Errorf("%s: serial mean %v != parallel mean %v", name, s.MeanScore, p.MeanScore)
		}
		if s.MinScore > s.MeanScore || s.MaxScore < s.MeanScore {
			t.Errorf("%s: mean %v outside [%v, %v]", name, s.MeanScore, s.MinScore, s.MaxScore)
		}
	}
}

func TestRunReplicatesRejectsInvalidConfig(t *testing.T) {
	cfg := mustParse(t, `{"strategies": {"grudger": 0}}`)
	if _, err := RunReplicates(cfg, nil, 3, 2, 1, quietLogger()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
	good := mustParse(t, `{"strategies": {"grudger": 2}}`)
	if _, err := RunReplicates(good, nil, 0, 2, 1, quietLogger()); err == nil {
		t.Error("Expected an error for zero replicates")
	}
}
