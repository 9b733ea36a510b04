package simulation

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"go.uber.org/multierr"

	"github.com/signalnine/dilemmalab/config"
	"github.com/signalnine/dilemmalab/engine"
	"github.com/signalnine/dilemmalab/strategy"
)

// DefaultRounds is used when a configuration omits rounds or gives an invalid value.
const DefaultRounds = 100

// MaxAgents bounds the population of any simulation. Pairwise games play
// n(n-1)/2 interactions per round.
const MaxAgents = 100000

// Option customizes New.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	seed      int64
	seedSet   bool
	rounds    int
	maxAgents int
}

// WithLogger sets the logger handed to the engine and orchestrator.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSeed fixes the random seed, overriding any seed in the configuration.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
		o.seedSet = true
	}
}

// WithRounds overrides the configured round count. Non-positive values are ignored.
func WithRounds(n int) Option {
	return func(o *options) { o.rounds = n }
}

// WithMaxAgents lowers the population limit below MaxAgents. Non-positive
// values are ignored.
func WithMaxAgents(n int) Option {
	return func(o *options) {
		if n > 0 && n < MaxAgents {
			o.maxAgents = n
		}
	}
}

// plan is a fully validated configuration, ready to build an engine from.
type plan struct {
	game     engine.GameType
	rounds   int
	seed     int64
	seedSet  bool
	members  []engine.Member
	specs    []strategy.Spec
	payoffs  engine.Payoffs
	commons  engine.CommonsParams
	fund     engine.ThresholdParams
	pool     engine.PublicGoodsParams
	warnings []string
}

// validator accumulates ConfigErrors. Unless collect is set it stops at the
// first one.
type validator struct {
	collect bool
	err     error
}

func (v *validator) fail(field, msg string, cause error) {
	v.err = multierr.Append(v.err, &ConfigError{Field: field, Message: msg, Cause: cause})
}

func (v *validator) stopped() bool {
	return v.err != nil && !v.collect
}

// New validates cfg and builds the matching engine and agent population.
// Validation runs in a fixed order: non-empty document, strategies present,
// counts, total agents, game type, strategy names, numeric parameters. The
// first failure is returned as a *ConfigError and no engine is built.
func New(cfg *config.Config, reg *strategy.Registry, opts ...Option) (*Simulation, error) {
	o := options{maxAgents: MaxAgents}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if reg == nil {
		reg = strategy.NewRegistry()
	}

	v := &validator{}
	p := check(cfg, reg, v, o.maxAgents)
	if v.err != nil {
		o.logger.Error("invalid simulation configuration", "error", v.err)
		return nil, v.err
	}

	if o.rounds > 0 {
		p.rounds = o.rounds
	}
	if o.seedSet {
		p.seed, p.seedSet = o.seed, true
	}
	if !p.seedSet {
		p.seed = time.Now().UnixNano()
	}
	for _, w := range p.warnings {
		o.logger.Warn(w)
	}

	eng, err := build(p, o.logger)
	if err != nil {
		return nil, &ConfigError{Field: "parameters", Message: err.Error(), Cause: ErrInvalidParameter}
	}

	o.logger.Info("simulation created",
		"game_type", p.game,
		"agents", len(p.members),
		"rounds", p.rounds,
		"seed", p.seed)

	return &Simulation{
		engine:   eng,
		rounds:   p.rounds,
		seed:     p.seed,
		warnings: p.warnings,
		logger:   o.logger,
	}, nil
}

// Validate runs every check New performs and reports all problems at once.
// Parameter values an engine would reject, such as a non-positive resource
// size, are also reported.
func Validate(cfg *config.Config, reg *strategy.Registry) error {
	if reg == nil {
		reg = strategy.NewRegistry()
	}
	v := &validator{collect: true}
	p := check(cfg, reg, v, MaxAgents)
	if v.err != nil {
		return v.err
	}
	p.seed = 1
	if _, err := build(p, slog.New(slog.DiscardHandler)); err != nil {
		return &ConfigError{Field: "parameters", Message: err.Error(), Cause: ErrInvalidParameter}
	}
	return nil
}

func check(cfg *config.Config, reg *strategy.Registry, v *validator, maxAgents int) *plan {
	p := &plan{rounds: DefaultRounds}

	if cfg.IsEmpty() {
		v.fail("", "configuration is empty", ErrEmptyConfig)
		return p
	}

	if len(cfg.Strategies) == 0 {
		v.fail("strategies", "no strategies specified", ErrNoStrategies)
		if v.stopped() {
			return p
		}
	}

	counts := make([]int, len(cfg.Strategies))
	total := 0
	countsOK := true
	for i, e := range cfg.Strategies {
		n, err := e.Count.Int()
		switch {
		case err != nil:
			v.fail("strategies."+e.Name, fmt.Sprintf("agent count %s must be an integer", e.Count), ErrInvalidParameter)
			countsOK = false
		case n < 0:
			v.fail("strategies."+e.Name, fmt.Sprintf("agent count %d must be >= 0", n), ErrInvalidParameter)
			countsOK = false
		default:
			counts[i] = n
			total += n
		}
		if v.stopped() {
			return p
		}
	}
	if countsOK && len(cfg.Strategies) > 0 && total <= 0 {
		v.fail("strategies", fmt.Sprintf("total agent count is %d", total), ErrNoAgents)
		if v.stopped() {
			return p
		}
	}
	// Stop even when collecting: the population is never built past the limit.
	if total > maxAgents {
		v.fail("strategies", fmt.Sprintf("total agent count %d exceeds the limit of %d", total, maxAgents), ErrInvalidParameter)
		return p
	}

	name := cfg.TypeName()
	if name == "" {
		p.game = engine.PrisonersDilemma
	} else if g, ok := engine.ParseGameType(name); ok {
		p.game = g
	} else {
		v.fail("game_type", fmt.Sprintf("unknown game type %q", name), ErrUnknownType)
		return p
	}

	family := p.game.Family()
	seen := make(map[string]int)
	for i, e := range cfg.Strategies {
		spec, err := reg.Lookup(family, e.Name)
		if err != nil {
			v.fail("strategies."+e.Name, fmt.Sprintf("unknown %s strategy %q", family, e.Name), ErrUnknownStrategy)
			if v.stopped() {
				return p
			}
			continue
		}
		for k := 0; k < counts[i]; k++ {
			seen[spec.Name]++
			p.members = append(p.members, engine.Member{
				ID:       len(p.members) + 1,
				Label:    fmt.Sprintf("%s_%d", spec.Name, seen[spec.Name]),
				Strategy: spec.Name,
			})
			p.specs = append(p.specs, spec)
		}
	}

	if cfg.Rounds.IsSet() {
		n, err := cfg.Rounds.Int()
		if err != nil || n <= 0 {
			p.warnings = append(p.warnings, fmt.Sprintf("invalid rounds value %s, using default %d", cfg.Rounds, DefaultRounds))
		} else {
			p.rounds = n
		}
	}

	if cfg.Seed.IsSet() {
		f, err := cfg.Seed.Float()
		if err != nil || f != math.Trunc(f) {
			v.fail("seed", fmt.Sprintf("seed %s must be an integer", cfg.Seed), ErrInvalidParameter)
			if v.stopped() {
				return p
			}
		} else {
			p.seed, p.seedSet = int64(f), true
		}
	}

	checkParameters(cfg, p, v)
	return p
}

func checkParameters(cfg *config.Config, p *plan, v *validator) {
	number := func(field string, s config.Scalar, ok bool, def float64) float64 {
		if !ok {
			return def
		}
		f, err := s.Float()
		if err != nil {
			v.fail(field, fmt.Sprintf("value %s must be a number", s), ErrInvalidParameter)
			return def
		}
		return f
	}
	param := func(key string, def float64) float64 {
		s, ok := cfg.Param(key)
		return number("parameters."+key, s, ok, def)
	}

	switch p.game {
	case engine.PrisonersDilemma, engine.GameOfChicken:
		p.payoffs = engine.DefaultPayoffs(p.game)
		for _, k := range []struct {
			key string
			dst *float64
		}{{"T", &p.payoffs.T}, {"R", &p.payoffs.R}, {"P", &p.payoffs.P}, {"S", &p.payoffs.S}} {
			s, ok := cfg.Payoffs[k.key]
			*k.dst = number("payoffs."+k.key, s, ok && s.IsSet(), *k.dst)
		}

	case engine.TragedyCommons:
		d := engine.DefaultCommonsParams()
		p.commons = engine.CommonsParams{
			ResourceSize:     param(config.ParamResourceSize, d.ResourceSize),
			RegenerationRate: param(config.ParamRegenerationRate, d.RegenerationRate),
			HarvestLimit:     param(config.ParamHarvestLimit, d.HarvestLimit),
		}

	case engine.FreeRider:
		d := engine.DefaultThresholdParams()
		p.fund = engine.ThresholdParams{
			ProjectCost:       param(config.ParamProjectCost, d.ProjectCost),
			BenefitMultiplier: param(config.ParamBenefitMultiplier, d.BenefitMultiplier),
			Threshold:         param(config.ParamThreshold, d.Threshold),
		}

	case engine.PublicGoods:
		d := engine.DefaultPublicGoodsParams()
		p.pool = engine.PublicGoodsParams{
			Endowment:    param(config.ParamEndowment, d.Endowment),
			Multiplier:   param(config.ParamMultiplier, d.Multiplier),
			Distribution: d.Distribution,
		}
		if s, ok := cfg.Param(config.ParamDistribution); ok {
			text, _ := s.Text()
			dist, err := engine.ParseDistribution(text)
			if err != nil {
				v.fail("parameters."+config.ParamDistribution, err.Error(), ErrInvalidParameter)
			} else {
				p.pool.Distribution = dist
			}
		}
	}
}

// build constructs the engine for a validated plan.
func build(p *plan, logger *slog.Logger) (engine.Engine, error) {
	if len(p.members) == 0 {
		return nil, engine.ErrNoAgents
	}
	rng := rand.New(rand.NewSource(p.seed))

	switch p.game.Family() {
	case strategy.FamilyPairwise:
		agents := make([]*engine.PairwiseAgent, len(p.members))
		for i, m := range p.members {
			agents[i] = engine.NewPairwiseAgent(m, p.specs[i].Rule)
		}
		return engine.NewPairwise(p.game, p.payoffs, agents, rng, logger)

	case strategy.FamilyHarvest:
		agents := make([]*engine.HarvestAgent, len(p.members))
		for i, m := range p.members {
			agents[i] = engine.NewHarvestAgent(m, p.specs[i].NewHarvester(rng))
		}
		return engine.NewCommons(p.commons, agents, logger)

	case strategy.FamilyFund:
		agents := make([]*engine.FundAgent, len(p.members))
		for i, m := range p.members {
			agents[i] = engine.NewFundAgent(m, p.specs[i].NewContributor(rng))
		}
		return engine.NewThreshold(p.fund, agents, logger)

	case strategy.FamilyPool:
		agents := make([]*engine.PoolAgent, len(p.members))
		for i, m := range p.members {
			agents[i] = engine.NewPoolAgent(m, p.specs[i].NewPoolMember(rng))
		}
		return engine.NewPublicGoods(p.pool, agents, logger)
	}
	return nil, errors.New("no engine for game type " + string(p.game))
}
