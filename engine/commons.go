package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/signalnine/dilemmalab/strategy"
)

const (
	// harvestCeiling is the largest fraction of the round-start resource that
	// may be harvested in one round.
	harvestCeiling = 0.5
	// fairShareFactor discounts regrowth when computing the fair share.
	fairShareFactor = 0.8
	// collapseThreshold is the depletion ratio past which welfare is fixed.
	collapseThreshold = 0.9
	collapseWelfare   = -0.8
	// DefaultRegenerationRate replaces non-positive rates, in percent.
	DefaultRegenerationRate = 200.0
)

// HarvestAgent draws from a common-pool resource.
type HarvestAgent struct {
	Member
	Policy        strategy.Harvester
	Total         float64
	History       []float64
	Sustainable   int
	Unsustainable int
}

// NewHarvestAgent creates an agent that harvests according to policy.
func NewHarvestAgent(m Member, policy strategy.Harvester) *HarvestAgent {
	return &HarvestAgent{Member: m, Policy: policy}
}

// Commons is the tragedy-of-the-commons engine: a depletable resource with
// logistic regrowth toward its initial size.
type Commons struct {
	params   CommonsParams
	rate     float64
	resource float64
	played   int
	agents   []*HarvestAgent
	logger   *slog.Logger
	res      *Results
}

// NewCommons builds a common-pool engine. A non-positive regeneration rate is
// replaced by DefaultRegenerationRate with a warning.
func NewCommons(params CommonsParams, agents []*HarvestAgent, logger *slog.Logger) (*Commons, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := checkFinite("commons parameter", params.ResourceSize, params.RegenerationRate, params.HarvestLimit); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	if params.ResourceSize <= 0 {
		return nil, fmt.Errorf("%w: resource_size must be positive, got %v", ErrInvalidParameter, params.ResourceSize)
	}
	if params.HarvestLimit < 0 {
		return nil, fmt.Errorf("%w: harvest_limit must not be negative, got %v", ErrInvalidParameter, params.HarvestLimit)
	}

	res := newResults(TragedyCommons)
	if params.RegenerationRate <= 0 {
		msg := fmt.Sprintf("invalid regeneration rate %v%%, using default of %v%%", params.RegenerationRate, DefaultRegenerationRate)
		logger.Warn(msg)
		res.warn(msg)
		params.RegenerationRate = DefaultRegenerationRate
	}
	res.CommonsSeries = &CommonsSeries{ResourceLevels: []float64{params.ResourceSize}}
	for _, a := range agents {
		perf, ok := res.StrategyPerformance[a.Strategy]
		if !ok {
			perf = &StrategyPerformance{HarvestStats: &HarvestStats{}}
			res.StrategyPerformance[a.Strategy] = perf
		}
		perf.Agents++
	}

	logger.Debug("commons configured",
		"resource_size", params.ResourceSize,
		"regeneration_rate", params.RegenerationRate,
		"harvest_limit", params.HarvestLimit)

	return &Commons{
		params:   params,
		rate:     params.RegenerationRate / 100,
		resource: params.ResourceSize,
		agents:   agents,
		logger:   logger,
		res:      res,
	}, nil
}

// GameType returns TragedyCommons.
func (c *Commons) GameType() GameType { return TragedyCommons }

// Agents returns the population size.
func (c *Commons) Agents() int { return len(c.agents) }

// Results returns the accumulator.
func (c *Commons) Results() *Results { return c.res }

// Resource returns the current resource level.
func (c *Commons) Resource() float64 { return c.resource }

// Params returns the effective parameters, after any fallback.
func (c *Commons) Params() CommonsParams { return c.params }

// FairShare is min(limit, 0.8 * rate * resource / agents).
func (c *Commons) FairShare() float64 {
	return math.Min(c.params.HarvestLimit, fairShareFactor*c.rate*c.resource/float64(len(c.agents)))
}

// PlayRound collects every agent's proposal, scales positive proposals down to
// the 50% ceiling, applies them in agent order, then regrows the resource.
// Negative proposals restore the resource and are never scaled.
func (c *Commons) PlayRound(round int) (RoundRecord, error) {
	fair := c.FairShare()
	proposals := make([]float64, len(c.agents))
	var requested float64
	for i, a := range c.agents {
		p := a.Policy.Harvest(strategy.HarvestState{
			Available: c.resource,
			Initial:   c.params.ResourceSize,
			FairShare: fair,
			Limit:     c.params.HarvestLimit,
			Harvests:  len(a.History),
		})
		if err := checkFinite("harvest proposal from "+a.Label, p); err != nil {
			return RoundRecord{}, err
		}
		proposals[i] = p
		if p > 0 {
			requested += p
		}
	}

	ceiling := c.resource * harvestCeiling
	scale := 1.0
	if requested > ceiling {
		scale = ceiling / requested
	}

	available := c.resource
	realized := make([]float64, len(c.agents))
	var total float64
	for i, p := range proposals {
		h := p
		if h > 0 {
			h = math.Min(h*scale, available)
		}
		available -= h
		total += h
		realized[i] = h
	}

	rec := RoundRecord{
		Round:            round,
		Harvests:         make([]HarvestEvent, 0, len(c.agents)),
		StrategyHarvests: make(map[string]float64, len(c.res.StrategyPerformance)),
	}
	for name := range c.res.StrategyPerformance {
		rec.StrategyHarvests[name] = 0
	}
	for i, a := range c.agents {
		h := realized[i]
		a.History = append(a.History, h)
		a.Total += h
		if h <= fair+1e-9 {
			a.Sustainable++
		} else {
			a.Unsustainable++
		}
		c.res.StrategyPerformance[a.Strategy].TotalHarvest += h
		rec.StrategyHarvests[a.Strategy] += h
		rec.Harvests = append(rec.Harvests, HarvestEvent{
			AgentID:   a.ID,
			Strategy:  a.Strategy,
			Requested: proposals[i],
			Harvest:   h,
		})
	}

	c.resource = math.Max(0, c.resource-total)
	growth := c.rate * c.resource * (1 - c.resource/c.params.ResourceSize)
	c.resource += math.Max(0, growth)
	c.res.ResourceLevels = append(c.res.ResourceLevels, c.resource)
	c.played++

	rec.ResourceSize = ptr(c.resource)
	c.logger.Debug("commons round complete",
		"round", round,
		"fair_share", fair,
		"harvested", total,
		"resource", c.resource)
	return rec, nil
}

// FailedRound records the error with the unchanged resource level, which is
// also appended to the level series.
func (c *Commons) FailedRound(round int, err error) RoundRecord {
	c.res.ResourceLevels = append(c.res.ResourceLevels, c.resource)
	return RoundRecord{Round: round, Error: err.Error(), ResourceSize: ptr(c.resource)}
}

// Finalize scores each strategy by its average harvest against 1.5x the limit
// and the overall depletion of the resource.
func (c *Commons) Finalize() (FinalStats, error) {
	members := make([]Member, len(c.agents))
	for i, a := range c.agents {
		members[i] = a.Member
	}
	order, groups := groupByStrategy(members)

	depletion := (c.params.ResourceSize - c.resource) / c.params.ResourceSize

	out := make(map[string]StrategyOutcome, len(order))
	for _, name := range order {
		idx := groups[name]
		var total float64
		var sustainable, unsustainable int
		for _, i := range idx {
			a := c.agents[i]
			total += a.Total
			sustainable += a.Sustainable
			unsustainable += a.Unsustainable
		}
		n := float64(len(idx))
		avgScore := total / n

		var avgHarvest float64
		if c.played > 0 {
			avgHarvest = total / (n * float64(c.played))
		}

		var impact float64
		if c.params.HarvestLimit > 0 {
			impact = clampUnit(1 - avgHarvest/(1.5*c.params.HarvestLimit))
		} else if avgHarvest <= 0 {
			impact = 1
		} else {
			impact = -1
		}

		welfare := impact
		if depletion > collapseThreshold {
			welfare = collapseWelfare
		}

		perf := c.res.StrategyPerformance[name]
		perf.AvgScore = avgScore
		perf.AvgHarvest = avgHarvest
		perf.Sustainable = sustainable
		perf.Unsustainable = unsustainable

		out[name] = StrategyOutcome{
			SustainabilityImpact: impact,
			SocialWelfare:        welfare,
			Score:                avgScore,
			TotalResources:       total,
			Actions: map[string]float64{
				"sustainable":   float64(sustainable),
				"unsustainable": float64(unsustainable),
			},
		}
	}

	if err := checkOutcomes(out); err != nil {
		return FinalStats{}, err
	}
	return FinalStats{Strategies: out}, nil
}
