package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/signalnine/dilemmalab/strategy"
)

// PoolAgent receives an endowment each round and contributes part of its
// balance to the public pool. Balance holds only endowment not yet
// contributed; payouts accumulate in TotalPayoff.
type PoolAgent struct {
	Member
	Policy            strategy.PoolContributor
	Balance           float64
	TotalContribution float64
	TotalPayoff       float64
	History           []float64
}

// NewPoolAgent creates an agent that contributes according to policy.
func NewPoolAgent(m Member, policy strategy.PoolContributor) *PoolAgent {
	return &PoolAgent{Member: m, Policy: policy}
}

// PublicGoodsGame is the linear public-goods engine.
type PublicGoodsGame struct {
	params      PublicGoodsParams
	prevAverage float64
	played      int
	agents      []*PoolAgent
	order       []string
	logger      *slog.Logger
	res         *Results
}

// NewPublicGoods builds a shared-pool engine.
func NewPublicGoods(params PublicGoodsParams, agents []*PoolAgent, logger *slog.Logger) (*PublicGoodsGame, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := checkFinite("public goods parameter", params.Endowment, params.Multiplier); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	if params.Endowment < 0 || params.Multiplier < 0 {
		return nil, fmt.Errorf("%w: endowment and multiplier must not be negative", ErrInvalidParameter)
	}
	if params.Distribution == "" {
		params.Distribution = DistributeEqual
	}
	if _, err := ParseDistribution(string(params.Distribution)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	res := newResults(PublicGoods)
	res.PublicGoodsSeries = &PublicGoodsSeries{
		ContributionHistory: make(map[string][]float64),
		AverageContribution: []float64{},
	}
	members := make([]Member, len(agents))
	for i, a := range agents {
		members[i] = a.Member
		perf, ok := res.StrategyPerformance[a.Strategy]
		if !ok {
			perf = &StrategyPerformance{ContributionStats: &ContributionStats{}}
			res.StrategyPerformance[a.Strategy] = perf
			res.ContributionHistory[a.Strategy] = []float64{}
		}
		perf.Agents++
	}
	order, _ := groupByStrategy(members)

	return &PublicGoodsGame{
		params: params,
		agents: agents,
		order:  order,
		logger: logger,
		res:    res,
	}, nil
}

// GameType returns PublicGoods.
func (g *PublicGoodsGame) GameType() GameType { return PublicGoods }

// Agents returns the population size.
func (g *PublicGoodsGame) Agents() int { return len(g.agents) }

// Results returns the accumulator.
func (g *PublicGoodsGame) Results() *Results { return g.res }

// PlayRound credits the endowment, collects contributions clamped to each
// balance, and pays the multiplied pool out into TotalPayoff. Payouts are
// never contributed again, so balances grow at most linearly.
func (g *PublicGoodsGame) PlayRound(round int) (RoundRecord, error) {
	proposals := make([]float64, len(g.agents))
	for i, a := range g.agents {
		balance := a.Balance + g.params.Endowment
		p := a.Policy.ContributeToPool(strategy.PoolState{
			Endowment:     g.params.Endowment,
			Balance:       balance,
			PrevAverage:   g.prevAverage,
			Contributions: len(a.History),
		})
		if err := checkFinite("contribution from "+a.Label, p); err != nil {
			return RoundRecord{}, err
		}
		proposals[i] = math.Max(0, math.Min(p, balance))
	}

	var pool float64
	for _, c := range proposals {
		pool += c
	}
	payoffs := g.distribute(proposals, pool)

	rec := RoundRecord{
		Round:                 round,
		Contributions:         make([]ContributionEvent, 0, len(g.agents)),
		PublicPool:            ptr(pool),
		StrategyContributions: make(map[string]float64, len(g.order)),
	}
	counts := make(map[string]int, len(g.order))
	for i, a := range g.agents {
		c := proposals[i]
		a.Balance += g.params.Endowment - c
		a.TotalContribution += c
		a.TotalPayoff += payoffs[i]
		a.History = append(a.History, c)

		g.res.StrategyPerformance[a.Strategy].TotalContribution += c
		rec.StrategyContributions[a.Strategy] += c
		counts[a.Strategy]++
		rec.Contributions = append(rec.Contributions, ContributionEvent{
			AgentID:      a.ID,
			Strategy:     a.Strategy,
			Contribution: c,
			Payoff:       payoffs[i],
		})
	}

	for _, name := range g.order {
		g.res.ContributionHistory[name] = append(g.res.ContributionHistory[name], rec.StrategyContributions[name]/float64(counts[name]))
	}
	g.prevAverage = pool / float64(len(g.agents))
	g.res.AverageContribution = append(g.res.AverageContribution, g.prevAverage)
	g.played++

	g.logger.Debug("public goods round complete", "round", round, "pool", pool)
	return rec, nil
}

// distribute splits pool times multiplier equally, or in proportion to each
// contribution. An empty pool pays nothing.
func (g *PublicGoodsGame) distribute(contributions []float64, pool float64) []float64 {
	payoffs := make([]float64, len(contributions))
	if pool <= 0 {
		return payoffs
	}
	total := pool * g.params.Multiplier
	for i, c := range contributions {
		if g.params.Distribution == DistributeProportional {
			payoffs[i] = c / pool * total
		} else {
			payoffs[i] = total / float64(len(contributions))
		}
	}
	return payoffs
}

// FailedRound records the error. The contribution series are left untouched
// since no contribution took place.
func (g *PublicGoodsGame) FailedRound(round int, err error) RoundRecord {
	return RoundRecord{Round: round, Error: err.Error()}
}

// Finalize scores each strategy by its contribution ratio and by the trend
// between the first and second half of its contribution history.
func (g *PublicGoodsGame) Finalize() (FinalStats, error) {
	members := make([]Member, len(g.agents))
	for i, a := range g.agents {
		members[i] = a.Member
	}
	_, groups := groupByStrategy(members)

	out := make(map[string]StrategyOutcome, len(g.order))
	for _, name := range g.order {
		idx := groups[name]
		var contributed, payoff float64
		for _, i := range idx {
			contributed += g.agents[i].TotalContribution
			payoff += g.agents[i].TotalPayoff
		}
		n := float64(len(idx))
		avgPayoff := payoff / n

		maxPossible := n * g.params.Endowment * float64(g.played)
		var ratio float64
		if maxPossible > 0 {
			ratio = contributed / maxPossible
		}
		welfare := clampUnit(2*ratio - 1)

		var impact float64
		history := g.res.ContributionHistory[name]
		if len(history) > 2 {
			half := len(history) / 2
			var trend float64
			if g.params.Endowment > 0 {
				trend = (mean(history[half:]) - mean(history[:half])) / g.params.Endowment
			}
			impact = trend + ratio/2
		} else {
			impact = ratio - 0.5
		}
		impact = clampUnit(impact)

		perf := g.res.StrategyPerformance[name]
		perf.AvgScore = avgPayoff
		perf.AvgContribution = contributed / n
		perf.TotalReturn = payoff
		perf.NetGain = (payoff - contributed) / n

		out[name] = StrategyOutcome{
			SustainabilityImpact: impact,
			SocialWelfare:        welfare,
			Score:                avgPayoff,
			TotalResources:       payoff,
			Actions: map[string]float64{
				"contribute": contributed,
				"free_ride":  maxPossible - contributed,
			},
		}
	}

	if err := checkOutcomes(out); err != nil {
		return FinalStats{}, err
	}
	return FinalStats{Strategies: out}, nil
}
