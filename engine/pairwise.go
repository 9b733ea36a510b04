package engine

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/signalnine/dilemmalab/strategy"
)

// PairwiseAgent plays a matrix game against every other agent.
type PairwiseAgent struct {
	Member
	Rule         strategy.Rule
	Score        float64
	Cooperations int
	Defections   int

	// history with each opponent, keyed by opponent ID
	history map[int]strategy.History
}

// NewPairwiseAgent creates an agent with empty histories.
func NewPairwiseAgent(m Member, rule strategy.Rule) *PairwiseAgent {
	return &PairwiseAgent{Member: m, Rule: rule, history: make(map[int]strategy.History)}
}

// HistoryWith returns the exchanges this agent has had with one opponent.
func (a *PairwiseAgent) HistoryWith(opponentID int) strategy.History {
	return a.history[opponentID]
}

func (a *PairwiseAgent) record(opponentID int, own, opp strategy.Move, score float64) {
	a.history[opponentID] = append(a.history[opponentID], strategy.Exchange{Own: own, Opponent: opp})
	a.Score += score
	if own == strategy.Cooperate {
		a.Cooperations++
	} else {
		a.Defections++
	}
}

// Pairwise runs round-robin matrix games: every unordered pair of agents plays
// once per round.
type Pairwise struct {
	game    GameType
	payoffs Payoffs
	agents  []*PairwiseAgent
	rng     *rand.Rand
	logger  *slog.Logger
	res     *Results
}

// NewPairwise builds a pairwise engine. rng drives randomized rules.
func NewPairwise(game GameType, payoffs Payoffs, agents []*PairwiseAgent, rng *rand.Rand, logger *slog.Logger) (*Pairwise, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}
	if !game.Pairwise() {
		return nil, fmt.Errorf("%w: %s is not a pairwise game", ErrInvalidParameter, game)
	}
	if err := checkFinite("payoff", payoffs.T, payoffs.R, payoffs.P, payoffs.S); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	res := newResults(game)
	res.PairwiseSeries = &PairwiseSeries{Scores: make(map[string][]float64, len(agents))}
	for _, a := range agents {
		res.Scores[a.Label] = []float64{}
		perf, ok := res.StrategyPerformance[a.Strategy]
		if !ok {
			perf = &StrategyPerformance{CooperationStats: &CooperationStats{}}
			res.StrategyPerformance[a.Strategy] = perf
		}
		perf.Agents++
	}

	return &Pairwise{
		game:    game,
		payoffs: payoffs,
		agents:  agents,
		rng:     rng,
		logger:  logger,
		res:     res,
	}, nil
}

// GameType returns the matrix game being played.
func (p *Pairwise) GameType() GameType { return p.game }

// Agents returns the population size.
func (p *Pairwise) Agents() int { return len(p.agents) }

// Results returns the accumulator.
func (p *Pairwise) Results() *Results { return p.res }

// Payoffs returns the matrix in use.
func (p *Pairwise) Payoffs() Payoffs { return p.payoffs }

type pairMoves struct {
	i, j   int
	m1, m2 strategy.Move
}

// PlayRound has every pair choose moves from round-start histories, then scores
// and records all interactions.
func (p *Pairwise) PlayRound(round int) (RoundRecord, error) {
	n := len(p.agents)
	moves := make([]pairMoves, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := p.agents[i], p.agents[j]
			m1 := a.Rule(a.history[b.ID], p.rng)
			m2 := b.Rule(b.history[a.ID], p.rng)
			if m1 > strategy.Defect {
				return RoundRecord{}, fmt.Errorf("%s vs %s: %w %d", a.Label, b.Label, ErrInvalidMove, m1)
			}
			if m2 > strategy.Defect {
				return RoundRecord{}, fmt.Errorf("%s vs %s: %w %d", b.Label, a.Label, ErrInvalidMove, m2)
			}
			moves = append(moves, pairMoves{i: i, j: j, m1: m1, m2: m2})
		}
	}

	rec := RoundRecord{Round: round, Interactions: make([]Interaction, 0, len(moves))}
	for _, pm := range moves {
		a, b := p.agents[pm.i], p.agents[pm.j]
		s1, s2 := p.payoffs.Score(pm.m1, pm.m2)

		a.record(b.ID, pm.m1, pm.m2, s1)
		b.record(a.ID, pm.m2, pm.m1, s2)
		p.tally(a.Strategy, pm.m1)
		p.tally(b.Strategy, pm.m2)
		if pm.m1 == strategy.Defect && pm.m2 == strategy.Defect {
			p.res.MutualDefections++
		}

		rec.Interactions = append(rec.Interactions, Interaction{
			Agent1: a.Label,
			Agent2: b.Label,
			Move1:  pm.m1,
			Move2:  pm.m2,
			Score1: s1,
			Score2: s2,
		})
	}

	p.appendScores()
	p.logger.Debug("pairwise round complete", "round", round, "interactions", len(rec.Interactions))
	return rec, nil
}

func (p *Pairwise) tally(strategyName string, m strategy.Move) {
	stats := p.res.StrategyPerformance[strategyName].CooperationStats
	if m == strategy.Cooperate {
		stats.Cooperations++
		p.res.OverallCooperation++
	} else {
		stats.Defections++
		p.res.OverallDefection++
	}
}

func (p *Pairwise) appendScores() {
	for _, a := range p.agents {
		p.res.Scores[a.Label] = append(p.res.Scores[a.Label], a.Score)
	}
}

// FailedRound records the error and repeats each agent's current score so the
// score series stay one entry per round.
func (p *Pairwise) FailedRound(round int, err error) RoundRecord {
	p.appendScores()
	return RoundRecord{Round: round, Error: err.Error()}
}

// Finalize computes mean scores and cooperation rates per strategy.
func (p *Pairwise) Finalize() (FinalStats, error) {
	members := make([]Member, len(p.agents))
	for i, a := range p.agents {
		members[i] = a.Member
	}
	order, groups := groupByStrategy(members)

	out := make(map[string]StrategyOutcome, len(order))
	for _, name := range order {
		idx := groups[name]
		var total float64
		for _, i := range idx {
			total += p.agents[i].Score
		}
		avg := total / float64(len(idx))

		perf := p.res.StrategyPerformance[name]
		stats := perf.CooperationStats
		moves := stats.Cooperations + stats.Defections
		perf.AvgScore = avg
		stats.CooperationRate = 0
		if moves > 0 {
			stats.CooperationRate = float64(stats.Cooperations) / float64(moves)
		}

		var sustainability, welfare float64
		if moves > 0 {
			sustainability = clampUnit(2*stats.CooperationRate - 1)
			if span := p.payoffs.T - p.payoffs.S; span != 0 {
				perMove := total / float64(moves)
				welfare = clampUnit(2*(perMove-p.payoffs.S)/span - 1)
			}
		}

		out[name] = StrategyOutcome{
			SustainabilityImpact: sustainability,
			SocialWelfare:        welfare,
			Score:                avg,
			TotalResources:       total,
			Actions: map[string]float64{
				"cooperate": float64(stats.Cooperations),
				"defect":    float64(stats.Defections),
			},
		}
	}

	if err := checkOutcomes(out); err != nil {
		return FinalStats{}, err
	}
	return FinalStats{Strategies: out}, nil
}
