package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/signalnine/dilemmalab/strategy"
)

// FundAgent pledges toward a threshold-funded project.
type FundAgent struct {
	Member
	Policy            strategy.Contributor
	TotalContribution float64
	TotalBenefit      float64
	History           []float64
}

// NewFundAgent creates an agent that contributes according to policy.
func NewFundAgent(m Member, policy strategy.Contributor) *FundAgent {
	return &FundAgent{Member: m, Policy: policy}
}

// Threshold is the free-rider engine: agents fund a project that pays out once,
// when cumulative funding reaches the threshold.
type Threshold struct {
	params      ThresholdParams
	target      float64
	fairShare   float64
	funding     float64
	prevAverage float64
	completed   bool
	played      int
	agents      []*FundAgent
	logger      *slog.Logger
	res         *Results
}

// NewThreshold builds a threshold-fund engine.
func NewThreshold(params ThresholdParams, agents []*FundAgent, logger *slog.Logger) (*Threshold, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgents
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := checkFinite("threshold parameter", params.ProjectCost, params.BenefitMultiplier, params.Threshold); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	if params.ProjectCost <= 0 {
		return nil, fmt.Errorf("%w: project_cost must be positive, got %v", ErrInvalidParameter, params.ProjectCost)
	}
	if params.Threshold <= 0 || params.Threshold > 100 {
		return nil, fmt.Errorf("%w: threshold must be in (0, 100], got %v", ErrInvalidParameter, params.Threshold)
	}
	if params.BenefitMultiplier < 0 {
		return nil, fmt.Errorf("%w: benefit_multiplier must not be negative, got %v", ErrInvalidParameter, params.BenefitMultiplier)
	}

	res := newResults(FreeRider)
	res.ThresholdSeries = &ThresholdSeries{
		FundingProgress: []float64{0},
		Threshold:       params.Threshold,
	}
	for _, a := range agents {
		perf, ok := res.StrategyPerformance[a.Strategy]
		if !ok {
			perf = &StrategyPerformance{ContributionStats: &ContributionStats{}}
			res.StrategyPerformance[a.Strategy] = perf
		}
		perf.Agents++
	}

	return &Threshold{
		params:    params,
		target:    params.Threshold / 100 * params.ProjectCost,
		fairShare: params.ProjectCost / float64(len(agents)),
		agents:    agents,
		logger:    logger,
		res:       res,
	}, nil
}

// GameType returns FreeRider.
func (t *Threshold) GameType() GameType { return FreeRider }

// Agents returns the population size.
func (t *Threshold) Agents() int { return len(t.agents) }

// Results returns the accumulator.
func (t *Threshold) Results() *Results { return t.res }

// Funding returns the cumulative funding.
func (t *Threshold) Funding() float64 { return t.funding }

// Completed reports whether the project has been funded.
func (t *Threshold) Completed() bool { return t.completed }

// Target returns the funding amount that completes the project.
func (t *Threshold) Target() float64 { return t.target }

func (t *Threshold) progress() float64 {
	return t.funding / t.params.ProjectCost * 100
}

// PlayRound collects pledges and applies them in agent order, capping each so
// the fund never passes the target. Reaching the target completes the project
// and pays out cost times multiplier, split equally.
func (t *Threshold) PlayRound(round int) (RoundRecord, error) {
	rec := RoundRecord{
		Round:                 round,
		Contributions:         make([]ContributionEvent, 0, len(t.agents)),
		StrategyContributions: make(map[string]float64, len(t.res.StrategyPerformance)),
	}
	for name := range t.res.StrategyPerformance {
		rec.StrategyContributions[name] = 0
	}

	if t.completed {
		for _, a := range t.agents {
			a.History = append(a.History, 0)
			rec.Contributions = append(rec.Contributions, ContributionEvent{AgentID: a.ID, Strategy: a.Strategy})
		}
		t.res.FundingProgress = append(t.res.FundingProgress, 100)
		t.played++
		rec.Funding = ptr(t.funding)
		rec.FundingProgress = ptr(100)
		rec.ProjectCompleted = true
		return rec, nil
	}

	proposals := make([]float64, len(t.agents))
	for i, a := range t.agents {
		p := a.Policy.Contribute(strategy.FundState{
			Funding:     t.funding,
			Cost:        t.params.ProjectCost,
			Threshold:   t.target,
			FairShare:   t.fairShare,
			PrevAverage: t.prevAverage,
			Pledges:     len(a.History),
		})
		if err := checkFinite("contribution from "+a.Label, p); err != nil {
			return RoundRecord{}, err
		}
		proposals[i] = math.Max(0, p)
	}

	funding := t.funding
	var roundTotal float64
	for i, a := range t.agents {
		remaining := math.Max(0, t.target-funding)
		c := math.Min(proposals[i], remaining)
		if c >= remaining {
			funding = t.target
		} else {
			funding += c
		}
		roundTotal += c

		a.History = append(a.History, c)
		a.TotalContribution += c
		t.res.StrategyPerformance[a.Strategy].TotalContribution += c
		rec.StrategyContributions[a.Strategy] += c
		rec.Contributions = append(rec.Contributions, ContributionEvent{
			AgentID:      a.ID,
			Strategy:     a.Strategy,
			Contribution: c,
		})
	}
	t.funding = funding
	t.prevAverage = roundTotal / float64(len(t.agents))
	t.played++

	pct := t.progress()
	if t.funding >= t.target {
		t.completed = true
		t.res.ProjectCompleted = true
		t.res.CompletedRound = round
		benefit := t.params.ProjectCost * t.params.BenefitMultiplier / float64(len(t.agents))
		for _, a := range t.agents {
			a.TotalBenefit += benefit
		}
		rec.ProjectCompleted = true
		rec.BenefitPerAgent = benefit
		t.logger.Info("project funded", "round", round, "funding", t.funding, "benefit_per_agent", benefit)
	}
	t.res.FundingProgress = append(t.res.FundingProgress, pct)

	rec.Funding = ptr(t.funding)
	rec.FundingProgress = ptr(pct)
	return rec, nil
}

// FailedRound records the error with the current funding and repeats the last
// progress value.
func (t *Threshold) FailedRound(round int, err error) RoundRecord {
	pct := t.progress()
	if t.completed {
		pct = 100
	}
	t.res.FundingProgress = append(t.res.FundingProgress, pct)
	return RoundRecord{
		Round:            round,
		Error:            err.Error(),
		Funding:          ptr(t.funding),
		FundingProgress:  ptr(pct),
		ProjectCompleted: t.completed,
	}
}

// Finalize scores each strategy by its contribution against an equal share of
// the project cost.
func (t *Threshold) Finalize() (FinalStats, error) {
	members := make([]Member, len(t.agents))
	for i, a := range t.agents {
		members[i] = a.Member
	}
	order, groups := groupByStrategy(members)

	out := make(map[string]StrategyOutcome, len(order))
	for _, name := range order {
		idx := groups[name]
		var contributed, benefit float64
		for _, i := range idx {
			contributed += t.agents[i].TotalContribution
			benefit += t.agents[i].TotalBenefit
		}
		n := float64(len(idx))
		avgGain := (benefit - contributed) / n

		ratio := contributed / (n * t.fairShare)
		welfare := clampUnit(2*ratio - 1)
		impact := ratio - 1
		if t.completed {
			impact = ratio
		}
		impact = clampUnit(impact)

		perf := t.res.StrategyPerformance[name]
		perf.AvgScore = avgGain
		perf.AvgContribution = contributed / n
		perf.TotalReturn = benefit
		perf.NetGain = avgGain

		out[name] = StrategyOutcome{
			SustainabilityImpact: impact,
			SocialWelfare:        welfare,
			Score:                avgGain,
			TotalResources:       benefit,
			Actions: map[string]float64{
				"contribute": contributed,
				"free_ride":  benefit - contributed,
			},
		}
	}

	if err := checkOutcomes(out); err != nil {
		return FinalStats{}, err
	}
	return FinalStats{Strategies: out}, nil
}
