// Package engine implements the round-by-round state machines for each
// social-dilemma family and the result structures they fill in.
package engine

import (
	"fmt"
	"strings"

	"github.com/signalnine/dilemmalab/strategy"
)

// GameType selects the dilemma an engine plays
type GameType string

const (
	PrisonersDilemma GameType = "prisoners_dilemma"
	GameOfChicken    GameType = "game_of_chicken"
	TragedyCommons   GameType = "tragedy_commons"
	FreeRider        GameType = "free_rider"
	PublicGoods      GameType = "public_goods"
)

// GameTypes lists every supported game type.
var GameTypes = []GameType{PrisonersDilemma, GameOfChicken, TragedyCommons, FreeRider, PublicGoods}

var gameTypeAliases = map[string]GameType{
	"prisoners_dilemma":      PrisonersDilemma,
	"prisoner_dilemma":       PrisonersDilemma,
	"game_of_chicken":        GameOfChicken,
	"chicken":                GameOfChicken,
	"tragedy_commons":        TragedyCommons,
	"tragedy_of_the_commons": TragedyCommons,
	"commons":                TragedyCommons,
	"free_rider":             FreeRider,
	"free_rider_problem":     FreeRider,
	"public_goods":           PublicGoods,
	"public_goods_game":      PublicGoods,
}

// ParseGameType resolves a configured type name, ignoring case and separators.
func ParseGameType(s string) (GameType, bool) {
	g, ok := gameTypeAliases[strategy.Normalize(s)]
	return g, ok
}

// Family returns the strategy family agents of this game draw from.
func (g GameType) Family() strategy.Family {
	switch g {
	case TragedyCommons:
		return strategy.FamilyHarvest
	case FreeRider:
		return strategy.FamilyFund
	case PublicGoods:
		return strategy.FamilyPool
	default:
		return strategy.FamilyPairwise
	}
}

// Pairwise reports whether the game is a 2x2 matrix game.
func (g GameType) Pairwise() bool {
	return g == PrisonersDilemma || g == GameOfChicken
}

// Payoffs is a 2x2 symmetric payoff matrix.
type Payoffs struct {
	T float64 `json:"T" yaml:"T"` // temptation
	R float64 `json:"R" yaml:"R"` // reward
	P float64 `json:"P" yaml:"P"` // punishment
	S float64 `json:"S" yaml:"S"` // sucker
}

// DefaultPayoffs returns the standard matrix for a pairwise game.
func DefaultPayoffs(g GameType) Payoffs {
	if g == GameOfChicken {
		// swerve = C, straight = D; a crash is the worst outcome
		return Payoffs{T: 5, R: 3, P: 0, S: 1}
	}
	return Payoffs{T: 5, R: 3, P: 1, S: 0}
}

// Score returns the payoffs for the two players given their moves.
func (p Payoffs) Score(m1, m2 strategy.Move) (float64, float64) {
	switch {
	case m1 == strategy.Cooperate && m2 == strategy.Cooperate:
		return p.R, p.R
	case m1 == strategy.Cooperate && m2 == strategy.Defect:
		return p.S, p.T
	case m1 == strategy.Defect && m2 == strategy.Cooperate:
		return p.T, p.S
	default:
		return p.P, p.P
	}
}

// CommonsParams configures the common-pool engine.
type CommonsParams struct {
	ResourceSize     float64 `json:"resource_size"`
	RegenerationRate float64 `json:"regeneration_rate"` // percent
	HarvestLimit     float64 `json:"harvest_limit"`
}

// DefaultCommonsParams returns the standard common-pool parameters.
func DefaultCommonsParams() CommonsParams {
	return CommonsParams{ResourceSize: 1000, RegenerationRate: 200, HarvestLimit: 30}
}

// ThresholdParams configures the threshold-fund engine.
type ThresholdParams struct {
	ProjectCost       float64 `json:"project_cost"`
	BenefitMultiplier float64 `json:"benefit_multiplier"`
	Threshold         float64 `json:"threshold"` // percent of cost
}

// DefaultThresholdParams returns the standard threshold-fund parameters.
func DefaultThresholdParams() ThresholdParams {
	return ThresholdParams{ProjectCost: 1000, BenefitMultiplier: 2, Threshold: 75}
}

// Distribution selects how a public pool is paid out.
type Distribution string

const (
	DistributeEqual        Distribution = "equal"
	DistributeProportional Distribution = "proportional"
)

// ParseDistribution validates a distribution mode name.
func ParseDistribution(s string) (Distribution, error) {
	switch Distribution(strings.ToLower(strings.TrimSpace(s))) {
	case DistributeEqual:
		return DistributeEqual, nil
	case DistributeProportional:
		return DistributeProportional, nil
	}
	return "", fmt.Errorf("distribution must be %q or %q, got %q", DistributeEqual, DistributeProportional, s)
}

// PublicGoodsParams configures the shared-pool engine.
type PublicGoodsParams struct {
	Endowment    float64      `json:"endowment"`
	Multiplier   float64      `json:"multiplier"`
	Distribution Distribution `json:"distribution"`
}

// DefaultPublicGoodsParams returns the standard public-goods parameters.
func DefaultPublicGoodsParams() PublicGoodsParams {
	return PublicGoodsParams{Endowment: 50, Multiplier: 2, Distribution: DistributeEqual}
}

// Member is the identity every agent carries.
type Member struct {
	ID       int    `json:"id"`
	Label    string `json:"label"`
	Strategy string `json:"strategy"`
}

// Interaction is one pairwise game between two agents.
type Interaction struct {
	Agent1 string        `json:"agent1"`
	Agent2 string        `json:"agent2"`
	Move1  strategy.Move `json:"move1"`
	Move2  strategy.Move `json:"move2"`
	Score1 float64       `json:"score1"`
	Score2 float64       `json:"score2"`
}

// HarvestEvent is one agent's realized harvest in a round.
type HarvestEvent struct {
	AgentID   int     `json:"agent_id"`
	Strategy  string  `json:"strategy"`
	Requested float64 `json:"requested"`
	Harvest   float64 `json:"harvest"`
}

// ContributionEvent is one agent's contribution (and payoff, if any) in a round.
type ContributionEvent struct {
	AgentID      int     `json:"agent_id"`
	Strategy     string  `json:"strategy"`
	Contribution float64 `json:"contribution"`
	Payoff       float64 `json:"payoff,omitempty"`
}

// RoundRecord is the append-only record of one round. Which event list and
// snapshot fields are set depends on the game.
type RoundRecord struct {
	Round int    `json:"round"`
	Error string `json:"error,omitempty"`

	Interactions  []Interaction       `json:"interactions,omitempty"`
	Harvests      []HarvestEvent      `json:"harvests,omitempty"`
	Contributions []ContributionEvent `json:"contributions,omitempty"`

	ResourceSize     *float64           `json:"resource_size,omitempty"`
	StrategyHarvests map[string]float64 `json:"strategy_harvests,omitempty"`

	Funding          *float64 `json:"funding,omitempty"`
	FundingProgress  *float64 `json:"funding_progress,omitempty"`
	ProjectCompleted bool     `json:"project_completed,omitempty"`
	BenefitPerAgent  float64  `json:"benefit_per_agent,omitempty"`

	PublicPool            *float64           `json:"public_pool,omitempty"`
	StrategyContributions map[string]float64 `json:"strategy_contributions,omitempty"`
}

// CooperationStats are the pairwise counters for one strategy.
type CooperationStats struct {
	Cooperations    int     `json:"total_cooperation"`
	Defections      int     `json:"total_defection"`
	CooperationRate float64 `json:"cooperation_rate"`
}

// HarvestStats are the common-pool totals for one strategy.
type HarvestStats struct {
	TotalHarvest  float64 `json:"total_harvest"`
	AvgHarvest    float64 `json:"avg_harvest"`
	Sustainable   int     `json:"sustainable_actions"`
	Unsustainable int     `json:"unsustainable_actions"`
}

// ContributionStats are the fund and pool totals for one strategy.
type ContributionStats struct {
	TotalContribution float64 `json:"total_contribution"`
	AvgContribution   float64 `json:"avg_contribution"`
	TotalReturn       float64 `json:"total_return"`
	NetGain           float64 `json:"net_gain"`
}

// StrategyPerformance accumulates per-strategy totals during a run. Exactly
// one of the embedded stat blocks is set, by game family.
type StrategyPerformance struct {
	Agents   int     `json:"agents"`
	AvgScore float64 `json:"avg_score"`
	*CooperationStats
	*HarvestStats
	*ContributionStats
}

// StrategyOutcome is the normalized end-of-run summary for one strategy.
type StrategyOutcome struct {
	SustainabilityImpact float64            `json:"sustainability_impact"`
	SocialWelfare        float64            `json:"social_welfare"`
	Score                float64            `json:"score"`
	TotalResources       float64            `json:"total_resources"`
	Actions              map[string]float64 `json:"actions"`
}

// FinalStats holds the per-strategy outcomes, or the error that prevented
// computing them.
type FinalStats struct {
	Strategies map[string]StrategyOutcome `json:"strategies,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

// PairwiseSeries is the time series kept by matrix games.
type PairwiseSeries struct {
	Scores             map[string][]float64 `json:"scores"`
	OverallCooperation int                  `json:"overall_cooperation"`
	OverallDefection   int                  `json:"overall_defection"`
	MutualDefections   int                  `json:"mutual_defections"`
}

// CommonsSeries is the time series kept by the common-pool engine.
type CommonsSeries struct {
	ResourceLevels []float64 `json:"resource_levels"`
}

// ThresholdSeries is the time series kept by the threshold-fund engine.
type ThresholdSeries struct {
	FundingProgress  []float64 `json:"funding_progress"`
	Threshold        float64   `json:"threshold"`
	ProjectCompleted bool      `json:"project_completed"`
	CompletedRound   int       `json:"completed_round,omitempty"`
}

// PublicGoodsSeries is the time series kept by the shared-pool engine.
type PublicGoodsSeries struct {
	ContributionHistory map[string][]float64 `json:"contribution_history"`
	AverageContribution []float64            `json:"average_contribution"`
}

// Results is everything a run produces.
type Results struct {
	GameType            GameType                        `json:"game_type,omitempty"`
	Rounds              []RoundRecord                   `json:"rounds"`
	StrategyPerformance map[string]*StrategyPerformance `json:"strategy_performance"`
	FinalStats          FinalStats                      `json:"final_stats"`
	Error               string                          `json:"error,omitempty"`

	*PairwiseSeries
	*CommonsSeries
	*ThresholdSeries
	*PublicGoodsSeries

	Metadata *Metadata `json:"metadata,omitempty"`
}

// Metadata describes how a run was configured.
type Metadata struct {
	Agents   int      `json:"agents"`
	Rounds   int      `json:"rounds"`
	Seed     int64    `json:"seed"`
	Warnings []string `json:"warnings,omitempty"`
}

// EmptyResults is the minimal structure returned when a run could not start.
func EmptyResults(err error) *Results {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &Results{
		Rounds:              []RoundRecord{},
		StrategyPerformance: map[string]*StrategyPerformance{},
		FinalStats:          FinalStats{Error: msg},
		Error:               msg,
	}
}

func newResults(g GameType) *Results {
	return &Results{
		GameType:            g,
		Rounds:              []RoundRecord{},
		StrategyPerformance: map[string]*StrategyPerformance{},
	}
}

// Engine plays one dilemma round by round. Implementations own their agents
// and are not safe for concurrent use.
type Engine interface {
	GameType() GameType
	Agents() int
	// PlayRound executes one round. On error, no agent or pool state has
	// been changed.
	PlayRound(round int) (RoundRecord, error)
	// FailedRound builds the degraded record for a round that failed and keeps
	// any time series aligned with the round count.
	FailedRound(round int, err error) RoundRecord
	// Finalize computes per-strategy performance and outcomes.
	Finalize() (FinalStats, error)
	// Results returns the accumulator the engine fills in.
	Results() *Results
}

func ptr(v float64) *float64 { return &v }
