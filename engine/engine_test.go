package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"testing"

	"github.com/signalnine/dilemmalab/strategy"
)

var (
	testRegistry = strategy.NewRegistry(strategy.WithExtensions())
	quietLogger  = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func lookup(t *testing.T, family strategy.Family, name string) strategy.Spec {
	t.Helper()
	spec, err := testRegistry.Lookup(family, name)
	if err != nil {
		t.Fatalf("Lookup(%s, %s): %v", family, name, err)
	}
	return spec
}

func members(names ...string) []Member {
	out := make([]Member, len(names))
	seen := map[string]int{}
	for i, n := range names {
		seen[n]++
		out[i] = Member{ID: i, Label: fmt.Sprintf("%s_%d", n, seen[n]), Strategy: n}
	}
	return out
}

func newPairwise(t *testing.T, game GameType, payoffs Payoffs, names ...string) *Pairwise {
	t.Helper()
	var agents []*PairwiseAgent
	for _, m := range members(names...) {
		agents = append(agents, NewPairwiseAgent(m, lookup(t, strategy.FamilyPairwise, m.Strategy).Rule))
	}
	p, err := NewPairwise(game, payoffs, agents, rand.New(rand.NewSource(1)), quietLogger)
	if err != nil {
		t.Fatalf("NewPairwise: %v", err)
	}
	return p
}

func newCommons(t *testing.T, params CommonsParams, names ...string) *Commons {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	var agents []*HarvestAgent
	for _, m := range members(names...) {
		agents = append(agents, NewHarvestAgent(m, lookup(t, strategy.FamilyHarvest, m.Strategy).NewHarvester(rng)))
	}
	c, err := NewCommons(params, agents, quietLogger)
	if err != nil {
		t.Fatalf("NewCommons: %v", err)
	}
	return c
}

func repeat(name string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = name
	}
	return out
}

func TestMutualCooperationScoresReward(t *testing.T) {
	p := newPairwise(t, PrisonersDilemma, DefaultPayoffs(PrisonersDilemma), "always_cooperate", "always_cooperate")
	rec, err := p.PlayRound(1)
	if err != nil {
		t.Fatalf("PlayRound: %v", err)
	}
	if len(rec.Interactions) != 1 {
		t.Fatalf("Expected 1 interaction, got %d", len(rec.Interactions))
	}
	in := rec.Interactions[0]
	if in.Move1 != strategy.Cooperate || in.Move2 != strategy.Cooperate {
		t.Errorf("Expected (C,C), got (%v,%v)", in.Move1, in.Move2)
	}
	if in.Score1 != 3 || in.Score2 != 3 {
		t.Errorf("Expected (3,3), got (%v,%v)", in.Score1, in.Score2)
	}
}

func TestMutualDefectionScoresPunishment(t *testing.T) {
	p := newPairwise(t, PrisonersDilemma, DefaultPayoffs(PrisonersDilemma), "always_defect", "always_defect")
	rec, err := p.PlayRound(1)
	if err != nil {
		t.Fatalf("PlayRound: %v", err)
	}
	in := rec.Interactions[0]
	if in.Move1 != strategy.Defect || in.Move2 != strategy.Defect {
		t.Errorf("Expected (D,D), got (%v,%v)", in.Move1, in.Move2)
	}
	if in.Score1 != 1 || in.Score2 != 1 {
		t.Errorf("Expected (1,1), got (%v,%v)", in.Score1, in.Score2)
	}
	if p.Results().MutualDefections != 1 {
		t.Errorf("Expected 1 mutual defection, got %d", p.Results().MutualDefections)
	}
}

func TestPayoffOverridesMatchMatrix(t *testing.T) {
	pay := Payoffs{T: 7, R: -2, P: 4, S: 10}
	tests := []struct {
		m1, m2 strategy.Move
		s1, s2 float64
	}{
		{strategy.Cooperate, strategy.Cooperate, -2, -2},
		{strategy.Cooperate, strategy.Defect, 10, 7},
		{strategy.Defect, strategy.Cooperate, 7, 10},
		{strategy.Defect, strategy.Defect, 4, 4},
	}
	for _, tt := range tests {
		s1, s2 := pay.Score(tt.m1, tt.m2)
		if s1 != tt.s1 || s2 != tt.s2 {
			t.Errorf("(%v,%v): expected (%v,%v), got (%v,%v)", tt.m1, tt.m2, tt.s1, tt.s2, s1, s2)
		}
	}
}

func TestRoundRobinInteractionCount(t *testing.T) {
	for n := 2; n <= 7; n++ {
		names := []string{"tit_for_tat", "random", "grudger", "pavlov", "always_defect", "tit_for_two_tats", "two_tits_for_tat"}[:n]
		p := newPairwise(t, PrisonersDilemma, DefaultPayoffs(PrisonersDilemma), names...)

		before := p.Results().OverallCooperation + p.Results().OverallDefection
		rec, err := p.PlayRound(1)
		if err != nil {
			t.Fatalf("PlayRound: %v", err)
		}
		pairs := n * (n - 1) / 2
		if len(rec.Interactions) != pairs {
			t.Errorf("n=%d: expected %d interactions, got %d", n, pairs, len(rec.Interactions))
		}
		after := p.Results().OverallCooperation + p.Results().OverallDefection
		if after-before != 2*pairs {
			t.Errorf("n=%d: expected %d move tallies, got %d", n, 2*pairs, after-before)
		}

		var perStrategy int
		for _, perf := range p.Results().StrategyPerformance {
			perStrategy += perf.Cooperations + perf.Defections
		}
		if perStrategy != 2*pairs {
			t.Errorf("n=%d: per-strategy tallies %d, expected %d", n, perStrategy, 2*pairs)
		}
	}
}

func TestHistoriesArePerOpponent(t *testing.T) {
	p := newPairwise(t, PrisonersDilemma, DefaultPayoffs(PrisonersDilemma), "tit_for_tat", "always_defect", "always_cooperate")
	for r := 1; r <= 2; r++ {
		if _, err := p.PlayRound(r); err != nil {
			t.Fatalf("PlayRound: %v", err)
		}
	}
	rec, err := p.PlayRound(3)
	if err != nil {
		t.Fatalf("PlayRound: %v", err)
	}
	for _, in := range rec.Interactions {
		if in.Agent1 != "tit_for_tat_1" {
			continue
		}
		switch in.Agent2 {
		case "always_defect_1":
			if in.Move1 != strategy.Defect {
				t.Errorf("Expected tit_for_tat to defect against always_defect, got %v", in.Move1)
			}
		case "always_cooperate_1":
			if in.Move1 != strategy.Cooperate {
				t.Errorf("Expected tit_for_tat to cooperate with always_cooperate, got %v", in.Move1)
			}
		}
	}
}

func TestPairwiseFinalize(t *testing.T) {
	p := newPairwise(t, PrisonersDilemma, DefaultPayoffs(PrisonersDilemma), "always_cooperate", "always_defect")
	for r := 1; r <= 4; r++ {
		if _, err := p.PlayRound(r); err != nil {
			t.Fatalf("PlayRound: %v", err)
		}
	}
	stats, err := p.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	coop := stats.Strategies["always_cooperate"]
	if coop.Score != 0 || coop.SustainabilityImpact != 1 || coop.SocialWelfare != -1 {
		t.Errorf("Unexpected cooperator outcome: %+v", coop)
	}
	def := stats.Strategies["always_defect"]
	if def.Score != 20 || def.SustainabilityImpact != -1 || def.SocialWelfare != 1 {
		t.Errorf("Unexpected defector outcome: %+v", def)
	}
	if rate := p.Results().StrategyPerformance["always_cooperate"].CooperationRate; rate != 1 {
		t.Errorf("Expected cooperation rate 1, got %v", rate)
	}
	if got := len(p.Results().Scores["always_defect_1"]); got != 4 {
		t.Errorf("Expected 4 score entries, got %d", got)
	}
}

func TestInvalidMoveFailsRoundWithoutScoring(t *testing.T) {
	bad := func(strategy.History, *rand.Rand) strategy.Move { return strategy.Move(9) }
	ms := members("always_cooperate", "broken")
	agents := []*PairwiseAgent{
		NewPairwiseAgent(ms[0], lookup(t, strategy.FamilyPairwise, "always_cooperate").Rule),
		NewPairwiseAgent(ms[1], bad),
	}
	p, err := NewPairwise(PrisonersDilemma, DefaultPayoffs(PrisonersDilemma), agents, rand.New(rand.NewSource(1)), quietLogger)
	if err != nil {
		t.Fatalf("NewPairwise: %v", err)
	}
	if _, err := p.PlayRound(1); !errors.Is(err, ErrInvalidMove) {
		t.Fatalf("Expected ErrInvalidMove, got %v", err)
	}
	if agents[0].Score != 0 || len(agents[0].HistoryWith(1)) != 0 {
		t.Error("Failed round changed agent state")
	}
}

func TestChickenDefaultMatrix(t *testing.T) {
	p := newPairwise(t, GameOfChicken, DefaultPayoffs(GameOfChicken), "always_defect", "always_defect")
	rec, err := p.PlayRound(1)
	if err != nil {
		t.Fatalf("PlayRound: %v", err)
	}
	if rec.Interactions[0].Score1 != 0 {
		t.Errorf("Expected a crash to score 0, got %v", rec.Interactions[0].Score1)
	}
}

func TestCommonsFairShareScenario(t *testing.T) {
	c := newCommons(t, CommonsParams{ResourceSize: 1000, RegenerationRate: 200, HarvestLimit: 30}, repeat("fair_share", 4)...)

	rec, err := c.PlayRound(1)
	if err != nil {
		t.Fatalf("PlayRound: %v", err)
	}
	for _, h := range rec.Harvests {
		if h.Harvest != 30 {
			t.Errorf("agent %d: expected harvest 30, got %v", h.AgentID, h.Harvest)
		}
	}
	// 1000 - 120 = 880, regrowth 2*880*(1-0.88) = 211.2
	if math.Abs(c.Resource()-1091.2) > 1e-6 {
		t.Errorf("Expected resource 1091.2, got %v", c.Resource())
	}
	if rec.StrategyHarvests["fair_share"] != 120 {
		t.Errorf("Expected strategy harvest 120, got %v", rec.StrategyHarvests["fair_share"])
	}

	stats, err := c.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	out := stats.Strategies["fair_share"]
	if math.Abs(out.SustainabilityImpact-1.0/3) > 1e-9 {
		t.Errorf("Expected sustainability 1/3, got %v", out.SustainabilityImpact)
	}
	if out.Actions["sustainable"] != 4 || out.Actions["unsustainable"] != 0 {
		t.Errorf("Unexpected action counts: %v", out.Actions)
	}
}

func TestCommonsSeriesLength(t *testing.T) {
	c := newCommons(t, DefaultCommonsParams(), "sustainable", "greedy", "adaptive", "fair_share")
	const rounds = 25
	for r := 1; r <= rounds; r++ {
		if _, err := c.PlayRound(r); err != nil {
			t.Fatalf("PlayRound(%d): %v", r, err)
		}
	}
	if got := len(c.Results().ResourceLevels); got != rounds+1 {
		t.Errorf("Expected %d resource levels, got %d", rounds+1, got)
	}
	if c.Results().ResourceLevels[0] != 1000 {
		t.Errorf("Expected series to start at 1000, got %v", c.Results().ResourceLevels[0])
	}
}

func TestCommonsHarvestCeiling(t *testing.T) {
	c := newCommons(t, CommonsParams{ResourceSize: 100, RegenerationRate: 10, HarvestLimit: 50}, repeat("greedy", 20)...)
	for r := 1; r <= 15; r++ {
		start := c.Resource()
		rec, err := c.PlayRound(r)
		if err != nil {
			t.Fatalf("PlayRound: %v", err)
		}
		var total float64
		for _, h := range rec.Harvests {
			total += h.Harvest
		}
		if total > 0.5*start+1e-9 {
			t.Errorf("round %d: harvested %v of %v", r, total, start)
		}
		if c.Resource() < 0 {
			t.Errorf("round %d: resource went negative: %v", r, c.Resource())
		}
	}
}

func TestCommonsRestorationNotScaled(t *testing.T) {
	// below 30% health the conservationist restores half the fair share
	c := newCommons(t, CommonsParams{ResourceSize: 1000, RegenerationRate: 200, HarvestLimit: 30}, "conservationist", "greedy", "greedy")
	c.resource = 200
	fair := c.FairShare()

	rec, err := c.PlayRound(1)
	if err != nil {
		t.Fatalf("PlayRound: %v", err)
	}
	if got := rec.Harvests[0].Harvest; math.Abs(got+0.5*fair) > 1e-9 {
		t.Errorf("Expected restoration %v, got %v", -0.5*fair, got)
	}
	var positive float64
	for _, h := range rec.Harvests[1:] {
		positive += h.Harvest
	}
	if positive > 100+1e-9 {
		t.Errorf("Positive harvest %v exceeds the 50%% ceiling", positive)
	}
}

type nanHarvester struct{}

func (nanHarvester) Harvest(strategy.HarvestState) float64 { return math.NaN() }

func TestCommonsFailedRoundKeepsSeriesAligned(t *testing.T) {
	ms := members("fair_share", "broken")
	agents := []*HarvestAgent{
		NewHarvestAgent(ms[0], strategy.HarvestFunc(strategy.FairShareHarvest)),
		NewHarvestAgent(ms[1], nanHarvester{}),
	}
	c, err := NewCommons(DefaultCommonsParams(), agents, quietLogger)
	if err != nil {
		t.Fatalf("NewCommons: %v", err)
	}
	_, err = c.PlayRound(1)
	if !errors.Is(err, ErrNonFinite) {
		t.Fatalf("Expected ErrNonFinite, got %v", err)
	}
	if c.Resource() != 1000 || agents[0].Total != 0 {
		t.Error("Failed round changed pool or agent state")
	}

	rec := c.FailedRound(1, err)
	if rec.Error == "" || rec.ResourceSize == nil || *rec.ResourceSize != 1000 {
		t.Errorf("Unexpected failed record: %+v", rec)
	}
	if len(c.Results().ResourceLevels) != 2 {
		t.Errorf("Expected 2 resource levels, got %d", len(c.Results().ResourceLevels))
	}
}

func TestCommonsRegenerationFallback(t *testing.T) {
	c := newCommons(t, CommonsParams{ResourceSize: 1000, RegenerationRate: -5, HarvestLimit: 30}, "fair_share")
	if c.Params().RegenerationRate != DefaultRegenerationRate {
		t.Errorf("Expected fallback to %v, got %v", DefaultRegenerationRate, c.Params().RegenerationRate)
	}
	if c.Results().Metadata == nil || len(c.Results().Metadata.Warnings) != 1 {
		t.Error("Expected a warning to be recorded")
	}
}

func TestCommonsCollapseWelfare(t *testing.T) {
	c := newCommons(t, CommonsParams{ResourceSize: 1000, RegenerationRate: 200, HarvestLimit: 30}, "greedy")
	c.resource = 50
	stats, err := c.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if w := stats.Strategies["greedy"].SocialWelfare; w != -0.8 {
		t.Errorf("Expected collapse welfare -0.8, got %v", w)
	}
}

func newThreshold(t *testing.T, params ThresholdParams, names ...string) *Threshold {
	t.Helper()
	rng := rand.New(rand.NewSource(5))
	var agents []*FundAgent
	for _, m := range members(names...) {
		agents = append(agents, NewFundAgent(m, lookup(t, strategy.FamilyFund, m.Strategy).NewContributor(rng)))
	}
	e, err := NewThreshold(params, agents, quietLogger)
	if err != nil {
		t.Fatalf("NewThreshold: %v", err)
	}
	return e
}

func TestThresholdCompletesOnce(t *testing.T) {
	e := newThreshold(t, DefaultThresholdParams(), "contributor", "contributor", "free_rider", "conditional")
	completions := 0
	for r := 1; r <= 10; r++ {
		rec, err := e.PlayRound(r)
		if err != nil {
			t.Fatalf("PlayRound: %v", err)
		}
		if rec.BenefitPerAgent > 0 {
			completions++
		}
		if e.Funding() > e.Target()+1e-9 {
			t.Errorf("round %d: funding %v passed target %v", r, e.Funding(), e.Target())
		}
		if e.Completed() && rec.BenefitPerAgent == 0 {
			for _, c := range rec.Contributions {
				if c.Contribution != 0 {
					t.Errorf("round %d: contribution %v after completion", r, c.Contribution)
				}
			}
			if *rec.FundingProgress != 100 {
				t.Errorf("round %d: expected progress pinned at 100, got %v", r, *rec.FundingProgress)
			}
		}
	}
	if completions != 1 {
		t.Errorf("Expected exactly one completion, got %d", completions)
	}
	if got := len(e.Results().FundingProgress); got != 11 {
		t.Errorf("Expected 11 progress points, got %d", got)
	}
	for _, a := range e.agents {
		if a.TotalBenefit != 500 {
			t.Errorf("%s: expected benefit 500, got %v", a.Label, a.TotalBenefit)
		}
	}
}

func TestThresholdFreeRiderContributesNothing(t *testing.T) {
	e := newThreshold(t, DefaultThresholdParams(), "free_rider", "contributor", "partial")
	for r := 1; r <= 20; r++ {
		rec, err := e.PlayRound(r)
		if err != nil {
			t.Fatalf("PlayRound: %v", err)
		}
		for _, c := range rec.Contributions {
			if c.Strategy == "free_rider" && c.Contribution != 0 {
				t.Errorf("round %d: free rider contributed %v", r, c.Contribution)
			}
		}
	}
	stats, err := e.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	fr := stats.Strategies["free_rider"]
	if fr.Actions["contribute"] != 0 || fr.SocialWelfare != -1 {
		t.Errorf("Unexpected free rider outcome: %+v", fr)
	}
}

func TestThresholdNeverFundedAllFreeRiders(t *testing.T) {
	e := newThreshold(t, DefaultThresholdParams(), repeat("free_rider", 3)...)
	for r := 1; r <= 5; r++ {
		if _, err := e.PlayRound(r); err != nil {
			t.Fatalf("PlayRound: %v", err)
		}
	}
	if e.Completed() {
		t.Error("Project completed with no contributions")
	}
	stats, err := e.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if got := stats.Strategies["free_rider"].SustainabilityImpact; got != -1 {
		t.Errorf("Expected impact -1, got %v", got)
	}
}

func newPublicGoods(t *testing.T, params PublicGoodsParams, names ...string) *PublicGoodsGame {
	t.Helper()
	rng := rand.New(rand.NewSource(9))
	var agents []*PoolAgent
	for _, m := range members(names...) {
		agents = append(agents, NewPoolAgent(m, lookup(t, strategy.FamilyPool, m.Strategy).NewPoolMember(rng)))
	}
	g, err := NewPublicGoods(params, agents, quietLogger)
	if err != nil {
		t.Fatalf("NewPublicGoods: %v", err)
	}
	return g
}

func TestPublicGoodsEqualPayoff(t *testing.T) {
	g := newPublicGoods(t, DefaultPublicGoodsParams(), "full", "zero")
	rec, err := g.PlayRound(1)
	if err != nil {
		t.Fatalf("PlayRound: %v", err)
	}
	if *rec.PublicPool != 50 {
		t.Errorf("Expected pool 50, got %v", *rec.PublicPool)
	}
	full, zero := g.agents[0], g.agents[1]
	if full.TotalPayoff != 50 || zero.TotalPayoff != 50 {
		t.Errorf("Expected payoff 50 each, got %v and %v", full.TotalPayoff, zero.TotalPayoff)
	}
	// Payouts are not added to the contributable balance.
	if full.Balance != 0 || zero.Balance != 50 {
		t.Errorf("Expected balances 0 and 50, got %v and %v", full.Balance, zero.Balance)
	}
	if got := g.Results().AverageContribution; len(got) != 1 || got[0] != 25 {
		t.Errorf("Expected average contribution [25], got %v", got)
	}
}

func TestPublicGoodsProportional(t *testing.T) {
	params := PublicGoodsParams{Endowment: 50, Multiplier: 2, Distribution: DistributeProportional}
	g := newPublicGoods(t, params, "full", "zero", "matching")
	rec, err := g.PlayRound(1)
	if err != nil {
		t.Fatalf("PlayRound: %v", err)
	}
	// full gives 50, matching gives 25: pool 75, payout 150
	want := map[int]float64{0: 100, 1: 0, 2: 50}
	for _, c := range rec.Contributions {
		if math.Abs(c.Payoff-want[c.AgentID]) > 1e-9 {
			t.Errorf("agent %d: expected payoff %v, got %v", c.AgentID, want[c.AgentID], c.Payoff)
		}
	}

	zero := newPublicGoods(t, params, "zero", "zero")
	rec, err = zero.PlayRound(1)
	if err != nil {
		t.Fatalf("PlayRound: %v", err)
	}
	for _, c := range rec.Contributions {
		if c.Payoff != 0 {
			t.Errorf("Expected no payoff from an empty pool, got %v", c.Payoff)
		}
	}
}

func TestPublicGoodsFinalize(t *testing.T) {
	g := newPublicGoods(t, DefaultPublicGoodsParams(), "full", "zero")
	for r := 1; r <= 4; r++ {
		if _, err := g.PlayRound(r); err != nil {
			t.Fatalf("PlayRound: %v", err)
		}
	}
	stats, err := g.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	zero := stats.Strategies["zero"]
	if zero.SocialWelfare != -1 {
		t.Errorf("Expected welfare -1 for zero contributor, got %v", zero.SocialWelfare)
	}
	if zero.Actions["free_ride"] != 200 {
		t.Errorf("Expected free_ride 200, got %v", zero.Actions["free_ride"])
	}
	if zero.Score <= 0 {
		t.Errorf("Expected zero contributor to collect payoffs, got %v", zero.Score)
	}
	if len(g.Results().ContributionHistory["full"]) != 4 {
		t.Errorf("Expected 4 history points, got %d", len(g.Results().ContributionHistory["full"]))
	}
}

func TestPublicGoodsLongRunStaysFinite(t *testing.T) {
	g := newPublicGoods(t, DefaultPublicGoodsParams(), "full", "full", "full", "full")
	for r := 1; r <= 1100; r++ {
		rec, err := g.PlayRound(r)
		if err != nil {
			t.Fatalf("round %d: %v", r, err)
		}
		if *rec.PublicPool != 200 {
			t.Fatalf("round %d: expected pool 200, got %v", r, *rec.PublicPool)
		}
	}
	for _, a := range g.agents {
		if a.Balance != 0 {
			t.Errorf("%s: expected balance 0, got %v", a.Label, a.Balance)
		}
		if a.TotalPayoff != 1100*100 {
			t.Errorf("%s: expected total payoff %v, got %v", a.Label, 1100*100, a.TotalPayoff)
		}
	}

	stats, err := g.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	full := stats.Strategies["full"]
	if full.SocialWelfare != 1 {
		t.Errorf("Expected welfare 1, got %v", full.SocialWelfare)
	}
	if full.Actions["free_ride"] != 0 {
		t.Errorf("Expected free_ride 0, got %v", full.Actions["free_ride"])
	}
}

// scheduled contributes amounts[k] on its k-th contribution.
func scheduled(amounts ...float64) strategy.PoolContributor {
	return strategy.PoolFunc(func(s strategy.PoolState) float64 {
		return amounts[s.Contributions]
	})
}

func TestPublicGoodsSustainabilityImpact(t *testing.T) {
	tests := []struct {
		name   string
		policy strategy.PoolContributor
		rounds int
		want   float64
	}{
		// trend (35-15)/50 = 0.4, ratio 100/200 = 0.5
		{"rising", scheduled(10, 20, 30, 40), 4, 0.65},
		// trend 0, ratio 1
		{"sustained", strategy.PoolFunc(strategy.FullContribution), 4, 0.5},
		// trend (15-35)/50 = -0.4, ratio 0.5
		{"declining", scheduled(40, 30, 20, 10), 4, -0.15},
		// fewer than three points: ratio - 0.5
		{"two rounds full", strategy.PoolFunc(strategy.FullContribution), 2, 0.5},
		{"two rounds partial", scheduled(10, 10), 2, -0.3},
		{"one round nothing", strategy.PoolFunc(strategy.ZeroContribution), 1, -0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := NewPoolAgent(Member{ID: 1, Label: "p_1", Strategy: "p"}, tt.policy)
			g, err := NewPublicGoods(DefaultPublicGoodsParams(), []*PoolAgent{agent}, quietLogger)
			if err != nil {
				t.Fatalf("NewPublicGoods: %v", err)
			}
			for r := 1; r <= tt.rounds; r++ {
				if _, err := g.PlayRound(r); err != nil {
					t.Fatalf("PlayRound: %v", err)
				}
			}
			stats, err := g.Finalize()
			if err != nil {
				t.Fatalf("Finalize: %v", err)
			}
			got := stats.Strategies["p"].SustainabilityImpact
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Expected impact %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPublicGoodsMatchingDeclinesWithFreeRiders(t *testing.T) {
	g := newPublicGoods(t, DefaultPublicGoodsParams(), "matching", "zero")
	for r := 1; r <= 4; r++ {
		if _, err := g.PlayRound(r); err != nil {
			t.Fatalf("PlayRound: %v", err)
		}
	}
	// matching gives 25, then halves each round: 12.5, 6.25, 3.125
	history := g.Results().ContributionHistory["matching"]
	want := []float64{25, 12.5, 6.25, 3.125}
	for i := range want {
		if math.Abs(history[i]-want[i]) > 1e-9 {
			t.Errorf("round %d: expected %v, got %v", i+1, want[i], history[i])
		}
	}

	stats, err := g.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	// trend (4.6875-18.75)/50 = -0.28125, ratio 46.875/200
	matching := stats.Strategies["matching"]
	if math.Abs(matching.SustainabilityImpact-(-0.1640625)) > 1e-9 {
		t.Errorf("Expected impact -0.1640625, got %v", matching.SustainabilityImpact)
	}
	if zero := stats.Strategies["zero"]; zero.SustainabilityImpact != 0 {
		t.Errorf("Expected impact 0 for a flat zero history, got %v", zero.SustainabilityImpact)
	}
}

func TestEnginesRejectEmptyPopulation(t *testing.T) {
	if _, err := NewCommons(DefaultCommonsParams(), nil, quietLogger); !errors.Is(err, ErrNoAgents) {
		t.Errorf("Expected ErrNoAgents, got %v", err)
	}
	if _, err := NewThreshold(DefaultThresholdParams(), nil, quietLogger); !errors.Is(err, ErrNoAgents) {
		t.Errorf("Expected ErrNoAgents, got %v", err)
	}
	if _, err := NewPublicGoods(DefaultPublicGoodsParams(), nil, quietLogger); !errors.Is(err, ErrNoAgents) {
		t.Errorf("Expected ErrNoAgents, got %v", err)
	}
}

func TestParseGameType(t *testing.T) {
	tests := map[string]GameType{
		"prisoners_dilemma":      PrisonersDilemma,
		"Tragedy-Of-The-Commons": TragedyCommons,
		"free_rider":             FreeRider,
		"public_goods_game":      PublicGoods,
		"chicken":                GameOfChicken,
	}
	for in, want := range tests {
		got, ok := ParseGameType(in)
		if !ok || got != want {
			t.Errorf("ParseGameType(%q) = %v, %v; expected %v", in, got, ok, want)
		}
	}
	if _, ok := ParseGameType("ultimatum_game"); ok {
		t.Error("Expected ultimatum_game to be unsupported")
	}
}
