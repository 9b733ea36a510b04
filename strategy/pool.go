package strategy

import (
	"math"
	"math/rand"
)

// PoolState is what a public-goods contributor observes before contributing.
type PoolState struct {
	Endowment     float64 // amount received each round
	Balance       float64 // private balance, endowment included
	PrevAverage   float64 // mean contribution of the previous round
	Contributions int     // number of contributions this agent has already made
}

// PoolContributor proposes a contribution to a multiplied public pool.
type PoolContributor interface {
	ContributeToPool(s PoolState) float64
}

// PoolFunc adapts a stateless function to the PoolContributor interface.
type PoolFunc func(s PoolState) float64

// ContributeToPool calls f(s).
func (f PoolFunc) ContributeToPool(s PoolState) float64 { return f(s) }

// FullContribution gives the whole balance.
func FullContribution(s PoolState) float64 { return s.Balance }

// ZeroContribution gives nothing.
func ZeroContribution(PoolState) float64 { return 0 }

// MatchingContribution gives half the balance first, then the previous round's
// average capped at the balance.
func MatchingContribution(s PoolState) float64 {
	if s.Contributions == 0 {
		return s.Balance * 0.5
	}
	return math.Min(s.PrevAverage, s.Balance)
}

// AltruisticContribution gives 90% of the balance, or 99% when the group
// average fell under 30% of the endowment.
func AltruisticContribution(s PoolState) float64 {
	base := s.Balance * 0.9
	if s.Contributions > 0 && s.PrevAverage < s.Endowment*0.3 {
		return math.Min(s.Balance, base*1.1)
	}
	return base
}

// RandomContributor gives a uniformly random share of its balance.
type RandomContributor struct {
	rng *rand.Rand
}

// ContributeToPool draws a share in [0,1).
func (r *RandomContributor) ContributeToPool(s PoolState) float64 {
	return s.Balance * r.rng.Float64()
}

// ReciprocalContributor moves its cooperation level 15% of the way toward the
// group's previous contribution rate each round.
type ReciprocalContributor struct {
	Level float64
}

// NewReciprocalContributor starts at a 70% cooperation level.
func NewReciprocalContributor() *ReciprocalContributor {
	return &ReciprocalContributor{Level: 0.7}
}

// ContributeToPool gives balance times the updated cooperation level.
func (c *ReciprocalContributor) ContributeToPool(s PoolState) float64 {
	if s.Contributions == 0 {
		return s.Balance * c.Level
	}
	var others float64
	if s.Endowment > 0 {
		others = s.PrevAverage / s.Endowment
	}
	c.Level += (others - c.Level) * 0.15
	c.Level = clamp(c.Level, 0.1, 0.95)
	return s.Balance * c.Level
}

func newFull(*rand.Rand) PoolContributor { return PoolFunc(FullContribution) }
func newZero(*rand.Rand) PoolContributor { return PoolFunc(ZeroContribution) }
func newRandomPool(rng *rand.Rand) PoolContributor { return &RandomContributor{rng: rng} }
func newMatching(*rand.Rand) PoolContributor { return PoolFunc(MatchingContribution) }
func newAltruistic(*rand.Rand) PoolContributor { return PoolFunc(AltruisticContribution) }
func newReciprocal(*rand.Rand) PoolContributor { return NewReciprocalContributor() }
