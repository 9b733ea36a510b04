package strategy

import (
	"math"
	"math/rand"
)

// FundState is what a contributor observes before pledging to a
// threshold-funded project.
type FundState struct {
	Funding     float64 // cumulative funding so far
	Cost        float64 // total project cost
	Threshold   float64 // funding amount that completes the project
	FairShare   float64 // cost divided by the number of agents
	PrevAverage float64 // mean contribution of the previous round
	Pledges     int     // number of contributions this agent has already made
}

// remaining is how much the fund still needs, never negative.
func (s FundState) remaining() float64 {
	return math.Max(0, s.Threshold-s.Funding)
}

// Contributor proposes a contribution to a threshold fund.
type Contributor interface {
	Contribute(s FundState) float64
}

// ContributeFunc adapts a stateless function to the Contributor interface.
type ContributeFunc func(s FundState) float64

// Contribute calls f(s).
func (f ContributeFunc) Contribute(s FundState) float64 { return f(s) }

// ConsistentContribution pays the fair share unless less is still needed.
func ConsistentContribution(s FundState) float64 {
	return math.Min(s.FairShare, s.remaining())
}

// FreeRide contributes nothing.
func FreeRide(FundState) float64 { return 0 }

// PartialContributor pays a fixed fraction of the fair share. The fraction is
// drawn once, in [0.2, 0.6).
type PartialContributor struct {
	Fraction float64
}

// NewPartialContributor draws the contribution fraction from rng.
func NewPartialContributor(rng *rand.Rand) *PartialContributor {
	return &PartialContributor{Fraction: 0.2 + 0.4*rng.Float64()}
}

// Contribute pays fraction times the fair share, capped by what is still needed.
func (p *PartialContributor) Contribute(s FundState) float64 {
	return math.Min(s.FairShare*p.Fraction, s.remaining())
}

// ConditionalContribution pays the fair share first, then follows the previous
// round's average within 40% to 120% of the fair share.
func ConditionalContribution(s FundState) float64 {
	if s.Pledges == 0 {
		return s.FairShare
	}
	lo := 0.4 * s.FairShare
	hi := 1.2 * s.FairShare
	c := lo
	if s.PrevAverage > 0 {
		c = s.PrevAverage
	}
	return math.Min(clamp(c, lo, hi), s.remaining())
}

// StrategicFreeRide pays a token 10% of the fair share until the fund is past
// 90% of cost, then closes the gap.
func StrategicFreeRide(s FundState) float64 {
	if s.Cost > 0 && s.Funding/s.Cost > 0.9 && s.Funding < s.Threshold {
		return math.Min(s.Threshold-s.Funding, s.FairShare)
	}
	return s.FairShare * 0.1
}

const (
	reputationBase       = 0.3
	reputationBoost      = 0.6
	reputationVisibility = 0.5
)

// ReputationContribution pays 60% of the fair share, rising to 120% when the
// fund is between 85% and 95% of the threshold.
func ReputationContribution(s FundState) float64 {
	rate := reputationBase + reputationVisibility*reputationBoost
	c := s.FairShare * rate
	var progress float64
	if s.Threshold > 0 {
		progress = s.Funding / s.Threshold
	}
	if progress > 0.85 && progress < 0.95 {
		c = math.Max(c, s.FairShare*1.2)
	}
	return math.Min(c, s.remaining())
}

func newConsistent(*rand.Rand) Contributor { return ContributeFunc(ConsistentContribution) }
func newFreeRider(*rand.Rand) Contributor { return ContributeFunc(FreeRide) }
func newPartial(rng *rand.Rand) Contributor { return NewPartialContributor(rng) }
func newConditional(*rand.Rand) Contributor { return ContributeFunc(ConditionalContribution) }
func newStrategicFreeRider(*rand.Rand) Contributor { return ContributeFunc(StrategicFreeRide) }
func newReputation(*rand.Rand) Contributor { return ContributeFunc(ReputationContribution) }
