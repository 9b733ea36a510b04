package strategy

import (
	"math"
	"math/rand"
)

// HarvestState is what a harvester observes before proposing a harvest.
type HarvestState struct {
	Available float64 // resource currently in the pool
	Initial   float64 // starting resource size (carrying capacity)
	FairShare float64 // per-agent sustainable reference for this round
	Limit     float64 // configured harvest limit
	Harvests  int     // number of harvests this agent has already made
}

// health is available/initial, or 0 for a degenerate initial size.
func (s HarvestState) health() float64 {
	if s.Initial <= 0 {
		return 0
	}
	return s.Available / s.Initial
}

// Harvester proposes an amount to take from a shared resource.
// A negative proposal means the agent restores the resource.
type Harvester interface {
	Harvest(s HarvestState) float64
}

// HarvestFunc adapts a stateless function to the Harvester interface.
type HarvestFunc func(s HarvestState) float64

// Harvest calls f(s).
func (f HarvestFunc) Harvest(s HarvestState) float64 { return f(s) }

// SustainableHarvest steps down from the full limit as resource health falls
// through 0.8, 0.5 and 0.2.
func SustainableHarvest(s HarvestState) float64 {
	health := math.Min(1, s.health())
	switch {
	case health > 0.8:
		return s.Limit
	case health > 0.5:
		return s.Limit * 0.8
	case health > 0.2:
		return s.Limit * 0.5
	default:
		return s.Limit * 0.2
	}
}

// GreedyHarvest takes 2.1x to 2.5x the limit but never more than 30% of what
// is available.
func GreedyHarvest(s HarvestState) float64 {
	factor := clamp(s.health(), 0.6, 1)
	return math.Min(s.Limit*(1.5+factor), s.Available*0.3)
}

// FairShareHarvest takes exactly the fair share.
func FairShareHarvest(s HarvestState) float64 {
	return s.FairShare
}

const adaptiveMemory = 3

// AdaptiveHarvester drifts toward greed while the resource looks abundant and
// back toward restraint when it looks scarce.
type AdaptiveHarvester struct {
	greed  float64
	recent []float64
}

// NewAdaptiveHarvester returns a harvester starting fully sustainable.
func NewAdaptiveHarvester() *AdaptiveHarvester {
	return &AdaptiveHarvester{recent: make([]float64, 0, adaptiveMemory)}
}

// Greed returns the current greed factor in [0,1].
func (a *AdaptiveHarvester) Greed() float64 { return a.greed }

// Harvest updates the greed factor from the last three observed health values
// and blends a sustainable and a greedy amount by greed squared.
func (a *AdaptiveHarvester) Harvest(s HarvestState) float64 {
	health := s.health()

	a.recent = append(a.recent, health)
	if len(a.recent) > adaptiveMemory {
		a.recent = a.recent[1:]
	}
	avg := mean(a.recent)

	if avg > 0.7 {
		step := 0.05 + 0.03*(avg-0.7)/0.3
		a.greed = math.Min(1, a.greed+step)
	} else if avg < 0.5 {
		scarcity := (0.5 - avg) / 0.5
		step := 0.05 + 0.05*scarcity
		a.greed = math.Max(0, a.greed-step)
	}

	sustainable := s.Limit * (0.8 + 0.3*health)
	greedy := math.Min(s.Limit*1.8, s.Available*0.25)
	blend := a.greed * a.greed
	return sustainable*(1-blend) + greedy*blend
}

// ConservationistHarvest harvests just under the limit while the resource is
// healthy, cuts back below 70% health and restores it below 30%.
func ConservationistHarvest(s HarvestState) float64 {
	health := s.health()
	if health < 0.7 {
		if health < 0.3 {
			return -s.FairShare * 0.5
		}
		return s.FairShare * 0.3
	}
	return s.Limit * 0.9
}

var seasonMultipliers = [4]float64{1.5, 1.0, 0.5, 1.0}

// SeasonalHarvest cycles through high, moderate, low and moderate seasons by
// the number of harvests already made.
func SeasonalHarvest(s HarvestState) float64 {
	season := s.Harvests % len(seasonMultipliers)
	base := s.Limit * math.Min(1, s.health())
	return base * seasonMultipliers[season]
}

func newSustainable(*rand.Rand) Harvester { return HarvestFunc(SustainableHarvest) }
func newGreedy(*rand.Rand) Harvester { return HarvestFunc(GreedyHarvest) }
func newAdaptive(*rand.Rand) Harvester { return NewAdaptiveHarvester() }
func newFairShare(*rand.Rand) Harvester { return HarvestFunc(FairShareHarvest) }
func newConservationist(*rand.Rand) Harvester { return HarvestFunc(ConservationistHarvest) }
func newSeasonal(*rand.Rand) Harvester { return HarvestFunc(SeasonalHarvest) }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
