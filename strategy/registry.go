package strategy

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// Family groups strategies that play the same kind of dilemma.
type Family string

const (
	FamilyPairwise Family = "pairwise"
	FamilyHarvest  Family = "harvest"
	FamilyFund     Family = "fund"
	FamilyPool     Family = "pool"
)

// Families lists every family in display order.
var Families = []Family{FamilyPairwise, FamilyHarvest, FamilyFund, FamilyPool}

// ErrUnknownStrategy is returned when a name matches no registered strategy.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Spec describes one registered strategy. Exactly one of the constructor
// fields is set, matching Family.
type Spec struct {
	Name        string   `json:"name" yaml:"name"`
	Family      Family   `json:"family" yaml:"family"`
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Description string   `json:"description" yaml:"description"`
	Extension   bool     `json:"extension,omitempty" yaml:"extension,omitempty"`

	Rule           Rule                             `json:"-" yaml:"-"`
	NewHarvester   func(*rand.Rand) Harvester       `json:"-" yaml:"-"`
	NewContributor func(*rand.Rand) Contributor     `json:"-" yaml:"-"`
	NewPoolMember  func(*rand.Rand) PoolContributor `json:"-" yaml:"-"`
}

// catalog is the fixed set of strategies; extensions are only registered on
// request.
var catalog = []Spec{
	{Name: "always_cooperate", Family: FamilyPairwise, Aliases: []string{"all_cooperate"},
		Description: "Always cooperates.", Rule: alwaysCooperate},
	{Name: "always_defect", Family: FamilyPairwise, Aliases: []string{"all_defect"},
		Description: "Always defects.", Rule: alwaysDefect},
	{Name: "tit_for_tat", Family: FamilyPairwise,
		Description: "Cooperates first, then copies the opponent's last move.", Rule: titForTat},
	{Name: "tit_for_two_tats", Family: FamilyPairwise, Aliases: []string{"tit_for_2_tat", "tit_for_2_tats"},
		Description: "Defects only after two consecutive opponent defections.", Rule: titForTwoTats},
	{Name: "two_tits_for_tat", Family: FamilyPairwise, Aliases: []string{"2_tit_for_tat", "2_tits_for_tat"},
		Description: "Retaliates whenever the opponent defected on the previous move.", Rule: twoTitsForTat},
	{Name: "random", Family: FamilyPairwise,
		Description: "Picks cooperate or defect uniformly at random.", Rule: randomMove},
	{Name: "pavlov", Family: FamilyPairwise, Aliases: []string{"win_stay_lose_shift"},
		Description: "Repeats its last move if the opponent cooperated, otherwise switches.", Rule: pavlov},
	{Name: "grudger", Family: FamilyPairwise,
		Description: "Cooperates until the opponent defects once, then defects forever.", Rule: grudger},

	{Name: "sustainable", Family: FamilyHarvest,
		Description: "Harvests the limit while the resource is healthy and cuts back as it depletes.", NewHarvester: newSustainable},
	{Name: "greedy", Family: FamilyHarvest,
		Description: "Harvests well above the limit, up to 30% of the available resource.", NewHarvester: newGreedy},
	{Name: "adaptive", Family: FamilyHarvest,
		Description: "Grows greedier while the resource is abundant and restrained when it is scarce.", NewHarvester: newAdaptive},
	{Name: "fair_share", Family: FamilyHarvest,
		Description: "Harvests exactly the computed fair share.", NewHarvester: newFairShare},
	{Name: "conservationist", Family: FamilyHarvest, Extension: true,
		Description: "Harvests little when the resource is low and restores it when critical.", NewHarvester: newConservationist},
	{Name: "seasonal", Family: FamilyHarvest, Extension: true,
		Description: "Follows a four-round cycle of high, moderate and low harvests.", NewHarvester: newSeasonal},

	{Name: "contributor", Family: FamilyFund, Aliases: []string{"consistent"},
		Description: "Always contributes the fair share until the threshold is met.", NewContributor: newConsistent},
	{Name: "free_rider", Family: FamilyFund,
		Description: "Never contributes.", NewContributor: newFreeRider},
	{Name: "partial", Family: FamilyFund,
		Description: "Contributes a fixed 20-60% fraction of the fair share.", NewContributor: newPartial},
	{Name: "conditional", Family: FamilyFund,
		Description: "Matches the previous round's average contribution within bounds.", NewContributor: newConditional},
	{Name: "strategic_free_rider", Family: FamilyFund, Extension: true,
		Description: "Pays a token amount until the project is nearly funded.", NewContributor: newStrategicFreeRider},
	{Name: "reputation", Family: FamilyFund, Aliases: []string{"reputation_driven"}, Extension: true,
		Description: "Contributes more when close to being the one who completes the project.", NewContributor: newReputation},

	{Name: "full", Family: FamilyPool, Aliases: []string{"full_contributor"},
		Description: "Contributes the entire balance.", NewPoolMember: newFull},
	{Name: "zero", Family: FamilyPool, Aliases: []string{"zero_contributor"},
		Description: "Contributes nothing.", NewPoolMember: newZero},
	{Name: "random", Family: FamilyPool,
		Description: "Contributes a random share of its balance.", NewPoolMember: newRandomPool},
	{Name: "matching", Family: FamilyPool,
		Description: "Contributes half at first, then the previous round's average.", NewPoolMember: newMatching},
	{Name: "altruistic", Family: FamilyPool, Extension: true,
		Description: "Contributes most of its balance regardless of others.", NewPoolMember: newAltruistic},
	{Name: "tit_for_tat", Family: FamilyPool, Extension: true,
		Description: "Moves its contribution rate toward the group's previous rate.", NewPoolMember: newReciprocal},
}

// Registry maps strategy names to their rules. It is read-only after
// NewRegistry returns and safe to share between goroutines.
type Registry struct {
	specs      map[Family][]Spec
	index      map[Family]map[string]int
	extensions bool
}

// Option configures a Registry under construction.
type Option func(*Registry)

// WithExtensions also registers the optional strategies.
func WithExtensions() Option {
	return func(r *Registry) { r.extensions = true }
}

// NewRegistry builds the registry of built-in strategies.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		specs: make(map[Family][]Spec),
		index: make(map[Family]map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, spec := range catalog {
		if spec.Extension && !r.extensions {
			continue
		}
		if r.index[spec.Family] == nil {
			r.index[spec.Family] = make(map[string]int)
		}
		pos := len(r.specs[spec.Family])
		r.specs[spec.Family] = append(r.specs[spec.Family], spec)
		r.index[spec.Family][spec.Name] = pos
		for _, alias := range spec.Aliases {
			r.index[spec.Family][alias] = pos
		}
	}
	return r
}

// Extended reports whether the optional strategies are registered.
func (r *Registry) Extended() bool { return r.extensions }

// Normalize folds case and separators so "Tit-For-Tat" matches "tit_for_tat".
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("-", "_", " ", "_").Replace(name)
}

// Lookup finds a strategy by name or alias within a family.
func (r *Registry) Lookup(family Family, name string) (Spec, error) {
	pos, ok := r.index[family][Normalize(name)]
	if !ok {
		return Spec{}, fmt.Errorf("%w %q for %s games", ErrUnknownStrategy, name, family)
	}
	return r.specs[family][pos], nil
}

// Specs returns the registered strategies of a family in catalog order.
func (r *Registry) Specs(family Family) []Spec {
	out := make([]Spec, len(r.specs[family]))
	copy(out, r.specs[family])
	return out
}

// Names returns the canonical names registered for a family.
func (r *Registry) Names(family Family) []string {
	names := make([]string, 0, len(r.specs[family]))
	for _, s := range r.specs[family] {
		names = append(names, s.Name)
	}
	return names
}
