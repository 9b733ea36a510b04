package engine

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNonFinite is returned when a strategy or statistic produces NaN or Inf.
	ErrNonFinite = errors.New("non-finite value")
	// ErrInvalidMove is returned when a pairwise rule returns neither C nor D.
	ErrInvalidMove = errors.New("invalid move")
	// ErrNoAgents is returned when an engine is built without agents.
	ErrNoAgents = errors.New("no agents")
	// ErrInvalidParameter is returned for parameters an engine cannot run with.
	ErrInvalidParameter = errors.New("invalid parameter")
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// checkFinite names the first non-finite value among vs.
func checkFinite(what string, vs ...float64) error {
	for _, v := range vs {
		if !finite(v) {
			return fmt.Errorf("%s is %v: %w", what, v, ErrNonFinite)
		}
	}
	return nil
}

// clampUnit bounds a normalized score to [-1, 1].
func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
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

// checkOutcomes fails if any derived statistic is NaN or Inf, so a broken run
// reports an error block instead of unencodable JSON.
func checkOutcomes(out map[string]StrategyOutcome) error {
	for name, o := range out {
		if err := checkFinite("outcome for "+name, o.SustainabilityImpact, o.SocialWelfare, o.Score, o.TotalResources); err != nil {
			return err
		}
		for action, v := range o.Actions {
			if err := checkFinite(name+" "+action, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// groupByStrategy returns strategy names in first-seen order with the indexes
// of their agents.
func groupByStrategy(members []Member) ([]string, map[string][]int) {
	var order []string
	groups := make(map[string][]int)
	for i, m := range members {
		if _, ok := groups[m.Strategy]; !ok {
			order = append(order, m.Strategy)
		}
		groups[m.Strategy] = append(groups[m.Strategy], i)
	}
	return order, groups
}

func (r *Results) warn(msg string) {
	if r.Metadata == nil {
		r.Metadata = &Metadata{}
	}
	r.Metadata.Warnings = append(r.Metadata.Warnings, msg)
}
