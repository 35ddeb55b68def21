package query

import (
	"strings"

	"snowgate/internal/cache"
)

// sampleSize is the page size EstimateCount samples with.
const sampleSize = 5

// Estimator approximates the total match count of a query from a
// small sample page. Used when the upstream's reported total is
// unreliable. Estimates are heuristic, never exact.
type Estimator interface {
	Estimate(sample *PageResult, group, state string) int
}

// HeuristicEstimator scales the sample size by fixed multipliers keyed
// on filter cardinality: a wildcard state or group matches far more
// rows than a specific one. The result is clamped to [Min, Max].
type HeuristicEstimator struct {
	Min int
	Max int

	StateWildcardFactor int
	StateFactor         int
	GroupWildcardFactor int
	GroupFactor         int
}

func NewHeuristicEstimator() *HeuristicEstimator {
	return &HeuristicEstimator{
		Min:                 5,
		Max:                 200,
		StateWildcardFactor: 8,
		StateFactor:         3,
		GroupWildcardFactor: 4,
		GroupFactor:         1,
	}
}

func (e *HeuristicEstimator) Estimate(sample *PageResult, group, state string) int {
	// A trustworthy upstream total beats any heuristic.
	if !sample.Degraded && sample.TotalPages > 0 && sample.Total > len(sample.Data) {
		return clamp(sample.Total, e.Min, e.Max)
	}

	est := len(sample.Data)
	if isWildcard(state) {
		est *= e.StateWildcardFactor
	} else {
		est *= e.StateFactor
	}
	if isWildcard(group) {
		est *= e.GroupWildcardFactor
	} else {
		est *= e.GroupFactor
	}

	return clamp(est, e.Min, e.Max)
}

func isWildcard(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, cache.Wildcard)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
