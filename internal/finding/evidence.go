package finding

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidWeight is returned for evidence weights outside (0,1].
var ErrInvalidWeight = errors.New("evidence weight must be within (0,1]")

// DefaultThreshold is the acceptance threshold used when none is configured.
const DefaultThreshold = 0.3

// scoreTolerance absorbs float rounding so that 0.1+0.2 passes a 0.3 threshold.
const scoreTolerance = 1e-9

// Evidence is one atomic reason contributing weight to a finding.
type Evidence struct {
	Reason string  `json:"reason"`
	Weight float64 `json:"weight"`
}

func NewEvidence(reason string, weight float64) (Evidence, error) {
	if !ValidWeight(weight) {
		return Evidence{}, fmt.Errorf("%w: %q has weight %v", ErrInvalidWeight, reason, weight)
	}
	return Evidence{Reason: reason, Weight: weight}, nil
}

func ValidWeight(w float64) bool {
	return w > 0 && w <= 1
}

// Score sums the evidence weights and clamps the result to [0,1]. Weights are
// summed in sorted order so the result does not depend on evidence order.
func Score(ev []Evidence) float64 {
	if len(ev) == 0 {
		return 0
	}
	weights := make([]float64, 0, len(ev))
	for _, e := range ev {
		weights = append(weights, e.Weight)
	}
	sort.Float64s(weights)

	var sum float64
	for _, w := range weights {
		sum += w
	}
	return clamp(sum, 0, 1)
}

// Accept reports whether ev is non-empty and scores at least threshold.
func Accept(ev []Evidence, threshold float64) bool {
	if len(ev) == 0 {
		return false
	}
	return Score(ev)+scoreTolerance >= threshold
}

// Trail joins the evidence reasons for display.
func Trail(ev []Evidence) string {
	reasons := make([]string, 0, len(ev))
	for _, e := range ev {
		reasons = append(reasons, e.Reason)
	}
	return strings.Join(reasons, "; ")
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
