package probability

import (
	"fmt"
	"math"
)

const (
	// WeightMin is the smallest magnitude a modified edge weight may shrink to
	WeightMin = 0.01

	// ModifierBound is the magnitude positive modifiers nudge a weight towards
	ModifierBound = 0.99
)

var likertWeights = [...]float64{-1, -0.85, -0.60, -0.35, -0.15, 0.15, 0.35, 0.60, 0.85, 1}

// LikertToWeight maps a Likert step in [-5, 5] to an edge weight. Zero maps
// to the weakest supporting weight.
func LikertToWeight(l int) float64 {
	switch {
	case l < -5:
		l = -5
	case l > 5:
		l = 5
	}
	if l < 0 {
		return likertWeights[l+5]
	}
	if l > 0 {
		return likertWeights[l+4]
	}
	return 0.15
}

// WeightToLikert returns the 1..5 step closest to the weight's magnitude
func WeightToLikert(w float64) int {
	abs := math.Abs(w)
	best, bestDiff := 0, math.Inf(1)
	for i, candidate := range likertWeights[5:] {
		if diff := math.Abs(abs - candidate); diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best + 1
}

// LikertDescriptor names a Likert step
func LikertDescriptor(l int) string {
	switch l {
	case 1:
		return "Minimal"
	case 2:
		return "Small"
	case 3:
		return "Medium"
	case 4:
		return "Strong"
	case 5:
		return "Maximal"
	default:
		return fmt.Sprintf("Custom (%d)", l)
	}
}

// NudgeToBoundMultiplier returns the factor that moves |weight| a fraction
// |likert|/5 of the way towards bound (positive likert) or towards zero
// (negative likert). The factor is rounded to three decimals.
func NudgeToBoundMultiplier(weight float64, likert int, bound float64) float64 {
	l := likert
	if l < -5 {
		l = -5
	} else if l > 5 {
		l = 5
	}
	abs := math.Abs(weight)
	if abs == 0 || l == 0 {
		return 1
	}
	frac := math.Abs(float64(l)) / 5
	var desired float64
	if l > 0 {
		desired = (1-frac)*abs + frac*bound
	} else {
		desired = (1 - frac) * abs
	}
	m := desired / abs
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return 1
	}
	return math.Round(m*1000) / 1000
}

// ApplyModifiers nudges a weight magnitude by each Likert step in order and
// floors the result at WeightMin. A zero weight stays zero.
func ApplyModifiers(weight float64, likerts []int) float64 {
	w := math.Abs(weight)
	if w == 0 {
		return 0
	}
	for _, l := range likerts {
		w *= NudgeToBoundMultiplier(w, l, ModifierBound)
	}
	if w < WeightMin {
		w = WeightMin
	}
	return w
}

// RobustnessLabel is the qualitative name of a robustness value in [0, 1]
func RobustnessLabel(r float64) string {
	switch {
	case r < 0.15:
		return "Minimal"
	case r < 0.35:
		return "Low"
	case r < 0.60:
		return "Moderate"
	case r < 0.85:
		return "High"
	default:
		return "Very High"
	}
}
