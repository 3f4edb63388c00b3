// Package probability holds the numeric primitives shared by the propagation
// engines: clamping, log-odds, saturation and the Likert weight scale.
package probability

import "math"

const (
	// FactProbability is the value every Fact resolves to. It stays below 1
	// so its log-odds remain finite.
	FactProbability = 0.99

	// NeutralPrior is the baseline probability of an assertion with no evidence
	NeutralPrior = 0.5

	// DefaultClampEpsilon bounds probabilities away from 0 and 1 before any logit
	DefaultClampEpsilon = 0.01

	// DefaultSaturationK is the sharpness of the evidence saturation curve
	DefaultSaturationK = 1.0
)

// Clamp bounds p into [eps, 1-eps]. NaN maps to 0.5.
func Clamp(p, eps float64) float64 {
	if math.IsNaN(p) {
		return NeutralPrior
	}
	return math.Min(math.Max(p, eps), 1-eps)
}

// Clamp01 bounds x into [0, 1]. NaN maps to 0.
func Clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Min(math.Max(x, 0), 1)
}

// Logit returns ln(p / (1-p)). Callers clamp p first.
func Logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

// Logistic maps log-odds back to a probability without overflowing for
// large magnitudes.
func Logistic(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	z := math.Exp(x)
	return z / (1 + z)
}

// Saturation is the diminishing-returns transform 1 - e^(-k*x)
func Saturation(x, k float64) float64 {
	return 1 - math.Exp(-k*x)
}

// Finite01 sanitizes an engine output: NaN becomes def, everything else is
// clamped into [0, 1].
func Finite01(p, def float64) float64 {
	if math.IsNaN(p) {
		return def
	}
	return Clamp01(p)
}
