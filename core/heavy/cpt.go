package heavy

import (
	"beliefgraph/core/graph"
	"beliefgraph/core/probability"
)

// ConditionalProbs returns P(target | parent counts as true) and
// P(target | parent counts as false) in percent, honoring Inverse.
func ConditionalProbs(cpt *graph.CPT) (parentTrue, parentFalse float64) {
	if cpt == nil {
		return 0, 0
	}
	condTrue := cpt.CondTrue.Or(0)
	condFalse := cpt.CondFalse.Or(0)
	if cpt.Inverse {
		return condFalse, condTrue
	}
	return condTrue, condFalse
}

// PassThrough mixes a CPT with the parent's probability:
// P(target) = P(t|p)*P(p) + P(t|!p)*(1-P(p)). Inputs outside their ranges are
// clamped, so the result is always in [0, 1].
func PassThrough(cpt *graph.CPT, parentProb float64) float64 {
	parentTrue, parentFalse := ConditionalProbs(cpt)
	pt := probability.Clamp01(parentTrue / 100)
	pf := probability.Clamp01(parentFalse / 100)
	pp := probability.Clamp01(parentProb)
	return probability.Finite01(pt*pp+pf*(1-pp), probability.NeutralPrior)
}
