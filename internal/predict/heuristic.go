package predict

import (
	"math"

	"nrlengine/internal/repository"
)

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// HeuristicProb is the logistic baseline on the rating gap with modest
// injury, rest and form adjustments. It is the floor the blend degrades to
// when no champion model is available.
func HeuristicProb(row repository.FeatureRow) float64 {
	injuries := row.HomeInjuries - row.AwayInjuries
	rest := row.HomeRestDays - row.AwayRestDays
	form := row.HomeForm - row.AwayForm

	x := row.RatingDiff()/200.0 - 0.08*injuries + 0.04*rest + 0.9*form
	return clipProb(sigmoid(x))
}

// Model outputs stay inside [0.01, 0.99] so downstream odds math never sees
// a certainty.
func clipProb(p float64) float64 {
	if p < 0.01 {
		return 0.01
	}
	if p > 0.99 {
		return 0.99
	}
	return p
}
