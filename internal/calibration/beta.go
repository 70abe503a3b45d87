package calibration

import "math"

const (
	probFloor = 1e-6
	probCeil  = 1 - 1e-6

	paramMin = 0.01
	paramMax = 10.0
)

// BetaParams is the fitted two-parameter Beta recalibration, serialized
// verbatim into calibration_params.params.
type BetaParams struct {
	A         float64 `json:"a"`
	B         float64 `json:"b"`
	BrierLoss float64 `json:"brier_loss"`
	FittedOn  int     `json:"fitted_on"`
}

// BetaTransform maps a raw probability through p^a / (p^a + (1-p)^b).
// a == b == 1 is the identity.
func BetaTransform(p, a, b float64) float64 {
	p = clipProb(p)
	num := math.Pow(p, a)
	return num / (num + math.Pow(1-p, b))
}

// FitBeta picks (a, b) in [0.01, 10] minimizing the Brier score of the
// transformed probabilities against observed outcomes. Grid search with
// window refinement; (1, 1) is evaluated first, so the fit is never worse
// than identity.
func FitBeta(probs, outcomes []float64) BetaParams {
	bestA, bestB := 1.0, 1.0
	best := brierLoss(probs, outcomes, bestA, bestB)

	loA, hiA := paramMin, paramMax
	loB, hiB := paramMin, paramMax
	const steps = 20
	for iter := 0; iter < 4; iter++ {
		stepA := (hiA - loA) / steps
		stepB := (hiB - loB) / steps
		for i := 0; i <= steps; i++ {
			for j := 0; j <= steps; j++ {
				a := loA + float64(i)*stepA
				b := loB + float64(j)*stepB
				if loss := brierLoss(probs, outcomes, a, b); loss < best {
					best, bestA, bestB = loss, a, b
				}
			}
		}
		spanA := (hiA - loA) / 4
		spanB := (hiB - loB) / 4
		loA, hiA = clipParam(bestA-spanA), clipParam(bestA+spanA)
		loB, hiB = clipParam(bestB-spanB), clipParam(bestB+spanB)
	}

	return BetaParams{A: bestA, B: bestB, BrierLoss: best}
}

func brierLoss(probs, outcomes []float64, a, b float64) float64 {
	if len(probs) == 0 {
		return 0
	}
	var sum float64
	for i, p := range probs {
		diff := BetaTransform(p, a, b) - outcomes[i]
		sum += diff * diff
	}
	return sum / float64(len(probs))
}

func clipProb(p float64) float64 {
	if p < probFloor {
		return probFloor
	}
	if p > probCeil {
		return probCeil
	}
	return p
}

func clipParam(v float64) float64 {
	if v < paramMin {
		return paramMin
	}
	if v > paramMax {
		return paramMax
	}
	return v
}
