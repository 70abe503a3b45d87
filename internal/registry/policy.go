package registry

import (
	"math"
)

// Metrics is the evaluation payload stored with every registry entry.
// ScoreHist carries the per-bin proportions of the model's training-time
// probability outputs, used later for drift comparison against live output.
type Metrics struct {
	CVBrierMean   float64   `json:"cv_brier_mean"`
	CVLogLossMean float64   `json:"cv_logloss_mean"`
	Composite     float64   `json:"composite"`
	TrainRows     int       `json:"train_rows,omitempty"`
	ScoreHist     []float64 `json:"score_hist,omitempty"`
}

// Policy holds the promotion thresholds. Zero weights fall back to the
// 0.7 Brier / 0.3 log-loss split so an unconfigured policy still ranks.
type Policy struct {
	BrierWeight   float64
	LogLossWeight float64
	PSIThreshold  float64
}

func (p Policy) weights() (float64, float64) {
	if p.BrierWeight == 0 && p.LogLossWeight == 0 {
		return 0.7, 0.3
	}
	return p.BrierWeight, p.LogLossWeight
}

// Composite collapses the cross-validation metrics into a single loss.
// Lower is better.
func (p Policy) Composite(m Metrics) float64 {
	wb, wl := p.weights()
	return wb*m.CVBrierMean + wl*m.CVLogLossMean
}

// ImprovesComposite reports whether the candidate's composite loss is
// strictly lower than the champion's. Ties keep the incumbent.
func (p Policy) ImprovesComposite(candidate, champion Metrics) bool {
	return p.Composite(candidate) < p.Composite(champion)
}

// DriftExceeds reports whether the population stability index between the
// champion's training distribution and the live distribution crosses the
// policy threshold. Missing or misaligned histograms count as no drift,
// so a broken feed never forces a champion swap.
func (p Policy) DriftExceeds(champHist, liveHist []float64) bool {
	threshold := p.PSIThreshold
	if threshold <= 0 {
		threshold = 0.2
	}
	return PSI(champHist, liveHist) > threshold
}

// PSI computes the population stability index between two aligned bin
// distributions. Inputs may be raw counts or proportions; both sides are
// normalised before comparison. Mismatched or empty inputs yield 0.
func PSI(expected, actual []float64) float64 {
	if len(expected) == 0 || len(expected) != len(actual) {
		return 0
	}
	e := normalizeBins(expected)
	a := normalizeBins(actual)
	if e == nil || a == nil {
		return 0
	}
	const floor = 1e-4
	var psi float64
	for i := range e {
		ei := math.Max(e[i], floor)
		ai := math.Max(a[i], floor)
		psi += (ai - ei) * math.Log(ai/ei)
	}
	return psi
}

// HistogramBins buckets probability scores into n equal-width bins over
// [0, 1] and returns per-bin proportions. Out-of-range scores land in the
// nearest edge bin.
func HistogramBins(scores []float64, n int) []float64 {
	if n <= 0 {
		n = 10
	}
	bins := make([]float64, n)
	if len(scores) == 0 {
		return bins
	}
	for _, score := range scores {
		idx := int(score * float64(n))
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		bins[idx]++
	}
	total := float64(len(scores))
	for i := range bins {
		bins[i] /= total
	}
	return bins
}

func normalizeBins(bins []float64) []float64 {
	var sum float64
	for _, b := range bins {
		if b < 0 {
			return nil
		}
		sum += b
	}
	if sum <= 0 {
		return nil
	}
	out := make([]float64, len(bins))
	for i, b := range bins {
		out[i] = b / sum
	}
	return out
}
