package risk

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"
)

// BinaryEntropy returns H(p) in nats. Max is ln(2), about 0.693, at p=0.5.
func BinaryEntropy(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	return -(p*math.Log(p) + (1-p)*math.Log(1-p))
}

// PassesEntropyGate reports whether the prediction is confident enough.
// Near-coin-flip probabilities carry too much entropy to be worth staking.
func PassesEntropyGate(p, maxEntropyNats float64) bool {
	return BinaryEntropy(p) <= maxEntropyNats
}

// PassesEdgeFloor reports whether the expected value clears the minimum
// edge. The boundary itself passes.
func PassesEdgeFloor(ev, minEdge float64) bool {
	return ev >= minEdge
}

// RoundExposure caps cumulative stake within a round to a fraction of
// bankroll. Rounds are independent budgets. Safe for concurrent use.
type RoundExposure struct {
	mu     sync.Mutex
	cap    decimal.Decimal
	staked map[int]decimal.Decimal
}

// NewRoundExposure builds a tracker with budget bankroll*maxFrac per round.
func NewRoundExposure(bankroll decimal.Decimal, maxFrac float64) *RoundExposure {
	return &RoundExposure{
		cap:    bankroll.Mul(decimal.NewFromFloat(maxFrac)),
		staked: map[int]decimal.Decimal{},
	}
}

// Remaining returns the unspent stake budget for a round.
func (t *RoundExposure) Remaining(round int) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked(round)
}

func (t *RoundExposure) remainingLocked(round int) decimal.Decimal {
	rem := t.cap.Sub(t.staked[round])
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// CanStake reports whether the full stake fits the round budget.
func (t *RoundExposure) CanStake(round int, stake decimal.Decimal) bool {
	return stake.LessThanOrEqual(t.Remaining(round))
}

// Record charges a placed stake against the round budget.
func (t *RoundExposure) Record(round int, stake decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.staked[round] = t.staked[round].Add(stake)
}

// ClampStake returns the smaller of stake and the remaining round budget.
func (t *RoundExposure) ClampStake(round int, stake decimal.Decimal) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	rem := t.remainingLocked(round)
	if stake.LessThanOrEqual(rem) {
		return stake
	}
	return rem
}
