package risk

import "math"

// LadderLevel maps an EV band to a descriptive stake label. Bands are
// half-open: [MinEV, MaxEV).
type LadderLevel struct {
	Level string  `json:"level"`
	Label string  `json:"label"`
	MinEV float64 `json:"min_ev"`
	MaxEV float64 `json:"max_ev"`
	Units float64 `json:"units"`
}

// StakeLadder is the fixed EV tiering used on slips. Entries are ordered by
// ascending MinEV and cover the whole real line.
var StakeLadder = []LadderLevel{
	{Level: "pass", Label: "Pass", MinEV: math.Inf(-1), MaxEV: 0.03, Units: 0},
	{Level: "unit_half", Label: "0.5 Unit", MinEV: 0.03, MaxEV: 0.06, Units: 0.5},
	{Level: "unit_1", Label: "1 Unit", MinEV: 0.06, MaxEV: 0.10, Units: 1},
	{Level: "unit_2", Label: "2 Units", MinEV: 0.10, MaxEV: 0.15, Units: 2},
	{Level: "unit_3", Label: "3 Units", MinEV: 0.15, MaxEV: math.Inf(1), Units: 3},
}

// ResolveLadderLevel returns the ladder entry whose band contains ev.
func ResolveLadderLevel(ev float64) LadderLevel {
	for _, entry := range StakeLadder {
		if entry.MinEV <= ev && ev < entry.MaxEV {
			return entry
		}
	}
	return StakeLadder[0]
}
