package engine

import (
	"github.com/timecrypt/vdf/model/vdf"
	"github.com/timecrypt/vdf/module"
)

// rewardStepUnit is the time parameter that earns exactly the base reward.
const rewardStepUnit = 1_000_000

// StepRewardPolicy prices the computation reward proportionally to the time
// parameter, scaled by a per-backend multiplier reflecting the relative
// cost of one step. Deterministic and monotonic in T.
type StepRewardPolicy struct {
	Base        float64
	Multipliers map[vdf.BackendKind]float64
}

var _ module.RewardPolicy = (*StepRewardPolicy)(nil)

// DefaultRewardPolicy returns the standard pricing table.
func DefaultRewardPolicy() *StepRewardPolicy {
	return &StepRewardPolicy{
		Base: 1.0,
		Multipliers: map[vdf.BackendKind]float64{
			vdf.BackendWesolowski: 1.0,
			vdf.BackendHashChain:  2.0,
		},
	}
}

func (p *StepRewardPolicy) Reward(t uint64, kind vdf.BackendKind) float64 {
	multiplier, ok := p.Multipliers[kind]
	if !ok {
		multiplier = 1.0
	}
	return p.Base * float64(t) / float64(rewardStepUnit) * multiplier
}
