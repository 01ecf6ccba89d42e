package module

import "github.com/timecrypt/vdf/model/vdf"

// InstanceConsumer receives lifecycle notifications for VDF instances
// carrying the application tag the consumer registered for.
//
// Callbacks are invoked from the engine's internal goroutines with an
// immutable snapshot; implementations must not block for long and must
// advance their own state machines only on OnInstanceVerified.
type InstanceConsumer interface {
	// OnInstanceVerified is called exactly once, after the instance's proof
	// has been checked and the instance promoted to Verified.
	OnInstanceVerified(snapshot vdf.Snapshot)

	// OnInstanceFailed is called when an instance exhausts its retry budget
	// and becomes terminally Failed. Consumers treat this as "this
	// round/record did not mature".
	OnInstanceFailed(snapshot vdf.Snapshot)
}

// RewardPolicy prices the computation reward for a submission. Pricing is
// economic policy, not a correctness concern: it must be deterministic and
// monotonic in t, and nothing in the engine core consults it.
type RewardPolicy interface {
	Reward(t uint64, kind vdf.BackendKind) float64
}
