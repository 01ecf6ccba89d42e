package vdf

import "time"

// BeaconStatus is the per-round state machine of the randomness beacon.
//
//	Submitted -> AwaitingCompletion -> Verified -> Chained
//	                                -> Failed
type BeaconStatus string

const (
	BeaconSubmitted          BeaconStatus = "SUBMITTED"
	BeaconAwaitingCompletion BeaconStatus = "AWAITING_COMPLETION"
	BeaconVerified           BeaconStatus = "VERIFIED"
	BeaconChained            BeaconStatus = "CHAINED"
	BeaconFailed             BeaconStatus = "FAILED"
)

// BeaconRound is one round of the chained randomness beacon.
//
// The defining invariant is that round N's VDF input is a deterministic
// function of round N-1's verified output (the genesis seed for round 1).
// No party can bias round N+1 without having already committed to round N,
// and no party can predict the output before finishing T sequential steps.
type BeaconRound struct {
	// Round is the strictly increasing, unique round number, starting at 1.
	Round uint64

	// InstanceID is the VDF instance producing this round's output.
	InstanceID InstanceID

	// PreviousOutput is round N-1's verified output, or the genesis seed
	// for round 1.
	PreviousOutput []byte

	// Output and Proof are set once the VDF is verified.
	Output []byte
	Proof  []byte

	// Threshold is the number of independent confirmations required before
	// the round reaches consensus.
	Threshold uint32

	// Confirmations counts distinct verifiers that confirmed the round.
	Confirmations uint32

	// ConsensusReached is set once Confirmations >= Threshold.
	ConsensusReached bool

	Status    BeaconStatus
	StartedAt time.Time
	ChainedAt time.Time
}
