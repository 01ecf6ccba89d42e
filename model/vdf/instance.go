package vdf

import (
	"time"

	"github.com/google/uuid"
)

// InstanceID uniquely identifies one VDF instance within an engine.
type InstanceID string

// NewInstanceID generates a fresh random instance identifier.
func NewInstanceID() InstanceID {
	return InstanceID(uuid.New().String())
}

// ApplicationTag names the consumer a VDF instance belongs to. The engine
// routes completion and verification notifications by tag.
type ApplicationTag string

const (
	TagRandomness     ApplicationTag = "RANDOMNESS"
	TagTimeLock       ApplicationTag = "TIME_LOCK"
	TagLeaderElection ApplicationTag = "LEADER_ELECTION"
	TagMEVProtection  ApplicationTag = "MEV_PROTECTION"
	TagGeneral        ApplicationTag = "GENERAL"
)

// Status is the lifecycle state of a VDF instance.
//
// Transitions are monotonic:
//
//	Pending -> Computing -> Completed -> Verified
//	Pending -> Cancelled
//	Computing -> Failed
//
// An instance is immutable once Verified; Failed and Cancelled are terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusComputing Status = "COMPUTING"
	StatusCompleted Status = "COMPLETED"
	StatusVerified  Status = "VERIFIED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal returns true if no further transitions are possible from s,
// other than the optional Completed -> Verified promotion.
func (s Status) Terminal() bool {
	switch s {
	case StatusVerified, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the transition s -> next is allowed by the
// instance state machine.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusComputing || next == StatusCancelled
	case StatusComputing:
		return next == StatusCompleted || next == StatusFailed
	case StatusCompleted:
		return next == StatusVerified
	}
	return false
}

// Instance is the engine-internal record of one VDF evaluation. The engine
// exclusively owns and mutates instances; all other components operate on
// immutable Snapshots obtained via Query or consumer notifications.
type Instance struct {
	ID        InstanceID
	Params    Parameters
	Requester string
	Tag       ApplicationTag

	// Input is the challenge the sequential computation starts from.
	Input []byte

	// Output and Proof are set only when Status is Completed or Verified.
	Output []byte
	Proof  []byte

	Status   Status
	Progress float64 // advisory fraction in [0,1]

	// Reward is the deterministic computation reward priced at submission.
	Reward float64

	// FailureReason records the final error of a Failed instance.
	FailureReason string

	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	VerifiedAt  time.Time
}

// Duration returns the actual wall-clock computation time, or zero if the
// instance has not finished computing.
func (i *Instance) Duration() time.Duration {
	if i.StartedAt.IsZero() || i.FinishedAt.IsZero() {
		return 0
	}
	return i.FinishedAt.Sub(i.StartedAt)
}

// Snapshot returns an immutable copy of the instance safe to hand to
// readers outside the engine's lock.
func (i *Instance) Snapshot() Snapshot {
	snap := Snapshot{
		ID:            i.ID,
		Params:        i.Params,
		Requester:     i.Requester,
		Tag:           i.Tag,
		Input:         clone(i.Input),
		Status:        i.Status,
		Progress:      i.Progress,
		Reward:        i.Reward,
		FailureReason: i.FailureReason,
		SubmittedAt:   i.SubmittedAt,
		StartedAt:     i.StartedAt,
		FinishedAt:    i.FinishedAt,
		VerifiedAt:    i.VerifiedAt,
		Duration:      i.Duration(),
	}
	// output and proof are exposed only once the instance has completed, so
	// that no consumer can base a decision on partial in-progress state
	if i.Status == StatusCompleted || i.Status == StatusVerified {
		snap.Output = clone(i.Output)
		snap.Proof = clone(i.Proof)
	}
	return snap
}

// Snapshot is a read-only view of an instance at one point in time.
type Snapshot struct {
	ID            InstanceID
	Params        Parameters
	Requester     string
	Tag           ApplicationTag
	Input         []byte
	Output        []byte
	Proof         []byte
	Status        Status
	Progress      float64
	Reward        float64
	FailureReason string
	SubmittedAt   time.Time
	StartedAt     time.Time
	FinishedAt    time.Time
	VerifiedAt    time.Time
	Duration      time.Duration
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
