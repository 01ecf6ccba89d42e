package vdf

import "time"

// ProtectionID uniquely identifies one MEV protection record.
type ProtectionID string

// NewProtectionID generates a fresh random protection identifier.
func NewProtectionID() ProtectionID {
	return ProtectionID(NewInstanceID())
}

// ProtectionStatus is the lifecycle of an MEV protection record.
//
//	Active -> Included
//	Active -> Expired
type ProtectionStatus string

const (
	ProtectionActive   ProtectionStatus = "ACTIVE"
	ProtectionIncluded ProtectionStatus = "INCLUDED"
	ProtectionExpired  ProtectionStatus = "EXPIRED"
)

// ProtectionRecord commits to a transaction reference and fixes its final
// inclusion order only after a VDF completes. While the record is Active
// nobody, including the block assembler, can know the future position, so
// there is nothing to condition a front-running or sandwich attack on.
//
// Invariant: Position is unset while Active and becomes set exactly once,
// deterministically derived from the completed VDF output, on the
// transition to Included.
type ProtectionRecord struct {
	ID    ProtectionID
	TxRef string

	// Commitment binds the record to the transaction reference.
	Commitment []byte

	MinDelay time.Duration
	MaxDelay time.Duration

	// InstanceID is the ordering VDF.
	InstanceID InstanceID

	// Position is the final ordering position; valid only when PositionSet.
	Position    uint64
	PositionSet bool

	Status    ProtectionStatus
	CreatedAt time.Time

	// Deadline is MaxDelay plus a grace window after creation; an Active
	// record past its deadline transitions to Expired and the caller must
	// resubmit.
	Deadline time.Time
}
