package vdf

import "time"

// TimeLockID uniquely identifies one time-locked secret.
type TimeLockID string

// NewTimeLockID generates a fresh random timelock identifier.
func NewTimeLockID() TimeLockID {
	return TimeLockID(NewInstanceID())
}

// TimeLockRecord is one time-locked ciphertext whose key becomes available
// only after the associated VDF instance reaches Verified.
//
// Invariants: Ciphertext never mutates after creation; Unlocked flips
// false -> true exactly once. The decrypted plaintext is never stored.
type TimeLockRecord struct {
	ID    TimeLockID
	Owner string

	// Ciphertext is the AEAD-sealed secret.
	Ciphertext []byte

	// WrappedKey is the symmetric key wrapped against the VDF challenge.
	WrappedKey []byte

	// InstanceID is the VDF gating the unlock.
	InstanceID InstanceID

	// UseCase is a caller-supplied label, e.g. "SEALED_BID_AUCTION".
	UseCase string

	LockDuration time.Duration
	Unlocked     bool
	CreatedAt    time.Time
	UnlockedAt   time.Time
}
