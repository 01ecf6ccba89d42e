package vdf

// BackendKind identifies one concrete VDF construction. Backends are
// interchangeable behind the module.Backend interface; the kind is bound to
// an instance at submission time and never changes afterwards.
type BackendKind string

const (
	// BackendWesolowski is the reference construction: repeated squaring in
	// an RSA group with Wesolowski proofs of correct exponentiation.
	BackendWesolowski BackendKind = "wesolowski"

	// BackendHashChain is the quantum-hardened construction: an iterated
	// hash chain whose security rests only on the preimage resistance of the
	// underlying hash, not on factoring or discrete logarithms.
	BackendHashChain BackendKind = "hashchain"
)

// QuantumSafe reports whether the construction remains sequential and sound
// against an adversary with a large-scale quantum computer.
func (k BackendKind) QuantumSafe() bool {
	return k == BackendHashChain
}

// Valid returns true for the backend kinds known to this build.
func (k BackendKind) Valid() bool {
	switch k {
	case BackendWesolowski, BackendHashChain:
		return true
	}
	return false
}

// Parameters fully determine one VDF evaluation. They are immutable once
// bound to an instance.
type Parameters struct {
	// Kind selects the construction.
	Kind BackendKind

	// T is the time parameter: the number of strictly sequential steps the
	// evaluator must perform. T controls the minimum real-world delay.
	T uint64

	// SecurityBits is the soundness level of the proof system.
	SecurityBits uint32

	// Group describes the algebraic structure the construction operates in
	// (e.g. "RSA-2048 challenge modulus", "SHA-256 chain"). Informational.
	Group string

	// QuantumSafe mirrors Kind.QuantumSafe() and is recorded so that
	// archived snapshots remain self-describing.
	QuantumSafe bool
}
