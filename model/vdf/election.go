package vdf

import "time"

// ElectionID uniquely identifies one leader election round.
type ElectionID string

// NewElectionID generates a fresh random election identifier.
func NewElectionID() ElectionID {
	return ElectionID(NewInstanceID())
}

// Candidate is one election participant with a non-negative stake weight.
type Candidate struct {
	Address string
	Weight  uint64
}

// SeedSource records where an election's randomness came from, so that
// consumers can distinguish beacon-backed elections from lower-assurance
// locally seeded ones.
type SeedSource string

const (
	// SeedSourceBeacon means the seed is the latest verified beacon output.
	SeedSourceBeacon SeedSource = "BEACON"

	// SeedSourceLocal means no verified beacon round was available and the
	// seed was drawn from local entropy. Lower assurance: the seeding party
	// must be trusted not to grind.
	SeedSourceLocal SeedSource = "LOCAL"
)

// ElectionRound records one stake-weighted leader election. Selection is a
// pure deterministic function of (candidates, weights, seed): identical
// inputs always yield the identical leader.
type ElectionRound struct {
	ID    ElectionID
	Epoch uint64

	Candidates []Candidate

	// Seed is the randomness the selection was derived from, after optional
	// VDF strengthening.
	Seed       []byte
	SeedSource SeedSource

	// RawSeed is the pre-strengthening randomness (the beacon output or the
	// local entropy). When strengthening is enabled, StrengthenT and
	// StrengtheningProof let a third party check that
	// Verify(RawSeed, StrengthenT, Seed, StrengtheningProof) holds, closing
	// the audit chain from beacon output to elected leader.
	RawSeed            []byte
	StrengthenT        uint64
	StrengtheningProof []byte

	// Leader is the elected candidate's address; LeaderIndex its position
	// in the candidate list.
	Leader      string
	LeaderIndex int

	// Probability is the leader's normalized weight.
	Probability float64

	// Proof allows third parties to recompute the selection.
	Proof []byte

	Purpose   string
	ElectedAt time.Time
}
