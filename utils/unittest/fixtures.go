package unittest

import (
	"crypto/rand"
	"time"

	"github.com/timecrypt/vdf/model/vdf"
)

// SeedFixture returns n random bytes.
func SeedFixture(n int) []byte {
	seed := make([]byte, n)
	_, _ = rand.Read(seed)
	return seed
}

// SnapshotFixture returns a verified snapshot with randomized output and
// proof, customizable through options.
func SnapshotFixture(opts ...func(*vdf.Snapshot)) vdf.Snapshot {
	now := time.Now().UTC()
	snapshot := vdf.Snapshot{
		ID: vdf.NewInstanceID(),
		Params: vdf.Parameters{
			Kind:         vdf.BackendHashChain,
			T:            1000,
			SecurityBits: 128,
			Group:        "SHA-256 chain",
			QuantumSafe:  true,
		},
		Requester:   "tester",
		Tag:         vdf.TagGeneral,
		Input:       SeedFixture(32),
		Output:      SeedFixture(32),
		Proof:       SeedFixture(64),
		Status:      vdf.StatusVerified,
		Progress:    1,
		Reward:      0.002,
		SubmittedAt: now.Add(-time.Second),
		StartedAt:   now.Add(-900 * time.Millisecond),
		FinishedAt:  now.Add(-100 * time.Millisecond),
		VerifiedAt:  now,
		Duration:    800 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&snapshot)
	}
	return snapshot
}

// WithStatus sets the snapshot status.
func WithStatus(status vdf.Status) func(*vdf.Snapshot) {
	return func(s *vdf.Snapshot) {
		s.Status = status
	}
}
