package beacon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timecrypt/vdf/model/vdf"
	"github.com/timecrypt/vdf/utils/unittest"
)

// fakeSubmitter records submissions and hands out predictable instance ids.
type fakeSubmitter struct {
	submissions []submission
	fail        error
}

type submission struct {
	id    vdf.InstanceID
	input []byte
	t     uint64
}

func (f *fakeSubmitter) Submit(requester string, input []byte, t uint64, kind vdf.BackendKind, tag vdf.ApplicationTag) (vdf.InstanceID, error) {
	if f.fail != nil {
		return "", f.fail
	}
	id := vdf.NewInstanceID()
	f.submissions = append(f.submissions, submission{id: id, input: append([]byte(nil), input...), t: t})
	return id, nil
}

func (f *fakeSubmitter) last() submission {
	return f.submissions[len(f.submissions)-1]
}

func testBeacon(t *testing.T, threshold uint32) (*Beacon, *fakeSubmitter) {
	engine := &fakeSubmitter{}
	cfg := DefaultConfig([]byte("genesis"))
	cfg.Threshold = threshold
	cfg.RoundT = 1000
	b, err := New(unittest.Logger(), engine, cfg)
	require.NoError(t, err)
	return b, engine
}

// completeRound drives the current round's instance through verification
// and enough confirmations to chain it.
func completeRound(t *testing.T, b *Beacon, engine *fakeSubmitter, round uint64, output []byte) {
	b.OnInstanceVerified(vdf.Snapshot{
		ID:     engine.last().id,
		Status: vdf.StatusVerified,
		Output: output,
		Proof:  []byte("proof"),
	})
	r, ok := b.Round(round)
	require.True(t, ok)
	for i := r.Confirmations; i < r.Threshold; i++ {
		_, err := b.Confirm(round, string(rune('a'+i)))
		require.NoError(t, err)
	}
}

func TestChaining(t *testing.T) {
	b, engine := testBeacon(t, 3)

	round1, err := b.StartRound()
	require.NoError(t, err)
	require.Equal(t, uint64(1), round1)

	// round 1 consumes the genesis seed
	assert.Equal(t, []byte("genesis"), engine.last().input)
	assert.Equal(t, uint64(1000), engine.last().t)

	output1 := []byte("round-1-output")
	completeRound(t, b, engine, 1, output1)

	r1, ok := b.Round(1)
	require.True(t, ok)
	assert.Equal(t, vdf.BeaconChained, r1.Status)
	assert.True(t, r1.ConsensusReached)
	assert.False(t, r1.ChainedAt.IsZero())

	// round 2's input is exactly round 1's verified output
	round2, err := b.StartRound()
	require.NoError(t, err)
	require.Equal(t, uint64(2), round2)
	assert.Equal(t, output1, engine.last().input)

	r2, ok := b.Round(2)
	require.True(t, ok)
	assert.Equal(t, output1, r2.PreviousOutput)
}

func TestStartRoundRequiresChainedPredecessor(t *testing.T) {
	b, engine := testBeacon(t, 3)

	_, err := b.StartRound()
	require.NoError(t, err)

	// round 1 has no output yet
	_, err = b.StartRound()
	require.Error(t, err)

	// verified but below threshold is still not enough
	b.OnInstanceVerified(vdf.Snapshot{
		ID:     engine.last().id,
		Output: []byte("out"),
		Proof:  []byte("proof"),
	})
	_, err = b.StartRound()
	require.Error(t, err)

	_, err = b.Confirm(1, "b")
	require.NoError(t, err)
	_, err = b.Confirm(1, "c")
	require.NoError(t, err)

	_, err = b.StartRound()
	require.NoError(t, err)
}

func TestConfirmationsDeduplicated(t *testing.T) {
	b, engine := testBeacon(t, 3)

	_, err := b.StartRound()
	require.NoError(t, err)
	b.OnInstanceVerified(vdf.Snapshot{
		ID:     engine.last().id,
		Output: []byte("out"),
		Proof:  []byte("proof"),
	})

	// the engine verification already counts as one confirmation
	r, _ := b.Round(1)
	assert.Equal(t, uint32(1), r.Confirmations)

	// the same verifier cannot confirm twice
	for i := 0; i < 5; i++ {
		reached, err := b.Confirm(1, "dup")
		require.NoError(t, err)
		assert.False(t, reached)
	}
	r, _ = b.Round(1)
	assert.Equal(t, uint32(2), r.Confirmations)
	assert.False(t, r.ConsensusReached)

	reached, err := b.Confirm(1, "other")
	require.NoError(t, err)
	assert.True(t, reached)
}

func TestConfirmRequiresVerifiedOutput(t *testing.T) {
	b, _ := testBeacon(t, 3)

	_, err := b.Confirm(99, "a")
	require.Error(t, err)

	_, err = b.StartRound()
	require.NoError(t, err)
	_, err = b.Confirm(1, "a")
	require.Error(t, err)
}

func TestFailedRoundDoesNotAdvanceChain(t *testing.T) {
	b, engine := testBeacon(t, 1)

	_, err := b.StartRound()
	require.NoError(t, err)
	completeRound(t, b, engine, 1, []byte("output-1"))

	_, err = b.StartRound()
	require.NoError(t, err)

	b.OnInstanceFailed(vdf.Snapshot{
		ID:            engine.last().id,
		Status:        vdf.StatusFailed,
		FailureReason: "worker crash",
	})

	r2, ok := b.Round(2)
	require.True(t, ok)
	assert.Equal(t, vdf.BeaconFailed, r2.Status)

	// the latest verified output is still round 1's
	round, output, ok := b.LatestVerified()
	require.True(t, ok)
	assert.Equal(t, uint64(1), round)
	assert.Equal(t, []byte("output-1"), output)

	// the failed round restarts with the same chaining input
	restarted, err := b.StartRound()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), restarted)
	assert.Equal(t, []byte("output-1"), engine.last().input)
}

// gatedSubmitter blocks inside Submit until released, holding the caller in
// the window between round reservation and round recording.
type gatedSubmitter struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSubmitter) Submit(requester string, input []byte, t uint64, kind vdf.BackendKind, tag vdf.ApplicationTag) (vdf.InstanceID, error) {
	g.entered <- struct{}{}
	<-g.release
	return vdf.NewInstanceID(), nil
}

func TestConcurrentStartRoundsGetDistinctNumbers(t *testing.T) {
	engine := &gatedSubmitter{
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	cfg := DefaultConfig([]byte("genesis"))
	cfg.RoundT = 1000
	b, err := New(unittest.Logger(), engine, cfg)
	require.NoError(t, err)

	first := make(chan error, 1)
	go func() {
		_, err := b.StartRound()
		first <- err
	}()

	// wait until the first caller is parked inside Submit with round 1
	// reserved, then race a second caller against it
	unittest.RequireReturnsBefore(t, func() { <-engine.entered }, time.Second, "first submission not entered")

	_, err = b.StartRound()
	require.Error(t, err, "round 1 is reserved, a concurrent start must not reuse it")

	close(engine.release)
	unittest.RequireReturnsBefore(t, func() { require.NoError(t, <-first) }, time.Second, "first start did not finish")

	r1, ok := b.Round(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), r1.Round)
	assert.Equal(t, vdf.BeaconAwaitingCompletion, r1.Status)
	assert.NotEmpty(t, r1.InstanceID)

	_, ok = b.Round(2)
	assert.False(t, ok)
}

func TestStartRoundRollsBackOnSubmitError(t *testing.T) {
	engine := &fakeSubmitter{fail: assert.AnError}
	cfg := DefaultConfig([]byte("genesis"))
	cfg.RoundT = 1000
	b, err := New(unittest.Logger(), engine, cfg)
	require.NoError(t, err)

	_, err = b.StartRound()
	require.Error(t, err)
	_, ok := b.Round(1)
	assert.False(t, ok, "a failed submission must not leave a reserved round behind")

	// the reservation is released, so the round can be started again
	engine.fail = nil
	round, err := b.StartRound()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), round)
}

func TestLatestVerifiedEmpty(t *testing.T) {
	b, _ := testBeacon(t, 3)
	_, _, ok := b.LatestVerified()
	assert.False(t, ok)
}

func TestConfigValidation(t *testing.T) {
	log := unittest.Logger()
	engine := &fakeSubmitter{}

	_, err := New(log, engine, Config{Threshold: 3, RoundT: 1000})
	assert.True(t, vdf.IsInvalidParameterError(err))

	_, err = New(log, engine, Config{GenesisSeed: []byte("g"), RoundT: 1000})
	assert.True(t, vdf.IsInvalidParameterError(err))

	_, err = New(log, engine, Config{GenesisSeed: []byte("g"), Threshold: 3})
	assert.True(t, vdf.IsInvalidParameterError(err))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig([]byte("seed"))
	assert.Equal(t, uint32(3), cfg.Threshold)
	assert.Equal(t, 60*time.Second, cfg.Cadence)
	assert.Equal(t, vdf.BackendWesolowski, cfg.Kind)
}
