package ordering

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timecrypt/vdf/model/vdf"
	"github.com/timecrypt/vdf/module"
	"github.com/timecrypt/vdf/utils/unittest"
)

type fakeSubmitter struct {
	lastID    vdf.InstanceID
	lastInput []byte
	lastT     uint64
}

func (f *fakeSubmitter) Submit(requester string, input []byte, t uint64, kind vdf.BackendKind, tag vdf.ApplicationTag) (vdf.InstanceID, error) {
	f.lastID = vdf.NewInstanceID()
	f.lastInput = append([]byte(nil), input...)
	f.lastT = t
	return f.lastID, nil
}

type fixedRateBackend struct {
	rate uint64
}

func (b *fixedRateBackend) Kind() vdf.BackendKind  { return vdf.BackendHashChain }
func (b *fixedRateBackend) StepsPerSecond() uint64 { return b.rate }
func (b *fixedRateBackend) Evaluate(context.Context, []byte, uint64, module.ProgressFunc) ([]byte, []byte, error) {
	panic("not used")
}
func (b *fixedRateBackend) Verify([]byte, uint64, []byte, []byte) bool { panic("not used") }

func testService(t *testing.T) (*Service, *fakeSubmitter) {
	engine := &fakeSubmitter{}
	s := New(unittest.Logger(), engine, &fixedRateBackend{rate: 1000}, DefaultConfig())
	return s, engine
}

func TestProtectFixesPositionOnVerification(t *testing.T) {
	s, engine := testService(t)

	id, err := s.Protect("tx-123", 2*time.Second, 4*time.Second)
	require.NoError(t, err)

	// T targets the midpoint of the delay window
	assert.Equal(t, uint64(3000), engine.lastT)

	status, _, positionSet, err := s.Query(id)
	require.NoError(t, err)
	assert.Equal(t, vdf.ProtectionActive, status)
	assert.False(t, positionSet)

	output := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x12, 0xd6, 0x87} // 1234567
	s.OnInstanceVerified(vdf.Snapshot{ID: engine.lastID, Output: output})

	status, position, positionSet, err := s.Query(id)
	require.NoError(t, err)
	assert.Equal(t, vdf.ProtectionIncluded, status)
	assert.True(t, positionSet)
	assert.Equal(t, uint64(234567), position) // 1234567 mod 1e6

	// duplicate notifications cannot move the position
	other := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	s.OnInstanceVerified(vdf.Snapshot{ID: engine.lastID, Output: other})
	_, position, _, err = s.Query(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(234567), position)
}

func TestProtectValidation(t *testing.T) {
	s, _ := testService(t)

	_, err := s.Protect("", time.Second, 2*time.Second)
	assert.True(t, vdf.IsInvalidParameterError(err))

	_, err = s.Protect("tx", 0, time.Second)
	assert.True(t, vdf.IsInvalidParameterError(err))

	_, err = s.Protect("tx", 2*time.Second, time.Second)
	assert.True(t, vdf.IsInvalidParameterError(err))
}

func TestExpireStale(t *testing.T) {
	s, _ := testService(t)

	id, err := s.Protect("tx-1", time.Second, 2*time.Second)
	require.NoError(t, err)

	// before the deadline nothing expires
	assert.Equal(t, 0, s.ExpireStale(time.Now()))

	// past maxDelay + grace the record expires
	expired := s.ExpireStale(time.Now().Add(2*time.Second + s.cfg.Grace + time.Second))
	assert.Equal(t, 1, expired)

	status, _, positionSet, err := s.Query(id)
	require.NoError(t, err)
	assert.Equal(t, vdf.ProtectionExpired, status)
	assert.False(t, positionSet)
}

func TestExpiredRecordGetsNoPosition(t *testing.T) {
	s, engine := testService(t)

	id, err := s.Protect("tx-1", time.Second, 2*time.Second)
	require.NoError(t, err)

	s.ExpireStale(time.Now().Add(time.Hour))

	// a late verification must not resurrect the record
	s.OnInstanceVerified(vdf.Snapshot{ID: engine.lastID, Output: make([]byte, 32)})

	status, _, positionSet, err := s.Query(id)
	require.NoError(t, err)
	assert.Equal(t, vdf.ProtectionExpired, status)
	assert.False(t, positionSet)
}

func TestFailedComputationExpiresRecord(t *testing.T) {
	s, engine := testService(t)

	id, err := s.Protect("tx-1", time.Second, 2*time.Second)
	require.NoError(t, err)

	s.OnInstanceFailed(vdf.Snapshot{ID: engine.lastID, FailureReason: "fault"})

	status, _, _, err := s.Query(id)
	require.NoError(t, err)
	assert.Equal(t, vdf.ProtectionExpired, status)
}

func TestQueryUnknownProtection(t *testing.T) {
	s, _ := testService(t)

	_, _, _, err := s.Query("no-such-id")
	require.ErrorIs(t, err, ErrUnknownProtection)
}

func TestCommitmentBindsTxRef(t *testing.T) {
	s, engine := testService(t)

	_, err := s.Protect("tx-1", time.Second, 2*time.Second)
	require.NoError(t, err)
	first := append([]byte(nil), engine.lastInput...)

	_, err = s.Protect("tx-2", time.Second, 2*time.Second)
	require.NoError(t, err)

	assert.NotEqual(t, first, engine.lastInput)
}
