// Package timelock implements time-lock encryption on top of the VDF
// engine: data encrypted so it cannot be read before a chosen wall-clock
// delay, enforced by sequential computation rather than a trusted party.
//
// The construction seals the plaintext under a fresh random key, then wraps
// that key with a secret derived from the VDF input. The VDF's verified
// completion is what flips the record to unlocked; the plaintext is never
// stored and decryption happens on demand.
package timelock

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/timecrypt/vdf/model/vdf"
	"github.com/timecrypt/vdf/module"
)

const keySize = chacha20poly1305.KeySize

// ErrUnknownRecord is returned for a timelock id the service does not know.
var ErrUnknownRecord = errors.New("unknown timelock record")

// Submitter is the part of the engine the service drives.
type Submitter interface {
	Submit(requester string, input []byte, t uint64, kind vdf.BackendKind, tag vdf.ApplicationTag) (vdf.InstanceID, error)
}

// Service manages time-locked records.
type Service struct {
	log     zerolog.Logger
	engine  Submitter
	kind    vdf.BackendKind
	stepsPS uint64

	mu      sync.Mutex
	records map[vdf.TimeLockID]*vdf.TimeLockRecord
	byID    map[vdf.InstanceID]vdf.TimeLockID
}

var _ module.InstanceConsumer = (*Service)(nil)

// New constructs the service using the given backend for delay enforcement.
// Register it with the engine for the TimeLock tag.
func New(log zerolog.Logger, engine Submitter, bknd module.Backend) *Service {
	return &Service{
		log:     log.With().Str("component", "timelock").Logger(),
		engine:  engine,
		kind:    bknd.Kind(),
		stepsPS: bknd.StepsPerSecond(),
		records: make(map[vdf.TimeLockID]*vdf.TimeLockRecord),
		byID:    make(map[vdf.InstanceID]vdf.TimeLockID),
	}
}

// Create encrypts the plaintext and submits the unlocking VDF. The time
// parameter is calibrated so that honest sequential evaluation takes about
// lockSeconds of wall-clock time.
func (s *Service) Create(owner string, plaintext []byte, lockSeconds uint64, useCase string) (vdf.TimeLockID, error) {
	if len(plaintext) == 0 {
		return "", vdf.NewInvalidParameterError("plaintext", "must not be empty")
	}
	if lockSeconds == 0 {
		return "", vdf.NewInvalidParameterError("lockSeconds", "must be positive")
	}

	id := vdf.TimeLockID(uuid.New().String())

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("could not generate data key: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", fmt.Errorf("could not initialize cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("could not generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nonce, nonce, plaintext, []byte(id))

	// the VDF input commits to this record and the wrapped key, so the
	// unlocking computation cannot be reused across records
	keyDigest := sha256.Sum256(key)
	input := vdfInput(id, keyDigest[:])

	wrapped, err := wrapKey(key, input)
	if err != nil {
		return "", fmt.Errorf("could not wrap data key: %w", err)
	}
	zero(key)

	t := lockSeconds * s.stepsPS
	instanceID, err := s.engine.Submit(owner, input, t, s.kind, vdf.TagTimeLock)
	if err != nil {
		return "", fmt.Errorf("could not submit unlocking computation: %w", err)
	}

	s.mu.Lock()
	s.records[id] = &vdf.TimeLockRecord{
		ID:           id,
		Owner:        owner,
		Ciphertext:   ciphertext,
		WrappedKey:   wrapped,
		InstanceID:   instanceID,
		UseCase:      useCase,
		LockDuration: time.Duration(lockSeconds) * time.Second,
		CreatedAt:    time.Now(),
	}
	s.byID[instanceID] = id
	s.mu.Unlock()

	s.log.Info().
		Str("timelock", string(id)).
		Str("instance", string(instanceID)).
		Uint64("lock_seconds", lockSeconds).
		Msg("timelock created")

	return id, nil
}

// OnInstanceVerified unlocks the owning record. The flip happens exactly
// once; repeated notifications are ignored.
func (s *Service) OnInstanceVerified(snapshot vdf.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byID[snapshot.ID]
	if !ok {
		return
	}
	record := s.records[id]
	if record.Unlocked {
		return
	}
	record.Unlocked = true
	record.UnlockedAt = time.Now()
	s.log.Info().Str("timelock", string(id)).Msg("timelock opened")
}

// OnInstanceFailed leaves the record locked; the delay guarantee still
// holds, the record just needs a fresh unlocking computation.
func (s *Service) OnInstanceFailed(snapshot vdf.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byID[snapshot.ID]
	if !ok {
		return
	}
	s.log.Warn().
		Str("timelock", string(id)).
		Str("reason", snapshot.FailureReason).
		Msg("unlocking computation failed, record stays locked")
}

// Query reports whether the record is unlocked and, if so, decrypts and
// returns the plaintext. A locked record yields (false, nil, nil).
func (s *Service) Query(id vdf.TimeLockID) (bool, []byte, error) {
	s.mu.Lock()
	record, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return false, nil, ErrUnknownRecord
	}
	if !record.Unlocked {
		s.mu.Unlock()
		return false, nil, nil
	}
	ciphertext := append([]byte(nil), record.Ciphertext...)
	wrapped := append([]byte(nil), record.WrappedKey...)
	s.mu.Unlock()

	keyDigest, err := unwrapDigestless(wrapped)
	if err != nil {
		return true, nil, err
	}
	input := vdfInput(id, keyDigest)

	key, err := unwrapKey(wrapped, input)
	if err != nil {
		return true, nil, fmt.Errorf("could not unwrap data key: %w", err)
	}
	defer zero(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return true, nil, fmt.Errorf("could not initialize cipher: %w", err)
	}
	if len(ciphertext) < aead.NonceSize() {
		return true, nil, fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, []byte(id))
	if err != nil {
		return true, nil, fmt.Errorf("could not decrypt: %w", err)
	}
	return true, plaintext, nil
}

func vdfInput(id vdf.TimeLockID, keyDigest []byte) []byte {
	h := sha256.New()
	h.Write([]byte("timelock-v1"))
	h.Write([]byte(id))
	h.Write(keyDigest)
	return h.Sum(nil)
}

// wrapKey encrypts the data key under a secret derived from the VDF input
// and prepends the key digest so the input can be re-derived at unwrap
// time.
func wrapKey(key, input []byte) ([]byte, error) {
	wrapping, err := derive(input)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(wrapping)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(key)
	out := make([]byte, 0, sha256.Size+len(nonce)+len(key)+aead.Overhead())
	out = append(out, digest[:]...)
	out = aead.Seal(append(out, nonce...), nonce, key, nil)
	return out, nil
}

func unwrapDigestless(wrapped []byte) ([]byte, error) {
	if len(wrapped) < sha256.Size {
		return nil, fmt.Errorf("wrapped key too short")
	}
	return wrapped[:sha256.Size], nil
}

func unwrapKey(wrapped, input []byte) ([]byte, error) {
	wrapping, err := derive(input)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(wrapping)
	if err != nil {
		return nil, err
	}
	body := wrapped[sha256.Size:]
	if len(body) < aead.NonceSize() {
		return nil, fmt.Errorf("wrapped key too short")
	}
	nonce, sealed := body[:aead.NonceSize()], body[aead.NonceSize():]
	return aead.Open(nil, nonce, sealed, nil)
}

// derive expands the VDF input into the key-wrapping secret.
func derive(input []byte) ([]byte, error) {
	out := make([]byte, keySize)
	r := hkdf.New(sha256.New, input, nil, []byte("timelock-wrap-v1"))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
