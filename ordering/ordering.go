// Package ordering implements MEV-protected transaction ordering. A
// record's final position is derived from a VDF output, so it is unknowable
// to everyone, including the block assembler, until the sequential delay
// has elapsed.
package ordering

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/timecrypt/vdf/model/vdf"
	"github.com/timecrypt/vdf/module"
)

// ErrUnknownProtection is returned for an id the service does not know.
var ErrUnknownProtection = errors.New("unknown protection record")

// Submitter is the part of the engine the service drives.
type Submitter interface {
	Submit(requester string, input []byte, t uint64, kind vdf.BackendKind, tag vdf.ApplicationTag) (vdf.InstanceID, error)
}

// Config parameterizes the ordering service.
type Config struct {
	// OrderSpace is the size of the position space.
	OrderSpace uint64

	// Grace extends the deadline beyond MaxDelay before an Active record
	// expires.
	Grace time.Duration

	// SweepInterval is how often Run scans for stale records.
	SweepInterval time.Duration
}

// DefaultConfig returns the standard ordering parameters.
func DefaultConfig() Config {
	return Config{
		OrderSpace:    1_000_000,
		Grace:         5 * time.Minute,
		SweepInterval: 30 * time.Second,
	}
}

// Service manages MEV protection records.
type Service struct {
	log     zerolog.Logger
	engine  Submitter
	kind    vdf.BackendKind
	stepsPS uint64
	cfg     Config

	mu      sync.Mutex
	records map[vdf.ProtectionID]*vdf.ProtectionRecord
	byID    map[vdf.InstanceID]vdf.ProtectionID
}

var _ module.InstanceConsumer = (*Service)(nil)

// New constructs the service using the given backend for delay enforcement.
// Register it with the engine for the MEVProtection tag.
func New(log zerolog.Logger, engine Submitter, bknd module.Backend, cfg Config) *Service {
	return &Service{
		log:     log.With().Str("component", "mev_ordering").Logger(),
		engine:  engine,
		kind:    bknd.Kind(),
		stepsPS: bknd.StepsPerSecond(),
		cfg:     cfg,
		records: make(map[vdf.ProtectionID]*vdf.ProtectionRecord),
		byID:    make(map[vdf.InstanceID]vdf.ProtectionID),
	}
}

// Protect commits to the transaction reference and submits the ordering
// VDF. The time parameter targets the midpoint of [minDelay, maxDelay].
func (s *Service) Protect(txRef string, minDelay, maxDelay time.Duration) (vdf.ProtectionID, error) {
	if txRef == "" {
		return "", vdf.NewInvalidParameterError("txRef", "must not be empty")
	}
	if minDelay <= 0 {
		return "", vdf.NewInvalidParameterError("minDelay", "must be positive")
	}
	if maxDelay < minDelay {
		return "", vdf.NewInvalidParameterError("maxDelay", "must be at least minDelay")
	}

	id := vdf.NewProtectionID()
	commitment := commit(id, txRef)

	target := (minDelay + maxDelay) / 2
	t := uint64(target.Seconds() * float64(s.stepsPS))
	if t == 0 {
		t = 1
	}

	instanceID, err := s.engine.Submit("ordering", commitment, t, s.kind, vdf.TagMEVProtection)
	if err != nil {
		return "", err
	}

	now := time.Now()
	s.mu.Lock()
	s.records[id] = &vdf.ProtectionRecord{
		ID:         id,
		TxRef:      txRef,
		Commitment: commitment,
		MinDelay:   minDelay,
		MaxDelay:   maxDelay,
		InstanceID: instanceID,
		Status:     vdf.ProtectionActive,
		CreatedAt:  now,
		Deadline:   now.Add(maxDelay + s.cfg.Grace),
	}
	s.byID[instanceID] = id
	s.mu.Unlock()

	s.log.Info().
		Str("protection", string(id)).
		Str("instance", string(instanceID)).
		Dur("target_delay", target).
		Msg("protection created")

	return id, nil
}

// OnInstanceVerified fixes the record's position from the VDF output. The
// position is set exactly once; records already Expired stay Expired.
func (s *Service) OnInstanceVerified(snapshot vdf.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byID[snapshot.ID]
	if !ok {
		return
	}
	record := s.records[id]
	if record.Status != vdf.ProtectionActive || len(snapshot.Output) < 8 {
		return
	}
	record.Position = position(snapshot.Output, s.cfg.OrderSpace)
	record.PositionSet = true
	record.Status = vdf.ProtectionIncluded

	s.log.Info().
		Str("protection", string(id)).
		Uint64("position", record.Position).
		Msg("ordering position fixed")
}

// OnInstanceFailed expires the record so the caller can resubmit.
func (s *Service) OnInstanceFailed(snapshot vdf.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byID[snapshot.ID]
	if !ok {
		return
	}
	record := s.records[id]
	if record.Status != vdf.ProtectionActive {
		return
	}
	record.Status = vdf.ProtectionExpired
	s.log.Warn().
		Str("protection", string(id)).
		Str("reason", snapshot.FailureReason).
		Msg("ordering computation failed, protection expired")
}

// ExpireStale transitions Active records past their deadline to Expired and
// returns how many were expired.
func (s *Service) ExpireStale(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for _, record := range s.records {
		if record.Status == vdf.ProtectionActive && now.After(record.Deadline) {
			record.Status = vdf.ProtectionExpired
			expired++
			s.log.Warn().Str("protection", string(record.ID)).Msg("protection expired")
		}
	}
	return expired
}

// Query returns the record's status and position.
func (s *Service) Query(id vdf.ProtectionID) (vdf.ProtectionStatus, uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return "", 0, false, ErrUnknownProtection
	}
	return record.Status, record.Position, record.PositionSet, nil
}

// Run sweeps stale records on an interval until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ExpireStale(time.Now())
		}
	}
}

func commit(id vdf.ProtectionID, txRef string) []byte {
	h := sha256.New()
	h.Write([]byte("mev-protect-v1"))
	h.Write([]byte(id))
	h.Write([]byte(txRef))
	return h.Sum(nil)
}

// position maps the first eight output bytes into the order space.
func position(output []byte, orderSpace uint64) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(output[i])
	}
	return v % orderSpace
}
