// Package beacon implements the chained randomness beacon on top of the VDF
// engine. Each round's VDF input is the previous round's verified output,
// so the chain is unbiasable once a round is committed and unpredictable
// until its T sequential steps have elapsed.
package beacon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/timecrypt/vdf/model/vdf"
	"github.com/timecrypt/vdf/module"
)

// Config parameterizes the beacon.
type Config struct {
	// GenesisSeed is the input of round 1.
	GenesisSeed []byte

	// Threshold is the number of distinct confirmations a round needs to
	// reach consensus.
	Threshold uint32

	// RoundT is the time parameter of each round's VDF.
	RoundT uint64

	// Kind selects the backend for round VDFs.
	Kind vdf.BackendKind

	// Cadence is the interval at which Run starts new rounds.
	Cadence time.Duration
}

// DefaultConfig returns the standard beacon parameters.
func DefaultConfig(genesisSeed []byte) Config {
	return Config{
		GenesisSeed: genesisSeed,
		Threshold:   3,
		RoundT:      1_000_000,
		Kind:        vdf.BackendWesolowski,
		Cadence:     60 * time.Second,
	}
}

// Submitter is the part of the engine the beacon drives.
type Submitter interface {
	Submit(requester string, input []byte, t uint64, kind vdf.BackendKind, tag vdf.ApplicationTag) (vdf.InstanceID, error)
}

// Beacon produces the chained randomness rounds.
type Beacon struct {
	log    zerolog.Logger
	engine Submitter
	cfg    Config

	mu        sync.Mutex
	rounds    map[uint64]*vdf.BeaconRound
	byID      map[vdf.InstanceID]uint64
	confirmed map[uint64]map[string]struct{}
	next      uint64 // next round number to start
}

var _ module.InstanceConsumer = (*Beacon)(nil)

// New constructs a beacon. Register it with the engine for the Randomness
// tag before starting rounds.
func New(log zerolog.Logger, engine Submitter, cfg Config) (*Beacon, error) {
	if len(cfg.GenesisSeed) == 0 {
		return nil, vdf.NewInvalidParameterError("genesisSeed", "must not be empty")
	}
	if cfg.Threshold == 0 {
		return nil, vdf.NewInvalidParameterError("threshold", "must be positive")
	}
	if cfg.RoundT == 0 {
		return nil, vdf.NewInvalidParameterError("roundT", "must be positive")
	}
	return &Beacon{
		log:       log.With().Str("component", "randomness_beacon").Logger(),
		engine:    engine,
		cfg:       cfg,
		rounds:    make(map[uint64]*vdf.BeaconRound),
		byID:      make(map[vdf.InstanceID]uint64),
		confirmed: make(map[uint64]map[string]struct{}),
		next:      1,
	}, nil
}

// StartRound begins the next round. The previous round must have reached
// consensus; the beacon never chains on an unverified or failed output.
//
// The round number is reserved under the lock before the submission goes
// out, so concurrent callers can never observe the same number: the loser
// sees the reservation as an unchained predecessor and errors.
func (b *Beacon) StartRound() (uint64, error) {
	b.mu.Lock()

	round := b.next
	var previous []byte
	if round == 1 {
		previous = append([]byte(nil), b.cfg.GenesisSeed...)
	} else {
		prev := b.rounds[round-1]
		if prev == nil || prev.Status != vdf.BeaconChained {
			status := vdf.BeaconStatus("MISSING")
			if prev != nil {
				status = prev.Status
			}
			b.mu.Unlock()
			return 0, fmt.Errorf("round %d not chained yet (status %s)", round-1, status)
		}
		previous = append([]byte(nil), prev.Output...)
	}

	b.rounds[round] = &vdf.BeaconRound{
		Round:          round,
		PreviousOutput: previous,
		Threshold:      b.cfg.Threshold,
		Status:         vdf.BeaconSubmitted,
		StartedAt:      time.Now(),
	}
	b.next = round + 1
	b.mu.Unlock()

	id, err := b.engine.Submit("beacon", previous, b.cfg.RoundT, b.cfg.Kind, vdf.TagRandomness)
	if err != nil {
		// release the reservation so the round can be restarted
		b.mu.Lock()
		delete(b.rounds, round)
		b.next = round
		b.mu.Unlock()
		return 0, fmt.Errorf("could not submit round %d: %w", round, err)
	}

	b.mu.Lock()
	r := b.rounds[round]
	r.InstanceID = id
	r.Status = vdf.BeaconAwaitingCompletion
	b.byID[id] = round
	b.confirmed[round] = make(map[string]struct{})
	b.mu.Unlock()

	b.log.Info().Uint64("round", round).Str("instance", string(id)).Msg("round started")
	return round, nil
}

// OnInstanceVerified records the verified output for the round owning the
// instance, counting the engine's verification as the first confirmation.
func (b *Beacon) OnInstanceVerified(snapshot vdf.Snapshot) {
	b.mu.Lock()
	round, ok := b.byID[snapshot.ID]
	if !ok {
		b.mu.Unlock()
		return
	}
	r := b.rounds[round]
	if r.Status != vdf.BeaconAwaitingCompletion {
		b.mu.Unlock()
		return
	}
	r.Output = append([]byte(nil), snapshot.Output...)
	r.Proof = append([]byte(nil), snapshot.Proof...)
	r.Status = vdf.BeaconVerified
	b.mu.Unlock()

	b.log.Info().Uint64("round", round).Msg("round output verified")

	// the engine verifier counts as one confirmation
	_, _ = b.Confirm(round, "engine")
}

// OnInstanceFailed marks the round Failed. The chain does not advance past
// a failed round; the operator restarts it explicitly.
func (b *Beacon) OnInstanceFailed(snapshot vdf.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	round, ok := b.byID[snapshot.ID]
	if !ok {
		return
	}
	r := b.rounds[round]
	r.Status = vdf.BeaconFailed
	// roll back so the round can be restarted
	if round == b.next-1 {
		b.next = round
	}
	delete(b.byID, snapshot.ID)
	b.log.Error().Uint64("round", round).Str("reason", snapshot.FailureReason).Msg("round failed")
}

// Confirm records a confirmation by the given verifier. Confirmations are
// deduplicated per verifier; once the threshold is met the round reaches
// consensus and is chained.
func (b *Beacon) Confirm(round uint64, verifierID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rounds[round]
	if !ok {
		return false, fmt.Errorf("unknown round %d", round)
	}
	if r.Status != vdf.BeaconVerified && r.Status != vdf.BeaconChained {
		return false, fmt.Errorf("round %d has no verified output to confirm (status %s)", round, r.Status)
	}

	seen := b.confirmed[round]
	if _, dup := seen[verifierID]; dup {
		return r.ConsensusReached, nil
	}
	seen[verifierID] = struct{}{}
	r.Confirmations++

	if !r.ConsensusReached && r.Confirmations >= r.Threshold {
		r.ConsensusReached = true
		r.Status = vdf.BeaconChained
		r.ChainedAt = time.Now()
		b.log.Info().
			Uint64("round", round).
			Uint32("confirmations", r.Confirmations).
			Msg("round chained")
	}
	return r.ConsensusReached, nil
}

// LatestVerified returns the highest round with a verified output.
func (b *Beacon) LatestVerified() (uint64, []byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for round := b.next - 1; round >= 1; round-- {
		r := b.rounds[round]
		if r != nil && (r.Status == vdf.BeaconVerified || r.Status == vdf.BeaconChained) {
			return round, append([]byte(nil), r.Output...), true
		}
	}
	return 0, nil, false
}

// Round returns a copy of the given round.
func (b *Beacon) Round(round uint64) (vdf.BeaconRound, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rounds[round]
	if !ok {
		return vdf.BeaconRound{}, false
	}
	return *r, true
}

// Run starts rounds on the configured cadence until the context is
// cancelled. A tick is skipped while the previous round is still maturing.
func (b *Beacon) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.Cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.StartRound(); err != nil {
				b.log.Debug().Err(err).Msg("skipping tick")
			}
		}
	}
}
