// Package engine implements the VDF engine: instance lifecycle from
// submission through asynchronous sequential evaluation to verification,
// with bounded concurrency, bounded retries and reward accounting.
//
// The engine exclusively owns and mutates instance records. Consumers are
// registered per application tag and receive immutable snapshots once an
// instance is Verified or terminally Failed, never partial in-progress
// state.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"go.uber.org/atomic"

	"github.com/timecrypt/vdf/backend"
	"github.com/timecrypt/vdf/model/vdf"
	"github.com/timecrypt/vdf/module"
	"github.com/timecrypt/vdf/storage"
)

// Config bounds the engine's resources. All submissions are validated
// against it synchronously.
type Config struct {
	// MaxConcurrent is the number of parallel worker slots. Within one
	// instance, evaluation stays strictly serial; the seriality is the
	// security property, not a bottleneck.
	MaxConcurrent int

	// QueueCapacity bounds the Pending overflow queue; submissions beyond
	// it are refused with ErrQueueFull.
	QueueCapacity int

	// MinT and MaxT bound the accepted time parameter.
	MinT uint64
	MaxT uint64

	// MaxRetries bounds re-attempts of a failed evaluation before the
	// instance becomes terminally Failed.
	MaxRetries uint64

	// RetryBackoff is the pause between re-attempts.
	RetryBackoff time.Duration

	// AutoVerify makes the engine verify each instance right after its
	// computation completes, instead of waiting for an explicit Verify.
	AutoVerify bool
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 10,
		QueueCapacity: 1000,
		MinT:          1,
		MaxT:          1 << 40,
		MaxRetries:    3,
		RetryBackoff:  100 * time.Millisecond,
		AutoVerify:    true,
	}
}

// Option customizes engine construction.
type Option func(*Engine)

// WithRewardPolicy overrides the default reward pricing.
func WithRewardPolicy(policy module.RewardPolicy) Option {
	return func(e *Engine) {
		e.reward = policy
	}
}

// WithArchive persists every verified snapshot to the given archive.
func WithArchive(archive storage.Snapshots) Option {
	return func(e *Engine) {
		e.archive = archive
	}
}

// Engine manages the lifecycle of VDF instances.
type Engine struct {
	log      zerolog.Logger
	metrics  module.VDFMetrics
	backends *backend.Registry
	cfg      Config
	reward   module.RewardPolicy
	archive  storage.Snapshots

	mu        sync.Mutex
	instances map[vdf.InstanceID]*vdf.Instance
	consumers map[vdf.ApplicationTag]module.InstanceConsumer

	pending *pendingQueue
	newWork module.Notifier
	pool    *workerpool.WorkerPool
	slots   chan struct{}

	ctx        context.Context
	cancel     context.CancelFunc
	shutdownCh chan struct{}
	stopped    *atomic.Bool
	stopOnce   sync.Once
	dispatched sync.WaitGroup
}

// New constructs and starts an engine dispatching to the given backend
// registry.
func New(log zerolog.Logger, metrics module.VDFMetrics, backends *backend.Registry, cfg Config, opts ...Option) (*Engine, error) {
	if cfg.MaxConcurrent < 1 {
		return nil, fmt.Errorf("max concurrent workers must be positive (got %d)", cfg.MaxConcurrent)
	}
	if cfg.QueueCapacity < 1 {
		return nil, fmt.Errorf("queue capacity must be positive (got %d)", cfg.QueueCapacity)
	}
	if cfg.MinT == 0 || cfg.MinT > cfg.MaxT {
		return nil, fmt.Errorf("invalid time parameter bounds [%d, %d]", cfg.MinT, cfg.MaxT)
	}
	if cfg.RetryBackoff <= 0 {
		return nil, fmt.Errorf("retry backoff must be positive (got %v)", cfg.RetryBackoff)
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		log:        log.With().Str("component", "vdf_engine").Logger(),
		metrics:    metrics,
		backends:   backends,
		cfg:        cfg,
		reward:     DefaultRewardPolicy(),
		instances:  make(map[vdf.InstanceID]*vdf.Instance),
		consumers:  make(map[vdf.ApplicationTag]module.InstanceConsumer),
		newWork:    module.NewNotifier(),
		pool:       workerpool.New(cfg.MaxConcurrent),
		slots:      make(chan struct{}, cfg.MaxConcurrent),
		ctx:        ctx,
		cancel:     cancel,
		shutdownCh: make(chan struct{}),
		stopped:    atomic.NewBool(false),
	}
	e.pending = newPendingQueue(cfg.QueueCapacity, metrics.QueueLength)

	for _, opt := range opts {
		opt(e)
	}

	e.dispatched.Add(1)
	go e.dispatchLoop()

	return e, nil
}

// RegisterConsumer routes verification and failure notifications for
// instances carrying the given tag to the consumer. At most one consumer
// per tag; re-registration replaces the previous one.
func (e *Engine) RegisterConsumer(tag vdf.ApplicationTag, consumer module.InstanceConsumer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.consumers[tag] = consumer
}

// Submit validates the request, allocates a Pending instance and returns
// its id immediately; all computation happens off the calling context.
//
// Error returns:
//   - InvalidParameterError on empty input, T outside configured bounds or
//     an unknown backend kind
//   - ErrQueueFull when the pending queue is at capacity
//   - ErrShutdown after Stop
func (e *Engine) Submit(requester string, input []byte, t uint64, kind vdf.BackendKind, tag vdf.ApplicationTag) (vdf.InstanceID, error) {
	if e.stopped.Load() {
		return "", vdf.ErrShutdown
	}
	if len(input) == 0 {
		return "", vdf.NewInvalidParameterError("input", "must not be empty")
	}
	if t < e.cfg.MinT || t > e.cfg.MaxT {
		return "", vdf.NewInvalidParameterError("T", "%d outside configured bounds [%d, %d]", t, e.cfg.MinT, e.cfg.MaxT)
	}
	if _, err := e.backends.Get(kind); err != nil {
		return "", err
	}

	instance := &vdf.Instance{
		ID:        vdf.NewInstanceID(),
		Params:    newParameters(kind, t),
		Requester: requester,
		Tag:       tag,
		Input:     append([]byte(nil), input...),
		Status:    vdf.StatusPending,
		Reward:    e.reward.Reward(t, kind),

		SubmittedAt: time.Now(),
	}

	e.mu.Lock()
	e.instances[instance.ID] = instance
	e.mu.Unlock()

	if !e.pending.push(instance.ID) {
		e.mu.Lock()
		delete(e.instances, instance.ID)
		e.mu.Unlock()
		return "", vdf.ErrQueueFull
	}

	e.metrics.InstanceSubmitted(kind)
	e.newWork.Notify()

	e.log.Debug().
		Str("instance", string(instance.ID)).
		Str("backend", string(kind)).
		Str("tag", string(tag)).
		Uint64("t", t).
		Msg("vdf submitted")

	return instance.ID, nil
}

// Query returns a read-only snapshot of the instance.
// Returns ErrUnknownInstance for an unknown id. The snapshot's progress
// field is advisory only; consumers must base decisions solely on
// Completed/Verified snapshots.
func (e *Engine) Query(id vdf.InstanceID) (vdf.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	instance, ok := e.instances[id]
	if !ok {
		return vdf.Snapshot{}, vdf.ErrUnknownInstance
	}
	return instance.Snapshot(), nil
}

// Cancel withdraws a Pending instance. Once computing has begun the
// instance runs to completion; cancelling it is rejected with an
// InvalidTransitionError.
func (e *Engine) Cancel(id vdf.InstanceID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	instance, ok := e.instances[id]
	if !ok {
		return vdf.ErrUnknownInstance
	}
	if instance.Status != vdf.StatusPending {
		return vdf.InvalidTransitionError{ID: id, From: instance.Status, To: vdf.StatusCancelled}
	}
	instance.Status = vdf.StatusCancelled
	instance.FinishedAt = time.Now()
	return nil
}

// Verify checks the instance's proof with its backend.
//
// Returns (true, nil) and promotes Completed -> Verified on success;
// idempotent on an already-Verified instance. A rejected proof yields
// (false, nil): verification failure is a total result, distinct from a
// computation failure. An instance that has not completed yet yields
// ErrNotReady; Failed and Cancelled instances yield (false, nil).
func (e *Engine) Verify(id vdf.InstanceID) (bool, error) {
	e.mu.Lock()
	instance, ok := e.instances[id]
	if !ok {
		e.mu.Unlock()
		return false, vdf.ErrUnknownInstance
	}

	switch instance.Status {
	case vdf.StatusVerified:
		e.mu.Unlock()
		return true, nil
	case vdf.StatusPending, vdf.StatusComputing:
		e.mu.Unlock()
		return false, vdf.ErrNotReady
	case vdf.StatusFailed, vdf.StatusCancelled:
		e.mu.Unlock()
		return false, nil
	}

	// copy everything the proof check needs, then verify outside the lock
	params := instance.Params
	input := append([]byte(nil), instance.Input...)
	output := append([]byte(nil), instance.Output...)
	proof := append([]byte(nil), instance.Proof...)
	e.mu.Unlock()

	bknd, err := e.backends.Get(params.Kind)
	if err != nil {
		return false, err
	}

	valid := bknd.Verify(input, params.T, output, proof)
	if !valid {
		e.log.Warn().Str("instance", string(id)).Msg("proof rejected")
		return false, nil
	}

	e.mu.Lock()
	// the instance may have been verified concurrently; promotion happens
	// at most once
	if instance.Status == vdf.StatusVerified {
		e.mu.Unlock()
		return true, nil
	}
	instance.Status = vdf.StatusVerified
	instance.VerifiedAt = time.Now()
	snapshot := instance.Snapshot()
	consumer := e.consumers[instance.Tag]
	e.mu.Unlock()

	e.metrics.InstanceVerified(params.Kind)

	if e.archive != nil {
		if err := e.archive.Store(snapshot); err != nil {
			// archival is additive; a failure must not fail verification
			e.log.Error().Err(err).Str("instance", string(id)).Msg("could not archive snapshot")
		}
	}

	e.log.Info().
		Str("instance", string(id)).
		Dur("duration", snapshot.Duration).
		Msg("vdf verified")

	if consumer != nil {
		consumer.OnInstanceVerified(snapshot)
	}
	return true, nil
}

// Stop shuts the engine down: no new submissions are accepted, in-flight
// evaluations are cancelled and awaited, and the archive is closed.
func (e *Engine) Stop() error {
	var result *multierror.Error

	e.stopOnce.Do(func() {
		e.stopped.Store(true)
		close(e.shutdownCh)
		e.cancel()

		e.dispatched.Wait()
		e.pool.StopWait()

		if e.archive != nil {
			if err := e.archive.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("could not close archive: %w", err))
			}
		}
		e.log.Info().Msg("engine stopped")
	})

	return result.ErrorOrNil()
}

// PendingCount returns the current length of the overflow queue.
func (e *Engine) PendingCount() int {
	return e.pending.len()
}

// dispatchLoop moves submissions from the pending queue into worker slots.
// It takes more work only when a slot is free, so the queue length reflects
// the real backlog.
func (e *Engine) dispatchLoop() {
	defer e.dispatched.Done()

	for {
		select {
		case <-e.shutdownCh:
			return
		case <-e.newWork.Channel():
		}

		for {
			select {
			case e.slots <- struct{}{}:
			case <-e.shutdownCh:
				return
			}

			id, ok := e.pending.pop()
			if !ok {
				<-e.slots
				break
			}

			e.pool.Submit(func() {
				defer func() {
					<-e.slots
					// wake the dispatcher for queued work
					e.newWork.Notify()
				}()
				e.execute(id)
			})
		}
	}
}

// execute runs one instance through Pending -> Computing ->
// {Completed | Failed}, with bounded retries on computation failures.
func (e *Engine) execute(id vdf.InstanceID) {
	e.mu.Lock()
	instance, ok := e.instances[id]
	if !ok || instance.Status != vdf.StatusPending {
		// cancelled while queued
		e.mu.Unlock()
		return
	}
	instance.Status = vdf.StatusComputing
	instance.StartedAt = time.Now()
	params := instance.Params
	input := append([]byte(nil), instance.Input...)
	e.mu.Unlock()

	bknd, err := e.backends.Get(params.Kind)
	if err != nil {
		// unreachable: the kind was validated at submission
		e.fail(id, params.Kind, 0, err)
		return
	}

	progress := func(stepsDone uint64) {
		e.setProgress(id, float64(stepsDone)/float64(params.T))
	}

	var output, proof []byte
	attempts := 0

	constant := retry.NewConstant(e.cfg.RetryBackoff)
	backoff := retry.WithMaxRetries(e.cfg.MaxRetries, constant)
	err = retry.Do(e.ctx, backoff, func(ctx context.Context) error {
		attempts++
		var evalErr error
		output, proof, evalErr = bknd.Evaluate(ctx, input, params.T, progress)
		if evalErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			// shutdown; not worth retrying
			return evalErr
		}
		e.log.Warn().Err(evalErr).
			Str("instance", string(id)).
			Int("attempt", attempts).
			Msg("evaluation failed, retrying")
		return retry.RetryableError(evalErr)
	})
	if err != nil {
		e.fail(id, params.Kind, attempts, err)
		return
	}

	e.mu.Lock()
	instance.Output = output
	instance.Proof = proof
	instance.Status = vdf.StatusCompleted
	instance.Progress = 1.0
	instance.FinishedAt = time.Now()
	duration := instance.Duration()
	e.mu.Unlock()

	e.metrics.InstanceCompleted(params.Kind, duration)
	e.log.Info().
		Str("instance", string(id)).
		Dur("duration", duration).
		Msg("vdf computation completed")

	if e.cfg.AutoVerify {
		if _, err := e.Verify(id); err != nil {
			e.log.Error().Err(err).Str("instance", string(id)).Msg("auto-verification errored")
		}
	}
}

// fail marks an instance terminally Failed and notifies its consumer.
func (e *Engine) fail(id vdf.InstanceID, kind vdf.BackendKind, attempts int, err error) {
	failure := vdf.ComputationFailureError{ID: id, Attempts: attempts, Err: err}

	e.mu.Lock()
	instance, ok := e.instances[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	instance.Status = vdf.StatusFailed
	instance.FailureReason = failure.Error()
	instance.FinishedAt = time.Now()
	snapshot := instance.Snapshot()
	consumer := e.consumers[instance.Tag]
	e.mu.Unlock()

	e.metrics.InstanceFailed(kind)
	e.log.Error().Err(failure).Str("instance", string(id)).Msg("vdf computation failed")

	if consumer != nil {
		consumer.OnInstanceFailed(snapshot)
	}
}

func (e *Engine) setProgress(id vdf.InstanceID, fraction float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	instance, ok := e.instances[id]
	if !ok || instance.Status != vdf.StatusComputing {
		return
	}
	if fraction > 1 {
		fraction = 1
	}
	instance.Progress = fraction
}

func newParameters(kind vdf.BackendKind, t uint64) vdf.Parameters {
	group := "RSA-2048"
	if kind == vdf.BackendHashChain {
		group = "SHA-256 chain"
	}
	return vdf.Parameters{
		Kind:         kind,
		T:            t,
		SecurityBits: 128,
		Group:        group,
		QuantumSafe:  kind.QuantumSafe(),
	}
}
