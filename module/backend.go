package module

import (
	"context"

	"github.com/timecrypt/vdf/model/vdf"
)

// ProgressFunc reports evaluation progress as the number of sequential steps
// performed so far. Implementations must be cheap and non-blocking; they are
// invoked from the evaluator's hot loop.
type ProgressFunc func(stepsDone uint64)

// Backend is one concrete VDF construction.
//
// Evaluate performs t strictly sequential steps, each depending on the
// prior step's result; by construction there is no faster path even with
// unbounded parallel hardware. Verify checks an (output, proof) pair in time
// far below t and must be total: it returns false for any well-formed but
// incorrect pair and never panics on adversarial input.
//
// Multiple constructions are interchangeable behind this interface; swapping
// in a quantum-hardened construction must not touch any caller.
type Backend interface {
	// Kind returns the construction identifier.
	Kind() vdf.BackendKind

	// Evaluate runs the sequential computation on input with time parameter
	// t. It rejects zero-length input and t == 0 with an
	// InvalidParameterError, and returns ctx.Err() if cancelled; a
	// cancelled evaluation never yields a truncated "valid" result.
	// The output is deterministic across repeated calls for the same
	// (input, t); proof bytes may differ if the proof is probabilistic.
	Evaluate(ctx context.Context, input []byte, t uint64, progress ProgressFunc) (output []byte, proof []byte, err error)

	// Verify checks that (output, proof) is the correct result of
	// Evaluate(input, t). Total over adversarial input.
	Verify(input []byte, t uint64, output []byte, proof []byte) bool

	// StepsPerSecond is the measured sequential step rate of this backend
	// on the local hardware, used to translate wall-clock delays into time
	// parameters.
	StepsPerSecond() uint64
}
