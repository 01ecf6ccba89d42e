// Package wesolowski implements the reference VDF construction: repeated
// squaring in an RSA group of unknown order, with Wesolowski proofs of
// correct exponentiation.
//
// Evaluation computes y = x^(2^T) mod N by T sequential squarings; each
// squaring depends on the previous result, so the computation cannot be
// parallelized. The proof pi = x^floor(2^T / l) for a Fiat-Shamir challenge
// prime l lets a verifier check pi^l * x^r == y (mod N) with r = 2^T mod l,
// using O(lambda) multiplications instead of T.
//
// The construction requires a group of unknown order. By default the
// backend runs a local trusted setup: it generates a fresh 2048-bit RSA
// modulus and discards the factorization. Deployments that need a shared,
// publicly agreed modulus (e.g. the RSA factoring challenge numbers) can
// inject one with WithModulus.
package wesolowski

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/timecrypt/vdf/model/vdf"
	"github.com/timecrypt/vdf/module"
)

const (
	// modulusBits is the RSA group size.
	modulusBits = 2048

	// groupBytes is the fixed width of serialized group elements.
	groupBytes = modulusBits / 8

	// challengeBits is the size of the Fiat-Shamir challenge prime.
	challengeBits = 128

	// checkInterval is how often the evaluation loop checks for cancellation
	// and reports progress, in steps.
	checkInterval = 1024

	// calibrationSteps is the number of squarings timed at construction to
	// estimate the local sequential step rate.
	calibrationSteps = 2048
)

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

// proofEnvelope is the CBOR-encoded proof blob.
type proofEnvelope struct {
	Pi []byte `cbor:"1,keyasint"`
}

// Backend is the Wesolowski RSA-group VDF backend.
type Backend struct {
	n              *big.Int
	stepsPerSecond uint64
}

var _ module.Backend = (*Backend)(nil)

// Option customizes backend construction.
type Option func(*Backend)

// WithModulus injects a shared group modulus instead of running a local
// trusted setup. The modulus must be a 2048-bit composite of unknown
// factorization.
func WithModulus(n *big.Int) Option {
	return func(b *Backend) {
		b.n = n
	}
}

// New constructs the backend and calibrates its sequential step rate on the
// local hardware. Without WithModulus it generates a fresh RSA modulus and
// discards the factorization (anyone holding the factors could shortcut the
// sequential work via the group order).
func New(opts ...Option) (*Backend, error) {
	b := &Backend{}
	for _, opt := range opts {
		opt(b)
	}

	if b.n == nil {
		key, err := rsa.GenerateKey(rand.Reader, modulusBits)
		if err != nil {
			return nil, fmt.Errorf("could not generate group modulus: %w", err)
		}
		// keep only the public modulus; the factorization must not outlive
		// the setup
		b.n = new(big.Int).Set(key.N)
	}
	if b.n.BitLen() != modulusBits {
		return nil, fmt.Errorf("group modulus must be %d bits (got %d)", modulusBits, b.n.BitLen())
	}

	b.stepsPerSecond = b.calibrate()
	return b, nil
}

func (b *Backend) Kind() vdf.BackendKind {
	return vdf.BackendWesolowski
}

func (b *Backend) StepsPerSecond() uint64 {
	return b.stepsPerSecond
}

// Modulus returns a copy of the group modulus, so that verifiers in other
// processes can be configured with the same group.
func (b *Backend) Modulus() *big.Int {
	return new(big.Int).Set(b.n)
}

// Evaluate computes y = x^(2^T) mod N and the accompanying proof. Proof
// generation performs a second sequential pass of T steps, so one call
// costs roughly 2T squarings in total; the progress callback is scaled
// across both passes and reaches t only once the proof exists.
func (b *Backend) Evaluate(ctx context.Context, input []byte, t uint64, progress module.ProgressFunc) ([]byte, []byte, error) {
	if len(input) == 0 {
		return nil, nil, vdf.NewInvalidParameterError("input", "must not be empty")
	}
	if t == 0 {
		return nil, nil, vdf.NewInvalidParameterError("T", "must be positive")
	}
	if progress == nil {
		progress = func(uint64) {}
	}

	x := b.hashToGroup(input)

	// sequential squaring: y = x^(2^T) mod N; this is the first half of the
	// total work, so progress advances half a step per squaring
	y := new(big.Int).Set(x)
	for i := uint64(0); i < t; i++ {
		y.Mul(y, y)
		y.Mod(y, b.n)
		if i%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			progress(i / 2)
		}
	}

	pi, err := b.prove(ctx, x, y, t, progress)
	if err != nil {
		return nil, nil, err
	}
	progress(t)

	proof, err := cbor.Marshal(proofEnvelope{Pi: fill(pi)})
	if err != nil {
		return nil, nil, err
	}
	return fill(y), proof, nil
}

// prove computes pi = x^floor(2^T / l) with the on-line long-division
// algorithm, which needs no 2^T-sized intermediate values but is itself a
// second sequential pass of T steps.
func (b *Backend) prove(ctx context.Context, x, y *big.Int, t uint64, progress module.ProgressFunc) (*big.Int, error) {
	l := hashToPrime(fill(x), fill(y), t)

	pi := new(big.Int).Set(one)
	r := new(big.Int).Set(one)
	quotient := new(big.Int)
	for i := uint64(0); i < t; i++ {
		r.Lsh(r, 1)
		quotient.QuoRem(r, l, r) // quotient in {0, 1}
		pi.Mul(pi, pi)
		pi.Mod(pi, b.n)
		if quotient.Sign() > 0 {
			pi.Mul(pi, x)
			pi.Mod(pi, b.n)
		}
		if i%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			// proving is the second half of the total work
			progress((t + i) / 2)
		}
	}
	return pi, nil
}

// Verify checks pi^l * x^r == y (mod N) with l = hashToPrime(x, y, T) and
// r = 2^T mod l. It is total: any malformed or incorrect (output, proof)
// yields false.
func (b *Backend) Verify(input []byte, t uint64, output []byte, proof []byte) bool {
	if len(input) == 0 || t == 0 {
		return false
	}
	y, ok := b.parseGroupElement(output)
	if !ok {
		return false
	}
	var env proofEnvelope
	if err := cbor.Unmarshal(proof, &env); err != nil {
		return false
	}
	pi, ok := b.parseGroupElement(env.Pi)
	if !ok {
		return false
	}

	x := b.hashToGroup(input)
	l := hashToPrime(fill(x), fill(y), t)

	// r = 2^T mod l
	r := new(big.Int).Exp(two, new(big.Int).SetUint64(t), l)

	// pi^l * x^r mod N
	lhs := new(big.Int).Exp(pi, l, b.n)
	xr := new(big.Int).Exp(x, r, b.n)
	lhs.Mul(lhs, xr)
	lhs.Mod(lhs, b.n)

	return lhs.Cmp(y) == 0
}

// hashToGroup maps arbitrary input bytes onto a group element in [2, N).
// The digest is expanded to the full modulus width so the element is not
// confined to a small range.
func (b *Backend) hashToGroup(input []byte) *big.Int {
	expanded := make([]byte, 0, groupBytes)
	var counter [8]byte
	for i := uint64(0); len(expanded) < groupBytes; i++ {
		binary.BigEndian.PutUint64(counter[:], i)
		h := sha256.New()
		h.Write([]byte("wesolowski-vdf-v1"))
		h.Write(counter[:])
		h.Write(input)
		expanded = h.Sum(expanded)
	}
	x := new(big.Int).SetBytes(expanded[:groupBytes])
	x.Mod(x, b.n)
	if x.Cmp(two) < 0 {
		x.Add(x, two)
	}
	return x
}

// hashToPrime derives the Fiat-Shamir challenge: a deterministic
// challengeBits-sized prime bound to (x, y, T). Prover and verifier must
// derive the identical prime, so the search walks a counter rather than
// random candidates.
func hashToPrime(x, y []byte, t uint64) *big.Int {
	var tBytes [8]byte
	binary.BigEndian.PutUint64(tBytes[:], t)

	var nonce [8]byte
	for i := uint64(0); ; i++ {
		binary.BigEndian.PutUint64(nonce[:], i)
		h := sha256.New()
		h.Write([]byte("wesolowski-prime-v1"))
		h.Write(x)
		h.Write(y)
		h.Write(tBytes[:])
		h.Write(nonce[:])
		digest := h.Sum(nil)

		candidate := new(big.Int).SetBytes(digest[:challengeBits/8])
		candidate.SetBit(candidate, challengeBits-1, 1) // full size
		candidate.SetBit(candidate, 0, 1)               // odd
		if candidate.ProbablyPrime(32) {
			return candidate
		}
	}
}

// parseGroupElement decodes a fixed-width group element, rejecting anything
// outside (1, N).
func (b *Backend) parseGroupElement(raw []byte) (*big.Int, bool) {
	if len(raw) != groupBytes {
		return nil, false
	}
	e := new(big.Int).SetBytes(raw)
	if e.Cmp(one) <= 0 || e.Cmp(b.n) >= 0 {
		return nil, false
	}
	return e, true
}

// fill serializes a group element at fixed width.
func fill(e *big.Int) []byte {
	out := make([]byte, groupBytes)
	e.FillBytes(out)
	return out
}

// calibrate measures the local squaring rate so callers can translate
// wall-clock delays into time parameters.
func (b *Backend) calibrate() uint64 {
	x := b.hashToGroup([]byte("calibration"))
	y := new(big.Int).Set(x)

	start := time.Now()
	for i := 0; i < calibrationSteps; i++ {
		y.Mul(y, y)
		y.Mod(y, b.n)
	}
	elapsed := time.Since(start)

	rate := uint64(float64(calibrationSteps) / elapsed.Seconds())
	if rate == 0 {
		rate = 1
	}
	return rate
}
