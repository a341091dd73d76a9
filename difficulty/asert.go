// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package difficulty implements the ASERT per-block retargeting rule
// described in spec.md §4.3, using the same "big.Int as fixed point"
// idiom exccd/blockchain/difficulty.go uses for its own (EMA-window)
// retargeting: shift left before dividing to retain fractional
// precision, shift right to restore scale at the end.
package difficulty

import (
	"math/big"

	"github.com/coinbasechain/cbcd/primitives"
)

// fixedPointBits is the number of fractional bits carried through the
// exponentiation, the same 16-bit radix used by the reference ASERT
// difficulty algorithm this rule is modeled on.
const fixedPointBits = 16

var (
	radix  = new(big.Int).Lsh(big.NewInt(1), fixedPointBits)
	bigOne = big.NewInt(1)
)

// ErrorKind identifies a difficulty-rule failure, backing spec.md §7's
// BadDifficulty.
type ErrorKind string

func (e ErrorKind) Error() string { return string(e) }

// ErrBadDifficulty is returned when a header's bits do not match the
// ASERT-computed expected value.
const ErrBadDifficulty = ErrorKind("computed bits do not match header bits")

// Anchor is the height-1 reference block ASERT computes every
// subsequent target relative to (spec.md §4.3/§9.3).
type Anchor struct {
	Height int64
	Time   int64
	Bits   uint32
}

// Params bundles the network constants the ASERT formula needs.
type Params struct {
	// TargetSpacing is the desired seconds between blocks.
	TargetSpacing int64
	// HalfLife is the number of seconds of cumulative time error
	// needed to double or halve the target.
	HalfLife int64
	// PowLimit is the loosest allowed target (the per-network floor on
	// difficulty).
	PowLimit *big.Int
}

// NextTarget computes the expected target for a block at height
// (anchor.Height+Δh) with the given timestamp, per spec.md §4.3:
//
//	Δt = block.time − anchor.time
//	Δh = height − anchor.height
//	exponent = (Δt − spacing·(Δh+1)) / half_life
//	next_target = clamp(anchor.target × 2^exponent, 1, pow_limit)
//
// The exponentiation is evaluated at fixed point: exponent is split into
// an integer shift and a fractional remainder, and 2^frac is evaluated
// via a truncated Taylor expansion, matching spec.md §4.3's "fixed-point
// exponentiation ... over the fractional part after extracting the
// integer shift" requirement.
func NextTarget(anchor Anchor, params Params, height int64, blockTime int64) uint32 {
	anchorTarget := primitives.CompactToBig(anchor.Bits)

	deltaHeight := height - anchor.Height
	deltaTime := blockTime - anchor.Time

	// exponent, scaled by radix (2^16), still an exact integer here.
	numerator := big.NewInt(deltaTime - params.TargetSpacing*(deltaHeight+1))
	numerator.Mul(numerator, radix)
	exponentScaled := new(big.Int).Div(numerator, big.NewInt(params.HalfLife))

	// Split into integer shifts and fractional remainder in [0, radix).
	shifts := new(big.Int).Div(exponentScaled, radix)
	frac := new(big.Int).Mod(exponentScaled, radix)
	if frac.Sign() < 0 {
		frac.Add(frac, radix)
		shifts.Sub(shifts, bigOne)
	}

	// 2^(frac/radix) via a cubic Taylor expansion around 0, coefficients
	// scaled by radix: 1 + 0.6931471805599453*x + 0.2402265069591007*x^2 +
	// 0.05550410866482166*x^3, the standard truncated series used by
	// ASERT-style difficulty rules to stay in integer arithmetic.
	c1 := int64(0.6931471805599453 * (1 << fixedPointBits))
	c2 := int64(0.2402265069591007 * (1 << fixedPointBits))
	c3 := int64(0.05550410866482166 * (1 << fixedPointBits))

	term1 := new(big.Int).Mul(big.NewInt(c1), frac)
	term1.Div(term1, radix)

	fracSq := new(big.Int).Mul(frac, frac)
	fracSq.Div(fracSq, radix)
	term2 := new(big.Int).Mul(big.NewInt(c2), fracSq)
	term2.Div(term2, radix)

	fracCube := new(big.Int).Mul(fracSq, frac)
	fracCube.Div(fracCube, radix)
	term3 := new(big.Int).Mul(big.NewInt(c3), fracCube)
	term3.Div(term3, radix)

	polyFactor := new(big.Int).Set(radix)
	polyFactor.Add(polyFactor, term1)
	polyFactor.Add(polyFactor, term2)
	polyFactor.Add(polyFactor, term3)

	nextTarget := new(big.Int).Mul(anchorTarget, polyFactor)
	nextTarget.Div(nextTarget, radix)

	if shifts.Sign() >= 0 {
		nextTarget.Lsh(nextTarget, uint(shifts.Int64()))
	} else {
		nextTarget.Rsh(nextTarget, uint(-shifts.Int64()))
	}

	if nextTarget.Sign() < 1 {
		nextTarget.Set(bigOne)
	} else if nextTarget.Cmp(params.PowLimit) > 0 {
		nextTarget.Set(params.PowLimit)
	}

	return primitives.BigToCompact(nextTarget)
}

// CheckBits returns ErrBadDifficulty if bits does not equal the
// ASERT-expected value for the given height/time, the contextual gate
// spec.md §4.5 step 8 requires.
func CheckBits(anchor Anchor, params Params, height int64, blockTime int64, bits uint32) error {
	expected := NextTarget(anchor, params, height, blockTime)
	if expected != bits {
		return ErrBadDifficulty
	}
	return nil
}
