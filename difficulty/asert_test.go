package difficulty

import (
	"math/big"
	"testing"

	"github.com/coinbasechain/cbcd/primitives"
)

func testParams() Params {
	return Params{
		TargetSpacing: 60,
		HalfLife:      2 * 24 * 3600,
		PowLimit:      new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 240), big.NewInt(1)),
	}
}

func testAnchor(t *testing.T, params Params) Anchor {
	t.Helper()
	target := new(big.Int).Rsh(params.PowLimit, 8)
	return Anchor{
		Height: 1,
		Time:   1700000000,
		Bits:   primitives.BigToCompact(target),
	}
}

func TestNextTargetUnchangedAtExactSpacing(t *testing.T) {
	params := testParams()
	anchor := testAnchor(t, params)

	height := anchor.Height + 10
	blockTime := anchor.Time + params.TargetSpacing*(height-anchor.Height+1)

	got := NextTarget(anchor, params, height, blockTime)

	anchorTarget := primitives.CompactToBig(anchor.Bits)
	gotTarget := primitives.CompactToBig(got)

	// At exactly zero drift the target should be unchanged modulo
	// whatever precision loss the fixed-point exponentiation and compact
	// re-encoding introduce, so check a tight relative bound instead of
	// exact equality.
	diff := new(big.Int).Sub(anchorTarget, gotTarget)
	diff.Abs(diff)
	bound := new(big.Int).Rsh(anchorTarget, 10) // within ~0.1%
	if diff.Cmp(bound) > 0 {
		t.Fatalf("target drifted too far at zero time error: anchor=%s got=%s", anchorTarget, gotTarget)
	}
}

func TestNextTargetLoosensWhenBlocksAreSlow(t *testing.T) {
	params := testParams()
	anchor := testAnchor(t, params)

	height := anchor.Height + 1
	// Blocks arriving far slower than target spacing accumulate positive
	// time error, which should loosen (raise) the target.
	blockTime := anchor.Time + params.TargetSpacing*(height-anchor.Height) + params.HalfLife

	got := NextTarget(anchor, params, height, blockTime)

	anchorTarget := primitives.CompactToBig(anchor.Bits)
	gotTarget := primitives.CompactToBig(got)

	if gotTarget.Cmp(anchorTarget) <= 0 {
		t.Fatalf("expected target to loosen (grow) when blocks lag, anchor=%s got=%s", anchorTarget, gotTarget)
	}
}

func TestNextTargetTightensWhenBlocksAreFast(t *testing.T) {
	params := testParams()
	anchor := testAnchor(t, params)

	height := anchor.Height + 1
	// Blocks arriving far faster than target spacing accumulate negative
	// time error, which should tighten (lower) the target.
	blockTime := anchor.Time + params.TargetSpacing*(height-anchor.Height) - params.HalfLife

	got := NextTarget(anchor, params, height, blockTime)

	anchorTarget := primitives.CompactToBig(anchor.Bits)
	gotTarget := primitives.CompactToBig(got)

	if gotTarget.Cmp(anchorTarget) >= 0 {
		t.Fatalf("expected target to tighten (shrink) when blocks are fast, anchor=%s got=%s", anchorTarget, gotTarget)
	}
}

func TestNextTargetClampsToPowLimit(t *testing.T) {
	params := testParams()
	anchor := Anchor{
		Height: 1,
		Time:   1700000000,
		Bits:   primitives.BigToCompact(params.PowLimit),
	}

	height := anchor.Height + 1
	// An enormous positive time error should clamp at PowLimit rather
	// than overshoot it.
	blockTime := anchor.Time + params.HalfLife*1000

	got := NextTarget(anchor, params, height, blockTime)
	gotTarget := primitives.CompactToBig(got)

	if gotTarget.Cmp(params.PowLimit) > 0 {
		t.Fatalf("target %s exceeds PowLimit %s", gotTarget, params.PowLimit)
	}
}

func TestCheckBitsRejectsMismatch(t *testing.T) {
	params := testParams()
	anchor := testAnchor(t, params)

	height := anchor.Height + 1
	blockTime := anchor.Time + params.TargetSpacing

	expected := NextTarget(anchor, params, height, blockTime)
	if err := CheckBits(anchor, params, height, blockTime, expected); err != nil {
		t.Fatalf("CheckBits should accept the ASERT-expected value: %v", err)
	}

	if err := CheckBits(anchor, params, height, blockTime, expected+1); err == nil {
		t.Fatal("expected CheckBits to reject a bits value that doesn't match the ASERT computation")
	}
}
