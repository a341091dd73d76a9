package primitives

import (
	"math/big"
	"testing"

	"github.com/decred/dcrd/math/uint256"
)

func TestCompactToBigRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		compact uint32
	}{
		{"exponent 1, decodes to zero", 0x01003456},
		{"small value", 0x02008000},
		{"typical target", 0x1d00ffff},
		{"large exponent", 0x20123456},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := CompactToBig(tt.compact)
			back := BigToCompact(n)
			if back != tt.compact {
				// Not every compact value round-trips byte for byte
				// (mantissas with a high bit set re-normalize), so
				// compare the decoded big.Int instead.
				if CompactToBig(back).Cmp(n) != 0 {
					t.Errorf("round trip changed value: %#08x -> %s -> %#08x -> %s",
						tt.compact, n, back, CompactToBig(back))
				}
			}
		})
	}
}

func TestIsCanonicalCompact(t *testing.T) {
	tests := []struct {
		name    string
		compact uint32
		want    bool
	}{
		{"canonical", 0x1d00ffff, true},
		{"negative sign bit set", 0x01800000, false},
		{"zero mantissa", 0x04000000, true},
	}
	for _, tt := range tests {
		if got := IsCanonicalCompact(tt.compact); got != tt.want {
			t.Errorf("%s: IsCanonicalCompact(%#08x) = %v, want %v", tt.name, tt.compact, got, tt.want)
		}
	}
}

func TestCalcWorkIncreasesAsTargetShrinks(t *testing.T) {
	looseTarget := big.NewInt(0).Sub(new(big.Int).Lsh(big.NewInt(1), 240), big.NewInt(1))
	tightTarget := big.NewInt(0).Sub(new(big.Int).Lsh(big.NewInt(1), 200), big.NewInt(1))

	looseWork := CalcWork(BigToCompact(looseTarget))
	tightWork := CalcWork(BigToCompact(tightTarget))

	if looseWork.Cmp(&tightWork) >= 0 {
		t.Fatalf("expected work for a loose (large) target to be less than work for a tight (small) one")
	}
}

func TestCalcWorkZeroTarget(t *testing.T) {
	work := CalcWork(0)
	var zero uint256.Uint256
	if work.Cmp(&zero) != 0 {
		t.Fatalf("CalcWork(0) should be zero")
	}
}
