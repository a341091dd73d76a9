package primitives

import (
	"math/big"

	"github.com/decred/dcrd/math/uint256"
)

// compactTargetErr is a named string with an Error() method, the same
// minimal error shape wire.ErrorKind uses elsewhere in this tree.
// github.com/decred/dcrd/blockchain/standalone/v2's CompactToBig and
// BigToCompact (exercised in exccd/blockchain/standalone's
// example_test.go, the only source that package ships in this pack) are
// the functions this target codec mirrors in behavior; that module is
// an external dependency here, not vendored source, so only its
// documented behavior is grounding, not any error type of its own.
type compactTargetErr string

func (e compactTargetErr) Error() string { return string(e) }

// ErrNonCanonicalCompact is returned when a compact-encoded target uses
// the negative-sign bit or a non-minimal mantissa encoding.
const ErrNonCanonicalCompact = compactTargetErr("non-canonical compact target encoding")

// bigOne is reused the way exccd's difficulty.go reuses bigZero.
var bigOne = big.NewInt(1)

// bigTwo256 is 2^256, used by CalcWork to invert a target into work.
var bigTwo256 = new(big.Int).Lsh(bigOne, 256)

// CompactToBig converts a compact-encoded target (one byte exponent,
// three byte mantissa, per spec.md §4.1) to a big.Int. It performs no
// canonical-form validation; callers that need to reject non-canonical
// encodings MUST call IsCanonicalCompact first.
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	var n *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		n = big.NewInt(int64(mantissa))
	} else {
		n = big.NewInt(int64(mantissa))
		n.Lsh(n, 8*(exponent-3))
	}

	if isNegative {
		n = n.Neg(n)
	}
	return n
}

// IsCanonicalCompact rejects the negative-sign bit and any mantissa whose
// high bit is set without the leading zero byte spec.md §4.1 requires
// for canonical form (prevents sign ambiguity when the value is later
// reinterpreted as a big-endian integer).
func IsCanonicalCompact(compact uint32) bool {
	if compact&0x00800000 != 0 {
		return false
	}
	exponent := compact >> 24
	mantissa := compact & 0x007fffff
	if mantissa != 0 {
		if exponent <= 3 {
			// The value must not be representable with a smaller exponent.
			shifted := mantissa << (8 * (3 - exponent))
			if shifted&0xff000000 == 0 && exponent != 0 {
				return false
			}
		}
	}
	if mantissa&0x00800000 != 0 {
		return false
	}
	return true
}

// BigToCompact is the inverse of CompactToBig, used by the ASERT
// difficulty rule to encode a computed target back into header.bits.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	var mantissa uint32
	exponent := uint(len(n.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

// CalcWork returns the work contributed by a block with the given
// compact target: floor(2^256 / (target+1)), per spec.md §4.1. The
// result is a fixed-width 256-bit integer so that summing it into
// chain_work over an arbitrarily long chain never grows an unbounded
// big.Int allocation on the hot accept_header path.
func CalcWork(bits uint32) uint256.Uint256 {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return uint256.Uint256{}
	}

	denominator := new(big.Int).Add(target, bigOne)
	workBig := new(big.Int).Div(bigTwo256, denominator)

	var buf [32]byte
	workBytes := workBig.Bytes()
	copy(buf[32-len(workBytes):], workBytes)

	var work uint256.Uint256
	work.SetBytes(&buf)
	return work
}

// BigToWork packs an arbitrary non-negative big.Int into a fixed-width
// 256-bit value, used to compare chain_work against a configured
// MinChainWork floor (spec.md §4.5's IBD latch). n must fit in 256
// bits; CoinbaseChain's MinChainWork parameters always do.
func BigToWork(n *big.Int) uint256.Uint256 {
	var buf [32]byte
	nb := n.Bytes()
	copy(buf[32-len(nb):], nb)

	var work uint256.Uint256
	work.SetBytes(&buf)
	return work
}
