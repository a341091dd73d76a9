// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package primitives implements the fixed-width integer types shared by
// every other package in the node: the 256-bit block identifier, the
// 160-bit miner tag, and the big.Int-based compact target codec used by
// the PoW and difficulty packages.
package primitives

import (
	"encoding/hex"
	"fmt"
)

// HashSize is the size, in bytes, of a Hash256 value.
const HashSize = 32

// AddrSize is the size, in bytes, of a Hash160 value.
const AddrSize = 20

// Hash256 is a 256-bit hash used for block identifiers and PoW
// commitments. It is stored internally in the same byte order it is
// serialized on the wire (little-endian), so String reverses the bytes
// to print the conventional big-endian display form.
type Hash256 [HashSize]byte

// Hash160 is a 160-bit opaque tag used for the header's miner field.
type Hash160 [AddrSize]byte

// String returns the big-endian hex display form of the hash, matching
// the convention used by block explorers: the wire/storage byte order is
// little-endian, so the display form is the byte-reversed hex string.
func (h Hash256) String() string {
	var reversed Hash256
	for i := 0; i < HashSize/2; i++ {
		reversed[i], reversed[HashSize-1-i] = h[HashSize-1-i], h[i]
	}
	return hex.EncodeToString(reversed[:])
}

// IsZero reports whether the hash is the all-zero value, which denotes
// the absent parent of the genesis header.
func (h Hash256) IsZero() bool {
	return h == Hash256{}
}

// Less reports whether h sorts before other under byte-wise comparison,
// used to break chain-work ties deterministically (spec.md §4.5.3).
func (h Hash256) Less(other Hash256) bool {
	for i := 0; i < HashSize; i++ {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// NewHash256FromStr parses a big-endian display-form hex string (as
// produced by String) into a Hash256.
func NewHash256FromStr(s string) (Hash256, error) {
	var h Hash256
	if len(s) != HashSize*2 {
		return h, fmt.Errorf("primitives: invalid hash string length %d", len(s))
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	for i := 0; i < HashSize; i++ {
		h[i] = decoded[HashSize-1-i]
	}
	return h, nil
}

func (a Hash160) String() string {
	return hex.EncodeToString(a[:])
}
