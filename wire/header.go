// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/coinbasechain/cbcd/primitives"
)

// HeaderSize is the fixed, invariant wire size of a BlockHeader, per
// spec.md §3: 4 + 32 + 20 + 4 + 4 + 4 + 32 = 100 bytes. init below
// enforces this never silently drifts if a field is resized.
const HeaderSize = 100

func init() {
	const sum = 4 + primitives.HashSize + primitives.AddrSize + 4 + 4 + 4 + primitives.HashSize
	if sum != HeaderSize {
		panic(fmt.Sprintf("wire: header field layout sums to %d, want %d", sum, HeaderSize))
	}
}

// BlockHeader is the 100-byte fixed layout described in spec.md §3. It
// carries no transaction or body data: this is a headers-only chain.
type BlockHeader struct {
	// Version is the header format/consensus version. Must be >= 1.
	Version int32

	// PrevID is the id of the parent block. All-zero only for genesis.
	PrevID primitives.Hash256

	// MinerAddr is an opaque miner tag, not a spendable address.
	MinerAddr primitives.Hash160

	// Time is the block time, Unix seconds.
	Time uint32

	// Bits is the compact-encoded PoW target.
	Bits uint32

	// Nonce is the PoW nonce.
	Nonce uint32

	// PowCommitment is the memory-hard PoW artifact committed in the
	// header (spec.md §4.2).
	PowCommitment primitives.Hash256
}

// Serialize writes the 100-byte wire encoding of the header to w.
func (h *BlockHeader) Serialize(w io.Writer) error {
	var buf [HeaderSize]byte
	h.Encode(&buf)
	_, err := w.Write(buf[:])
	return err
}

// Encode writes the header's wire encoding into buf, which MUST be
// exactly HeaderSize bytes. Encode never allocates; it is called on
// every accept_header invocation so it stays on the stack.
func (h *BlockHeader) Encode(buf *[HeaderSize]byte) {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(h.Version))
	off += 4
	copy(buf[off:], h.PrevID[:])
	off += primitives.HashSize
	copy(buf[off:], h.MinerAddr[:])
	off += primitives.AddrSize
	binary.LittleEndian.PutUint32(buf[off:], h.Time)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.Bits)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.Nonce)
	off += 4
	copy(buf[off:], h.PowCommitment[:])
	off += primitives.HashSize
	if off != HeaderSize {
		panic("wire: BlockHeader.Encode wrote wrong number of bytes")
	}
}

// DecodeHeader decodes a 100-byte buffer into a BlockHeader. The caller
// is responsible for ensuring buf is exactly HeaderSize bytes; container
// decoders (HEADERS messages) enforce that before calling this.
func DecodeHeader(buf []byte) (BlockHeader, error) {
	var h BlockHeader
	if len(buf) != HeaderSize {
		return h, fmt.Errorf("wire: header buffer is %d bytes, want %d", len(buf), HeaderSize)
	}
	off := 0
	h.Version = int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	copy(h.PrevID[:], buf[off:off+primitives.HashSize])
	off += primitives.HashSize
	copy(h.MinerAddr[:], buf[off:off+primitives.AddrSize])
	off += primitives.AddrSize
	h.Time = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.Bits = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.Nonce = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	copy(h.PowCommitment[:], buf[off:off+primitives.HashSize])
	return h, nil
}

// PowPreimage returns the first 68 bytes of the encoded header (every
// field except pow_commitment), the input the PoW engine hashes in MINE
// and FULL modes (spec.md §4.2).
func (h *BlockHeader) PowPreimage() []byte {
	var buf [HeaderSize]byte
	h.Encode(&buf)
	preimage := make([]byte, HeaderSize-primitives.HashSize)
	copy(preimage, buf[:HeaderSize-primitives.HashSize])
	return preimage
}

// BlockHash computes the header id: SHA-256(SHA-256(header)), byte
// reversed into little-endian hash convention (spec.md §4.1). Each call
// constructs fresh hasher state, since reuse of a finalized hash.Hash is
// undefined per spec.md §4.1.
func (h *BlockHeader) BlockHash() primitives.Hash256 {
	var buf [HeaderSize]byte
	h.Encode(&buf)

	first := sha256.Sum256(buf[:])
	second := sha256.Sum256(first[:])

	var id primitives.Hash256
	for i := 0; i < primitives.HashSize; i++ {
		id[i] = second[primitives.HashSize-1-i]
	}
	return id
}
