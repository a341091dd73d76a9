// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pow implements the memory-hard proof-of-work engine described
// in spec.md §4.2: a keyed, epoch-rotated scratchpad hash with three
// verification modes (MINE, FULL, COMMITMENT_ONLY).
package pow

import (
	"encoding/binary"

	"github.com/minio/blake2b-simd"
)

// ScratchpadSize is the size, in bytes, of the per-epoch memory-hard
// scratchpad. Larger values raise the cost of ASIC/GPU parallelism at
// the expense of per-epoch build time and resident memory; 4 MiB keeps
// two live epochs (spec.md §4.2/§5) within a few tens of MiB per
// verification thread.
const ScratchpadSize = 4 * 1024 * 1024

const blockSize = 32

// mixRounds is how many scratchpad-dependent mixing steps Compute
// performs per hash. This is the PoW's only tunable "work" knob besides
// the difficulty target; it is fixed at genesis and never changes.
const mixRounds = 2048

// scratchpad is the epoch-keyed memory-hard lookup table. It is built
// once per epoch and shared read-only by every verification that falls
// in that epoch.
type scratchpad struct {
	blocks [][blockSize]byte
}

// buildScratchpad derives a ScratchpadSize buffer from key by chaining
// keyed BLAKE2b output blocks, the same "keyed hash with a personalized
// config" idiom the teacher's equihash package uses for its seed
// material (see equihash/equihash.go's newHash/person helpers), applied
// here to fill memory instead of to seed a birthday search.
func buildScratchpad(key []byte) (*scratchpad, error) {
	numBlocks := ScratchpadSize / blockSize
	sp := &scratchpad{blocks: make([][blockSize]byte, numBlocks)}

	cfg := &blake2b.Config{Key: key, Size: blockSize}
	h, err := blake2b.New(cfg)
	if err != nil {
		return nil, err
	}

	var seed [blockSize]byte
	copy(seed[:], key)
	prev := seed
	for i := 0; i < numBlocks; i++ {
		h.Reset()
		h.Write(prev[:])
		var idxBuf [8]byte
		binary.LittleEndian.PutUint64(idxBuf[:], uint64(i))
		h.Write(idxBuf[:])
		sum := h.Sum(nil)
		copy(sp.blocks[i][:], sum)
		prev = sp.blocks[i]
	}
	return sp, nil
}

// mix runs the scratchpad-dependent hashing loop that makes the PoW
// memory-hard: each round's output address depends on the previous
// round's hash, so an implementation that doesn't hold the whole
// scratchpad resident pays a random-access memory round trip on every
// step.
func (sp *scratchpad) mix(seed []byte) ([blockSize]byte, error) {
	h, err := blake2b.New(&blake2b.Config{Size: blockSize})
	if err != nil {
		return [blockSize]byte{}, err
	}

	var state [blockSize]byte
	h.Write(seed)
	copy(state[:], h.Sum(nil))

	numBlocks := uint64(len(sp.blocks))
	for round := 0; round < mixRounds; round++ {
		addr := binary.LittleEndian.Uint64(state[:8]) % numBlocks
		block := sp.blocks[addr]

		h.Reset()
		h.Write(state[:])
		h.Write(block[:])
		copy(state[:], h.Sum(nil))
	}
	return state, nil
}
