// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines the per-network parameters every other
// subsystem reads, in the style of exccd/chaincfg's Params struct and
// per-network *Params() constructors.
package chaincfg

import (
	"math/big"

	"github.com/coinbasechain/cbcd/primitives"
	"github.com/coinbasechain/cbcd/wire"
)

// Params holds every network-tunable constant. A node instantiated with
// RegNetParams() gets the permissive regtest behavior spec.md §6
// describes: lower PoW limit, distinct magic, and relaxed difficulty.
type Params struct {
	Name        string
	Net         wire.Network
	DefaultPort string

	DNSSeeds   []string
	FixedSeeds []string

	GenesisHeader wire.BlockHeader
	GenesisID     primitives.Hash256

	PowLimit     *big.Int
	PowLimitBits uint32

	// PowSeed is mixed into every epoch scratchpad build (spec.md
	// §4.2), so mainnet, testnet and regtest never share a PoW
	// surface even if a header happened to collide across networks.
	PowSeed []byte

	// TargetSpacing is the desired seconds between blocks.
	TargetSpacing int64
	// HalfLife is the ASERT half-life in seconds (spec.md §4.3).
	HalfLife int64

	// MinChainWork is the minimum cumulative chain work a tip must
	// reach before the initial-download latch can clear (spec.md
	// §4.5's is_initial_download).
	MinChainWork *big.Int

	// MaxTimeAdjustment is how far into the future a header's
	// timestamp may be relative to the network-adjusted time
	// (spec.md §8: "+2h" boundary).
	MaxTimeAdjustment int64
}
