// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"math/big"

	"github.com/coinbasechain/cbcd/primitives"
	"github.com/coinbasechain/cbcd/wire"
)

// MainNetMagic is the 4-byte network identifier for mainnet peers.
const MainNetMagic wire.Network = 0xc01b5c44

var bigOne = big.NewInt(1)

// MainNetParams returns the network parameters for CoinbaseChain
// mainnet.
func MainNetParams() *Params {
	// mainPowLimit is the loosest allowed target: 2^236 - 1.
	mainPowLimit := new(big.Int).Sub(new(big.Int).Lsh(bigOne, 236), bigOne)

	genesis := wire.BlockHeader{
		Version:   1,
		PrevID:    primitives.Hash256{},
		MinerAddr: primitives.Hash160{},
		Time:      1735689600, // 2025-01-01T00:00:00Z
		Bits:      primitives.BigToCompact(mainPowLimit),
		Nonce:     0,
	}

	return &Params{
		Name:        "mainnet",
		Net:         MainNetMagic,
		DefaultPort: "9590",

		DNSSeeds: []string{
			"seed1.coinbasechain.org",
			"seed2.coinbasechain.org",
		},

		GenesisHeader: genesis,
		GenesisID:     genesis.BlockHash(),

		PowLimit:     mainPowLimit,
		PowLimitBits: primitives.BigToCompact(mainPowLimit),
		PowSeed:      []byte("coinbasechain-mainnet-v1"),

		TargetSpacing: 600,
		HalfLife:      2 * 24 * 3600,

		MinChainWork: big.NewInt(0),

		MaxTimeAdjustment: 2 * 3600,
	}
}
