// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"math/big"

	"github.com/coinbasechain/cbcd/primitives"
	"github.com/coinbasechain/cbcd/wire"
)

// TestNetMagic is the 4-byte network identifier for testnet peers.
const TestNetMagic wire.Network = 0x544e4301

// TestNetParams returns the network parameters for CoinbaseChain
// testnet.
func TestNetParams() *Params {
	powLimit := new(big.Int).Sub(new(big.Int).Lsh(bigOne, 240), bigOne)

	genesis := wire.BlockHeader{
		Version: 1,
		Time:    1735689600,
		Bits:    primitives.BigToCompact(powLimit),
	}

	return &Params{
		Name:        "testnet",
		Net:         TestNetMagic,
		DefaultPort: "19590",

		DNSSeeds: []string{
			"testnet-seed.coinbasechain.org",
		},

		GenesisHeader: genesis,
		GenesisID:     genesis.BlockHash(),

		PowLimit:     powLimit,
		PowLimitBits: primitives.BigToCompact(powLimit),
		PowSeed:      []byte("coinbasechain-testnet-v1"),

		TargetSpacing: 600,
		HalfLife:      24 * 3600,

		MinChainWork: big.NewInt(0),

		MaxTimeAdjustment: 2 * 3600,
	}
}
