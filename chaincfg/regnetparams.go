// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"math/big"

	"github.com/coinbasechain/cbcd/primitives"
	"github.com/coinbasechain/cbcd/wire"
)

// RegNetMagic is the 4-byte network identifier for regtest peers.
const RegNetMagic wire.Network = 0x72656701

// RegNetParams returns permissive parameters for local regression
// testing: a very loose PoW limit and a short ASERT half-life, per
// spec.md §6 ("--regtest toggles chain parameters: lower PoW limit,
// different magic, permissive difficulty").
func RegNetParams() *Params {
	powLimit := new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)

	genesis := wire.BlockHeader{
		Version: 1,
		Time:    1735689600,
		Bits:    primitives.BigToCompact(powLimit),
	}

	return &Params{
		Name:        "regtest",
		Net:         RegNetMagic,
		DefaultPort: "29590",

		GenesisHeader: genesis,
		GenesisID:     genesis.BlockHash(),

		PowLimit:     powLimit,
		PowLimitBits: primitives.BigToCompact(powLimit),
		PowSeed:      []byte("coinbasechain-regtest-v1"),

		TargetSpacing: 1,
		HalfLife:      60,

		MinChainWork: big.NewInt(0),

		MaxTimeAdjustment: 2 * 3600,
	}
}
