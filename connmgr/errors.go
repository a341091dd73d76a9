// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connmgr

import (
	"fmt"
	"strconv"
)

type connError string

func (e connError) Error() string { return string(e) }

const errTooManyOutbound = connError("connmgr: outbound peer limit reached")

func errDiscouraged(address string) error {
	return fmt.Errorf("connmgr: %s is discouraged", address)
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
