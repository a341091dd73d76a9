// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !windows

// Package lockfile guards a datadir against a second cbcd instance
// starting against it concurrently, the way dcrd locks its data
// directory before touching headers.json.
package lockfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Lock is a held advisory lock on a datadir's lock file.
type Lock struct {
	f *os.File
}

// Acquire takes an exclusive, non-blocking flock on <dir>/.lock,
// failing immediately if another process already holds it.
func Acquire(dir string) (*Lock, error) {
	path := dir + string(os.PathSeparator) + ".lock"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("lockfile: opening %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("lockfile: %s is already locked by another cbcd process: %w", path, err)
	}
	return &Lock{f: f}, nil
}

// Release unlocks and closes the lock file.
func (l *Lock) Release() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
