// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/coinbasechain/cbcd/internal/config"
	"github.com/coinbasechain/cbcd/internal/lockfile"
	"github.com/coinbasechain/cbcd/internal/logger"
	"github.com/coinbasechain/cbcd/node"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cbcd: %v\n", err)
		return 1
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "cbcd: creating data directory: %v\n", err)
		return 1
	}

	lock, err := lockfile.Acquire(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cbcd: %v\n", err)
		return 1
	}
	defer lock.Release()

	if err := logger.InitLogRotator(filepath.Join(cfg.LogDir, "cbcd.log")); err != nil {
		fmt.Fprintf(os.Stderr, "cbcd: initializing logger: %v\n", err)
		return 1
	}
	logger.SetLogLevel(cfg.DebugLevel)
	defer logger.Close()

	n, err := node.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cbcd: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := n.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cbcd: %v\n", err)
		return 1
	}
	return 0
}
