// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config parses cbcd's flags and config file with
// github.com/jessevdk/go-flags, the same dependency exccd's go.mod
// requires for its own cmd/exccd config loading; exccd carries no
// config.go source in this tree to copy the INI-plus-flags layering
// from, so the precedence order here (defaults, then config file, then
// flags) follows go-flags' own documented IniParse-then-Parse pattern.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "cbcd.conf"
	defaultDataDirname    = "data"
	defaultLogFilename    = "cbcd.log"
	defaultLogLevel       = "info"
	defaultRPCListen      = "127.0.0.1:9591"
)

// Config is the full set of runtime options, populated from defaults,
// the config file, and finally command-line flags, in that order of
// increasing precedence (go-flags' native behavior with IniParse run
// before the final flags.Parse pass).
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir     string `long:"logdir" description:"Directory to log output"`
	DebugLevel string `long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`

	Listen      string `long:"listen" description:"Address to listen for inbound connections"`
	RPCListen   string `long:"rpclisten" description:"Address for the RPC/websocket server"`
	ConnectPeer []string `long:"connect" description:"Connect to the specified peers at startup"`
	AddPeer     []string `long:"addpeer" description:"Add a peer to connect to in addition to discovered peers"`

	MainNet bool `long:"mainnet" description:"Use the main network"`
	TestNet bool `long:"testnet" description:"Use the test network"`
	RegTest bool `long:"regtest" description:"Use the regression test network"`

	MaxInboundPeers  int `long:"maxinbound" description:"Not read: the connection manager's inbound cap is fixed at 125"`
	MaxOutboundPeers int `long:"maxoutbound" description:"Addresses dialed per outbound top-up round; the connection manager's outbound cap is fixed at 8"`
}

// Default returns a Config populated with cbcd's defaults, the
// starting point Load fills the config file and flags on top of.
func Default() *Config {
	return &Config{
		DataDir:          defaultAppDataDir(),
		LogDir:           filepath.Join(defaultAppDataDir(), "logs"),
		DebugLevel:       defaultLogLevel,
		Listen:           ":9590",
		RPCListen:        defaultRPCListen,
		MaxInboundPeers:  125,
		MaxOutboundPeers: 8,
	}
}

// Load parses the config file (if present) and then command-line
// flags on top of Default(), so a flag always overrides its config-file
// counterpart.
func Load() (*Config, error) {
	cfg := Default()

	preCfg := &Config{}
	preParser := flags.NewParser(preCfg, flags.Default&^flags.PrintErrors)
	_, _ = preParser.Parse()
	if preCfg.ConfigFile != "" {
		cfg.ConfigFile = preCfg.ConfigFile
	} else {
		cfg.ConfigFile = filepath.Join(cfg.DataDir, defaultConfigFilename)
	}

	if _, err := os.Stat(cfg.ConfigFile); err == nil {
		iniParser := flags.NewIniParser(flags.NewParser(cfg, flags.Default))
		if err := iniParser.ParseFile(cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", cfg.ConfigFile, err)
		}
	}

	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	netCount := 0
	for _, b := range []bool{c.MainNet, c.TestNet, c.RegTest} {
		if b {
			netCount++
		}
	}
	if netCount > 1 {
		return fmt.Errorf("config: only one of --mainnet/--testnet/--regtest may be set")
	}
	if netCount == 0 {
		c.MainNet = true
	}
	return nil
}

func defaultAppDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + string(os.PathSeparator) + "cbcd"
	}
	return filepath.Join(home, ".cbcd")
}
