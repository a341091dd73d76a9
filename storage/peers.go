// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/decred/slog"
)

// PeerAddr is one entry in the address manager's new/tried tables, the
// persisted shape of peers.json.
type PeerAddr struct {
	IP       string    `json:"ip"`
	Port     uint16    `json:"port"`
	Services uint64    `json:"services"`
	LastSeen time.Time `json:"last_seen"`
	Tried    bool      `json:"tried"`
}

// BanEntry is one discouraged or banned address, the persisted shape
// of banlist.json.
type BanEntry struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AnchorAddr is one of the last few outbound peers a node stayed
// connected to, persisted so restart can reconnect to them first and
// resist eclipse attacks that rely on a full address-table wipe.
type AnchorAddr struct {
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
}

// SavePeers, SaveBanlist and SaveAnchors are non-fatal on failure: a
// lost address table or ban list only costs re-discovery time, never
// consensus safety, so a write error is logged and swallowed rather
// than propagated to the caller (spec.md §6).

func SavePeers(dir string, log slog.Logger, peers []PeerAddr) {
	saveNonFatal(dir, "peers.json", log, peers)
}

func SaveBanlist(dir string, log slog.Logger, bans []BanEntry) {
	saveNonFatal(dir, "banlist.json", log, bans)
}

func SaveAnchors(dir string, log slog.Logger, anchors []AnchorAddr) {
	saveNonFatal(dir, "anchors.dat", log, anchors)
}

func saveNonFatal(dir, name string, log slog.Logger, v interface{}) {
	path := filepath.Join(dir, name)
	if err := atomicWriteJSON(path, v); err != nil && log != nil {
		log.Warnf("storage: failed to persist %s: %v", name, err)
	}
}

// LoadPeers, LoadBanlist and LoadAnchors mirror the save side: a
// missing file is a normal first run, and a corrupt file is logged and
// discarded rather than treated as fatal, since every one of these
// tables is a cache the node can safely rebuild from scratch.

func LoadPeers(dir string, log slog.Logger) []PeerAddr {
	var out []PeerAddr
	loadNonFatal(dir, "peers.json", log, &out)
	return out
}

func LoadBanlist(dir string, log slog.Logger) []BanEntry {
	var out []BanEntry
	loadNonFatal(dir, "banlist.json", log, &out)
	return out
}

func LoadAnchors(dir string, log slog.Logger) []AnchorAddr {
	var out []AnchorAddr
	loadNonFatal(dir, "anchors.dat", log, &out)
	return out
}

func loadNonFatal(dir, name string, log slog.Logger, out interface{}) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		if log != nil {
			log.Warnf("storage: failed to read %s, starting empty: %v", name, err)
		}
		return
	}
	if err := json.Unmarshal(data, out); err != nil {
		if log != nil {
			log.Warnf("storage: %s is corrupt, discarding and starting empty: %v", name, err)
		}
	}
}
