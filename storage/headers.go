// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package storage persists chainstate and peer-discovery data to the
// node's datadir as flat JSON files, per spec.md §4.11/§6:
// load-on-start, atomic write-then-rename on save, and a strict split
// between data whose corruption is fatal (headers.json) and data whose
// corruption merely resets a cache (peers.json, banlist.json,
// anchors.dat). exccd itself persists this kind of state in a
// goleveldb-backed database package rather than flat files (superseded
// here per spec.md's own persistence mandate), so the write-to-temp-
// then-rename discipline follows the general durable-write idiom used
// wherever the teacher tree writes a file that must never be observed
// half-written, rather than a single specific teacher file.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coinbasechain/cbcd/wire"
)

// HeaderRecord is the on-disk shape of one stored header. Parent
// linkage is reconstructed from PrevID on load; height is stored only
// as a cross-check against the reconstructed index.
type HeaderRecord struct {
	Header wire.BlockHeader `json:"header"`
	Height int64            `json:"height"`
}

// NewHeaderRecord builds a persisted record from a live block-index
// node's header and height.
func NewHeaderRecord(h wire.BlockHeader, height int64) HeaderRecord {
	return HeaderRecord{Header: h, Height: height}
}

// SaveHeaders writes every known header to <dir>/headers.json
// atomically: a temp file in the same directory is written and
// renamed over the destination, so a crash mid-write never corrupts
// the previous good copy (spec.md §6).
func SaveHeaders(dir string, records []HeaderRecord) error {
	return atomicWriteJSON(filepath.Join(dir, "headers.json"), records)
}

// LoadHeaders reads headers.json. A missing file returns an empty,
// non-error snapshot (first run). A present-but-corrupt file is fatal:
// spec.md §6 requires startup to abort rather than silently discard
// chain history.
func LoadHeaders(dir string) ([]HeaderRecord, error) {
	path := filepath.Join(dir, "headers.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: reading %s: %w", path, err)
	}

	var records []HeaderRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("storage: %s is corrupt, refusing to start: %w", path, err)
	}
	return records, nil
}

func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshaling %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("storage: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("storage: renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}
