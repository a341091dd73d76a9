package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coinbasechain/cbcd/wire"
)

func TestSaveLoadHeadersRoundTrip(t *testing.T) {
	dir := t.TempDir()

	records := []HeaderRecord{
		NewHeaderRecord(wire.BlockHeader{Version: 1, Time: 100, Bits: 0x1d00ffff, Nonce: 1}, 1),
		NewHeaderRecord(wire.BlockHeader{Version: 1, Time: 200, Bits: 0x1d00ffff, Nonce: 2}, 2),
	}

	if err := SaveHeaders(dir, records); err != nil {
		t.Fatalf("SaveHeaders: %v", err)
	}

	got, err := LoadHeaders(dir)
	if err != nil {
		t.Fatalf("LoadHeaders: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("got %d records, want %d", len(got), len(records))
	}
	for i := range records {
		if got[i].Height != records[i].Height || got[i].Header.Time != records[i].Header.Time {
			t.Errorf("record %d = %+v, want %+v", i, got[i], records[i])
		}
	}
}

func TestLoadHeadersMissingFileIsEmptyNotError(t *testing.T) {
	dir := t.TempDir()
	got, err := LoadHeaders(dir)
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil/empty slice, got %v", got)
	}
}

func TestLoadHeadersCorruptFileIsFatal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "headers.json"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("writing corrupt fixture: %v", err)
	}

	if _, err := LoadHeaders(dir); err == nil {
		t.Fatal("expected corrupt headers.json to return an error")
	}
}

func TestSaveHeadersIsAtomic(t *testing.T) {
	dir := t.TempDir()
	if err := SaveHeaders(dir, []HeaderRecord{NewHeaderRecord(wire.BlockHeader{}, 1)}); err != nil {
		t.Fatalf("SaveHeaders: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "headers.json.tmp")); !os.IsNotExist(err) {
		t.Fatalf("temp file should be renamed away, stat err = %v", err)
	}
}

func TestLoadPeersMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	got := LoadPeers(dir, nil)
	if len(got) != 0 {
		t.Fatalf("expected empty peers, got %v", got)
	}
}

func TestSaveLoadPeersRoundTrip(t *testing.T) {
	dir := t.TempDir()
	peers := []PeerAddr{
		{IP: "203.0.113.1", Port: 9590, Services: 1, LastSeen: time.Unix(1000, 0).UTC(), Tried: true},
	}
	SavePeers(dir, nil, peers)

	got := LoadPeers(dir, nil)
	if len(got) != 1 || got[0].IP != "203.0.113.1" || !got[0].Tried {
		t.Fatalf("got %+v, want round-tripped %+v", got, peers)
	}
}

func TestLoadPeersCorruptFileDiscardedNotFatal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "peers.json"), []byte("{not valid"), 0o644); err != nil {
		t.Fatalf("writing corrupt fixture: %v", err)
	}

	got := LoadPeers(dir, nil)
	if got != nil {
		t.Fatalf("expected corrupt peers.json to discard and return empty, got %v", got)
	}
}

func TestSaveLoadBanlistAndAnchorsRoundTrip(t *testing.T) {
	dir := t.TempDir()

	bans := []BanEntry{{IP: "198.51.100.5", Reason: "too many orphans", CreatedAt: time.Unix(1, 0).UTC(), ExpiresAt: time.Unix(2, 0).UTC()}}
	SaveBanlist(dir, nil, bans)
	gotBans := LoadBanlist(dir, nil)
	if len(gotBans) != 1 || gotBans[0].IP != "198.51.100.5" {
		t.Fatalf("got bans %+v, want %+v", gotBans, bans)
	}

	anchors := []AnchorAddr{{IP: "198.51.100.9", Port: 9590}}
	SaveAnchors(dir, nil, anchors)
	gotAnchors := LoadAnchors(dir, nil)
	if len(gotAnchors) != 1 || gotAnchors[0].Port != 9590 {
		t.Fatalf("got anchors %+v, want %+v", gotAnchors, anchors)
	}
}
