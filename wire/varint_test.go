package wire

import (
	"bytes"
	"testing"
)

func TestVarIntRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 0xfc, 0xfd, 0xffff, 0x10000, 0xffffff, 0x1000000, MaxVarIntSize}

	for _, v := range values {
		var buf bytes.Buffer
		if err := WriteVarInt(&buf, v); err != nil {
			t.Fatalf("WriteVarInt(%d): %v", v, err)
		}
		got, err := ReadVarInt(&buf)
		if err != nil {
			t.Fatalf("ReadVarInt after writing %d: %v", v, err)
		}
		if got != v {
			t.Errorf("round trip: wrote %d, read %d", v, got)
		}
	}
}

func TestReadVarIntRejectsOversized(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteVarInt(&buf, MaxVarIntSize+1); err != nil {
		t.Fatalf("WriteVarInt: %v", err)
	}
	if _, err := ReadVarInt(&buf); err == nil {
		t.Fatal("expected ReadVarInt to reject a value above MaxVarIntSize")
	}
}
