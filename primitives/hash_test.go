package primitives

import "testing"

func TestHash256StringRoundTrip(t *testing.T) {
	var h Hash256
	for i := range h {
		h[i] = byte(i)
	}

	s := h.String()
	back, err := NewHash256FromStr(s)
	if err != nil {
		t.Fatalf("NewHash256FromStr(%q): %v", s, err)
	}
	if back != h {
		t.Fatalf("round trip mismatch: got %x, want %x", back, h)
	}
}

func TestHash256IsZero(t *testing.T) {
	var zero Hash256
	if !zero.IsZero() {
		t.Fatal("zero-value Hash256 should report IsZero")
	}
	zero[5] = 1
	if zero.IsZero() {
		t.Fatal("non-zero Hash256 should not report IsZero")
	}
}

func TestHash256Less(t *testing.T) {
	var a, b Hash256
	a[31] = 1
	b[31] = 2
	if !a.Less(b) {
		t.Fatal("expected a < b")
	}
	if b.Less(a) {
		t.Fatal("expected b not < a")
	}
	if a.Less(a) {
		t.Fatal("a should not be less than itself")
	}
}
