package wire

import (
	"encoding/binary"
	"io"
)

// MaxVarIntSize is the largest value a VarInt may encode, per spec.md
// §4.6: values beyond this are rejected before any allocation sized off
// of them is attempted.
const MaxVarIntSize = 32 * 1024 * 1024 // 32 MiB

// ReadVarInt reads a variable-length integer and rejects any value
// larger than MaxVarIntSize, preventing the pre-allocation attack
// spec.md §4.6 calls out.
func ReadVarInt(r io.Reader) (uint64, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, err
	}

	var v uint64
	switch prefix[0] {
	case 0xff:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		v = binary.LittleEndian.Uint64(b[:])
	case 0xfe:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		v = uint64(binary.LittleEndian.Uint32(b[:]))
	case 0xfd:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		v = uint64(binary.LittleEndian.Uint16(b[:]))
	default:
		v = uint64(prefix[0])
	}

	if v > MaxVarIntSize {
		return 0, messageErr(ErrBadVarInt, "varint %d exceeds max %d", v, MaxVarIntSize)
	}
	return v, nil
}

// WriteVarInt writes v using the minimal encoding for its magnitude.
func WriteVarInt(w io.Writer, v uint64) error {
	switch {
	case v < 0xfd:
		_, err := w.Write([]byte{byte(v)})
		return err
	case v <= 0xffff:
		var b [3]byte
		b[0] = 0xfd
		binary.LittleEndian.PutUint16(b[1:], uint16(v))
		_, err := w.Write(b[:])
		return err
	case v <= 0xffffffff:
		var b [5]byte
		b[0] = 0xfe
		binary.LittleEndian.PutUint32(b[1:], uint32(v))
		_, err := w.Write(b[:])
		return err
	default:
		var b [9]byte
		b[0] = 0xff
		binary.LittleEndian.PutUint64(b[1:], v)
		_, err := w.Write(b[:])
		return err
	}
}

// readCapped reads n bytes from r in chunks of at most chunkSize,
// avoiding a single blind allocation sized directly off an
// attacker-controlled count (spec.md §4.6 bullet 3).
func readCapped(r io.Reader, n uint64, chunkSize int) ([]byte, error) {
	out := make([]byte, 0, minInt(int(n), chunkSize))
	remaining := n
	for remaining > 0 {
		chunk := remaining
		if chunk > uint64(chunkSize) {
			chunk = uint64(chunkSize)
		}
		buf := make([]byte, chunk)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		out = append(out, buf...)
		remaining -= chunk
	}
	return out, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
