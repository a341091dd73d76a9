package wire

import (
	"encoding/binary"
	"io"

	"github.com/coinbasechain/cbcd/primitives"
)

// MsgGetHeaders requests headers starting after the first locator entry
// the recipient recognizes, up to the optional stop hash, per spec.md
// §6/§4.10.
type MsgGetHeaders struct {
	ProtocolVersion    int32
	BlockLocatorHashes []primitives.Hash256
	HashStop           primitives.Hash256
}

func (m *MsgGetHeaders) Command() string { return CmdGetHeaders }

func (m *MsgGetHeaders) Encode(w io.Writer) error {
	if len(m.BlockLocatorHashes) > MaxLocatorHashes {
		return messageErr(ErrContainerTooLarge, "locator of %d exceeds max %d",
			len(m.BlockLocatorHashes), MaxLocatorHashes)
	}
	var verBuf [4]byte
	binary.LittleEndian.PutUint32(verBuf[:], uint32(m.ProtocolVersion))
	if _, err := w.Write(verBuf[:]); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(m.BlockLocatorHashes))); err != nil {
		return err
	}
	for _, h := range m.BlockLocatorHashes {
		if _, err := w.Write(h[:]); err != nil {
			return err
		}
	}
	_, err := w.Write(m.HashStop[:])
	return err
}

func (m *MsgGetHeaders) Decode(r io.Reader) error {
	var verBuf [4]byte
	if _, err := io.ReadFull(r, verBuf[:]); err != nil {
		return err
	}
	m.ProtocolVersion = int32(binary.LittleEndian.Uint32(verBuf[:]))

	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxLocatorHashes {
		return messageErr(ErrContainerTooLarge, "locator of %d exceeds max %d", count, MaxLocatorHashes)
	}

	m.BlockLocatorHashes = make([]primitives.Hash256, count)
	for i := range m.BlockLocatorHashes {
		if _, err := io.ReadFull(r, m.BlockLocatorHashes[i][:]); err != nil {
			return err
		}
	}

	_, err = io.ReadFull(r, m.HashStop[:])
	return err
}
