package wire

import (
	"encoding/binary"
	"io"
)

// MsgVersion is the handshake-opening message, per spec.md §6.
type MsgVersion struct {
	ProtocolVersion int32
	Services        uint64
	Timestamp       int64
	AddrRecv        NetAddress
	AddrFrom        NetAddress
	Nonce           uint64
	UserAgent       string
	StartHeight     int32
	Relay           bool
}

func (m *MsgVersion) Command() string { return CmdVersion }

func (m *MsgVersion) Encode(w io.Writer) error {
	var fixed [4 + 8 + 8]byte
	binary.LittleEndian.PutUint32(fixed[0:4], uint32(m.ProtocolVersion))
	binary.LittleEndian.PutUint64(fixed[4:12], m.Services)
	binary.LittleEndian.PutUint64(fixed[12:20], uint64(m.Timestamp))
	if _, err := w.Write(fixed[:]); err != nil {
		return err
	}
	if err := m.AddrRecv.encode(w); err != nil {
		return err
	}
	if err := m.AddrFrom.encode(w); err != nil {
		return err
	}
	var nonceBuf [8]byte
	binary.LittleEndian.PutUint64(nonceBuf[:], m.Nonce)
	if _, err := w.Write(nonceBuf[:]); err != nil {
		return err
	}
	if err := writeVarString(w, m.UserAgent); err != nil {
		return err
	}
	var tailBuf [4]byte
	binary.LittleEndian.PutUint32(tailBuf[:], uint32(m.StartHeight))
	if _, err := w.Write(tailBuf[:]); err != nil {
		return err
	}
	relay := byte(0)
	if m.Relay {
		relay = 1
	}
	_, err := w.Write([]byte{relay})
	return err
}

func (m *MsgVersion) Decode(r io.Reader) error {
	var fixed [4 + 8 + 8]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return err
	}
	m.ProtocolVersion = int32(binary.LittleEndian.Uint32(fixed[0:4]))
	m.Services = binary.LittleEndian.Uint64(fixed[4:12])
	m.Timestamp = int64(binary.LittleEndian.Uint64(fixed[12:20]))

	var err error
	if m.AddrRecv, err = decodeNetAddress(r); err != nil {
		return err
	}
	if m.AddrFrom, err = decodeNetAddress(r); err != nil {
		return err
	}

	var nonceBuf [8]byte
	if _, err := io.ReadFull(r, nonceBuf[:]); err != nil {
		return err
	}
	m.Nonce = binary.LittleEndian.Uint64(nonceBuf[:])

	m.UserAgent, err = readVarString(r, MaxUserAgentLen)
	if err != nil {
		return err
	}

	var tailBuf [4]byte
	if _, err := io.ReadFull(r, tailBuf[:]); err != nil {
		return err
	}
	m.StartHeight = int32(binary.LittleEndian.Uint32(tailBuf[:]))

	var relayBuf [1]byte
	if _, err := io.ReadFull(r, relayBuf[:]); err != nil {
		return err
	}
	m.Relay = relayBuf[0] != 0
	return nil
}

func writeVarString(w io.Writer, s string) error {
	if err := WriteVarInt(w, uint64(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readVarString(r io.Reader, maxLen uint64) (string, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return "", err
	}
	if n > maxLen {
		return "", messageErr(ErrContainerTooLarge, "varstring of %d bytes exceeds max %d", n, maxLen)
	}
	buf, err := readCapped(r, n, incrementalAllocChunk)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}
