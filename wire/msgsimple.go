package wire

import (
	"encoding/binary"
	"io"
)

// MsgVerAck is the empty acknowledgement of a successful version
// exchange.
type MsgVerAck struct{}

func (m *MsgVerAck) Command() string          { return CmdVerAck }
func (m *MsgVerAck) Encode(w io.Writer) error  { return nil }
func (m *MsgVerAck) Decode(r io.Reader) error  { return nil }

// MsgGetAddr requests the peer's known address set. Empty payload.
type MsgGetAddr struct{}

func (m *MsgGetAddr) Command() string         { return CmdGetAddr }
func (m *MsgGetAddr) Encode(w io.Writer) error { return nil }
func (m *MsgGetAddr) Decode(r io.Reader) error { return nil }

// MsgPing carries a nonce the peer must echo back in a MsgPong.
type MsgPing struct {
	Nonce uint64
}

func (m *MsgPing) Command() string { return CmdPing }

func (m *MsgPing) Encode(w io.Writer) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], m.Nonce)
	_, err := w.Write(buf[:])
	return err
}

func (m *MsgPing) Decode(r io.Reader) error {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	m.Nonce = binary.LittleEndian.Uint64(buf[:])
	return nil
}

// MsgPong echoes the nonce from the most recent MsgPing.
type MsgPong struct {
	Nonce uint64
}

func (m *MsgPong) Command() string { return CmdPong }

func (m *MsgPong) Encode(w io.Writer) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], m.Nonce)
	_, err := w.Write(buf[:])
	return err
}

func (m *MsgPong) Decode(r io.Reader) error {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	m.Nonce = binary.LittleEndian.Uint64(buf[:])
	return nil
}
