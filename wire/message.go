package wire

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
)

// CommandSize is the fixed null-padded ASCII command field width.
const CommandSize = 12

// MaxMessagePayload is the largest payload a single message frame may
// carry, per spec.md §4.6.
const MaxMessagePayload = 4 * 1024 * 1024 // 4 MiB

// incrementalAllocChunk bounds how much memory a single container
// decode step allocates at once (spec.md §4.6 bullet 3).
const incrementalAllocChunk = 5 * 1024 * 1024 // 5 MiB

// Per-container hard caps, per spec.md §4.6/§6.
const (
	MaxAddrPerMsg       = 1000
	MaxInvPerMsg        = 50000
	MaxHeadersPerMsg    = 2000
	MaxLocatorHashes    = 101
	MaxUserAgentLen     = 256
)

// Network identifies the magic used to distinguish mainnet, testnet,
// and regtest peers from one another (spec.md §6).
type Network uint32

// Message is implemented by every command payload the wire codec
// dispatches, mirroring the BtcEncode/BtcDecode pair exccd/wire's
// msgcfilter.go uses, but without a protocol-version parameter since
// CoinbaseChain has not yet shipped a second wire revision.
type Message interface {
	Command() string
	Decode(r io.Reader) error
	Encode(w io.Writer) error
}

// frameHeader is the 24-byte message frame described in spec.md §4.6.
type frameHeader struct {
	Magic    Network
	Command  [CommandSize]byte
	Length   uint32
	Checksum [4]byte
}

func checksum(payload []byte) [4]byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	var out [4]byte
	copy(out[:], second[:4])
	return out
}

func commandBytes(command string) ([CommandSize]byte, error) {
	var buf [CommandSize]byte
	if len(command) > CommandSize {
		return buf, fmt.Errorf("wire: command %q exceeds %d bytes", command, CommandSize)
	}
	copy(buf[:], command)
	return buf, nil
}

// WriteMessage encodes msg into the 24-byte frame plus payload and
// writes it to w.
func WriteMessage(w io.Writer, magic Network, msg Message) error {
	var payloadBuf bytes.Buffer
	if err := msg.Encode(&payloadBuf); err != nil {
		return err
	}
	payload := payloadBuf.Bytes()
	if len(payload) > MaxMessagePayload {
		return messageErr(ErrOversizedMessage, "payload of %d bytes exceeds max %d",
			len(payload), MaxMessagePayload)
	}

	cmd, err := commandBytes(msg.Command())
	if err != nil {
		return err
	}

	hdr := frameHeader{
		Magic:    magic,
		Command:  cmd,
		Length:   uint32(len(payload)),
		Checksum: checksum(payload),
	}

	var hdrBuf [24]byte
	binary.LittleEndian.PutUint32(hdrBuf[0:4], uint32(hdr.Magic))
	copy(hdrBuf[4:16], hdr.Command[:])
	binary.LittleEndian.PutUint32(hdrBuf[16:20], hdr.Length)
	copy(hdrBuf[20:24], hdr.Checksum[:])

	if _, err := w.Write(hdrBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadMessage decodes the next frame from r, validating magic, size,
// and checksum before dispatching to the matching Message
// implementation. Unknown commands are returned as *MsgUnknown rather
// than an error, per spec.md §4.6's extensibility rule.
func ReadMessage(r io.Reader, magic Network) (Message, error) {
	var hdrBuf [24]byte
	if _, err := io.ReadFull(r, hdrBuf[:]); err != nil {
		return nil, err
	}

	gotMagic := Network(binary.LittleEndian.Uint32(hdrBuf[0:4]))
	if gotMagic != magic {
		return nil, messageErr(ErrBadMagic, "got %08x, want %08x", gotMagic, magic)
	}

	var cmdBuf [CommandSize]byte
	copy(cmdBuf[:], hdrBuf[4:16])
	command := commandString(cmdBuf)

	length := binary.LittleEndian.Uint32(hdrBuf[16:20])
	if length > MaxMessagePayload {
		return nil, messageErr(ErrOversizedMessage, "length %d exceeds max %d",
			length, MaxMessagePayload)
	}

	var wantChecksum [4]byte
	copy(wantChecksum[:], hdrBuf[20:24])

	payload, err := readCapped(r, uint64(length), incrementalAllocChunk)
	if err != nil {
		return nil, err
	}

	gotChecksum := checksum(payload)
	if gotChecksum != wantChecksum {
		return nil, messageErr(ErrBadChecksum, "checksum mismatch for command %q", command)
	}

	msg, known := newMessageForCommand(command)
	if !known {
		// Protocol extensibility: log and ignore, do not disconnect.
		return &MsgUnknown{CommandName: command, Payload: payload}, nil
	}

	if err := msg.Decode(bytes.NewReader(payload)); err != nil {
		return nil, err
	}
	return msg, nil
}

func commandString(buf [CommandSize]byte) string {
	end := 0
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	return string(buf[:end])
}

func newMessageForCommand(command string) (Message, bool) {
	switch command {
	case CmdVersion:
		return &MsgVersion{}, true
	case CmdVerAck:
		return &MsgVerAck{}, true
	case CmdPing:
		return &MsgPing{}, true
	case CmdPong:
		return &MsgPong{}, true
	case CmdAddr:
		return &MsgAddr{}, true
	case CmdGetAddr:
		return &MsgGetAddr{}, true
	case CmdInv:
		return &MsgInv{}, true
	case CmdGetHeaders:
		return &MsgGetHeaders{}, true
	case CmdHeaders:
		return &MsgHeaders{}, true
	default:
		return nil, false
	}
}

// MsgUnknown carries an unrecognized command's raw payload through to
// the peer layer, which logs it without disconnecting; unknown commands
// are not counted.
type MsgUnknown struct {
	CommandName string
	Payload     []byte
}

func (m *MsgUnknown) Command() string { return m.CommandName }
func (m *MsgUnknown) Decode(r io.Reader) error {
	return fmt.Errorf("wire: MsgUnknown cannot be decoded directly")
}
func (m *MsgUnknown) Encode(w io.Writer) error {
	_, err := w.Write(m.Payload)
	return err
}
