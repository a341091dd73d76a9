package wire

import "io"

// MsgHeaders carries a batch of headers, capped at MaxHeadersPerMsg
// (spec.md §4.6/§6/§4.10). Each header is the fixed 100-byte encoding;
// there is no trailing transaction-count byte since this is a
// headers-only chain.
type MsgHeaders struct {
	Headers []BlockHeader
}

func (m *MsgHeaders) Command() string { return CmdHeaders }

func (m *MsgHeaders) Encode(w io.Writer) error {
	if len(m.Headers) > MaxHeadersPerMsg {
		return messageErr(ErrContainerTooLarge, "headers batch of %d exceeds max %d",
			len(m.Headers), MaxHeadersPerMsg)
	}
	if err := WriteVarInt(w, uint64(len(m.Headers))); err != nil {
		return err
	}
	for i := range m.Headers {
		if err := m.Headers[i].Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *MsgHeaders) Decode(r io.Reader) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxHeadersPerMsg {
		return messageErr(ErrContainerTooLarge, "headers batch of %d exceeds max %d", count, MaxHeadersPerMsg)
	}

	m.Headers = make([]BlockHeader, 0, minInt(int(count), MaxHeadersPerMsg))
	buf := make([]byte, HeaderSize)
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		hdr, err := DecodeHeader(buf)
		if err != nil {
			return err
		}
		m.Headers = append(m.Headers, hdr)
	}
	return nil
}
