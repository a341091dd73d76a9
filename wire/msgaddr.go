package wire

import "io"

// MsgAddr carries a batch of known peer addresses, capped at
// MaxAddrPerMsg entries (spec.md §4.6/§6).
type MsgAddr struct {
	AddrList []NetAddress
}

func (m *MsgAddr) Command() string { return CmdAddr }

func (m *MsgAddr) Encode(w io.Writer) error {
	if len(m.AddrList) > MaxAddrPerMsg {
		return messageErr(ErrContainerTooLarge, "addr list of %d exceeds max %d",
			len(m.AddrList), MaxAddrPerMsg)
	}
	if err := WriteVarInt(w, uint64(len(m.AddrList))); err != nil {
		return err
	}
	for i := range m.AddrList {
		if err := m.AddrList[i].encode(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *MsgAddr) Decode(r io.Reader) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxAddrPerMsg {
		return messageErr(ErrContainerTooLarge, "addr list of %d exceeds max %d", count, MaxAddrPerMsg)
	}

	m.AddrList = make([]NetAddress, 0, minInt(int(count), 256))
	for i := uint64(0); i < count; i++ {
		na, err := decodeNetAddress(r)
		if err != nil {
			return err
		}
		m.AddrList = append(m.AddrList, na)
	}
	return nil
}
