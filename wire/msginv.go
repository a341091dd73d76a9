package wire

import (
	"encoding/binary"
	"io"

	"github.com/coinbasechain/cbcd/primitives"
)

// InvType identifies what an inventory vector refers to.
type InvType uint32

// Inventory vector types. InvHeader is the only kind CoinbaseChain ever
// advertises, since there are no block bodies or transactions.
const (
	InvHeader InvType = 1
)

// InvVect is a single (type, hash) inventory entry.
type InvVect struct {
	Type InvType
	Hash primitives.Hash256
}

// MsgInv advertises a batch of known items, capped at MaxInvPerMsg
// entries (spec.md §4.6/§6).
type MsgInv struct {
	InvList []InvVect
}

func (m *MsgInv) Command() string { return CmdInv }

func (m *MsgInv) Encode(w io.Writer) error {
	if len(m.InvList) > MaxInvPerMsg {
		return messageErr(ErrContainerTooLarge, "inv list of %d exceeds max %d",
			len(m.InvList), MaxInvPerMsg)
	}
	if err := WriteVarInt(w, uint64(len(m.InvList))); err != nil {
		return err
	}
	for _, iv := range m.InvList {
		var buf [4 + primitives.HashSize]byte
		binary.LittleEndian.PutUint32(buf[0:4], uint32(iv.Type))
		copy(buf[4:], iv.Hash[:])
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MsgInv) Decode(r io.Reader) error {
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxInvPerMsg {
		return messageErr(ErrContainerTooLarge, "inv list of %d exceeds max %d", count, MaxInvPerMsg)
	}

	m.InvList = make([]InvVect, 0, minInt(int(count), 4096))
	for i := uint64(0); i < count; i++ {
		var buf [4 + primitives.HashSize]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		var iv InvVect
		iv.Type = InvType(binary.LittleEndian.Uint32(buf[0:4]))
		copy(iv.Hash[:], buf[4:])
		m.InvList = append(m.InvList, iv)
	}
	return nil
}
