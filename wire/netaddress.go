package wire

import (
	"encoding/binary"
	"io"
	"net"
)

// netAddressSize is 4 (time) + 8 (services) + 16 (ip) + 2 (port).
const netAddressSize = 30

// NetAddress is the wire encoding of a peer address: time, services,
// a 16-byte IP (v4-mapped for IPv4 addresses), and a big-endian port,
// per spec.md §6's addr payload layout.
type NetAddress struct {
	Time     uint32
	Services uint64
	IP       net.IP
	Port     uint16
}

func (na *NetAddress) encode(w io.Writer) error {
	var buf [netAddressSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], na.Time)
	binary.LittleEndian.PutUint64(buf[4:12], na.Services)

	ip16 := na.IP.To16()
	if ip16 == nil {
		ip16 = make(net.IP, 16)
	}
	copy(buf[12:28], ip16)
	binary.BigEndian.PutUint16(buf[28:30], na.Port)

	_, err := w.Write(buf[:])
	return err
}

func decodeNetAddress(r io.Reader) (NetAddress, error) {
	var na NetAddress
	var buf [netAddressSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return na, err
	}
	na.Time = binary.LittleEndian.Uint32(buf[0:4])
	na.Services = binary.LittleEndian.Uint64(buf[4:12])
	ip := make(net.IP, 16)
	copy(ip, buf[12:28])
	na.IP = ip
	na.Port = binary.BigEndian.Uint16(buf[28:30])
	return na, nil
}
