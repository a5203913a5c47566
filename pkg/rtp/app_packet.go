package rtp

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/rtcp"
)

// appDataPacketType is RTCP payload type 204 (APP), which pion/rtcp does
// not model with a dedicated struct. AppDataPacket fills that gap so
// APP packets compose transparently into a []rtcp.Packet compound, per
// spec.md §6's packet record contract.
const appDataPacketType = 204

// AppDataPacket is a minimal RFC 3550 §6.7 APP packet: sender SSRC, a
// 4-byte ASCII name, and an opaque application-defined payload.
type AppDataPacket struct {
	SenderSSRC uint32
	Subtype    uint8
	Name       [4]byte
	Data       []byte
}

var _ rtcp.Packet = (*AppDataPacket)(nil)

func (p *AppDataPacket) DestinationSSRC() []uint32 { return []uint32{p.SenderSSRC} }

func (p *AppDataPacket) Marshal() ([]byte, error) {
	// data is padded to a 32-bit boundary per RFC 3550 §6.7; when padding
	// is added, the P bit is set and the last byte holds the pad count.
	padded := len(p.Data)
	if rem := padded % 4; rem != 0 {
		padded += 4 - rem
	}
	length32 := (12 + padded) / 4 // header word + ssrc word + name word + data, in 32-bit words
	buf := make([]byte, 8+4+padded)
	buf[0] = 0x80 | (p.Subtype & 0x1f) // V=2, subtype in the 5 low bits
	if pad := padded - len(p.Data); pad > 0 {
		buf[0] |= 0x20 // P=1
		buf[len(buf)-1] = byte(pad)
	}
	buf[1] = appDataPacketType
	binary.BigEndian.PutUint16(buf[2:4], uint16(length32-1))
	binary.BigEndian.PutUint32(buf[4:8], p.SenderSSRC)
	copy(buf[8:12], p.Name[:])
	copy(buf[12:], p.Data)
	return buf, nil
}

func (p *AppDataPacket) MarshalSize() int {
	padded := len(p.Data)
	if rem := padded % 4; rem != 0 {
		padded += 4 - rem
	}
	return 8 + 4 + padded
}

func (p *AppDataPacket) Unmarshal(raw []byte) error {
	if len(raw) < 12 {
		return fmt.Errorf("rtcp: app packet too short: %d bytes", len(raw))
	}
	if raw[1] != appDataPacketType {
		return fmt.Errorf("rtcp: not an APP packet, type=%d", raw[1])
	}
	length32 := binary.BigEndian.Uint16(raw[2:4])
	total := (int(length32) + 1) * 4
	if total > len(raw) {
		return fmt.Errorf("rtcp: app packet length %d exceeds buffer %d", total, len(raw))
	}
	p.Subtype = raw[0] & 0x1f
	p.SenderSSRC = binary.BigEndian.Uint32(raw[4:8])
	copy(p.Name[:], raw[8:12])
	end := total
	if raw[0]&0x20 != 0 {
		pad := int(raw[total-1])
		if pad == 0 || 12+pad > total {
			return fmt.Errorf("rtcp: app packet padding %d invalid", pad)
		}
		end -= pad
	}
	p.Data = append([]byte(nil), raw[12:end]...)
	return nil
}

func (p *AppDataPacket) Header() rtcp.Header {
	return rtcp.Header{
		Count:  p.Subtype,
		Type:   rtcp.PacketType(appDataPacketType),
		Length: 0,
	}
}
