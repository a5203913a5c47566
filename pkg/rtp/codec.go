package rtp

import (
	"encoding/binary"
	"fmt"

	pionrtcp "github.com/pion/rtcp"
	pionrtp "github.com/pion/rtp"
)

// ControlPacket is one constituent of a compound RTCP packet. pion/rtcp's
// own Packet interface covers SR/RR/SDES/BYE; AppDataPacket (this package)
// fills the APP gap, per spec.md §9's "dynamic packet polymorphism" note.
type ControlPacket = pionrtcp.Packet

// CompoundControlPacket is an ordered list of ControlPackets serialized
// back-to-back in one datagram, per spec.md §6.
type CompoundControlPacket []ControlPacket

// DataPacket is the RTP packet record spec.md §6 requires; it is a thin
// rename of pion/rtp.Packet so the rest of the engine names it the way
// spec.md does.
type DataPacket = pionrtp.Packet

// PacketCodec decodes/encodes the two wire formats the session consumes.
// The core never touches bytes directly; this is the collaborator
// interface spec.md §6 names.
type PacketCodec interface {
	DecodeData(b []byte) (*DataPacket, error)
	EncodeData(p *DataPacket) ([]byte, error)
	DecodeControl(b []byte) (CompoundControlPacket, error)
	EncodeControl(p CompoundControlPacket) ([]byte, error)
}

// pionCodec backs PacketCodec with pion/rtp and pion/rtcp, replacing the
// teacher's hand-rolled rtcp.go byte-packing (the teacher's own go.mod
// already pulls in pion/rtp; this finishes wiring the pair).
type pionCodec struct{}

// NewCodec returns the default PacketCodec implementation.
func NewCodec() PacketCodec { return pionCodec{} }

func (pionCodec) DecodeData(b []byte) (*DataPacket, error) {
	p := &pionrtp.Packet{}
	if err := p.Unmarshal(b); err != nil {
		return nil, fmt.Errorf("rtp: decode data packet: %w", err)
	}
	return p, nil
}

func (pionCodec) EncodeData(p *DataPacket) ([]byte, error) {
	b, err := p.Marshal()
	if err != nil {
		return nil, fmt.Errorf("rtp: encode data packet: %w", err)
	}
	return b, nil
}

// DecodeControl splits a compound RTCP datagram into its constituent
// packets by walking the per-packet length headers. Segments of RTCP
// payload type 204 decode as *AppDataPacket; every other segment goes
// through pion/rtcp.Unmarshal, which handles SR/RR/SDES/BYE natively but
// has no AppDataPacket type of its own.
func (pionCodec) DecodeControl(b []byte) (CompoundControlPacket, error) {
	var out CompoundControlPacket
	rest := b
	for len(rest) > 0 {
		if len(rest) < 4 {
			return nil, fmt.Errorf("rtcp: truncated header in compound packet")
		}
		length32 := binary.BigEndian.Uint16(rest[2:4])
		total := (int(length32) + 1) * 4
		if total > len(rest) {
			return nil, fmt.Errorf("rtcp: packet length %d exceeds remaining buffer %d", total, len(rest))
		}
		segment := rest[:total]
		pktType := segment[1]
		if pktType == appDataPacketType {
			app := &AppDataPacket{}
			if uerr := app.Unmarshal(segment); uerr != nil {
				return nil, fmt.Errorf("rtcp: decode app packet: %w", uerr)
			}
			out = append(out, app)
		} else {
			segPackets, uerr := pionrtcp.Unmarshal(segment)
			if uerr != nil {
				return nil, fmt.Errorf("rtcp: decode segment type %d: %w", pktType, uerr)
			}
			out = append(out, segPackets...)
		}
		rest = rest[total:]
	}
	return out, nil
}

func (pionCodec) EncodeControl(p CompoundControlPacket) ([]byte, error) {
	var buf []byte
	for _, pkt := range p {
		b, err := pkt.Marshal()
		if err != nil {
			return nil, fmt.Errorf("rtcp: encode compound packet: %w", err)
		}
		buf = append(buf, b...)
	}
	return buf, nil
}
