package rtp

import "net"

// PacketHandler receives raw inbound bytes plus their origin address.
// The Session wires one in per channel (data, control) at bind time.
type PacketHandler func(origin net.Addr, data []byte)

// Channel is a bound datagram endpoint: one side of a transport, either
// the data channel or the control channel. Grounded on the teacher's
// Transport interface (transport.go), narrowed to the bind/send/close
// shape spec.md §6 names.
type Channel interface {
	Send(data []byte, remote net.Addr) error
	LocalAddr() net.Addr
	Close() error
}

// DatagramTransport is the collaborator interface the core consumes
// without touching sockets or bytes directly (spec.md §1, §6). A single
// DatagramTransport implementation is asked to Bind twice per session:
// once for the RTP data channel, once for the RTCP control channel.
type DatagramTransport interface {
	Bind(localAddr string, handler PacketHandler) (Channel, error)
}

// TransportConfig is shared bind-time tuning, grounded on the teacher's
// DefaultTransportConfig.
type TransportConfig struct {
	SendBufferSize    int
	ReceiveBufferSize int
}

func DefaultTransportConfig() TransportConfig {
	return TransportConfig{SendBufferSize: 1500, ReceiveBufferSize: 1500}
}
