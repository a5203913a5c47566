package rtp

import (
	"fmt"
	"net"
	"sync"
)

// MinPacketSize/MaxPacketSize bound the size of datagrams this transport
// will hand upstream, grounded on the teacher's MinRTPPacketSize (12,
// the bare RTP header) / MaxRTPPacketSize (1500, MTU) constants. RTCP
// datagrams can be smaller than an RTP header, so only the upper bound
// is enforced uniformly; DecodeData/DecodeControl reject anything
// malformed regardless.
const (
	MinPacketSize = 1
	MaxPacketSize = 1500
)

// udpTransport implements DatagramTransport over net.UDPConn. Grounded
// on the teacher's UDPTransport (transport_udp.go), reshaped from a
// single bound socket with an explicit Send/Receive pair into the
// bind(localAddr, handler)->Channel contract spec.md §6 requires (the
// Session binds this twice: once for data, once for control).
type udpTransport struct {
	config TransportConfig
}

// NewUDPTransport returns the default DatagramTransport implementation.
func NewUDPTransport(config TransportConfig) DatagramTransport {
	if config.ReceiveBufferSize == 0 {
		config.ReceiveBufferSize = MaxPacketSize
	}
	return &udpTransport{config: config}
}

func (t *udpTransport) Bind(localAddr string, handler PacketHandler) (Channel, error) {
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("rtp: resolve local address %q: %w", localAddr, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("rtp: bind %q: %w", localAddr, err)
	}

	if err := tuneSocket(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rtp: tune socket for %q: %w", localAddr, err)
	}

	ch := &udpChannel{conn: conn, bufferSize: t.config.ReceiveBufferSize}
	ch.wg.Add(1)
	go ch.receiveLoop(handler)
	return ch, nil
}

type udpChannel struct {
	conn       *net.UDPConn
	bufferSize int

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (c *udpChannel) Send(data []byte, remote net.Addr) error {
	udpAddr, ok := remote.(*net.UDPAddr)
	if !ok {
		resolved, err := net.ResolveUDPAddr("udp", remote.String())
		if err != nil {
			return fmt.Errorf("rtp: resolve remote address %q: %w", remote.String(), err)
		}
		udpAddr = resolved
	}
	_, err := c.conn.WriteToUDP(data, udpAddr)
	if err != nil {
		return classifyNetworkError("udp write", err)
	}
	return nil
}

func (c *udpChannel) LocalAddr() net.Addr { return c.conn.LocalAddr() }

func (c *udpChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	c.wg.Wait()
	return err
}

func (c *udpChannel) receiveLoop(handler PacketHandler) {
	defer c.wg.Done()
	buf := make([]byte, c.bufferSize)
	for {
		n, addr, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			return // closed or fatal; the Session already observed Close().
		}
		if n < MinPacketSize || n > MaxPacketSize {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		handler(addr, data)
	}
}

// classifyNetworkError wraps a raw net error as a TransportSendFailure,
// grounded on the teacher's classifyNetworkError/ClassifiedError
// (transport_udp.go), collapsed to the single kind spec.md §7 names
// (egress is best-effort UDP; no caller distinguishes retryable vs not).
func classifyNetworkError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return newSessionError(KindTransportSendFailure, 0, fmt.Errorf("%s: %w", operation, err))
}
