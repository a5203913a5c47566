package rtp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/dtls/v2"
	pionlog "github.com/pion/logging"
)

// DTLSTransportConfig is the DTLS-specific tuning layered on top of
// TransportConfig, grounded on the teacher's DTLSTransportConfig
// (transport_dtls.go). This secures the datagram channel itself
// (confidentiality/integrity of the transport), which is distinct from
// SRTP media encryption; SRTP remains a Non-goal per spec.md §1.
type DTLSTransportConfig struct {
	TransportConfig

	Certificates []tls.Certificate
	ClientCAs    *x509.CertPool

	CipherSuites       []dtls.CipherSuiteID
	InsecureSkipVerify bool
	HandshakeTimeout   time.Duration

	Logger Logger
}

// DefaultDTLSTransportConfig mirrors the teacher's
// DefaultDTLSTransportConfig defaults.
func DefaultDTLSTransportConfig() DTLSTransportConfig {
	return DTLSTransportConfig{
		TransportConfig:  DefaultTransportConfig(),
		HandshakeTimeout: 30 * time.Second,
		CipherSuites: []dtls.CipherSuiteID{
			dtls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			dtls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			dtls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			dtls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		},
	}
}

// dtlsTransport implements DatagramTransport by accepting DTLS-secured
// peers on one UDP listener, grounded on the teacher's DTLSTransport
// (transport_dtls.go), reshaped from a single-peer Send/Receive pair
// into the multi-peer bind/handler contract spec.md §6 requires (a
// session's control/data channel may hear from several participants).
type dtlsTransport struct {
	config DTLSTransportConfig
}

func NewDTLSTransport(config DTLSTransportConfig) DatagramTransport {
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = NopLogger()
	}
	return &dtlsTransport{config: config}
}

func (t *dtlsTransport) Bind(localAddr string, handler PacketHandler) (Channel, error) {
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("rtp: resolve local address %q: %w", localAddr, err)
	}

	dtlsConfig := &dtls.Config{
		Certificates:         t.config.Certificates,
		ClientCAs:            t.config.ClientCAs,
		CipherSuites:         t.config.CipherSuites,
		InsecureSkipVerify:   t.config.InsecureSkipVerify,
		ExtendedMasterSecret: dtls.RequireExtendedMasterSecret,
		LoggerFactory:        newPionLoggerFactory(t.config.Logger),
		ConnectContextMaker: func() (context.Context, func()) {
			return context.WithTimeout(context.Background(), t.config.HandshakeTimeout)
		},
	}

	listener, err := dtls.Listen("udp", addr, dtlsConfig)
	if err != nil {
		return nil, fmt.Errorf("rtp: dtls listen %q: %w", localAddr, err)
	}

	ch := &dtlsChannel{
		listener: listener,
		conns:    make(map[string]net.Conn),
		logger:   t.config.Logger,
	}
	ch.wg.Add(1)
	go ch.acceptLoop(handler)
	return ch, nil
}

type dtlsChannel struct {
	listener net.Listener
	logger   Logger

	mu    sync.Mutex
	conns map[string]net.Conn

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (c *dtlsChannel) acceptLoop(handler PacketHandler) {
	defer c.wg.Done()
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			return
		}
		c.mu.Lock()
		c.conns[conn.RemoteAddr().String()] = conn
		c.mu.Unlock()

		c.wg.Add(1)
		go c.readLoop(conn, handler)
	}
}

func (c *dtlsChannel) readLoop(conn net.Conn, handler PacketHandler) {
	defer c.wg.Done()
	buf := make([]byte, MaxPacketSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			c.mu.Lock()
			delete(c.conns, conn.RemoteAddr().String())
			c.mu.Unlock()
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		handler(conn.RemoteAddr(), data)
	}
}

func (c *dtlsChannel) Send(data []byte, remote net.Addr) error {
	c.mu.Lock()
	conn, ok := c.conns[remote.String()]
	c.mu.Unlock()
	if !ok {
		return newSessionError(KindTransportSendFailure, 0, fmt.Errorf("no dtls session established with %s", remote))
	}
	if _, err := conn.Write(data); err != nil {
		return classifyNetworkError("dtls write", err)
	}
	return nil
}

func (c *dtlsChannel) LocalAddr() net.Addr { return c.listener.Addr() }

func (c *dtlsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.listener.Close()
		c.mu.Lock()
		for _, conn := range c.conns {
			conn.Close()
		}
		c.mu.Unlock()
	})
	c.wg.Wait()
	return err
}

// newPionLoggerFactory bridges efflux's Logger to pion/logging.LoggerFactory,
// grounded on the teacher's direct use of pion/dtls (which requires one).
func newPionLoggerFactory(log Logger) pionlog.LoggerFactory {
	return &pionLoggerFactoryAdapter{log: log}
}

type pionLoggerFactoryAdapter struct{ log Logger }

func (f *pionLoggerFactoryAdapter) NewLogger(scope string) pionlog.LeveledLogger {
	return &pionLeveledLogger{log: f.log.With()}
}

type pionLeveledLogger struct{ log Logger }

func (l *pionLeveledLogger) Trace(msg string)                          {}
func (l *pionLeveledLogger) Tracef(format string, args ...interface{}) {}
func (l *pionLeveledLogger) Debug(msg string)                          { l.log.Debug(msg) }
func (l *pionLeveledLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
func (l *pionLeveledLogger) Info(msg string) { l.log.Info(msg) }
func (l *pionLeveledLogger) Infof(format string, args ...interface{}) {
	l.log.Info(fmt.Sprintf(format, args...))
}
func (l *pionLeveledLogger) Warn(msg string) { l.log.Warn(msg) }
func (l *pionLeveledLogger) Warnf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}
func (l *pionLeveledLogger) Error(msg string) { l.log.Error(msg) }
func (l *pionLeveledLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}
