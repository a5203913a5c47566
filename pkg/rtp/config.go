package rtp

import "time"

// DefaultToolVersion is the SDES TOOL default, ported from the Java
// ancestor's VERSION constant ("efflux_0.4_15092010").
const DefaultToolVersion = "efflux-go/1.0"

// MaxCollisionsBeforeConsideringLoop is the default collision budget
// before the arbiter declares a loop, taken verbatim from the Java
// DefaultRtpSession.MAX_COLLISIONS_BEFORE_CONSIDERING_LOOP.
const MaxCollisionsBeforeConsideringLoop = 3

// SessionConfig is the Session's immutable-after-init configuration,
// per spec.md §3. Built by DefaultSessionConfig; each Option sets one
// field and is applied by the caller before the config is passed to
// NewSession. Grounded on the teacher's DefaultTransportConfig/
// media_builder config-struct pattern.
type SessionConfig struct {
	ID          string
	PayloadType uint8

	BindHost string

	// LocalDataAddr/LocalControlAddr are the two local endpoints init()
	// binds (spec.md §3's "localParticipant"): one for the RTP data
	// channel, one for the RTCP control channel. Both must be set before
	// construction succeeds (spec.md §7.7).
	LocalDataAddr    string
	LocalControlAddr string

	// LocalInfo seeds the SDES fields the session advertises for itself
	// (CNAME/NAME/EMAIL/PHONE/LOCATION/NOTE/TOOL); its SSRC field is
	// ignored, since the local SSRC is generated or rotated by the
	// session itself.
	LocalInfo ParticipantInfo

	DiscardOutOfOrder                 bool
	BandwidthLimit                    int
	SendBufferSize                    int
	ReceiveBufferSize                 int
	MaxCollisionsBeforeConsideringLoop uint32
	AutomatedRtcpHandling              bool
	TryToUpdateOnEverySdes            bool
	PeriodicRtcpSendInterval          time.Duration
	IdleTimeout                       time.Duration
	SweepInterval                     time.Duration
}

// Option mutates a SessionConfig at construction time.
type Option func(*SessionConfig)

// DefaultSessionConfig mirrors the Java ancestor's configuration
// defaults (DISCARD_OUT_OF_ORDER=true, BANDWIDTH_LIMIT=256,
// SEND/RECEIVE_BUFFER_SIZE=1500, AUTOMATED_RTCP_HANDLING=true,
// TRY_TO_UPDATE_ON_EVERY_SDES=true), with the RTCP interval and idle
// sweep tuned per SPEC_FULL.md §4.
func DefaultSessionConfig(id string, payloadType uint8) SessionConfig {
	return SessionConfig{
		ID:                                 id,
		PayloadType:                        payloadType,
		DiscardOutOfOrder:                  true,
		BandwidthLimit:                     256,
		SendBufferSize:                     1500,
		ReceiveBufferSize:                  1500,
		MaxCollisionsBeforeConsideringLoop: MaxCollisionsBeforeConsideringLoop,
		AutomatedRtcpHandling:              true,
		TryToUpdateOnEverySdes:             true,
		PeriodicRtcpSendInterval:           DefaultRtcpInterval,
		IdleTimeout:                        DefaultIdleTimeout,
		SweepInterval:                      DefaultSweepInterval,
	}
}

func WithBindHost(host string) Option { return func(c *SessionConfig) { c.BindHost = host } }

func WithDiscardOutOfOrder(v bool) Option {
	return func(c *SessionConfig) { c.DiscardOutOfOrder = v }
}

func WithBandwidthLimit(kbps int) Option {
	return func(c *SessionConfig) { c.BandwidthLimit = kbps }
}

func WithMaxCollisionsBeforeConsideringLoop(n uint32) Option {
	return func(c *SessionConfig) { c.MaxCollisionsBeforeConsideringLoop = n }
}

func WithAutomatedRtcpHandling(v bool) Option {
	return func(c *SessionConfig) { c.AutomatedRtcpHandling = v }
}

func WithTryToUpdateOnEverySdes(v bool) Option {
	return func(c *SessionConfig) { c.TryToUpdateOnEverySdes = v }
}

func WithPeriodicRtcpSendInterval(d time.Duration) Option {
	return func(c *SessionConfig) { c.PeriodicRtcpSendInterval = d }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(c *SessionConfig) { c.IdleTimeout = d }
}

func WithLocalAddrs(dataAddr, controlAddr string) Option {
	return func(c *SessionConfig) {
		c.LocalDataAddr = dataAddr
		c.LocalControlAddr = controlAddr
	}
}

func WithLocalInfo(info ParticipantInfo) Option {
	return func(c *SessionConfig) { c.LocalInfo = info }
}

// validate enforces spec.md §7.7: payloadType range and local-address
// presence are checked at construction, before any bind is attempted.
func (c SessionConfig) validate() error {
	if c.PayloadType > 127 {
		return ErrInvalidPayloadType
	}
	if c.LocalDataAddr == "" || c.LocalControlAddr == "" {
		return ErrLocalParticipantNotReceiver
	}
	return nil
}
