package rtp

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"
	"github.com/pion/rtcp"
	pionrtp "github.com/pion/rtp"
	"go.uber.org/zap"
)

// Session ties codec, transport, participant database, and scheduler
// together behind the send/receive API and listener fan-out spec.md
// §4.F names. Grounded on the teacher's DefaultRtpSession equivalent
// (rtp_session.go/rtcp_session.go, both now superseded): two bound
// channels, atomic runtime counters, and a state machine guarding
// init/terminate.
type Session struct {
	config  SessionConfig
	log     Logger
	metrics *Metrics

	codec      PacketCodec
	transport  DatagramTransport
	dispatcher *OriginDispatcher

	machine *fsm.FSM
	mu      sync.Mutex // serializes init/terminate and the config mutators below

	localSsrc      atomic.Uint32
	sequence       atomic.Uint32 // low 16 bits are the wire sequence number
	sentOrReceived atomic.Bool
	collisions     atomic.Uint32
	sentBytes      atomic.Uint64
	sentPackets    atomic.Uint64
	running        atomic.Bool

	dataChannel    Channel
	controlChannel Channel

	db      *ParticipantDatabase
	arbiter SsrcArbiter
	sched   *RtcpScheduler

	dataListeners    listenerList[DataListener]
	controlListeners listenerList[ControlListener]
	eventListeners   listenerList[EventListener]
}

// NewSession validates config and wires every collaborator, but binds
// nothing until Init is called. transport/codec/log/metrics default to
// the UDP transport, the pion-backed codec, a no-op logger, and
// disabled metrics respectively when nil.
func NewSession(config SessionConfig, transport DatagramTransport, codec PacketCodec, log Logger, metrics *Metrics) (*Session, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		transport = NewUDPTransport(DefaultTransportConfig())
	}
	if codec == nil {
		codec = NewCodec()
	}
	if log == nil {
		log = NopLogger()
	}
	if metrics == nil {
		metrics = NewMetrics(DefaultMetricsConfig())
	}

	s := &Session{
		config:    config,
		log:       log.With(zap.String("session_id", config.ID)),
		metrics:   metrics,
		codec:     codec,
		transport: transport,
	}
	s.localSsrc.Store(generateSSRC())
	s.sequence.Store(uint32(generateInitialSequenceNumber()))

	s.machine = newSessionFSM(func(event string) {
		s.log.Debug("session transition", zap.String("event", event))
	})

	s.db = NewParticipantDatabase(s, config.IdleTimeout, config.SweepInterval)
	s.dispatcher = NewOriginDispatcher(DefaultDispatchWorkers)
	s.sched = NewRtcpScheduler(
		func() time.Duration { return s.config.PeriodicRtcpSendInterval },
		s.IsRunning,
		s.emitCompoundRtcp,
	)
	return s, nil
}

// --- ParticipantEventListener (injected into the database) ---

func (s *Session) participantCreatedFromDataPacket(p *Participant) {
	s.fireEvent(func(l EventListener) { l.ParticipantJoinedFromData(s, p) })
}

func (s *Session) participantCreatedFromSdesChunk(p *Participant) {
	s.fireEvent(func(l EventListener) { l.ParticipantJoinedFromControl(s, p) })
}

func (s *Session) participantDeleted(p *Participant) {
	s.fireEvent(func(l EventListener) { l.ParticipantDeleted(s, p) })
}

// --- lifecycle ---

// Init binds the data and control channels and, on success, sends the
// join RTCP and starts the scheduler (spec.md §4.F). If either bind
// fails, any channel that did succeed is released and the session
// remains Created.
func (s *Session) Init() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.Current() != StateCreated {
		return false
	}

	dataCh, err := s.transport.Bind(s.config.LocalDataAddr, s.onDataBytes)
	if err != nil {
		s.log.Error("bind data channel failed", zap.Error(err))
		s.metrics.Event(KindBindFailure.String())
		return false
	}

	controlCh, err := s.transport.Bind(s.config.LocalControlAddr, s.onControlBytes)
	if err != nil {
		dataCh.Close()
		s.log.Error("bind control channel failed", zap.Error(err))
		s.metrics.Event(KindBindFailure.String())
		return false
	}

	if err := s.machine.Event(context.Background(), eventInit); err != nil {
		dataCh.Close()
		controlCh.Close()
		s.log.Error("state transition to running rejected", zap.Error(err))
		return false
	}

	s.dataChannel = dataCh
	s.controlChannel = controlCh
	s.running.Store(true)

	s.sendJoin()

	if s.config.AutomatedRtcpHandling {
		s.sched.Start()
	}
	return true
}

// Terminate tears the session down exactly once (spec.md §5's
// idempotence requirement): subsequent calls are no-ops.
func (s *Session) Terminate() { s.terminate(nil) }

func (s *Session) terminate(cause error) {
	s.mu.Lock()
	if !s.running.CompareAndSwap(true, false) {
		s.mu.Unlock()
		return
	}
	_ = s.machine.Event(context.Background(), eventTerminate)
	s.mu.Unlock()

	s.sched.Stop()

	if s.dataChannel != nil {
		s.dataChannel.Close()
	}

	local := s.localSsrc.Load()
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	s.broadcastControl(CompoundControlPacket{s.buildSdes(), s.buildBye(local, reason)})

	if s.controlChannel != nil {
		s.controlChannel.Close()
	}

	s.db.Stop()
	s.dispatcher.Stop()

	s.fireEvent(func(l EventListener) { l.SessionTerminated(s, cause) })

	s.dataListeners.clear()
	s.controlListeners.clear()
	s.eventListeners.clear()
}

func (s *Session) IsRunning() bool { return s.running.Load() }

func (s *Session) State() string { return s.machine.Current() }

// --- egress ---

// SendData builds a DataPacket from payload/timestamp/marker and sends
// it exactly as SendDataPacket would.
func (s *Session) SendData(payload []byte, timestamp uint32, marker bool) bool {
	return s.SendDataPacket(&DataPacket{
		Header:  pionrtp.Header{Timestamp: timestamp, Marker: marker},
		Payload: payload,
	})
}

// SendDataPacket stamps packet with the session's current payloadType,
// localSsrc, and next sequence number, then broadcasts it to every
// active receiver. It returns true iff dispatch was initiated, matching
// spec.md §4.F: per-receiver transport failures are logged and
// swallowed, never reflected in the return value.
func (s *Session) SendDataPacket(packet *DataPacket) bool {
	if !s.IsRunning() {
		return false
	}

	packet.Version = 2
	packet.PayloadType = s.config.PayloadType
	packet.SSRC = s.localSsrc.Load()
	packet.SequenceNumber = uint16(s.sequence.Add(1))

	encoded, err := s.codec.EncodeData(packet)
	if err != nil {
		s.log.Error("encode data packet failed", zap.Error(err))
		return false
	}

	s.sentOrReceived.Store(true)

	s.db.DoWithReceivers(func(p *Participant) {
		if err := s.dataChannel.Send(encoded, p.DataAddress); err != nil {
			s.log.Warn("data send failed", zap.Error(err))
		}
	})

	s.sentBytes.Add(uint64(len(encoded)))
	s.sentPackets.Add(1)
	s.metrics.DataSent(len(packet.Payload))
	return true
}

// SendControlPacket sends pkt to every active receiver's control
// address. When AutomatedRtcpHandling is on, only AppDataPacket kinds
// may pass through this public entry point; SR/RR/SDES/BYE remain
// engine-owned.
func (s *Session) SendControlPacket(pkt CompoundControlPacket) bool {
	if !s.IsRunning() {
		return false
	}
	if s.config.AutomatedRtcpHandling {
		for _, p := range pkt {
			if _, ok := p.(*AppDataPacket); !ok {
				return false
			}
		}
	}
	return s.broadcastControl(pkt)
}

func (s *Session) broadcastControl(pkt CompoundControlPacket) bool {
	encoded, err := s.codec.EncodeControl(pkt)
	if err != nil {
		s.log.Error("encode control packet failed", zap.Error(err))
		return false
	}
	s.db.DoWithReceivers(func(p *Participant) {
		if err := s.controlChannel.Send(encoded, p.ControlAddress); err != nil {
			s.log.Warn("control send failed", zap.Error(err))
		}
	})
	return true
}

func (s *Session) sendJoin() {
	s.broadcastControl(CompoundControlPacket{&rtcp.ReceiverReport{SSRC: s.localSsrc.Load()}, s.buildSdes()})
}

// --- receiver admission ---

func (s *Session) AddReceiver(p *Participant) bool    { return s.db.AddReceiver(p) }
func (s *Session) RemoveReceiver(p *Participant) bool { return s.db.RemoveReceiver(p) }

func (s *Session) GetRemoteParticipant(ssrc uint32) (*Participant, bool) {
	return s.db.GetParticipant(ssrc)
}

func (s *Session) GetRemoteParticipants() map[uint32]*Participant { return s.db.GetMembers() }

// --- listener registration ---

func (s *Session) AddDataListener(l DataListener) { s.dataListeners.add(l) }
func (s *Session) RemoveDataListener(l DataListener) {
	s.dataListeners.remove(l, func(a, b DataListener) bool { return a == b })
}

func (s *Session) AddControlListener(l ControlListener) { s.controlListeners.add(l) }
func (s *Session) RemoveControlListener(l ControlListener) {
	s.controlListeners.remove(l, func(a, b ControlListener) bool { return a == b })
}

func (s *Session) AddEventListener(l EventListener) { s.eventListeners.add(l) }
func (s *Session) RemoveEventListener(l EventListener) {
	s.eventListeners.remove(l, func(a, b EventListener) bool { return a == b })
}

func (s *Session) fireEvent(fn func(EventListener)) {
	for _, l := range s.eventListeners.snapshot() {
		listener := l
		invokeListener(s.log, "EventListener", func() { fn(listener) })
	}
}

// --- counters ---

func (s *Session) LocalSsrc() uint32   { return s.localSsrc.Load() }
func (s *Session) SentBytes() uint64   { return s.sentBytes.Load() }
func (s *Session) SentPackets() uint64 { return s.sentPackets.Load() }
func (s *Session) Collisions() uint32  { return s.collisions.Load() }

// --- configuration mutators ---
//
// spec.md §3 declares SessionConfig immutable after init; these setters
// are how a caller changes a tunable before that point. Each rejects
// with ErrInvalidConfigurationAfterInit once running, grounded on the
// Java ancestor's setters that throw IllegalArgumentException when
// running.get() (spec.md §7 kind 6). mu is the same lock Init/terminate
// hold, so a setter can never race the running flag flipping under it.

func (s *Session) SetDiscardOutOfOrder(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrInvalidConfigurationAfterInit
	}
	s.config.DiscardOutOfOrder = v
	return nil
}

func (s *Session) SetBandwidthLimit(kbps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrInvalidConfigurationAfterInit
	}
	s.config.BandwidthLimit = kbps
	return nil
}

func (s *Session) SetSendBufferSize(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrInvalidConfigurationAfterInit
	}
	s.config.SendBufferSize = n
	return nil
}

func (s *Session) SetReceiveBufferSize(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrInvalidConfigurationAfterInit
	}
	s.config.ReceiveBufferSize = n
	return nil
}

func (s *Session) SetMaxCollisionsBeforeConsideringLoop(n uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrInvalidConfigurationAfterInit
	}
	s.config.MaxCollisionsBeforeConsideringLoop = n
	return nil
}

func (s *Session) SetAutomatedRtcpHandling(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrInvalidConfigurationAfterInit
	}
	s.config.AutomatedRtcpHandling = v
	return nil
}

func (s *Session) SetTryToUpdateOnEverySdes(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrInvalidConfigurationAfterInit
	}
	s.config.TryToUpdateOnEverySdes = v
	return nil
}

func (s *Session) SetPeriodicRtcpSendInterval(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrInvalidConfigurationAfterInit
	}
	s.config.PeriodicRtcpSendInterval = d
	return nil
}

// --- ingress ---

func (s *Session) onDataBytes(origin net.Addr, data []byte) {
	s.dispatcher.Dispatch(origin, func() {
		packet, err := s.codec.DecodeData(data)
		if err != nil {
			s.log.Debug("decode data packet failed", zap.Error(err))
			return
		}
		s.onData(origin, packet)
	})
}

func (s *Session) onData(origin net.Addr, packet *DataPacket) {
	if !s.IsRunning() {
		return
	}
	if packet.PayloadType != s.config.PayloadType {
		return
	}

	result := s.arbiter.Classify(
		packet.SSRC,
		s.localSsrc.Load(),
		s.localDataAddr(),
		origin,
		s.collisions.Load(),
		s.config.MaxCollisionsBeforeConsideringLoop,
		func(ssrc uint32) bool { _, ok := s.db.GetParticipant(ssrc); return ok },
	)

	// terminate stops the dispatcher and waits for its workers, this one
	// included, so it runs on its own goroutine.
	switch result.Verdict {
	case VerdictSelfLoop:
		go s.terminate(newSessionError(KindLoopDetected, packet.SSRC, nil))
		return
	case VerdictLoopByCollisions:
		go s.terminate(newSessionError(KindLoopByCollisions, packet.SSRC, nil))
		return
	case VerdictCollision:
		s.resolveCollision(result.NewLocalSsrc)
	}

	participant := s.db.GetOrCreateFromDataPacket(origin, packet)
	seq := int32(packet.SequenceNumber)
	if s.config.DiscardOutOfOrder && seq <= participant.LastSeq() {
		return
	}
	participant.SetLastSequenceNumber(seq)
	participant.RecordDataReceipt(origin)
	s.sentOrReceived.Store(true)
	s.metrics.DataReceived(len(packet.Payload))

	info := participant.Snapshot().Info
	for _, l := range s.dataListeners.snapshot() {
		listener := l
		invokeListener(s.log, "DataListener", func() { listener.DataPacketReceived(s, info, packet) })
	}
}

// resolveCollision implements spec.md §4.F's onData collision branch:
// announce the old SSRC's departure and re-join under the new one if
// this session had already sent or received traffic, otherwise switch
// silently per RFC 3550 §8.1.
func (s *Session) resolveCollision(newSsrc uint32) {
	s.collisions.Add(1)
	s.metrics.CollisionResolved()
	old := s.localSsrc.Load()

	if s.sentOrReceived.Load() {
		s.broadcastControl(CompoundControlPacket{s.buildSdes(), s.buildBye(old, "ssrc collision")})
		s.localSsrc.Store(newSsrc)
		s.sendJoin()
	} else {
		s.localSsrc.Store(newSsrc)
	}

	s.fireEvent(func(l EventListener) { l.ResolvedSsrcConflict(s, old, newSsrc) })
}

func (s *Session) onControlBytes(origin net.Addr, data []byte) {
	s.dispatcher.Dispatch(origin, func() {
		compound, err := s.codec.DecodeControl(data)
		if err != nil {
			s.log.Debug("decode control packet failed", zap.Error(err))
			return
		}
		s.onControl(origin, compound)
	})
}

func (s *Session) onControl(origin net.Addr, compound CompoundControlPacket) {
	if !s.IsRunning() {
		return
	}

	if !s.config.AutomatedRtcpHandling {
		for _, l := range s.controlListeners.snapshot() {
			listener := l
			invokeListener(s.log, "ControlListener", func() { listener.ControlPacketReceived(s, compound) })
		}
		return
	}

	for _, pkt := range compound {
		switch typed := pkt.(type) {
		case *rtcp.SenderReport:
			s.handleReport(origin, typed.SSRC, typed.Reports)
		case *rtcp.ReceiverReport:
			s.handleReport(origin, typed.SSRC, typed.Reports)
		case *rtcp.SourceDescription:
			s.handleSdes(origin, typed)
		case *rtcp.Goodbye:
			s.handleBye(typed)
		case *AppDataPacket:
			app := typed
			for _, l := range s.controlListeners.snapshot() {
				listener := l
				invokeListener(s.log, "ControlListener", func() { listener.AppDataReceived(s, app) })
			}
		default:
			// unknown kind: ignore, per spec.md §4.F.
		}
	}
}

func (s *Session) handleReport(origin net.Addr, senderSsrc uint32, reports []rtcp.ReceptionReport) {
	sender, ok := s.db.GetParticipant(senderSsrc)
	if !ok {
		return
	}
	sender.RecordControlReceipt(origin)

	local := s.localSsrc.Load()
	for _, block := range reports {
		if block.SSRC == local {
			// Reserved for future jitter/loss tracking; spec.md §9
			// leaves fraction-lost/cumulative-lost/DLSR as placeholders.
			_ = block
		}
	}
}

func (s *Session) handleSdes(origin net.Addr, sdes *rtcp.SourceDescription) {
	for _, chunk := range sdes.Chunks {
		participant, _ := s.db.GetOrCreateFromSdesChunk(origin, chunk.Source)
		participant.touch()
		wasAlreadySdes := participant.MarkSdesReceived()

		if !s.config.TryToUpdateOnEverySdes && wasAlreadySdes {
			continue
		}

		items := chunk.Items
		changed := participant.UpdateInfo(func(info *ParticipantInfo) bool {
			return info.updateFromSdesChunk(items)
		})
		if changed {
			s.fireEvent(func(l EventListener) { l.ParticipantDataUpdated(s, participant) })
		}
	}
}

func (s *Session) handleBye(bye *rtcp.Goodbye) {
	for _, ssrc := range bye.Sources {
		participant, ok := s.db.GetParticipant(ssrc)
		if !ok {
			continue
		}
		participant.MarkByeReceived()
		s.fireEvent(func(l EventListener) { l.ParticipantLeft(s, participant) })
	}
}

// --- scheduled outbound RTCP ---

// emitCompoundRtcp is the scheduler tick body: a SenderReport if this
// session has sent at least one data packet, otherwise a ReceiverReport,
// plus SDES, sent individually to every active receiver's control
// address (spec.md §4.F).
func (s *Session) emitCompoundRtcp() {
	if !s.IsRunning() {
		return
	}

	sdes := s.buildSdes()
	sentPackets := s.sentPackets.Load()
	sentBytes := s.sentBytes.Load()
	local := s.localSsrc.Load()

	s.db.DoWithReceivers(func(p *Participant) {
		snap := p.Snapshot()

		var report rtcp.Packet
		if sentPackets > 0 {
			sr := &rtcp.SenderReport{SSRC: local, PacketCount: uint32(sentPackets), OctetCount: uint32(sentBytes)}
			if snap.ReceivedPacketCount > 0 {
				sr.Reports = []rtcp.ReceptionReport{{SSRC: snap.Info.SSRC}}
			}
			report = sr
		} else {
			rr := &rtcp.ReceiverReport{SSRC: local}
			if snap.ReceivedPacketCount > 0 {
				rr.Reports = []rtcp.ReceptionReport{{SSRC: snap.Info.SSRC}}
			}
			report = rr
		}

		encoded, err := s.codec.EncodeControl(CompoundControlPacket{report, sdes})
		if err != nil {
			s.log.Error("encode periodic rtcp failed", zap.Error(err))
			return
		}
		if err := s.controlChannel.Send(encoded, snap.ControlAddress); err != nil {
			s.log.Warn("periodic rtcp send failed", zap.Error(err))
			return
		}
		s.metrics.RtcpReportSent()
	})

	s.metrics.SetParticipants(s.db.Count())
}

// --- report/SDES construction ---

func (s *Session) buildSdes() *rtcp.SourceDescription {
	info := s.config.LocalInfo
	items := []rtcp.SourceDescriptionItem{{Type: rtcp.SDESCNAME, Text: s.cname()}}
	if info.Name != "" {
		items = append(items, rtcp.SourceDescriptionItem{Type: rtcp.SDESName, Text: info.Name})
	}
	if info.Email != "" {
		items = append(items, rtcp.SourceDescriptionItem{Type: rtcp.SDESEmail, Text: info.Email})
	}
	if info.Phone != "" {
		items = append(items, rtcp.SourceDescriptionItem{Type: rtcp.SDESPhone, Text: info.Phone})
	}
	if info.Location != "" {
		items = append(items, rtcp.SourceDescriptionItem{Type: rtcp.SDESLocation, Text: info.Location})
	}
	if info.Note != "" {
		// Emitted under its own SDESNote kind; see SPEC_FULL.md §9 on the
		// NOTE/LOCATION confusion this implementation deliberately avoids.
		items = append(items, rtcp.SourceDescriptionItem{Type: rtcp.SDESNote, Text: info.Note})
	}
	items = append(items, rtcp.SourceDescriptionItem{Type: rtcp.SDESTool, Text: s.toolString()})

	return &rtcp.SourceDescription{
		Chunks: []rtcp.SourceDescriptionChunk{{Source: s.localSsrc.Load(), Items: items}},
	}
}

func (s *Session) buildBye(ssrc uint32, reason string) *rtcp.Goodbye {
	return &rtcp.Goodbye{Sources: []uint32{ssrc}, Reason: reason}
}

func (s *Session) cname() string {
	if s.config.LocalInfo.CNAME != "" {
		return s.config.LocalInfo.CNAME
	}
	addr := ""
	if s.dataChannel != nil {
		addr = s.dataChannel.LocalAddr().String()
	}
	return defaultCNAME(s.config.ID, addr)
}

func (s *Session) toolString() string {
	if s.config.LocalInfo.Tool != "" {
		return s.config.LocalInfo.Tool
	}
	return DefaultToolVersion
}

func (s *Session) localDataAddr() net.Addr {
	if s.dataChannel == nil {
		return nil
	}
	return s.dataChannel.LocalAddr()
}

// LocalDataAddr returns the bound address of the data channel, or nil
// before Init succeeds. Useful when LocalDataAddr was configured with
// an ephemeral port and the caller needs the address the OS assigned.
func (s *Session) LocalDataAddr() net.Addr { return s.localDataAddr() }

// LocalControlAddr returns the bound address of the control channel,
// or nil before Init succeeds.
func (s *Session) LocalControlAddr() net.Addr {
	if s.controlChannel == nil {
		return nil
	}
	return s.controlChannel.LocalAddr()
}
