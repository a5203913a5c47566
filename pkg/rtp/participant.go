package rtp

import (
	"net"
	"sync"
	"time"
)

// Participant is the per-remote runtime state spec.md §3 names. Pure
// data plus the isReceiver rule; ordering policy and eviction live in
// the Session and ParticipantDatabase respectively, not here. Grounded
// on the teacher's RemoteSource (source_manager.go) and the Java
// RtpParticipant.
type Participant struct {
	// mu guards every field below once a Participant escapes the
	// database's creation path, since Session's per-origin dispatcher,
	// the idle sweep, and emitCompoundRtcp's snapshot reads may all
	// touch the same entry concurrently. Grounded on spec.md §5's "fine-
	// grained keyed locking or equivalent" requirement, narrowed to the
	// participant itself since the database's own RWMutex only protects
	// the map, not the pointee.
	mu sync.Mutex

	Info ParticipantInfo

	DataAddress    net.Addr
	ControlAddress net.Addr

	LastDataOrigin    net.Addr
	LastControlOrigin net.Addr

	// LastSequenceNumber is -1 until the first data packet is seen,
	// matching spec.md §3's sentinel. It is a signed 32-bit field so a
	// uint16 wire sequence number can never alias the sentinel.
	LastSequenceNumber int32

	ReceivedPacketCount uint64
	ByeReceivedFlag     bool
	ReceivedSdesFlag    bool
	LastActivity        time.Time

	// Explicit marks a participant admitted via Session.AddReceiver, as
	// opposed to one merely discovered from inbound traffic. Only
	// explicit receivers are egress targets (spec.md §3).
	Explicit bool
}

// newParticipant returns a Participant with SSRC set and the sequence
// sentinel initialized, ready to be populated by its discovery path.
func newParticipant(ssrc uint32) *Participant {
	return &Participant{
		Info:               ParticipantInfo{SSRC: ssrc},
		LastSequenceNumber: -1,
		LastActivity:       time.Now(),
	}
}

// NewRemoteParticipant constructs a Participant with both addresses
// already known, ready to be passed to Session.AddReceiver. Used by
// callers that have negotiated a remote endpoint out of band (e.g.
// via SDP) and want to admit it as an explicit egress target without
// waiting to discover it from inbound traffic.
func NewRemoteParticipant(ssrc uint32, dataAddr, controlAddr net.Addr) *Participant {
	p := newParticipant(ssrc)
	p.DataAddress = dataAddr
	p.ControlAddress = controlAddr
	return p
}

// IsReceiver reports whether this participant has both addresses known,
// making it eligible as an egress target.
func (p *Participant) IsReceiver() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DataAddress != nil && p.ControlAddress != nil
}

// SetLastSequenceNumber records n unconditionally; the Session applies
// the discardOutOfOrder policy before calling this.
func (p *Participant) SetLastSequenceNumber(n int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastSequenceNumber = n
}

// LastSeq returns the current sequence sentinel/value under lock.
func (p *Participant) LastSeq() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.LastSequenceNumber
}

// MarkByeReceived latches ByeReceivedFlag to true. It never unlatches.
func (p *Participant) MarkByeReceived() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ByeReceivedFlag = true
}

func (p *Participant) ReceivedBye() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ByeReceivedFlag
}

// touch records p as active right now, independent of any particular
// field update. Used for traffic (SDES) that carries no sequence number
// or address to fold into a more specific record method.
func (p *Participant) touch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastActivity = time.Now()
}

// RecordDataReceipt updates origin/count/activity after a packet passes
// the discard check. Sequence-number bookkeeping is the caller's
// responsibility via SetLastSequenceNumber, kept as its own operation
// per spec.md §4.B.
func (p *Participant) RecordDataReceipt(origin net.Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastDataOrigin = origin
	p.ReceivedPacketCount++
	p.LastActivity = time.Now()
}

// RecordControlReceipt updates LastControlOrigin/LastActivity together.
func (p *Participant) RecordControlReceipt(origin net.Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastControlOrigin = origin
	p.LastActivity = time.Now()
}

// Snapshot returns a value copy safe to read without holding the lock,
// used by emitCompoundRtcp and listener fan-out.
func (p *Participant) Snapshot() Participant {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Participant{
		Info:                p.Info,
		DataAddress:         p.DataAddress,
		ControlAddress:      p.ControlAddress,
		LastDataOrigin:      p.LastDataOrigin,
		LastControlOrigin:   p.LastControlOrigin,
		LastSequenceNumber:  p.LastSequenceNumber,
		ReceivedPacketCount: p.ReceivedPacketCount,
		ByeReceivedFlag:     p.ByeReceivedFlag,
		ReceivedSdesFlag:    p.ReceivedSdesFlag,
		LastActivity:        p.LastActivity,
		Explicit:            p.Explicit,
	}
}

// UpdateInfo applies fn to Info under lock and reports whether fn
// reported a change, so callers can decide whether to emit
// participantDataUpdated without racing a concurrent reader.
func (p *Participant) UpdateInfo(fn func(*ParticipantInfo) bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(&p.Info)
}

// MarkSdesReceived latches ReceivedSdesFlag, returning whether it was
// already set before this call.
func (p *Participant) MarkSdesReceived() (alreadySet bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	alreadySet = p.ReceivedSdesFlag
	p.ReceivedSdesFlag = true
	return alreadySet
}

// MarkExplicit flags p as an admitted egress target (spec.md §3's
// "explicit receiver") and touches its activity clock.
func (p *Participant) MarkExplicit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Explicit = true
	p.LastActivity = time.Now()
}

// IsActiveReceiver reports whether p is both explicit and has not yet
// received a BYE, the predicate doWithReceivers' snapshot filters on.
func (p *Participant) IsActiveReceiver() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Explicit && !p.ByeReceivedFlag
}

// IdleFor reports how long it has been since p's last recorded activity.
func (p *Participant) IdleFor(now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Sub(p.LastActivity)
}

// SetControlAddressIfAbsent sets ControlAddress to origin only if it was
// previously unset, so a participant discovered from data and later
// announced via SDES is augmented rather than overwritten.
func (p *Participant) SetControlAddressIfAbsent(origin net.Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ControlAddress == nil {
		p.ControlAddress = origin
	}
}
