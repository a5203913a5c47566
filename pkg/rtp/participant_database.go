package rtp

import (
	"net"
	"sync"
	"time"
)

// ParticipantEventListener is injected by the Session into the database
// so creation/eviction events flow outward without the database holding
// a back-pointer to its owner, per spec.md §9's "one-way ownership" note.
type ParticipantEventListener interface {
	participantCreatedFromDataPacket(p *Participant)
	participantCreatedFromSdesChunk(p *Participant)
	participantDeleted(p *Participant)
}

// DefaultIdleTimeout is how long a participant may go without activity
// before the idle sweep reaps it. Scaled down from the teacher's
// source_manager.go continuous-media default (60s) since this engine's
// sessions are control-plane-driven rather than continuous-media-driven;
// see SPEC_FULL.md §4.C.
const DefaultIdleTimeout = 30 * time.Second

// DefaultSweepInterval is how often the idle sweep runs.
const DefaultSweepInterval = 10 * time.Second

// ParticipantDatabase is the keyed store of remote participants, with
// lifecycle, timeout eviction, and snapshot iteration. Grounded on the
// teacher's SourceManager (source_manager.go): RWMutex-guarded map plus a
// background cleanupLoop goroutine.
type ParticipantDatabase struct {
	mu       sync.RWMutex
	members  map[uint32]*Participant
	listener ParticipantEventListener

	idleTimeout   time.Duration
	sweepInterval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewParticipantDatabase constructs a database and starts its idle
// sweep goroutine. Stop must be called when the owning Session
// terminates.
func NewParticipantDatabase(listener ParticipantEventListener, idleTimeout, sweepInterval time.Duration) *ParticipantDatabase {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	db := &ParticipantDatabase{
		members:       make(map[uint32]*Participant),
		listener:      listener,
		idleTimeout:   idleTimeout,
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	go db.sweepLoop()
	return db
}

// Stop halts the idle sweep goroutine. Idempotent.
func (db *ParticipantDatabase) Stop() {
	select {
	case <-db.stopCh:
		return
	default:
		close(db.stopCh)
	}
	<-db.doneCh
}

func (db *ParticipantDatabase) sweepLoop() {
	defer close(db.doneCh)
	t := time.NewTicker(db.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-db.stopCh:
			return
		case <-t.C:
			db.sweepIdle()
		}
	}
}

func (db *ParticipantDatabase) sweepIdle() {
	now := time.Now()
	var evicted []*Participant
	db.mu.Lock()
	for ssrc, p := range db.members {
		if p.IdleFor(now) > db.idleTimeout {
			delete(db.members, ssrc)
			evicted = append(evicted, p)
		}
	}
	db.mu.Unlock()

	for _, p := range evicted {
		if db.listener != nil {
			db.listener.participantDeleted(p)
		}
	}
}

// AddReceiver admits p as an explicit egress target, enforcing spec.md
// §4.B's isReceiver rule: p must already carry both a data and a
// control address. Returns true iff a new entry was inserted; an
// existing entry (compatible or not) is left untouched and this
// returns false, as does a p that isn't a receiver yet.
func (db *ParticipantDatabase) AddReceiver(p *Participant) bool {
	if !p.IsReceiver() {
		return false
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.members[p.Info.SSRC]; exists {
		return false
	}
	p.MarkExplicit()
	db.members[p.Info.SSRC] = p
	return true
}

// RemoveReceiver removes p's entry entirely (not just demoting it from
// explicit status), mirroring the teacher's removeReceiver semantics.
func (db *ParticipantDatabase) RemoveReceiver(p *Participant) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.members[p.Info.SSRC]; !exists {
		return false
	}
	delete(db.members, p.Info.SSRC)
	return true
}

// GetParticipant returns the entry for ssrc, if any.
func (db *ParticipantDatabase) GetParticipant(ssrc uint32) (*Participant, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	p, ok := db.members[ssrc]
	return p, ok
}

// GetOrCreateFromDataPacket returns the participant for packet.SSRC,
// creating one with DataAddress=origin if unknown.
func (db *ParticipantDatabase) GetOrCreateFromDataPacket(origin net.Addr, packet *DataPacket) *Participant {
	db.mu.Lock()
	p, exists := db.members[packet.SSRC]
	if !exists {
		p = newParticipant(packet.SSRC)
		p.DataAddress = origin
		db.members[packet.SSRC] = p
	}
	db.mu.Unlock()

	if !exists && db.listener != nil {
		db.listener.participantCreatedFromDataPacket(p)
	}
	return p
}

// GetOrCreateFromSdesChunk returns the participant for ssrc, creating one
// with ControlAddress=origin if unknown; if a participant already exists
// (e.g. discovered from a data packet) it is augmented with
// ControlAddress rather than duplicated, since a member is one identity.
func (db *ParticipantDatabase) GetOrCreateFromSdesChunk(origin net.Addr, ssrc uint32) (*Participant, bool) {
	db.mu.Lock()
	p, exists := db.members[ssrc]
	created := false
	if !exists {
		p = newParticipant(ssrc)
		p.ControlAddress = origin
		db.members[ssrc] = p
		created = true
	} else {
		p.SetControlAddressIfAbsent(origin)
	}
	db.mu.Unlock()

	if created && db.listener != nil {
		db.listener.participantCreatedFromSdesChunk(p)
	}
	return p, created
}

// DoWithReceivers invokes op on a snapshot of current explicit-receiver
// participants whose ByeReceivedFlag is false. Mutations during
// iteration never affect the snapshot, per spec.md invariant 5.
func (db *ParticipantDatabase) DoWithReceivers(op func(*Participant)) {
	db.mu.RLock()
	snapshot := make([]*Participant, 0, len(db.members))
	for _, p := range db.members {
		if p.IsActiveReceiver() {
			snapshot = append(snapshot, p)
		}
	}
	db.mu.RUnlock()

	for _, p := range snapshot {
		op(p)
	}
}

// GetMembers returns a copy of the full ssrc->participant map.
func (db *ParticipantDatabase) GetMembers() map[uint32]*Participant {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make(map[uint32]*Participant, len(db.members))
	for k, v := range db.members {
		out[k] = v
	}
	return out
}

// Count returns the number of tracked participants.
func (db *ParticipantDatabase) Count() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.members)
}
