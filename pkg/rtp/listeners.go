package rtp

import (
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// DataListener receives demultiplexed inbound RTP data packets.
type DataListener interface {
	DataPacketReceived(session *Session, source ParticipantInfo, packet *DataPacket)
}

// ControlListener receives raw compound RTCP packets through
// ControlPacketReceived when automated RTCP handling is off, and
// individual APP_DATA packets through AppDataReceived when it is on.
type ControlListener interface {
	ControlPacketReceived(session *Session, packet CompoundControlPacket)
	AppDataReceived(session *Session, packet *AppDataPacket)
}

// EventListener receives lifecycle and protocol events: participant
// join/update/leave/delete, SSRC conflict resolution, and termination.
type EventListener interface {
	ParticipantJoinedFromData(session *Session, participant *Participant)
	ParticipantJoinedFromControl(session *Session, participant *Participant)
	ParticipantDataUpdated(session *Session, participant *Participant)
	ParticipantLeft(session *Session, participant *Participant)
	ParticipantDeleted(session *Session, participant *Participant)
	ResolvedSsrcConflict(session *Session, oldSsrc, newSsrc uint32)
	SessionTerminated(session *Session, cause error)
}

// listenerList is a thread-safe copy-on-write registry, the generic Go
// analogue of the teacher's CopyOnWriteArrayList-backed listener slices
// (rtp_session.go's handlerMutex-guarded registration; the Java ancestor
// literally uses CopyOnWriteArrayList).
type listenerList[T any] struct {
	mu   sync.Mutex
	list []T
}

func (l *listenerList[T]) add(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := make([]T, len(l.list)+1)
	copy(next, l.list)
	next[len(l.list)] = v
	l.list = next
}

func (l *listenerList[T]) remove(v T, equal func(a, b T) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := make([]T, 0, len(l.list))
	for _, existing := range l.list {
		if !equal(existing, v) {
			next = append(next, existing)
		}
	}
	l.list = next
}

func (l *listenerList[T]) snapshot() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list
}

func (l *listenerList[T]) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list = nil
}

// invokeListener calls fn and converts any panic into a logged error,
// per spec.md §4.G: a listener is untrusted, and exceptions must never
// propagate. Grounded on the teacher's sendLoop/receiveLoop panic
// recovery (rtcp_session.go, rtp_session.go), narrowed from "protect a
// goroutine loop" to "protect one listener invocation".
func invokeListener(log Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("listener panicked",
				zap.String("listener", name),
				zap.String("panic", fmt.Sprintf("%v", r)),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
}
