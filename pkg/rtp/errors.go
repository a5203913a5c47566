package rtp

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy surfaced to callers and listeners.
type Kind int

const (
	KindBindFailure Kind = iota
	KindTransportSendFailure
	KindLoopDetected
	KindLoopByCollisions
	KindSsrcCollision
	KindListenerException
	KindInvalidConfigurationAfterInit
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindBindFailure:
		return "bind_failure"
	case KindTransportSendFailure:
		return "transport_send_failure"
	case KindLoopDetected:
		return "loop_detected"
	case KindLoopByCollisions:
		return "loop_by_collisions"
	case KindSsrcCollision:
		return "ssrc_collision"
	case KindListenerException:
		return "listener_exception"
	case KindInvalidConfigurationAfterInit:
		return "invalid_configuration_after_init"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// SessionError classifies a failure surfaced by the session engine.
// It never needs to be thrown: the session surface maps every failure
// path to a boolean return, a listener callback, or a terminal event,
// but callers that need detail can recover one with errors.As.
type SessionError struct {
	Kind Kind
	SSRC uint32
	err  error
}

func newSessionError(kind Kind, ssrc uint32, err error) *SessionError {
	return &SessionError{Kind: kind, SSRC: ssrc, err: err}
}

func (e *SessionError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("rtp: %s", e.Kind)
	}
	return fmt.Sprintf("rtp: %s: %v", e.Kind, e.err)
}

func (e *SessionError) Unwrap() error { return e.err }

// Is reports whether target is a SessionError of the same Kind, so callers
// can write errors.Is(err, &SessionError{Kind: KindSsrcCollision}).
func (e *SessionError) Is(target error) bool {
	var other *SessionError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

var (
	ErrNotRunning                    = errors.New("rtp: session is not running")
	ErrInvalidPayloadType            = newSessionError(KindInvalidArgument, 0, errors.New("payload type out of range [0,127]"))
	ErrLocalParticipantNotReceiver   = newSessionError(KindInvalidArgument, 0, errors.New("local participant must have data and control addresses set"))
	ErrInvalidConfigurationAfterInit = newSessionError(KindInvalidConfigurationAfterInit, 0, errors.New("cannot modify configuration after init"))
)
