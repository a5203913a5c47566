package rtp

import (
	"context"

	"github.com/looplab/fsm"
)

// Session lifecycle states, per spec.md §4.F.
const (
	StateCreated    = "created"
	StateRunning    = "running"
	StateTerminated = "terminated"
)

const (
	eventInit      = "init"
	eventTerminate = "terminate"
)

// newSessionFSM builds the Created→Running→Terminated state machine,
// grounded on the teacher's pkg/dialog/dialog.go initStateMachine
// (fsm.NewFSM with an Events table and an after_event callback). The FSM
// itself carries no side effects; init()/terminate() perform the actual
// bind/teardown work. init() fires its event only after both binds
// succeed, so a failed init() never leaves the FSM in Running; terminate()
// fires its event as soon as it wins the running flag, before teardown.
func newSessionFSM(onTransition func(event string)) *fsm.FSM {
	return fsm.NewFSM(
		StateCreated,
		fsm.Events{
			{Name: eventInit, Src: []string{StateCreated}, Dst: StateRunning},
			{Name: eventTerminate, Src: []string{StateCreated, StateRunning}, Dst: StateTerminated},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				if onTransition != nil {
					onTransition(e.Event)
				}
			},
		},
	)
}
