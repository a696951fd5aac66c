package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNoMediaPath is returned by engines that cannot capture audio
var ErrNoMediaPath = errors.New("engine has no media path for recording")

// DemoEngine simulates a signaling backend so the control plane can run
// without any SIP infrastructure. Dialed calls connect immediately and
// carry no media, so nothing is ever recorded.
type DemoEngine struct {
	mu     sync.Mutex
	events chan Event
	closed bool
}

func NewDemoEngine() *DemoEngine {
	return &DemoEngine{
		events: make(chan Event, 16),
	}
}

func (e *DemoEngine) Name() string { return "demo" }

func (e *DemoEngine) Events() <-chan Event { return e.events }

func (e *DemoEngine) Dial(ctx context.Context, destination string) (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.New("engine closed")
	}

	h := &demoHandle{
		engine:    e,
		id:        uuid.New().String(),
		remoteURI: destination,
	}
	// Simulated remote party answers right away
	e.emitLocked(Event{CallID: h.id, State: StateConnected, RemoteURI: destination})
	return h, nil
}

// SimulateIncomingCall injects a ringing inbound call, used by tests and
// the demo environment
func (e *DemoEngine) SimulateIncomingCall(remoteURI string) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := &demoHandle{
		engine:    e,
		id:        uuid.New().String(),
		remoteURI: remoteURI,
		incoming:  true,
	}
	e.emitLocked(Event{CallID: h.id, State: StateRinging, RemoteURI: remoteURI, Incoming: true, Handle: h})
	return h
}

// SimulateRemoteHangup injects a remote BYE for an active call
func (e *DemoEngine) SimulateRemoteHangup(h Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitLocked(Event{CallID: h.ID(), State: StateEnded, RemoteURI: h.RemoteURI(), Reason: "remote hangup"})
}

func (e *DemoEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	return nil
}

func (e *DemoEngine) emitLocked(ev Event) {
	if e.closed {
		return
	}
	select {
	case e.events <- ev:
	default:
		// Drop when nobody is draining, the demo engine never blocks callers
	}
}

type demoHandle struct {
	engine    *DemoEngine
	id        string
	remoteURI string
	incoming  bool
	held      bool
	muted     bool
}

func (h *demoHandle) ID() string        { return h.id }
func (h *demoHandle) RemoteURI() string { return h.remoteURI }

func (h *demoHandle) Answer() error {
	h.engine.mu.Lock()
	defer h.engine.mu.Unlock()
	h.engine.emitLocked(Event{CallID: h.id, State: StateConnected, RemoteURI: h.remoteURI, Incoming: h.incoming})
	return nil
}

func (h *demoHandle) Hangup() error { return nil }

func (h *demoHandle) Hold() error {
	h.held = true
	return nil
}

func (h *demoHandle) Resume() error {
	h.held = false
	return nil
}

func (h *demoHandle) SetMuted(muted bool) error {
	h.muted = muted
	return nil
}

func (h *demoHandle) SendDTMF(digits string) error { return nil }

func (h *demoHandle) StartRecording(path string) error { return ErrNoMediaPath }

func (h *demoHandle) StopRecording() error { return nil }
