package engine

import "context"

// State reported by an engine for a call leg
type State string

const (
	StateInitiated State = "initiated"
	StateRinging   State = "ringing"
	StateConnected State = "connected"
	StateEnded     State = "ended"
	StateFailed    State = "failed"
)

// Event is emitted by an engine when a call changes state asynchronously,
// including incoming calls (first seen in StateRinging)
type Event struct {
	CallID    string
	State     State
	RemoteURI string
	Incoming  bool
	Reason    string
	// Handle is set on the first event of an incoming call so the
	// consumer can control it; nil otherwise
	Handle Handle
}

// Handle controls a single call placed or received through an engine.
// All methods are safe to call from the registry goroutine only.
type Handle interface {
	ID() string
	RemoteURI() string
	Answer() error
	Hangup() error
	Hold() error
	Resume() error
	SetMuted(muted bool) error
	SendDTMF(digits string) error
	StartRecording(path string) error
	StopRecording() error
}

// Engine abstracts the signaling and media backend. Exactly one engine is
// selected at startup and injected into the registry.
type Engine interface {
	Name() string
	Dial(ctx context.Context, destination string) (Handle, error)
	Events() <-chan Event
	Close() error
}
