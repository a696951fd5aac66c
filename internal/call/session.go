package call

import (
	"time"

	"github.com/code-100-precent/LingDial/internal/engine"
	"github.com/code-100-precent/LingDial/internal/models"
)

// State of the in-memory call session
type State string

const (
	StateInitiated State = "initiated"
	StateRinging   State = "ringing"
	StateConnected State = "connected"
	StateHeld      State = "held"
	StateEnded     State = "ended"
)

// Active reports whether the state occupies the single session slot
func (s State) Active() bool {
	return s == StateInitiated || s == StateRinging || s == StateConnected || s == StateHeld
}

// Session is the in-memory record of the one active call. It is owned by
// the registry and only touched under its lock.
type Session struct {
	CallID      string
	Direction   models.CallDirection
	RemoteURI   string
	State       State
	StartedAt   time.Time
	ConnectedAt *time.Time
	EndedAt     *time.Time
	Muted       bool

	// RecordingPath is non-empty only when capture actually started
	RecordingPath string

	// HistoryID links to the durable CallHistory row
	HistoryID uint

	handle engine.Handle
}

// Snapshot is an immutable copy of session state for status queries
type Snapshot struct {
	CallID        string                `json:"callId"`
	Direction     models.CallDirection  `json:"direction"`
	RemoteURI     string                `json:"remoteUri"`
	State         State                 `json:"state"`
	StartedAt     time.Time             `json:"startedAt"`
	ConnectedAt   *time.Time            `json:"connectedAt,omitempty"`
	EndedAt       *time.Time            `json:"endedAt,omitempty"`
	Muted         bool                  `json:"muted"`
	RecordingPath string                `json:"recordingPath,omitempty"`
	HistoryID     uint                  `json:"historyId"`
}

func (s *Session) snapshot() *Snapshot {
	return &Snapshot{
		CallID:        s.CallID,
		Direction:     s.Direction,
		RemoteURI:     s.RemoteURI,
		State:         s.State,
		StartedAt:     s.StartedAt,
		ConnectedAt:   s.ConnectedAt,
		EndedAt:       s.EndedAt,
		Muted:         s.Muted,
		RecordingPath: s.RecordingPath,
		HistoryID:     s.HistoryID,
	}
}
