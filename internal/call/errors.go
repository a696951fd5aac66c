package call

import "errors"

// Sentinel errors returned by registry operations. Handlers map these to
// machine-readable reason codes.
var (
	ErrSessionBusy        = errors.New("another call is already in progress")
	ErrInvalidState       = errors.New("operation not allowed in current call state")
	ErrNoIncomingCall     = errors.New("no incoming call to answer")
	ErrInvalidDestination = errors.New("invalid call destination")
	ErrInvalidDigits      = errors.New("dtmf digits must match [0-9A-D*#]+")
	ErrEngineUnavailable  = errors.New("call engine unavailable")
)
