package call

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/code-100-precent/LingDial/internal/engine"
	"github.com/code-100-precent/LingDial/internal/models"
	"github.com/code-100-precent/LingDial/internal/recording"
	"github.com/code-100-precent/LingDial/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	dtmfRe      = regexp.MustCompile(`^[0-9A-D*#]+$`)
	sipURIRe    = regexp.MustCompile(`^sips?:[^@\s]+@[^@\s]+$`)
	extensionRe = regexp.MustCompile(`^[A-Za-z0-9._+\-]+$`)
)

// Enricher receives completed calls for asynchronous analysis. Enqueue
// must never block the caller.
type Enricher interface {
	Enqueue(historyID uint, recordingPath string)
}

// Options for registry construction
type Options struct {
	// Domain completes bare extensions into sip:<ext>@<domain>
	Domain string
	// AutoRecord starts capture when a call connects
	AutoRecord bool
}

// Registry enforces the single active session invariant. Every state
// transition happens under one exclusive lock, and the matching
// CallHistory write completes before the transition returns.
type Registry struct {
	mu       sync.Mutex
	db       *gorm.DB
	eng      engine.Engine
	recorder *recording.Controller
	enricher Enricher
	opts     Options

	active *Session

	// last transition result, readable without the lock
	snap atomic.Pointer[Snapshot]

	stopOnce sync.Once
	done     chan struct{}
}

func NewRegistry(db *gorm.DB, eng engine.Engine, recorder *recording.Controller, enricher Enricher, opts Options) *Registry {
	return &Registry{
		db:       db,
		eng:      eng,
		recorder: recorder,
		enricher: enricher,
		opts:     opts,
		done:     make(chan struct{}),
	}
}

// Start launches the engine event pump
func (r *Registry) Start() {
	go r.pumpEvents()
}

// Stop terminates the event pump; in-flight enrichment is unaffected
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *Registry) pumpEvents() {
	events := r.eng.Events()
	for {
		select {
		case <-r.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.handleEvent(ev)
		}
	}
}

// Dial places an outbound call. The history row (status calling) is
// durable before Dial returns.
func (r *Registry) Dial(ctx context.Context, destination string) (*Snapshot, error) {
	uri, err := normalizeDestination(destination, r.opts.Domain)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil && r.active.State.Active() {
		return nil, ErrSessionBusy
	}

	record := &models.CallHistory{
		RemoteURI: uri,
		Direction: models.CallDirectionOutbound,
		Status:    models.CallStatusCalling,
		StartTime: time.Now(),
	}
	if err := models.CreateCallHistory(r.db, record); err != nil {
		return nil, fmt.Errorf("persist call record: %w", err)
	}

	handle, err := r.eng.Dial(ctx, uri)
	if err != nil {
		now := time.Now()
		if uerr := models.UpdateCallHistoryFields(r.db, record.ID, map[string]any{
			"status":   models.CallStatusFailed,
			"end_time": &now,
		}); uerr != nil {
			logger.Error("mark call failed", zap.Uint("historyId", record.ID), zap.Error(uerr))
		}
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	record.CallID = handle.ID()
	if err := models.UpdateCallHistoryFields(r.db, record.ID, map[string]any{"call_id": handle.ID()}); err != nil {
		logger.Error("persist call id", zap.Uint("historyId", record.ID), zap.Error(err))
	}

	s := &Session{
		CallID:    handle.ID(),
		Direction: models.CallDirectionOutbound,
		RemoteURI: uri,
		State:     StateRinging,
		StartedAt: record.StartTime,
		HistoryID: record.ID,
		handle:    handle,
	}
	r.active = s
	r.publishLocked()

	logger.Info("outbound call placed",
		zap.String("callId", s.CallID),
		zap.String("remote", uri),
		zap.String("engine", r.eng.Name()),
	)
	return s.snapshot(), nil
}

// Answer accepts the ringing inbound call
func (r *Registry) Answer() (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.active
	if s == nil || s.State != StateRinging || s.Direction != models.CallDirectionInbound {
		return nil, ErrNoIncomingCall
	}
	if err := s.handle.Answer(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	// The connected transition lands via the engine event
	return s.snapshot(), nil
}

// Hangup terminates the active call. A second hangup, or hangup with no
// active call, is a no-op.
func (r *Registry) Hangup() (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.active
	if s == nil || s.State == StateEnded {
		return nil, nil
	}
	if err := s.handle.Hangup(); err != nil {
		logger.Warn("engine hangup failed", zap.String("callId", s.CallID), zap.Error(err))
	}
	r.endSessionLocked(s, models.CallStatusEnded, "local hangup")
	return s.snapshot(), nil
}

// Hold pauses the connected call
func (r *Registry) Hold() (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.active
	if s == nil || s.State != StateConnected {
		return nil, ErrInvalidState
	}
	if err := s.handle.Hold(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	s.State = StateHeld
	r.publishLocked()
	return s.snapshot(), nil
}

// Resume returns a held call to connected
func (r *Registry) Resume() (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.active
	if s == nil || s.State != StateHeld {
		return nil, ErrInvalidState
	}
	if err := s.handle.Resume(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	s.State = StateConnected
	r.publishLocked()
	return s.snapshot(), nil
}

// SetMuted flips the local mute flag, independent of hold
func (r *Registry) SetMuted(muted bool) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.active
	if s == nil || (s.State != StateConnected && s.State != StateHeld) {
		return nil, ErrInvalidState
	}
	if err := s.handle.SetMuted(muted); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	s.Muted = muted
	r.publishLocked()
	return s.snapshot(), nil
}

// SendDTMF relays digits on the connected call
func (r *Registry) SendDTMF(digits string) error {
	if !dtmfRe.MatchString(digits) {
		return ErrInvalidDigits
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.active
	if s == nil || s.State != StateConnected {
		return ErrInvalidState
	}
	if err := s.handle.SendDTMF(digits); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return nil
}

// Status returns the last published snapshot without taking the lock,
// nil when no call has happened yet
func (r *Registry) Status() *Snapshot {
	return r.snap.Load()
}

func (r *Registry) handleEvent(ev engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.State {
	case engine.StateRinging:
		if !ev.Incoming || ev.Handle == nil {
			return
		}
		if r.active != nil && r.active.State.Active() {
			// Busy here: decline without touching the active session
			logger.Info("declining incoming call while busy",
				zap.String("callId", ev.CallID),
				zap.String("remote", ev.RemoteURI),
			)
			if err := ev.Handle.Hangup(); err != nil {
				logger.Warn("decline failed", zap.String("callId", ev.CallID), zap.Error(err))
			}
			return
		}
		record := &models.CallHistory{
			CallID:    ev.CallID,
			RemoteURI: ev.RemoteURI,
			Direction: models.CallDirectionInbound,
			Status:    models.CallStatusRinging,
			StartTime: time.Now(),
		}
		if err := models.CreateCallHistory(r.db, record); err != nil {
			logger.Error("persist inbound call", zap.String("callId", ev.CallID), zap.Error(err))
			return
		}
		r.active = &Session{
			CallID:    ev.CallID,
			Direction: models.CallDirectionInbound,
			RemoteURI: ev.RemoteURI,
			State:     StateRinging,
			StartedAt: record.StartTime,
			HistoryID: record.ID,
			handle:    ev.Handle,
		}
		r.publishLocked()
		logger.Info("incoming call ringing",
			zap.String("callId", ev.CallID),
			zap.String("remote", ev.RemoteURI),
		)

	case engine.StateConnected:
		s := r.active
		if s == nil || s.CallID != ev.CallID || s.State == StateConnected || s.State == StateHeld || s.State == StateEnded {
			return
		}
		now := time.Now()
		s.State = StateConnected
		s.ConnectedAt = &now

		fields := map[string]any{
			"status":       models.CallStatusAnswered,
			"connect_time": &now,
		}
		if r.opts.AutoRecord {
			path, err := r.recorder.Start(s.handle, s.RemoteURI)
			if err != nil {
				// The call proceeds unrecorded
				logger.Warn("recording unavailable for this call",
					zap.String("callId", s.CallID),
					zap.Error(err),
				)
			} else {
				s.RecordingPath = path
				fields["recording_path"] = path
			}
		}
		if err := models.UpdateCallHistoryFields(r.db, s.HistoryID, fields); err != nil {
			logger.Error("persist connect", zap.Uint("historyId", s.HistoryID), zap.Error(err))
		}
		r.publishLocked()
		logger.Info("call connected", zap.String("callId", s.CallID))

	case engine.StateEnded:
		s := r.active
		if s == nil || s.CallID != ev.CallID || s.State == StateEnded {
			return
		}
		r.endSessionLocked(s, models.CallStatusEnded, ev.Reason)

	case engine.StateFailed:
		s := r.active
		if s == nil || s.CallID != ev.CallID || s.State == StateEnded {
			return
		}
		r.endSessionLocked(s, models.CallStatusFailed, ev.Reason)
	}
}

// endSessionLocked applies the terminal transition: stamps times, derives
// duration, stops capture, persists, frees the slot, and hands the call
// to the enrichment pipeline. Callers hold r.mu.
func (r *Registry) endSessionLocked(s *Session, status models.CallStatus, reason string) {
	if s.State == StateEnded {
		return
	}
	now := time.Now()
	s.State = StateEnded
	s.EndedAt = &now

	duration := 0
	if s.ConnectedAt != nil {
		duration = int(now.Sub(*s.ConnectedAt).Seconds())
		if duration < 0 {
			duration = 0
		}
	}

	if s.RecordingPath != "" {
		r.recorder.Stop(s.handle)
	}

	fields := map[string]any{
		"status":   status,
		"end_time": &now,
		"duration": duration,
	}
	if s.RecordingPath != "" {
		fields["recording_path"] = s.RecordingPath
	}
	if err := models.UpdateCallHistoryFields(r.db, s.HistoryID, fields); err != nil {
		logger.Error("persist call end", zap.Uint("historyId", s.HistoryID), zap.Error(err))
	}

	r.active = nil
	r.publishLocked(s)

	logger.Info("call ended",
		zap.String("callId", s.CallID),
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.Int("duration", duration),
	)

	if r.enricher != nil && s.RecordingPath != "" {
		r.enricher.Enqueue(s.HistoryID, s.RecordingPath)
	}
}

// publishLocked refreshes the lock-free status snapshot. With no
// argument it publishes the active session.
func (r *Registry) publishLocked(ended ...*Session) {
	if len(ended) > 0 {
		r.snap.Store(ended[0].snapshot())
		return
	}
	if r.active != nil {
		r.snap.Store(r.active.snapshot())
	}
}

// normalizeDestination validates the dial target and completes bare
// extensions into sip:<ext>@<domain>
func normalizeDestination(destination, domain string) (string, error) {
	dest := strings.TrimSpace(destination)
	if dest == "" {
		return "", ErrInvalidDestination
	}
	if strings.HasPrefix(dest, "sip:") || strings.HasPrefix(dest, "sips:") {
		if !sipURIRe.MatchString(dest) {
			return "", ErrInvalidDestination
		}
		return dest, nil
	}
	if !extensionRe.MatchString(dest) {
		return "", ErrInvalidDestination
	}
	if domain == "" {
		domain = "localhost"
	}
	return fmt.Sprintf("sip:%s@%s", dest, domain), nil
}
