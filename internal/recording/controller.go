package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/code-100-precent/LingDial/internal/engine"
	"github.com/code-100-precent/LingDial/pkg/logger"
	"go.uber.org/zap"
)

// Controller allocates recording paths and drives capture on a call handle.
// Recording failures are reported but must never abort the call, callers
// treat an error as "this call goes unrecorded".
type Controller struct {
	baseDir string
	ext     string
}

func NewController(baseDir, ext string) *Controller {
	if ext == "" {
		ext = "wav"
	}
	return &Controller{
		baseDir: baseDir,
		ext:     strings.TrimPrefix(ext, "."),
	}
}

// AllocatePath builds {baseDir}/call_{sanitizedRemote}_{timestamp}.{ext}
func (c *Controller) AllocatePath(remoteURI string, now time.Time) string {
	name := fmt.Sprintf("call_%s_%s.%s", SanitizeRemote(remoteURI), now.Format("20060102_150405"), c.ext)
	return filepath.Join(c.baseDir, name)
}

// Start allocates a path and begins capture. The returned path is only
// valid when err is nil, meaning capture actually started.
func (c *Controller) Start(h engine.Handle, remoteURI string) (string, error) {
	if err := os.MkdirAll(c.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("create recording dir: %w", err)
	}
	path := c.AllocatePath(remoteURI, time.Now())
	if err := h.StartRecording(path); err != nil {
		return "", err
	}
	logger.Info("recording started", zap.String("path", path))
	return path, nil
}

// Stop finalizes capture. Safe to call more than once and for calls that
// were never recorded.
func (c *Controller) Stop(h engine.Handle) {
	if err := h.StopRecording(); err != nil {
		logger.Warn("stop recording failed", zap.Error(err))
	}
}

// SanitizeRemote extracts the user part of a SIP URI and replaces every
// character outside [A-Za-z0-9] with underscore
func SanitizeRemote(remoteURI string) string {
	remote := strings.TrimPrefix(remoteURI, "sips:")
	remote = strings.TrimPrefix(remote, "sip:")
	if at := strings.Index(remote, "@"); at >= 0 {
		remote = remote[:at]
	}
	var b strings.Builder
	for _, r := range remote {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		return "unknown"
	}
	return out
}
