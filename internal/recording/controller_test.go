package recording

import (
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	startCalls int
	stopCalls  int
	startErr   error
	lastPath   string
}

func (f *fakeHandle) ID() string                       { return "fake" }
func (f *fakeHandle) RemoteURI() string                { return "sip:1001@example.com" }
func (f *fakeHandle) Answer() error                    { return nil }
func (f *fakeHandle) Hangup() error                    { return nil }
func (f *fakeHandle) Hold() error                      { return nil }
func (f *fakeHandle) Resume() error                    { return nil }
func (f *fakeHandle) SetMuted(bool) error              { return nil }
func (f *fakeHandle) SendDTMF(string) error            { return nil }
func (f *fakeHandle) StopRecording() error             { f.stopCalls++; return nil }
func (f *fakeHandle) StartRecording(path string) error {
	f.startCalls++
	f.lastPath = path
	return f.startErr
}

func TestSanitizeRemote(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"sip:1001@192.168.1.10", "1001"},
		{"sip:alice.smith@example.com", "alice_smith"},
		{"sips:bob+test@example.com", "bob_test"},
		{"2002", "2002"},
		{"sip:@example.com", "unknown"},
		{"", "unknown"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeRemote(tc.in), "input %q", tc.in)
	}
}

func TestAllocatePath_Pattern(t *testing.T) {
	c := NewController("/tmp/rec", "wav")
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	path := c.AllocatePath("sip:1001@pbx.local", now)
	assert.Equal(t, filepath.Join("/tmp/rec", "call_1001_20260314_150926.wav"), path)

	// General shape holds for any remote
	re := regexp.MustCompile(`call_[A-Za-z0-9_]+_\d{8}_\d{6}\.wav$`)
	assert.Regexp(t, re, c.AllocatePath("sip:weird user!@host", now))
}

func TestStart_InvokesCaptureOnce(t *testing.T) {
	dir := t.TempDir()
	c := NewController(dir, "wav")
	h := &fakeHandle{}

	path, err := c.Start(h, "sip:1001@pbx.local")
	require.NoError(t, err)
	assert.Equal(t, 1, h.startCalls)
	assert.Equal(t, path, h.lastPath)
	assert.Regexp(t, regexp.MustCompile(`call_1001_\d{8}_\d{6}\.wav$`), path)
}

func TestStart_CaptureFailureReturnsEmptyPath(t *testing.T) {
	dir := t.TempDir()
	c := NewController(dir, "wav")
	h := &fakeHandle{startErr: errors.New("device busy")}

	path, err := c.Start(h, "sip:1001@pbx.local")
	assert.Error(t, err)
	assert.Empty(t, path)
}

func TestStop_Idempotent(t *testing.T) {
	c := NewController(t.TempDir(), "wav")
	h := &fakeHandle{}

	c.Stop(h)
	c.Stop(h)
	assert.Equal(t, 2, h.stopCalls)
}
