package task

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"

	"github.com/code-100-precent/LingDial/internal/models"
)

func setupSweeperDB(t *testing.T) *gorm.DB {
	t.Helper()
	silentLogger := glog.New(
		log.New(io.Discard, "", log.LstdFlags),
		glog.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  glog.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: silentLogger})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CallHistory{}))
	return db
}

func writeAgedFile(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("riff"), 0o644))
	stamp := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, stamp, stamp))
	return path
}

func TestSweepOrphanedRecordings(t *testing.T) {
	db := setupSweeperDB(t)
	dir := t.TempDir()

	kept := writeAgedFile(t, dir, "call_1001_20260101_120000.wav", 48*time.Hour)
	orphan := writeAgedFile(t, dir, "call_9999_20260101_120000.wav", 48*time.Hour)
	fresh := writeAgedFile(t, dir, "call_8888_20260101_120000.wav", time.Minute)
	other := writeAgedFile(t, dir, "notes.txt", 48*time.Hour)

	require.NoError(t, models.CreateCallHistory(db, &models.CallHistory{
		CallID:        "abc",
		RemoteURI:     "sip:1001@pbx.local",
		Direction:     models.CallDirectionOutbound,
		Status:        models.CallStatusEnded,
		StartTime:     time.Now(),
		RecordingPath: kept,
	}))

	require.NoError(t, SweepOrphanedRecordings(db, dir))

	assert.FileExists(t, kept)
	assert.NoFileExists(t, orphan)
	// Too young to sweep even though unreferenced
	assert.FileExists(t, fresh)
	// Non-recording files are never touched
	assert.FileExists(t, other)
}

func TestSweepOrphanedRecordings_MissingDirIsNoop(t *testing.T) {
	db := setupSweeperDB(t)
	require.NoError(t, SweepOrphanedRecordings(db, filepath.Join(t.TempDir(), "does-not-exist")))
}

func TestSweepOrphanedRecordings_MatchesByBasename(t *testing.T) {
	db := setupSweeperDB(t)
	dir := t.TempDir()

	// The row stores an absolute path from a previous deployment, the
	// sweep must still recognize the file by name.
	file := writeAgedFile(t, dir, "call_2002_20260101_120000.wav", 48*time.Hour)
	require.NoError(t, models.CreateCallHistory(db, &models.CallHistory{
		CallID:        "def",
		RemoteURI:     "sip:2002@pbx.local",
		Direction:     models.CallDirectionInbound,
		Status:        models.CallStatusEnded,
		StartTime:     time.Now(),
		RecordingPath: filepath.Join("/var/old/recordings", filepath.Base(file)),
	}))

	require.NoError(t, SweepOrphanedRecordings(db, dir))
	assert.FileExists(t, file)
}
