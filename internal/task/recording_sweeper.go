package task

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/code-100-precent/LingDial/internal/models"
	"github.com/code-100-precent/LingDial/pkg/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Recordings younger than this are never swept, the owning call may
// still be in progress or its history row not yet flushed.
const sweepMinAge = time.Hour

// StartRecordingSweeper starts the orphaned recording cleanup scheduled task
func StartRecordingSweeper(db *gorm.DB, recordingDir string) {
	c := cron.New()

	// Execute sweep at 3 AM every day
	schedule := "0 3 * * *"

	// Add scheduled task
	_, err := c.AddFunc(schedule, func() {
		if err := SweepOrphanedRecordings(db, recordingDir); err != nil {
			logger.Error("Recording sweeper task failed", zap.Error(err))
		} else {
			logger.Info("Recording sweeper task completed successfully")
		}
	})

	if err != nil {
		logger.Error("Failed to add recording sweeper cron job", zap.Error(err))
		return
	}

	// Start the scheduled task
	c.Start()

	logger.Info("Recording sweeper started", zap.String("schedule", schedule), zap.String("dir", recordingDir))
}

// SweepOrphanedRecordings deletes recording files in the recording
// directory that no call history row references
func SweepOrphanedRecordings(db *gorm.DB, recordingDir string) error {
	entries, err := os.ReadDir(recordingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Collect all referenced recording paths
	var paths []string
	err = db.Model(&models.CallHistory{}).
		Where("recording_path <> ''").
		Pluck("recording_path", &paths).Error
	if err != nil {
		return err
	}

	referenced := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		referenced[filepath.Base(p)] = struct{}{}
	}

	cutoff := time.Now().Add(-sweepMinAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "call_") {
			continue
		}
		if _, ok := referenced[entry.Name()]; ok {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(recordingDir, entry.Name())
		if err := os.Remove(path); err != nil {
			logger.Error("Failed to remove orphaned recording", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info("Orphaned recordings removed", zap.Int("count", removed))
	}
	return nil
}
