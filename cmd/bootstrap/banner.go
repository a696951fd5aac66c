package bootstrap

import (
	"fmt"
	"os"

	"github.com/code-100-precent/LingDial/pkg/config"
	"github.com/code-100-precent/LingDial/pkg/logger"
	"go.uber.org/zap"
)

// PrintBannerFromFile prints the startup banner; a missing file is not fatal
func PrintBannerFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	fmt.Println(string(data))
	return nil
}

// LogConfigInfo prints the effective configuration at startup
func LogConfigInfo() {
	cfg := config.GlobalConfig
	if cfg == nil {
		return
	}
	logger.Info("configuration loaded",
		zap.String("name", cfg.ServerName),
		zap.String("addr", cfg.Addr),
		zap.String("mode", cfg.Mode),
		zap.String("dbDriver", cfg.DBDriver),
		zap.Bool("sipEnabled", cfg.SIPEnabled),
		zap.Bool("recordingEnabled", cfg.RecordingEnabled),
		zap.Bool("aiEnabled", cfg.AIEnabled),
	)
}
