package config

import (
	"log"
	"os"
	"time"

	"github.com/code-100-precent/LingDial/pkg/logger"
	"github.com/code-100-precent/LingDial/pkg/utils"
)

// Config System CommonConfig
type Config struct {
	ServerName string `env:"SERVER_NAME"`
	ServerDesc string `env:"SERVER_DESC"`
	DBDriver   string `env:"DB_DRIVER"`
	DSN        string `env:"DSN"`
	Log        logger.LogConfig
	Addr       string `env:"ADDR"`
	Mode       string `env:"MODE"`
	APIPrefix  string `env:"API_PREFIX"`

	// SIP配置
	SIPEnabled   bool   `env:"SIP_ENABLED"`    // 是否启用真实SIP引擎（否则使用演示引擎）
	SIPDomain    string `env:"SIP_DOMAIN"`     // SIP域，裸分机号补全用
	SIPUsername  string `env:"SIP_USERNAME"`   // 注册用户名
	SIPPassword  string `env:"SIP_PASSWORD"`   // 注册密码
	SIPListenIP  string `env:"SIP_LISTEN_IP"`  // 本地监听IP
	SIPPort      int    `env:"SIP_PORT"`       // 本地监听端口
	SIPTransport string `env:"SIP_TRANSPORT"`  // udp/tcp
	RTPPortMin   int    `env:"RTP_PORT_MIN"`   // RTP端口范围下限
	RTPPortMax   int    `env:"RTP_PORT_MAX"`   // RTP端口范围上限

	// 录音配置
	RecordingEnabled bool   `env:"RECORDING_ENABLED"` // 接通后是否自动录音
	RecordingDir     string `env:"RECORDING_DIR"`     // 录音文件目录
	RecordingFormat  string `env:"RECORDING_FORMAT"`  // 录音文件扩展名

	// AI增强配置
	AIEnabled         bool          `env:"AI_ENABLED"`          // 通话结束后是否进行AI分析
	LLMApiKey         string        `env:"LLM_API_KEY"`
	LLMBaseURL        string        `env:"LLM_BASE_URL"`
	LLMModel          string        `env:"LLM_MODEL"`
	WhisperModel      string        `env:"WHISPER_MODEL"`       // 转写模型
	EnrichmentWorkers int           `env:"ENRICHMENT_WORKERS"`  // 分析工作协程数量
	EnrichmentTimeout time.Duration `env:"ENRICHMENT_TIMEOUT"`  // 单阶段超时
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件（如果不存在也不报错，使用默认值）
	env := os.Getenv("APP_ENV")
	err := utils.LoadEnv(env)
	if err != nil {
		// .env文件不存在时只记录日志，不影响启动
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}

	// 2. 加载全局配置（所有配置都有默认值，确保无.env文件也能启动）
	GlobalConfig = &Config{
		ServerName: getStringOrDefault("SERVER_NAME", "LingDial"),
		ServerDesc: getStringOrDefault("SERVER_DESC", "softphone control plane"),
		DBDriver:   getStringOrDefault("DB_DRIVER", "sqlite"),
		DSN:        getStringOrDefault("DSN", "./lingdial.db"),
		Addr:       getStringOrDefault("ADDR", ":7073"),
		Mode:       getStringOrDefault("MODE", "development"),
		APIPrefix:  getStringOrDefault("API_PREFIX", "/api"),
		Log: logger.LogConfig{
			Level:      getStringOrDefault("LOG_LEVEL", "info"),
			Filename:   getStringOrDefault("LOG_FILENAME", "./logs/app.log"),
			MaxSize:    getIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     getIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      getBoolOrDefault("LOG_DAILY", true),
		},
		// SIP配置
		SIPEnabled:   getBoolOrDefault("SIP_ENABLED", false),
		SIPDomain:    getStringOrDefault("SIP_DOMAIN", "127.0.0.1"),
		SIPUsername:  getStringOrDefault("SIP_USERNAME", ""),
		SIPPassword:  getStringOrDefault("SIP_PASSWORD", ""),
		SIPListenIP:  getStringOrDefault("SIP_LISTEN_IP", "0.0.0.0"),
		SIPPort:      getIntOrDefault("SIP_PORT", 5060),
		SIPTransport: getStringOrDefault("SIP_TRANSPORT", "udp"),
		RTPPortMin:   getIntOrDefault("RTP_PORT_MIN", 10000),
		RTPPortMax:   getIntOrDefault("RTP_PORT_MAX", 10100),
		// 录音配置
		RecordingEnabled: getBoolOrDefault("RECORDING_ENABLED", true),
		RecordingDir:     getStringOrDefault("RECORDING_DIR", "./recordings"),
		RecordingFormat:  getStringOrDefault("RECORDING_FORMAT", "wav"),
		// AI增强配置
		AIEnabled:         getBoolOrDefault("AI_ENABLED", false),
		LLMApiKey:         getStringOrDefault("LLM_API_KEY", ""),
		LLMBaseURL:        getStringOrDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMModel:          getStringOrDefault("LLM_MODEL", "gpt-4o-mini"),
		WhisperModel:      getStringOrDefault("WHISPER_MODEL", "whisper-1"),
		EnrichmentWorkers: getIntOrDefault("ENRICHMENT_WORKERS", 2),
		EnrichmentTimeout: getDurationOrDefault("ENRICHMENT_TIMEOUT", 60*time.Second),
	}
	return nil
}

// getStringOrDefault 获取环境变量值，如果为空则返回默认值
func getStringOrDefault(key, defaultValue string) string {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getBoolOrDefault 获取布尔环境变量值，如果为空则返回默认值
func getBoolOrDefault(key string, defaultValue bool) bool {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	return utils.GetBoolEnv(key)
}

// getIntOrDefault 获取整数环境变量值，如果为空则返回默认值
func getIntOrDefault(key string, defaultValue int) int {
	value := utils.GetIntEnv(key)
	if value == 0 {
		return defaultValue
	}
	return int(value)
}

// getDurationOrDefault 获取时间环境变量值，如果为空或非法则返回默认值
func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := utils.GetEnv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
