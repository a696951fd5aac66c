package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/code-100-precent/LingDial/cmd/bootstrap"
	"github.com/code-100-precent/LingDial/internal/call"
	"github.com/code-100-precent/LingDial/internal/engine"
	handlers "github.com/code-100-precent/LingDial/internal/handler"
	"github.com/code-100-precent/LingDial/internal/enrichment"
	"github.com/code-100-precent/LingDial/internal/recording"
	"github.com/code-100-precent/LingDial/internal/task"
	"github.com/code-100-precent/LingDial/pkg/config"
	"github.com/code-100-precent/LingDial/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// selectEngine prefers the SIP engine and falls back to the demo engine
// when SIP is disabled or fails to start
func selectEngine() engine.Engine {
	cfg := config.GlobalConfig
	if !cfg.SIPEnabled {
		logger.Info("SIP disabled, using demo engine")
		return engine.NewDemoEngine()
	}

	eng, err := engine.NewSipEngine(engine.SipConfig{
		Domain:     cfg.SIPDomain,
		Username:   cfg.SIPUsername,
		Password:   cfg.SIPPassword,
		ListenIP:   cfg.SIPListenIP,
		Port:       cfg.SIPPort,
		Transport:  cfg.SIPTransport,
		RTPPortMin: cfg.RTPPortMin,
		RTPPortMax: cfg.RTPPortMax,
	})
	if err != nil {
		logger.Error("SIP engine failed to start, falling back to demo engine", zap.Error(err))
		return engine.NewDemoEngine()
	}
	logger.Info("SIP engine started",
		zap.String("domain", cfg.SIPDomain),
		zap.String("listen", cfg.SIPListenIP),
		zap.Int("port", cfg.SIPPort),
	)
	return eng
}

func main() {
	// 1. Print Banner
	if err := bootstrap.PrintBannerFromFile("banner.txt"); err != nil {
		log.Fatalf("unload banner: %v", err)
	}

	// 2. Parse Command Line Parameters
	mode := flag.String("mode", "", "running environment (development, test, production)")
	initSQL := flag.String("init-sql", "", "path to database init .sql script (optional)")
	flag.Parse()

	// 3. Set Environment Variables
	if *mode != "" {
		os.Setenv("APP_ENV", *mode)
	}

	// 4. Load Global Configuration
	if err := config.Load(); err != nil {
		panic("config load failed: " + err.Error())
	}

	// 5. Load Log Configuration
	err := logger.Init(&config.GlobalConfig.Log, config.GlobalConfig.Mode)
	if err != nil {
		panic(err)
	}

	// 6. Print Configuration
	bootstrap.LogConfigInfo()

	// 7. Load Data Source
	db, err := bootstrap.SetupDatabase(os.Stdout, &bootstrap.Options{
		InitSQLPath: *initSQL,                             // Can be specified via --init-sql
		AutoMigrate: true,                                 // Whether to migrate entities
		SeedNonProd: os.Getenv("APP_ENV") != "production", // Non-production demo contacts
	})
	if err != nil {
		logger.Error("database setup failed", zap.Error(err))
		return
	}

	// 8. Load Base Configs
	var addr = config.GlobalConfig.Addr
	if addr == "" {
		addr = ":7073"
	}

	logger.Info("checked config -- addr: ", zap.String("addr", addr))
	logger.Info("checked config -- db-driver: ",
		zap.String("db-driver", config.GlobalConfig.DBDriver),
		zap.String("dsn", config.GlobalConfig.DSN),
	)
	logger.Info("checked config -- mode: ", zap.String("mode", config.GlobalConfig.Mode))

	// 9. Select Call Engine
	eng := selectEngine()
	defer eng.Close()

	// 10. Recording Controller
	recorder := recording.NewController(config.GlobalConfig.RecordingDir, config.GlobalConfig.RecordingFormat)

	// 11. Enrichment Pipeline (optional)
	var enricher call.Enricher
	if config.GlobalConfig.AIEnabled && config.GlobalConfig.LLMApiKey != "" {
		analyzer := enrichment.NewOpenAIAnalyzer(
			config.GlobalConfig.LLMApiKey,
			config.GlobalConfig.LLMBaseURL,
			config.GlobalConfig.LLMModel,
			config.GlobalConfig.WhisperModel,
		)
		pipeline := enrichment.NewPipeline(db, analyzer, enrichment.Options{
			Workers:      config.GlobalConfig.EnrichmentWorkers,
			StageTimeout: config.GlobalConfig.EnrichmentTimeout,
		})
		pipeline.Start()
		defer pipeline.Stop()
		enricher = pipeline
		logger.Info("enrichment pipeline started",
			zap.Int("workers", config.GlobalConfig.EnrichmentWorkers),
			zap.String("model", config.GlobalConfig.LLMModel),
		)
	} else {
		logger.Info("enrichment disabled")
	}

	// 12. Call Registry
	registry := call.NewRegistry(db, eng, recorder, enricher, call.Options{
		Domain:     config.GlobalConfig.SIPDomain,
		AutoRecord: config.GlobalConfig.RecordingEnabled && eng.Name() != "demo",
	})
	registry.Start()
	defer registry.Stop()

	// 13. Start Timed Task
	task.StartRecordingSweeper(db, config.GlobalConfig.RecordingDir)

	// 14. Initialize Gin Routing
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()        // Use gin.New() instead of gin.Default() to avoid automatic redirects
	r.Use(gin.Recovery()) // Manually add Recovery middleware

	// Disable automatic redirects to avoid CORS issues caused by 307 redirects
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	// 15. Register Routes
	handlers.NewHandlers(db, registry, eng.Name()).Register(r)

	// 16. Start HTTP Server
	httpServer := &http.Server{
		Addr:           addr,
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("HTTP server run failed", zap.Error(err))
	}
}
