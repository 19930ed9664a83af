package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/waveframe/internal/client/apprise"
	"github.com/waveframe/internal/config"
	"github.com/waveframe/internal/ffmpeg"
	"github.com/waveframe/internal/fileops"
	"github.com/waveframe/internal/handler"
	"github.com/waveframe/internal/media"
	"github.com/waveframe/internal/queue"
	"github.com/waveframe/internal/validator"
	"github.com/waveframe/internal/version"
	"github.com/waveframe/pkg/logger"
)

func main() {
	// Initialize logger
	isDev := os.Getenv("ENV") != "production"
	logger.Init(isDev)
	defer logger.Sync()

	version.PrintBanner(nil)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	logger.Infof("📁 Loading config: %s", configPath)
	cfgMgr, err := config.NewManager(configPath)
	if err != nil {
		logger.Fatalf("❌ Config error: %v", err)
	}
	defer cfgMgr.Stop()
	cfg := cfgMgr.Get()

	if cfg.Output.Directory != "" {
		if err := fileops.EnsureDir(cfg.Output.Directory); err != nil {
			logger.Fatalf("❌ Output directory error: %v", err)
		}
	}

	// Probe the ffmpeg binary before accepting any work
	adapter := ffmpeg.New(cfg.Tools.FFmpegPath)
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	ffmpegVersion, err := adapter.Available(probeCtx)
	probeCancel()
	if err != nil {
		logger.Fatalf("❌ ffmpeg not usable (%s): %v", cfg.Tools.FFmpegPath, err)
	}
	logger.Infof("🎬 %s", ffmpegVersion)

	// Initialize Apprise client
	var appriseClient *apprise.Client
	if cfg.Apprise.Enabled {
		appriseClient = apprise.NewClient(cfg.Apprise)
		logger.Infof("🔔 Notifications: enabled (key=%s)", cfg.Apprise.Key)
	} else {
		logger.Info("🔔 Notifications: disabled")
	}

	// Initialize the conversion controller
	controller := queue.NewController(adapter, settingsFrom(cfg), queue.NewBus(0))
	wireNotifications(controller, appriseClient)
	controller.Start()
	defer controller.Stop()

	// Apply config file edits to future jobs without a restart
	cfgMgr.OnChange(func(_, next *config.Config) {
		controller.ApplySettings(settingsFrom(next))
		logger.Info("🔄 Settings applied to new jobs")
	})

	// Initialize HTTP server
	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	// Register routes
	h := handler.New(controller, validator.New(cfg.Tools.FFprobePath))
	h.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Print startup info
	logger.Info("")
	logger.Infof("🎞️  Output quality: %s (preserve metadata: %v)", cfg.Output.Quality, cfg.Output.PreserveMetadata)
	logger.Infof("⚙️  Concurrency: %d, pending capacity: %d", cfg.Queue.MaxConcurrentJobs, cfg.Queue.MaxPendingJobs)
	logger.Info("")
	logger.Infof("🌐 API server: http://localhost:%d", cfg.Server.Port)
	logger.Infof("   POST /api/v1/drop            - Queue dropped audio files")
	logger.Infof("   POST /api/v1/start           - Start converting")
	logger.Infof("   GET  /api/v1/state           - Application state")
	logger.Infof("   GET  /api/v1/events?since=N  - Progress event feed")
	logger.Info("")
	logger.Info("────────────────────────────────────────────────────────────────")
	logger.Info("✅  Ready! Waiting for dropped files...")
	logger.Info("────────────────────────────────────────────────────────────────")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("")
	logger.Info("🛑 Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("❌ Shutdown error: %v", err)
	}

	logger.Info("👋 Goodbye!")
}

// settingsFrom maps the config file onto controller settings. Load already
// normalizes an unknown quality to medium; the fallback here covers configs
// built without it.
func settingsFrom(cfg *config.Config) queue.Settings {
	quality, err := media.ParseQuality(cfg.Output.Quality)
	if err != nil {
		quality = media.QualityMedium
	}
	return queue.Settings{
		OutputDirectory:   cfg.Output.Directory,
		Quality:           quality,
		PreserveMetadata:  cfg.Output.PreserveMetadata,
		MaxConcurrentJobs: cfg.Queue.MaxConcurrentJobs,
		MaxPendingJobs:    cfg.Queue.MaxPendingJobs,
		CompletedCapacity: cfg.Queue.CompletedCapacity,
	}
}

// wireNotifications forwards job outcomes to Apprise. Sends run on their own
// goroutines so a slow notification endpoint never delays the controller.
func wireNotifications(c *queue.Controller, client *apprise.Client) {
	if client == nil {
		return
	}

	c.OnComplete = func(result queue.CompletionResult) {
		go func() {
			var err error
			if result.Success {
				err = client.NotifyConversionDone(result.JobID, result.OutputPath)
			} else {
				err = client.NotifyConversionFailed(result.JobID, result.ErrorMessage, result.SuggestedAction)
			}
			if err != nil {
				logger.Warnf("⚠️ Notification failed: %v", err)
			}
		}()
	}

	c.OnAllComplete = func(succeeded, failed int) {
		go func() {
			if err := client.NotifyBatchDone(succeeded, failed); err != nil {
				logger.Warnf("⚠️ Notification failed: %v", err)
			}
		}()
	}
}

// requestLogger returns a gin middleware for logging HTTP requests
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		if path != "/api/v1/health" || status >= 400 {
			latency := time.Since(start)
			logger.Debugf("HTTP %s %s → %d (%v)", c.Request.Method, path, status, latency)
		}
	}
}
