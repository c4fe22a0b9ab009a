package main

import (
	// Standard library
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	// External dependencies
	"github.com/gin-gonic/gin"

	// Internal packages
	"github.com/houzhh15/factlens/cmd/server/internal/api"
	"github.com/houzhh15/factlens/cmd/server/internal/config"
	"github.com/houzhh15/factlens/cmd/server/internal/domain/jobs"
	"github.com/houzhh15/factlens/cmd/server/internal/middleware"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/chunker"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/degradation"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/dependency"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/factcheck"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/health"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/media"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/provider/gemini"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/provider/openai"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/report"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/transcribe"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/translate"
	"github.com/houzhh15/factlens/pkg/logger"
)

// Version 由构建参数 -ldflags "-X main.Version=..." 注入
var Version = "dev"

const (
	healthCheckInterval = 60 * time.Second
	healthFailThreshold = 3
	shutdownTimeout     = 30 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logInstance, err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		WithSource:  !cfg.IsProduction(),
		File:        cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	appLogger := logInstance.With("component", "web-server")

	// Validate configuration
	if err := config.ValidateConfig(cfg); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	appLogger.Info("configuration loaded", "env", cfg.Server.Env, "port", cfg.Server.Port, "version", Version)
	appLogger.Debug(cfg.PrintConfig())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	// Job store
	cache := jobs.NewCache(cfg.Cache.RedisURL, cfg.Cache.TTL, logInstance)
	store, err := jobs.Open(cfg.Data.Dir, jobs.WithCache(cache), jobs.WithLogger(logInstance))
	if err != nil {
		appLogger.Error("job store init failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	appLogger.Info("job store ready", "data_dir", cfg.Data.Dir, "redis", cache.HasL2())

	// External tools
	execCfg := dependency.DefaultExecutorConfig(cfg.Data.Dir)
	execCfg.DefaultTimeout = cfg.Pipeline.DownloadTimeout
	setBinary(execCfg.LocalBinaryPaths, dependency.CommandYtDlp, cfg.Media.YtDlpPath)
	setBinary(execCfg.LocalBinaryPaths, dependency.CommandFFmpeg, cfg.Media.FFmpegPath)
	setBinary(execCfg.LocalBinaryPaths, dependency.CommandFFprobe, cfg.Media.FFprobePath)
	if cfg.Media.CookiesFile != "" {
		execCfg.AllowedRoots = append(execCfg.AllowedRoots, filepath.Dir(cfg.Media.CookiesFile))
	}
	depClient, err := dependency.NewClient(execCfg)
	if err != nil {
		appLogger.Error("dependency client init failed", "error", err)
		os.Exit(1)
	}

	envStatus := orchestrator.CheckEnvironment(rootCtx, orchestrator.EnvCheckConfig{
		YtDlpPath:   cfg.Media.YtDlpPath,
		FFmpegPath:  cfg.Media.FFmpegPath,
		FFprobePath: cfg.Media.FFprobePath,
		OpenAIKey:   cfg.Providers.OpenAIAPIKey,
		GeminiKey:   cfg.Providers.GeminiAPIKey,
		NeedsOpenAI: cfg.NeedsOpenAI(),
		NeedsGemini: cfg.NeedsGemini(),
	})
	for _, issue := range envStatus.Issues {
		appLogger.Error("environment issue", "issue", issue)
	}
	for _, w := range envStatus.Warnings {
		appLogger.Warn("environment warning", "warning", w)
	}

	resolver := media.NewResolver(depClient, media.Config{
		CookiesFile:      cfg.Media.CookiesFile,
		DownloadTimeout:  cfg.Pipeline.DownloadTimeout,
		DownloadAttempts: cfg.Pipeline.DownloadAttempts,
	}, logInstance)
	splitter := chunker.New(depClient, logInstance)

	// Providers
	primary := newTranscriber(cfg, cfg.Pipeline.TranscribeModel, logInstance)
	healthChecker := health.NewHealthChecker(primary, healthCheckInterval, healthFailThreshold).WithLogger(logInstance)
	go healthChecker.Start(rootCtx)
	defer healthChecker.Stop()

	var (
		transcriber transcribe.Transcriber = primary
		degradeCtrl *degradation.DegradationController
	)
	if cfg.Pipeline.TranscribeFallbackModel != "" {
		fallback := newTranscriber(cfg, cfg.Pipeline.TranscribeFallbackModel, logInstance)
		degradeCtrl = degradation.NewDegradationController(primary, fallback, healthChecker)
		transcriber = degradeCtrl
		appLogger.Info("transcription fallback enabled", "primary", primary.Name(), "fallback", fallback.Name())
	}

	checker := newFactChecker(cfg, logInstance)
	translator := translate.New(newTranslateCompleter(cfg, logInstance), logInstance)
	appLogger.Info("providers ready",
		"transcriber", transcriber.Name(),
		"factchecker", checker.Name(),
		"translator", translator.Name())

	// Orchestrator
	orch := orchestrator.New(orchestrator.Config{
		ChunkSeconds: cfg.Pipeline.ChunkSeconds,
		MaxWorkers:   cfg.Pipeline.MaxWorkers,
		JobTimeout:   cfg.Pipeline.JobTimeout,
		MaxURLLength: cfg.API.MaxURLLength,
	}, orchestrator.Deps{
		Store:       store,
		Resolver:    resolver,
		Splitter:    splitter,
		Transcriber: transcriber,
		FactChecker: checker,
		Normalizer:  report.NewNormalizer(report.WithLogger(logInstance)),
		Translator:  translator,
		Logger:      logInstance,
	})
	if err := orch.Start(rootCtx); err != nil {
		appLogger.Error("orchestrator start failed", "error", err)
		os.Exit(1)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logInstance))
	api.RegisterRoutes(r, orch, api.RouteConfig{
		Health: api.HealthDeps{
			Version:       Version,
			Environment:   func() *orchestrator.EnvironmentStatus { return envStatus },
			HealthChecker: healthChecker,
			Degradation:   degradeCtrl,
		},
		PollIntervalMS: cfg.API.PollIntervalMS,
		MaxURLLength:   cfg.API.MaxURLLength,
	})

	// Create HTTP server with graceful shutdown
	serverAddr := cfg.GetServerAddr()
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		appLogger.Info("server starting", "addr", serverAddr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	appLogger.Info("shutdown signal received, shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("server forced to shutdown", "error", err)
	}
	if err := orch.Shutdown(ctx); err != nil {
		appLogger.Warn("running jobs cancelled at shutdown", "error", err)
	}
	appLogger.Info("server shutdown complete")
}

func setBinary(paths map[string]string, command, path string) {
	if path != "" {
		paths[command] = path
	}
}

// newTranscriber 按模型名前缀选择 Gemini 或 OpenAI 转写
func newTranscriber(cfg *config.Config, model string, l *slog.Logger) transcribe.Transcriber {
	if gemini.IsGeminiModel(model) {
		return gemini.NewTranscriber(geminiConfig(cfg, model, l))
	}
	return openai.NewTranscriber(openaiConfig(cfg, model, l))
}

func newFactChecker(cfg *config.Config, l *slog.Logger) factcheck.FactChecker {
	model := cfg.Pipeline.FactCheckModel
	if gemini.IsGeminiModel(model) {
		return gemini.NewFactChecker(geminiConfig(cfg, model, l))
	}
	return openai.NewFactChecker(openaiConfig(cfg, model, l))
}

// newTranslateCompleter 有 Gemini Key 时使用 TRANSLATE_MODEL，否则复用核查模型
func newTranslateCompleter(cfg *config.Config, l *slog.Logger) factcheck.Completer {
	if cfg.Providers.GeminiAPIKey != "" && gemini.IsGeminiModel(cfg.Pipeline.TranslateModel) {
		return gemini.NewCompleter(geminiConfig(cfg, cfg.Pipeline.TranslateModel, l))
	}
	model := cfg.Pipeline.FactCheckModel
	if gemini.IsGeminiModel(model) {
		return gemini.NewCompleter(geminiConfig(cfg, model, l))
	}
	return openai.NewCompleter(openaiConfig(cfg, model, l))
}

func openaiConfig(cfg *config.Config, model string, l *slog.Logger) openai.Config {
	return openai.Config{
		APIKey:          cfg.Providers.OpenAIAPIKey,
		BaseURL:         cfg.Providers.OpenAIBaseURL,
		Model:           model,
		ReasoningEffort: cfg.Pipeline.ThinkingLevel,
		Timeout:         cfg.Pipeline.ProviderTimeout,
		RPS:             cfg.Pipeline.ProviderRPS,
		Logger:          l,
	}
}

func geminiConfig(cfg *config.Config, model string, l *slog.Logger) gemini.Config {
	return gemini.Config{
		APIKey:        cfg.Providers.GeminiAPIKey,
		BaseURL:       cfg.Providers.GeminiBaseURL,
		Model:         model,
		ThinkingLevel: cfg.Pipeline.ThinkingLevel,
		Timeout:       cfg.Pipeline.ProviderTimeout,
		RPS:           cfg.Pipeline.ProviderRPS,
		Logger:        l,
	}
}
