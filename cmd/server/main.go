package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rdevaul/glados-voice-pwa/internal/agent"
	"github.com/rdevaul/glados-voice-pwa/internal/config"
	"github.com/rdevaul/glados-voice-pwa/internal/metrics"
	"github.com/rdevaul/glados-voice-pwa/internal/procrun"
	"github.com/rdevaul/glados-voice-pwa/internal/server"
	"github.com/rdevaul/glados-voice-pwa/internal/session"
	"github.com/rdevaul/glados-voice-pwa/internal/transcribe"
	"github.com/rdevaul/glados-voice-pwa/internal/tts"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "glados-voice-pwa"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.HTTP.Port),
		slog.String("http_address", cfg.HTTP.Address),
		slog.Int("session_ttl", cfg.Session.TTL),
		slog.String("agent_binary", cfg.Agent.Binary),
		slog.String("whisper_model", cfg.Whisper.Model),
		slog.String("tts_model_path", cfg.TTS.ModelPath),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize session store with its background cleanup loop
	store := session.NewStore(logger, session.Config{
		TTL:             cfg.Session.GetTTLDuration(),
		CleanupInterval: cfg.Session.GetCleanupIntervalDuration(),
	}, appMetrics)
	logger.Info("Session store initialized",
		slog.Duration("ttl", cfg.Session.GetTTLDuration()),
		slog.Duration("cleanup_interval", cfg.Session.GetCleanupIntervalDuration()),
	)

	// One retrying runner is shared by every external process invocation
	runner := procrun.NewRunner(logger, cfg.Agent.MaxAttempts, cfg.Agent.GetRetryDelayDuration())

	// Speech-to-text engine
	whisperEngine := transcribe.NewWhisperEngine(transcribe.WhisperConfig{
		Binary:   cfg.Whisper.Binary,
		Model:    cfg.Whisper.Model,
		Language: cfg.Whisper.Language,
		TempDir:  cfg.Whisper.TempDir,
		Timeout:  cfg.Whisper.GetTimeoutDuration(),
	}, runner, logger)
	logger.Info("Whisper engine initialized",
		slog.String("model", cfg.Whisper.Model),
	)

	// Text-to-speech engine
	ttsEngine, err := tts.NewEngine(tts.Config{
		Binary:    cfg.TTS.Binary,
		ModelPath: cfg.TTS.ModelPath,
		CacheDir:  cfg.TTS.CacheDir,
		Timeout:   cfg.TTS.GetTimeoutDuration(),
		Metrics:   appMetrics,
	}, runner, logger)
	if err != nil {
		logger.Error("Failed to create TTS engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("TTS engine initialized",
		slog.String("cache_dir", cfg.TTS.CacheDir),
	)

	// Conversational agent client
	agentClient := agent.NewClient(agent.Config{
		Binary:         cfg.Agent.Binary,
		Timeout:        cfg.Agent.GetTimeoutDuration(),
		SessionsFile:   cfg.Agent.SessionsFile,
		MainSessionKey: cfg.Agent.MainSessionKey,
		Metrics:        appMetrics,
	}, runner, logger)
	logger.Info("Agent client initialized",
		slog.String("binary", cfg.Agent.Binary),
	)

	// HTTP API server with the WebSocket voice loop
	httpServer := server.NewHTTPServer(logger, server.Deps{
		Config: cfg,
		Store:  store,
		Agent:  agentClient,
		STT:    whisperEngine,
		TTS:    ttsEngine,
		NewStreamTranscriber: func() *transcribe.ChunkedTranscriber {
			return transcribe.NewChunkedTranscriber(whisperEngine, logger, transcribe.Config{
				ChunkDuration: cfg.Whisper.GetChunkDuration(),
				Overlap:       cfg.Whisper.GetOverlapDuration(),
				Metrics:       appMetrics,
			})
		},
		Metrics: appMetrics,
	})
	logger.Info("HTTP API server initialized",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start()
	})

	g.Go(func() error {
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gctx.Done():
			logger.Info("Context cancelled, shutting down")
		}

		logger.Info("Starting graceful shutdown...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		return httpServer.Stop(shutdownCtx)
	})

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	if err := g.Wait(); err != nil {
		logger.Error("Server error", slog.String("error", err.Error()))
	}

	// Stop the session store (cleanup loop and all sessions)
	store.Stop()

	logger.Info("Final statistics",
		slog.Int("active_sessions", store.ActiveCount()),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	return slog.New(handler)
}
