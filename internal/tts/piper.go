package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rdevaul/glados-voice-pwa/internal/procrun"
	"github.com/rdevaul/glados-voice-pwa/internal/textutil"
)

// Config configures the Piper invocation.
type Config struct {
	Binary    string // piper executable
	ModelPath string // .onnx voice model
	CacheDir  string // where generated WAV files land
	Timeout   time.Duration

	// Metrics may be nil when instrumentation is not wanted.
	Metrics Metrics
}

// Metrics receives the outcome of each synthesis request.
type Metrics interface {
	RecordSynthesis(durationSeconds float64, failed bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordSynthesis(float64, bool) {}

// Engine synthesizes WAV audio from text via the Piper CLI.
type Engine struct {
	cfg    Config
	runner *procrun.Runner
	logger *slog.Logger
}

// NewEngine creates a Piper-backed TTS engine. The cache directory is
// created if it does not exist.
func NewEngine(cfg Config, runner *procrun.Runner, logger *slog.Logger) (*Engine, error) {
	if cfg.Binary == "" {
		cfg.Binary = "piper"
	}
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("piper model path cannot be empty")
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "audio_cache"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio cache dir: %w", err)
	}

	return &Engine{cfg: cfg, runner: runner, logger: logger}, nil
}

// Synthesize converts text to speech and returns the generated file name
// within the cache directory. Markdown is stripped first so formatting is
// not read aloud.
func (e *Engine) Synthesize(ctx context.Context, text string) (string, error) {
	start := time.Now()
	name, err := e.synthesize(ctx, text)
	e.cfg.Metrics.RecordSynthesis(time.Since(start).Seconds(), err != nil)
	return name, err
}

func (e *Engine) synthesize(ctx context.Context, text string) (string, error) {
	cleaned := textutil.StripMarkdown(text)
	if strings.TrimSpace(cleaned) == "" {
		return "", fmt.Errorf("nothing to speak after cleanup")
	}

	name := uuid.New().String() + ".wav"
	outputPath := filepath.Join(e.cfg.CacheDir, name)

	e.logger.Debug("Running piper",
		slog.Int("text_len", len(cleaned)),
		slog.String("output", outputPath),
	)

	result, err := e.runner.Run(ctx, procrun.Spec{
		Path:    e.cfg.Binary,
		Args:    []string{"-m", e.cfg.ModelPath, "-f", outputPath},
		Stdin:   []byte(cleaned),
		Timeout: e.cfg.Timeout,
	})
	if err != nil {
		return "", fmt.Errorf("piper invocation failed: %w", err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("piper exited with code %d: %s",
			result.ExitCode, strings.TrimSpace(string(result.Stderr)))
	}

	if _, err := os.Stat(outputPath); err != nil {
		return "", fmt.Errorf("piper produced no output file: %w", err)
	}

	return name, nil
}

// CacheDir exposes where generated audio lives, for the serving layer.
func (e *Engine) CacheDir() string {
	return e.cfg.CacheDir
}
