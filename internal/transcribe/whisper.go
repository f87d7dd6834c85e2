package transcribe

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
)

// WhisperConfig configures the external whisper invocation.
type WhisperConfig struct {
	Binary   string // whisper executable
	Model    string // e.g. "base"
	Language string // optional, e.g. "en"
	TempDir  string // defaults to os.TempDir()
	Timeout  time.Duration
}

// WhisperEngine runs the whisper CLI over a temporary audio file and reads
// the sibling .txt transcript it produces.
type WhisperEngine struct {
	cfg    WhisperConfig
	runner *procrun.Runner
	logger *slog.Logger
}

// NewWhisperEngine creates a whisper-backed transcription engine.
func NewWhisperEngine(cfg WhisperConfig, runner *procrun.Runner, logger *slog.Logger) *WhisperEngine {
	if cfg.Binary == "" {
		cfg.Binary = "whisper"
	}
	if cfg.Model == "" {
		cfg.Model = "base"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &WhisperEngine{cfg: cfg, runner: runner, logger: logger}
}

// Transcribe writes the audio to a temp file, runs whisper on it, and
// returns the trimmed transcript. Both the input file and whisper's output
// file are removed on every path.
func (e *WhisperEngine) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	stem := uuid.New().String()
	inputPath := filepath.Join(e.cfg.TempDir, stem+"."+format)
	outputPath := filepath.Join(e.cfg.TempDir, stem+".txt")

	if err := os.WriteFile(inputPath, audio, 0o600); err != nil {
		return "", fmt.Errorf("failed to write audio temp file: %w", err)
	}
	defer os.Remove(inputPath)
	defer os.Remove(outputPath)

	args := []string{inputPath, "--model", e.cfg.Model}
	if e.cfg.Language != "" {
		args = append(args, "--language", e.cfg.Language)
	}
	args = append(args, "--output_format", "txt", "--output_dir", e.cfg.TempDir)

	e.logger.Debug("Running whisper",
		slog.Int("audio_bytes", len(audio)),
		slog.String("format", format),
		slog.String("model", e.cfg.Model),
	)

	result, err := e.runner.Run(ctx, procrun.Spec{
		Path:    e.cfg.Binary,
		Args:    args,
		Timeout: e.cfg.Timeout,
	})
	if err != nil {
		return "", fmt.Errorf("whisper invocation failed: %w", err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("whisper exited with code %d: %s",
			result.ExitCode, strings.TrimSpace(string(result.Stderr)))
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return "", fmt.Errorf("whisper produced no output file: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}
