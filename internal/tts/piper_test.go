package tts

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rdevaul/glados-voice-pwa/internal/procrun"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// writePiperScript creates a fake piper CLI that writes its stdin to the
// file named by -f.
func writePiperScript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "piper.sh")
	body := `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-f" ]; then out="$2"; shift; fi
  shift
done
cat > "$out"
`
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("Failed to write piper script: %v", err)
	}
	return path
}

func newTestEngine(t *testing.T, binary string) *Engine {
	t.Helper()
	runner := procrun.NewRunner(testLogger(), 1, 10*time.Millisecond)
	engine, err := NewEngine(Config{
		Binary:    binary,
		ModelPath: "voice.onnx",
		CacheDir:  t.TempDir(),
		Timeout:   5 * time.Second,
	}, runner, testLogger())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func TestSynthesize(t *testing.T) {
	engine := newTestEngine(t, writePiperScript(t))

	name, err := engine.Synthesize(context.Background(), "Hello **world**.")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if !strings.HasSuffix(name, ".wav") {
		t.Errorf("Expected .wav file name, got %q", name)
	}

	data, err := os.ReadFile(filepath.Join(engine.CacheDir(), name))
	if err != nil {
		t.Fatalf("Output file missing: %v", err)
	}

	// Markdown stripped before speaking.
	if string(data) != "Hello world." {
		t.Errorf("Expected cleaned text piped to piper, got %q", data)
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	engine := newTestEngine(t, writePiperScript(t))

	if _, err := engine.Synthesize(context.Background(), "```\ncode only\n```"); err == nil {
		t.Error("Expected error when nothing is left to speak")
	}
}

func TestSynthesizeEngineFailure(t *testing.T) {
	failing := filepath.Join(t.TempDir(), "piper.sh")
	if err := os.WriteFile(failing, []byte("#!/bin/sh\necho 'model load error' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}

	engine := newTestEngine(t, failing)
	if _, err := engine.Synthesize(context.Background(), "speak this"); err == nil {
		t.Error("Expected error when piper fails")
	}
}

func TestNewEngineRequiresModel(t *testing.T) {
	runner := procrun.NewRunner(testLogger(), 1, 10*time.Millisecond)
	if _, err := NewEngine(Config{CacheDir: t.TempDir()}, runner, testLogger()); err == nil {
		t.Error("Expected error for missing model path")
	}
}

// captureMetrics records synthesis outcomes.
type captureMetrics struct {
	requests int
	failed   int
}

func (m *captureMetrics) RecordSynthesis(_ float64, failed bool) {
	m.requests++
	if failed {
		m.failed++
	}
}

func TestSynthesisOutcomesReachMetrics(t *testing.T) {
	metrics := &captureMetrics{}
	runner := procrun.NewRunner(testLogger(), 1, 10*time.Millisecond)
	engine, err := NewEngine(Config{
		Binary:    writePiperScript(t),
		ModelPath: "voice.onnx",
		CacheDir:  t.TempDir(),
		Timeout:   5 * time.Second,
		Metrics:   metrics,
	}, runner, testLogger())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	if _, err := engine.Synthesize(context.Background(), "hello"); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if metrics.requests != 1 || metrics.failed != 0 {
		t.Errorf("Expected 1 success recorded, got %d requests / %d failed",
			metrics.requests, metrics.failed)
	}

	// Nothing speakable left after markdown cleanup counts as a failure.
	if _, err := engine.Synthesize(context.Background(), "  "); err == nil {
		t.Fatalf("Expected error for empty text")
	}
	if metrics.requests != 2 || metrics.failed != 1 {
		t.Errorf("Expected failure recorded, got %d requests / %d failed",
			metrics.requests, metrics.failed)
	}
}
