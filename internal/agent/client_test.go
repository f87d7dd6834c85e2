package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rdevaul/glados-voice-pwa/internal/procrun"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// writeAgentScript creates a fake agent CLI in a temp dir.
func writeAgentScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("Failed to write agent script: %v", err)
	}
	return path
}

func newTestClient(t *testing.T, binary string) *Client {
	t.Helper()
	runner := procrun.NewRunner(testLogger(), 1, 10*time.Millisecond)
	return NewClient(Config{
		Binary:  binary,
		Timeout: 5 * time.Second,
	}, runner, testLogger())
}

func TestPayloadsSuccess(t *testing.T) {
	script := writeAgentScript(t,
		`echo '{"result":{"payloads":[{"text":"Hello there."},{"text":"Second reply.","mediaUrl":"/m/1.png"}]}}'`)
	client := newTestClient(t, script)

	payloads := client.Payloads(context.Background(), "hi", "sess-1")
	if len(payloads) != 2 {
		t.Fatalf("Expected 2 payloads, got %d: %v", len(payloads), payloads)
	}
	if payloads[0].Text != "Hello there." {
		t.Errorf("Expected first payload text, got %q", payloads[0].Text)
	}
	if payloads[1].MediaURL != "/m/1.png" {
		t.Errorf("Expected media URL carried through, got %q", payloads[1].MediaURL)
	}
}

func TestPayloadsSkipsEmptyTextEntries(t *testing.T) {
	script := writeAgentScript(t,
		`echo '{"result":{"payloads":[{"text":""},{"text":"Only this one."}]}}'`)
	client := newTestClient(t, script)

	payloads := client.Payloads(context.Background(), "hi", "sess-1")
	if len(payloads) != 1 || payloads[0].Text != "Only this one." {
		t.Errorf("Expected the single non-empty payload, got %v", payloads)
	}
}

func TestPayloadsMalformedJSONFallsBackToRaw(t *testing.T) {
	script := writeAgentScript(t, `echo "plain text answer"`)
	client := newTestClient(t, script)

	payloads := client.Payloads(context.Background(), "hi", "sess-1")
	if len(payloads) != 1 || payloads[0].Text != "plain text answer" {
		t.Errorf("Expected raw stdout fallback, got %v", payloads)
	}
}

func TestPayloadsEmptyOutput(t *testing.T) {
	script := writeAgentScript(t, `true`)
	client := newTestClient(t, script)

	payloads := client.Payloads(context.Background(), "hi", "sess-1")
	if len(payloads) != 1 || payloads[0].Text != fallbackReceived {
		t.Errorf("Expected received-message fallback, got %v", payloads)
	}
}

func TestPayloadsNoTextPayloads(t *testing.T) {
	script := writeAgentScript(t, `echo '{"result":{"payloads":[]}}'`)
	client := newTestClient(t, script)

	payloads := client.Payloads(context.Background(), "hi", "sess-1")
	if len(payloads) != 1 || payloads[0].Text != fallbackNoPayloads {
		t.Errorf("Expected no-payloads fallback, got %v", payloads)
	}
}

func TestPayloadsAgentError(t *testing.T) {
	script := writeAgentScript(t, `echo "fatal: bad session state" >&2; exit 1`)
	client := newTestClient(t, script)

	payloads := client.Payloads(context.Background(), "hi", "sess-1")
	if len(payloads) != 1 || payloads[0].Text != fallbackError {
		t.Errorf("Expected error fallback, got %v", payloads)
	}
}

func TestPayloadsTimeout(t *testing.T) {
	script := writeAgentScript(t, `sleep 10`)
	runner := procrun.NewRunner(testLogger(), 1, 10*time.Millisecond)
	client := NewClient(Config{
		Binary:  script,
		Timeout: 100 * time.Millisecond,
	}, runner, testLogger())

	payloads := client.Payloads(context.Background(), "hi", "sess-1")
	if len(payloads) != 1 || payloads[0].Text != fallbackTimeout {
		t.Errorf("Expected timeout fallback, got %v", payloads)
	}
}

func TestPayloadsMissingBinary(t *testing.T) {
	client := newTestClient(t, "/nonexistent/agent-cli")

	payloads := client.Payloads(context.Background(), "hi", "sess-1")
	if len(payloads) != 1 || payloads[0].Text != fallbackUnavailable {
		t.Errorf("Expected unavailable fallback, got %v", payloads)
	}
}

func TestPayloadsEmptyInput(t *testing.T) {
	// Binary must not even be invoked; a bogus path proves it.
	client := newTestClient(t, "/nonexistent/agent-cli")

	payloads := client.Payloads(context.Background(), "   ", "sess-1")
	if len(payloads) != 1 || payloads[0].Text != fallbackEmptyInput {
		t.Errorf("Expected empty-input fallback, got %v", payloads)
	}
}

func TestResolveSessionID(t *testing.T) {
	dir := t.TempDir()
	registry := filepath.Join(dir, "sessions.json")
	data, _ := json.Marshal(map[string]map[string]string{
		"agent:main:main": {"sessionId": "uuid-1234"},
	})
	if err := os.WriteFile(registry, data, 0o600); err != nil {
		t.Fatalf("Failed to write registry: %v", err)
	}

	runner := procrun.NewRunner(testLogger(), 1, 10*time.Millisecond)

	t.Run("explicit id passes through", func(t *testing.T) {
		client := NewClient(Config{SessionsFile: registry}, runner, testLogger())
		if got := client.resolveSessionID("explicit"); got != "explicit" {
			t.Errorf("Expected explicit id, got %q", got)
		}
	})

	t.Run("empty id resolves from registry", func(t *testing.T) {
		client := NewClient(Config{SessionsFile: registry}, runner, testLogger())
		if got := client.resolveSessionID(""); got != "uuid-1234" {
			t.Errorf("Expected registry UUID, got %q", got)
		}
	})

	t.Run("missing registry falls back to key", func(t *testing.T) {
		client := NewClient(Config{SessionsFile: filepath.Join(dir, "missing.json")}, runner, testLogger())
		if got := client.resolveSessionID(""); got != "agent:main:main" {
			t.Errorf("Expected key fallback, got %q", got)
		}
	})

	t.Run("unknown key falls back to key", func(t *testing.T) {
		client := NewClient(Config{
			SessionsFile:   registry,
			MainSessionKey: "agent:other:other",
		}, runner, testLogger())
		if got := client.resolveSessionID(""); got != "agent:other:other" {
			t.Errorf("Expected key fallback, got %q", got)
		}
	})
}

// captureMetrics records invocation events for assertions.
type captureMetrics struct {
	invocations int
	failures    int
	durations   []float64
}

func (m *captureMetrics) AgentInvocation()                { m.invocations++ }
func (m *captureMetrics) AgentFailure()                   { m.failures++ }
func (m *captureMetrics) RecordAgentDuration(sec float64) { m.durations = append(m.durations, sec) }

func TestPayloadsRecordsDuration(t *testing.T) {
	script := writeAgentScript(t,
		`echo '{"result":{"payloads":[{"text":"ok"}]}}'`)

	metrics := &captureMetrics{}
	runner := procrun.NewRunner(testLogger(), 1, 10*time.Millisecond)
	client := NewClient(Config{
		Binary:  script,
		Timeout: 5 * time.Second,
		Metrics: metrics,
	}, runner, testLogger())

	client.Payloads(context.Background(), "hi", "sess-1")

	if metrics.invocations != 1 {
		t.Errorf("Expected 1 invocation recorded, got %d", metrics.invocations)
	}
	if len(metrics.durations) != 1 {
		t.Fatalf("Expected 1 duration sample, got %d", len(metrics.durations))
	}
	if metrics.durations[0] < 0 {
		t.Errorf("Expected non-negative duration, got %f", metrics.durations[0])
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short ascii untouched", "hello", 10, "hello"},
		{"ascii cut", "hello world", 5, "hello..."},
		{"multibyte untouched", "héllo", 5, "héllo"},
		{"multibyte cut on rune boundary", "日本語のテキスト", 3, "日本語..."},
		{"emoji cut", strings.Repeat("🎤", 4), 2, "🎤🎤..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate produced invalid UTF-8: %q", got)
			}
		})
	}
}
