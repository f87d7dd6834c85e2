package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rdevaul/glados-voice-pwa/internal/procrun"
)

// User-safe fallback texts. Nothing from the external process leaks past
// these; the real error detail goes only to the log.
const (
	fallbackEmptyInput  = "I didn't catch that. Could you please repeat?"
	fallbackNoPayloads  = "I processed your message but got an unexpected response format."
	fallbackReceived    = "I received your message."
	fallbackError       = "Sorry, I encountered an error processing your request."
	fallbackTimeout     = "Sorry, the response took too long. Please try again."
	fallbackUnavailable = "The chat service is not available right now."
)

// Payload is one reply entry from the agent. Multi-message replies carry
// several payloads in order.
type Payload struct {
	Text     string `json:"text"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// agentEnvelope is the JSON the agent CLI prints in --json mode.
type agentEnvelope struct {
	Result struct {
		Payloads []Payload `json:"payloads"`
	} `json:"result"`
}

// Config configures the agent CLI invocation.
type Config struct {
	Binary         string        // agent executable
	Timeout        time.Duration // passed to the CLI and enforced per attempt
	SessionsFile   string        // registry mapping well-known keys to session UUIDs
	MainSessionKey string        // key of the "main" conversation
	Metrics        Metrics
}

// Metrics receives agent invocation events.
type Metrics interface {
	AgentInvocation()
	AgentFailure()
	RecordAgentDuration(durationSeconds float64)
}

type noopMetrics struct{}

func (noopMetrics) AgentInvocation()            {}
func (noopMetrics) AgentFailure()               {}
func (noopMetrics) RecordAgentDuration(float64) {}

// Client invokes the external conversational agent.
type Client struct {
	cfg    Config
	runner *procrun.Runner
	logger *slog.Logger
}

// NewClient creates an agent client that runs the external CLI through the
// given runner.
func NewClient(cfg Config, runner *procrun.Runner, logger *slog.Logger) *Client {
	if cfg.Binary == "" {
		cfg.Binary = "openclaw"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MainSessionKey == "" {
		cfg.MainSessionKey = "agent:main:main"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if strings.HasPrefix(cfg.SessionsFile, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.SessionsFile = filepath.Join(home, cfg.SessionsFile[2:])
		}
	}
	return &Client{cfg: cfg, runner: runner, logger: logger}
}

// resolveSessionID maps an empty session id to the main conversation's
// UUID by consulting the agent's session registry file. Any lookup failure
// falls back to the well-known key itself; the agent will start a fresh
// session for an unknown key, so this is a soft failure.
func (c *Client) resolveSessionID(sessionID string) string {
	if sessionID != "" {
		return sessionID
	}

	data, err := os.ReadFile(c.cfg.SessionsFile)
	if err != nil {
		c.logger.Warn("Could not read agent session registry, using key",
			slog.String("path", c.cfg.SessionsFile),
			slog.String("key", c.cfg.MainSessionKey),
			slog.String("error", err.Error()),
		)
		return c.cfg.MainSessionKey
	}

	var registry map[string]struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &registry); err != nil {
		c.logger.Warn("Could not parse agent session registry, using key",
			slog.String("path", c.cfg.SessionsFile),
			slog.String("error", err.Error()),
		)
		return c.cfg.MainSessionKey
	}

	entry, ok := registry[c.cfg.MainSessionKey]
	if !ok || entry.SessionID == "" {
		c.logger.Warn("Main session not found in registry, using key",
			slog.String("key", c.cfg.MainSessionKey),
		)
		return c.cfg.MainSessionKey
	}

	c.logger.Info("Resolved main session", slog.String("session_id", entry.SessionID))
	return entry.SessionID
}

// Payloads sends the user's text to the agent and returns every reply
// payload that carries text. It is a total function: every failure mode
// maps to a single fallback payload, never an error.
func (c *Client) Payloads(ctx context.Context, userText, sessionID string) []Payload {
	if strings.TrimSpace(userText) == "" {
		return []Payload{{Text: fallbackEmptyInput}}
	}

	sessionID = c.resolveSessionID(sessionID)
	c.cfg.Metrics.AgentInvocation()

	c.logger.Info("Sending message to agent",
		slog.String("session_id", truncate(sessionID, 20)),
		slog.String("text", truncate(userText, 50)),
	)

	start := time.Now()
	result, err := c.runner.Run(ctx, procrun.Spec{
		Path: c.cfg.Binary,
		Args: []string{
			"agent",
			"--message", userText,
			"--session-id", sessionID,
			"--json",
			"--timeout", strconv.Itoa(int(c.cfg.Timeout.Seconds())),
		},
		// Leave headroom beyond the CLI's own timeout so it can report
		// its result before being killed.
		Timeout: c.cfg.Timeout + 10*time.Second,
	})
	c.cfg.Metrics.RecordAgentDuration(time.Since(start).Seconds())

	switch {
	case err == nil && result.ExitCode == 0:
		return c.parsePayloads(result.Stdout)

	case err == nil:
		c.cfg.Metrics.AgentFailure()
		c.logger.Error("Agent returned an error",
			slog.Int("exit_code", result.ExitCode),
			slog.String("stderr", truncate(string(result.Stderr), 200)),
		)
		return []Payload{{Text: fallbackError}}

	case errors.Is(err, procrun.ErrTimeout):
		c.cfg.Metrics.AgentFailure()
		c.logger.Error("Agent timed out", slog.Duration("timeout", c.cfg.Timeout))
		return []Payload{{Text: fallbackTimeout}}

	case errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist):
		c.cfg.Metrics.AgentFailure()
		c.logger.Error("Agent CLI not found", slog.String("binary", c.cfg.Binary))
		return []Payload{{Text: fallbackUnavailable}}

	default:
		c.cfg.Metrics.AgentFailure()
		c.logger.Error("Agent invocation failed", slog.String("error", err.Error()))
		return []Payload{{Text: fallbackError}}
	}
}

// parsePayloads maps the agent's stdout to reply payloads, degrading to
// raw text and then to fixed fallbacks rather than failing.
func (c *Client) parsePayloads(stdout []byte) []Payload {
	var envelope agentEnvelope
	if err := json.Unmarshal(stdout, &envelope); err != nil {
		c.logger.Error("Failed to parse agent JSON output", slog.String("error", err.Error()))
		if raw := strings.TrimSpace(string(stdout)); raw != "" {
			return []Payload{{Text: raw}}
		}
		return []Payload{{Text: fallbackReceived}}
	}

	var results []Payload
	for i, p := range envelope.Result.Payloads {
		if p.Text == "" {
			continue
		}
		c.logger.Info("Agent payload",
			slog.String("position", fmt.Sprintf("%d/%d", i+1, len(envelope.Result.Payloads))),
			slog.String("text", truncate(p.Text, 100)),
		)
		results = append(results, p)
	}

	if len(results) == 0 {
		c.logger.Warn("No text payloads in agent response")
		return []Payload{{Text: fallbackNoPayloads}}
	}
	return results
}

// Response returns the first payload's text, the canonical single reply.
func (c *Client) Response(ctx context.Context, userText, sessionID string) string {
	return c.Payloads(ctx, userText, sessionID)[0].Text
}

// truncate shortens s to at most n runes for log fields, never cutting a
// UTF-8 sequence mid-rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
