package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Session SessionConfig `yaml:"session"`
	Agent   AgentConfig   `yaml:"agent"`
	Whisper WhisperConfig `yaml:"whisper"`
	TTS     TTSConfig     `yaml:"tts"`
	Logging LoggingConfig `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// SessionConfig contains session store configuration
type SessionConfig struct {
	TTL             int `yaml:"ttl"`              // seconds
	CleanupInterval int `yaml:"cleanup_interval"` // seconds
}

// AgentConfig contains external conversational agent configuration
type AgentConfig struct {
	Binary           string `yaml:"binary"`
	Timeout          int    `yaml:"timeout"` // seconds
	MaxAttempts      int    `yaml:"max_attempts"`
	RetryDelay       int    `yaml:"retry_delay"` // seconds
	SessionsFile     string `yaml:"sessions_file"`
	MainSessionKey   string `yaml:"main_session_key"`
	ProgressInterval int    `yaml:"progress_interval"` // seconds
}

// WhisperConfig contains speech-to-text engine configuration
type WhisperConfig struct {
	Binary          string `yaml:"binary"`
	Model           string `yaml:"model"`
	Language        string `yaml:"language"`
	Timeout         int    `yaml:"timeout"`           // seconds
	ChunkDurationMs int    `yaml:"chunk_duration_ms"` // milliseconds
	OverlapMs       int    `yaml:"overlap_ms"`        // milliseconds
	TempDir         string `yaml:"temp_dir"`
}

// TTSConfig contains text-to-speech engine configuration
type TTSConfig struct {
	Binary    string `yaml:"binary"`
	ModelPath string `yaml:"model_path"`
	CacheDir  string `yaml:"cache_dir"`
	Timeout   int    `yaml:"timeout"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent config: %w", err)
	}

	if err := c.Whisper.Validate(); err != nil {
		return fmt.Errorf("whisper config: %w", err)
	}

	if err := c.TTS.Validate(); err != nil {
		return fmt.Errorf("tts config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	return nil
}

// Validate validates session store configuration
func (s *SessionConfig) Validate() error {
	if s.TTL < 1 {
		return fmt.Errorf("ttl must be at least 1 second, got %d", s.TTL)
	}

	if s.CleanupInterval < 1 {
		return fmt.Errorf("cleanup_interval must be at least 1 second, got %d", s.CleanupInterval)
	}

	return nil
}

// Validate validates agent configuration
func (a *AgentConfig) Validate() error {
	if a.Binary == "" {
		return fmt.Errorf("binary cannot be empty")
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	if a.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", a.MaxAttempts)
	}

	if a.RetryDelay < 0 {
		return fmt.Errorf("retry_delay cannot be negative, got %d", a.RetryDelay)
	}

	if a.ProgressInterval < 0 {
		return fmt.Errorf("progress_interval cannot be negative, got %d", a.ProgressInterval)
	}

	return nil
}

// Validate validates whisper configuration
func (w *WhisperConfig) Validate() error {
	if w.Binary == "" {
		return fmt.Errorf("binary cannot be empty")
	}

	if w.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if w.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", w.Timeout)
	}

	if w.ChunkDurationMs < 100 {
		return fmt.Errorf("chunk_duration_ms must be at least 100, got %d", w.ChunkDurationMs)
	}

	if w.OverlapMs < 0 || w.OverlapMs >= w.ChunkDurationMs {
		return fmt.Errorf("overlap_ms must be between 0 and chunk_duration_ms (%d), got %d",
			w.ChunkDurationMs, w.OverlapMs)
	}

	return nil
}

// Validate validates TTS configuration
func (t *TTSConfig) Validate() error {
	if t.Binary == "" {
		return fmt.Errorf("binary cannot be empty")
	}

	if t.ModelPath == "" {
		return fmt.Errorf("model_path cannot be empty")
	}

	if t.CacheDir == "" {
		return fmt.Errorf("cache_dir cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetTTLDuration returns the session TTL as a time.Duration
func (s *SessionConfig) GetTTLDuration() time.Duration {
	return time.Duration(s.TTL) * time.Second
}

// GetCleanupIntervalDuration returns the cleanup interval as a time.Duration
func (s *SessionConfig) GetCleanupIntervalDuration() time.Duration {
	return time.Duration(s.CleanupInterval) * time.Second
}

// GetTimeoutDuration returns the agent timeout as a time.Duration
func (a *AgentConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// GetRetryDelayDuration returns the retry delay as a time.Duration
func (a *AgentConfig) GetRetryDelayDuration() time.Duration {
	return time.Duration(a.RetryDelay) * time.Second
}

// GetProgressIntervalDuration returns the progress interval as a time.Duration
func (a *AgentConfig) GetProgressIntervalDuration() time.Duration {
	return time.Duration(a.ProgressInterval) * time.Second
}

// GetTimeoutDuration returns the whisper timeout as a time.Duration
func (w *WhisperConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(w.Timeout) * time.Second
}

// GetChunkDuration returns the transcription chunk duration as a time.Duration
func (w *WhisperConfig) GetChunkDuration() time.Duration {
	return time.Duration(w.ChunkDurationMs) * time.Millisecond
}

// GetOverlapDuration returns the transcription overlap as a time.Duration
func (w *WhisperConfig) GetOverlapDuration() time.Duration {
	return time.Duration(w.OverlapMs) * time.Millisecond
}

// GetTimeoutDuration returns the TTS timeout as a time.Duration
func (t *TTSConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
