package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:    8000,
			Address: "0.0.0.0",
		},
		Session: SessionConfig{
			TTL:             3600,
			CleanupInterval: 300,
		},
		Agent: AgentConfig{
			Binary:           "openclaw",
			Timeout:          120,
			MaxAttempts:      3,
			RetryDelay:       2,
			SessionsFile:     "/tmp/sessions.json",
			MainSessionKey:   "agent:main:main",
			ProgressInterval: 10,
		},
		Whisper: WhisperConfig{
			Binary:          "whisper",
			Model:           "base",
			Language:        "en",
			Timeout:         60,
			ChunkDurationMs: 3000,
			OverlapMs:       500,
			TempDir:         "/tmp",
		},
		TTS: TTSConfig{
			Binary:    "piper",
			ModelPath: "./models/en_US-amy-medium.onnx",
			CacheDir:  "audio_cache",
			Timeout:   60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name: "invalid http port",
			mutate: func(c *Config) {
				c.HTTP.Port = 70000
			},
			expectError: true,
			errorMsg:    "port must be between 1 and 65535",
		},
		{
			name: "empty http address",
			mutate: func(c *Config) {
				c.HTTP.Address = ""
			},
			expectError: true,
			errorMsg:    "address cannot be empty",
		},
		{
			name: "zero session ttl",
			mutate: func(c *Config) {
				c.Session.TTL = 0
			},
			expectError: true,
			errorMsg:    "ttl must be at least 1 second",
		},
		{
			name: "zero cleanup interval",
			mutate: func(c *Config) {
				c.Session.CleanupInterval = 0
			},
			expectError: true,
			errorMsg:    "cleanup_interval must be at least 1 second",
		},
		{
			name: "empty agent binary",
			mutate: func(c *Config) {
				c.Agent.Binary = ""
			},
			expectError: true,
			errorMsg:    "binary cannot be empty",
		},
		{
			name: "zero agent max attempts",
			mutate: func(c *Config) {
				c.Agent.MaxAttempts = 0
			},
			expectError: true,
			errorMsg:    "max_attempts must be at least 1",
		},
		{
			name: "negative agent retry delay",
			mutate: func(c *Config) {
				c.Agent.RetryDelay = -1
			},
			expectError: true,
			errorMsg:    "retry_delay cannot be negative",
		},
		{
			name: "empty whisper model",
			mutate: func(c *Config) {
				c.Whisper.Model = ""
			},
			expectError: true,
			errorMsg:    "model cannot be empty",
		},
		{
			name: "chunk duration too small",
			mutate: func(c *Config) {
				c.Whisper.ChunkDurationMs = 50
			},
			expectError: true,
			errorMsg:    "chunk_duration_ms must be at least 100",
		},
		{
			name: "overlap exceeds chunk duration",
			mutate: func(c *Config) {
				c.Whisper.OverlapMs = 3000
			},
			expectError: true,
			errorMsg:    "overlap_ms must be between 0 and chunk_duration_ms",
		},
		{
			name: "empty tts model path",
			mutate: func(c *Config) {
				c.TTS.ModelPath = ""
			},
			expectError: true,
			errorMsg:    "model_path cannot be empty",
		},
		{
			name: "invalid log level",
			mutate: func(c *Config) {
				c.Logging.Level = "verbose"
			},
			expectError: true,
			errorMsg:    "level must be one of",
		},
		{
			name: "invalid log format",
			mutate: func(c *Config) {
				c.Logging.Format = "xml"
			},
			expectError: true,
			errorMsg:    "format must be 'json' or 'text'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
http:
  port: 8000
  address: "0.0.0.0"
session:
  ttl: 3600
  cleanup_interval: 300
agent:
  binary: "openclaw"
  timeout: 120
  max_attempts: 3
  retry_delay: 2
  sessions_file: "/tmp/sessions.json"
  main_session_key: "agent:main:main"
  progress_interval: 10
whisper:
  binary: "whisper"
  model: "base"
  language: "en"
  timeout: 60
  chunk_duration_ms: 3000
  overlap_ms: 500
  temp_dir: "/tmp"
tts:
  binary: "piper"
  model_path: "./models/en_US-amy-medium.onnx"
  cache_dir: "audio_cache"
  timeout: 60
logging:
  level: "info"
  format: "json"
  output: "stdout"
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
http:
  port: not_a_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
http:
  port: 8000
  # missing address
`,
			expectError: true,
			errorMsg:    "address cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0644)
			if err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Errorf("Expected error for nonexistent file but got none")
	}
	if !contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	session := SessionConfig{
		TTL:             3600,
		CleanupInterval: 300,
	}

	if session.GetTTLDuration() != time.Hour {
		t.Errorf("Expected 1 hour, got %v", session.GetTTLDuration())
	}

	if session.GetCleanupIntervalDuration() != 5*time.Minute {
		t.Errorf("Expected 5 minutes, got %v", session.GetCleanupIntervalDuration())
	}

	agent := AgentConfig{
		Timeout:          120,
		RetryDelay:       2,
		ProgressInterval: 10,
	}

	if agent.GetTimeoutDuration() != 120*time.Second {
		t.Errorf("Expected 120 seconds, got %v", agent.GetTimeoutDuration())
	}

	if agent.GetRetryDelayDuration() != 2*time.Second {
		t.Errorf("Expected 2 seconds, got %v", agent.GetRetryDelayDuration())
	}

	if agent.GetProgressIntervalDuration() != 10*time.Second {
		t.Errorf("Expected 10 seconds, got %v", agent.GetProgressIntervalDuration())
	}

	whisper := WhisperConfig{
		Timeout:         60,
		ChunkDurationMs: 3000,
		OverlapMs:       500,
	}

	if whisper.GetTimeoutDuration() != 60*time.Second {
		t.Errorf("Expected 60 seconds, got %v", whisper.GetTimeoutDuration())
	}

	if whisper.GetChunkDuration() != 3*time.Second {
		t.Errorf("Expected 3 seconds, got %v", whisper.GetChunkDuration())
	}

	if whisper.GetOverlapDuration() != 500*time.Millisecond {
		t.Errorf("Expected 500 milliseconds, got %v", whisper.GetOverlapDuration())
	}
}

// Helper function to check if a string contains a substring
func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
