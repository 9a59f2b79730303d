package bot

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Bot.Name != "zaphar" {
		t.Errorf("default name = %q", cfg.Bot.Name)
	}
	if cfg.Scheduler.PollInterval != 10*time.Second {
		t.Errorf("poll interval = %v", cfg.Scheduler.PollInterval)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.TTS.Provider != "auto" {
		t.Errorf("tts provider = %q", cfg.TTS.Provider)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("overrides defaults and keeps the rest", func(t *testing.T) {
		path := writeConfig(t, `
bot:
  name: jarvis
  timezone: America/New_York
scheduler:
  poll_interval: 30s
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.Bot.Name != "jarvis" {
			t.Errorf("name = %q", cfg.Bot.Name)
		}
		if cfg.Bot.Timezone != "America/New_York" {
			t.Errorf("timezone = %q", cfg.Bot.Timezone)
		}
		if cfg.Scheduler.PollInterval != 30*time.Second {
			t.Errorf("poll interval = %v", cfg.Scheduler.PollInterval)
		}
		// Untouched sections keep their defaults.
		if cfg.Database.Path != "./data/zaphbot.db" {
			t.Errorf("database path = %q", cfg.Database.Path)
		}
	})

	t.Run("expands environment references", func(t *testing.T) {
		t.Setenv("TEST_ZAPHBOT_KEY", "sk-test-123")
		path := writeConfig(t, `
api:
  api_key: ${TEST_ZAPHBOT_KEY}
  chat_model: ${TEST_ZAPHBOT_MODEL:-gpt-4o-mini}
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.API.APIKey != "sk-test-123" {
			t.Errorf("api key = %q", cfg.API.APIKey)
		}
		if cfg.API.ChatModel != "gpt-4o-mini" {
			t.Errorf("chat model = %q, want the :- default", cfg.API.ChatModel)
		}
	})

	t.Run("missing file errors", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("api key falls back to OPENAI_API_KEY", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-env-fallback")
		path := writeConfig(t, "bot:\n  name: x\n")
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.API.APIKey != "sk-env-fallback" {
			t.Errorf("api key = %q", cfg.API.APIKey)
		}
	})
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_SET_VAR", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"${TEST_SET_VAR}", "value"},
		{"${TEST_UNSET_VAR_XYZ:-fallback}", "fallback"},
		{"${TEST_UNSET_VAR_XYZ}", "${TEST_UNSET_VAR_XYZ}"},
		{"a ${TEST_SET_VAR} b", "a value b"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := expandEnvVars(tt.in); got != tt.want {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
