// Package bot – config.go handles loading configuration from YAML files
// with credentials supplied via environment variables and .env files.
package bot

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/zaphchat/zaphbot/pkg/zaphbot/channels/whatsapp"
)

// Config is the root configuration for the bot.
type Config struct {
	// Bot holds identity settings.
	Bot BotConfig `yaml:"bot"`

	// Logging configures the slog handler.
	Logging LoggingConfig `yaml:"logging"`

	// Database configures the main SQLite database.
	Database DatabaseConfig `yaml:"database"`

	// Scheduler configures deferred message delivery.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// WhatsApp configures the WhatsApp transport.
	WhatsApp whatsapp.Config `yaml:"whatsapp"`

	// API configures the OpenAI-compatible backend.
	API APIConfig `yaml:"api"`

	// TTS configures voice note synthesis.
	TTS TTSConfig `yaml:"tts"`
}

// BotConfig holds identity settings.
type BotConfig struct {
	// Name is the default persona name the bot answers to. Users can
	// rename it per chat with "your name is now ...".
	Name string `yaml:"name"`

	// Timezone is the IANA timezone used to resolve relative dates in
	// reminders (e.g. "America/New_York"). Empty means the host zone.
	Timezone string `yaml:"timezone"`
}

// LoggingConfig configures logging output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DatabaseConfig configures the main SQLite database.
type DatabaseConfig struct {
	// Path is the SQLite file holding memory, transcripts and jobs.
	Path string `yaml:"path"`
}

// SchedulerConfig configures deferred delivery.
type SchedulerConfig struct {
	// PollInterval is how often due jobs are checked.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// APIConfig configures the OpenAI-compatible backend.
type APIConfig struct {
	// APIKey authenticates requests. Usually set via ${OPENAI_API_KEY}.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the endpoint for compatible gateways.
	BaseURL string `yaml:"base_url"`

	// ChatModel is the model for replies and summaries.
	ChatModel string `yaml:"chat_model"`

	// ImageModel is the model for image synthesis.
	ImageModel string `yaml:"image_model"`
}

// TTSConfig configures voice note synthesis.
type TTSConfig struct {
	// Provider is "openai", "edge" or "auto" (OpenAI with Edge fallback).
	Provider string `yaml:"provider"`

	// Voice is the OpenAI voice name (e.g. "nova").
	Voice string `yaml:"voice"`

	// EdgeVoice is the Edge voice name (e.g. "en-US-JennyNeural").
	EdgeVoice string `yaml:"edge_voice"`

	// Dir is where temporary audio files are written. Empty means the
	// system temp directory.
	Dir string `yaml:"dir"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			Name: "zaphar",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Database: DatabaseConfig{
			Path: "./data/zaphbot.db",
		},
		Scheduler: SchedulerConfig{
			PollInterval: 10 * time.Second,
		},
		WhatsApp: whatsapp.DefaultConfig(),
		TTS: TTSConfig{
			Provider: "auto",
		},
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} references in config
// values.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// LoadConfig reads and parses a YAML configuration file. .env files are
// loaded first and ${VAR} references in the YAML are expanded.
func LoadConfig(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	resolveSecrets(cfg)
	return cfg, nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"zaphbot.yaml",
		"zaphbot.yml",
		"configs/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ---------- Internal ----------

// loadEnvFiles loads .env files from standard locations. godotenv does
// NOT overwrite variables already set in the environment.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} references with their
// environment values. Unset variables without a default keep the
// placeholder.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		name, def := sub[1], sub[2]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		if def != "" {
			return def
		}
		return match
	})
}

// resolveSecrets fills in secrets from the environment when the config
// value is empty.
func resolveSecrets(cfg *Config) {
	if cfg.API.APIKey == "" {
		cfg.API.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}
