// Package config loads service configuration from a JSON config file,
// a .env file, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string

	// Timeouts are stored as duration strings ("30s") so they can live in
	// the JSON config file; use GenerateTimeout/ScoreTimeout to read them.
	GenerateTimeoutRaw string
	ScoreTimeoutRaw    string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		LLM: LLMConfig{
			Model:              "gpt-4o-mini",
			GenerateTimeoutRaw: "30s",
			ScoreTimeoutRaw:    "10s",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// GenerateTimeout parses the configured generation timeout, falling back
// to 30s when unset or malformed.
func (c LLMConfig) GenerateTimeout() time.Duration {
	return parseDuration(c.GenerateTimeoutRaw, 30*time.Second)
}

// ScoreTimeout parses the configured scoring timeout, falling back to 10s.
func (c LLMConfig) ScoreTimeout() time.Duration {
	return parseDuration(c.ScoreTimeoutRaw, 10*time.Second)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		fmt.Fprintf(os.Stderr, "[WARN] invalid duration %q, using %s\n", raw, fallback)
		return fallback
	}
	return d
}

// Load reads configuration in order of increasing precedence: built-in
// defaults, the JSON config file at $XDG_CONFIG_HOME/promptd/config.json,
// a .env file in the working directory, then PROMPTD_* environment
// variables. The OpenAI API key is required.
func Load() (Config, error) {
	// .env values become environment variables, so they participate in
	// the normal env override pass. Existing env vars win.
	_ = godotenv.Load()

	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.LLM.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: OpenAI API key. Set it via environment variable PROMPTD_OPENAI_API_KEY or OPENAI_API_KEY")
	}

	return cfg, nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "promptd-data"
		}
	}
	return filepath.Join(dir, "promptd")
}
