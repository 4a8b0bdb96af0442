// Package config loads threadlens settings from a YAML file, a .env file,
// the environment and the stored credential, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gauthierbraillon/threadlens/internal/llm"
	"github.com/gauthierbraillon/threadlens/internal/thread"
	"github.com/gauthierbraillon/threadlens/pkg/credential"
)

const (
	DefaultTimeout  = 5 * time.Minute
	DefaultLogLevel = "info"
)

// Config holds the analysis settings. A zero Timeout disables the dispatch
// deadline and a zero MaxComments removes the cap. Timeout is a Go duration
// ("90s") or, as in THREADLENS_TIMEOUT, a bare integer of milliseconds.
type Config struct {
	Endpoint    string        `yaml:"endpoint"`
	Credential  string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxComments int           `yaml:"max_comments"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	MaxRetries  int           `yaml:"max_retries"`
	LogLevel    string        `yaml:"log_level"`
}

// CredentialSource supplies a stored API key.
type CredentialSource interface {
	Load() (string, error)
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Model:       llm.DefaultModel,
		MaxComments: thread.DefaultLimit,
		Timeout:     DefaultTimeout,
		Temperature: llm.DefaultTemperature,
		MaxTokens:   llm.DefaultMaxTokens,
		LogLevel:    DefaultLogLevel,
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), a .env file in the working directory, THREADLENS_*
// environment variables and finally creds when no key is set yet.
func Load(path string, creds CredentialSource) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path comes from the user's --config flag
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Config{}, fmt.Errorf("parse config yaml: %w", err)
		}
		if !doc.IsZero() {
			timeoutAsMilliseconds(&doc)
			if err := doc.Decode(&cfg); err != nil {
				return Config{}, fmt.Errorf("parse config yaml: %w", err)
			}
		}
	}

	_ = godotenv.Load()

	if err := applyEnvironmentOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.Credential == "" && creds != nil {
		key, err := creds.Load()
		switch {
		case err == nil:
			cfg.Credential = key
		case !errors.Is(err, credential.ErrCredentialNotFound):
			return Config{}, fmt.Errorf("load stored credential: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// timeoutAsMilliseconds rewrites an integer timeout in doc, such as
// "timeout: 300000", into a duration of that many milliseconds.
func timeoutAsMilliseconds(doc *yaml.Node) {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return
	}
	m := doc.Content[0]
	if m.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, value := m.Content[i], m.Content[i+1]
		if key.Value != "timeout" || value.Kind != yaml.ScalarNode || value.ShortTag() != "!!int" {
			continue
		}
		value.Value += "ms"
		value.Tag = "!!str"
	}
}

func applyEnvironmentOverrides(cfg *Config) error {
	cfg.Endpoint = envStr("THREADLENS_ENDPOINT", cfg.Endpoint)
	cfg.Credential = envStr("THREADLENS_API_KEY", cfg.Credential)
	cfg.Model = envStr("THREADLENS_MODEL", cfg.Model)
	cfg.LogLevel = envStr("THREADLENS_LOG_LEVEL", cfg.LogLevel)

	var err error
	if cfg.MaxComments, err = envInt("THREADLENS_MAX_COMMENTS", cfg.MaxComments); err != nil {
		return err
	}
	if cfg.MaxTokens, err = envInt("THREADLENS_MAX_TOKENS", cfg.MaxTokens); err != nil {
		return err
	}
	if cfg.MaxRetries, err = envInt("THREADLENS_MAX_RETRIES", cfg.MaxRetries); err != nil {
		return err
	}
	if cfg.Temperature, err = envFloat("THREADLENS_TEMPERATURE", cfg.Temperature); err != nil {
		return err
	}
	if cfg.Timeout, err = envDuration("THREADLENS_TIMEOUT", cfg.Timeout); err != nil {
		return err
	}
	return nil
}

// Validate checks numeric ranges and the log level. The endpoint is checked
// when a request is built.
func (c Config) Validate() error {
	if c.MaxComments < 0 {
		return fmt.Errorf("config: max_comments must not be negative, got %d", c.MaxComments)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout must not be negative, got %s", c.Timeout)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("config: temperature must be between 0 and 2, got %g", c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("config: max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must not be negative, got %d", c.MaxRetries)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Settings returns the request builder's view of the configuration.
func (c Config) Settings() llm.Settings {
	return llm.Settings{
		Endpoint:    c.Endpoint,
		APIKey:      c.Credential,
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a number", key, v)
	}
	return f, nil
}

// envDuration accepts Go durations ("90s") and bare integers, which are
// read as milliseconds.
func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a duration", key, v)
	}
	return d, nil
}
