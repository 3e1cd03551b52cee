// Package config loads client configuration from a YAML file with
// environment variable overrides. A missing file is not an error; the
// defaults describe a client talking to a local FileMyRTI backend.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// API configures the FileMyRTI REST backend connection.
type API struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Cache configures the local persistence blob.
type Cache struct {
	Path string `yaml:"path"`
}

// Providers holds credentials for the backendless model adapters. Only the
// provider actually selected needs a key.
type Providers struct {
	OpenAIKey      string `yaml:"openai_key"`
	OpenAIModel    string `yaml:"openai_model"`
	AnthropicKey   string `yaml:"anthropic_key"`
	AnthropicModel string `yaml:"anthropic_model"`
}

// Telemetry configures trace and metric export.
type Telemetry struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// Config is the full client configuration.
type Config struct {
	API       API       `yaml:"api"`
	Cache     Cache     `yaml:"cache"`
	Providers Providers `yaml:"providers"`
	Telemetry Telemetry `yaml:"telemetry"`
	LogLevel  string    `yaml:"log_level"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		API: API{
			BaseURL: "http://localhost:8000/api",
			Timeout: 30 * time.Second,
		},
		Cache: Cache{
			Path: defaultCachePath(),
		},
		LogLevel: "info",
	}
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".", "rtichat", "sessions.json")
	}
	return filepath.Join(dir, "rtichat", "sessions.json")
}

// Load reads the YAML file at path, layers environment overrides on top of
// it, and validates the result. An empty path or a missing file falls back
// to defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// fall through to defaults
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers RTICHAT_* environment variables over the loaded values.
func (c *Config) applyEnv() {
	setString(&c.API.BaseURL, "RTICHAT_API_BASE_URL")
	setString(&c.API.Token, "RTICHAT_API_TOKEN")
	setDuration(&c.API.Timeout, "RTICHAT_API_TIMEOUT")
	setString(&c.Cache.Path, "RTICHAT_CACHE_PATH")
	setString(&c.Providers.OpenAIKey, "OPENAI_API_KEY")
	setString(&c.Providers.OpenAIModel, "RTICHAT_OPENAI_MODEL")
	setString(&c.Providers.AnthropicKey, "ANTHROPIC_API_KEY")
	setString(&c.Providers.AnthropicModel, "RTICHAT_ANTHROPIC_MODEL")
	setBool(&c.Telemetry.Enabled, "RTICHAT_TELEMETRY_ENABLED")
	setString(&c.Telemetry.OTLPEndpoint, "RTICHAT_OTLP_ENDPOINT")
	setBool(&c.Telemetry.OTLPInsecure, "RTICHAT_OTLP_INSECURE")
	setString(&c.LogLevel, "RTICHAT_LOG_LEVEL")
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("config: api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: api.base_url %q is not a valid URL", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("config: api.timeout must be positive, got %s", c.API.Timeout)
	}
	if c.Cache.Path == "" {
		return errors.New("config: cache.path is required")
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}

func setBool(dst *bool, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}
