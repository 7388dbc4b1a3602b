package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/germanamz/silk/pkg/archive"
	"github.com/germanamz/silk/pkg/identity"
	"github.com/germanamz/silk/pkg/server"
	"github.com/germanamz/silk/pkg/stream"
)

// Config is the top-level silk configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Provider    ProviderConfig    `yaml:"provider"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Preferences PreferencesConfig `yaml:"preferences"`
	Identity    IdentityConfig    `yaml:"identity"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes"`
	ShutdownTimeout string `yaml:"shutdown_timeout"` // Duration string, e.g. "10s".
}

// RateLimitConfig controls provider request pacing and 429 retries.
type RateLimitConfig struct {
	RPM        int    `yaml:"rpm"`         // Requests per minute (0 = no limit).
	Burst      int    `yaml:"burst"`       // Requests allowed at once (default 1).
	MaxRetries int    `yaml:"max_retries"` // Max retries on 429 (default 3).
	BaseDelay  string `yaml:"base_delay"`  // Initial backoff delay as a duration string (e.g. "1s", "500ms").
}

// ProviderConfig describes the model provider.
type ProviderConfig struct {
	Kind         string          `yaml:"kind"`
	BaseURL      string          `yaml:"base_url"`
	APIKey       string          `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	Model        string          `yaml:"model"`
	MaxTokens    int             `yaml:"max_tokens"`
	Temperature  float64         `yaml:"temperature"`
	StreamBuffer int             `yaml:"stream_buffer"` // Fragments buffered between provider and client.
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	// DisableToolCalls stops the model from calling tools so every reply
	// streams as it is generated.
	DisableToolCalls bool `yaml:"disable_tool_calls"`
}

// ArchiveConfig describes the project archive.
type ArchiveConfig struct {
	Root             string   `yaml:"root"`
	Name             string   `yaml:"name"`
	Files            []string `yaml:"files"`
	Include          []string `yaml:"include"`
	RespectGitignore bool     `yaml:"respect_gitignore"`
	Readers          int      `yaml:"readers"`
}

// PreferencesConfig selects the preference store backend.
type PreferencesConfig struct {
	Backend  string `yaml:"backend"`  // memory, sqlite, postgres or mongo.
	Path     string `yaml:"path"`     // sqlite database file.
	DSN      string `yaml:"dsn"`      // postgres connection string.
	URI      string `yaml:"uri"`      // mongo connection URI.
	Database string `yaml:"database"` // mongo database name.
}

// IdentityConfig names the header carrying the signed-in user's id.
type IdentityConfig struct {
	Header string `yaml:"header"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error.
	Format string `yaml:"format"` // text or json.
}

// Preference store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// DefaultConfig returns a configuration that runs entirely offline: the echo
// provider, in-memory preferences and the default project manifest.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MaxBodyBytes:    server.DefaultMaxBodyBytes,
			ShutdownTimeout: server.DefaultShutdownTimeout.String(),
		},
		Provider: ProviderConfig{Kind: "echo", StreamBuffer: stream.DefaultBuffer},
		Archive: ArchiveConfig{
			Root:             ".",
			Name:             archive.DefaultName,
			Files:            append([]string(nil), archive.DefaultFiles...),
			Include:          append([]string(nil), archive.DefaultInclude...),
			RespectGitignore: true,
			Readers:          archive.DefaultReaders,
		},
		Preferences: PreferencesConfig{Backend: BackendMemory, Database: "silk"},
		Identity:    IdentityConfig{Header: identity.DefaultHeader},
		Log:         LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads a YAML file over DefaultConfig and returns the result.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing. This allows API keys and other secrets to be kept in
// environment variables (e.g. loaded from a .env file) rather than committed
// in the config.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("engine: config: server.addr is required")
	}
	if c.Server.ShutdownTimeout != "" {
		if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
			return fmt.Errorf("engine: config: invalid server.shutdown_timeout %q: %w", c.Server.ShutdownTimeout, err)
		}
	}

	if c.Provider.Kind == "" {
		return fmt.Errorf("engine: config: provider.kind is required")
	}
	if _, ok := getFactory(c.Provider.Kind); !ok {
		return fmt.Errorf("engine: config: unknown provider kind %q", c.Provider.Kind)
	}
	if c.Provider.RateLimit.BaseDelay != "" {
		if _, err := time.ParseDuration(c.Provider.RateLimit.BaseDelay); err != nil {
			return fmt.Errorf("engine: config: invalid provider.rate_limit.base_delay %q: %w", c.Provider.RateLimit.BaseDelay, err)
		}
	}

	if len(c.Archive.Files) == 0 && len(c.Archive.Include) == 0 {
		return fmt.Errorf("engine: config: archive needs files or include patterns")
	}

	switch c.Preferences.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Preferences.Path == "" {
			return fmt.Errorf("engine: config: preferences.path is required for sqlite")
		}
	case BackendPostgres:
		if c.Preferences.DSN == "" {
			return fmt.Errorf("engine: config: preferences.dsn is required for postgres")
		}
	case BackendMongo:
		if c.Preferences.URI == "" || c.Preferences.Database == "" {
			return fmt.Errorf("engine: config: preferences.uri and preferences.database are required for mongo")
		}
	default:
		return fmt.Errorf("engine: config: unknown preferences backend %q", c.Preferences.Backend)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "" && c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("engine: config: unknown log format %q", c.Log.Format)
	}

	return nil
}
