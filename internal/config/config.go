package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for invoicechat.
type Config struct {
	General     GeneralConfig     `json:"general"`
	Backend     BackendConfig     `json:"backend"`
	Agent       AgentConfig       `json:"agent"`
	Interpreter InterpreterConfig `json:"interpreter"`
	Cache       CacheConfig       `json:"cache"`
	Metrics     MetricsConfig     `json:"metrics"`
	Feed        FeedConfig        `json:"feed"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`          // "debug" | "info" | "warn" | "error"
	LogFile  string `json:"logFile,omitempty"` // optional log file path
}

// BackendConfig locates the agent service and its records listing.
type BackendConfig struct {
	APIBase        string `json:"apiBase"`
	APIKey         string `json:"apiKey,omitempty"` // sent as a bearer token when set
	InvokePath     string `json:"invokePath"`
	StreamPath     string `json:"streamPath"`
	RecordsPath    string `json:"recordsPath"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	MaxRetries     int    `json:"maxRetries"`
}

// AgentConfig tunes each chat turn.
type AgentConfig struct {
	Mode               string `json:"mode"` // "stream" | "sync"
	MaxSteps           int    `json:"maxSteps"`
	ToolChoice         string `json:"toolChoice"` // "auto" | "none" | "required"
	Model              string `json:"model,omitempty"`
	SystemPrompt       string `json:"systemPrompt"`
	TurnTimeoutSeconds int    `json:"turnTimeoutSeconds"`
}

type InterpreterConfig struct {
	AliasFile string `json:"aliasFile,omitempty"` // YAML alias table; empty uses the built-in one
}

// CacheConfig selects where the record listing is kept between turns.
type CacheConfig struct {
	Driver string `json:"driver"` // "memory" | "sqlite"
	DBPath string `json:"dbPath"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
	Path    string `json:"path"`
}

// FeedConfig configures the WebSocket feed of view updates.
type FeedConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
	Path    string `json:"path"`
}

// DefaultConfigDir returns the default config directory (~/.invoicechat).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".invoicechat"
	}
	return filepath.Join(home, ".invoicechat")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Cache.DBPath = ExpandPath(cfg.Cache.DBPath)
	cfg.Interpreter.AliasFile = ExpandPath(cfg.Interpreter.AliasFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values. All problems are
// reported at once.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if !strings.HasPrefix(cfg.Backend.APIBase, "http://") && !strings.HasPrefix(cfg.Backend.APIBase, "https://") {
		errs = append(errs, "backend.apiBase must be an http:// or https:// URL")
	}
	for _, p := range []struct{ name, value string }{
		{"backend.invokePath", cfg.Backend.InvokePath},
		{"backend.streamPath", cfg.Backend.StreamPath},
		{"backend.recordsPath", cfg.Backend.RecordsPath},
	} {
		if !strings.HasPrefix(p.value, "/") {
			errs = append(errs, fmt.Sprintf("%s must start with /", p.name))
		}
	}
	if cfg.Backend.TimeoutSeconds < 1 {
		errs = append(errs, "backend.timeoutSeconds must be >= 1")
	}
	if cfg.Backend.MaxRetries < 0 || cfg.Backend.MaxRetries > 10 {
		errs = append(errs, "backend.maxRetries must be between 0 and 10")
	}

	switch cfg.Agent.Mode {
	case "stream", "sync":
		// valid
	default:
		errs = append(errs, "agent.mode must be one of: stream, sync")
	}
	if cfg.Agent.MaxSteps < 1 || cfg.Agent.MaxSteps > 50 {
		errs = append(errs, "agent.maxSteps must be between 1 and 50")
	}
	switch cfg.Agent.ToolChoice {
	case "", "auto", "none", "required":
		// valid
	default:
		errs = append(errs, "agent.toolChoice must be one of: auto, none, required")
	}
	if cfg.Agent.TurnTimeoutSeconds < 1 {
		errs = append(errs, "agent.turnTimeoutSeconds must be >= 1")
	}

	switch cfg.Cache.Driver {
	case "memory":
	case "sqlite":
		if cfg.Cache.DBPath == "" {
			errs = append(errs, "cache.dbPath is required for the sqlite driver")
		}
	default:
		errs = append(errs, "cache.driver must be one of: memory, sqlite")
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			errs = append(errs, "metrics.listen is required when metrics are enabled")
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, "metrics.path must start with /")
		}
	}

	if cfg.Feed.Enabled {
		if cfg.Feed.Listen == "" {
			errs = append(errs, "feed.listen is required when the feed is enabled")
		}
		if !strings.HasPrefix(cfg.Feed.Path, "/") {
			errs = append(errs, "feed.path must start with /")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
