package agentfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Config is the full configuration surface, decoded from a JSONC file (via
// hujson) or constructed directly by embedders. Field names match the
// external configuration surface exactly.
type Config struct {
	BaseDirectories  []string `json:"base_directories"`
	DefaultTimeout   float64  `json:"default_timeout"`
	MaxTimeout       float64  `json:"max_timeout"`
	DefaultEncoding  string   `json:"default_encoding"`
	DiffContextLines int      `json:"diff_context_lines"`
	MaxFileSizeBytes int64    `json:"max_file_size_bytes"`

	AccessRules              []AccessRuleConfig `json:"access_rules"`
	DefaultDestructivePolicy string             `json:"default_destructive_policy"`

	Persistence PersistenceConfig `json:"persistence"`
	Watcher     WatcherConfig     `json:"watcher"`
	Search      SearchConfig      `json:"search"`
}

// AccessRuleConfig is one configured access-control rule, decoded into an
// [accesspolicy.Rule] by [Core].
type AccessRuleConfig struct {
	PathPrefix string   `json:"path_prefix"`
	Operations []string `json:"operations"`
	Action     string   `json:"action"`
	Priority   int      `json:"priority"`
}

// PersistenceConfig configures the debounced state-snapshot layer.
type PersistenceConfig struct {
	Enabled              bool    `json:"enabled"`
	StateFile            string  `json:"state_file,omitempty"`
	WriteDebounceSeconds float64 `json:"write_debounce_seconds"`
	TTLMultiplier        float64 `json:"ttl_multiplier"`
}

// WatcherConfig configures the external-modification watcher.
type WatcherConfig struct {
	Enabled    bool `json:"enabled"`
	DebounceMS int  `json:"debounce_ms"`
}

// SearchConfig configures the content-search operation.
type SearchConfig struct {
	Enabled          bool  `json:"enabled"`
	MaxResults       int   `json:"max_results"`
	MaxFileSizeBytes int64 `json:"max_file_size_bytes"`
}

// DefaultConfig returns the documented defaults for every field.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:           30.0,
		MaxTimeout:               300.0,
		DefaultEncoding:          "utf-8",
		DiffContextLines:         3,
		MaxFileSizeBytes:         10 * 1024 * 1024,
		DefaultDestructivePolicy: "deny",
		Persistence: PersistenceConfig{
			Enabled:              false,
			WriteDebounceSeconds: 1.0,
			TTLMultiplier:        2.0,
		},
		Watcher: WatcherConfig{
			Enabled:    true,
			DebounceMS: 100,
		},
		Search: SearchConfig{
			Enabled:          true,
			MaxResults:       1000,
			MaxFileSizeBytes: 10 * 1024 * 1024,
		},
	}
}

var (
	errConfigFileRead           = errors.New("cannot read config file")
	errConfigInvalidJSONC       = errors.New("invalid JSONC in config file")
	errConfigInvalidJSON        = errors.New("invalid JSON in config file")
	errInvalidTimeout           = errors.New("default_timeout and max_timeout must be positive, and default_timeout must not exceed max_timeout")
	errInvalidEncoding          = errors.New("default_encoding must not be empty")
	errInvalidMaxFileSize       = errors.New("max_file_size_bytes must be positive")
	errInvalidDestructivePolicy = errors.New(`default_destructive_policy must be "allow" or "deny"`)
	errInvalidAccessRuleAction  = errors.New(`access rule action must be "allow" or "deny"`)
	errInvalidSearchConfig      = errors.New("search.max_results and search.max_file_size_bytes must be positive when search is enabled")
)

// LoadConfig reads path as hujson (JSON with comments and trailing commas),
// overlays it onto [DefaultConfig], and validates the result eagerly. An
// empty path returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied configuration
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", errConfigFileRead, path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", errConfigInvalidJSONC, path, err)
	}

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", errConfigInvalidJSON, path, err)
	}

	return normalizeAndValidate(cfg)
}

// normalizeAndValidate absolutizes every configured base directory and
// checks every field the rest of the package assumes is already sound.
func normalizeAndValidate(cfg Config) (Config, error) {
	for i, dir := range cfg.BaseDirectories {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return Config{}, fmt.Errorf("resolve base_directories[%d] %q: %w", i, dir, err)
		}

		cfg.BaseDirectories[i] = abs
	}

	if cfg.DefaultTimeout <= 0 || cfg.MaxTimeout <= 0 || cfg.DefaultTimeout > cfg.MaxTimeout {
		return Config{}, errInvalidTimeout
	}

	if cfg.DefaultEncoding == "" {
		return Config{}, errInvalidEncoding
	}

	if cfg.MaxFileSizeBytes <= 0 {
		return Config{}, errInvalidMaxFileSize
	}

	if cfg.DefaultDestructivePolicy != "allow" && cfg.DefaultDestructivePolicy != "deny" {
		return Config{}, errInvalidDestructivePolicy
	}

	for _, r := range cfg.AccessRules {
		if r.Action != "allow" && r.Action != "deny" {
			return Config{}, fmt.Errorf("%w: rule for %q", errInvalidAccessRuleAction, r.PathPrefix)
		}
	}

	if cfg.Search.Enabled && (cfg.Search.MaxResults <= 0 || cfg.Search.MaxFileSizeBytes <= 0) {
		return Config{}, errInvalidSearchConfig
	}

	return cfg, nil
}
