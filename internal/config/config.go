// Package config loads and writes the impressionism configuration file.
// The file lives at $CONFIG_DIR/config.yaml where $CONFIG_DIR defaults to
// the user config directory and can be overridden with
// IMPRESSIONISM_CONFIG_DIR. Catalog state lives under $STATE_DIR
// (IMPRESSIONISM_STATE_DIR override).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigDir overrides the configuration directory.
	EnvConfigDir = "IMPRESSIONISM_CONFIG_DIR"
	// EnvStateDir overrides the state (catalog) directory.
	EnvStateDir = "IMPRESSIONISM_STATE_DIR"

	configFileName = "config.yaml"

	// DefaultDimension is the embedding dimensionality.
	DefaultDimension = 384
	// DefaultPreviewChars caps content previews in the message log.
	DefaultPreviewChars = 500
	// DefaultBodyChars caps how much of a skill body feeds the embedder.
	DefaultBodyChars = 4096
	// DefaultLockTimeoutSec bounds waiting on the catalog lock.
	DefaultLockTimeoutSec = 10
)

// Config holds all impressionism configuration.
type Config struct {
	// ActiveRuleset is the ruleset path relative to the rules directory,
	// without extension (e.g. "builtin/default").
	ActiveRuleset string `yaml:"active_ruleset"`

	// Parameters is the global parameter map exposed to rulesets.
	Parameters map[string]interface{} `yaml:"parameters,omitempty"`

	// Rulesets holds per-ruleset parameter overrides, keyed by ruleset
	// path, merged on top of Parameters.
	Rulesets map[string]map[string]interface{} `yaml:"rulesets,omitempty"`

	Indexing  IndexingConfig  `yaml:"indexing"`
	Logging   LoggingConfig   `yaml:"logging"`
	Embedding EmbeddingConfig `yaml:"embedding"`

	// LockTimeoutSec bounds waiting for the catalog write lock.
	LockTimeoutSec int `yaml:"lock_timeout_sec,omitempty"`
}

// IndexingConfig configures skill discovery.
type IndexingConfig struct {
	// Directories are the roots to scan. Order matters: the first root
	// is tagged "user", the second "project", further roots "plugin".
	// A root may be given as "bucket:path" to tag explicitly.
	Directories []string `yaml:"directories"`

	// Patterns is the filename glob whitelist.
	Patterns []string `yaml:"patterns"`

	// Ignore is the glob blacklist applied to walked paths.
	Ignore []string `yaml:"ignore"`
}

// LoggingConfig configures conversation/tool event logging.
type LoggingConfig struct {
	// ToolUse is "all", "none", or an explicit comma-free tool name list.
	ToolUse ToolUseFilter `yaml:"tool_use"`

	// ToolFields selects which tool-event fields go into the preview.
	ToolFields []string `yaml:"tool_fields,omitempty"`

	// EmbedToolUse embeds tool-event previews when true.
	EmbedToolUse bool `yaml:"embed_tool_use"`
}

// ToolUseFilter decides which tool events are logged.
type ToolUseFilter struct {
	All   bool
	None  bool
	Names []string
}

// UnmarshalYAML accepts "all", "none", or a list of tool names.
func (f *ToolUseFilter) UnmarshalYAML(value *yaml.Node) error {
	// The decoded form replaces whatever the filter held before.
	*f = ToolUseFilter{}
	switch value.Kind {
	case yaml.ScalarNode:
		switch strings.ToLower(value.Value) {
		case "all", "":
			f.All = true
		case "none":
			f.None = true
		default:
			f.Names = []string{value.Value}
		}
		return nil
	case yaml.SequenceNode:
		return value.Decode(&f.Names)
	default:
		return fmt.Errorf("logging.tool_use: expected scalar or list")
	}
}

// MarshalYAML renders the filter back to its compact form.
func (f ToolUseFilter) MarshalYAML() (interface{}, error) {
	switch {
	case f.All:
		return "all", nil
	case f.None:
		return "none", nil
	default:
		return f.Names, nil
	}
}

// Allows reports whether events for the named tool should be logged.
func (f ToolUseFilter) Allows(tool string) bool {
	if f.None {
		return false
	}
	if f.All {
		return true
	}
	for _, n := range f.Names {
		if n == tool {
			return true
		}
	}
	return false
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	// Provider: "local", "ollama" or "genai".
	Provider string `yaml:"provider"`

	OllamaEndpoint string `yaml:"ollama_endpoint,omitempty"`
	OllamaModel    string `yaml:"ollama_model,omitempty"`

	GenAIAPIKey string `yaml:"genai_api_key,omitempty"`
	GenAIModel  string `yaml:"genai_model,omitempty"`

	// Dimension is the embedding vector length.
	Dimension int `yaml:"dimension"`
}

// ConfigDir returns the configuration directory, honoring the override.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve user config dir: %w", err)
	}
	return filepath.Join(base, "impressionism"), nil
}

// StateDir returns the state directory, honoring the override.
func StateDir() (string, error) {
	if dir := os.Getenv(EnvStateDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve home dir: %w", err)
	}
	return filepath.Join(home, ".local", "state", "impressionism"), nil
}

// RulesDir returns the ruleset directory under the config dir.
func RulesDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "rules"), nil
}

// CatalogDir returns the catalog directory under the state dir.
func CatalogDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "catalog"), nil
}

// Default returns the configuration written by `impressionism init`.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		ActiveRuleset: "builtin/default",
		Parameters: map[string]interface{}{
			"similarity_threshold": 0.5,
			"recent_message_count": 10,
		},
		Indexing: IndexingConfig{
			Directories: []string{
				filepath.Join(home, ".claude", "skills"),
				filepath.Join(".claude", "skills"),
			},
			Patterns: []string{"**/SKILL.md"},
			Ignore: []string{
				"**/.git/**",
				"**/node_modules/**",
				"**/vendor/**",
				"**/.venv/**",
				"**/target/**",
				"**/__pycache__/**",
			},
		},
		Logging: LoggingConfig{
			ToolUse:      ToolUseFilter{All: true},
			ToolFields:   []string{"tool_name", "file_path", "command"},
			EmbedToolUse: false,
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			Dimension: DefaultDimension,
		},
		LockTimeoutSec: DefaultLockTimeoutSec,
	}
}

// Load reads the configuration file. A missing file yields defaults;
// a malformed file is a hard error.
func Load() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(filepath.Join(dir, configFileName))
}

// LoadFrom reads a configuration file at an explicit path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Embedding.Dimension <= 0 {
		cfg.Embedding.Dimension = DefaultDimension
	}
	if cfg.LockTimeoutSec <= 0 {
		cfg.LockTimeoutSec = DefaultLockTimeoutSec
	}
	return cfg, nil
}

// Save writes the configuration to $CONFIG_DIR/config.yaml.
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, configFileName), data, 0o644)
}

// ConfigPath returns the path Save writes to.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}
