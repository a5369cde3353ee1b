package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the diffchat configuration.
type Config struct {
	Roles           map[string]string `json:"roles,omitempty" yaml:"roles,omitempty"`
	RolesFile       string            `json:"roles_file,omitempty" yaml:"roles_file,omitempty"`
	APIKey          string            `json:"openai_api_key,omitempty" yaml:"openai_api_key,omitempty"`
	BaseURL         string            `json:"openai_base_url,omitempty" yaml:"openai_base_url,omitempty"`
	VectorStoreName string            `json:"vector_store_name" yaml:"vector_store_name"`
	Model           string            `json:"model" yaml:"model"`
	StatePath       string            `json:"state_path" yaml:"state_path"`
	Format          string            `json:"format" yaml:"format"`
	MaxDiffBytes    int               `json:"max_diff_bytes" yaml:"max_diff_bytes"`
	MaxDiffTokens   int               `json:"max_diff_tokens" yaml:"max_diff_tokens"`
	PollIntervalMs  int               `json:"poll_interval_ms" yaml:"poll_interval_ms"`
	Privacy         PrivacyConfig     `json:"privacy" yaml:"privacy"`
	UploadCache     CacheConfig       `json:"upload_cache" yaml:"upload_cache"`
	Transcript      TranscriptConfig  `json:"transcript" yaml:"transcript"`
}

// CacheConfig controls the upload cache.
type CacheConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Dir        string `json:"dir,omitempty" yaml:"dir,omitempty"`
	TTLSeconds int    `json:"ttl_seconds" yaml:"ttl_seconds"`
}

// PrivacyConfig controls privacy/redaction behavior.
type PrivacyConfig struct {
	RedactSecrets bool     `json:"redact_secrets" yaml:"redact_secrets"`
	RedactPaths   []string `json:"redact_paths,omitempty" yaml:"redact_paths,omitempty"`
}

// TranscriptConfig controls the turn transcript database.
type TranscriptConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Error reports a missing or invalid configuration. It is always fatal.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// IsConfigError reports whether err is or wraps a *Error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		VectorStoreName: "diff-store",
		Model:           "gpt-4o-mini",
		StatePath:       "state.json",
		Format:          "text",
		MaxDiffBytes:    2 << 20,
		PollIntervalMs:  1000,
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secrets*"},
		},
		UploadCache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 7 * 86400,
		},
		Transcript: TranscriptConfig{
			Enabled: true,
		},
	}
}

// ConfigDir returns the platform-appropriate config directory for diffchat.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "diffchat"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "cannot determine home directory")
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "diffchat"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "diffchat"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "diffchat"), nil
	default:
		return filepath.Join(home, ".config", "diffchat"), nil
	}
}

// ConfigPath resolves the config file location. An explicit path wins, then
// $DIFFCHAT_CONFIG, then ./config.json when it exists, then the user config dir.
func ConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv("DIFFCHAT_CONFIG"); env != "" {
		return env, nil
	}
	if _, err := os.Stat("config.json"); err == nil {
		return "config.json", nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadFile returns the defaults overlaid with the keys present in the file at
// path. A missing file yields the defaults and a nil error.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, &Error{Field: path, Reason: err.Error()}
	}
	if err := unmarshal(path, data, &cfg); err != nil {
		return Config{}, &Error{Field: path, Reason: "parsing config file: " + err.Error()}
	}
	return cfg, nil
}

// LoadRolesFile reads a name → prompt map from a YAML or JSON file.
func LoadRolesFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Field: "roles_file", Reason: err.Error()}
	}
	roles := map[string]string{}
	if err := unmarshal(path, data, &roles); err != nil {
		return nil, &Error{Field: "roles_file", Reason: "parsing " + path + ": " + err.Error()}
	}
	return roles, nil
}

func unmarshal(path string, data []byte, v any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}

// Save writes the config to path.
func Save(cfg Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "creating config directory")
		}
	}
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}
	return os.WriteFile(path, data, 0o600)
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-zero values should be set).
// Load does not validate; call Validate before talking to a collaborator.
func Load(path string, overrides map[string]string) (Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}

	if cfg.RolesFile != "" {
		rolesPath := cfg.RolesFile
		if !filepath.IsAbs(rolesPath) {
			rolesPath = filepath.Join(filepath.Dir(path), rolesPath)
		}
		extra, err := LoadRolesFile(rolesPath)
		if err != nil {
			return Config{}, err
		}
		if cfg.Roles == nil {
			cfg.Roles = make(map[string]string, len(extra))
		}
		for name, prompt := range extra {
			cfg.Roles[name] = prompt
		}
	}

	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the settings every collaborator-facing command depends on.
func (c Config) Validate() error {
	if len(c.Roles) == 0 {
		return &Error{Field: "roles", Reason: "no roles configured"}
	}
	for name, prompt := range c.Roles {
		if strings.TrimSpace(prompt) == "" {
			return &Error{Field: "roles." + name, Reason: "empty prompt"}
		}
	}
	if c.APIKey == "" {
		return &Error{Field: "openai_api_key", Reason: "API key not found in config file or OPENAI_API_KEY"}
	}
	if c.VectorStoreName == "" {
		return &Error{Field: "vector_store_name", Reason: "must not be empty"}
	}
	if c.StatePath == "" {
		return &Error{Field: "state_path", Reason: "must not be empty"}
	}
	switch c.Format {
	case "text", "json", "markdown":
	default:
		return &Error{Field: "format", Reason: "unsupported output format " + strconv.Quote(c.Format)}
	}
	return nil
}

// RoleNames returns the configured role names in sorted order.
func (c Config) RoleNames() []string {
	names := make([]string, 0, len(c.Roles))
	for name := range c.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TranscriptPath returns the transcript database path, defaulting to a file
// next to the state file.
func (c Config) TranscriptPath() string {
	if c.Transcript.Path != "" {
		return c.Transcript.Path
	}
	return filepath.Join(filepath.Dir(c.StatePath), "transcript.db")
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	if out.APIKey != "" {
		out.APIKey = maskKey(out.APIKey)
	}
	return out
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "…" + key[len(key)-4:]
}

func mergeEnv(cfg *Config) error {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.APIKey == "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("DIFFCHAT_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("DIFFCHAT_STATE"); v != "" {
		cfg.StatePath = v
	}
	if v := os.Getenv("DIFFCHAT_VECTOR_STORE"); v != "" {
		cfg.VectorStoreName = v
	}
	if v := os.Getenv("DIFFCHAT_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("DIFFCHAT_MAX_DIFF_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Field: "DIFFCHAT_MAX_DIFF_TOKENS", Reason: "must be an integer"}
		}
		cfg.MaxDiffTokens = n
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for key, value := range overrides {
		if value == "" {
			continue
		}
		if err := SetField(cfg, key, value); err != nil {
			return err
		}
	}
	return nil
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "openai_api_key":
		cfg.APIKey = value
	case "openai_base_url":
		cfg.BaseURL = value
	case "vector_store_name":
		cfg.VectorStoreName = value
	case "model":
		cfg.Model = value
	case "state_path":
		cfg.StatePath = value
	case "format":
		cfg.Format = value
	case "roles_file":
		cfg.RolesFile = value
	case "max_diff_bytes", "max_diff_tokens", "poll_interval_ms", "upload_cache.ttl_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return &Error{Field: key, Reason: "must be an integer"}
		}
		switch key {
		case "max_diff_bytes":
			cfg.MaxDiffBytes = n
		case "max_diff_tokens":
			cfg.MaxDiffTokens = n
		case "poll_interval_ms":
			cfg.PollIntervalMs = n
		default:
			cfg.UploadCache.TTLSeconds = n
		}
	case "privacy.redact_secrets", "upload_cache.enabled", "transcript.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return &Error{Field: key, Reason: "must be true or false"}
		}
		switch key {
		case "privacy.redact_secrets":
			cfg.Privacy.RedactSecrets = b
		case "upload_cache.enabled":
			cfg.UploadCache.Enabled = b
		default:
			cfg.Transcript.Enabled = b
		}
	case "upload_cache.dir":
		cfg.UploadCache.Dir = value
	case "transcript.path":
		cfg.Transcript.Path = value
	default:
		if name, ok := strings.CutPrefix(key, "roles."); ok && name != "" {
			if cfg.Roles == nil {
				cfg.Roles = map[string]string{}
			}
			cfg.Roles[name] = value
			return nil
		}
		return &Error{Field: key, Reason: "unknown config key"}
	}
	return nil
}
