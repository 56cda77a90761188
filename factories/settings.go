package factories

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP and WebSocket server settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string `json:"addr,omitempty"`
	// AllowedOrigins restricts CORS responses. Empty allows any origin,
	// matching the original deployment.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	// ReadLimit caps the size of a single WebSocket frame in bytes.
	ReadLimit int64 `json:"read_limit,omitempty"`
	// LogDir is where per-session transcript logs are written.
	LogDir string `json:"log_dir,omitempty"`
}

// DefaultServerConfig returns a ServerConfig with development defaults.
// The read limit fits a 25MB recording in base64 plus frame overhead.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8000",
		ReadLimit: 36 << 20,
		LogDir:    "./logs",
	}
}

// SettingsConfig is the top-level config loaded from the settings document.
// It bundles the server settings with the per-session pipeline config.
type SettingsConfig struct {
	Server  ServerConfig  `json:"server"`
	Session SessionConfig `json:"session"`
}

// DefaultSettingsConfig returns a SettingsConfig pre-filled with defaults.
func DefaultSettingsConfig() SettingsConfig {
	return SettingsConfig{
		Server:  DefaultServerConfig(),
		Session: DefaultSessionConfig(),
	}
}

// SettingsConfigFromJSON parses a JSON blob into a SettingsConfig, starting
// from defaults so that fields absent from the document keep their default
// values.
func SettingsConfigFromJSON(data []byte) (SettingsConfig, error) {
	cfg := DefaultSettingsConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	return cfg, nil
}

// SettingsConfigFromYAML parses a YAML settings document. Field names match
// the JSON contract: the document is converted to JSON first, so the two
// formats stay interchangeable key for key.
func SettingsConfigFromYAML(data []byte) (SettingsConfig, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	return SettingsConfigFromJSON(jsonData)
}

// SettingsConfigFromBase64 parses a base64-encoded JSON settings document,
// the SETTINGS_JSON_B64 deployment path.
func SettingsConfigFromBase64(encoded string) (SettingsConfig, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: decode base64: %w", err)
	}
	return SettingsConfigFromJSON(data)
}

// SettingsConfigFromFile reads and parses a settings file, accepting YAML
// by file extension and JSON otherwise.
func SettingsConfigFromFile(path string) (SettingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return SettingsConfigFromYAML(data)
	default:
		return SettingsConfigFromJSON(data)
	}
}
