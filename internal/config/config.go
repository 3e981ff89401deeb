package config

import (
	"encoding/json"
	"errors"
)

// Config represents the toolhost configuration
type Config struct {
	Server  ServerConfig  `json:"server" mapstructure:"server"`
	Tools   ToolsConfig   `json:"tools" mapstructure:"tools"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// ServerConfig identifies the server and selects its transport
type ServerConfig struct {
	Name      string `json:"name" mapstructure:"name"`
	Version   string `json:"version" mapstructure:"version"`
	Transport string `json:"transport" mapstructure:"transport"` // stdio, websocket
	Host      string `json:"host" mapstructure:"host"`
	Port      int    `json:"port" mapstructure:"port"`
}

// ToolsConfig controls tool discovery
type ToolsConfig struct {
	// Dir is the root scanned for tool manifests. Empty means compiled-in
	// tools only.
	Dir        string   `json:"dir" mapstructure:"dir"`
	Watch      bool     `json:"watch" mapstructure:"watch"`
	DebounceMs int      `json:"debounce_ms" mapstructure:"debounce_ms"`
	Disabled   []string `json:"disabled" mapstructure:"disabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`

	// RedactPatterns are extra regular expressions masked in log output.
	RedactPatterns []string `json:"redact_patterns" mapstructure:"redact_patterns"`
}

// MetricsConfig toggles the /metrics endpoint
type MetricsConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// Transports
const (
	TransportStdio     = "stdio"
	TransportWebSocket = "websocket"
)

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:      "toolhost",
			Version:   "0.1.0",
			Transport: TransportStdio,
			Host:      "127.0.0.1",
			Port:      8765,
		},
		Tools: ToolsConfig{
			DebounceMs: 200,
			Disabled:   []string{},
		},
		Logging: LoggingConfig{
			Level:          "info",
			MaxSize:        100,
			MaxAge:         7,
			Compress:       true,
			Redaction:      true,
			RedactPatterns: []string{},
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid. Every problem found is
// reported.
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}
