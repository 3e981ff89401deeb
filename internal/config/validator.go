package config

import (
	"fmt"
	"regexp"
	"strings"
)

var serverNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateServerName validates the advertised server name
func (v *Validator) ValidateServerName(name string) error {
	if name == "" {
		return fmt.Errorf("server name cannot be empty")
	}
	if !serverNamePattern.MatchString(name) {
		return fmt.Errorf("invalid server name: %s", name)
	}
	return nil
}

// ValidateTransport validates the transport selection
func (v *Validator) ValidateTransport(transport string) error {
	validTransports := []string{TransportStdio, TransportWebSocket}
	for _, valid := range validTransports {
		if transport == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid transport: %s (must be one of: %s)", transport, strings.Join(validTransports, ", "))
}

// ValidatePort validates a listen port. 0 picks a free port.
func (v *Validator) ValidatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateServerName(cfg.Server.Name); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateTransport(cfg.Server.Transport); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, err)
	}

	if cfg.Tools.DebounceMs < 0 {
		errors = append(errors, fmt.Errorf("tools.debounce_ms must be >= 0"))
	}
	if cfg.Tools.Watch && cfg.Tools.Dir == "" {
		errors = append(errors, fmt.Errorf("tools.watch requires tools.dir"))
	}
	for i, name := range cfg.Tools.Disabled {
		if strings.TrimSpace(name) == "" {
			errors = append(errors, fmt.Errorf("tools.disabled[%d] is empty", i))
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Logging.MaxSize < 0 {
		errors = append(errors, fmt.Errorf("logging.max_size must be >= 0"))
	}
	if cfg.Logging.MaxAge < 0 {
		errors = append(errors, fmt.Errorf("logging.max_age must be >= 0"))
	}
	for i, pattern := range cfg.Logging.RedactPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			errors = append(errors, fmt.Errorf("logging.redact_patterns[%d]: %w", i, err))
		}
	}

	return errors
}
