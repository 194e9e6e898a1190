package svclog

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/lixenwraith/config"

	"github.com/lixenwraith/svclog/sanitizer"
)

// Config holds all multiplexer configuration values
type Config struct {
	// Level thresholds
	Level        int64 `toml:"level"`         // Main stream threshold, also gates incremental console lines
	ConsoleLevel int64 `toml:"console_level"` // Console stream threshold

	// Formatting
	Prefix         string `toml:"prefix"`          // Prepended to every Log message
	Sanitize       bool   `toml:"sanitize"`        // Rewrite message text with SanitizePolicy
	SanitizePolicy string `toml:"sanitize_policy"` // raw, lines, txt, escape or strip

	// Buffering
	BufferSize     int64 `toml:"buffer_size"`     // Ring capacity per stream, fixed after construction
	ReportDiscards bool  `toml:"report_discards"` // Emit a discard count after messages are dropped

	// Destinations (opened by the host, see cmd/svcd)
	MainLog       string `toml:"main_log"`       // Path of the persistent log, empty disables the main stream
	ConsoleTarget string `toml:"console_target"` // "stdout" or "stderr"

	// Internal error handling
	InternalErrorsToStderr bool `toml:"internal_errors_to_stderr"` // Write internal errors to stderr
}

// defaultConfig is the single source for all configurable default values
var defaultConfig = Config{
	Level:        LevelWarn,
	ConsoleLevel: LevelWarn,

	Prefix:         "svcd: ",
	Sanitize:       true,
	SanitizePolicy: string(sanitizer.PolicyLines),

	BufferSize:     4096,
	ReportDiscards: true,

	MainLog:       "",
	ConsoleTarget: "stdout",

	InternalErrorsToStderr: false,
}

// DefaultConfig returns a copy of the default configuration
func DefaultConfig() *Config {
	copiedConfig := defaultConfig
	return &copiedConfig
}

// NewConfigFromFile loads configuration from a TOML file and returns a validated Config
func NewConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	loader := config.New()

	if err := loader.RegisterStruct("log.", *cfg); err != nil {
		return nil, fmt.Errorf("failed to register config struct: %w", err)
	}

	// Missing file falls back to defaults
	if err := loader.Load(path, nil); err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	if err := extractConfig(loader, "log.", cfg); err != nil {
		return nil, fmt.Errorf("failed to extract config values: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewConfigFromDefaults creates a Config with default values and applies overrides
func NewConfigFromDefaults(overrides map[string]any) (*Config, error) {
	cfg := DefaultConfig()

	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, fmt.Errorf("failed to apply overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// extractConfig extracts values from lixenwraith/config into our Config struct
func extractConfig(loader *config.Config, prefix string, cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)

		tomlTag := field.Tag.Get("toml")
		if tomlTag == "" {
			continue
		}

		val, found := loader.Get(prefix + tomlTag)
		if !found {
			continue
		}

		if err := setFieldValue(fieldValue, val); err != nil {
			return fmt.Errorf("failed to set field %s: %w", field.Name, err)
		}
	}

	return nil
}

// applyOverrides applies a map of overrides to the Config struct
func applyOverrides(cfg *Config, overrides map[string]any) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	fieldMap := make(map[string]reflect.Value)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tomlTag := field.Tag.Get("toml")
		if tomlTag != "" {
			fieldMap[tomlTag] = v.Field(i)
		}
	}

	for key, value := range overrides {
		fieldValue, exists := fieldMap[key]
		if !exists {
			return fmt.Errorf("unknown config key: %s", key)
		}

		if err := setFieldValue(fieldValue, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	return nil
}

// setFieldValue sets a reflect.Value with proper type conversion
func setFieldValue(field reflect.Value, value any) error {
	switch field.Kind() {
	case reflect.String:
		strVal, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		field.SetString(strVal)

	case reflect.Int64:
		switch v := value.(type) {
		case int64:
			field.SetInt(v)
		case int:
			field.SetInt(int64(v))
		default:
			return fmt.Errorf("expected int64, got %T", value)
		}

	case reflect.Bool:
		boolVal, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		field.SetBool(boolVal)

	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if strings.ContainsAny(c.Prefix, "\r\n") {
		return fmtErrorf("prefix cannot contain line breaks: %q", c.Prefix)
	}

	if !sanitizer.PolicyPreset(c.SanitizePolicy).Valid() {
		return fmtErrorf("invalid sanitize_policy: '%s' (use raw, lines, txt, escape or strip)", c.SanitizePolicy)
	}

	if c.ConsoleTarget != "stdout" && c.ConsoleTarget != "stderr" {
		return fmtErrorf("invalid console_target: '%s' (use stdout or stderr)", c.ConsoleTarget)
	}

	if c.BufferSize < minBufferSize || c.BufferSize > maxBufferSize {
		return fmtErrorf("buffer_size must be between %d and %d: %d", minBufferSize, maxBufferSize, c.BufferSize)
	}

	// The constant part of a message must leave room for text
	if int64(len(c.Prefix))+1 >= c.BufferSize {
		return fmtErrorf("prefix length %d does not fit buffer_size %d", len(c.Prefix), c.BufferSize)
	}

	return nil
}

// Validate reports whether the configuration is usable
func (c *Config) Validate() error {
	return c.validate()
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	copiedConfig := *c
	return &copiedConfig
}
