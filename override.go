package svclog

import (
	"fmt"
	"strconv"
	"strings"
)

// ApplyOverride applies string key-value overrides to the multiplexer's
// current configuration. Each override should be in the format "key=value".
// Must be called on the reactor goroutine.
//
// Example:
//
//	err := mux.ApplyOverride(
//	    "level=info",
//	    "console_level=error",
//	)
func (m *Multiplexer) ApplyOverride(overrides ...string) error {
	cfg := m.cfg.Clone()

	var errors []error

	for _, override := range overrides {
		key, value, err := parseKeyValue(override)
		if err != nil {
			errors = append(errors, err)
			continue
		}

		if err := applyConfigField(cfg, key, value); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return combineConfigErrors(errors)
	}

	return m.ApplyConfig(cfg)
}

// combineConfigErrors combines multiple configuration errors into a single error
func combineConfigErrors(errors []error) error {
	if len(errors) == 0 {
		return nil
	}
	if len(errors) == 1 {
		return errors[0]
	}

	var sb strings.Builder
	sb.WriteString("svclog: multiple configuration errors:")
	for i, err := range errors {
		errMsg := strings.TrimPrefix(err.Error(), "svclog: ")
		sb.WriteString(fmt.Sprintf("\n  %d. %s", i+1, errMsg))
	}
	return fmt.Errorf("%s", sb.String())
}

// parseLevelValue accepts both numeric and named levels
func parseLevelValue(key, value string) (int64, error) {
	if numVal, err := strconv.ParseInt(value, 10, 64); err == nil {
		return numVal, nil
	}
	levelVal, err := Level(value)
	if err != nil {
		return 0, fmtErrorf("invalid %s value '%s': %w", key, value, err)
	}
	return levelVal, nil
}

// applyConfigField applies a single key-value override to a Config
func applyConfigField(cfg *Config, key, value string) error {
	switch key {
	case "level":
		levelVal, err := parseLevelValue(key, value)
		if err != nil {
			return err
		}
		cfg.Level = levelVal
	case "console_level":
		levelVal, err := parseLevelValue(key, value)
		if err != nil {
			return err
		}
		cfg.ConsoleLevel = levelVal

	case "prefix":
		cfg.Prefix = value
	case "sanitize":
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmtErrorf("invalid boolean value for sanitize '%s': %w", value, err)
		}
		cfg.Sanitize = boolVal
	case "sanitize_policy":
		cfg.SanitizePolicy = value

	case "buffer_size":
		intVal, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmtErrorf("invalid integer value for buffer_size '%s': %w", value, err)
		}
		cfg.BufferSize = intVal
	case "report_discards":
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmtErrorf("invalid boolean value for report_discards '%s': %w", value, err)
		}
		cfg.ReportDiscards = boolVal

	case "main_log":
		cfg.MainLog = value
	case "console_target":
		cfg.ConsoleTarget = value

	case "internal_errors_to_stderr":
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmtErrorf("invalid boolean value for internal_errors_to_stderr '%s': %w", value, err)
		}
		cfg.InternalErrorsToStderr = boolVal

	default:
		return fmtErrorf("unknown config key in override: %s", key)
	}

	return nil
}
