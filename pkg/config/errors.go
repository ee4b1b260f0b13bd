package config

import (
	"fmt"
	"strings"
)

// ConfigError reports every configuration violation found during resolution
// in a single failure, so an operator can fix all of them in one pass.
type ConfigError struct {
	// MissingKeys are required keys with no value, e.g.
	// "spec.controlPlaneEndpoint.address".
	MissingKeys []string
	// InvalidValues are keys whose value failed validation, with the reason.
	InvalidValues []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.MissingKeys) > 0 {
		parts = append(parts, fmt.Sprintf("missing required configuration: %s", strings.Join(e.MissingKeys, ", ")))
	}
	if len(e.InvalidValues) > 0 {
		parts = append(parts, fmt.Sprintf("invalid configuration: %s", strings.Join(e.InvalidValues, "; ")))
	}
	if len(parts) == 0 {
		return "configuration error"
	}
	return strings.Join(parts, "; ")
}

// HasViolations reports whether any violation was recorded.
func (e *ConfigError) HasViolations() bool {
	return len(e.MissingKeys) > 0 || len(e.InvalidValues) > 0
}
