package config

import "fmt"

// Reasons attached to a ConfigError
const (
	ReasonInvalidLimit = "invalid_limit"
	ReasonInvalidValue = "invalid_value"
)

// ConfigError is returned by Validate. It is fatal at startup and nowhere else.
type ConfigError struct {
	Field  string
	Reason string
	Rule   string
	Value  any
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s (rule %q, got %v)", e.Field, e.Reason, e.Rule, e.Value)
}
