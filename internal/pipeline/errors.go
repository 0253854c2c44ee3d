package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by ConfigError or returned directly.
var (
	ErrInvalidSource   = errors.New("invalid source identifier")
	ErrUnsupportedKind = errors.New("unsupported source kind")
	ErrSessionNotFound = errors.New("session not found")
)

// ConfigError reports a session configuration rejected by StartSession.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid session config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErr(field string, sentinel error, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Err: fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)}
}
