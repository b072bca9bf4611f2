package qsim

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigurationError reports a circuit or state whose shape contradicts its declaration,
// such as a row count that differs from the qubit count.
// It is fatal to the call that returned it.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Msg)
}

// ConfigErrorf returns a ConfigurationError carrying a stack trace.
func ConfigErrorf(field, format string, args ...any) error {
	return errors.WithStack(&ConfigurationError{Field: field, Msg: fmt.Sprintf(format, args...)})
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
