package registry

import (
	"fmt"
	"strings"
)

// ConfigurationError describes one invalid or missing descriptor field. It is
// only ever produced while building the Registry at startup.
type ConfigurationError struct {
	BackendID string `json:"backendId,omitempty"`
	Field     string `json:"field"`
	Message   string `json:"message"`
}

// Error implements the error interface
func (ce ConfigurationError) Error() string {
	if ce.BackendID == "" {
		return fmt.Sprintf("config: %s: %s", ce.Field, ce.Message)
	}
	return fmt.Sprintf("config: backend %q: %s: %s", ce.BackendID, ce.Field, ce.Message)
}

// ConfigurationErrors collects every problem found in one configuration so an
// operator can fix them in a single pass.
type ConfigurationErrors struct {
	Errors []ConfigurationError `json:"errors"`
}

// Error implements the error interface for the collection
func (ce ConfigurationErrors) Error() string {
	switch len(ce.Errors) {
	case 0:
		return "no configuration errors"
	case 1:
		return ce.Errors[0].Error()
	}
	parts := make([]string, 0, len(ce.Errors))
	for _, e := range ce.Errors {
		parts = append(parts, e.Error())
	}
	return fmt.Sprintf("%d configuration errors: %s", len(ce.Errors), strings.Join(parts, "; "))
}

// HasErrors returns true if there are any errors in the collection
func (ce *ConfigurationErrors) HasErrors() bool {
	return len(ce.Errors) > 0
}

func (ce *ConfigurationErrors) add(backendID, field, format string, args ...any) {
	ce.Errors = append(ce.Errors, ConfigurationError{
		BackendID: backendID,
		Field:     field,
		Message:   fmt.Sprintf(format, args...),
	})
}
