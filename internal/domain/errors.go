package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrSourceUnavailable a required balance, price or risk source failed or timed out.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrPriceUnavailable the price source has no price for the asset.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrConfiguration malformed targets or options, raised before any I/O.
	ErrConfiguration = errors.New("configuration error")
	// ErrInfrastructure unexpected collaborator malfunction during a check.
	ErrInfrastructure = errors.New("infrastructure error")
)

// SourceError carries the name of the collaborator that failed.
type SourceError struct {
	Source string
	Err    error
}

// NewSourceError wraps err as an unavailable source.
func NewSourceError(source string, err error) *SourceError {
	return &SourceError{Source: source, Err: err}
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %q unavailable: %v", e.Source, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is reports ErrSourceUnavailable for any SourceError.
func (e *SourceError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

// ConfigError describes an invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

// NewConfigError creates a ConfigError.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid '%s': %s", e.Field, e.Reason)
}

// Is reports ErrConfiguration for any ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// InfrastructureError wraps an unexpected collaborator failure.
type InfrastructureError struct {
	Component string
	Err       error
}

// NewInfrastructureError creates an InfrastructureError.
func NewInfrastructureError(component string, err error) *InfrastructureError {
	return &InfrastructureError{Component: component, Err: err}
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s malfunction: %v", e.Component, e.Err)
}

// Unwrap returns the underlying cause.
func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// Is reports ErrInfrastructure for any InfrastructureError.
func (e *InfrastructureError) Is(target error) bool {
	return target == ErrInfrastructure
}
