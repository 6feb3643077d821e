package domain

import "strings"

// Mode states whether a run may place orders.
type Mode string

const (
	// ModeSimulate plans only; orders are never dispatched.
	ModeSimulate Mode = "simulate"
	// ModeExecute dispatches the plan to an order executor.
	ModeExecute Mode = "execute"
)

// String returns the string representation.
func (m Mode) String() string {
	return string(m)
}

// IsValid checks if the Mode value is valid.
func (m Mode) IsValid() bool {
	return m == ModeSimulate || m == ModeExecute
}

// ParseMode parses a mode. There is no default: an empty value is an error.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return "", NewConfigError("mode", "must be set explicitly to %q or %q", ModeSimulate, ModeExecute)
	}
	if !m.IsValid() {
		return "", NewConfigError("mode", "unknown mode %q", s)
	}
	return m, nil
}
