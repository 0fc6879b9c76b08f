package template

import (
	"errors"
	"fmt"
)

// MissingAction specifies how undefined placeholders are handled.
type MissingAction int

const (
	// MissingKeep leaves the placeholder as-is. This is the default.
	MissingKeep MissingAction = iota

	// MissingEmpty replaces the placeholder with an empty string.
	MissingEmpty

	// MissingError makes Expand return an UndefinedVariableError.
	MissingError
)

// ErrUnknownMissingAction is returned by ParseMissingAction.
var ErrUnknownMissingAction = errors.New("unknown undefined-variable action")

// ParseMissingAction parses "keep", "empty" or "error". The empty string
// means MissingKeep.
func ParseMissingAction(s string) (MissingAction, error) {
	switch s {
	case "", "keep":
		return MissingKeep, nil
	case "empty":
		return MissingEmpty, nil
	case "error":
		return MissingError, nil
	}
	return MissingKeep, fmt.Errorf("%w: %q", ErrUnknownMissingAction, s)
}

// Option configures an Expander.
type Option func(*Expander)

// WithMissingAction sets how undefined placeholders are handled.
func WithMissingAction(action MissingAction) Option {
	return func(e *Expander) {
		e.missingAction = action
	}
}
