// Package check defines the unit of verification shared by the fingerprint
// engine, the executor and the checklist runner.
package check

import (
	"errors"
	"fmt"
	"time"
)

// Kind selects how a check is executed.
type Kind string

// Check kinds.
const (
	// KindScript runs Command directly through the configured shell.
	KindScript Kind = "script"

	// KindDerivation delegates to the build system, which builds Derivation.
	// Command is the invocation the derivation wraps and is shown under -v.
	KindDerivation Kind = "derivation"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindScript || k == KindDerivation
}

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

// ParseKind converts s to a Kind. The empty string means KindScript.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return KindScript, nil
	}
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Sentinel errors for check definitions.
var (
	// ErrUnknownKind indicates a kind other than script or derivation.
	ErrUnknownKind = errors.New("unknown check kind")

	// ErrNameRequired indicates a check without a name.
	ErrNameRequired = errors.New("check name required")

	// ErrCommandRequired indicates a check without a command.
	ErrCommandRequired = errors.New("check command required")

	// ErrDerivationRequired indicates a derivation check without an installable.
	ErrDerivationRequired = errors.New("derivation check requires an installable")
)

// Check identifies one unit of verification.
// A Check is immutable for the duration of a run.
type Check struct {
	// Name is unique within a checklist.
	Name string

	// Kind selects the executor strategy.
	Kind Kind

	// Command is the underlying invocation.
	Command string

	// Derivation is the build-system installable (derivation kind only).
	Derivation string

	// Inputs are paths, relative to the workspace root, whose content
	// determines the fingerprint.
	Inputs []string

	// Timeout bounds a single execution. Zero means no limit.
	Timeout time.Duration
}

// Validate checks that c is complete for its kind.
func (c Check) Validate() error {
	if c.Name == "" {
		return ErrNameRequired
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("check %s: %w: %q", c.Name, ErrUnknownKind, c.Kind)
	}
	if c.Command == "" {
		return fmt.Errorf("check %s: %w", c.Name, ErrCommandRequired)
	}
	if c.Kind == KindDerivation && c.Derivation == "" {
		return fmt.Errorf("check %s: %w", c.Name, ErrDerivationRequired)
	}
	return nil
}

// IsDerivation reports whether c is built through the build system.
func (c Check) IsDerivation() bool {
	return c.Kind == KindDerivation
}
