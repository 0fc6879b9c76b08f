// Package template expands ${var} placeholders in check commands and
// build-system installables.
//
// Unknown placeholders are kept verbatim by default, so shell references
// such as ${HOME} survive expansion and reach the shell untouched.
package template

import (
	"fmt"
	"regexp"
	"runtime"
	"sort"
	"strings"
)

// bracePattern matches ${varname}. Bare $varname is left to the shell.
var bracePattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Vars maps placeholder names to their values.
type Vars map[string]string

// Standard variable names available to every check.
const (
	VarRoot      = "root"
	VarName      = "name"
	VarSystem    = "system"
	VarChecklist = "checklist"
)

// CheckVars returns the standard variables for a check in a checklist.
func CheckVars(root, name, checklist string) Vars {
	return Vars{
		VarRoot:      root,
		VarName:      name,
		VarSystem:    System(),
		VarChecklist: checklist,
	}
}

// With returns a copy of v with key set to value.
func (v Vars) With(key, value string) Vars {
	out := make(Vars, len(v)+1)
	for k, val := range v {
		out[k] = val
	}
	out[key] = value
	return out
}

// System returns the Nix system double for the running platform,
// e.g. "x86_64-linux" or "aarch64-darwin".
func System() string {
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	}
	return arch + "-" + runtime.GOOS
}

// Expander expands placeholders in strings.
// Expander is safe for concurrent use after construction.
type Expander struct {
	missingAction MissingAction
}

// NewExpander creates an Expander.
//
// Undefined placeholders are kept unless WithMissingAction says otherwise.
func NewExpander(opts ...Option) *Expander {
	e := &Expander{
		missingAction: MissingKeep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand replaces placeholders in s with values from vars.
// An error is returned only with MissingError when a placeholder is undefined.
func (e *Expander) Expand(s string, vars Vars) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	replace := func(match, name string) string {
		if val, ok := vars[name]; ok {
			return val
		}
		switch e.missingAction {
		case MissingEmpty:
			return ""
		case MissingError:
			missing = append(missing, name)
			return match
		default:
			return match
		}
	}

	result := bracePattern.ReplaceAllStringFunc(s, func(match string) string {
		return replace(match, match[2:len(match)-1])
	})

	if len(missing) > 0 {
		return result, &UndefinedVariableError{Names: dedupe(missing)}
	}
	return result, nil
}

// ExpandAll expands every string in ss. On error it returns nil and the first error.
func (e *Expander) ExpandAll(ss []string, vars Vars) ([]string, error) {
	if ss == nil {
		return nil, nil
	}
	out := make([]string, len(ss))
	for i, s := range ss {
		expanded, err := e.Expand(s, vars)
		if err != nil {
			return nil, err
		}
		out[i] = expanded
	}
	return out, nil
}

// UndefinedVariableError is returned with MissingError when placeholders
// have no value.
type UndefinedVariableError struct {
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}

func dedupe(names []string) []string {
	sort.Strings(names)
	out := names[:0]
	for i, n := range names {
		if i == 0 || n != names[i-1] {
			out = append(out, n)
		}
	}
	return out
}
