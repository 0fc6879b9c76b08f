package checkdef

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/checkdef/pkg/checkdef/config"
)

// Sentinel errors for checklist resolution.
var (
	// ErrUnknownChecklist indicates a checklist name that is not declared.
	ErrUnknownChecklist = errors.New("unknown checklist")

	// ErrDuplicateCheck indicates two checks with the same name in one checklist.
	ErrDuplicateCheck = errors.New("duplicate check in checklist")

	// ErrDuplicateChecklist indicates two checklists with the same name.
	ErrDuplicateChecklist = errors.New("duplicate checklist")

	// ErrInvalidDefinition indicates a definition that fails validation.
	ErrInvalidDefinition = config.ErrInvalidDefinition
)

// Sentinel errors for runner construction.
var (
	// ErrNilStore indicates a Runner without a result store.
	ErrNilStore = errors.New("result store required")

	// ErrNilExecutor indicates a Runner without an executor.
	ErrNilExecutor = errors.New("executor required")
)

// StoreError reports a result store that could not be used. It aborts the
// whole run: without the store, cached outcomes can be neither trusted nor
// recorded.
type StoreError struct {
	// Op is the store operation that failed ("open", "lookup", "record").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("result store unavailable (%s): %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// CheckError wraps an error that failed a single check. It is kept in the
// check's Outcome and never aborts sibling checks.
type CheckError struct {
	// Check is the failing check's name.
	Check string
	// Op is the failing step ("expand", "fingerprint", "execute", "reference").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckError) Error() string {
	return fmt.Sprintf("check %s %s: %v", e.Check, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckError) Unwrap() error {
	return e.Err
}
