// Package executor runs checks.
//
// Script checks run their command through a shell in the workspace root.
// Derivation checks are handed to a Builder, by default the Nix CLI, which
// builds the installable and, on later runs, re-realizes it from its own
// store. Every execution is timed with a single wall-clock measurement
// around the child process.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/randalmurphal/checkdef/pkg/checkdef/check"
)

// DefaultShell runs script commands.
var DefaultShell = []string{"sh", "-c"}

// defaultWaitDelay bounds how long Run waits for orphaned grandchildren to
// release the output pipe after the child was killed.
const defaultWaitDelay = 2 * time.Second

// Result is the outcome of one execution.
type Result struct {
	Passed   bool
	Duration time.Duration

	// Log is the combined stdout and stderr of the child, verbatim.
	Log string

	// Command is the underlying command of the check.
	Command string

	// BuildCommand is the build-system command line. Empty for script checks.
	BuildCommand string

	// ExitCode is the child's exit status, or -1 if it never exited normally.
	ExitCode int
}

// Executor runs checks rooted at a workspace directory.
type Executor struct {
	root    string
	shell   []string
	builder Builder
	env     []string
	logger  *slog.Logger
}

// New creates an executor whose children run in root.
func New(root string, opts ...Option) *Executor {
	e := &Executor{
		root:    root,
		shell:   DefaultShell,
		builder: NewNixBuilder(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Describe returns the commands Run would execute for c without running them.
func (e *Executor) Describe(c check.Check) (command, buildCommand string) {
	if c.IsDerivation() {
		return c.Command, strings.Join(e.builder.Argv(c.Derivation), " ")
	}
	return c.Command, ""
}

// Run executes c once. A non-passing execution returns the populated Result
// together with an *ExecError.
func (e *Executor) Run(ctx context.Context, c check.Check) (Result, error) {
	if c.IsDerivation() {
		return e.run(ctx, c, "build", e.builder.Argv(c.Derivation))
	}
	argv := append(append([]string(nil), e.shell...), c.Command)
	return e.run(ctx, c, "script", argv)
}

// Reference re-realizes an already built derivation and measures how long the
// build system takes to produce it from its store. For script checks it is
// the same as Run.
func (e *Executor) Reference(ctx context.Context, c check.Check) (Result, error) {
	if !c.IsDerivation() {
		return e.Run(ctx, c)
	}
	return e.run(ctx, c, "reference", e.builder.Argv(c.Derivation))
}

func (e *Executor) run(ctx context.Context, c check.Check, op string, argv []string) (Result, error) {
	res := Result{Command: c.Command, ExitCode: -1}
	if c.IsDerivation() {
		res.BuildCommand = strings.Join(argv, " ")
	}
	if len(argv) == 0 {
		return res, &ExecError{Check: c.Name, Op: op, Err: ErrEmptyCommand}
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.root
	cmd.WaitDelay = defaultWaitDelay
	if len(e.env) > 0 {
		cmd.Env = append(os.Environ(), e.env...)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if e.logger != nil {
		e.logger.Debug("executing check",
			slog.String("check", c.Name),
			slog.String("op", op),
			slog.String("argv", strings.Join(argv, " ")),
		)
	}

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Log = out.String()

	if err == nil {
		res.Passed = true
		res.ExitCode = 0
		return res, nil
	}

	execErr := &ExecError{Check: c.Name, Op: op, Err: err}

	// Check for context cancellation first
	if ctxErr := ctx.Err(); ctxErr != nil {
		execErr.Err = ctxErr
		return res, execErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		execErr.ExitCode = res.ExitCode
		execErr.Err = ErrNonZeroExit
	}
	return res, execErr
}

// Sentinel errors for execution.
var (
	// ErrNonZeroExit indicates the child exited with a non-zero status.
	ErrNonZeroExit = errors.New("non-zero exit status")

	// ErrEmptyCommand indicates a builder or shell produced no argv.
	ErrEmptyCommand = errors.New("empty command")
)

// ExecError reports a failed execution. It is never recorded in the store.
type ExecError struct {
	Check    string
	Op       string
	ExitCode int
	Err      error
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	if errors.Is(e.Err, ErrNonZeroExit) {
		return fmt.Sprintf("%s %s: exit status %d", e.Check, e.Op, e.ExitCode)
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s %s: timed out", e.Check, e.Op)
	}
	return fmt.Sprintf("%s %s: %v", e.Check, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecError) Unwrap() error {
	return e.Err
}
