package executor

import "log/slog"

// Option configures an Executor.
type Option func(*Executor)

// WithShell sets the argv prefix used for script commands. The command is
// appended as the final argument.
func WithShell(shell ...string) Option {
	return func(e *Executor) {
		if len(shell) > 0 {
			e.shell = shell
		}
	}
}

// WithBuilder sets the builder for derivation checks.
func WithBuilder(b Builder) Option {
	return func(e *Executor) {
		if b != nil {
			e.builder = b
		}
	}
}

// WithEnv adds KEY=value pairs to the child environment.
func WithEnv(env ...string) Option {
	return func(e *Executor) { e.env = append(e.env, env...) }
}

// WithLogger logs each execution at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}
