package executor

// Builder turns a build-system installable into a command line.
type Builder interface {
	// Argv returns the command that realizes installable.
	Argv(installable string) []string
}

// CommandBuilder appends the installable to a fixed program and arguments.
type CommandBuilder struct {
	Program string
	Args    []string
}

// NewNixBuilder returns the default builder:
// nix build --no-link --print-build-logs <installable>.
func NewNixBuilder() CommandBuilder {
	return CommandBuilder{
		Program: "nix",
		Args:    []string{"build", "--no-link", "--print-build-logs"},
	}
}

// Argv implements Builder.
func (b CommandBuilder) Argv(installable string) []string {
	if b.Program == "" {
		return nil
	}
	argv := make([]string, 0, len(b.Args)+2)
	argv = append(argv, b.Program)
	argv = append(argv, b.Args...)
	return append(argv, installable)
}
