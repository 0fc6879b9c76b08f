package checkdef

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/checkdef/pkg/checkdef/cache"
	"github.com/randalmurphal/checkdef/pkg/checkdef/check"
	"github.com/randalmurphal/checkdef/pkg/checkdef/executor"
)

// Durations reported by fakeExecutor, taken from a real run of the demo
// workspace.
const (
	buildDuration     = 10017 * time.Millisecond
	referenceDuration = 67 * time.Millisecond
	scriptDuration    = 52 * time.Millisecond
)

// fakeExecutor reports fixed durations and records every call.
type fakeExecutor struct {
	mu      sync.Mutex
	runs    []string
	refs    []string
	failRun map[string]string
	failRef map[string]string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{failRun: map[string]string{}, failRef: map[string]string{}}
}

func (f *fakeExecutor) result(c check.Check, d time.Duration, log string) executor.Result {
	res := executor.Result{Passed: true, Duration: d, Log: log, Command: c.Command}
	if c.IsDerivation() {
		res.BuildCommand = "nix build --no-link --print-build-logs " + c.Derivation
	}
	return res
}

func (f *fakeExecutor) Run(_ context.Context, c check.Check) (executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, c.Name)

	d := scriptDuration
	if c.IsDerivation() {
		d = buildDuration
	}
	if log, ok := f.failRun[c.Name]; ok {
		res := f.result(c, d, log)
		res.Passed = false
		res.ExitCode = 1
		return res, &executor.ExecError{Check: c.Name, Op: "build", ExitCode: 1, Err: executor.ErrNonZeroExit}
	}
	return f.result(c, d, "ok: "+c.Command+"\n"), nil
}

func (f *fakeExecutor) Reference(_ context.Context, c check.Check) (executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, c.Name)

	if log, ok := f.failRef[c.Name]; ok {
		res := f.result(c, referenceDuration, log)
		res.Passed = false
		return res, &executor.ExecError{Check: c.Name, Op: "reference", ExitCode: 1, Err: executor.ErrNonZeroExit}
	}
	return f.result(c, referenceDuration, "copied from store\n"), nil
}

func (f *fakeExecutor) calls() (runs, refs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.runs...), append([]string(nil), f.refs...)
}

// writeFile creates path under root with content.
func writeFile(t *testing.T, root, path, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(path))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

// demoWorkspace lays out a Python project with two independent packages.
func demoWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "src/foo/__init__.py", "def foo():\n    return 1\n")
	writeFile(t, root, "src/bar/__init__.py", "def bar():\n    return 2\n")
	writeFile(t, root, "tests/test_foo.py", "from foo import foo\n\ndef test_foo():\n    assert foo() == 1\n")
	writeFile(t, root, "tests/test_bar.py", "from bar import bar\n\ndef test_bar():\n    assert bar() == 2\n")
	return root
}

func pytestCheck(pkg string) check.Check {
	return check.Check{
		Name:       "pytest-" + pkg,
		Kind:       check.KindDerivation,
		Command:    "pytest -v tests/test_" + pkg + ".py",
		Derivation: ".#checks.${system}.pytest-" + pkg,
		Inputs:     []string{"src/" + pkg, "tests/test_" + pkg + ".py"},
	}
}

func ruffCheck() check.Check {
	return check.Check{
		Name:    "ruff-check",
		Kind:    check.KindScript,
		Command: "ruff check src",
		Inputs:  []string{"src"},
	}
}

func demoCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := NewCatalog(
		Checklist{Name: "foo", Checks: []check.Check{pytestCheck("foo")}},
		Checklist{Name: "bar", Checks: []check.Check{pytestCheck("bar")}},
		Checklist{Name: "linters", Checks: []check.Check{ruffCheck()}},
	)
	require.NoError(t, err)
	return catalog
}

func newTestRunner(t *testing.T, root string, store cache.Store, exec Executor) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerConfig{
		Root:     root,
		Catalog:  demoCatalog(t),
		Store:    store,
		Executor: exec,
	})
	require.NoError(t, err)
	return r
}
