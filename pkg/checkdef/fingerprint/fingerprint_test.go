package fingerprint_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/checkdef/pkg/checkdef/check"
	"github.com/randalmurphal/checkdef/pkg/checkdef/fingerprint"
)

// writeTree creates files under root. Keys are slash-separated relative paths.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func demoWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/foo/__init__.py": "def foo(): return 1\n",
		"src/bar/__init__.py": "def bar(): return 2\n",
		"tests/test_foo.py":   "def test_foo(): pass\n",
		"tests/test_bar.py":   "def test_bar(): pass\n",
	})
	return root
}

func fooCheck() check.Check {
	return check.Check{
		Name:       "pytest-foo",
		Kind:       check.KindDerivation,
		Command:    "pytest -v tests/test_foo.py",
		Derivation: ".#checks.x86_64-linux.pytest-foo",
		Inputs:     []string{"src/foo", "tests/test_foo.py"},
	}
}

func barCheck() check.Check {
	return check.Check{
		Name:       "pytest-bar",
		Kind:       check.KindDerivation,
		Command:    "pytest -v tests/test_bar.py",
		Derivation: ".#checks.x86_64-linux.pytest-bar",
		Inputs:     []string{"src/bar", "tests/test_bar.py"},
	}
}

func TestCompute_Deterministic(t *testing.T) {
	root := demoWorkspace(t)
	engine := fingerprint.NewEngine()

	a, err := engine.Compute(root, fooCheck())
	require.NoError(t, err)
	b, err := engine.Compute(root, fooCheck())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, fingerprint.Fingerprint{}, a)
	assert.Len(t, a.String(), 2*fingerprint.Size)
}

func TestCompute_SelectiveInvalidation(t *testing.T) {
	root := demoWorkspace(t)
	engine := fingerprint.NewEngine()

	fooBefore, err := engine.Compute(root, fooCheck())
	require.NoError(t, err)
	barBefore, err := engine.Compute(root, barCheck())
	require.NoError(t, err)

	f, err := os.OpenFile(filepath.Join(root, "src/bar/__init__.py"), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("# timestamp change\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	fooAfter, err := engine.Compute(root, fooCheck())
	require.NoError(t, err)
	barAfter, err := engine.Compute(root, barCheck())
	require.NoError(t, err)

	assert.Equal(t, fooBefore, fooAfter, "foo must not see bar's change")
	assert.NotEqual(t, barBefore, barAfter, "bar must see its own change")
}

func TestCompute_FieldsContribute(t *testing.T) {
	root := demoWorkspace(t)
	engine := fingerprint.NewEngine()
	base, err := engine.Compute(root, fooCheck())
	require.NoError(t, err)

	mutations := map[string]func(c *check.Check){
		"command":    func(c *check.Check) { c.Command += " -x" },
		"kind":       func(c *check.Check) { c.Kind = check.KindScript },
		"derivation": func(c *check.Check) { c.Derivation = ".#other" },
		"inputs":     func(c *check.Check) { c.Inputs = []string{"src/foo"} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			c := fooCheck()
			mutate(&c)
			got, err := engine.Compute(root, c)
			require.NoError(t, err)
			assert.NotEqual(t, base, got)
		})
	}
}

func TestCompute_DisjointInputsSameCommand(t *testing.T) {
	root := demoWorkspace(t)
	writeTree(t, root, map[string]string{"a/x.txt": "same", "b/x.txt": "same"})
	engine := fingerprint.NewEngine()

	a := check.Check{Name: "a", Kind: check.KindScript, Command: "cat x.txt", Inputs: []string{"a"}}
	b := check.Check{Name: "b", Kind: check.KindScript, Command: "cat x.txt", Inputs: []string{"b"}}

	fa, err := engine.Compute(root, a)
	require.NoError(t, err)
	fb, err := engine.Compute(root, b)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)
}

func TestCompute_InputOrderAndDuplicates(t *testing.T) {
	root := demoWorkspace(t)
	engine := fingerprint.NewEngine()

	c1 := fooCheck()
	c2 := fooCheck()
	c2.Inputs = []string{"tests/test_foo.py", "./src/foo", "src/foo/__init__.py", "src/foo"}

	f1, err := engine.Compute(root, c1)
	require.NoError(t, err)
	f2, err := engine.Compute(root, c2)
	require.NoError(t, err)
	assert.Equal(t, f1, f2)
}

func TestCompute_MissingInput(t *testing.T) {
	root := demoWorkspace(t)
	c := fooCheck()
	c.Inputs = append(c.Inputs, "src/missing")

	_, err := fingerprint.NewEngine().Compute(root, c)

	var missing *fingerprint.MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "src/missing", missing.Path)
	assert.Equal(t, "pytest-foo", missing.Check)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestCompute_RejectsEscapingPaths(t *testing.T) {
	root := demoWorkspace(t)
	for _, p := range []string{"../etc", "/etc/passwd", "src/../../x"} {
		c := fooCheck()
		c.Inputs = []string{p}
		_, err := fingerprint.NewEngine().Compute(root, c)
		assert.ErrorIs(t, err, fingerprint.ErrOutsideRoot, p)
	}
}

func TestCompute_DeclaredSymlinkFollowsContent(t *testing.T) {
	tests := []struct {
		name   string
		target string
		edit   string
	}{
		{"directory", "real", "real/a.py"},
		{"file", "real/a.py", "real/a.py"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeTree(t, root, map[string]string{"real/a.py": "x = 1\n"})
			require.NoError(t, os.Symlink(tt.target, filepath.Join(root, "src")))

			c := fooCheck()
			c.Inputs = []string{"src"}
			engine := fingerprint.NewEngine()

			before, err := engine.Compute(root, c)
			require.NoError(t, err)

			writeTree(t, root, map[string]string{tt.edit: "x = 2\n"})
			after, err := engine.Compute(root, c)
			require.NoError(t, err)

			assert.NotEqual(t, before, after)
		})
	}
}

func TestCompute_DeclaredSymlinkOutsideRoot(t *testing.T) {
	outside := t.TempDir()
	writeTree(t, outside, map[string]string{"a.py": "x = 1\n"})
	root := demoWorkspace(t)
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "vendor")))

	c := fooCheck()
	c.Inputs = []string{"vendor"}
	_, err := fingerprint.NewEngine().Compute(root, c)
	assert.ErrorIs(t, err, fingerprint.ErrOutsideRoot)
}

func TestCompute_DanglingSymlinkIsMissing(t *testing.T) {
	root := demoWorkspace(t)
	require.NoError(t, os.Symlink("nowhere", filepath.Join(root, "src", "gone")))

	c := fooCheck()
	c.Inputs = []string{"src/gone"}
	_, err := fingerprint.NewEngine().Compute(root, c)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

// Links inside a declared directory count by target, not by content.
func TestCompute_NestedSymlinkHashesTarget(t *testing.T) {
	root := demoWorkspace(t)
	writeTree(t, root, map[string]string{"shared/util.py": "u = 1\n"})
	require.NoError(t, os.Symlink(filepath.Join("..", "..", "shared"), filepath.Join(root, "src", "foo", "shared")))

	c := fooCheck()
	engine := fingerprint.NewEngine()
	before, err := engine.Compute(root, c)
	require.NoError(t, err)

	writeTree(t, root, map[string]string{"shared/util.py": "u = 2\n"})
	unchanged, err := engine.Compute(root, c)
	require.NoError(t, err)
	assert.Equal(t, before, unchanged)

	require.NoError(t, os.Remove(filepath.Join(root, "src", "foo", "shared")))
	require.NoError(t, os.Symlink(filepath.Join("..", "..", "tests"), filepath.Join(root, "src", "foo", "shared")))
	retargeted, err := engine.Compute(root, c)
	require.NoError(t, err)
	assert.NotEqual(t, before, retargeted)

	c.Inputs = append(c.Inputs, "shared")
	withTarget, err := engine.Compute(root, c)
	require.NoError(t, err)
	writeTree(t, root, map[string]string{"shared/util.py": "u = 3\n"})
	edited, err := engine.Compute(root, c)
	require.NoError(t, err)
	assert.NotEqual(t, withTarget, edited)
}

func TestCompute_Ignore(t *testing.T) {
	root := demoWorkspace(t)
	engine := fingerprint.NewEngine(fingerprint.WithIgnore("__pycache__", "*.pyc"))

	before, err := engine.Compute(root, fooCheck())
	require.NoError(t, err)

	writeTree(t, root, map[string]string{
		"src/foo/__pycache__/mod.cpython-312.pyc": "bytecode",
		"src/foo/stale.pyc":                       "bytecode",
	})
	after, err := engine.Compute(root, fooCheck())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	plain, err := fingerprint.NewEngine().Compute(root, fooCheck())
	require.NoError(t, err)
	assert.NotEqual(t, after, plain, "ignore patterns are part of the digest")
}

func TestCompute_ExecutableBit(t *testing.T) {
	root := demoWorkspace(t)
	engine := fingerprint.NewEngine()
	c := check.Check{Name: "s", Kind: check.KindScript, Command: "./run.sh", Inputs: []string{"run.sh"}}
	writeTree(t, root, map[string]string{"run.sh": "#!/bin/sh\ntrue\n"})

	before, err := engine.Compute(root, c)
	require.NoError(t, err)
	require.NoError(t, os.Chmod(filepath.Join(root, "run.sh"), 0o755))
	after, err := engine.Compute(root, c)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestNormalizeInputs(t *testing.T) {
	got, err := fingerprint.NormalizeInputs([]string{"src/foo/x.py", "src", "src-extra", "tests/", "src/bar"})
	require.NoError(t, err)
	assert.Equal(t, []string{"src", "src-extra", "tests"}, got)
}
