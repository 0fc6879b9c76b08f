package fingerprint_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/randalmurphal/checkdef/pkg/checkdef/check"
	"github.com/randalmurphal/checkdef/pkg/checkdef/fingerprint"
)

// For any file contents, repeated computation over unchanged inputs yields
// the same fingerprint.
func TestCompute_Idempotent_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	engine := fingerprint.NewEngine()

	properties.Property("unchanged inputs give equal fingerprints", prop.ForAll(
		func(content, command string) bool {
			root := t.TempDir()
			if err := os.WriteFile(filepath.Join(root, "input.txt"), []byte(content), 0o644); err != nil {
				return false
			}
			c := check.Check{Name: "c", Kind: check.KindScript, Command: command, Inputs: []string{"input.txt"}}

			first, err := engine.Compute(root, c)
			if err != nil {
				return false
			}
			second, err := engine.Compute(root, c)
			if err != nil {
				return false
			}
			return first == second
		},
		gen.AnyString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// For any edit to B's inputs, A's fingerprint is unchanged when the input
// sets do not overlap, and B's fingerprint changes.
func TestCompute_SelectiveInvalidation_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	engine := fingerprint.NewEngine()
	a := check.Check{Name: "a", Kind: check.KindDerivation, Command: "pytest a", Derivation: ".#a", Inputs: []string{"mod_a"}}
	b := check.Check{Name: "b", Kind: check.KindDerivation, Command: "pytest b", Derivation: ".#b", Inputs: []string{"mod_b"}}

	properties.Property("editing B never changes A", prop.ForAll(
		func(aContent, bContent, appended string) bool {
			root := t.TempDir()
			for dir, content := range map[string]string{"mod_a": aContent, "mod_b": bContent} {
				if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
					return false
				}
				if err := os.WriteFile(filepath.Join(root, dir, "__init__.py"), []byte(content), 0o644); err != nil {
					return false
				}
			}

			aBefore, err := engine.Compute(root, a)
			if err != nil {
				return false
			}
			bBefore, err := engine.Compute(root, b)
			if err != nil {
				return false
			}

			edited := bContent + appended
			if err := os.WriteFile(filepath.Join(root, "mod_b", "__init__.py"), []byte(edited), 0o644); err != nil {
				return false
			}

			aAfter, err := engine.Compute(root, a)
			if err != nil {
				return false
			}
			bAfter, err := engine.Compute(root, b)
			if err != nil {
				return false
			}
			return aBefore == aAfter && bBefore != bAfter
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.TestingRun(t)
}
