package checkdef

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/checkdef/pkg/checkdef/check"
)

func builtResult() Result {
	c := pytestCheck("foo")
	c.Derivation = ".#checks.x86_64-linux.pytest-foo"
	return Result{Check: c, Outcome: Outcome{
		Passed:       true,
		Status:       StatusBuilt,
		Reference:    buildDuration,
		Command:      c.Command,
		BuildCommand: "nix build --no-link --print-build-logs " + c.Derivation,
		Log:          "tests/test_foo.py::test_foo PASSED\n",
	}}
}

func hitResult() Result {
	r := builtResult()
	r.Outcome.Status = StatusCacheHit
	r.Outcome.Original = buildDuration
	r.Outcome.Reference = referenceDuration
	return r
}

func scriptResult() Result {
	c := ruffCheck()
	return Result{Check: c, Outcome: Outcome{
		Passed:    true,
		Status:    StatusBuilt,
		Reference: scriptDuration,
		Command:   c.Command,
		Log:       "All checks passed!\n",
	}}
}

func failedResult() Result {
	c := check.Check{Name: "mypy", Kind: check.KindScript, Command: "mypy src"}
	return Result{Check: c, Outcome: Outcome{
		Status:    StatusFailed,
		Reference: 1204 * time.Millisecond,
		Command:   c.Command,
		Log:       "src/foo/__init__.py:1: error: missing return type",
		Err:       &CheckError{Check: "mypy", Op: "execute", Err: errors.New("exit status 1")},
	}}
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name string
		res  Result
		want string
	}{
		{"built derivation", builtResult(), "pytest-foo PASSED (10.017s)"},
		{"cache hit", hitResult(), "pytest-foo PASSED (original: 10.017s reference: 0.067s)"},
		{"script", scriptResult(), "ruff-check PASSED (0.052s)"},
		{"failed", failedResult(), "mypy FAILED (1.204s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusLine(tt.res))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.000s", FormatDuration(0))
	assert.Equal(t, "0.067s", FormatDuration(67*time.Millisecond))
	assert.Equal(t, "10.017s", FormatDuration(10017*time.Millisecond))
	assert.Equal(t, "90.000s", FormatDuration(90*time.Second))
}

func TestReporter_Quiet(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, false)
	r.ReportCheck(hitResult())
	r.ReportCheck(scriptResult())

	out := buf.String()
	assert.Equal(t,
		"pytest-foo PASSED (original: 10.017s reference: 0.067s)\n"+
			"ruff-check PASSED (0.052s)\n",
		out)
	assert.NotContains(t, out, "Nix build command:")
	assert.NotContains(t, out, "Underlying command:")
}

func TestReporter_Verbose(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, true)
	r.ReportCheck(builtResult())
	r.ReportCheck(scriptResult())

	assert.Equal(t,
		"Nix build command: nix build --no-link --print-build-logs .#checks.x86_64-linux.pytest-foo\n"+
			"Underlying command: pytest -v tests/test_foo.py\n"+
			"tests/test_foo.py::test_foo PASSED\n"+
			"pytest-foo PASSED (10.017s)\n"+
			"Underlying command: ruff check src\n"+
			"All checks passed!\n"+
			"ruff-check PASSED (0.052s)\n",
		buf.String())
}

func TestReporter_FailureShowsLog(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		var buf bytes.Buffer
		NewReporter(&buf, verbose).ReportCheck(failedResult())

		out := buf.String()
		assert.Contains(t, out, "mypy FAILED (1.204s)\n  error: check mypy execute: exit status 1\n")
		assert.Equal(t, 1, strings.Count(out, "missing return type"), "verbose=%v", verbose)
		assert.True(t, strings.HasSuffix(out, "\n"))
	}
}

func TestReporter_RenderSections(t *testing.T) {
	run := &ChecklistRun{Name: "all", Sections: []Section{
		{Checklist: "foo", Results: []Result{hitResult()}},
		{Checklist: "linters", Results: []Result{scriptResult(), failedResult()}},
	}}

	var buf bytes.Buffer
	NewReporter(&buf, false).Render(run)
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "=== foo ===\n"))
	assert.Contains(t, out, "=== linters ===\n")
	assert.True(t, strings.HasSuffix(out, "1 of 3 checks failed: mypy\n"))
	assert.NotContains(t, out, "All checks passed!")
}

func TestReporter_SingleSectionHasNoHeading(t *testing.T) {
	run := &ChecklistRun{Name: "linters", Sections: []Section{
		{Checklist: "linters", Results: []Result{scriptResult()}},
	}}

	var buf bytes.Buffer
	NewReporter(&buf, false).Render(run)
	assert.Equal(t, "ruff-check PASSED (0.052s)\nAll checks passed!\n", buf.String())
}

func TestReporter_Nil(t *testing.T) {
	var r *Reporter
	assert.NotPanics(t, func() {
		r.BeginSection("foo", 2)
		r.ReportCheck(failedResult())
		r.Summary(&ChecklistRun{})
	})
}

func TestSummaryLine(t *testing.T) {
	failing := failedResult()
	other := failedResult()
	other.Check.Name = "pytest-bar"

	run := &ChecklistRun{Sections: []Section{{Results: []Result{failing, scriptResult(), other}}}}
	assert.Equal(t, "2 of 3 checks failed: mypy, pytest-bar", SummaryLine(run))
	assert.Equal(t, "All checks passed!", SummaryLine(&ChecklistRun{}))
}

// Only cache hits carry two durations, and every line names its check.
func TestStatusLine_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("original appears only on cache hits", prop.ForAll(
		func(name string, ms1, ms2 int64, status int) bool {
			st := []Status{StatusBuilt, StatusCacheHit, StatusFailed}[status]
			res := Result{
				Check: check.Check{Name: name},
				Outcome: Outcome{
					Passed:    st != StatusFailed,
					Status:    st,
					Original:  time.Duration(ms1) * time.Millisecond,
					Reference: time.Duration(ms2) * time.Millisecond,
				},
			}
			line := StatusLine(res)
			if !strings.HasPrefix(line, name+" ") || !strings.HasSuffix(line, "s)") {
				return false
			}
			return strings.Contains(line, "original:") == (st == StatusCacheHit)
		},
		gen.Identifier(),
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 1_000_000),
		gen.IntRange(0, 2),
	))

	properties.Property("verbosity controls command lines", prop.ForAll(
		func(verbose bool) bool {
			var buf bytes.Buffer
			r := NewReporter(&buf, verbose)
			r.ReportCheck(builtResult())
			r.ReportCheck(hitResult())
			out := buf.String()
			return strings.Contains(out, "Nix build command:") == verbose &&
				strings.Contains(out, "Underlying command:") == verbose
		},
		gen.Bool(),
	))

	properties.TestingRun(t)
}
