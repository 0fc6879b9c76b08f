package checkdef

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Reporter renders results as the text the CLI prints.
//
//	pytest-foo PASSED (original: 10.017s reference: 0.067s)
//	ruff-check PASSED (0.052s)
//	mypy FAILED (1.204s)
//	  error: check mypy execute: mypy script: exit status 1
//
// With verbose set, every check is preceded by its build-system command
// (derivation checks only) and underlying command and followed by its raw
// log. Otherwise logs are printed only for failed checks.
//
// A nil *Reporter discards everything.
type Reporter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

// NewReporter creates a Reporter writing to w.
func NewReporter(w io.Writer, verbose bool) *Reporter {
	return &Reporter{w: w, verbose: verbose}
}

// BeginSection writes a heading when a run has more than one section.
func (r *Reporter) BeginSection(checklist string, sections int) {
	if r == nil || sections < 2 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "=== %s ===\n", checklist)
}

// ReportCheck writes one check's result.
func (r *Reporter) ReportCheck(res Result) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	o := res.Outcome
	if r.verbose {
		if o.BuildCommand != "" {
			fmt.Fprintf(r.w, "Nix build command: %s\n", o.BuildCommand)
		}
		fmt.Fprintf(r.w, "Underlying command: %s\n", o.Command)
		r.writeLog(o.Log)
	}

	fmt.Fprintln(r.w, StatusLine(res))
	if o.Err != nil {
		fmt.Fprintf(r.w, "  error: %v\n", o.Err)
		if !r.verbose {
			r.writeLog(o.Log)
		}
	}
}

// Summary writes the closing line of a run.
func (r *Reporter) Summary(run *ChecklistRun) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, SummaryLine(run))
}

// Render writes a complete run.
func (r *Reporter) Render(run *ChecklistRun) {
	for _, s := range run.Sections {
		r.BeginSection(s.Checklist, len(run.Sections))
		for _, res := range s.Results {
			r.ReportCheck(res)
		}
	}
	r.Summary(run)
}

func (r *Reporter) writeLog(log string) {
	if log == "" {
		return
	}
	io.WriteString(r.w, log)
	if !strings.HasSuffix(log, "\n") {
		io.WriteString(r.w, "\n")
	}
}

// StatusLine returns the one-line result for a check. Cache hits carry both
// the original and the reference duration; everything else carries one.
func StatusLine(res Result) string {
	o := res.Outcome
	switch {
	case !o.Passed:
		return fmt.Sprintf("%s FAILED (%s)", res.Check.Name, FormatDuration(o.Reference))
	case o.CacheHit():
		return fmt.Sprintf("%s PASSED (original: %s reference: %s)",
			res.Check.Name, FormatDuration(o.Original), FormatDuration(o.Reference))
	default:
		return fmt.Sprintf("%s PASSED (%s)", res.Check.Name, FormatDuration(o.Reference))
	}
}

// SummaryLine returns "All checks passed!" or the count and names of the
// failed checks.
func SummaryLine(run *ChecklistRun) string {
	failed := run.Failed()
	if len(failed) == 0 {
		return "All checks passed!"
	}
	names := make([]string, len(failed))
	for i, f := range failed {
		names[i] = f.Check.Name
	}
	return fmt.Sprintf("%d of %d checks failed: %s", len(failed), run.Total(), strings.Join(names, ", "))
}

// FormatDuration renders d in seconds with millisecond precision.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}
