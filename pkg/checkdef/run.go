package checkdef

import (
	"time"

	"github.com/randalmurphal/checkdef/pkg/checkdef/check"
)

// Outcome is the evaluated result of one check.
type Outcome struct {
	Passed bool
	Status Status

	// Reference is the duration measured in this run.
	Reference time.Duration

	// Original is the duration recorded when the fingerprint was first
	// evaluated. Set only for cache hits.
	Original time.Duration

	Fingerprint  string
	Command      string
	BuildCommand string
	Log          string

	// Err is set for failed checks, usually a *CheckError.
	Err error
}

// CacheHit reports whether the outcome was replayed from the store.
func (o Outcome) CacheHit() bool {
	return o.Status == StatusCacheHit
}

// Result pairs a check with its outcome.
type Result struct {
	Check   check.Check
	Outcome Outcome
}

// Section is one checklist's results, in declaration order.
type Section struct {
	Checklist string
	Results   []Result
}

// ChecklistRun is one invocation of a named checklist. A run of "all" has
// one section per declared checklist; any other run has exactly one.
type ChecklistRun struct {
	RunID     string
	Name      string
	Sections  []Section
	StartedAt time.Time
	Duration  time.Duration
}

// Passed reports whether every check passed.
func (r *ChecklistRun) Passed() bool {
	return len(r.Failed()) == 0
}

// Total returns the number of evaluated checks.
func (r *ChecklistRun) Total() int {
	n := 0
	for _, s := range r.Sections {
		n += len(s.Results)
	}
	return n
}

// Failed returns the failed results in evaluation order.
func (r *ChecklistRun) Failed() []Result {
	var failed []Result
	for _, s := range r.Sections {
		for _, res := range s.Results {
			if !res.Outcome.Passed {
				failed = append(failed, res)
			}
		}
	}
	return failed
}

// Result returns the first result for the named check.
func (r *ChecklistRun) Result(name string) (Result, bool) {
	for _, s := range r.Sections {
		for _, res := range s.Results {
			if res.Check.Name == name {
				return res, true
			}
		}
	}
	return Result{}, false
}
