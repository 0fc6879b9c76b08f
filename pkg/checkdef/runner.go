package checkdef

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/checkdef/pkg/checkdef/cache"
	"github.com/randalmurphal/checkdef/pkg/checkdef/check"
	"github.com/randalmurphal/checkdef/pkg/checkdef/executor"
	"github.com/randalmurphal/checkdef/pkg/checkdef/fingerprint"
	"github.com/randalmurphal/checkdef/pkg/checkdef/observability"
	"github.com/randalmurphal/checkdef/pkg/checkdef/template"
)

// Executor runs checks. *executor.Executor is the production implementation.
type Executor interface {
	// Run executes a check once.
	Run(ctx context.Context, c check.Check) (executor.Result, error)
	// Reference re-realizes an already built derivation.
	Reference(ctx context.Context, c check.Check) (executor.Result, error)
}

// RunnerConfig assembles a Runner.
type RunnerConfig struct {
	// Root is the workspace root. Inputs are relative to it.
	Root     string
	Catalog  *Catalog
	Store    cache.Store
	Executor Executor
	// Engine computes fingerprints. Defaults to an engine without ignore patterns.
	Engine *fingerprint.Engine
	// Expander expands placeholders in checks. Defaults to keeping undefined
	// placeholders verbatim.
	Expander *template.Expander
	// Vars are extra placeholder values. root, name, system and checklist
	// cannot be overridden.
	Vars template.Vars
}

// Runner evaluates checklists.
type Runner struct {
	root     string
	catalog  *Catalog
	store    cache.Store
	exec     Executor
	engine   *fingerprint.Engine
	expander *template.Expander
	vars     template.Vars
}

// NewRunner validates cfg and creates a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	if cfg.Executor == nil {
		return nil, ErrNilExecutor
	}
	if cfg.Catalog == nil {
		cfg.Catalog = &Catalog{index: map[string]int{}}
	}
	if cfg.Engine == nil {
		cfg.Engine = fingerprint.NewEngine()
	}
	if cfg.Expander == nil {
		cfg.Expander = template.NewExpander()
	}
	return &Runner{
		root:     cfg.Root,
		catalog:  cfg.Catalog,
		store:    cfg.Store,
		exec:     cfg.Executor,
		engine:   cfg.Engine,
		expander: cfg.Expander,
		vars:     cfg.Vars,
	}, nil
}

// Catalog returns the runner's checklists.
func (r *Runner) Catalog() *Catalog {
	return r.catalog
}

// RunChecklist evaluates every check of the named checklist in declaration
// order. A failing check never stops its siblings; the returned run holds
// every outcome and the error is nil. The error is non-nil only for an
// unknown checklist, an unusable store (*StoreError) or cancellation, in
// which case the run holds the results gathered so far.
//
// Example:
//
//	run, err := runner.RunChecklist(ctx, "checklist-foo",
//	    checkdef.WithReporter(checkdef.NewReporter(os.Stdout, verbose)))
//	if err != nil {
//	    return err
//	}
//	if !run.Passed() {
//	    os.Exit(1)
//	}
func (r *Runner) RunChecklist(ctx context.Context, name string, opts ...RunOption) (run *ChecklistRun, runErr error) {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	name, lists, err := r.catalog.Resolve(name)
	if err != nil {
		return nil, err
	}

	runID := cfg.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := observability.EnrichLogger(cfg.logger, runID, name)

	total := 0
	for _, l := range lists {
		total += len(l.Checks)
	}

	run = &ChecklistRun{RunID: runID, Name: name, StartedAt: time.Now()}
	observability.LogRunStart(logger, runID, name, total)

	ctx, runSpan := cfg.spans.StartRunSpan(ctx, name, runID)
	defer func() {
		spanErr := runErr
		if spanErr == nil && !run.Passed() {
			spanErr = fmt.Errorf("%d of %d checks failed", len(run.Failed()), run.Total())
		}
		cfg.spans.EndSpanWithError(runSpan, spanErr)
	}()

	defer func() {
		run.Duration = time.Since(run.StartedAt)
		if runErr != nil {
			observability.LogRunError(logger, runID, runErr, run.Duration)
			return
		}
		cfg.metrics.RecordChecklistRun(ctx, name, run.Passed(), run.Duration)
		failed := len(run.Failed())
		observability.LogRunComplete(logger, runID, run.Duration, run.Total()-failed, failed)
	}()

	for _, list := range lists {
		section := Section{Checklist: list.Name}
		cfg.reporter.BeginSection(list.Name, len(lists))

		for _, c := range list.Checks {
			if err := ctx.Err(); err != nil {
				run.Sections = append(run.Sections, section)
				return run, err
			}

			res, err := r.evaluate(ctx, list.Name, c, runID, &cfg, logger)
			if err != nil {
				run.Sections = append(run.Sections, section)
				return run, err
			}
			section.Results = append(section.Results, res)
			cfg.reporter.ReportCheck(res)
		}
		run.Sections = append(run.Sections, section)
	}

	cfg.reporter.Summary(run)
	return run, nil
}

// evaluation carries one check through its state machine.
type evaluation struct {
	r         *Runner
	cfg       *runConfig
	logger    *slog.Logger
	runID     string
	checklist string
	state     State
	res       Result
}

func (e *evaluation) advance(next State) {
	if !e.state.CanTransition(next) && e.logger != nil {
		e.logger.Error("invalid check state transition",
			slog.String("check", e.res.Check.Name),
			slog.String("from", e.state.String()),
			slog.String("to", next.String()))
	}
	observability.LogTransition(e.logger, e.res.Check.Name, e.state.String(), next.String())
	e.state = next
}

func (e *evaluation) fail(op string, err error) {
	e.res.Outcome.Passed = false
	e.res.Outcome.Err = &CheckError{Check: e.res.Check.Name, Op: op, Err: err}
	e.advance(StateFailed)
}

func (e *evaluation) pass(next State) {
	e.res.Outcome.Passed = true
	e.advance(next)
}

// evaluate runs one check. The returned error is fatal for the run
// (*StoreError); check failures live in the Result.
func (r *Runner) evaluate(ctx context.Context, checklist string, c check.Check, runID string, cfg *runConfig, logger *slog.Logger) (Result, error) {
	e := &evaluation{
		r:         r,
		cfg:       cfg,
		logger:    logger,
		runID:     runID,
		checklist: checklist,
		res:       Result{Check: c},
	}
	e.advance(StateEvaluating)

	ctx, span := cfg.spans.StartCheckSpan(ctx, c.Name, c.Kind.String())
	if err := e.run(ctx); err != nil {
		cfg.spans.EndSpanWithError(span, err)
		return e.res, err
	}

	out := &e.res.Outcome
	out.Status = e.state.status()
	cfg.metrics.RecordCheckExecution(ctx, c.Name, c.Kind.String(), string(out.Status), out.Reference)
	if out.Err != nil {
		observability.LogCheckError(logger, c.Name, out.Err)
	} else {
		observability.LogCheckComplete(logger, c.Name, string(out.Status), out.Reference)
	}
	cfg.spans.EndSpanWithError(span, out.Err)

	e.advance(StateReported)
	return e.res, nil
}

func (e *evaluation) run(ctx context.Context) error {
	r, c := e.r, e.res.Check

	resolved, err := r.resolve(c, e.checklist)
	if err != nil {
		e.fail("expand", err)
		return nil
	}
	e.res.Check = resolved

	fp, err := r.engine.Compute(r.root, resolved)
	if err != nil {
		e.fail("fingerprint", err)
		return nil
	}
	key := fp.String()
	e.res.Outcome.Fingerprint = key
	observability.LogCheckStart(e.logger, c.Name, c.Kind.String(), key)

	// Script checks never consult the store.
	if !resolved.IsDerivation() {
		out, err := r.exec.Run(ctx, resolved)
		applyResult(&e.res.Outcome, out)
		if err != nil {
			e.fail("execute", err)
			return nil
		}
		e.pass(StateBuilt)
		return nil
	}

	entry, err := r.store.Lookup(ctx, key)
	switch {
	case err == nil && entry.Passed:
		e.cfg.metrics.RecordCacheLookup(ctx, c.Name, true)
		e.cfg.spans.AddSpanEvent(ctx, "cache.hit")
		observability.LogCacheHit(e.logger, c.Name, key, entry.OriginalDuration)

		out, err := r.exec.Reference(ctx, resolved)
		applyResult(&e.res.Outcome, out)
		e.res.Outcome.Original = entry.OriginalDuration
		if err != nil {
			e.fail("reference", err)
			return nil
		}
		e.pass(StateCacheHit)
		return nil

	case err == nil, errors.Is(err, cache.ErrNotFound):
		e.cfg.metrics.RecordCacheLookup(ctx, c.Name, false)

	default:
		return &StoreError{Op: "lookup", Err: err}
	}

	out, err := r.exec.Run(ctx, resolved)
	applyResult(&e.res.Outcome, out)
	if err != nil {
		e.fail("execute", err)
		return nil
	}

	inserted, err := r.store.Record(ctx, cache.NewEntry(key, c.Name, true, out.Duration).WithRunID(e.runID))
	if err != nil {
		return &StoreError{Op: "record", Err: err}
	}
	observability.LogCacheRecord(e.logger, c.Name, key, inserted)
	e.pass(StateBuilt)
	return nil
}

// resolve expands template variables in the check's command, installable
// and inputs.
func (r *Runner) resolve(c check.Check, checklist string) (check.Check, error) {
	vars := template.CheckVars(r.root, c.Name, checklist)
	for k, v := range r.vars {
		if _, standard := vars[k]; !standard {
			vars = vars.With(k, v)
		}
	}
	out := c

	var err error
	if out.Command, err = r.expander.Expand(c.Command, vars); err != nil {
		return c, err
	}
	if out.Derivation, err = r.expander.Expand(c.Derivation, vars); err != nil {
		return c, err
	}
	if out.Inputs, err = r.expander.ExpandAll(c.Inputs, vars); err != nil {
		return c, err
	}
	return out, nil
}

func applyResult(o *Outcome, res executor.Result) {
	o.Reference = res.Duration
	o.Command = res.Command
	o.BuildCommand = res.BuildCommand
	o.Log = res.Log
}
