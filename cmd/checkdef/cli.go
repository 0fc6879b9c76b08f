package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/randalmurphal/checkdef/pkg/checkdef"
	"github.com/randalmurphal/checkdef/pkg/checkdef/cache"
	"github.com/randalmurphal/checkdef/pkg/checkdef/config"
	"github.com/randalmurphal/checkdef/pkg/checkdef/executor"
	"github.com/randalmurphal/checkdef/pkg/checkdef/fingerprint"
	"github.com/randalmurphal/checkdef/pkg/checkdef/watch"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
	exitStore  = 3
)

const usageText = `checkdef - run checklists with content-addressed result reuse

Usage: checkdef [options] <command> [args]

Commands:
  checklist-<name> [-v]             Run a checklist ("all" runs every checklist)
  run <name> [-v]                   Same as checklist-<name>
  list                              Print checklists and their checks
  fingerprint <name>                Print fingerprints and cache status without running
  watch <name> [-v]                 Run a checklist, then again whenever its inputs change
  cache stats                       Print result store statistics
  cache prune -older-than DURATION  Delete entries recorded before now-DURATION
  help                              Show this help message

Options:
  -config <path>     Definition file (default: $CHECKDEF_CONFIG, else discovered upwards)
  -root <dir>        Workspace root (default: the definition file's directory)
  -log-level <level> debug, info, warn or error (default: warn)`

// openStore opens the workspace's result store.
var openStore = checkdef.OpenStore

// cli holds what every command needs once the workspace is loaded.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
	ws     *config.Workspace
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, lookupEnv func(string) (string, bool)) int {
	fs := flag.NewFlagSet("checkdef", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprintln(stderr, usageText) }

	configPath := fs.String("config", "", "definition file")
	root := fs.String("root", "", "workspace root")
	logLevel := fs.String("log-level", "warn", "log level")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(stderr, "invalid -log-level %q\n", *logLevel)
		return exitUsage
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "help" {
		fs.Usage()
		return exitOK
	}

	ws, err := loadWorkspace(*configPath, *root, lookupEnv)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading definition: %v\n", err)
		return exitUsage
	}
	c := &cli{stdout: stdout, stderr: stderr, logger: logger, ws: ws}

	switch {
	case strings.HasPrefix(cmd, "checklist-"):
		return c.cmdRun(ctx, cmd, append([]string{cmd}, rest...))
	case cmd == "run":
		return c.cmdRun(ctx, "run", rest)
	case cmd == "list":
		return c.cmdList()
	case cmd == "fingerprint":
		return c.cmdFingerprint(ctx, rest)
	case cmd == "watch":
		return c.cmdWatch(ctx, rest)
	case cmd == "cache":
		return c.cmdCache(ctx, rest)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		fs.Usage()
		return exitUsage
	}
}

func loadWorkspace(path, root string, lookupEnv func(string) (string, bool)) (*config.Workspace, error) {
	if path == "" {
		if v, ok := lookupEnv(config.EnvConfig); ok {
			path = v
		}
	}
	if path == "" {
		start := root
		if start == "" {
			wd, err := os.Getwd()
			if err != nil {
				return nil, err
			}
			start = wd
		}
		found, err := config.Discover(start)
		if err != nil {
			return nil, err
		}
		path = found
	}

	opts := []config.LoadOption{config.WithLookupEnv(lookupEnv)}
	if root != "" {
		opts = append(opts, config.WithRoot(root))
	}
	return config.LoadWorkspace(path, opts...)
}

// runArgs parses "<name> [-v]" with the flag allowed on either side.
func (c *cli) runArgs(cmd string, args []string) (name string, verbose bool, ok bool) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.BoolVar(&verbose, "v", false, "print commands and raw logs")

	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return "", false, false
	}
	extra := fs.Args()
	if name == "" && len(extra) > 0 {
		name, extra = extra[0], extra[1:]
	}
	if len(extra) > 0 {
		fmt.Fprintf(c.stderr, "unexpected arguments: %s\n", strings.Join(extra, " "))
		return "", false, false
	}
	if name == "" {
		fmt.Fprintf(c.stderr, "Usage: checkdef %s <name> [-v]\n", cmd)
		return "", false, false
	}
	return name, verbose, true
}

// session is a runner over an open store.
type session struct {
	runner *checkdef.Runner
	exec   *executor.Executor
	store  cache.Store
}

func (s *session) Close() error {
	return s.store.Close()
}

// open assembles a runner over the workspace's store. The caller closes it.
func (c *cli) open(ctx context.Context) (*session, error) {
	catalog, err := checkdef.CatalogFromWorkspace(c.ws)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, c.ws.Store, c.logger)
	if err != nil {
		return nil, err
	}
	exec := executor.New(c.ws.Root,
		executor.WithShell(c.ws.Script.Shell...),
		executor.WithBuilder(c.ws.Build.Builder()),
		executor.WithEnv(c.ws.Env...),
		executor.WithLogger(c.logger),
	)
	runner, err := checkdef.NewRunner(checkdef.RunnerConfig{
		Root:     c.ws.Root,
		Catalog:  catalog,
		Store:    store,
		Executor: exec,
		Engine:   fingerprint.NewEngine(fingerprint.WithIgnore(c.ws.Ignore...)),
		Expander: c.ws.Templates.Expander(),
		Vars:     c.ws.Templates.Vars,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return &session{runner: runner, exec: exec, store: store}, nil
}

func (c *cli) cmdRun(ctx context.Context, cmd string, args []string) int {
	name, verbose, ok := c.runArgs(cmd, args)
	if !ok {
		return exitUsage
	}

	sess, err := c.open(ctx)
	if err != nil {
		return c.fatal(err)
	}
	defer sess.Close()

	return c.runOnce(ctx, sess.runner, name, verbose)
}

func (c *cli) runOnce(ctx context.Context, runner *checkdef.Runner, name string, verbose bool) int {
	reporter := checkdef.NewReporter(c.stdout, verbose)
	run, err := runner.RunChecklist(ctx, name,
		checkdef.WithLogger(c.logger),
		checkdef.WithReporter(reporter),
	)
	if err != nil {
		return c.fatal(err)
	}
	if !run.Passed() {
		return exitFailed
	}
	return exitOK
}

func (c *cli) cmdList() int {
	catalog, err := checkdef.CatalogFromWorkspace(c.ws)
	if err != nil {
		return c.fatal(err)
	}
	declared := make(map[string]checkdef.Checklist)
	for _, l := range catalog.Checklists() {
		declared[l.Name] = l
	}
	for _, name := range catalog.Names() {
		l, ok := declared[name]
		if !ok {
			fmt.Fprintf(c.stdout, "%s (every checklist)\n", name)
			continue
		}
		fmt.Fprintln(c.stdout, name)
		for _, chk := range l.Checks {
			fmt.Fprintf(c.stdout, "  %s (%s)\n", chk.Name, chk.Kind)
		}
	}
	return exitOK
}

func (c *cli) cmdFingerprint(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(c.stderr, "Usage: checkdef fingerprint <name>")
		return exitUsage
	}

	sess, err := c.open(ctx)
	if err != nil {
		return c.fatal(err)
	}
	defer sess.Close()

	statuses, err := sess.runner.Fingerprints(ctx, args[0])
	if err != nil {
		return c.fatal(err)
	}
	code := exitOK
	for _, st := range statuses {
		label := st.Checklist + "/" + st.Check.Name
		switch {
		case st.Err != nil:
			fmt.Fprintf(c.stdout, "%s error: %v\n", label, st.Err)
			code = exitFailed
		case st.Cached:
			fmt.Fprintf(c.stdout, "%s %s cached (original: %s)\n", label, st.Fingerprint, checkdef.FormatDuration(st.Original))
		case st.Check.IsDerivation():
			fmt.Fprintf(c.stdout, "%s %s not cached\n", label, st.Fingerprint)
		default:
			fmt.Fprintf(c.stdout, "%s %s script\n", label, st.Fingerprint)
		}
		if st.Err == nil {
			if _, build := sess.exec.Describe(st.Check); build != "" {
				fmt.Fprintf(c.stdout, "  build: %s\n", build)
			}
		}
	}
	return code
}

func (c *cli) cmdWatch(ctx context.Context, args []string) int {
	name, verbose, ok := c.runArgs("watch", args)
	if !ok {
		return exitUsage
	}

	sess, err := c.open(ctx)
	if err != nil {
		return c.fatal(err)
	}
	defer sess.Close()

	w, err := watch.New(c.ws.Root, watch.WithIgnore(c.ws.Ignore...), watch.WithLogger(c.logger))
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitFailed
	}
	defer w.Close()

	last, err := fingerprintSet(ctx, sess.runner, name)
	if err != nil {
		return c.fatal(err)
	}
	code := c.runOnce(ctx, sess.runner, name, verbose)
	if code == exitUsage || code == exitStore {
		return code
	}

	// A store failure ends the watch with exitStore.
	watchCtx, stop := context.WithCancel(ctx)
	defer stop()

	err = w.Run(watchCtx, func(ctx context.Context, changed []string) {
		current, err := fingerprintSet(ctx, sess.runner, name)
		if err != nil {
			var storeErr *checkdef.StoreError
			if errors.As(err, &storeErr) {
				code = c.fatal(err)
				stop()
				return
			}
			c.logger.Warn("fingerprint failed", "error", err)
			return
		}
		if sameSet(last, current) {
			return
		}
		last = current
		c.logger.Info("inputs changed", "checklist", name, "paths", changed)
		fmt.Fprintln(c.stdout)
		code = c.runOnce(ctx, sess.runner, name, verbose)
		if code == exitStore {
			stop()
		}
	})
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return exitFailed
	}
	return code
}

// fingerprintSet maps each check to its fingerprint, or to its error text
// when inputs are missing.
func fingerprintSet(ctx context.Context, runner *checkdef.Runner, name string) (map[string]string, error) {
	statuses, err := runner.Fingerprints(ctx, name)
	if err != nil {
		return nil, err
	}
	set := make(map[string]string, len(statuses))
	for _, st := range statuses {
		key := st.Checklist + "/" + st.Check.Name
		if st.Err != nil {
			set[key] = "error: " + st.Err.Error()
			continue
		}
		set[key] = st.Fingerprint
	}
	return set, nil
}

func sameSet(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func (c *cli) cmdCache(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(c.stderr, "Usage: checkdef cache <stats|prune -older-than DURATION>")
		return exitUsage
	}

	var olderThan time.Duration
	switch args[0] {
	case "stats":
		if len(args) != 1 {
			fmt.Fprintln(c.stderr, "Usage: checkdef cache stats")
			return exitUsage
		}
	case "prune":
		fs := flag.NewFlagSet("cache prune", flag.ContinueOnError)
		fs.SetOutput(c.stderr)
		fs.DurationVar(&olderThan, "older-than", -1, "delete entries recorded before now minus this duration")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if olderThan < 0 || fs.NArg() != 0 {
			fmt.Fprintln(c.stderr, "Usage: checkdef cache prune -older-than DURATION")
			return exitUsage
		}
	default:
		fmt.Fprintf(c.stderr, "Unknown cache command: %s\n", args[0])
		return exitUsage
	}

	store, err := openStore(ctx, c.ws.Store, c.logger)
	if err != nil {
		return c.fatal(err)
	}
	defer store.Close()

	if args[0] == "prune" {
		n, err := store.Prune(ctx, time.Now().Add(-olderThan))
		if err != nil {
			return c.fatal(&checkdef.StoreError{Op: "prune", Err: err})
		}
		fmt.Fprintf(c.stdout, "pruned %d entries\n", n)
		return exitOK
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return c.fatal(&checkdef.StoreError{Op: "stats", Err: err})
	}
	fmt.Fprintf(c.stdout, "backend: %s\n", stats.Backend)
	fmt.Fprintf(c.stdout, "entries: %d\n", stats.Entries)
	fmt.Fprintf(c.stdout, "original total: %s\n", checkdef.FormatDuration(stats.Original))
	return exitOK
}

// fatal prints err and maps it to an exit code.
func (c *cli) fatal(err error) int {
	fmt.Fprintf(c.stderr, "Error: %v\n", err)

	var storeErr *checkdef.StoreError
	switch {
	case errors.As(err, &storeErr):
		return exitStore
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return exitFailed
	default:
		return exitUsage
	}
}
