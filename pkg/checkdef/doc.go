// Package checkdef runs named checklists of checks and caches derivation
// outcomes by content fingerprint.
//
// A workspace declares checks and groups them into checklists. Script checks
// run their command directly and always report one duration. Derivation
// checks are built through the build system; once a fingerprint of their
// declared inputs has passed, later runs look the fingerprint up in the
// result store, re-realize the artifact from the build system's store and
// report both the original and the reference duration.
//
// # Basic Usage
//
//	ws, err := config.LoadWorkspace("checkdef.yaml")
//	catalog, err := checkdef.CatalogFromWorkspace(ws)
//	store, err := checkdef.OpenStore(ctx, ws.Store, logger)
//	defer store.Close()
//
//	runner, err := checkdef.NewRunner(checkdef.RunnerConfig{
//	    Root:     ws.Root,
//	    Catalog:  catalog,
//	    Store:    store,
//	    Executor: executor.New(ws.Root, executor.WithBuilder(ws.Build.Builder())),
//	    Engine:   fingerprint.NewEngine(fingerprint.WithIgnore(ws.Ignore...)),
//	})
//	run, err := runner.RunChecklist(ctx, "checklist-foo",
//	    checkdef.WithReporter(checkdef.NewReporter(os.Stdout, verbose)))
//
// # Checklists
//
// Names may carry a "checklist-" prefix. The name "all" runs every declared
// checklist in declaration order, one section each, unless the workspace
// declares a checklist called "all" itself.
//
// # Errors
//
// A failing check never stops its siblings; its error is kept in the
// Outcome as a *CheckError. RunChecklist itself fails only for an unknown
// checklist (ErrUnknownChecklist), an unusable result store (*StoreError) or
// cancellation of the context.
package checkdef
