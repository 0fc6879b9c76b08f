/*
Package config loads checkdef workspace definitions.

A definition is a YAML, JSON or TOML document. It is decoded into a Config,
a map wrapper with typed accessors that return a default when a key is
missing or has the wrong type:

	cfg, err := config.FromFile("checkdef.yaml")
	backend := cfg.String("store.backend", "sqlite") // dotted paths descend into tables
	timeout := cfg.Duration("timeout", 0)            // "10m" or seconds

LoadWorkspace validates the document against the embedded JSON Schema,
resolves checklist members (references to top-level checks by name, or
inline check tables) and applies the CHECKDEF_STORE and CHECKDEF_REDIS_ADDR
environment overrides:

	ws, err := config.LoadWorkspace(path)
	for _, list := range ws.Checklists {
	    fmt.Println(list.Name, len(list.Checks))
	}

Relative store paths are resolved against the workspace root, which defaults
to the directory holding the definition file. Discover walks up from a
directory to find checkdef.yaml, checkdef.yml, checkdef.json or
checkdef.toml.
*/
package config
