package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/randalmurphal/checkdef/pkg/checkdef/cache"
	"github.com/randalmurphal/checkdef/pkg/checkdef/check"
	"github.com/randalmurphal/checkdef/pkg/checkdef/executor"
	"github.com/randalmurphal/checkdef/pkg/checkdef/template"
)

// Environment variables that override the definition file.
const (
	EnvConfig    = "CHECKDEF_CONFIG"
	EnvStore     = "CHECKDEF_STORE"
	EnvRedisAddr = "CHECKDEF_REDIS_ADDR"
)

// Store fallback policies.
const (
	FallbackNone    = "none"
	FallbackRebuild = "rebuild"
)

// StateDir holds checkdef's own files under the workspace root. It is always
// ignored by fingerprinting.
const StateDir = ".checkdef"

// DefaultIgnore applies when the definition has no ignore list.
var DefaultIgnore = []string{".git", StateDir, "__pycache__", "*.pyc"}

// Workspace is a validated, typed definition.
type Workspace struct {
	// Path is the definition file, empty when built from memory.
	Path string
	// Root is the directory inputs are relative to and children run in.
	Root string

	Ignore []string
	Store  StoreConfig
	Build  BuildConfig
	Script ScriptConfig

	// Env holds KEY=value pairs added to every child process, sorted by key.
	Env []string
	// Templates controls how check commands are expanded.
	Templates TemplateConfig

	// Checks are the top-level checks available for reference by name.
	Checks []check.Check
	// Checklists are in declaration order with references resolved.
	Checklists []Checklist
}

// Checklist is a named, ordered list of checks.
type Checklist struct {
	Name   string
	Checks []check.Check
}

// StoreConfig selects the result store.
type StoreConfig struct {
	Backend  string
	Path     string
	Fallback string
	Redis    RedisConfig
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Options converts the store settings for cache.Open.
func (s StoreConfig) Options() cache.Options {
	return cache.Options{
		Backend: s.Backend,
		Path:    s.Path,
		Redis: cache.RedisOptions{
			Addr:     s.Redis.Addr,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
			Prefix:   s.Redis.Prefix,
			TTL:      s.Redis.TTL,
		},
	}
}

// BuildConfig is the build-system command used for derivation checks.
type BuildConfig struct {
	Program string
	Args    []string
}

// Builder returns the executor builder for these settings.
func (b BuildConfig) Builder() executor.CommandBuilder {
	return executor.CommandBuilder{Program: b.Program, Args: b.Args}
}

// ScriptConfig is the shell used for script checks.
type ScriptConfig struct {
	Shell []string
}

// TemplateConfig controls placeholder expansion in checks.
type TemplateConfig struct {
	// Undefined is applied to placeholders with no value.
	Undefined template.MissingAction
	// Vars are user variables. The standard variables take precedence.
	Vars template.Vars
}

// Expander returns an expander honouring Undefined.
func (t TemplateConfig) Expander() *template.Expander {
	return template.NewExpander(template.WithMissingAction(t.Undefined))
}

// LoadOption configures workspace loading.
type LoadOption func(*loadOptions)

type loadOptions struct {
	root      string
	lookupEnv func(string) (string, bool)
}

// WithRoot overrides the workspace root. By default it is the directory
// containing the definition file.
func WithRoot(dir string) LoadOption {
	return func(o *loadOptions) { o.root = dir }
}

// WithLookupEnv replaces os.LookupEnv for environment overrides.
func WithLookupEnv(fn func(string) (string, bool)) LoadOption {
	return func(o *loadOptions) { o.lookupEnv = fn }
}

// LoadWorkspace reads, validates and resolves a definition file.
func LoadWorkspace(path string, opts ...LoadOption) (*Workspace, error) {
	cfg, err := FromFile(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	ws, err := NewWorkspace(cfg, filepath.Dir(abs), opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ws.Path = abs
	return ws, nil
}

// NewWorkspace validates cfg and resolves it against root.
func NewWorkspace(cfg Config, root string, opts ...LoadOption) (*Workspace, error) {
	o := loadOptions{root: root, lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(o.root)
	if err != nil {
		return nil, err
	}

	ws := &Workspace{
		Root:   absRoot,
		Ignore: cfg.StringSlice("ignore", DefaultIgnore),
		Build: BuildConfig{
			Program: cfg.String("build.program", "nix"),
			Args:    cfg.StringSlice("build.args", []string{"build", "--no-link", "--print-build-logs"}),
		},
		Script: ScriptConfig{
			Shell: cfg.StringSlice("script.shell", executor.DefaultShell),
		},
	}
	if !slices.Contains(ws.Ignore, StateDir) {
		ws.Ignore = append(slices.Clone(ws.Ignore), StateDir)
	}

	ws.Store = storeConfig(cfg.Section("store"), absRoot, o.lookupEnv)
	ws.Env = envPairs(cfg.Section("env"))

	undefined, err := template.ParseMissingAction(cfg.String("templates.undefined", ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	ws.Templates.Undefined = undefined
	if vars := cfg.Section("templates.vars").Raw(); len(vars) > 0 {
		ws.Templates.Vars = make(template.Vars, len(vars))
		for k, v := range vars {
			ws.Templates.Vars[k] = fmt.Sprint(v)
		}
	}

	byName := make(map[string]check.Check)
	for i, item := range cfg.List("checks") {
		c, err := parseCheck(item)
		if err != nil {
			return nil, fmt.Errorf("checks[%d]: %w", i, err)
		}
		if _, dup := byName[c.Name]; dup {
			return nil, fmt.Errorf("%w: check %q defined twice", ErrInvalidDefinition, c.Name)
		}
		byName[c.Name] = c
		ws.Checks = append(ws.Checks, c)
	}

	seen := make(map[string]bool)
	for i, item := range cfg.List("checklists") {
		section, ok := asMap(item)
		if !ok {
			return nil, fmt.Errorf("%w: checklists[%d] is not a table", ErrInvalidDefinition, i)
		}
		list, err := parseChecklist(New(section), byName)
		if err != nil {
			return nil, fmt.Errorf("checklists[%d]: %w", i, err)
		}
		if seen[list.Name] {
			return nil, fmt.Errorf("%w: checklist %q defined twice", ErrInvalidDefinition, list.Name)
		}
		seen[list.Name] = true
		ws.Checklists = append(ws.Checklists, list)
	}

	return ws, nil
}

// Checklist returns the declared checklist with the given name.
func (w *Workspace) Checklist(name string) (Checklist, bool) {
	for _, l := range w.Checklists {
		if l.Name == name {
			return l, true
		}
	}
	return Checklist{}, false
}

func envPairs(env Config) []string {
	raw := env.Raw()
	if len(raw) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(raw))
	for k, v := range raw {
		pairs = append(pairs, k+"="+fmt.Sprint(v))
	}
	sort.Strings(pairs)
	return pairs
}

func storeConfig(s Config, root string, lookupEnv func(string) (string, bool)) StoreConfig {
	sc := StoreConfig{
		Backend:  s.String("backend", cache.BackendSQLite),
		Path:     s.String("path", ""),
		Fallback: s.String("fallback", FallbackNone),
		Redis: RedisConfig{
			Addr:     s.String("redis.addr", ""),
			Password: s.String("redis.password", ""),
			DB:       s.Int("redis.db", 0),
			Prefix:   s.String("redis.prefix", ""),
			TTL:      s.Duration("redis.ttl", 0),
		},
	}
	if v, ok := lookupEnv(EnvStore); ok && v != "" {
		sc.Backend = v
	}
	if v, ok := lookupEnv(EnvRedisAddr); ok && v != "" {
		sc.Redis.Addr = v
	}

	if sc.Path == "" {
		switch sc.Backend {
		case cache.BackendSQLite:
			sc.Path = filepath.Join(StateDir, "cache.db")
		case cache.BackendFile:
			sc.Path = filepath.Join(StateDir, "cache")
		}
	}
	if sc.Path != "" && sc.Path != ":memory:" && !filepath.IsAbs(sc.Path) {
		sc.Path = filepath.Join(root, sc.Path)
	}
	return sc
}

func parseChecklist(c Config, byName map[string]check.Check) (Checklist, error) {
	list := Checklist{Name: c.String("name", "")}
	for i, item := range c.List("checks") {
		if ref, ok := item.(string); ok {
			chk, found := byName[ref]
			if !found {
				return Checklist{}, fmt.Errorf("%w: checklist %q refers to unknown check %q", ErrInvalidDefinition, list.Name, ref)
			}
			list.Checks = append(list.Checks, chk)
			continue
		}
		chk, err := parseCheck(item)
		if err != nil {
			return Checklist{}, fmt.Errorf("checks[%d]: %w", i, err)
		}
		list.Checks = append(list.Checks, chk)
	}
	return list, nil
}

func parseCheck(item any) (check.Check, error) {
	m, ok := asMap(item)
	if !ok {
		return check.Check{}, fmt.Errorf("%w: check is not a table", ErrInvalidDefinition)
	}
	c := New(m)

	kind, err := check.ParseKind(c.String("kind", ""))
	if err != nil {
		return check.Check{}, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	chk := check.Check{
		Name:       c.String("name", ""),
		Kind:       kind,
		Command:    c.String("command", ""),
		Derivation: c.String("derivation", ""),
		Inputs:     c.StringSlice("inputs", nil),
		Timeout:    c.Duration("timeout", 0),
	}
	if err := chk.Validate(); err != nil {
		return check.Check{}, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	return chk, nil
}
