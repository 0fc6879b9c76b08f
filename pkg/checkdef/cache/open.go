package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	// Backend is one of the Backend constants. Defaults to BackendSQLite.
	Backend string
	// Path is the SQLite database file or the file store directory.
	Path  string
	Redis RedisOptions
}

// Open creates the configured store. For the SQLite backend the parent
// directory of Path is created if missing.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite store: path required")
		}
		if opts.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
				return nil, fmt.Errorf("sqlite store: %w", err)
			}
		}
		return NewSQLiteStore(opts.Path)
	case BackendFile:
		if opts.Path == "" {
			return nil, fmt.Errorf("file store: path required")
		}
		return NewFileStore(opts.Path)
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		return NewRedisStore(ctx, opts.Redis)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
