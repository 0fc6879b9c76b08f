package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// syncFile flushes a temp entry before it is published.
var syncFile = (*os.File).Sync

// FileStore keeps one JSON file per fingerprint.
//
// Layout:
//
//	{dir}/
//	  {fp[0:2]}/
//	    {fp}.json
//
// Entries are written to a temp file and published with a hard link, which
// fails if the target exists. An existing entry is therefore never replaced,
// and a reader sees either no file or a complete one.
type FileStore struct {
	dir    string
	mu     sync.RWMutex
	closed bool
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Lookup implements Store.
func (f *FileStore) Lookup(_ context.Context, fingerprint string) (*Entry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrStoreClosed
	}
	if !validFileKey(fingerprint) {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(f.entryPath(fingerprint))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read entry: %w", err)
	}
	return Unmarshal(data)
}

// Record implements Store.
func (f *FileStore) Record(_ context.Context, e Entry) (bool, error) {
	if err := e.validate(); err != nil {
		return false, err
	}
	if !validFileKey(e.Fingerprint) {
		return false, fmt.Errorf("%w: %q is not a valid file name", ErrInvalidEntry, e.Fingerprint)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false, ErrStoreClosed
	}

	target := f.entryPath(e.Fingerprint)
	if _, err := os.Stat(target); err == nil {
		return false, nil
	}

	data, err := e.Marshal()
	if err != nil {
		return false, fmt.Errorf("encode entry: %w", err)
	}

	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return false, fmt.Errorf("create entry directory: %w", err)
	}

	tmp, err := os.CreateTemp(parent, ".tmp-"+e.Fingerprint+"-*")
	if err != nil {
		return false, fmt.Errorf("create temp entry: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("write temp entry: %w", err)
	}
	if err := syncFile(tmp); err != nil {
		tmp.Close()
		return false, fmt.Errorf("sync temp entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("close temp entry: %w", err)
	}

	err = os.Link(tmpName, target)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrExist):
		return false, nil
	}

	// Filesystems without hard links: fall back to rename. Two processes
	// racing here both write the same fingerprint, so either file is valid.
	if _, statErr := os.Stat(target); statErr == nil {
		return false, nil
	}
	if err := os.Rename(tmpName, target); err != nil {
		return false, fmt.Errorf("publish entry: %w", err)
	}
	return true, nil
}

// Stats implements Store.
func (f *FileStore) Stats(_ context.Context) (Stats, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return Stats{}, ErrStoreClosed
	}

	s := Stats{Backend: BackendFile}
	err := f.each(func(_ string, e *Entry) error {
		s.Entries++
		s.Original += e.OriginalDuration
		return nil
	})
	return s, err
}

// Prune implements Store.
func (f *FileStore) Prune(_ context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, ErrStoreClosed
	}

	n := 0
	err := f.each(func(path string, e *Entry) error {
		if !e.CreatedAt.Before(before) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		n++
		return nil
	})
	return n, err
}

// Close implements Store.
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// each calls fn for every published entry. Temp files are skipped.
func (f *FileStore) each(fn func(path string, e *Entry) error) error {
	return filepath.WalkDir(f.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") || filepath.Ext(path) != ".json" {
			return nil
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		e, err := Unmarshal(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return fn(path, e)
	})
}

// entryPath shards entries by the first two characters of the fingerprint.
func (f *FileStore) entryPath(fingerprint string) string {
	name := fingerprint + ".json"
	if len(fingerprint) < 2 {
		return filepath.Join(f.dir, name)
	}
	return filepath.Join(f.dir, fingerprint[:2], name)
}

func validFileKey(fingerprint string) bool {
	return fingerprint != "" && fingerprint != "." && fingerprint != ".." &&
		!strings.ContainsAny(fingerprint, `/\`) && !strings.HasPrefix(fingerprint, ".")
}
