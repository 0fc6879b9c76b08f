// Package fingerprint computes the content identity of a check's declared inputs.
//
// A fingerprint is a BLAKE2b-256 digest over the check's kind, command,
// installable and the content of every declared input path, walked in
// lexical order. Only declared paths contribute: touching a file outside a
// check's inputs never changes its fingerprint.
//
// Declared inputs are resolved through symlinks before they are read, so a
// declared link to a file or directory contributes the content it points at.
// The resolved path must stay inside the workspace root. Symlinks met while
// walking a declared directory are not followed: they contribute their
// target string only. Declare the target itself as an input to track its
// content.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/randalmurphal/checkdef/pkg/checkdef/check"
)

// Size is the digest length in bytes.
const Size = blake2b.Size256

// formatTag is folded into every digest. Change it when the digest layout changes.
const formatTag = "checkdef-fingerprint-v1"

// Fingerprint is the content identity of a check.
type Fingerprint [Size]byte

// String returns the lowercase hex encoding.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Sentinel errors for fingerprint computation.
var (
	// ErrOutsideRoot indicates a declared input resolves outside the workspace root.
	ErrOutsideRoot = errors.New("input path escapes workspace root")
)

// MissingInputError reports a declared input path that does not exist.
// It aborts only the affected check.
type MissingInputError struct {
	Check string
	Path  string
	Err   error
}

// Error implements the error interface.
func (e *MissingInputError) Error() string {
	return fmt.Sprintf("check %s: missing input %s", e.Check, e.Path)
}

// Unwrap returns the underlying error (fs.ErrNotExist for absent paths).
func (e *MissingInputError) Unwrap() error {
	return e.Err
}

// Engine computes fingerprints.
// Engine is safe for concurrent use; it holds no mutable state.
type Engine struct {
	ignore []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithIgnore skips files and directories whose base name matches any of the
// filepath.Match patterns. The patterns are part of the digest.
func WithIgnore(patterns ...string) Option {
	return func(e *Engine) {
		e.ignore = append(e.ignore, patterns...)
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	sort.Strings(e.ignore)
	return e
}

// Compute returns the fingerprint of c, reading inputs relative to root.
func (e *Engine) Compute(root string, c check.Check) (Fingerprint, error) {
	inputs, err := NormalizeInputs(c.Inputs)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("check %s: %w", c.Name, err)
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return Fingerprint{}, err
	}
	w := &fieldWriter{h: h}

	w.field(formatTag)
	w.field(string(c.Kind))
	w.field(c.Command)
	w.field(c.Derivation)
	w.count(len(e.ignore))
	for _, p := range e.ignore {
		w.field(p)
	}
	w.count(len(inputs))

	var realRoot string
	if len(inputs) > 0 {
		if realRoot, err = filepath.EvalSymlinks(root); err != nil {
			return Fingerprint{}, fmt.Errorf("check %s: resolve root: %w", c.Name, err)
		}
	}

	for _, rel := range inputs {
		abs, err := resolveInput(realRoot, rel)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Fingerprint{}, &MissingInputError{Check: c.Name, Path: rel, Err: err}
			}
			return Fingerprint{}, fmt.Errorf("check %s: %w", c.Name, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return Fingerprint{}, fmt.Errorf("check %s: stat %s: %w", c.Name, rel, err)
		}
		if !info.IsDir() {
			if err := w.file(abs, rel, info.Mode()); err != nil {
				return Fingerprint{}, fmt.Errorf("check %s: %w", c.Name, err)
			}
			continue
		}
		if err := e.walk(w, abs, rel); err != nil {
			return Fingerprint{}, fmt.Errorf("check %s: %w", c.Name, err)
		}
	}

	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f, nil
}

// resolveInput follows symlinks in rel and returns the real path, which must
// lie inside realRoot.
func resolveInput(realRoot, rel string) (string, error) {
	resolved, err := filepath.EvalSymlinks(filepath.Join(realRoot, filepath.FromSlash(rel)))
	if err != nil {
		return "", err
	}
	within, err := filepath.Rel(realRoot, resolved)
	if err != nil {
		return "", err
	}
	if within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s resolves to %s", ErrOutsideRoot, rel, resolved)
	}
	return resolved, nil
}

// walk folds a directory tree into w. WalkDir visits entries in lexical order.
func (e *Engine) walk(w *fieldWriter, absRoot, relRoot string) error {
	return filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != absRoot && e.ignored(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		sub, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		rel := relRoot
		if sub != "." {
			rel = relRoot + "/" + filepath.ToSlash(sub)
		}

		switch {
		case d.IsDir():
			w.field("d")
			w.field(rel)
			return nil
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			w.field("l")
			w.field(rel)
			w.field(target)
			return nil
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return w.file(path, rel, info.Mode())
		default:
			// Sockets, devices and pipes carry no stable content.
			return nil
		}
	})
}

func (e *Engine) ignored(name string) bool {
	return Ignored(e.ignore, name)
}

// Ignored reports whether a single path element matches any of the
// filepath.Match patterns.
func Ignored(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// NormalizeInputs cleans, sorts and deduplicates input paths, dropping any
// path already covered by a declared ancestor directory. Paths are returned
// slash-separated and relative to the workspace root.
func NormalizeInputs(paths []string) ([]string, error) {
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		c := filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
		if filepath.IsAbs(p) || c == ".." || strings.HasPrefix(c, "../") {
			return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, p)
		}
		cleaned = append(cleaned, c)
	}
	sort.Strings(cleaned)

	out := make([]string, 0, len(cleaned))
	for _, p := range cleaned {
		if !covered(out, p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func covered(kept []string, p string) bool {
	for _, k := range kept {
		if p == k || k == "." || strings.HasPrefix(p, k+"/") {
			return true
		}
	}
	return false
}

// fieldWriter writes length-prefixed fields so adjacent fields can never
// be confused with one another.
type fieldWriter struct {
	h   hash.Hash
	buf [8]byte
}

func (w *fieldWriter) count(n int) {
	binary.BigEndian.PutUint64(w.buf[:], uint64(n))
	w.h.Write(w.buf[:])
}

func (w *fieldWriter) field(s string) {
	w.count(len(s))
	w.h.Write([]byte(s))
}

func (w *fieldWriter) bytes(b []byte) {
	w.count(len(b))
	w.h.Write(b)
}

func (w *fieldWriter) file(abs, rel string, mode fs.FileMode) error {
	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("read %s: %w", rel, err)
	}
	tag := "f"
	if mode&0o111 != 0 {
		tag = "x"
	}
	w.field(tag)
	w.field(rel)
	w.bytes(data)
	return nil
}
