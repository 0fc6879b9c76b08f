package benchmarks

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/checkdef/pkg/checkdef/cache"
)

func fingerprintFor(i int) string {
	return fmt.Sprintf("%064x", i)
}

func benchmarkRecord(b *testing.B, store cache.Store) {
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Record(ctx, cache.NewEntry(fingerprintFor(i), "pytest-foo", true, 10*time.Second))
	}
}

func benchmarkLookup(b *testing.B, store cache.Store) {
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		_, _ = store.Record(ctx, cache.NewEntry(fingerprintFor(i), "pytest-foo", true, 10*time.Second))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Lookup(ctx, fingerprintFor(i%100))
	}
}

func sqliteStore(b *testing.B) cache.Store {
	b.Helper()
	store, err := cache.NewSQLiteStore(filepath.Join(b.TempDir(), "cache.db"))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { store.Close() })
	return store
}

func fileStore(b *testing.B) cache.Store {
	b.Helper()
	store, err := cache.NewFileStore(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	return store
}

// BenchmarkMemoryStore_Record measures in-memory inserts.
func BenchmarkMemoryStore_Record(b *testing.B) {
	benchmarkRecord(b, cache.NewMemoryStore())
}

// BenchmarkMemoryStore_Lookup measures in-memory lookups.
func BenchmarkMemoryStore_Lookup(b *testing.B) {
	benchmarkLookup(b, cache.NewMemoryStore())
}

// BenchmarkSQLiteStore_Record measures SQLite inserts.
func BenchmarkSQLiteStore_Record(b *testing.B) {
	benchmarkRecord(b, sqliteStore(b))
}

// BenchmarkSQLiteStore_Lookup measures SQLite lookups.
func BenchmarkSQLiteStore_Lookup(b *testing.B) {
	benchmarkLookup(b, sqliteStore(b))
}

// BenchmarkFileStore_Record measures file store inserts.
func BenchmarkFileStore_Record(b *testing.B) {
	benchmarkRecord(b, fileStore(b))
}

// BenchmarkFileStore_Lookup measures file store lookups.
func BenchmarkFileStore_Lookup(b *testing.B) {
	benchmarkLookup(b, fileStore(b))
}

// BenchmarkSQLiteStore_RecordExisting measures the first-writer-wins path.
func BenchmarkSQLiteStore_RecordExisting(b *testing.B) {
	store := sqliteStore(b)
	ctx := context.Background()
	e := cache.NewEntry(fingerprintFor(1), "pytest-foo", true, 10*time.Second)
	_, _ = store.Record(ctx, e)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Record(ctx, e)
	}
}
