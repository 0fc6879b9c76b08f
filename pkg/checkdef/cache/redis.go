package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces checkdef keys in a shared Redis.
const DefaultRedisPrefix = "checkdef:result:"

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every fingerprint. Defaults to DefaultRedisPrefix.
	Prefix string
	// TTL expires entries automatically. Zero keeps them until pruned.
	TTL time.Duration
}

// RedisStore shares entries between machines through Redis.
// Record uses SET NX, so the first writer wins and the value is written
// in a single command.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return &RedisStore{client: client, prefix: prefix, ttl: opts.TTL}, nil
}

// Lookup implements Store.
func (r *RedisStore) Lookup(ctx context.Context, fingerprint string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrStoreClosed
	}

	data, err := r.client.Get(ctx, r.prefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup entry: %w", err)
	}
	return Unmarshal(data)
}

// Record implements Store.
func (r *RedisStore) Record(ctx context.Context, e Entry) (bool, error) {
	if err := e.validate(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, ErrStoreClosed
	}

	data, err := e.Marshal()
	if err != nil {
		return false, fmt.Errorf("encode entry: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.prefix+e.Fingerprint, data, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("record entry: %w", err)
	}
	return ok, nil
}

// Stats implements Store.
func (r *RedisStore) Stats(ctx context.Context) (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return Stats{}, ErrStoreClosed
	}

	s := Stats{Backend: BackendRedis}
	err := r.scan(ctx, func(_ string, e *Entry) error {
		s.Entries++
		s.Original += e.OriginalDuration
		return nil
	})
	return s, err
}

// Prune implements Store.
func (r *RedisStore) Prune(ctx context.Context, before time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0, ErrStoreClosed
	}

	n := 0
	err := r.scan(ctx, func(key string, e *Entry) error {
		if !e.CreatedAt.Before(before) {
			return nil
		}
		deleted, err := r.client.Del(ctx, key).Result()
		if err != nil {
			return err
		}
		n += int(deleted)
		return nil
	})
	return n, err
}

// Close implements Store.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}

func (r *RedisStore) scan(ctx context.Context, fn func(key string, e *Entry) error) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		e, err := Unmarshal(data)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if err := fn(key, e); err != nil {
			return err
		}
	}
	return iter.Err()
}
