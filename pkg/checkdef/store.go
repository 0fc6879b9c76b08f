package checkdef

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/checkdef/pkg/checkdef/cache"
	"github.com/randalmurphal/checkdef/pkg/checkdef/config"
	"github.com/randalmurphal/checkdef/pkg/checkdef/observability"
)

// OpenStore opens the workspace's result store. If it cannot be opened and
// the fallback policy is "rebuild", a warning is logged and an empty
// in-memory store is returned, so every derivation check rebuilds.
// Otherwise the failure is returned as a *StoreError.
func OpenStore(ctx context.Context, sc config.StoreConfig, logger *slog.Logger) (cache.Store, error) {
	store, err := cache.Open(ctx, sc.Options())
	if err == nil {
		return store, nil
	}
	if sc.Fallback == config.FallbackRebuild {
		observability.LogStoreDegraded(logger, sc.Backend, err)
		return cache.NewMemoryStore(), nil
	}
	return nil, &StoreError{Op: "open", Err: err}
}
