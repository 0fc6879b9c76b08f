package checkdef

import (
	"context"
	"errors"
	"time"

	"github.com/randalmurphal/checkdef/pkg/checkdef/cache"
	"github.com/randalmurphal/checkdef/pkg/checkdef/check"
)

// FingerprintStatus describes a check's current fingerprint and whether the
// store holds a passing outcome for it.
type FingerprintStatus struct {
	Checklist   string
	Check       check.Check
	Fingerprint string
	// Cached is true when a derivation check would be a cache hit.
	Cached   bool
	Original time.Duration
	// Err is set when the fingerprint cannot be computed.
	Err error
}

// Fingerprints computes the fingerprint of every check in the named
// checklist without executing anything.
func (r *Runner) Fingerprints(ctx context.Context, name string) ([]FingerprintStatus, error) {
	_, lists, err := r.catalog.Resolve(name)
	if err != nil {
		return nil, err
	}

	var out []FingerprintStatus
	for _, list := range lists {
		for _, c := range list.Checks {
			st := FingerprintStatus{Checklist: list.Name, Check: c}
			resolved, err := r.resolve(c, list.Name)
			if err != nil {
				st.Err = &CheckError{Check: c.Name, Op: "expand", Err: err}
				out = append(out, st)
				continue
			}
			st.Check = resolved

			fp, err := r.engine.Compute(r.root, resolved)
			if err != nil {
				st.Err = &CheckError{Check: c.Name, Op: "fingerprint", Err: err}
				out = append(out, st)
				continue
			}
			st.Fingerprint = fp.String()

			if resolved.IsDerivation() {
				entry, err := r.store.Lookup(ctx, st.Fingerprint)
				switch {
				case err == nil:
					st.Cached = entry.Passed
					st.Original = entry.OriginalDuration
				case !errors.Is(err, cache.ErrNotFound):
					return out, &StoreError{Op: "lookup", Err: err}
				}
			}
			out = append(out, st)
		}
	}
	return out, nil
}
