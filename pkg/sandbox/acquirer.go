package sandbox

import (
	"context"
	"errors"
	"sync/atomic"
)

// Acquirer abstracts sandbox acquisition. Implementations exist for static
// URL mode (returns a fixed URL) and SandboxClaim mode (creates CRDs, see
// the kubernetes subpackage).
type Acquirer interface {
	// Acquire returns a sandbox URL to use for execution.
	// The release function must be called after execution to clean up.
	Acquire(ctx context.Context) (sandboxURL string, release func(), err error)
}

// StaticAcquirer hands out a fixed set of URLs round-robin.
type StaticAcquirer struct {
	urls []string
	next atomic.Uint64
}

// NewStaticAcquirer creates a StaticAcquirer. At least one URL is required.
func NewStaticAcquirer(urls ...string) (*StaticAcquirer, error) {
	if len(urls) == 0 {
		return nil, errors.New("sandbox: at least one sandbox URL is required")
	}
	return &StaticAcquirer{urls: append([]string{}, urls...)}, nil
}

// Acquire returns the next URL. Release is a no-op.
func (a *StaticAcquirer) Acquire(ctx context.Context) (string, func(), error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	n := a.next.Add(1) - 1
	return a.urls[n%uint64(len(a.urls))], func() {}, nil
}
