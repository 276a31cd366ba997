package memory

import (
	"context"
	"strconv"
	"sync/atomic"
)

// Revision is a monotonic counter used as the snapshot token for
// in-memory deployments. Every mutation bumps it, which makes all
// previously cached resolutions unreachable without touching the cache.
type Revision struct {
	counter atomic.Int64
}

// NewRevision creates a revision counter starting at zero.
func NewRevision() *Revision {
	return &Revision{}
}

// Bump advances the revision.
func (r *Revision) Bump() {
	r.counter.Add(1)
}

// Current returns the current snapshot token.
func (r *Revision) Current(ctx context.Context) (string, error) {
	return strconv.FormatInt(r.counter.Load(), 10), nil
}
