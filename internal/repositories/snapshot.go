package repositories

import "context"

// SnapshotProvider yields a token identifying the current state of the
// source/hierarchy dataset. Cached resolutions embed the token in their
// keys, so any mutation that changes the token lazily invalidates them.
type SnapshotProvider interface {
	Current(ctx context.Context) (string, error)
}
