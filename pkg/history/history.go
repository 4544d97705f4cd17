// Package history keeps a local record of watched training sessions so past
// runs stay inspectable after the process exits. The badger backend persists
// across invocations; the in-memory backend serves tests and disabled setups.
package history

import (
	"context"

	"github.com/fedlens/runwatch/run"
)

type Store interface {
	// Save upserts a session snapshot keyed by its session ID.
	Save(ctx context.Context, sess run.Session) error

	// Get returns the session whose resolved run id matches runID.
	Get(ctx context.Context, runID string) (run.Session, error)

	// List returns sessions newest first, with the total count before paging.
	List(ctx context.Context, offset, limit uint64) ([]run.Session, uint64, error)

	Close() error
}

// NewStore opens a badger-backed store under dir. An empty dir selects the
// in-memory backend.
func NewStore(dir string) (Store, error) {
	if dir == "" {
		return NewInMemory(), nil
	}

	return NewBadger(dir)
}
