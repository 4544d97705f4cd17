package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const dispatchTimeout = 5 * time.Second

// Sender delivers the deletion request for a run. Implementations must not
// retry; the guard is best-effort by contract and the server-side deletion
// is idempotent.
type Sender interface {
	DeleteRun(ctx context.Context, runID string) error
}

// Guard ties a single server-side deletion to the lifetime of a session.
// It is armed once a run id is resolved and fires at most once, on whatever
// exit path comes first (explicit reset, teardown, process shutdown). An
// unarmed guard firing is a no-op.
type Guard struct {
	sender Sender
	logger *slog.Logger

	mu    sync.Mutex
	runID string
	done  bool

	// wg lets tests and orderly shutdowns wait for an in-flight dispatch.
	wg sync.WaitGroup
}

func NewGuard(sender Sender, logger *slog.Logger) *Guard {
	return &Guard{sender: sender, logger: logger}
}

// Arm registers runID for deletion at teardown. Re-arming with a new id is
// rejected once set; the run id of a session never changes.
func (g *Guard) Arm(runID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.done || runID == "" || g.runID != "" {
		return
	}
	g.runID = runID
}

// Armed reports whether a deletion is pending.
func (g *Guard) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.runID != "" && !g.done
}

// Fire dispatches the deletion exactly once. The send runs detached from
// any caller context so that teardown cancellation cannot revoke it, and
// no response is awaited: errors are logged, never surfaced or retried.
func (g *Guard) Fire() {
	g.mu.Lock()
	if g.done || g.runID == "" {
		g.mu.Unlock()

		return
	}
	g.done = true
	runID := g.runID
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		if err := g.sender.DeleteRun(ctx, runID); err != nil {
			g.logger.Warn("Best-effort run deletion failed",
				slog.String("run_id", runID),
				slog.Any("error", err))

			return
		}
		g.logger.Info("Dispatched run deletion", slog.String("run_id", runID))
	}()
}

// Disarm clears the guard without firing.
func (g *Guard) Disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.done = true
}

// Wait blocks until any in-flight dispatch has finished.
func (g *Guard) Wait() {
	g.wg.Wait()
}
