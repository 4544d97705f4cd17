package orchestrator

import (
	"context"
	"time"

	"github.com/fedlens/runwatch/run"
)

// Service owns the lifecycle of one training session at a time: starting
// the run, consuming its round stream, resolving the canonical run id,
// polling artifact readiness, and guaranteeing best-effort deletion of the
// server-side run on every exit path.
type Service interface {
	// Subscribe registers a collaborator for session notifications.
	Subscribe(sub Subscriber)

	// StartTraining drives a session up to the readiness phase. It blocks
	// while the round stream is open, delivering each decoded record to
	// subscribers in arrival order, then resolves the run id, arms cleanup
	// and starts the readiness poll. The poll continues in the background
	// until a terminal state; ctx must outlive it.
	StartTraining(ctx context.Context, cfg run.TrainConfig) error

	// Retry restarts a failed readiness poll for the current session.
	Retry(ctx context.Context) error

	// ForceReady skips the readiness poll. Operator recovery only; rejected
	// unless enabled in Options.
	ForceReady(ctx context.Context) error

	// Reset tears the current session down, firing cleanup for its run.
	Reset(ctx context.Context) error

	// Session returns a snapshot of the current session.
	Session(ctx context.Context) (run.Session, error)

	// Shutdown cancels the readiness timer, fires cleanup and waits for the
	// deletion dispatch to leave.
	Shutdown(ctx context.Context) error
}

// Subscriber receives session notifications. Implementations must not
// mutate session state; they only read the resolved run id and the records
// handed to them. Callbacks are invoked sequentially, in event order.
type Subscriber interface {
	// OnRound is called once per decoded record, in stream order.
	OnRound(rec run.RoundRecord)

	// OnTrainingComplete is called once the stream has ended and the run id
	// is frozen.
	OnTrainingComplete(runID string)

	// OnReady is called when the derived artifacts for the run are computed.
	OnReady(runID string)

	// OnError is called with a human-readable message for surfaced failures.
	OnError(msg string)
}

type Options struct {
	// SessionName labels the session in logs and snapshots. Optional.
	SessionName string

	// PollInterval is the period of the readiness timer.
	PollInterval time.Duration

	// MaxAttempts bounds the readiness poll.
	MaxAttempts int

	// AllowForceReady gates the operator override.
	AllowForceReady bool
}
