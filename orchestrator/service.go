package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fedlens/runwatch/pkg/cleanup"
	pkgerrors "github.com/fedlens/runwatch/pkg/errors"
	"github.com/fedlens/runwatch/pkg/identity"
	"github.com/fedlens/runwatch/pkg/readiness"
	"github.com/fedlens/runwatch/pkg/sdk"
	"github.com/fedlens/runwatch/pkg/stream"
	"github.com/fedlens/runwatch/run"
)

type service struct {
	sdk    sdk.SDK
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	session  *run.Session
	resolver *identity.Resolver
	poller   *readiness.Poller
	guard    *cleanup.Guard
	subs     []Subscriber
}

func NewService(s sdk.SDK, opts Options, logger *slog.Logger) Service {
	return &service{
		sdk:    s,
		opts:   opts,
		logger: logger,
	}
}

// Subscribe registers a collaborator for session notifications.
func (svc *service) Subscribe(sub Subscriber) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.subs = append(svc.subs, sub)
}

func (svc *service) StartTraining(ctx context.Context, cfg run.TrainConfig) error {
	if cfg.NumClients <= 0 || cfg.NumRounds <= 0 {
		return pkgerrors.ErrInvalidData
	}

	svc.mu.Lock()
	if svc.session != nil {
		switch svc.session.Status {
		case run.Streaming, run.AwaitingReadiness:
			svc.mu.Unlock()

			return pkgerrors.ErrSessionActive
		}
		// A finished session is torn down before a new one starts.
		svc.teardownLocked()
	}

	now := time.Now()
	sess := &run.Session{
		ID:        uuid.NewString(),
		Name:      svc.opts.SessionName,
		Status:    run.Idle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sessID := sess.ID

	svc.session = sess
	svc.resolver = identity.NewResolver(now)
	svc.guard = cleanup.NewGuard(svc.sdk, svc.logger)
	svc.poller = readiness.NewPoller(svc.sdk, readiness.Config{
		MaxAttempts: svc.opts.MaxAttempts,
		Interval:    svc.opts.PollInterval,
	}, readiness.Events{
		OnReady:  func(runID string) { svc.handleReady(sessID, runID) },
		OnFailed: func(runID string, attempts int, cause error) { svc.handleFailed(sessID, runID, cause) },
	}, svc.logger)
	resolver := svc.resolver
	guard := svc.guard
	poller := svc.poller
	svc.mu.Unlock()

	ts, err := svc.sdk.StartTraining(ctx, cfg)
	if err != nil {
		// Transport failure: no run id, no cleanup armed.
		msg := fmt.Sprintf("failed to start training: %s", err)
		svc.failSession(sessID, msg)
		svc.notifyError(msg)

		return fmt.Errorf("failed to start training: %w", err)
	}
	defer ts.Close()

	resolver.ObserveHeader(ts.HeaderRunID)
	svc.setStatus(sessID, run.Streaming)

	dec := stream.NewDecoder(svc.logger)
	consumeErr := stream.Consume(ctx, ts.Body, dec, func(rec run.RoundRecord) {
		resolver.ObserveRecord(rec)
		svc.appendRound(sessID, rec)
		svc.notifyRound(rec)
	})
	if consumeErr != nil {
		// An aborted stream still completes the session in degraded form;
		// whatever arrived stays, and the run id is resolved below.
		svc.logger.Warn("Training stream aborted",
			slog.Int("rounds_decoded", dec.Decoded()),
			slog.Any("error", consumeErr))
	}

	runID, source := resolver.Resolve()
	svc.logger.Info("Run id resolved",
		slog.String("run_id", runID),
		slog.String("source", source.String()),
		slog.Int("rounds", dec.Decoded()),
		slog.Int("dropped_lines", dec.Dropped()))

	svc.mu.Lock()
	if svc.session != nil && svc.session.ID == sessID {
		svc.session.RunID = runID
		svc.session.Status = run.AwaitingReadiness
		svc.session.UpdatedAt = time.Now()
	}
	svc.mu.Unlock()

	guard.Arm(runID)
	svc.notifyTrainingComplete(runID)

	return poller.Start(ctx, runID)
}

func (svc *service) Retry(ctx context.Context) error {
	svc.mu.Lock()
	if svc.session == nil {
		svc.mu.Unlock()

		return pkgerrors.ErrNoSession
	}
	if svc.session.Status != run.Failed || svc.session.RunID == "" {
		svc.mu.Unlock()

		return pkgerrors.ErrNotFailed
	}
	sessID := svc.session.ID
	poller := svc.poller
	svc.session.Error = ""
	svc.mu.Unlock()

	svc.setStatus(sessID, run.AwaitingReadiness)

	return poller.Retry(ctx)
}

func (svc *service) ForceReady(ctx context.Context) error {
	if !svc.opts.AllowForceReady {
		return pkgerrors.ErrForceDisabled
	}

	svc.mu.Lock()
	if svc.session == nil {
		svc.mu.Unlock()

		return pkgerrors.ErrNoSession
	}
	if svc.session.Status == run.Ready || svc.session.Status == run.Failed {
		svc.mu.Unlock()

		return pkgerrors.ErrTerminalState
	}
	poller := svc.poller
	svc.mu.Unlock()

	// The poller delivers OnReady, which marks the session Ready.
	poller.ForceReady()

	return nil
}

func (svc *service) Reset(ctx context.Context) error {
	svc.mu.Lock()
	if svc.session == nil {
		svc.mu.Unlock()

		return pkgerrors.ErrNoSession
	}
	svc.teardownLocked()
	svc.session = nil
	svc.mu.Unlock()

	return nil
}

func (svc *service) Session(ctx context.Context) (run.Session, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.session == nil {
		return run.Session{}, pkgerrors.ErrNoSession
	}

	snap := *svc.session
	snap.Rounds = append([]run.RoundRecord(nil), svc.session.Rounds...)
	if svc.poller != nil {
		snap.AttemptCount = svc.poller.Attempts()
	}

	return snap, nil
}

func (svc *service) Shutdown(ctx context.Context) error {
	svc.mu.Lock()
	poller := svc.poller
	guard := svc.guard
	svc.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
	if guard != nil {
		guard.Fire()
		guard.Wait()
	}

	return nil
}

// teardownLocked disarms the timer and fires cleanup for the session being
// replaced or reset. Callers hold svc.mu.
func (svc *service) teardownLocked() {
	if svc.poller != nil {
		svc.poller.Stop()
	}
	if svc.guard != nil {
		svc.guard.Fire()
	}
}

func (svc *service) setStatus(sessID string, status run.Status) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.session == nil || svc.session.ID != sessID {
		return
	}
	svc.session.Status = status
	svc.session.UpdatedAt = time.Now()
}

func (svc *service) failSession(sessID, msg string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.session == nil || svc.session.ID != sessID {
		return
	}
	svc.session.Status = run.Failed
	svc.session.Error = msg
	svc.session.UpdatedAt = time.Now()
}

func (svc *service) appendRound(sessID string, rec run.RoundRecord) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.session == nil || svc.session.ID != sessID {
		return
	}
	if n := len(svc.session.Rounds); n > 0 && rec.Round <= svc.session.Rounds[n-1].Round {
		// Round numbers are expected to grow; delivery order is kept either way.
		svc.logger.Warn("Out-of-order round in stream",
			slog.Int("round", rec.Round),
			slog.Int("previous", svc.session.Rounds[n-1].Round))
	}
	svc.session.Rounds = append(svc.session.Rounds, rec)
	svc.session.UpdatedAt = time.Now()
}

func (svc *service) handleReady(sessID, runID string) {
	svc.mu.Lock()
	current := svc.session != nil && svc.session.ID == sessID
	if current {
		svc.session.Status = run.Ready
		svc.session.UpdatedAt = time.Now()
	}
	svc.mu.Unlock()

	if current {
		svc.notifyReady(runID)
	}
}

func (svc *service) handleFailed(sessID, runID string, cause error) {
	svc.mu.Lock()
	current := svc.session != nil && svc.session.ID == sessID
	if current {
		svc.session.Status = run.Failed
		svc.session.Error = cause.Error()
		svc.session.UpdatedAt = time.Now()
	}
	svc.mu.Unlock()

	if current {
		svc.notifyError(cause.Error())
	}
}

func (svc *service) subscribers() []Subscriber {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	return append([]Subscriber(nil), svc.subs...)
}

func (svc *service) notifyRound(rec run.RoundRecord) {
	for _, sub := range svc.subscribers() {
		sub.OnRound(rec)
	}
}

func (svc *service) notifyTrainingComplete(runID string) {
	for _, sub := range svc.subscribers() {
		sub.OnTrainingComplete(runID)
	}
}

func (svc *service) notifyReady(runID string) {
	for _, sub := range svc.subscribers() {
		sub.OnReady(runID)
	}
}

func (svc *service) notifyError(msg string) {
	for _, sub := range svc.subscribers() {
		sub.OnError(msg)
	}
}
