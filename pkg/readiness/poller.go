package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pkgerrors "github.com/fedlens/runwatch/pkg/errors"
)

const (
	DefaultMaxAttempts = 24
	DefaultInterval    = 5 * time.Second
)

// Checker asks the backend whether the derived artifacts for a run have
// finished computing.
type Checker interface {
	RunReady(ctx context.Context, runID string) (bool, error)
}

type State uint8

const (
	Idle State = iota
	AwaitingReadiness
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AwaitingReadiness:
		return "AwaitingReadiness"
	case Ready:
		return "Ready"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

type Config struct {
	MaxAttempts int
	Interval    time.Duration
}

// Events carries the terminal-state notifications. Either callback may be nil.
type Events struct {
	OnReady  func(runID string)
	OnFailed func(runID string, attempts int, cause error)
}

// Poller is a bounded-retry state machine over a readiness query. Starting
// it performs one immediate check; only if that does not terminate is a
// periodic timer armed. Every attempt reads the poller's current state
// fresh, and each arming bumps an epoch so that a query still in flight
// when Retry or Stop lands cannot act on the new cycle.
type Poller struct {
	checker Checker
	logger  *slog.Logger
	cfg     Config
	events  Events

	mu       sync.Mutex
	state    State
	runID    string
	attempts int
	lastErr  error
	epoch    uint64
	stopCh   chan struct{}
}

func NewPoller(checker Checker, cfg Config, events Events, logger *slog.Logger) *Poller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	return &Poller{
		checker: checker,
		logger:  logger,
		cfg:     cfg,
		events:  events,
		state:   Idle,
	}
}

// Start begins polling readiness for runID. Any previous cycle is disarmed
// and the attempt counter restarts from zero.
func (p *Poller) Start(ctx context.Context, runID string) error {
	if runID == "" {
		return pkgerrors.ErrEmptyRunID
	}

	p.mu.Lock()
	p.disarmLocked()
	p.state = AwaitingReadiness
	p.runID = runID
	p.attempts = 0
	p.lastErr = nil
	p.epoch++
	epoch := p.epoch
	p.mu.Unlock()

	p.runCycle(ctx, epoch)

	return nil
}

// Retry restarts a failed poll with the same run id, attempts reset to zero.
func (p *Poller) Retry(ctx context.Context) error {
	p.mu.Lock()
	if p.state != Failed {
		p.mu.Unlock()

		return pkgerrors.ErrNotFailed
	}
	if p.runID == "" {
		p.mu.Unlock()

		return pkgerrors.ErrEmptyRunID
	}
	p.disarmLocked()
	p.state = AwaitingReadiness
	p.attempts = 0
	p.lastErr = nil
	p.epoch++
	epoch := p.epoch
	p.mu.Unlock()

	p.runCycle(ctx, epoch)

	return nil
}

// ForceReady transitions to Ready from any non-terminal state without
// querying the backend. Operator recovery only.
func (p *Poller) ForceReady() {
	p.mu.Lock()
	if p.state == Ready || p.state == Failed {
		p.mu.Unlock()

		return
	}
	p.disarmLocked()
	p.state = Ready
	p.epoch++
	runID := p.runID
	p.mu.Unlock()

	if runID != "" && p.events.OnReady != nil {
		p.events.OnReady(runID)
	}
}

// Stop disarms any pending timer unconditionally. State is left untouched;
// a timer that fires while Stop lands is a no-op because the epoch moved.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.disarmLocked()
	p.epoch++
	p.mu.Unlock()
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

func (p *Poller) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.attempts
}

func (p *Poller) RunID() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.runID
}

// Err returns the terminal failure, if the poller has failed.
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lastErr
}

// runCycle performs the immediate check and arms the periodic timer only
// if that check does not already reach a terminal state.
func (p *Poller) runCycle(ctx context.Context, epoch uint64) {
	if p.step(ctx, epoch) {
		return
	}

	stop := make(chan struct{})
	p.mu.Lock()
	if p.epoch != epoch {
		p.mu.Unlock()

		return
	}
	p.stopCh = stop
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				if p.step(ctx, epoch) {
					return
				}
			}
		}
	}()
}

// step runs one readiness attempt. It reports whether the cycle is over,
// either because a terminal state was reached or because the cycle was
// superseded while the query was in flight.
func (p *Poller) step(ctx context.Context, epoch uint64) bool {
	p.mu.Lock()
	if p.epoch != epoch || p.state != AwaitingReadiness {
		p.mu.Unlock()

		return true
	}
	runID := p.runID
	p.mu.Unlock()

	ready, err := p.checker.RunReady(ctx, runID)

	p.mu.Lock()
	if p.epoch != epoch || p.state != AwaitingReadiness {
		p.mu.Unlock()

		return true
	}

	p.attempts++
	attempts := p.attempts

	if err != nil {
		// A failed query is a missed attempt, not a fatal error.
		p.logger.Warn("Readiness query failed",
			slog.String("run_id", runID),
			slog.Int("attempt", attempts),
			slog.Any("error", err))
	}

	if err == nil && ready {
		p.disarmLocked()
		p.state = Ready
		p.mu.Unlock()

		if p.events.OnReady != nil {
			p.events.OnReady(runID)
		}

		return true
	}

	if attempts >= p.cfg.MaxAttempts {
		cause := fmt.Errorf("artifacts for run %s not ready after %d attempts", runID, p.cfg.MaxAttempts)
		p.disarmLocked()
		p.state = Failed
		p.lastErr = cause
		p.mu.Unlock()

		if p.events.OnFailed != nil {
			p.events.OnFailed(runID, attempts, cause)
		}

		return true
	}

	p.mu.Unlock()

	return false
}

func (p *Poller) disarmLocked() {
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
}
