package readiness_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/fedlens/runwatch/pkg/errors"
	"github.com/fedlens/runwatch/pkg/readiness"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeChecker answers readiness queries from a per-call function.
type fakeChecker struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) (bool, error)
}

func (f *fakeChecker) RunReady(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	return f.fn(call)
}

func (f *fakeChecker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

// terminalRecorder collects the terminal notifications.
type terminalRecorder struct {
	mu       sync.Mutex
	readyID  string
	failedID string
	attempts int
	cause    error
}

func (r *terminalRecorder) ready() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.readyID
}

func (r *terminalRecorder) failed() (string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.failedID, r.attempts, r.cause
}

func (r *terminalRecorder) events() readiness.Events {
	return readiness.Events{
		OnReady: func(runID string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.readyID = runID
		},
		OnFailed: func(runID string, attempts int, cause error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.failedID = runID
			r.attempts = attempts
			r.cause = cause
		},
	}
}

func TestPollerImmediateSuccessNeverArmsTimer(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{fn: func(int) (bool, error) { return true, nil }}
	rec := &terminalRecorder{}
	p := readiness.NewPoller(checker, readiness.Config{Interval: time.Millisecond}, rec.events(), testLogger())

	require.NoError(t, p.Start(context.Background(), "run-1"))

	assert.Equal(t, readiness.Ready, p.State())
	assert.Equal(t, 1, p.Attempts())
	assert.Equal(t, "run-1", rec.ready())

	// With no timer armed, no further query can ever happen.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, checker.count())
}

func TestPollerBoundedAttempts(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{fn: func(int) (bool, error) { return false, nil }}
	rec := &terminalRecorder{}
	p := readiness.NewPoller(checker, readiness.Config{
		MaxAttempts: 24,
		Interval:    time.Millisecond,
	}, rec.events(), testLogger())

	require.NoError(t, p.Start(context.Background(), "run-1"))

	require.Eventually(t, func() bool {
		failedID, _, _ := rec.failed()

		return failedID != ""
	}, 5*time.Second, time.Millisecond)

	failedID, attempts, cause := rec.failed()
	assert.Equal(t, readiness.Failed, p.State())
	assert.Equal(t, 24, p.Attempts())
	assert.Equal(t, 24, checker.count())
	assert.Equal(t, 24, attempts)
	assert.Equal(t, "run-1", failedID)
	require.Error(t, cause)
	assert.Contains(t, cause.Error(), "run-1")
	assert.Contains(t, cause.Error(), "24 attempts")

	// Terminal: never a 25th query.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 24, checker.count())
}

func TestPollerRetryResetsAttempts(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{fn: func(int) (bool, error) { return false, nil }}
	p := readiness.NewPoller(checker, readiness.Config{
		MaxAttempts: 3,
		Interval:    time.Millisecond,
	}, readiness.Events{}, testLogger())

	require.NoError(t, p.Start(context.Background(), "run-1"))
	require.Eventually(t, func() bool {
		return p.State() == readiness.Failed
	}, 5*time.Second, time.Millisecond)
	require.Equal(t, 3, checker.count())

	require.NoError(t, p.Retry(context.Background()))
	require.Eventually(t, func() bool {
		return p.State() == readiness.Failed
	}, 5*time.Second, time.Millisecond)

	assert.Equal(t, 6, checker.count(), "a retry runs a fresh bounded cycle")
	assert.Equal(t, 3, p.Attempts())
	assert.Equal(t, "run-1", p.RunID())
}

func TestPollerRetryOnlyFromFailed(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{fn: func(int) (bool, error) { return true, nil }}
	p := readiness.NewPoller(checker, readiness.Config{}, readiness.Events{}, testLogger())

	assert.ErrorIs(t, p.Retry(context.Background()), pkgerrors.ErrNotFailed)

	require.NoError(t, p.Start(context.Background(), "run-1"))
	assert.ErrorIs(t, p.Retry(context.Background()), pkgerrors.ErrNotFailed)
}

func TestPollerQueryErrorIsMissedAttempt(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{fn: func(call int) (bool, error) {
		if call <= 2 {
			return false, errors.New("connection refused")
		}

		return true, nil
	}}
	p := readiness.NewPoller(checker, readiness.Config{
		MaxAttempts: 24,
		Interval:    time.Millisecond,
	}, readiness.Events{}, testLogger())

	require.NoError(t, p.Start(context.Background(), "run-1"))
	require.Eventually(t, func() bool {
		return p.State() == readiness.Ready
	}, 5*time.Second, time.Millisecond)

	assert.Equal(t, 3, p.Attempts())
}

func TestPollerForceReady(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{fn: func(int) (bool, error) { return false, nil }}
	rec := &terminalRecorder{}
	p := readiness.NewPoller(checker, readiness.Config{
		MaxAttempts: 24,
		Interval:    time.Hour,
	}, rec.events(), testLogger())

	require.NoError(t, p.Start(context.Background(), "run-1"))
	require.Equal(t, readiness.AwaitingReadiness, p.State())

	p.ForceReady()

	assert.Equal(t, readiness.Ready, p.State())
	assert.Equal(t, "run-1", rec.ready())
	assert.Equal(t, 1, checker.count(), "force-ready bypasses the query")

	// Terminal states are not overridden.
	p.ForceReady()
	assert.Equal(t, readiness.Ready, p.State())
}

func TestPollerStopCancelsTimerWithoutStateChange(t *testing.T) {
	t.Parallel()

	checker := &fakeChecker{fn: func(int) (bool, error) { return false, nil }}
	p := readiness.NewPoller(checker, readiness.Config{
		MaxAttempts: 24,
		Interval:    2 * time.Millisecond,
	}, readiness.Events{}, testLogger())

	require.NoError(t, p.Start(context.Background(), "run-1"))
	p.Stop()

	calls := checker.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, checker.count(), "no query after Stop")
	assert.Equal(t, readiness.AwaitingReadiness, p.State())
}

func TestPollerEmptyRunID(t *testing.T) {
	t.Parallel()

	p := readiness.NewPoller(&fakeChecker{fn: func(int) (bool, error) { return true, nil }},
		readiness.Config{}, readiness.Events{}, testLogger())

	assert.ErrorIs(t, p.Start(context.Background(), ""), pkgerrors.ErrEmptyRunID)
	assert.Equal(t, readiness.Idle, p.State())
}
