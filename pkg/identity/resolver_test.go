package identity_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedlens/runwatch/pkg/identity"
	"github.com/fedlens/runwatch/run"
)

func TestResolverPrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		records    []run.RoundRecord
		wantID     string
		wantSource identity.Source
	}{
		{
			name:       "header beats embedded",
			header:     "H",
			records:    []run.RoundRecord{{Round: 1, RunID: "E"}},
			wantID:     "H",
			wantSource: identity.SourceHeader,
		},
		{
			name:       "first embedded wins without header",
			records:    []run.RoundRecord{{Round: 1}, {Round: 2, RunID: "E1"}, {Round: 3, RunID: "E2"}},
			wantID:     "E1",
			wantSource: identity.SourceRecord,
		},
		{
			name:       "header arriving after records still wins",
			header:     "H",
			records:    []run.RoundRecord{{Round: 1, RunID: "E"}},
			wantID:     "H",
			wantSource: identity.SourceHeader,
		},
		{
			name:       "fallback when no source ever appears",
			records:    []run.RoundRecord{{Round: 1}, {Round: 2}},
			wantID:     "run_20240102_150405",
			wantSource: identity.SourceFallback,
		},
	}

	startedAt := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := identity.NewResolver(startedAt)
			for _, rec := range tt.records {
				r.ObserveRecord(rec)
			}
			if tt.header != "" {
				r.ObserveHeader(tt.header)
			}

			id, source := r.Resolve()
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestResolverFreeze(t *testing.T) {
	t.Parallel()

	r := identity.NewResolver(time.Now())
	r.ObserveRecord(run.RoundRecord{Round: 1, RunID: "abc"})

	id, _ := r.Resolve()
	require.Equal(t, "abc", id)

	// Late candidates never change a frozen id.
	r.ObserveHeader("late-header")
	r.ObserveRecord(run.RoundRecord{Round: 2, RunID: "other"})

	again, source := r.Resolve()
	assert.Equal(t, "abc", again)
	assert.Equal(t, identity.SourceRecord, source)
}

func TestResolverResolvedBeforeAndAfter(t *testing.T) {
	t.Parallel()

	r := identity.NewResolver(time.Now())

	_, ok := r.Resolved()
	assert.False(t, ok)

	r.ObserveHeader("H")
	_, ok = r.Resolved()
	assert.False(t, ok, "observation alone must not resolve")

	id, _ := r.Resolve()
	got, ok := r.Resolved()
	assert.True(t, ok)
	assert.Equal(t, id, got)
}

func TestResolverFallbackFormat(t *testing.T) {
	t.Parallel()

	r := identity.NewResolver(time.Date(2025, 6, 30, 9, 8, 7, 0, time.UTC))
	id, source := r.Resolve()

	assert.Equal(t, identity.SourceFallback, source)
	assert.Regexp(t, regexp.MustCompile(`^run_\d{8}_\d{6}$`), id)
	assert.Equal(t, "run_20250630_090807", id)
}

func TestResolverIgnoresEmptyCandidates(t *testing.T) {
	t.Parallel()

	r := identity.NewResolver(time.Now())
	r.ObserveHeader("")
	r.ObserveRecord(run.RoundRecord{Round: 1})

	_, source := r.Resolve()
	assert.Equal(t, identity.SourceFallback, source)
}
