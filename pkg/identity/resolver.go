package identity

import (
	"sync"
	"time"

	"github.com/fedlens/runwatch/run"
)

// FallbackPrefix matches the id format the training backend generates
// server-side, so fallback ids stay routable against its storage layout.
const FallbackPrefix = "run_"

const fallbackTimeLayout = "20060102_150405"

// Source identifies which of the racing channels supplied the run id.
type Source uint8

const (
	SourceNone Source = iota
	SourceHeader
	SourceRecord
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourceHeader:
		return "header"
	case SourceRecord:
		return "record"
	case SourceFallback:
		return "fallback"
	default:
		return "none"
	}
}

// Resolver picks exactly one run id per session from three uncoordinated
// channels: the response header, the first decoded record carrying an
// embedded id, and a generated fallback. Candidates are observed as they
// arrive but the decision is made once, at stream completion, so a
// higher-precedence source arriving mid-stream is never pre-empted by a
// lower one. Once resolved the id is frozen; later candidates are ignored.
type Resolver struct {
	mu        sync.Mutex
	startedAt time.Time
	header    string
	embedded  string
	resolved  string
	source    Source
}

// NewResolver creates a resolver for a session that started at startedAt.
// The timestamp seeds the deterministic fallback id.
func NewResolver(startedAt time.Time) *Resolver {
	return &Resolver{startedAt: startedAt}
}

// ObserveHeader records the out-of-band id from the response metadata.
// Empty values and values observed after resolution are ignored.
func (r *Resolver) ObserveHeader(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.source != SourceNone || id == "" || r.header != "" {
		return
	}
	r.header = id
}

// ObserveRecord records the embedded id of a decoded record. Only the first
// record carrying one is considered.
func (r *Resolver) ObserveRecord(rec run.RoundRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.source != SourceNone || rec.RunID == "" || r.embedded != "" {
		return
	}
	r.embedded = rec.RunID
}

// Resolve freezes and returns the session's run id. It is the join point
// called at stream completion (normal end, aborted stream, or absent body).
// Precedence: header, then first embedded record id, then fallback.
// Subsequent calls return the frozen id unchanged.
func (r *Resolver) Resolve() (string, Source) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.source != SourceNone {
		return r.resolved, r.source
	}

	switch {
	case r.header != "":
		r.resolved, r.source = r.header, SourceHeader
	case r.embedded != "":
		r.resolved, r.source = r.embedded, SourceRecord
	default:
		r.resolved, r.source = FallbackPrefix+r.startedAt.Format(fallbackTimeLayout), SourceFallback
	}

	return r.resolved, r.source
}

// Resolved returns the frozen id, if resolution has happened.
func (r *Resolver) Resolved() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.resolved, r.source != SourceNone
}
