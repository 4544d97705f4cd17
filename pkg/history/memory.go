package history

import (
	"context"
	"sync"

	pkgerrors "github.com/fedlens/runwatch/pkg/errors"
	"github.com/fedlens/runwatch/run"
)

type inMemoryStore struct {
	sync.Mutex

	sessions map[string]run.Session
}

func NewInMemory() Store {
	return &inMemoryStore{
		sessions: make(map[string]run.Session),
	}
}

func (s *inMemoryStore) Save(_ context.Context, sess run.Session) error {
	if sess.ID == "" {
		return pkgerrors.ErrInvalidData
	}

	s.Lock()
	defer s.Unlock()

	s.sessions[sess.ID] = sess

	return nil
}

func (s *inMemoryStore) Get(_ context.Context, runID string) (run.Session, error) {
	if runID == "" {
		return run.Session{}, pkgerrors.ErrEmptyRunID
	}

	s.Lock()
	defer s.Unlock()

	for _, sess := range s.sessions {
		if sess.RunID == runID {
			return sess, nil
		}
	}

	return run.Session{}, pkgerrors.ErrNotFound
}

func (s *inMemoryStore) List(_ context.Context, offset, limit uint64) ([]run.Session, uint64, error) {
	s.Lock()
	defer s.Unlock()

	sessions := make([]run.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}

	return page(sessions, offset, limit)
}

func (s *inMemoryStore) Close() error {
	return nil
}
