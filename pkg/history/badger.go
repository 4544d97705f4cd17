package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"

	pkgerrors "github.com/fedlens/runwatch/pkg/errors"
	"github.com/fedlens/runwatch/run"
)

type badgerStore struct {
	sync.RWMutex

	db *badger.DB
}

// NewBadger opens a badger database under dir, creating it when absent.
func NewBadger(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dir, "history.db"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	return &badgerStore{db: db}, nil
}

func (s *badgerStore) Save(ctx context.Context, sess run.Session) error {
	if sess.ID == "" {
		return pkgerrors.ErrInvalidData
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	s.Lock()
	defer s.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(sess.ID), data)
	})
}

func (s *badgerStore) Get(ctx context.Context, runID string) (run.Session, error) {
	if runID == "" {
		return run.Session{}, pkgerrors.ErrEmptyRunID
	}

	s.RLock()
	defer s.RUnlock()

	sessions, err := s.load()
	if err != nil {
		return run.Session{}, err
	}

	for _, sess := range sessions {
		if sess.RunID == runID {
			return sess, nil
		}
	}

	return run.Session{}, pkgerrors.ErrNotFound
}

func (s *badgerStore) List(ctx context.Context, offset, limit uint64) ([]run.Session, uint64, error) {
	s.RLock()
	defer s.RUnlock()

	sessions, err := s.load()
	if err != nil {
		return nil, 0, err
	}

	return page(sessions, offset, limit)
}

func (s *badgerStore) Close() error {
	s.Lock()
	defer s.Unlock()

	return s.db.Close()
}

func (s *badgerStore) load() ([]run.Session, error) {
	var sessions []run.Session

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var sess run.Session
				if err := json.Unmarshal(val, &sess); err != nil {
					return fmt.Errorf("failed to unmarshal session: %w", err)
				}
				sessions = append(sessions, sess)

				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, nil
}

// page orders sessions newest first and applies offset/limit.
func page(sessions []run.Session, offset, limit uint64) ([]run.Session, uint64, error) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})

	total := uint64(len(sessions))
	if offset >= total {
		return nil, total, nil
	}

	end := min(offset+limit, total)

	return sessions[offset:end], total, nil
}
