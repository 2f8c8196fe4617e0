package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/formlab/formd/internal/analysis"
)

// BadgerStore keeps runs and results in a Badger database.
//
// Keys: "run:<id>" and "res:<runID>:<videoID>", both JSON values. The result
// key layout makes one run's results a contiguous prefix scan.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens or creates the database at path.
func OpenBadger(path string) (*BadgerStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create run store dir: %w", err)
	}

	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) PutRun(ctx context.Context, run *Run) error {
	buf, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(run.ID), buf)
	})
}

func (s *BadgerStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var out Run
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) UpdateRun(ctx context.Context, id string, fn func(*Run) error) (*Run, error) {
	var out Run
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		}); err != nil {
			return err
		}
		if err := fn(&out); err != nil {
			return err
		}
		buf, err := json.Marshal(&out)
		if err != nil {
			return err
		}
		return txn.Set(runKey(id), buf)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (s *BadgerStore) ListRuns(ctx context.Context) ([]*Run, error) {
	var runs []*Run
	prefix := []byte("run:")

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var run Run
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			}); err != nil {
				return err
			}
			runs = append(runs, &run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortRuns(runs)
	return runs, nil
}

func (s *BadgerStore) PutResult(ctx context.Context, runID string, res *analysis.Result) error {
	buf, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(resultKey(runID, res.VideoID), buf)
	})
}

func (s *BadgerStore) ListResults(ctx context.Context, runID string) ([]*analysis.Result, error) {
	var results []*analysis.Result
	prefix := resultPrefix(runID)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var res analysis.Result
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &res)
			}); err != nil {
				return err
			}
			results = append(results, &res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// sortRuns orders most recent first, with the ID as tie breaker so listings
// are stable across backends.
func sortRuns(runs []*Run) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAtUnix != runs[j].StartedAtUnix {
			return runs[i].StartedAtUnix > runs[j].StartedAtUnix
		}
		return runs[i].ID > runs[j].ID
	})
}

var _ Store = (*BadgerStore)(nil)
