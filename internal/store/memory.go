package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/formlab/formd/internal/analysis"
)

// MemoryStore is the non-durable backend for tests and dry runs. Values are
// stored JSON-encoded so both backends share one serialization path.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string][]byte
	results map[string]map[string][]byte // runID -> videoID -> JSON
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string][]byte),
		results: make(map[string]map[string][]byte),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) PutRun(ctx context.Context, run *Run) error {
	buf, err := json.Marshal(run)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.runs[run.ID] = buf
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	buf, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var out Run
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, id string, fn func(*Run) error) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}

	var out Run
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, err
	}
	if err := fn(&out); err != nil {
		return nil, err
	}
	updated, err := json.Marshal(&out)
	if err != nil {
		return nil, err
	}
	s.runs[id] = updated
	return &out, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*Run, 0, len(s.runs))
	for _, buf := range s.runs {
		var run Run
		if err := json.Unmarshal(buf, &run); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}

	sortRuns(runs)
	return runs, nil
}

func (s *MemoryStore) PutResult(ctx context.Context, runID string, res *analysis.Result) error {
	buf, err := json.Marshal(res)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	byVideo, ok := s.results[runID]
	if !ok {
		byVideo = make(map[string][]byte)
		s.results[runID] = byVideo
	}
	byVideo[res.VideoID] = buf
	return nil
}

func (s *MemoryStore) ListResults(ctx context.Context, runID string) ([]*analysis.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byVideo := s.results[runID]
	ids := make([]string, 0, len(byVideo))
	for id := range byVideo {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	results := make([]*analysis.Result, 0, len(ids))
	for _, id := range ids {
		var res analysis.Result
		if err := json.Unmarshal(byVideo[id], &res); err != nil {
			return nil, err
		}
		results = append(results, &res)
	}
	return results, nil
}

var _ Store = (*MemoryStore)(nil)
