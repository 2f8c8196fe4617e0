// Package store persists analysis runs and their per-video results.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/formlab/formd/internal/analysis"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("store: run not found")

// Run states.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is one pipeline execution over the video library.
type Run struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Videos         int    `json:"videos"`
	Processed      int    `json:"processed"`
	Failed         int    `json:"failed"`
	Error          string `json:"error,omitempty"`
	StartedAtUnix  int64  `json:"started_at"`
	FinishedAtUnix int64  `json:"finished_at,omitempty"`
}

// Store is the run and result persistence backend.
type Store interface {
	PutRun(ctx context.Context, run *Run) error
	// GetRun returns ErrNotFound for unknown run IDs.
	GetRun(ctx context.Context, id string) (*Run, error)
	// UpdateRun applies fn to the stored run and persists the result.
	UpdateRun(ctx context.Context, id string, fn func(*Run) error) (*Run, error)
	// ListRuns returns runs ordered most recent first.
	ListRuns(ctx context.Context) ([]*Run, error)
	PutResult(ctx context.Context, runID string, res *analysis.Result) error
	// ListResults returns a run's results ordered by video ID.
	ListResults(ctx context.Context, runID string) ([]*analysis.Result, error)
	Close() error
}

// Open creates a Store for the configured backend. An empty dir falls back
// to the in-memory store, which keeps tests and dry runs from touching disk.
func Open(backend, dir string) (Store, error) {
	if backend == "" {
		backend = "badger"
	}

	switch backend {
	case "badger":
		if dir == "" {
			return NewMemory(), nil
		}
		return OpenBadger(filepath.Join(dir, "runs.badger"))
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown run store backend: %q (supported: badger, memory)", backend)
	}
}

func runKey(id string) []byte { return []byte("run:" + id) }

func resultKey(runID, videoID string) []byte {
	return []byte("res:" + runID + ":" + videoID)
}

func resultPrefix(runID string) []byte { return []byte("res:" + runID + ":") }
