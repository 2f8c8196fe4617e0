// Package jobs orchestrates analysis runs: scanning the raw library,
// extracting frames, estimating poses, assessing form and publishing the
// catalog, report and run records.
package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/formlab/formd/internal/catalog"
	"github.com/formlab/formd/internal/config"
	"github.com/formlab/formd/internal/media/ffmpeg"
	"github.com/formlab/formd/internal/overlay"
	"github.com/formlab/formd/internal/pose"
	"github.com/formlab/formd/internal/storage"
	"github.com/formlab/formd/internal/store"
)

// ErrRunInProgress is returned when a run is triggered while one is active.
var ErrRunInProgress = errors.New("analysis run already in progress")

// Prober inspects raw videos before extraction.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
}

// Extractor samples frames from a raw video.
type Extractor interface {
	Extract(ctx context.Context, spec ffmpeg.ExtractSpec) (int, error)
}

// Status is the outcome of the most recent analysis run.
type Status struct {
	RunID   string    `json:"run_id"`
	LastRun time.Time `json:"last_run"`
	Videos  int       `json:"videos"`
	Frames  int       `json:"frames"`
	Reps    int       `json:"reps"`
	Faults  int       `json:"faults"`
	Failed  int       `json:"failed"`
	Error   string    `json:"error,omitempty"`
}

// Deps are the pipeline collaborators. Prober and Extractor default to the
// ffmpeg implementations when nil; Mirror may stay nil to disable mirroring.
type Deps struct {
	Prober    Prober
	Extractor Extractor
	Estimator pose.Estimator
	Catalog   *catalog.Store
	Runs      store.Store
	Mirror    *storage.Mirror
}

// Runner executes analysis runs one at a time.
type Runner struct {
	cfg       config.AppConfig
	prober    Prober
	extractor Extractor
	estimator pose.Estimator
	catalog   *catalog.Store
	runs      store.Store
	mirror    *storage.Mirror
	renderer  *overlay.Renderer

	running atomic.Bool

	mu        sync.Mutex
	last      *Status
	cancelRun context.CancelFunc
}

// NewRunner wires a Runner from the config snapshot and its collaborators.
func NewRunner(cfg config.AppConfig, deps Deps) *Runner {
	if deps.Prober == nil {
		deps.Prober = ffmpeg.NewProber(cfg.FFmpeg.FFprobeBin)
	}
	if deps.Extractor == nil {
		deps.Extractor = ffmpeg.NewExtractor(cfg.FFmpeg.Bin, cfg.Extract.Timeout, cfg.Extract.StallTimeout)
	}
	return &Runner{
		cfg:       cfg,
		prober:    deps.Prober,
		extractor: deps.Extractor,
		estimator: deps.Estimator,
		catalog:   deps.Catalog,
		runs:      deps.Runs,
		mirror:    deps.Mirror,
		renderer:  overlay.NewRenderer(),
	}
}

// Analyze performs one full run synchronously and returns its status. Only
// one run executes at a time; concurrent calls fail with ErrRunInProgress.
func (r *Runner) Analyze(ctx context.Context) (*Status, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	return r.run(ctx, uuid.NewString())
}

// Trigger starts a run in the background and returns its ID immediately.
// The run outlives the caller's request context; trace and log values are
// carried over, cancellation is not.
func (r *Runner) Trigger(ctx context.Context) (string, error) {
	if !r.running.CompareAndSwap(false, true) {
		return "", ErrRunInProgress
	}
	runID := uuid.NewString()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.mu.Lock()
	r.cancelRun = cancel
	r.mu.Unlock()

	go func() {
		defer cancel()
		// Failures are recorded on the status and the run record.
		_, _ = r.run(runCtx, runID)
	}()
	return runID, nil
}

// Abort cancels a background run started by Trigger, if one is active.
func (r *Runner) Abort() {
	r.mu.Lock()
	cancel := r.cancelRun
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Running reports whether a run is currently executing.
func (r *Runner) Running() bool { return r.running.Load() }

// Status returns a copy of the latest run status, nil before the first run.
func (r *Runner) Status() *Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	s := *r.last
	return &s
}

// LastRun reports the completion time and error text of the latest run, in
// the shape the readiness probe consumes.
func (r *Runner) LastRun() (time.Time, string) {
	s := r.Status()
	if s == nil {
		return time.Time{}, ""
	}
	return s.LastRun, s.Error
}

func (r *Runner) setLast(s *Status) {
	r.mu.Lock()
	r.last = s
	r.mu.Unlock()
}
