package daemon

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/formlab/formd/internal/config"
	"github.com/formlab/formd/internal/ingest"
	"github.com/formlab/formd/internal/jobs"
	"github.com/formlab/formd/internal/log"
)

// Analyzer runs a full analysis pass over the raw library.
// Implemented by jobs.Runner.
type Analyzer interface {
	Analyze(ctx context.Context) (*jobs.Status, error)
}

// App ties the daemon manager to the background work that drives it:
// the raw directory watcher and the optional analysis pass on startup.
type App struct {
	logger  zerolog.Logger
	cfg     config.AppConfig
	manager Manager
	runner  Analyzer
}

// NewApp builds the orchestrator. The manager must be non-nil; the
// runner may be nil when the process only serves existing artifacts.
func NewApp(logger zerolog.Logger, cfg config.AppConfig, manager Manager, runner Analyzer) (*App, error) {
	if manager == nil {
		return nil, ErrMissingManager
	}
	return &App{
		logger:  logger.With().Str(log.FieldComponent, "daemon").Logger(),
		cfg:     cfg,
		manager: manager,
		runner:  runner,
	}, nil
}

// Run starts the HTTP servers and background loops and blocks until the
// context is cancelled or a fatal error occurs. The watcher and the
// initial run are best-effort; only the manager decides the exit.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Ingest.Watch && a.runner != nil {
		w, err := ingest.NewWatcher(a.cfg.Ingest.RawDir, a.cfg.Ingest.SettleDelay, a.onSettle)
		if err != nil {
			a.logger.Warn().Err(err).
				Str("event", "ingest.watch_unavailable").
				Str(log.FieldPath, a.cfg.Ingest.RawDir).
				Msg("raw directory watch disabled")
		} else {
			w.Start(ctx)
		}
	}

	if a.cfg.Ingest.InitialRun && a.runner != nil {
		g.Go(func() error {
			st, err := a.runner.Analyze(ctx)
			switch {
			case errors.Is(err, jobs.ErrRunInProgress):
			case errors.Is(err, context.Canceled):
			case err != nil:
				// Startup should survive a bad first pass; the watcher
				// and the API can still trigger later ones.
				a.logger.Error().Err(err).
					Str("event", "run.initial_failed").
					Msg("initial analysis run failed")
			default:
				a.logger.Info().
					Str("event", "run.initial_completed").
					Int("videos", st.Videos).
					Int("reps", st.Reps).
					Msg("initial analysis run completed")
			}
			return nil
		})
	}

	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}

// onSettle fires after the raw directory has been quiet for the settle
// window. Overlapping triggers are dropped, not queued.
func (a *App) onSettle(ctx context.Context) {
	st, err := a.runner.Analyze(ctx)
	switch {
	case errors.Is(err, jobs.ErrRunInProgress):
		a.logger.Debug().
			Str("event", "run.trigger_skipped").
			Msg("analysis already running, watch trigger dropped")
	case errors.Is(err, context.Canceled):
	case err != nil:
		a.logger.Error().Err(err).
			Str("event", "run.watch_failed").
			Msg("watch-triggered analysis run failed")
	default:
		a.logger.Info().
			Str("event", "run.watch_completed").
			Int("videos", st.Videos).
			Int("reps", st.Reps).
			Msg("watch-triggered analysis run completed")
	}
}
