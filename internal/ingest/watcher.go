package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/formlab/formd/internal/log"
	"github.com/formlab/formd/internal/metrics"
)

// Watcher observes the raw directory tree and invokes a callback once file
// activity has settled. Copying a large video fires many write events; the
// settle delay is reset on each one so the callback sees complete files.
type Watcher struct {
	root     string
	settle   time.Duration
	onSettle func(context.Context)

	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for root. onSettle runs in its own goroutine
// after events have been quiet for the settle duration.
func NewWatcher(root string, settle time.Duration, onSettle func(context.Context)) (*Watcher, error) {
	if settle <= 0 {
		settle = 2 * time.Second
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		root:     root,
		settle:   settle,
		onSettle: onSettle,
		watcher:  fw,
		logger:   log.WithComponent("ingest.watch"),
	}

	// fsnotify is not recursive: register the root and every existing
	// subdirectory, new ones are added as their create events arrive.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}

	return w, nil
}

// Start runs the event loop until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info().
		Str("event", "ingest.watch_started").
		Str(log.FieldPath, w.root).
		Dur("settle", w.settle).
		Msg("watching raw directory")

	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str("event", "ingest.watch_stopped").Msg("watcher stopped")
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).
				Str("event", "ingest.watch_error").
				Msg("watcher error")
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}

	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return
	}

	// A new directory needs its own watch before files inside it are seen.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Warn().Err(err).
					Str(log.FieldPath, event.Name).
					Msg("failed to watch new directory")
			}
			return
		}
	}

	if !SupportedExtensions[strings.ToLower(filepath.Ext(base))] {
		return
	}

	metrics.IncWatchEvent(strings.ToLower(event.Op.String()))
	w.logger.Debug().
		Str("event", "ingest.file_changed").
		Str("op", event.Op.String()).
		Str(log.FieldPath, event.Name).
		Msg("raw directory changed")

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.settle, func() {
		if ctx.Err() != nil {
			return
		}
		w.onSettle(ctx)
	})
}

// Stop closes the underlying watcher and cancels a pending settle callback.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	_ = w.watcher.Close()
}
