// Package watchdog detects stalled ffmpeg runs by watching the -progress
// output stream.
package watchdog

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/formlab/formd/internal/log"
)

// Both errors abort the monitored extraction.
var (
	ErrStartTimeout = errors.New("no frames produced within the start window")
	ErrStalled      = errors.New("frame output stalled")
)

// State describes the monitored process from the watchdog's point of view.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateStalled
	StateTimedOut
	StateCompleted
)

type clock interface {
	Now() time.Time
	NewTicker(d time.Duration) ticker
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time                   { return time.Now() }
func (realClock) NewTicker(d time.Duration) ticker { return &realTicker{time.NewTicker(d)} }

type realTicker struct {
	*time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.Ticker.C }

// Watchdog enforces start and stall windows over ffmpeg progress reports.
// Frame extraction writes one image per kept frame, so an advancing frame
// counter is the progress signal; the decode position (out_time_ms) covers
// stretches where every source frame is dropped by the select filter.
type Watchdog struct {
	mu sync.RWMutex

	startTimeout time.Duration
	stallTimeout time.Duration

	lastFrame     int64
	lastOutTimeMs int64
	lastHeartbeat time.Time

	state       State
	hasProgress bool

	cancel context.CancelFunc

	clock clock
}

// New returns a watchdog that fails after startTimeout without any progress
// and after stallTimeout once progress has been seen. A zero timeout
// disables the corresponding window.
func New(startTimeout, stallTimeout time.Duration) *Watchdog {
	return &Watchdog{
		startTimeout: startTimeout,
		stallTimeout: stallTimeout,
		clock:        realClock{},
	}
}

// Run watches until the context ends, the progress stream reports
// completion, or a window expires. Only the expired window returns an
// error.
func (w *Watchdog) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	w.cancel = cancel
	w.lastHeartbeat = w.clock.Now()
	w.state = StateStarting
	w.mu.Unlock()

	tick := w.clock.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C():
			if err := w.check(); err != nil {
				return err
			}
		}
	}
}

// ParseLine consumes one key=value line from the ffmpeg -progress stream.
// Malformed lines and non-monotonic values are ignored.
func (w *Watchdog) ParseLine(line string) {
	key, val, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	w.mu.Lock()
	defer w.mu.Unlock()

	switch key {
	case "frame":
		n, _ := strconv.ParseInt(val, 10, 64)
		if n > w.lastFrame {
			w.lastFrame = n
			w.recordHeartbeat()
		}
	case "out_time_ms":
		ms, _ := strconv.ParseInt(val, 10, 64)
		if ms > w.lastOutTimeMs {
			w.lastOutTimeMs = ms
			w.recordHeartbeat()
		}
	case "progress":
		if val == "end" {
			w.state = StateCompleted
			if w.cancel != nil {
				w.cancel()
			}
		}
	}
}

func (w *Watchdog) recordHeartbeat() {
	w.lastHeartbeat = w.clock.Now()
	if !w.hasProgress && (w.lastFrame > 0 || w.lastOutTimeMs > 0) {
		w.hasProgress = true
		w.state = StateRunning
		logger := log.WithComponent("ffmpeg.watchdog")
		logger.Debug().
			Int64("frame", w.lastFrame).
			Msg("first progress")
	}
}

func (w *Watchdog) check() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := w.clock.Now().Sub(w.lastHeartbeat)

	switch w.state {
	case StateStarting:
		if w.startTimeout > 0 && elapsed > w.startTimeout {
			w.state = StateTimedOut
			return ErrStartTimeout
		}
	case StateRunning:
		if w.stallTimeout > 0 && elapsed > w.stallTimeout {
			w.state = StateStalled
			return ErrStalled
		}
	}
	return nil
}

// State returns the current watchdog state.
func (w *Watchdog) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// LastFrame returns the highest frame count seen on the progress stream.
func (w *Watchdog) LastFrame() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastFrame
}
