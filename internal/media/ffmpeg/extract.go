package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/formlab/formd/internal/log"
	"github.com/formlab/formd/internal/media/ffmpeg/watchdog"
	"github.com/formlab/formd/internal/metrics"
	"github.com/formlab/formd/internal/procgroup"
)

var (
	startTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formd_ffmpeg_start_total",
		Help: "Total number of ffmpeg process starts",
	}, []string{"result"})

	exitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formd_ffmpeg_exit_total",
		Help: "Total number of ffmpeg process exits",
	}, []string{"reason"})
)

// Extractor runs ffmpeg to sample frames from videos.
type Extractor struct {
	Bin       string
	Timeout   time.Duration
	KillGrace time.Duration

	// StartGrace and StallTimeout drive the progress watchdog. A corrupt
	// input can make ffmpeg hang without ever failing; the watchdog kills
	// it long before Timeout would. StallTimeout <= 0 disables the
	// watchdog.
	StartGrace   time.Duration
	StallTimeout time.Duration

	logger zerolog.Logger
}

// NewExtractor returns an Extractor using the given ffmpeg binary, defaulting
// to "ffmpeg" from PATH.
func NewExtractor(bin string, timeout, stallTimeout time.Duration) *Extractor {
	if bin == "" {
		bin = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Extractor{
		Bin:          bin,
		Timeout:      timeout,
		KillGrace:    5 * time.Second,
		StartGrace:   20 * time.Second,
		StallTimeout: stallTimeout,
		logger:       log.WithComponent("ffmpeg.extract"),
	}
}

// Extract samples frames from spec.Input into spec.OutputDir and returns the
// number of frames written. The output directory is created if missing. On
// cancellation the whole process group gets SIGTERM first and SIGKILL after
// KillGrace.
func (e *Extractor) Extract(ctx context.Context, spec ExtractSpec) (int, error) {
	args, err := BuildExtractArgs(spec)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(spec.OutputDir, 0o750); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	// #nosec G204 -- binary comes from config, args are built above
	cmd := exec.CommandContext(ctx, e.Bin, args...)
	procgroup.Set(cmd)
	cmd.Cancel = func() error {
		return procgroup.Kill(cmd, syscall.SIGTERM)
	}
	cmd.WaitDelay = e.KillGrace

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, fmt.Errorf("pipe stderr: %w", err)
	}
	progress, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("pipe progress: %w", err)
	}

	ring := NewLineRing(64)

	var wd *watchdog.Watchdog
	if e.StallTimeout > 0 {
		wd = watchdog.New(e.StartGrace, e.StallTimeout)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		startTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("ffmpeg start: %w", err)
	}
	startTotal.WithLabelValues("ok").Inc()
	// Leader exit does not guarantee forked helpers exited; sweep the
	// group on the way out.
	defer func() { _ = procgroup.Kill(cmd, syscall.SIGKILL) }()

	e.logger.Debug().
		Str("event", "ffmpeg.extract.start").
		Str("input", spec.Input).
		Int("frame_skip", spec.FrameSkip).
		Msg("extracting frames")

	watchErr := make(chan error, 1)
	if wd != nil {
		go func() {
			if err := wd.Run(ctx); err != nil {
				watchErr <- err
				cancel()
			}
		}()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			ring.Add(scanner.Text())
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(progress)
		for scanner.Scan() {
			if wd != nil {
				wd.ParseLine(scanner.Text())
			}
		}
	}()
	// Both pipes must hit EOF before Wait may reap the process.
	wg.Wait()

	if waitErr := cmd.Wait(); waitErr != nil {
		reason := "error"
		var stall error
		select {
		case stall = <-watchErr:
			reason = "stall"
		default:
			if ctx.Err() != nil {
				reason = "ctx_cancel"
			}
		}
		exitTotal.WithLabelValues(reason).Inc()
		tail := strings.Join(ring.LastN(10), "; ")
		if stall != nil {
			return 0, fmt.Errorf("ffmpeg aborted for %s: %w (%d frames written, stderr: %s)",
				filepath.Base(spec.Input), stall, wd.LastFrame(), tail)
		}
		return 0, fmt.Errorf("ffmpeg failed for %s: %w (stderr: %s)", filepath.Base(spec.Input), waitErr, tail)
	}
	exitTotal.WithLabelValues("clean").Inc()

	frames, err := ListFrames(spec.OutputDir)
	if err != nil {
		return 0, err
	}
	if len(frames) == 0 {
		// ffmpeg exits 0 on inputs with no decodable video stream.
		tail := strings.Join(ring.LastN(10), "; ")
		return 0, fmt.Errorf("ffmpeg wrote no frames for %s (stderr: %s)", filepath.Base(spec.Input), tail)
	}

	e.logger.Info().
		Str("event", "ffmpeg.extract.done").
		Str("input", spec.Input).
		Int(log.FieldFrames, len(frames)).
		Dur("elapsed", time.Since(start)).
		Msg("frames extracted")

	metrics.AddFramesExtracted(len(frames))
	return len(frames), nil
}

// ListFrames returns the extracted frame files in frame index order.
func ListFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames dir: %w", err)
	}

	type indexed struct {
		idx  int
		path string
	}
	frames := make([]indexed, 0, len(entries))
	for _, ent := range entries {
		name := ent.Name()
		idx, ok := frameIndex(name)
		if !ok {
			continue
		}
		frames = append(frames, indexed{idx: idx, path: filepath.Join(dir, name)})
	}

	// Lexical order puts frame_10 before frame_2; sort numerically.
	sort.Slice(frames, func(i, j int) bool { return frames[i].idx < frames[j].idx })

	paths := make([]string, len(frames))
	for i, f := range frames {
		paths[i] = f.path
	}
	return paths, nil
}

func frameIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, "frame_") || !strings.HasSuffix(name, ".jpg") {
		return 0, false
	}
	num := strings.TrimSuffix(strings.TrimPrefix(name, "frame_"), ".jpg")
	idx, err := strconv.Atoi(num)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}
