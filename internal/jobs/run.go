package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/formlab/formd/internal/analysis"
	"github.com/formlab/formd/internal/catalog"
	"github.com/formlab/formd/internal/ingest"
	"github.com/formlab/formd/internal/log"
	"github.com/formlab/formd/internal/media/ffmpeg"
	"github.com/formlab/formd/internal/metrics"
	"github.com/formlab/formd/internal/pose"
	"github.com/formlab/formd/internal/store"
	"github.com/formlab/formd/internal/telemetry"
)

// digestMarker is the sidecar file recording the raw content digest a
// video's frames were extracted from.
const digestMarker = ".source_digest"

type videoOutcome struct {
	video  ingest.Video
	frames int
	result analysis.Result
	err    error
}

// run executes the pipeline for one claimed run slot and releases it on
// exit. Individual video failures are counted, not fatal; infrastructure
// failures (scan, export, persistence) fail the run.
func (r *Runner) run(ctx context.Context, runID string) (*Status, error) {
	defer r.running.Store(false)

	ctx = log.ContextWithRunID(ctx, runID)
	logger := log.WithComponentFromContext(ctx, "jobs")

	tracer := telemetry.Tracer("formd.jobs")
	ctx, span := tracer.Start(ctx, "analysis.run")
	defer span.End()

	start := time.Now()
	status := &Status{RunID: runID}

	logger.Info().
		Str("event", "run.start").
		Str("raw_dir", r.cfg.Ingest.RawDir).
		Msg("starting analysis run")

	if err := r.runs.PutRun(ctx, &store.Run{
		ID:            runID,
		Status:        store.RunRunning,
		StartedAtUnix: start.Unix(),
	}); err != nil {
		return r.fail(ctx, logger, span, status, start, "record", err)
	}

	if err := r.estimator.LoadModel(ctx); err != nil {
		return r.fail(ctx, logger, span, status, start, "model", err)
	}

	videos, err := ingest.Scan(r.cfg.Ingest.RawDir)
	if err != nil {
		return r.fail(ctx, logger, span, status, start, "scan", err)
	}
	status.Videos = len(videos)

	labels, err := catalog.LoadLabels(r.cfg.Catalog.LabelsFile)
	if err != nil {
		return r.fail(ctx, logger, span, status, start, "labels", err)
	}

	outcomes := make([]videoOutcome, len(videos))
	g, gctx := errgroup.WithContext(ctx)
	workers := r.cfg.Analysis.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, v := range videos {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = r.processVideo(gctx, runID, v, labels)
			return nil
		})
	}
	// Only cancellation propagates here; video errors live in outcomes.
	if err := g.Wait(); err != nil {
		return r.fail(ctx, logger, span, status, start, "videos", err)
	}

	for _, out := range outcomes {
		if out.err != nil {
			status.Failed++
			continue
		}
		status.Frames += out.frames
		status.Reps += out.result.Reps
		status.Faults += len(out.result.Faults)
	}

	entries, err := r.catalog.List(ctx)
	if err != nil {
		return r.fail(ctx, logger, span, status, start, "catalog", err)
	}
	csvPath := r.cfg.CSVPath()
	if err := catalog.ExportCSV(ctx, csvPath, entries); err != nil {
		return r.fail(ctx, logger, span, status, start, "export", err)
	}

	if r.mirror != nil {
		r.mirrorArtifacts(ctx, logger, csvPath, outcomes)
	}

	finished := time.Now()
	if _, err := r.runs.UpdateRun(ctx, runID, func(rec *store.Run) error {
		rec.Status = store.RunCompleted
		rec.Videos = status.Videos
		rec.Processed = status.Videos - status.Failed
		rec.Failed = status.Failed
		rec.FinishedAtUnix = finished.Unix()
		return nil
	}); err != nil {
		return r.fail(ctx, logger, span, status, start, "record", err)
	}

	status.LastRun = finished
	r.setLast(status)

	elapsed := finished.Sub(start)
	metrics.IncRun("success")
	metrics.ObserveRunDuration(elapsed)
	metrics.SetLastRunTimestamp(finished)
	span.SetAttributes(telemetry.RunAttributes(runID, store.RunCompleted, status.Videos, elapsed.Milliseconds())...)

	logger.Info().
		Str("event", "run.success").
		Int("videos", status.Videos).
		Int("failed", status.Failed).
		Int(log.FieldFrames, status.Frames).
		Int(log.FieldReps, status.Reps).
		Dur("elapsed", elapsed).
		Msg("analysis run completed")
	return status, nil
}

// fail finalizes a run that died in the given stage: metrics, span, run
// record and last-status snapshot all reflect the wrapped error.
func (r *Runner) fail(ctx context.Context, logger zerolog.Logger, span trace.Span, status *Status, start time.Time, stage string, err error) (*Status, error) {
	wrapped := fmt.Errorf("%s: %w", stage, err)
	status.Error = wrapped.Error()
	status.LastRun = time.Now()

	elapsed := time.Since(start)
	metrics.IncStageFailure(stage)
	metrics.IncRun("failure")
	metrics.ObserveRunDuration(elapsed)

	span.RecordError(wrapped)
	span.SetAttributes(telemetry.RunAttributes(status.RunID, store.RunFailed, status.Videos, elapsed.Milliseconds())...)

	if _, uerr := r.runs.UpdateRun(ctx, status.RunID, func(rec *store.Run) error {
		rec.Status = store.RunFailed
		rec.Error = wrapped.Error()
		rec.Videos = status.Videos
		rec.Failed = status.Failed
		rec.FinishedAtUnix = status.LastRun.Unix()
		return nil
	}); uerr != nil {
		logger.Error().
			Err(uerr).
			Str("event", "run.record_failed").
			Msg("failed to persist run failure")
	}

	r.setLast(status)

	logger.Error().
		Err(err).
		Str("event", "run.failed").
		Str(log.FieldStage, stage).
		Msg("analysis run failed")
	return status, wrapped
}

// processVideo runs the per-video stages. A failed stage marks the outcome
// and stops this video only.
func (r *Runner) processVideo(ctx context.Context, runID string, v ingest.Video, labels map[string]catalog.Label) videoOutcome {
	ctx = log.ContextWithVideoID(ctx, v.ID)
	logger := log.WithComponentFromContext(ctx, "jobs")

	label := catalog.Lookup(labels, v.Name)

	tracer := telemetry.Tracer("formd.jobs")
	ctx, span := tracer.Start(ctx, "analysis.video")
	span.SetAttributes(telemetry.VideoAttributes(v.ID, label.Exercise)...)
	defer span.End()

	out := videoOutcome{video: v}
	failv := func(stage string, err error) videoOutcome {
		out.err = fmt.Errorf("%s: %w", stage, err)
		metrics.IncStageFailure(stage)
		metrics.IncVideoAnalyzed("failed")
		span.RecordError(out.err)
		logger.Error().
			Err(err).
			Str("event", "video.failed").
			Str(log.FieldStage, stage).
			Str(log.FieldPath, v.Path).
			Msg("video processing failed")
		return out
	}

	info, err := r.prober.Probe(ctx, v.Path)
	if err != nil {
		return failv("probe", err)
	}

	outDir := r.processedDir(v.ID)
	frames, extracted, err := r.ensureFrames(ctx, v, outDir)
	if err != nil {
		return failv("extract", err)
	}
	out.frames = len(frames)
	span.SetAttributes(telemetry.ExtractAttributes(len(frames), r.cfg.Extract.FrameSkip)...)

	frameData := make([][]byte, len(frames))
	for i, p := range frames {
		data, err := os.ReadFile(p) // #nosec G304 -- paths come from our own frames dir
		if err != nil {
			return failv("frames", err)
		}
		frameData[i] = data
	}

	poses, err := r.estimator.EstimateBatch(ctx, frameData)
	if err != nil {
		return failv("estimate", err)
	}

	samples := analysis.BuildSamples(poses)
	res := analysis.Analyze(v.ID, label.Exercise, samples, r.thresholds())
	out.result = res

	rendered, err := r.renderOverlays(outDir, frameData, poses, samples, res.Feedback)
	if err != nil {
		return failv("overlay", err)
	}
	metrics.AddOverlaysRendered(rendered)

	entry := catalog.Entry{
		ID:            v.ID,
		Exercise:      label.Exercise,
		Form:          label.Form,
		RawPath:       v.Path,
		ProcessedPath: outDir,
		Frames:        len(frames),
		Codec:         info.Codec,
		Width:         info.Width,
		Height:        info.Height,
		FPS:           info.FPS,
		Duration:      info.Duration,
	}
	if err := r.catalog.Upsert(ctx, entry); err != nil {
		return failv("catalog", err)
	}

	if err := r.runs.PutResult(ctx, runID, &res); err != nil {
		return failv("results", err)
	}

	logger.Info().
		Str("event", "video.analyzed").
		Str(log.FieldExercise, label.Exercise).
		Str(log.FieldVerdict, res.Verdict).
		Int(log.FieldReps, res.Reps).
		Int(log.FieldFrames, len(frames)).
		Bool("extracted", extracted).
		Msg("video analyzed")
	return out
}

// ensureFrames returns the frame files for v, re-extracting only when the
// stored content digest no longer matches the raw file.
func (r *Runner) ensureFrames(ctx context.Context, v ingest.Video, outDir string) ([]string, bool, error) {
	digest, err := digestFile(v.Path)
	if err != nil {
		return nil, false, fmt.Errorf("digest %s: %w", v.Name, err)
	}

	marker := filepath.Join(outDir, digestMarker)
	if prev, err := os.ReadFile(marker); err == nil && strings.TrimSpace(string(prev)) == digest {
		frames, err := ffmpeg.ListFrames(outDir)
		if err == nil && len(frames) > 0 {
			return frames, false, nil
		}
	}

	// Stale or missing frames: rebuild the directory from scratch so a
	// shorter re-encode cannot leave orphaned high-numbered frames behind.
	if err := os.RemoveAll(outDir); err != nil {
		return nil, false, fmt.Errorf("clear frames dir: %w", err)
	}

	if _, err := r.extractor.Extract(ctx, ffmpeg.ExtractSpec{
		Input:     v.Path,
		OutputDir: outDir,
		FrameSkip: r.cfg.Extract.FrameSkip,
		Width:     r.cfg.Extract.Width,
		Height:    r.cfg.Extract.Height,
	}); err != nil {
		return nil, false, err
	}

	if err := renameio.WriteFile(marker, []byte(digest), 0o640); err != nil {
		return nil, false, fmt.Errorf("write digest marker: %w", err)
	}

	frames, err := ffmpeg.ListFrames(outDir)
	if err != nil {
		return nil, false, err
	}
	return frames, true, nil
}

// renderOverlays annotates every OverlayEvery-th frame as overlay_<n>.jpg
// next to its source frame. Zero disables rendering.
func (r *Runner) renderOverlays(dir string, frames [][]byte, poses []pose.Pose, samples []analysis.Sample, feedback []string) (int, error) {
	every := r.cfg.Analysis.OverlayEvery
	if every <= 0 {
		return 0, nil
	}

	var rendered int
	for i := 0; i < len(frames); i += every {
		annotated, err := r.renderer.AnnotateJPEG(frames[i], poses[i], angleLabels(samples[i]), feedback)
		if err != nil {
			return rendered, fmt.Errorf("frame %d: %w", i, err)
		}
		name := filepath.Join(dir, fmt.Sprintf("overlay_%d.jpg", i))
		if err := os.WriteFile(name, annotated, 0o640); err != nil {
			return rendered, fmt.Errorf("frame %d: %w", i, err)
		}
		rendered++
	}
	return rendered, nil
}

// mirrorArtifacts uploads the report and each processed video's frames.
// Mirroring is best-effort: failures are logged and counted, the run still
// completes.
func (r *Runner) mirrorArtifacts(ctx context.Context, logger zerolog.Logger, csvPath string, outcomes []videoOutcome) {
	if err := r.mirror.UploadFile(ctx, "metadata.csv", csvPath); err != nil {
		metrics.IncStageFailure("mirror")
		logger.Warn().
			Err(err).
			Str("event", "mirror.failed").
			Msg("metadata mirror failed")
	}

	for _, out := range outcomes {
		if out.err != nil {
			continue
		}
		dir := r.processedDir(out.video.ID)
		if _, err := r.mirror.UploadTree(ctx, path.Join("processed", out.video.ID), dir); err != nil {
			metrics.IncStageFailure("mirror")
			logger.Warn().
				Err(err).
				Str("event", "mirror.failed").
				Str(log.FieldVideoID, out.video.ID).
				Msg("artifact mirror failed")
		}
	}
}

func (r *Runner) processedDir(videoID string) string {
	return filepath.Join(r.cfg.ProcessedDir(), videoID)
}

// thresholds applies configured assessment angles over the defaults.
func (r *Runner) thresholds() analysis.Thresholds {
	th := analysis.DefaultThresholds()
	c := r.cfg.Analysis
	if c.SquatDepthDeg > 0 {
		th.SquatDepthDeg = c.SquatDepthDeg
	}
	if c.BackStraightDeg > 0 {
		th.BackStraightDeg = c.BackStraightDeg
	}
	if c.RepDownDeg > 0 {
		th.RepDownDeg = c.RepDownDeg
	}
	if c.RepUpDeg > 0 {
		th.RepUpDeg = c.RepUpDeg
	}
	return th
}

// angleLabels places the knee and hip angles on their vertices and anchors
// the back angle at the shoulder.
func angleLabels(s analysis.Sample) map[string]float64 {
	labels := make(map[string]float64, 3)
	if s.Knee.OK {
		labels[pose.JointKnee] = s.Knee.Deg
	}
	if s.Hip.OK {
		labels[pose.JointHip] = s.Hip.Deg
	}
	if s.Back.OK {
		labels[pose.JointShoulder] = s.Back.Deg
	}
	return labels
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the ingest scan
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
