// Package metrics exposes Prometheus collectors for the analysis pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	videosDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "formd_videos_discovered",
		Help: "Number of raw videos discovered in the last scan",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formd_runs_total",
		Help: "Analysis runs by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	runDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "formd_run_duration_seconds",
		Help:    "Wall time of a full analysis run",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	videosAnalyzedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formd_videos_analyzed_total",
		Help: "Per-video analysis attempts by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	stageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formd_stage_failures_total",
		Help: "Pipeline failures by stage",
	}, []string{"stage"}) // stage=scan|probe|extract|estimate|analyze|overlay|catalog|export|store|mirror

	framesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formd_frames_extracted_total",
		Help: "Total frames written by the extraction stage",
	})

	posesEstimatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formd_poses_estimated_total",
		Help: "Pose estimations by source",
	}, []string{"source"}) // source=stub|remote|cache

	poseFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formd_pose_failures_total",
		Help: "Total pose estimation failures",
	})

	repsCountedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formd_reps_counted_total",
		Help: "Total repetitions counted across analyzed videos",
	})

	formFaultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formd_form_faults_total",
		Help: "Detected form faults by exercise and kind",
	}, []string{"exercise", "fault"})

	overlaysRenderedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formd_overlays_rendered_total",
		Help: "Total overlay frames rendered",
	})

	catalogUpsertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formd_catalog_upserts_total",
		Help: "Total catalog record upserts",
	})

	csvExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formd_csv_exports_total",
		Help: "Metadata CSV exports by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	mirrorUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formd_mirror_uploads_total",
		Help: "Artifact mirror uploads by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	watchEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formd_watch_events_total",
		Help: "Watch-folder events by action",
	}, []string{"action"}) // action=queued|ignored

	lastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "formd_last_run_timestamp_seconds",
		Help: "Unix time of the last completed analysis run",
	})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "formd_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	breakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "formd_breaker_trips_total",
		Help: "Circuit breaker open transitions by reason",
	}, []string{"name", "reason"}) // reason=threshold|probe_failed
)

func RecordVideosDiscovered(n int) { videosDiscovered.Set(float64(n)) }
func IncRun(outcome string)        { runsTotal.WithLabelValues(outcome).Inc() }
func ObserveRunDuration(d time.Duration) {
	runDurationSeconds.Observe(d.Seconds())
}
func IncVideoAnalyzed(outcome string) { videosAnalyzedTotal.WithLabelValues(outcome).Inc() }
func IncStageFailure(stage string)    { stageFailuresTotal.WithLabelValues(stage).Inc() }
func AddFramesExtracted(n int)        { framesExtractedTotal.Add(float64(n)) }
func IncPoseEstimated(source string)  { posesEstimatedTotal.WithLabelValues(source).Inc() }
func IncPoseFailure()                 { poseFailuresTotal.Inc() }
func AddRepsCounted(n int)            { repsCountedTotal.Add(float64(n)) }
func IncFormFault(exercise, fault string) {
	formFaultsTotal.WithLabelValues(exercise, fault).Inc()
}
func AddOverlaysRendered(n int)   { overlaysRenderedTotal.Add(float64(n)) }
func IncCatalogUpsert()           { catalogUpsertsTotal.Inc() }
func IncCSVExport(outcome string) { csvExportsTotal.WithLabelValues(outcome).Inc() }
func IncMirrorUpload(outcome string) {
	mirrorUploadsTotal.WithLabelValues(outcome).Inc()
}
func IncWatchEvent(action string) { watchEventsTotal.WithLabelValues(action).Inc() }
func SetLastRunTimestamp(t time.Time) {
	lastRunTimestamp.Set(float64(t.Unix()))
}

// SetBreakerState maps breaker states onto a small gauge scale so
// dashboards can alert on anything above zero.
func SetBreakerState(name, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	breakerState.WithLabelValues(name).Set(v)
}

func IncBreakerTrip(name, reason string) {
	breakerTripsTotal.WithLabelValues(name, reason).Inc()
}
