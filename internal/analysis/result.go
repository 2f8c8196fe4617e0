package analysis

import (
	"fmt"
	"time"

	"github.com/formlab/formd/internal/metrics"
)

// Exercise names as the catalog labels them.
const (
	ExerciseSquat    = "squat"
	ExerciseDeadlift = "deadlift"
	ExerciseBench    = "bench press"
)

// Verdicts.
const (
	VerdictGood    = "good"
	VerdictBad     = "bad"
	VerdictUnknown = "unknown"
)

// Result is the assessment of one video.
type Result struct {
	VideoID        string   `json:"video_id"`
	Exercise       string   `json:"exercise"`
	Verdict        string   `json:"verdict"`
	Reps           int      `json:"reps"`
	Faults         []Fault  `json:"faults,omitempty"`
	Feedback       []string `json:"feedback,omitempty"`
	Samples        int      `json:"samples"`
	ValidSamples   int      `json:"valid_samples"`
	AnalyzedAtUnix int64    `json:"analyzed_at"`
}

// Analyze assesses one video's sampled poses for the given exercise.
//
// Squat and deadlift reps are counted from knee flexion; squats are
// additionally checked for depth, both for back rounding. Exercises the
// profile landmarks cannot assess (bench press, unlabeled videos) come back
// with an unknown verdict rather than a guess.
func Analyze(videoID, exercise string, samples []Sample, th Thresholds) Result {
	res := Result{
		VideoID:        videoID,
		Exercise:       exercise,
		Verdict:        VerdictUnknown,
		Samples:        len(samples),
		AnalyzedAtUnix: time.Now().Unix(),
	}

	for _, s := range samples {
		if s.Knee.OK || s.Back.OK {
			res.ValidSamples++
		}
	}
	if res.ValidSamples == 0 {
		res.Feedback = nil
		metrics.IncVideoAnalyzed(res.Verdict)
		return res
	}

	switch exercise {
	case ExerciseSquat, ExerciseDeadlift:
		reps := CountReps(samples, th)
		res.Reps = len(reps)
		metrics.AddRepsCounted(len(reps))

		if exercise == ExerciseSquat {
			res.Faults = append(res.Faults, checkDepth(reps, th)...)
		}
		res.Faults = append(res.Faults, checkBack(samples, th)...)
		for _, f := range res.Faults {
			metrics.IncFormFault(exercise, f.Code)
		}

		switch {
		case len(res.Faults) > 0:
			res.Verdict = VerdictBad
		case res.Reps > 0:
			res.Verdict = VerdictGood
		default:
			res.Verdict = VerdictUnknown
		}
	default:
		// No assessable signal for this exercise from profile landmarks.
		res.Verdict = VerdictUnknown
	}

	res.Feedback = feedbackFor(res.Verdict, res.Faults)
	metrics.IncVideoAnalyzed(res.Verdict)
	return res
}

// feedbackFor builds the short imperative lines rendered onto overlays.
func feedbackFor(verdict string, faults []Fault) []string {
	switch verdict {
	case VerdictGood:
		return []string{"Good form!"}
	case VerdictBad:
		seen := make(map[string]bool, len(faults))
		var msgs []string
		for _, f := range faults {
			if seen[f.Code] {
				continue
			}
			seen[f.Code] = true
			switch f.Code {
			case FaultShallowDepth:
				msgs = append(msgs, "Increase squat depth")
			case FaultBackRounding:
				msgs = append(msgs, "Keep your back straight")
			default:
				msgs = append(msgs, fmt.Sprintf("Check your form: %s", f.Code))
			}
		}
		return msgs
	default:
		return nil
	}
}
