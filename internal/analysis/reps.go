package analysis

// Rep is one detected repetition of the main lift movement.
type Rep struct {
	Start   int // sample index where the descent crossed the down threshold
	Bottom  int // sample index of the deepest knee angle
	End     int // sample index where the ascent crossed the up threshold
	MinKnee float64
}

// CountReps segments samples into repetitions using hysteresis on the knee
// angle: a rep opens when the knee flexes to the down threshold or below and
// closes when it extends past the up threshold. The gap between the two
// thresholds keeps jitter around a single boundary from double counting.
// A descent still open when the samples end is discarded.
func CountReps(samples []Sample, th Thresholds) []Rep {
	var reps []Rep
	inRep := false
	var cur Rep

	for _, s := range samples {
		if !s.Knee.OK {
			continue
		}
		deg := s.Knee.Deg

		if !inRep {
			if deg <= th.RepDownDeg {
				inRep = true
				cur = Rep{Start: s.Index, Bottom: s.Index, MinKnee: deg}
			}
			continue
		}

		if deg < cur.MinKnee {
			cur.MinKnee = deg
			cur.Bottom = s.Index
		}
		if deg >= th.RepUpDeg {
			cur.End = s.Index
			reps = append(reps, cur)
			inRep = false
		}
	}

	return reps
}
