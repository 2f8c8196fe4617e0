// Package analysis assesses lifting form from per-frame joint angles: it
// segments repetitions, checks exercise-specific faults and produces a
// verdict with feedback for the overlay renderer.
package analysis

import (
	"github.com/formlab/formd/internal/angles"
	"github.com/formlab/formd/internal/pose"
)

// Thresholds are the tunable assessment angles in degrees.
type Thresholds struct {
	SquatDepthDeg   float64 // a rep reaching this knee angle or below counts as full depth
	BackStraightDeg float64 // back angles below this count as rounding or excessive lean
	RepDownDeg      float64 // knee angle that opens a repetition on the way down
	RepUpDeg        float64 // knee angle that closes a repetition on the way up
}

// DefaultThresholds returns the stock assessment thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SquatDepthDeg:   100,
		BackStraightDeg: 150,
		RepDownDeg:      120,
		RepUpDeg:        160,
	}
}

// Measurement is one joint angle with validity. OK is false when the joints
// needed for the angle were missing from the frame.
type Measurement struct {
	Deg float64
	OK  bool
}

// Sample holds the normalized pose and joint angles of one extracted frame.
type Sample struct {
	Index int
	Pose  pose.Pose
	Knee  Measurement
	Hip   Measurement
	Back  Measurement
}

// BuildSamples normalizes each frame's pose and measures the joint angles.
// The sample index matches the extracted frame number.
func BuildSamples(poses []pose.Pose) []Sample {
	samples := make([]Sample, len(poses))
	for i, p := range poses {
		n := pose.Normalize(p)
		s := Sample{Index: i, Pose: n}
		s.Knee.Deg, s.Knee.OK = angles.Knee(n)
		s.Hip.Deg, s.Hip.OK = angles.Hip(n)
		s.Back.Deg, s.Back.OK = angles.Back(n)
		samples[i] = s
	}
	return samples
}
