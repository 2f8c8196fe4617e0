// Package angles computes joint angles from pose landmarks.
//
// Angles are measured in the image plane: the z coordinate carries depth
// confidence from the estimator and is ignored here. All results are in
// degrees within [0, 180].
package angles

import (
	"math"

	"github.com/formlab/formd/internal/pose"
)

// Angle returns the angle at vertex b formed by the segments b-a and b-c.
// The boolean is false when either segment has zero length.
func Angle(a, b, c pose.Point) (float64, bool) {
	v1x, v1y := a.X-b.X, a.Y-b.Y
	v2x, v2y := c.X-b.X, c.Y-b.Y

	n1 := math.Hypot(v1x, v1y)
	n2 := math.Hypot(v2x, v2y)
	if n1 == 0 || n2 == 0 {
		return 0, false
	}

	cos := (v1x*v2x + v1y*v2y) / (n1 * n2)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}

	return math.Acos(cos) * 180 / math.Pi, true
}

// Knee returns the knee flexion angle (hip-knee-ankle). 180 is a fully
// extended leg, smaller values mean more flexion.
func Knee(p pose.Pose) (float64, bool) {
	return at(p, pose.JointHip, pose.JointKnee, pose.JointAnkle)
}

// Hip returns the hip angle (shoulder-hip-knee).
func Hip(p pose.Pose) (float64, bool) {
	return at(p, pose.JointShoulder, pose.JointHip, pose.JointKnee)
}

// Back returns the spinal alignment angle (shoulder-hip-ankle). Values near
// 180 indicate a straight back, smaller values forward lean or rounding.
func Back(p pose.Pose) (float64, bool) {
	return at(p, pose.JointShoulder, pose.JointHip, pose.JointAnkle)
}

func at(p pose.Pose, a, b, c string) (float64, bool) {
	pa, aok := p[a]
	pb, bok := p[b]
	pc, cok := p[c]
	if !aok || !bok || !cok {
		return 0, false
	}
	return Angle(pa, pb, pc)
}
