// Package pose defines body landmarks and the estimator contract used by the
// analysis pipeline.
package pose

// Point is a normalized landmark position. X and Y are in [0,1] relative to
// frame width and height; Z is relative depth.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Pose maps joint names to positions.
type Pose map[string]Point

// Canonical joints required by the angle computations.
const (
	JointShoulder = "shoulder"
	JointHip      = "hip"
	JointKnee     = "knee"
	JointAnkle    = "ankle"
)

// Full-body landmark names as produced by MediaPipe-style estimators. The
// overlay connection graph is defined over these.
const (
	LandmarkNose           = "NOSE"
	LandmarkLeftEye        = "LEFT_EYE"
	LandmarkRightEye       = "RIGHT_EYE"
	LandmarkLeftEar        = "LEFT_EAR"
	LandmarkRightEar       = "RIGHT_EAR"
	LandmarkLeftShoulder   = "LEFT_SHOULDER"
	LandmarkRightShoulder  = "RIGHT_SHOULDER"
	LandmarkLeftElbow      = "LEFT_ELBOW"
	LandmarkRightElbow     = "RIGHT_ELBOW"
	LandmarkLeftWrist      = "LEFT_WRIST"
	LandmarkRightWrist     = "RIGHT_WRIST"
	LandmarkLeftHip        = "LEFT_HIP"
	LandmarkRightHip       = "RIGHT_HIP"
	LandmarkLeftKnee       = "LEFT_KNEE"
	LandmarkRightKnee      = "RIGHT_KNEE"
	LandmarkLeftAnkle      = "LEFT_ANKLE"
	LandmarkRightAnkle     = "RIGHT_ANKLE"
	LandmarkLeftHeel       = "LEFT_HEEL"
	LandmarkRightHeel      = "RIGHT_HEEL"
	LandmarkLeftFootIndex  = "LEFT_FOOT_INDEX"
	LandmarkRightFootIndex = "RIGHT_FOOT_INDEX"
)

// SimpleJoints lists the four joints the angle computations require.
var SimpleJoints = []string{JointShoulder, JointHip, JointKnee, JointAnkle}

// simpleFromLandmarks maps each canonical joint to full-body candidates in
// preference order (left side first).
var simpleFromLandmarks = map[string][]string{
	JointShoulder: {LandmarkLeftShoulder, LandmarkRightShoulder},
	JointHip:      {LandmarkLeftHip, LandmarkRightHip},
	JointKnee:     {LandmarkLeftKnee, LandmarkRightKnee},
	JointAnkle:    {LandmarkLeftAnkle, LandmarkRightAnkle},
}

// Normalize reduces a pose to the simple four-joint view used by the angle
// computations. Simple-joint keys pass through unchanged; full-body landmark
// names fill gaps, preferring the left side. Joints absent in both views stay
// absent.
func Normalize(p Pose) Pose {
	out := make(Pose, len(SimpleJoints))
	for _, joint := range SimpleJoints {
		if pt, ok := p[joint]; ok {
			out[joint] = pt
			continue
		}
		for _, candidate := range simpleFromLandmarks[joint] {
			if pt, ok := p[candidate]; ok {
				out[joint] = pt
				break
			}
		}
	}
	return out
}

// Has reports whether all named joints are present.
func (p Pose) Has(joints ...string) bool {
	for _, j := range joints {
		if _, ok := p[j]; !ok {
			return false
		}
	}
	return true
}

// Clone returns a copy of the pose.
func (p Pose) Clone() Pose {
	out := make(Pose, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
