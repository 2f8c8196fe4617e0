package analysis

import "fmt"

// Fault codes.
const (
	FaultShallowDepth = "shallow_depth"
	FaultBackRounding = "back_rounding"
)

// Fault describes one observed form problem.
type Fault struct {
	Code    string  `json:"code"`
	Frame   int     `json:"frame"`
	Angle   float64 `json:"angle_deg"`
	Message string  `json:"message"`
}

// checkDepth flags every rep whose deepest knee angle stays above the depth
// target.
func checkDepth(reps []Rep, th Thresholds) []Fault {
	var faults []Fault
	for _, r := range reps {
		if r.MinKnee > th.SquatDepthDeg {
			faults = append(faults, Fault{
				Code:    FaultShallowDepth,
				Frame:   r.Bottom,
				Angle:   r.MinKnee,
				Message: fmt.Sprintf("squat depth not reached: knee angle bottomed out at %.0f°", r.MinKnee),
			})
		}
	}
	return faults
}

// checkBack flags the single worst frame where the back angle drops below
// straight. One fault per video keeps repeated rounding from flooding the
// result.
func checkBack(samples []Sample, th Thresholds) []Fault {
	worst := -1
	worstDeg := 180.0
	for i, s := range samples {
		if !s.Back.OK {
			continue
		}
		if s.Back.Deg < worstDeg {
			worstDeg = s.Back.Deg
			worst = i
		}
	}
	if worst < 0 || worstDeg >= th.BackStraightDeg {
		return nil
	}
	return []Fault{{
		Code:    FaultBackRounding,
		Frame:   samples[worst].Index,
		Angle:   worstDeg,
		Message: fmt.Sprintf("back rounding detected: back angle dropped to %.0f°", worstDeg),
	}}
}
