package poseframe

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// TrackerRole is the body slot a tracker's data represents.
type TrackerRole string

const (
	RoleHMD       TrackerRole = "HMD"
	RoleChest     TrackerRole = "CHEST"
	RoleWaist     TrackerRole = "WAIST"
	RoleHip       TrackerRole = "HIP"
	RoleLeftKnee  TrackerRole = "LEFT_KNEE"
	RoleRightKnee TrackerRole = "RIGHT_KNEE"
	RoleLeftFoot  TrackerRole = "LEFT_FOOT"
	RoleRightFoot TrackerRole = "RIGHT_FOOT"
)

// Roles lists every role a recording may carry, in body order.
var Roles = []TrackerRole{
	RoleHMD,
	RoleChest,
	RoleWaist,
	RoleHip,
	RoleLeftKnee,
	RoleRightKnee,
	RoleLeftFoot,
	RoleRightFoot,
}

// Valid reports whether r is a known role.
func (r TrackerRole) Valid() bool {
	for _, v := range Roles {
		if v == r {
			return true
		}
	}
	return false
}

// Frame is one recorded sample of a tracker.
type Frame struct {
	Rotation    quat.Number `json:"rotation"`
	Position    r3.Vec      `json:"position"`
	HasRotation bool        `json:"hasRotation"`
	HasPosition bool        `json:"hasPosition"`
}

// Orientation returns the frame rotation normalized to a unit quaternion.
// Frames without rotation data, or with a zero quaternion, yield identity.
func (f Frame) Orientation() r3.Rotation {
	if !f.HasRotation {
		return r3.Rotation{Real: 1}
	}
	n := quat.Abs(f.Rotation)
	if n == 0 {
		return r3.Rotation{Real: 1}
	}
	return r3.Rotation(quat.Scale(1/n, f.Rotation))
}

// Tracker is the recorded history of one tracker.
type Tracker struct {
	Name   string      `json:"name"`
	Role   TrackerRole `json:"role"`
	Frames []Frame     `json:"frames"`
}

// Frame returns the i-th frame, or false when i is out of range.
func (t *Tracker) Frame(i int) (Frame, bool) {
	if t == nil || i < 0 || i >= len(t.Frames) {
		return Frame{}, false
	}
	return t.Frames[i], true
}
