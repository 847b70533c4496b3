// Package skeleton defines the body model used for calibration: bone and
// config identifiers, length configuration, a forward-kinematics evaluator
// over recorded frames, and the live body-pose model shared with the daemon.
package skeleton

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/trackd/trackd/pkg/poseframe"
)

// Evaluator computes a body pose from a length configuration at a frame
// cursor.
type Evaluator interface {
	// SetCursor selects the frame the next UpdatePose reads.
	SetCursor(cursor int)
	// UpdatePose recomputes world transforms from the current config and
	// cursor.
	UpdatePose()
	// TrackerPosition returns the computed world position of the point a
	// tracker with the given role is attached to.
	TrackerPosition(role poseframe.TrackerRole) (r3.Vec, bool)
	// BoneDirection returns the unit world direction from the bone's
	// parent joint to its tail joint.
	BoneDirection(bone BoneType) (r3.Vec, bool)
	// Config returns the length configuration the evaluator reads.
	Config() *Config
}

type joint int

const (
	jointHMD joint = iota
	jointHead
	jointNeck
	jointChest
	jointWaist
	jointHip
	jointLeftHip
	jointRightHip
	jointLeftKnee
	jointRightKnee
	jointLeftAnkle
	jointRightAnkle
	jointCount
)

type segment int

const (
	segHead segment = iota
	segChest
	segWaist
	segHip
	segLeftUpperLeg
	segRightUpperLeg
	segLeftLowerLeg
	segRightLowerLeg
	segCount
)

// link is one bone of the kinematic chain, listed parents first.
type link struct {
	bone    BoneType
	from    joint
	to      joint
	segment segment
	offset  func(c *Config) r3.Vec
}

var chain = []link{
	{BoneHead, jointHMD, jointHead, segHead, func(c *Config) r3.Vec { return r3.Vec{Z: c.BoneLength(BoneHead)} }},
	{BoneNeck, jointHead, jointNeck, segHead, func(c *Config) r3.Vec { return r3.Vec{Y: -c.BoneLength(BoneNeck)} }},
	{BoneChest, jointNeck, jointChest, segChest, func(c *Config) r3.Vec { return r3.Vec{Y: -c.BoneLength(BoneChest)} }},
	{BoneWaist, jointChest, jointWaist, segWaist, func(c *Config) r3.Vec { return r3.Vec{Y: -c.BoneLength(BoneWaist)} }},
	{BoneHip, jointWaist, jointHip, segHip, func(c *Config) r3.Vec { return r3.Vec{Y: -c.BoneLength(BoneHip)} }},
	{BoneLeftHip, jointHip, jointLeftHip, segHip, func(c *Config) r3.Vec { return r3.Vec{X: -c.BoneLength(BoneLeftHip)} }},
	{BoneRightHip, jointHip, jointRightHip, segHip, func(c *Config) r3.Vec { return r3.Vec{X: c.BoneLength(BoneRightHip)} }},
	{BoneLeftUpperLeg, jointLeftHip, jointLeftKnee, segLeftUpperLeg, func(c *Config) r3.Vec { return r3.Vec{Y: -c.BoneLength(BoneLeftUpperLeg)} }},
	{BoneRightUpperLeg, jointRightHip, jointRightKnee, segRightUpperLeg, func(c *Config) r3.Vec { return r3.Vec{Y: -c.BoneLength(BoneRightUpperLeg)} }},
	{BoneLeftLowerLeg, jointLeftKnee, jointLeftAnkle, segLeftLowerLeg, func(c *Config) r3.Vec { return r3.Vec{Y: -c.BoneLength(BoneLeftLowerLeg)} }},
	{BoneRightLowerLeg, jointRightKnee, jointRightAnkle, segRightLowerLeg, func(c *Config) r3.Vec { return r3.Vec{Y: -c.BoneLength(BoneRightLowerLeg)} }},
}

var trackerJoints = map[poseframe.TrackerRole]joint{
	poseframe.RoleHMD:       jointHMD,
	poseframe.RoleChest:     jointChest,
	poseframe.RoleWaist:     jointWaist,
	poseframe.RoleHip:       jointHip,
	poseframe.RoleLeftKnee:  jointLeftKnee,
	poseframe.RoleRightKnee: jointRightKnee,
	poseframe.RoleLeftFoot:  jointLeftAnkle,
	poseframe.RoleRightFoot: jointRightAnkle,
}

// PoseFrameSkeleton evaluates the body pose of a recording frame by frame.
type PoseFrameSkeleton struct {
	trackers map[poseframe.TrackerRole]*poseframe.Tracker
	config   *Config
	cursor   int

	joints    [jointCount]r3.Vec
	rotations [segCount]r3.Rotation
	tails     map[BoneType]r3.Vec
}

var _ Evaluator = &PoseFrameSkeleton{}

// NewPoseFrameSkeleton returns an evaluator driven by the given trackers.
// When several trackers share a role the first one wins.
func NewPoseFrameSkeleton(trackers []*poseframe.Tracker) *PoseFrameSkeleton {
	s := &PoseFrameSkeleton{
		trackers: make(map[poseframe.TrackerRole]*poseframe.Tracker),
		config:   NewConfig(),
		tails:    make(map[BoneType]r3.Vec, len(chain)),
	}
	for _, t := range trackers {
		if _, ok := s.trackers[t.Role]; !ok {
			s.trackers[t.Role] = t
		}
	}
	return s
}

func (s *PoseFrameSkeleton) Config() *Config { return s.config }

func (s *PoseFrameSkeleton) SetCursor(cursor int) { s.cursor = cursor }

func (s *PoseFrameSkeleton) UpdatePose() {
	s.updateRotations()

	s.joints[jointHMD] = r3.Vec{}
	if f, ok := s.trackers[poseframe.RoleHMD].Frame(s.cursor); ok && f.HasPosition {
		s.joints[jointHMD] = f.Position
	}

	for _, l := range chain {
		offset := s.rotations[l.segment].Rotate(l.offset(s.config))
		s.joints[l.to] = r3.Add(s.joints[l.from], offset)
		s.tails[l.bone] = offset
	}
}

func (s *PoseFrameSkeleton) TrackerPosition(role poseframe.TrackerRole) (r3.Vec, bool) {
	j, ok := trackerJoints[role]
	if !ok {
		return r3.Vec{}, false
	}
	return s.joints[j], true
}

func (s *PoseFrameSkeleton) BoneDirection(bone BoneType) (r3.Vec, bool) {
	v, ok := s.tails[bone]
	if !ok || r3.Norm(v) == 0 {
		return r3.Vec{}, false
	}
	return r3.Unit(v), true
}

// rotation returns the orientation of the first role with rotation data at
// the cursor.
func (s *PoseFrameSkeleton) rotation(roles ...poseframe.TrackerRole) (r3.Rotation, bool) {
	for _, role := range roles {
		if f, ok := s.trackers[role].Frame(s.cursor); ok && f.HasRotation {
			return f.Orientation(), true
		}
	}
	return r3.Rotation{}, false
}

func (s *PoseFrameSkeleton) updateRotations() {
	or := func(rot r3.Rotation, ok bool) func(r3.Rotation) r3.Rotation {
		return func(fallback r3.Rotation) r3.Rotation {
			if ok {
				return rot
			}
			return fallback
		}
	}

	head := or(s.rotation(poseframe.RoleHMD))(r3.Rotation{Real: 1})
	chest := or(s.rotation(poseframe.RoleChest, poseframe.RoleWaist, poseframe.RoleHip))(head)
	waist := or(s.rotation(poseframe.RoleWaist, poseframe.RoleHip))(chest)
	hip := or(s.rotation(poseframe.RoleHip, poseframe.RoleWaist))(waist)
	leftUpper := or(s.rotation(poseframe.RoleLeftKnee))(hip)
	rightUpper := or(s.rotation(poseframe.RoleRightKnee))(hip)

	s.rotations[segHead] = head
	s.rotations[segChest] = chest
	s.rotations[segWaist] = waist
	s.rotations[segHip] = hip
	s.rotations[segLeftUpperLeg] = leftUpper
	s.rotations[segRightUpperLeg] = rightUpper
	s.rotations[segLeftLowerLeg] = or(s.rotation(poseframe.RoleLeftFoot))(leftUpper)
	s.rotations[segRightLowerLeg] = or(s.rotation(poseframe.RoleRightFoot))(rightUpper)
}
