package autobone

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/trackd/trackd/pkg/poseframe"
	"github.com/trackd/trackd/pkg/skeleton"
)

// TrainingStep binds two pose evaluations to a pair of frames. It is rebuilt
// for every pair and never persisted.
type TrainingStep struct {
	Cursor1 int
	Cursor2 int

	TargetHeight  float64
	CurrentHeight float64

	Skeleton1 skeleton.Evaluator
	Skeleton2 skeleton.Evaluator

	// Trackers is the recorded data both skeletons are driven by.
	Trackers []*poseframe.Tracker
}

func (s *TrainingStep) setCursors(c1, c2 int) {
	s.Cursor1, s.Cursor2 = c1, c2
	s.Skeleton1.SetCursor(c1)
	s.Skeleton2.SetCursor(c2)
}

func (s *TrainingStep) updatePoses() {
	s.Skeleton1.UpdatePose()
	s.Skeleton2.UpdatePose()
}

func (s *TrainingStep) applyOffsets(o Offsets) {
	legacy := ProjectLegacy(o)
	s.Skeleton1.Config().SetAll(legacy)
	s.Skeleton2.Config().SetAll(legacy)
}

// positions returns the computed position of role in both poses.
func (s *TrainingStep) positions(metric MetricID, role poseframe.TrackerRole) (r3.Vec, r3.Vec, error) {
	p1, ok1 := s.Skeleton1.TrackerPosition(role)
	p2, ok2 := s.Skeleton2.TrackerPosition(role)
	if !ok1 || !ok2 {
		return r3.Vec{}, r3.Vec{}, &MetricError{Metric: metric, Role: role}
	}
	return p1, p2, nil
}
