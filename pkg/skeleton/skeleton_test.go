package skeleton

import (
	"math"
	"sync"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/trackd/trackd/pkg/poseframe"
)

const eps = 1e-9

func near(a, b r3.Vec) bool {
	return r3.Norm(r3.Sub(a, b)) < eps
}

func standingTrackers(frames int) []*poseframe.Tracker {
	hmd := &poseframe.Tracker{Name: "hmd", Role: poseframe.RoleHMD}
	for i := 0; i < frames; i++ {
		hmd.Frames = append(hmd.Frames, poseframe.Frame{
			Rotation:    quat.Number{Real: 1},
			Position:    r3.Vec{Y: 1.7},
			HasRotation: true,
			HasPosition: true,
		})
	}
	return []*poseframe.Tracker{hmd}
}

func TestConfigDefaultsAndBoneLengths(t *testing.T) {
	c := NewConfig()
	if got := c.Height(); math.Abs(got-1.6) > eps {
		t.Fatalf("default Height() = %v, want 1.6", got)
	}

	tests := []struct {
		bone BoneType
		want float64
	}{
		{BoneHead, 0.1},
		{BoneNeck, 0.1},
		{BoneChest, 0.42},
		{BoneWaist, 0.18},
		{BoneHip, 0.04},
		{BoneLeftHip, 0.13},
		{BoneRightUpperLeg, 0.32},
		{BoneLeftLowerLeg, 0.54},
	}
	for _, tt := range tests {
		t.Run(string(tt.bone), func(t *testing.T) {
			if got := c.BoneLength(tt.bone); math.Abs(got-tt.want) > eps {
				t.Errorf("BoneLength(%s) = %v, want %v", tt.bone, got, tt.want)
			}
		})
	}

	c.Set(ConfigNeck, 0.2)
	other := NewConfig()
	other.CopyFrom(c)
	c.Set(ConfigNeck, 0.3)
	if other.Get(ConfigNeck) != 0.2 {
		t.Fatalf("CopyFrom must not alias, got %v", other.Get(ConfigNeck))
	}

	c.Reset()
	if c.Get(ConfigNeck) != ConfigNeck.Default() || other.Get(ConfigNeck) != 0.2 {
		t.Fatalf("Reset() left neck = %v, copy = %v", c.Get(ConfigNeck), other.Get(ConfigNeck))
	}
}

func TestBoneSides(t *testing.T) {
	if BoneLeftUpperLeg.Right() != BoneRightUpperLeg || BoneRightLowerLeg.Left() != BoneLeftLowerLeg {
		t.Fatalf("leg mirroring is wrong")
	}
	if BoneChest.Left() != BoneChest || BoneChest.Right() != BoneChest {
		t.Fatalf("center bones must map to themselves")
	}
	if BoneHead.IsHeightBone() || !BoneRightLowerLeg.IsHeightBone() {
		t.Fatalf("height bone classification is wrong")
	}
}

func TestPoseFrameSkeletonStanding(t *testing.T) {
	s := NewPoseFrameSkeleton(standingTrackers(2))
	s.SetCursor(0)
	s.UpdatePose()

	foot, ok := s.TrackerPosition(poseframe.RoleLeftFoot)
	if !ok {
		t.Fatalf("left foot not computed")
	}
	// hmd(1.7) - neck - torso - legs; head shifts backwards only.
	want := r3.Vec{X: -0.13, Y: 1.7 - 1.6, Z: 0.1}
	if !near(foot, want) {
		t.Fatalf("left foot = %v, want %v", foot, want)
	}

	dir, ok := s.BoneDirection(BoneRightLowerLeg)
	if !ok || !near(dir, r3.Vec{Y: -1}) {
		t.Fatalf("right lower leg direction = %v (%v), want down", dir, ok)
	}
	if _, ok := s.TrackerPosition(poseframe.TrackerRole("TAIL")); ok {
		t.Fatalf("unknown role must not be computed")
	}
}

func TestPoseFrameSkeletonConfigChangesPose(t *testing.T) {
	s := NewPoseFrameSkeleton(standingTrackers(1))
	s.UpdatePose()
	before, _ := s.TrackerPosition(poseframe.RoleRightFoot)

	s.Config().Set(ConfigLegsLength, 0.96)
	s.UpdatePose()
	after, _ := s.TrackerPosition(poseframe.RoleRightFoot)

	if math.Abs((before.Y-after.Y)-0.1) > eps {
		t.Fatalf("foot should drop by 0.1, before=%v after=%v", before, after)
	}
}

func TestPoseFrameSkeletonRotatedLeg(t *testing.T) {
	trackers := standingTrackers(1)
	// 90 degrees about Z swings the lower leg from -Y towards +X.
	rot := r3.NewRotation(math.Pi/2, r3.Vec{Z: 1})
	trackers = append(trackers, &poseframe.Tracker{
		Role:   poseframe.RoleLeftFoot,
		Frames: []poseframe.Frame{{Rotation: quat.Number(rot), HasRotation: true}},
	})

	s := NewPoseFrameSkeleton(trackers)
	s.UpdatePose()

	dir, ok := s.BoneDirection(BoneLeftLowerLeg)
	if !ok || !near(dir, r3.Vec{X: 1}) {
		t.Fatalf("left lower leg direction = %v, want +X", dir)
	}
	// The right leg has no tracker and follows the hip.
	dir, _ = s.BoneDirection(BoneRightLowerLeg)
	if !near(dir, r3.Vec{Y: -1}) {
		t.Fatalf("right lower leg direction = %v, want down", dir)
	}
}

func TestZeroLengthBoneHasNoDirection(t *testing.T) {
	s := NewPoseFrameSkeleton(standingTrackers(1))
	s.Config().Set(ConfigHead, 0)
	s.UpdatePose()
	if _, ok := s.BoneDirection(BoneHead); ok {
		t.Fatalf("zero-length bone must not report a direction")
	}
}

func TestLiveConcurrentUpdate(t *testing.T) {
	l := NewLive(map[ConfigValue]float64{ConfigNeck: 0.12})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Update(func(c *Config) { c.Set(ConfigTorso, c.Get(ConfigTorso)+0.01) })
			_ = l.Height()
		}()
	}
	wg.Wait()

	if got := l.Values()[ConfigTorso]; math.Abs(got-0.72) > eps {
		t.Fatalf("TORSO after 8 updates = %v, want 0.72", got)
	}
	if got := l.Values()[ConfigNeck]; got != 0.12 {
		t.Fatalf("NECK = %v, want 0.12", got)
	}
}
