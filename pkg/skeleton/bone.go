package skeleton

// BoneType identifies a rigid body segment.
type BoneType string

const (
	BoneHead          BoneType = "HEAD"
	BoneNeck          BoneType = "NECK"
	BoneChest         BoneType = "CHEST"
	BoneWaist         BoneType = "WAIST"
	BoneHip           BoneType = "HIP"
	BoneLeftHip       BoneType = "LEFT_HIP"
	BoneRightHip      BoneType = "RIGHT_HIP"
	BoneLeftUpperLeg  BoneType = "LEFT_UPPER_LEG"
	BoneRightUpperLeg BoneType = "RIGHT_UPPER_LEG"
	BoneLeftLowerLeg  BoneType = "LEFT_LOWER_LEG"
	BoneRightLowerLeg BoneType = "RIGHT_LOWER_LEG"
)

// Bones lists every bone from the head down.
var Bones = []BoneType{
	BoneHead,
	BoneNeck,
	BoneChest,
	BoneWaist,
	BoneHip,
	BoneLeftHip,
	BoneRightHip,
	BoneLeftUpperLeg,
	BoneRightUpperLeg,
	BoneLeftLowerLeg,
	BoneRightLowerLeg,
}

// AdjustableBones are the bones whose lengths calibration searches over.
// Legs are adjusted on the left side only and mirrored through the legacy
// config.
var AdjustableBones = []BoneType{
	BoneHead,
	BoneNeck,
	BoneChest,
	BoneWaist,
	BoneHip,
	BoneLeftUpperLeg,
	BoneLeftLowerLeg,
}

// HeightBones contribute to standing height.
var HeightBones = []BoneType{
	BoneNeck,
	BoneChest,
	BoneWaist,
	BoneHip,
	BoneLeftUpperLeg,
	BoneRightUpperLeg,
	BoneLeftLowerLeg,
	BoneRightLowerLeg,
}

// IsHeightBone reports whether b contributes to standing height.
func (b BoneType) IsHeightBone() bool {
	for _, h := range HeightBones {
		if h == b {
			return true
		}
	}
	return false
}

var mirrored = map[BoneType]BoneType{
	BoneLeftHip:       BoneRightHip,
	BoneRightHip:      BoneLeftHip,
	BoneLeftUpperLeg:  BoneRightUpperLeg,
	BoneRightUpperLeg: BoneLeftUpperLeg,
	BoneLeftLowerLeg:  BoneRightLowerLeg,
	BoneRightLowerLeg: BoneLeftLowerLeg,
}

// Left returns the left-side counterpart of b. Center bones return b.
func (b BoneType) Left() BoneType {
	switch b {
	case BoneRightHip, BoneRightUpperLeg, BoneRightLowerLeg:
		return mirrored[b]
	}
	return b
}

// Right returns the right-side counterpart of b. Center bones return b.
func (b BoneType) Right() BoneType {
	switch b {
	case BoneLeftHip, BoneLeftUpperLeg, BoneLeftLowerLeg:
		return mirrored[b]
	}
	return b
}
