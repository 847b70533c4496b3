package autobone

import (
	pkgerrors "github.com/pkg/errors"

	"github.com/trackd/trackd/pkg/skeleton"
)

// MinBoneLength is the floor below which a bone length is never committed.
const MinBoneLength = 0.01

// Offsets maps bones to their lengths in meters.
type Offsets map[skeleton.BoneType]float64

// Clone returns an independent copy of o.
func (o Offsets) Clone() Offsets {
	c := make(Offsets, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// Sum returns the total length of every bone in o, added in body order so
// the result does not depend on map iteration.
func (o Offsets) Sum() float64 {
	sum := 0.0
	for _, b := range skeleton.Bones {
		sum += o[b]
	}
	return sum
}

// Height returns the summed length of the height-contributing bones in o.
func (o Offsets) Height() float64 {
	h := 0.0
	for _, b := range skeleton.HeightBones {
		h += o[b]
	}
	return h
}

// OffsetsFromConfig derives the adjustable bone lengths from legacy values.
// Missing keys use their defaults.
func OffsetsFromConfig(values map[skeleton.ConfigValue]float64) Offsets {
	c := skeleton.NewConfig()
	c.SetAll(values)

	o := make(Offsets, len(skeleton.AdjustableBones))
	for _, b := range skeleton.AdjustableBones {
		o[b] = c.BoneLength(b)
	}
	return o
}

// raiseToFloor lifts every length in o that is below MinBoneLength, or not
// a number, up to MinBoneLength. It returns the bones it changed.
func (o Offsets) raiseToFloor() []skeleton.BoneType {
	var raised []skeleton.BoneType
	for _, b := range skeleton.Bones {
		v, ok := o[b]
		if !ok || v >= MinBoneLength {
			continue
		}
		o[b] = MinBoneLength
		raised = append(raised, b)
	}
	return raised
}

// CheckBoneLengths reports ErrConfigApply when values, laid over the
// defaults, give any bone a length below MinBoneLength. A TORSO
// shorter than CHEST plus WAIST is the usual cause.
func CheckBoneLengths(values map[skeleton.ConfigValue]float64) error {
	c := skeleton.NewConfig()
	c.SetAll(values)
	for _, b := range skeleton.Bones {
		if l := c.BoneLength(b); !(l >= MinBoneLength) {
			return pkgerrors.Wrapf(ErrConfigApply, "bone %s would be %.3f m, below the %.2f m floor", b, l, MinBoneLength)
		}
	}
	return nil
}

// DefaultOffsets returns the adjustable bone lengths of the default body.
func DefaultOffsets() Offsets {
	return OffsetsFromConfig(nil)
}

// ProjectLegacy maps bone lengths onto legacy config keys. A key is emitted
// only when every bone it is derived from is present.
func ProjectLegacy(o Offsets) map[skeleton.ConfigValue]float64 {
	m := make(map[skeleton.ConfigValue]float64)

	if v, ok := o[skeleton.BoneHead]; ok {
		m[skeleton.ConfigHead] = v
	}
	if v, ok := o[skeleton.BoneNeck]; ok {
		m[skeleton.ConfigNeck] = v
	}

	chest, hasChest := o[skeleton.BoneChest]
	hip, hasHip := o[skeleton.BoneHip]
	waist, hasWaist := o[skeleton.BoneWaist]
	if hasChest && hasHip && hasWaist {
		m[skeleton.ConfigTorso] = chest + hip + waist
	}
	if hasChest {
		m[skeleton.ConfigChest] = chest
	}
	if hasHip {
		m[skeleton.ConfigWaist] = hip
	}

	if v, ok := either(o, skeleton.BoneLeftHip, skeleton.BoneRightHip); ok {
		m[skeleton.ConfigHipsWidth] = v * 2
	}

	upper, hasUpper := either(o, skeleton.BoneLeftUpperLeg, skeleton.BoneRightUpperLeg)
	lower, hasLower := either(o, skeleton.BoneLeftLowerLeg, skeleton.BoneRightLowerLeg)
	if hasUpper && hasLower {
		m[skeleton.ConfigLegsLength] = upper + lower
	}
	if hasLower {
		m[skeleton.ConfigKneeHeight] = lower
	}

	return m
}

func either(o Offsets, a, b skeleton.BoneType) (float64, bool) {
	if v, ok := o[a]; ok {
		return v, true
	}
	v, ok := o[b]
	return v, ok
}
