// Package poseframe holds recorded multi-tracker motion: the in-memory
// dataset, its binary .pfr codec, and the on-disk recording store.
package poseframe

import "math"

// PoseFrames is an ordered recording of per-tracker transforms. It is
// read-only once recorded.
type PoseFrames struct {
	Trackers []*Tracker `json:"trackers"`
}

// New returns a recording over the given trackers.
func New(trackers ...*Tracker) *PoseFrames {
	return &PoseFrames{Trackers: trackers}
}

// MaxFrameCount returns the frame count of the longest tracker.
func (p *PoseFrames) MaxFrameCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, t := range p.Trackers {
		if len(t.Frames) > n {
			n = len(t.Frames)
		}
	}
	return n
}

// MaxHMDHeight returns the highest recorded Y position of the HMD, or 0 if
// the recording has no positional HMD data.
func (p *PoseFrames) MaxHMDHeight() float64 {
	t := p.TrackerByRole(RoleHMD)
	if t == nil {
		return 0
	}
	h := math.Inf(-1)
	for _, f := range t.Frames {
		if f.HasPosition && f.Position.Y > h {
			h = f.Position.Y
		}
	}
	if math.IsInf(h, -1) {
		return 0
	}
	return h
}

// TrackerByRole returns the first tracker with the given role, or nil.
func (p *PoseFrames) TrackerByRole(role TrackerRole) *Tracker {
	if p == nil {
		return nil
	}
	for _, t := range p.Trackers {
		if t.Role == role {
			return t
		}
	}
	return nil
}
