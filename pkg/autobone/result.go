package autobone

import (
	"math"

	"github.com/trackd/trackd/pkg/skeleton"
)

// Epoch summarizes one finished epoch.
type Epoch struct {
	// Epoch counts from 1; the initial-error pass reports 0.
	Epoch       int `json:"epoch" yaml:"epoch"`
	TotalEpochs int `json:"totalEpochs" yaml:"totalEpochs"`
	// EpochError is the mean error of the epoch's pairs, or -1 when no pair
	// was scored.
	EpochError   float64                          `json:"epochError" yaml:"epochError"`
	ConfigValues map[skeleton.ConfigValue]float64 `json:"configValues" yaml:"configValues"`
}

// EpochFunc receives every finished epoch on the calibration goroutine.
type EpochFunc func(Epoch)

// Result is the outcome of a calibration run.
type Result struct {
	FinalHeight   float64                          `json:"finalHeight" yaml:"finalHeight"`
	TargetHeight  float64                          `json:"targetHeight" yaml:"targetHeight"`
	ConfigValues  map[skeleton.ConfigValue]float64 `json:"configValues" yaml:"configValues"`
	Offsets       Offsets                          `json:"offsets" yaml:"offsets"`
	NumericFaults int                              `json:"numericFaults" yaml:"numericFaults"`
}

// HeightDifference returns how far the final height is from the target.
func (r *Result) HeightDifference() float64 {
	return math.Abs(r.TargetHeight - r.FinalHeight)
}
