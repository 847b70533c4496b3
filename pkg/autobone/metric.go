package autobone

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/trackd/trackd/pkg/poseframe"
	"github.com/trackd/trackd/pkg/skeleton"
)

// MetricID names one term of the objective.
type MetricID string

const (
	MetricSlide            MetricID = "slide"
	MetricOffsetSlide      MetricID = "offsetSlide"
	MetricFootHeightOffset MetricID = "footHeightOffset"
	MetricBodyProportion   MetricID = "bodyProportion"
	MetricHeight           MetricID = "height"
	MetricPosition         MetricID = "position"
	MetricPositionOffset   MetricID = "positionOffset"
)

// Population body ratios.
const (
	legBodyRatio      = 1.1235
	legBodyRatioRange = 0.07
	kneeLegRatio      = 0.55
	chestTorsoRatio   = 0.57
)

// ScoreFunc scores a training step. Lower is better.
type ScoreFunc func(step *TrainingStep) (float64, error)

// Metric is one weighted term of the objective.
type Metric struct {
	ID     MetricID
	Weight float64
	Score  ScoreFunc
}

// Metrics returns the objective table weighted by c.
func (c Config) Metrics() []Metric {
	return []Metric{
		{MetricSlide, c.SlideErrorFactor, slideError},
		{MetricOffsetSlide, c.OffsetSlideErrorFactor, offsetSlideError},
		{MetricFootHeightOffset, c.FootHeightOffsetErrorFactor, footHeightOffsetError},
		{MetricBodyProportion, c.BodyProportionErrorFactor, bodyProportionError},
		{MetricHeight, c.HeightErrorFactor, heightError},
		{MetricPosition, c.PositionErrorFactor, positionError},
		{MetricPositionOffset, c.PositionOffsetErrorFactor, positionOffsetError},
	}
}

// WeightedMean returns the weight-averaged score over metrics with a
// strictly positive weight. Other metrics are not evaluated. It is 0 when
// no metric is active.
func WeightedMean(metrics []Metric, step *TrainingStep) (float64, error) {
	sum, weights := 0.0, 0.0
	for _, m := range metrics {
		if m.Weight <= 0 {
			continue
		}
		score, err := m.Score(step)
		if err != nil {
			return 0, err
		}
		sum += m.Weight * score
		weights += m.Weight
	}
	if weights == 0 {
		return 0, nil
	}
	return sum / weights, nil
}

// ErrorFunc maps the weighted mean to the combined error.
func ErrorFunc(x float64) float64 {
	return 0.5 * x * x
}

type feet struct {
	left1, right1, left2, right2 r3.Vec
}

func footPositions(metric MetricID, step *TrainingStep) (feet, error) {
	var f feet
	var err error
	if f.left1, f.left2, err = step.positions(metric, poseframe.RoleLeftFoot); err != nil {
		return f, err
	}
	if f.right1, f.right2, err = step.positions(metric, poseframe.RoleRightFoot); err != nil {
		return f, err
	}
	return f, nil
}

// slideError penalizes planted feet moving between the two poses.
func slideError(step *TrainingStep) (float64, error) {
	f, err := footPositions(MetricSlide, step)
	if err != nil {
		return 0, err
	}
	left := r3.Norm(r3.Sub(f.left2, f.left1))
	right := r3.Norm(r3.Sub(f.right2, f.right1))
	return (left + right) / 2, nil
}

// offsetSlideError penalizes the feet moving differently from each other.
func offsetSlideError(step *TrainingStep) (float64, error) {
	f, err := footPositions(MetricOffsetSlide, step)
	if err != nil {
		return 0, err
	}
	left := r3.Sub(f.left2, f.left1)
	right := r3.Sub(f.right2, f.right1)
	return r3.Norm(r3.Sub(left, right)) / 2, nil
}

// footHeightOffsetError penalizes grounded feet at different heights.
func footHeightOffsetError(step *TrainingStep) (float64, error) {
	f, err := footPositions(MetricFootHeightOffset, step)
	if err != nil {
		return 0, err
	}
	ys := []float64{f.left1.Y, f.right1.Y, f.left2.Y, f.right2.Y}
	sum := 0.0
	for i := range ys {
		for j := i + 1; j < len(ys); j++ {
			sum += math.Abs(ys[i] - ys[j])
		}
	}
	// six pairs, halved
	return sum / 12, nil
}

// bodyProportionError penalizes deviation from population body ratios.
func bodyProportionError(step *TrainingStep) (float64, error) {
	c := step.Skeleton1.Config()

	neck := c.Get(skeleton.ConfigNeck)
	torso := c.Get(skeleton.ConfigTorso)
	chest := c.Get(skeleton.ConfigChest)
	legs := c.Get(skeleton.ConfigLegsLength)
	knee := c.Get(skeleton.ConfigKneeHeight)

	total := 0.0
	if body := neck + torso; body > 0 {
		total += math.Max(0, math.Abs(legs/body-legBodyRatio)-legBodyRatioRange)
	}
	if legs > 0 {
		total += math.Abs(knee/legs - kneeLegRatio)
	}
	if torso > 0 {
		total += math.Abs(chest/torso - chestTorsoRatio)
	}
	return total, nil
}

// heightError penalizes the skeleton height missing the target.
func heightError(step *TrainingStep) (float64, error) {
	return math.Abs(step.TargetHeight - step.CurrentHeight), nil
}

type recordedPair struct {
	role     poseframe.TrackerRole
	r1, r2   r3.Vec
	has1     bool
	has2     bool
	computed [2]r3.Vec
}

// recordedPositions collects the positional trackers of known roles along
// with their computed counterparts in both poses.
func recordedPositions(metric MetricID, step *TrainingStep) ([]recordedPair, error) {
	var pairs []recordedPair
	for _, t := range step.Trackers {
		if !t.Role.Valid() {
			continue
		}
		f1, ok1 := t.Frame(step.Cursor1)
		f2, ok2 := t.Frame(step.Cursor2)
		p := recordedPair{
			role: t.Role,
			r1:   f1.Position,
			r2:   f2.Position,
			has1: ok1 && f1.HasPosition,
			has2: ok2 && f2.HasPosition,
		}
		if !p.has1 && !p.has2 {
			continue
		}
		c1, c2, err := step.positions(metric, t.Role)
		if err != nil {
			return nil, err
		}
		p.computed = [2]r3.Vec{c1, c2}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// positionError penalizes computed tracker positions far from the recorded
// ones.
func positionError(step *TrainingStep) (float64, error) {
	pairs, err := recordedPositions(MetricPosition, step)
	if err != nil {
		return 0, err
	}
	sum, n := 0.0, 0
	for _, p := range pairs {
		if p.has1 {
			sum += r3.Norm(r3.Sub(p.computed[0], p.r1))
			n++
		}
		if p.has2 {
			sum += r3.Norm(r3.Sub(p.computed[1], p.r2))
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

// positionOffsetError penalizes the computed-to-recorded offset changing
// between the two poses.
func positionOffsetError(step *TrainingStep) (float64, error) {
	pairs, err := recordedPositions(MetricPositionOffset, step)
	if err != nil {
		return 0, err
	}
	sum, n := 0.0, 0
	for _, p := range pairs {
		if !p.has1 || !p.has2 {
			continue
		}
		off1 := r3.Sub(p.computed[0], p.r1)
		off2 := r3.Sub(p.computed[1], p.r2)
		sum += r3.Norm(r3.Sub(off1, off2))
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}
