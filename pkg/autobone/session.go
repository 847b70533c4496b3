// Package autobone estimates body proportions from recorded motion.
//
// A Session searches per-bone lengths that best explain a recording under
// several weighted plausibility metrics. Each epoch walks pairs of frames;
// for every pair it tries one length change per adjustable bone, keeps the
// changes that lower the error, and then rescales the body towards the
// target height.
package autobone

import (
	"context"
	"math"
	"math/rand"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/trackd/trackd/pkg/poseframe"
	"github.com/trackd/trackd/pkg/skeleton"
)

// lowHeightWarning is the detected height below which the user is probably
// not standing.
const lowHeightWarning = 0.50

// EvaluatorFactory builds a pose evaluator over recorded trackers.
type EvaluatorFactory func(trackers []*poseframe.Tracker) skeleton.Evaluator

// Option configures a Session.
type Option func(s *Session)

// WithRand sets the generator frame orders are drawn from.
func WithRand(r *rand.Rand) Option {
	return func(s *Session) { s.rand = r }
}

// WithPoseModel sets the live model used for target height detection and as
// the starting body.
func WithPoseModel(m PoseModel) Option {
	return func(s *Session) { s.model = m }
}

// WithOffsets sets the starting bone lengths. They are also what the
// session falls back to after a numeric fault.
func WithOffsets(o Offsets) Option {
	return func(s *Session) { s.defaults = o.Clone() }
}

// WithEvaluatorFactory replaces the forward-kinematics evaluator.
func WithEvaluatorFactory(f EvaluatorFactory) Option {
	return func(s *Session) { s.newEvaluator = f }
}

// Session owns the bone lengths of one calibration. It is not safe for
// concurrent use.
type Session struct {
	config       Config
	metrics      []Metric
	rand         *rand.Rand
	model        PoseModel
	newEvaluator EvaluatorFactory

	defaults Offsets
	offsets  Offsets

	numericFaults int
}

// NewSession returns a session with the given tunables.
func NewSession(config Config, opts ...Option) *Session {
	s := &Session{
		config:  config,
		metrics: config.Metrics(),
		newEvaluator: func(trackers []*poseframe.Tracker) skeleton.Evaluator {
			return skeleton.NewPoseFrameSkeleton(trackers)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rand == nil {
		s.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.defaults == nil {
		if s.model != nil {
			s.defaults = OffsetsFromConfig(s.model.Values())
		} else {
			s.defaults = DefaultOffsets()
		}
	}
	if raised := s.defaults.raiseToFloor(); len(raised) > 0 {
		logrus.WithField("bones", raised).Warnf("starting bone lengths below %.2f m raised to the floor", MinBoneLength)
	}
	s.offsets = s.defaults.Clone()
	return s
}

// Config returns the session tunables.
func (s *Session) Config() Config { return s.config }

// Offsets returns a copy of the committed bone lengths.
func (s *Session) Offsets() Offsets { return s.offsets.Clone() }

// ResolveTargetHeight returns the height a run over frames aims for. A
// positive override wins, then the configured height, then the live model,
// then the highest recorded HMD position.
func (s *Session) ResolveTargetHeight(frames *poseframe.PoseFrames, override float64) float64 {
	if override > 0 {
		return override
	}
	if s.config.TargetHeight > 0 {
		return s.config.TargetHeight
	}

	if s.model != nil {
		h := s.model.Height()
		logrus.WithField("targetHeight", h).Warn("target height loaded from the live skeleton, make sure it was reset before recording")
		return h
	}

	h := frames.MaxHMDHeight()
	if h <= lowHeightWarning {
		logrus.WithField("hmdHeight", h).Warn("detected HMD height is too low, was the user standing up?")
	}
	return h
}

// Run calibrates against frames and returns the final body. onEpoch, when
// set, is called after every epoch on the calling goroutine. Run stops early
// with the context's error when ctx is done.
func (s *Session) Run(ctx context.Context, frames *poseframe.PoseFrames, targetHeight float64, onEpoch EpochFunc) (*Result, error) {
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if frames == nil {
		return nil, pkgerrors.New("no recording to calibrate against")
	}

	target := s.ResolveTargetHeight(frames, targetHeight)
	frameCount := frames.MaxFrameCount()

	step := &TrainingStep{
		TargetHeight: target,
		Skeleton1:    s.newEvaluator(frames.Trackers),
		Skeleton2:    s.newEvaluator(frames.Trackers),
		Trackers:     frames.Trackers,
	}
	if s.model != nil {
		live := s.model.Values()
		step.Skeleton1.Config().SetAll(live)
		step.Skeleton2.Config().SetAll(live)
	}

	logrus.WithFields(logrus.Fields{
		"frames":       frameCount,
		"trackers":     len(frames.Trackers),
		"epochs":       s.config.NumEpochs,
		"targetHeight": target,
	}).Info("autobone run starting")

	first := 0
	if s.config.CalcInitError {
		first = -1
	}
	for epoch := first; epoch < s.config.NumEpochs; epoch++ {
		e, err := s.runEpoch(ctx, step, frameCount, epoch)
		if err != nil {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{
			"epoch":      e.Epoch,
			"epochError": e.EpochError,
		}).Debug("autobone epoch finished")
		if onEpoch != nil {
			onEpoch(e)
		}
	}

	res := &Result{
		FinalHeight:   s.offsets.Height(),
		TargetHeight:  target,
		ConfigValues:  ProjectLegacy(s.offsets),
		Offsets:       s.offsets.Clone(),
		NumericFaults: s.numericFaults,
	}
	logrus.WithFields(logrus.Fields{
		"finalHeight":      res.FinalHeight,
		"targetHeight":     res.TargetHeight,
		"heightDifference": res.HeightDifference(),
		"numericFaults":    res.NumericFaults,
	}).Info("autobone run finished")
	return res, nil
}

func (s *Session) runEpoch(ctx context.Context, step *TrainingStep, frameCount, epoch int) (Epoch, error) {
	adjustRate := s.config.AdjustRate(epoch)
	order := frameOrder(s.rand, frameCount, s.config.RandomizeFrameOrder)

	sumError, errorCount := 0.0, 0
	maxDistance := min(s.config.MaxDataDistance, frameCount-1)
	for d := s.config.MinDataDistance; d <= maxDistance; d++ {
		for c := 0; c+d < frameCount; c += s.config.CursorIncrement {
			if err := ctx.Err(); err != nil {
				return Epoch{}, pkgerrors.Wrapf(err, "autobone stopped in epoch %d", epoch+1)
			}

			mean, ok, err := s.trainPair(step, order[c], order[c+d], adjustRate)
			if err != nil {
				return Epoch{}, err
			}
			if !ok {
				sumError, errorCount = 0, 0
				continue
			}
			sumError += mean
			errorCount++
		}
	}

	avg := -1.0
	if errorCount > 0 {
		avg = sumError / float64(errorCount)
	}
	return Epoch{
		Epoch:        epoch + 1,
		TotalEpochs:  s.config.NumEpochs,
		EpochError:   avg,
		ConfigValues: ProjectLegacy(s.offsets),
	}, nil
}

// trainPair runs both stages for one frame pair. It returns the pre-trial
// weighted mean, and false when a numeric fault reset the lengths.
func (s *Session) trainPair(step *TrainingStep, cursor1, cursor2 int, adjustRate float64) (float64, bool, error) {
	step.applyOffsets(s.offsets)
	step.setCursors(cursor1, cursor2)
	step.updatePoses()

	totalLength := s.offsets.Sum()
	curHeight := s.offsets.Height()
	step.CurrentHeight = curHeight

	mean, err := WeightedMean(s.metrics, step)
	if err != nil {
		return 0, false, err
	}
	errVal := ErrorFunc(mean)
	if math.IsNaN(errVal) || math.IsInf(errVal, 0) {
		logrus.WithFields(logrus.Fields{
			"cursor1": cursor1,
			"cursor2": cursor2,
			"error":   errVal,
		}).Warn("autobone error value is invalid, resetting bone lengths to defaults")
		s.offsets = s.defaults.Clone()
		s.numericFaults++
		return 0, false, nil
	}

	adjustVal := errVal * adjustRate
	if adjustVal == 0 {
		return mean, true, nil
	}

	if err := s.descend(step, mean, adjustVal, totalLength, curHeight); err != nil {
		return 0, false, err
	}
	if s.config.ScaleEachStep {
		s.rescale(step.TargetHeight)
	}
	return mean, true, nil
}

// descend tries one length change per adjustable bone against the committed
// lengths and commits those that lower the error.
func (s *Session) descend(step *TrainingStep, baseMean, adjustVal, totalLength, curHeight float64) error {
	drift, err := s.driftSignals(step)
	if err != nil {
		return err
	}

	baseline := s.offsets.Clone()
	scratch := baseline.Clone()
	for _, bone := range skeleton.AdjustableBones {
		original, ok := baseline[bone]
		if !ok {
			continue
		}

		curAdjust := adjustVal * -(original * drift[bone]) / totalLength
		if curAdjust == 0 {
			continue
		}
		newLength := original + curAdjust
		if newLength < MinBoneLength {
			continue
		}

		scratch[bone] = newLength
		step.applyOffsets(scratch)
		step.updatePoses()
		step.CurrentHeight = curHeight
		if bone.IsHeightBone() {
			step.CurrentHeight += curAdjust
		}

		newMean, err := WeightedMean(s.metrics, step)
		if err != nil {
			return err
		}
		if newMean < baseMean {
			s.offsets[bone] = newLength
		}
		scratch[bone] = original
	}
	step.CurrentHeight = curHeight
	return nil
}

// driftSignals measures, per adjustable bone, how the feet slide relative
// to the bone direction between the two poses. Poses must be at the
// committed lengths.
func (s *Session) driftSignals(step *TrainingStep) (map[skeleton.BoneType]float64, error) {
	left1, left2, err := step.positions("drift", poseframe.RoleLeftFoot)
	if err != nil {
		return nil, err
	}
	right1, right2, err := step.positions("drift", poseframe.RoleRightFoot)
	if err != nil {
		return nil, err
	}
	slideLeft := unitOrZero(r3.Sub(left2, left1))
	slideRight := unitOrZero(r3.Sub(right2, right1))

	drift := make(map[skeleton.BoneType]float64, len(skeleton.AdjustableBones))
	for _, bone := range skeleton.AdjustableBones {
		leftDot := dotDiff(step, slideLeft, bone.Left())
		rightDot := dotDiff(step, slideRight, bone.Right())
		drift[bone] = (leftDot + rightDot) / 2
	}
	return drift, nil
}

func dotDiff(step *TrainingStep, slide r3.Vec, bone skeleton.BoneType) float64 {
	dir1, _ := step.Skeleton1.BoneDirection(bone)
	dir2, _ := step.Skeleton2.BoneDirection(bone)
	return r3.Dot(slide, dir2) - r3.Dot(slide, dir1)
}

func unitOrZero(v r3.Vec) r3.Vec {
	if r3.Norm(v) == 0 {
		return r3.Vec{}
	}
	return r3.Unit(v)
}

// rescale spreads half of the height deficit over the height bones, except
// the neck, in proportion to their share of the current height.
func (s *Session) rescale(targetHeight float64) {
	stepHeight := s.offsets.Height()
	if stepHeight <= 0 {
		return
	}
	deficit := targetHeight - stepHeight
	for _, bone := range skeleton.HeightBones {
		if bone == skeleton.BoneNeck {
			continue
		}
		length, ok := s.offsets[bone]
		if !ok {
			continue
		}
		s.offsets[bone] = math.Max(length+deficit*(length/stepHeight)/2, MinBoneLength)
	}
}
