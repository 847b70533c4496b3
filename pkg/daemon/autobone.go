package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/trackd/trackd/pkg/autobone"
	"github.com/trackd/trackd/pkg/calibration"
	"github.com/trackd/trackd/pkg/events"
	"github.com/trackd/trackd/pkg/poseframe"
	"github.com/trackd/trackd/pkg/skeleton"
)

// sessionRunner is the part of autobone.Session a job drives.
type sessionRunner interface {
	Run(ctx context.Context, frames *poseframe.PoseFrames, targetHeight float64, onEpoch autobone.EpochFunc) (*autobone.Result, error)
}

// Seams for tests; default to the recording store and real sessions.
var (
	loadRecordings = func() ([]poseframe.Recording, error) {
		recs, err := store.LoadAll()
		if err != nil {
			return nil, err
		}
		if len(recs) > 0 {
			return recs, nil
		}
		// Nothing to load, fall back to the last saved recording.
		latest, err := store.Latest()
		if err != nil || latest == nil {
			return nil, err
		}
		logrus.WithField("file", latest.Name).Info("no recordings to load, using the latest saved recording")
		return []poseframe.Recording{*latest}, nil
	}
	newSession = func(c autobone.Config, opts ...autobone.Option) sessionRunner {
		return autobone.NewSession(c, opts...)
	}
)

var (
	autoBoneMu        = &sync.Mutex{}
	autoBoneState     = &calibration.State{Phase: calibration.PhaseIdle}
	autoBoneStatePath = ""
	autoBoneCancel    context.CancelFunc
	autoBoneDone      chan struct{}
)

var ErrAutoBoneInProgress = &autoBoneError{"autobone already in progress"}
var ErrAutoBoneNotRunning = &autoBoneError{"autobone not running"}
var ErrNoResult = &autoBoneError{"no completed autobone result to apply"}
var ErrInvalidStartRequest = &autoBoneError{"target height and epochs must not be negative"}

// ErrApplyFailed means a result could not be applied or saved. The cause is
// in the daemon log.
var ErrApplyFailed = errors.New("failed to apply autobone result")

type autoBoneError struct{ msg string }

func (e *autoBoneError) Error() string { return e.msg }

func initAutoBoneState(path string) {
	autoBoneStatePath = path
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		logrus.WithError(err).Warn("failed to read autobone state")
		return
	}
	var st calibration.State
	if err := json.Unmarshal(b, &st); err != nil {
		logrus.WithError(err).Warn("failed to unmarshal autobone state")
		return
	}
	// A job cannot survive a restart.
	if st.Phase.Active() {
		st.Phase = calibration.PhaseError
		st.LastError = "interrupted by daemon restart"
		st.FinishedAt = time.Now()
	}
	autoBoneState = &st
}

func persistAutoBoneState() {
	if autoBoneStatePath == "" {
		return
	}
	b, err := json.MarshalIndent(autoBoneState, "", "  ")
	if err != nil {
		logrus.WithError(err).Error("marshal autobone state")
		return
	}
	if err := os.WriteFile(autoBoneStatePath, b, 0644); err != nil {
		logrus.WithError(err).Error("write autobone state")
	}
}

func publishPhase(from, to calibration.Phase, msg string) {
	if from == to {
		return
	}
	ev := events.PhaseEvent{
		From:    string(from),
		To:      string(to),
		Message: msg,
		Ts:      time.Now().Unix(),
	}
	if sseHub != nil {
		sseHub.Publish(events.AutoBonePhase, ev)
	}
	if bridge != nil {
		bridge.Publish(events.AutoBonePhase, ev)
	}
	logrus.WithFields(logrus.Fields{
		"from": from,
		"to":   to,
	}).Debug("autobone phase changed")
}

func publish(name string, payload any) {
	if sseHub != nil {
		sseHub.Publish(name, payload)
	}
	if bridge != nil {
		bridge.Publish(name, payload)
	}
}

// startAutoBone starts a job on a new goroutine.
func startAutoBone(req calibration.StartRequest) error {
	autoBoneMu.Lock()
	defer autoBoneMu.Unlock()

	if autoBoneState.Phase.Active() {
		return ErrAutoBoneInProgress
	}
	if req.TargetHeight < 0 || req.Epochs < 0 {
		return ErrInvalidStartRequest
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	autoBoneCancel = cancel
	autoBoneDone = done
	epochTimer.ClearRecords()

	prev := autoBoneState.Phase
	autoBoneState = &calibration.State{
		ID:           uuid.NewString(),
		Phase:        calibration.PhaseLoading,
		StartedAt:    time.Now(),
		TargetHeight: req.TargetHeight,
	}
	persistAutoBoneState()
	publishPhase(prev, calibration.PhaseLoading, "Loading recordings")

	logrus.WithFields(logrus.Fields{
		"id":           autoBoneState.ID,
		"targetHeight": req.TargetHeight,
		"epochs":       req.Epochs,
		"apply":        req.Apply,
	}).Info("autobone job started")

	go func() {
		defer close(done)
		defer cancel()
		runAutoBoneJob(ctx, req)
	}()
	return nil
}

func runAutoBoneJob(ctx context.Context, req calibration.StartRequest) {
	recs, err := loadRecordings()
	if err != nil {
		finishAutoBone(calibration.PhaseError, nil, fmt.Sprintf("failed to load recordings: %v", err))
		return
	}
	if len(recs) == 0 {
		finishAutoBone(calibration.PhaseError, nil, "no recordings to calibrate against")
		return
	}
	if ctx.Err() != nil {
		finishAutoBone(calibration.PhaseCanceled, nil, "")
		return
	}

	abConf := conf.AutoBone()
	if req.Epochs > 0 {
		abConf.NumEpochs = req.Epochs
	}
	autoBoneMu.Lock()
	autoBoneState.Phase = calibration.PhaseRunning
	autoBoneState.TotalRecordings = len(recs)
	autoBoneState.TotalEpochs = abConf.NumEpochs
	persistAutoBoneState()
	autoBoneMu.Unlock()
	publishPhase(calibration.PhaseLoading, calibration.PhaseRunning,
		fmt.Sprintf("Processing %d recording(s)", len(recs)))

	results := make([]*autobone.Result, 0, len(recs))
	for i, rec := range recs {
		index := i + 1
		autoBoneMu.Lock()
		autoBoneState.Recording = index
		autoBoneState.Epoch = 0
		autoBoneMu.Unlock()

		log := logrus.WithFields(logrus.Fields{
			"recording": rec.Name,
			"index":     index,
			"total":     len(recs),
		})
		log.Info("processing recording")

		session := newSession(abConf, sessionOptions()...)
		res, err := session.Run(ctx, rec.Frames, req.TargetHeight, func(e autobone.Epoch) {
			recordEpoch(index, len(recs), e)
		})
		if err != nil {
			if ctx.Err() != nil {
				finishAutoBone(calibration.PhaseCanceled, nil, "")
				return
			}
			log.WithError(err).Error("autobone failed on recording, skipping")
			continue
		}
		log.WithFields(logrus.Fields{
			"finalHeight":      res.FinalHeight,
			"targetHeight":     res.TargetHeight,
			"heightDifference": res.HeightDifference(),
		}).Info("recording processed")
		results = append(results, res)
	}

	if len(results) == 0 {
		finishAutoBone(calibration.PhaseError, nil, "autobone failed on every recording")
		return
	}

	result := averageResults(results)
	publish(events.AutoBoneResult, result)
	finishAutoBone(calibration.PhaseCompleted, result, "")

	if req.Apply {
		if err := applyAutoBoneResult(); err != nil {
			logrus.WithError(err).Error("failed to apply autobone result")
		}
	}
}

func sessionOptions() []autobone.Option {
	var opts []autobone.Option
	if model != nil {
		opts = append(opts, autobone.WithPoseModel(model))
	}
	if conf != nil {
		if seed := conf.RandomSeed(); seed != 0 {
			opts = append(opts, autobone.WithRand(rand.New(rand.NewSource(seed))))
		}
	}
	return opts
}

func recordEpoch(recording, totalRecordings int, e autobone.Epoch) {
	epochTimer.AddRecordNow()

	autoBoneMu.Lock()
	autoBoneState.Epoch = e.Epoch
	autoBoneState.TotalEpochs = e.TotalEpochs
	autoBoneState.EpochError = e.EpochError
	autoBoneMu.Unlock()

	publish(events.AutoBoneEpoch, calibration.EpochProgress{
		Recording:       recording,
		TotalRecordings: totalRecordings,
		Epoch:           e.Epoch,
		TotalEpochs:     e.TotalEpochs,
		EpochError:      e.EpochError,
		ConfigValues:    e.ConfigValues,
	})
}

// averageResults merges per-recording results by averaging every value.
func averageResults(results []*autobone.Result) *calibration.Result {
	n := float64(len(results))
	out := &calibration.Result{
		ConfigValues: make(map[skeleton.ConfigValue]float64),
		Recordings:   len(results),
	}

	counts := make(map[skeleton.ConfigValue]int)
	for _, r := range results {
		out.FinalHeight += r.FinalHeight / n
		out.TargetHeight += r.TargetHeight / n
		out.NumericFaults += r.NumericFaults
		for k, v := range r.ConfigValues {
			out.ConfigValues[k] += v
			counts[k]++
		}
	}
	for k, c := range counts {
		out.ConfigValues[k] /= float64(c)
	}
	out.HeightDifference = out.TargetHeight - out.FinalHeight
	if out.HeightDifference < 0 {
		out.HeightDifference = -out.HeightDifference
	}
	return out
}

func finishAutoBone(phase calibration.Phase, result *calibration.Result, lastError string) {
	autoBoneMu.Lock()
	st := autoBoneState
	prev := st.Phase
	st.Phase = phase
	st.FinishedAt = time.Now()
	st.Result = result
	st.LastError = lastError
	persistAutoBoneState()
	startedAt := st.StartedAt
	autoBoneMu.Unlock()

	msg := lastError
	switch phase {
	case calibration.PhaseCompleted:
		msg = fmt.Sprintf("AutoBone completed in %s", formatDuration(time.Since(startedAt)))
	case calibration.PhaseCanceled:
		msg = "AutoBone canceled"
	}

	log := logrus.WithField("phase", phase)
	if phase == calibration.PhaseError {
		log.Error(msg)
	} else {
		log.Info(msg)
	}
	publishPhase(prev, phase, msg)
}

// cancelAutoBone asks the running job to stop. The job reaches the Canceled
// phase once it notices.
func cancelAutoBone() error {
	autoBoneMu.Lock()
	defer autoBoneMu.Unlock()

	if !autoBoneState.Phase.Active() || autoBoneCancel == nil {
		return ErrAutoBoneNotRunning
	}
	logrus.WithField("phase", autoBoneState.Phase).Info("canceling autobone job")
	autoBoneCancel()
	return nil
}

// waitAutoBone blocks until the current job, if any, has exited or ctx is
// done.
func waitAutoBone(ctx context.Context) error {
	autoBoneMu.Lock()
	done := autoBoneDone
	autoBoneMu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// applyAutoBoneResult commits the last completed result to the live skeleton
// and the config file.
func applyAutoBoneResult() error {
	autoBoneMu.Lock()
	st := autoBoneState
	if st.Phase != calibration.PhaseCompleted || st.Result == nil {
		autoBoneMu.Unlock()
		return ErrNoResult
	}
	values := make(map[skeleton.ConfigValue]float64, len(st.Result.ConfigValues))
	for k, v := range st.Result.ConfigValues {
		values[k] = v
	}
	autoBoneMu.Unlock()

	if err := autobone.ValidateConfigValues(values); err != nil {
		return err
	}
	if !autobone.ApplyAndSave(model, conf, values) {
		return ErrApplyFailed
	}

	autoBoneMu.Lock()
	if autoBoneState.Result != nil {
		autoBoneState.Result.Applied = true
	}
	persistAutoBoneState()
	autoBoneMu.Unlock()

	logrus.WithField("values", values).Info("autobone result applied")
	return nil
}

func getAutoBoneStatus() *calibration.Status {
	autoBoneMu.Lock()
	st := *autoBoneState
	autoBoneMu.Unlock()

	eta := 0
	if st.Phase == calibration.PhaseRunning {
		eta = int(epochTimer.ETA(remainingEpochs(st)).Seconds())
	}

	var next time.Time
	if scheduler != nil {
		n, running := scheduler.Status()
		if running {
			next = n
		}
	}

	return &calibration.Status{
		ID:              st.ID,
		Phase:           st.Phase,
		StartedAt:       st.StartedAt,
		FinishedAt:      st.FinishedAt,
		TargetHeight:    st.TargetHeight,
		Recording:       st.Recording,
		TotalRecordings: st.TotalRecordings,
		Epoch:           st.Epoch,
		TotalEpochs:     st.TotalEpochs,
		EpochError:      st.EpochError,
		ETASeconds:      eta,
		Result:          st.Result,
		CanCancel:       st.Phase.Active(),
		CanApply:        st.Phase == calibration.PhaseCompleted && st.Result != nil && !st.Result.Applied,
		Message:         st.LastError,
		ScheduledAt:     next,
	}
}

// remainingEpochs counts the epochs left in the current and the pending
// recordings.
func remainingEpochs(st calibration.State) int {
	left := st.TotalEpochs - st.Epoch
	if st.TotalRecordings > st.Recording {
		left += (st.TotalRecordings - st.Recording) * st.TotalEpochs
	}
	return max(left, 0)
}

func isAutoBoneError(err error) bool {
	var e *autoBoneError
	return errors.As(err, &e)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
