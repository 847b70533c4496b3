package daemon

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/trackd/trackd/pkg/calibration"
	"github.com/trackd/trackd/pkg/events"
)

// AutoBoneScheduled is published ahead of a scheduled job.
const AutoBoneScheduled = "autobone.scheduled"

func newAutoBoneScheduler() *Scheduler {
	return NewScheduler(
		scheduledAutoBone,
		func() error {
			autoBoneMu.Lock()
			defer autoBoneMu.Unlock()
			if autoBoneState.Phase.Active() {
				return ErrAutoBoneInProgress
			}
			return nil
		},
		func(data any) {
			at, _ := data.(time.Time)
			publish(AutoBoneScheduled, events.PhaseEvent{
				From:    string(calibration.PhaseIdle),
				To:      string(calibration.PhaseLoading),
				Message: fmt.Sprintf("AutoBone scheduled at %s", at.Format("Jan _2 15:04")),
				Ts:      time.Now().Unix(),
			})
		},
		func(data any) {
			logrus.WithField("error", data).Error("scheduled autobone failed")
		},
	)
}

// scheduledAutoBone starts a job and waits for it, so a stopping scheduler
// also cancels the job it started.
func scheduledAutoBone(ctx context.Context) error {
	if err := startAutoBone(calibration.StartRequest{Apply: true}); err != nil {
		return err
	}
	if err := waitAutoBone(ctx); err != nil {
		_ = cancelAutoBone()
		return err
	}

	autoBoneMu.Lock()
	defer autoBoneMu.Unlock()
	if autoBoneState.Phase == calibration.PhaseError {
		return pkgerrors.New(autoBoneState.LastError)
	}
	return nil
}

// schedule sets the cron expression for scheduled jobs and returns the next
// run times. An empty expression disables scheduling.
func schedule(cronExpr string) ([]time.Time, error) {
	if cronExpr == "" {
		if conf.Cron() == "" {
			// Already disabled
			return nil, nil
		}

		conf.SetCron("")
		if err := conf.Save(); err != nil {
			logrus.WithError(err).Error("failed to save config")
			return nil, pkgerrors.Wrap(err, "failed to save config")
		}
		scheduler.Stop()
		logrus.Info("autobone schedule disabled")
		return nil, nil
	}

	if _, err := cronParser.Parse(cronExpr); err != nil {
		return nil, pkgerrors.Wrap(err, "invalid cron expression")
	}

	conf.SetCron(cronExpr)
	if err := conf.Save(); err != nil {
		logrus.WithError(err).Error("failed to save config")
		return nil, pkgerrors.Wrap(err, "failed to save config")
	}

	if err := scheduler.Schedule(cronExpr); err != nil {
		logrus.WithError(err).Error("failed to schedule autobone")
		return nil, err
	}
	scheduler.Start()

	nextRuns := scheduler.NextRuns(3)
	if len(nextRuns) > 0 {
		logrus.WithField("next", nextRuns[0].Format(time.DateTime)).Info("autobone scheduled")
	}
	return nextRuns, nil
}

func postpone(duration time.Duration) error {
	if err := scheduler.Postpone(duration); err != nil {
		logrus.WithError(err).Error("failed to postpone autobone")
		return err
	}
	logrus.Infof("autobone postponed for %s", duration)
	return nil
}

func skipNextSchedule() error {
	if err := scheduler.Skip(); err != nil {
		logrus.WithError(err).Error("failed to skip next scheduled autobone")
		return err
	}
	logrus.Info("next scheduled autobone skipped")
	return nil
}

func getSchedule() *calibration.Schedule {
	_, running := scheduler.Status()
	st := &calibration.Schedule{
		Cron:    conf.Cron(),
		Running: running,
	}
	if running {
		st.NextRuns = scheduler.NextRuns(3)
	}
	return st
}
