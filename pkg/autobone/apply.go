package autobone

import (
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/trackd/trackd/pkg/skeleton"
)

// PoseModel is the live body-pose configuration of the running server.
type PoseModel interface {
	Values() map[skeleton.ConfigValue]float64
	Height() float64
	Update(fn func(c *skeleton.Config))
}

// ConfigStore persists skeleton config values.
type ConfigStore interface {
	SetSkeletonValues(values map[skeleton.ConfigValue]float64)
	Save() error
}

var _ PoseModel = &skeleton.Live{}

// ValidateConfigValues reports ErrConfigApply unless every
// height-contributing key is present in values.
func ValidateConfigValues(values map[skeleton.ConfigValue]float64) error {
	for _, v := range skeleton.HeightConfigValues {
		if _, ok := values[v]; !ok {
			return pkgerrors.Wrapf(ErrConfigApply, "missing config value %s", v)
		}
	}
	return nil
}

// ApplyConfig writes values into model. Every height-contributing key must
// be present.
func ApplyConfig(model PoseModel, values map[skeleton.ConfigValue]float64) error {
	if model == nil {
		return pkgerrors.Wrap(ErrConfigApply, "no live pose model")
	}
	if err := ValidateConfigValues(values); err != nil {
		return err
	}
	model.Update(func(c *skeleton.Config) {
		c.SetAll(values)
	})
	return nil
}

// ApplyAndSave applies values to model and persists them to store. It
// reports failure instead of returning it.
func ApplyAndSave(model PoseModel, store ConfigStore, values map[skeleton.ConfigValue]float64) bool {
	if err := ApplyConfig(model, values); err != nil {
		logrus.WithError(err).Error("failed to apply autobone results")
		return false
	}
	if store == nil {
		return true
	}
	store.SetSkeletonValues(values)
	if err := store.Save(); err != nil {
		logrus.WithError(err).Error("failed to save applied autobone results")
		return false
	}
	logrus.WithField("values", values).Info("autobone results applied and saved")
	return true
}
