package autobone

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/trackd/trackd/pkg/poseframe"
)

var (
	// ErrMetricFault means the objective could not be evaluated and the
	// run was aborted.
	ErrMetricFault = pkgerrors.New("metric fault")

	// ErrConfigApply means calibration results could not be applied to
	// the live pose model.
	ErrConfigApply = pkgerrors.New("config apply fault")
)

// MetricError reports a tracked point a metric needed but the model did not
// provide.
type MetricError struct {
	Metric MetricID
	Role   poseframe.TrackerRole
}

func (e *MetricError) Error() string {
	return fmt.Sprintf("metric %s: tracked point %s is absent from the model", e.Metric, e.Role)
}

func (e *MetricError) Is(target error) bool { return target == ErrMetricFault }
