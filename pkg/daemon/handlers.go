package daemon

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/trackd/trackd/pkg/autobone"
	"github.com/trackd/trackd/pkg/calibration"
	"github.com/trackd/trackd/pkg/config"
	"github.com/trackd/trackd/pkg/poseframe"
	"github.com/trackd/trackd/pkg/skeleton"
	"github.com/trackd/trackd/pkg/version"
)

// maxRecordingUpload bounds a single uploaded recording.
const maxRecordingUpload = 256 << 20

func abort(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getAutoBoneConfig(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, conf.AutoBone())
}

func setAutoBoneConfig(c *gin.Context) {
	ab := conf.AutoBone()
	if err := c.BindJSON(&ab); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if err := ab.Validate(); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	conf.SetAutoBone(ab)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	logrus.WithField("epochCount", ab.NumEpochs).Info("autobone config updated")
	c.IndentedJSON(http.StatusCreated, ab)
}

func startAutoBoneHandler(c *gin.Context) {
	var req calibration.StartRequest
	// An empty body starts with defaults.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			abort(c, http.StatusBadRequest, err)
			return
		}
	}

	if err := startAutoBone(req); err != nil {
		status := http.StatusConflict
		if errors.Is(err, ErrInvalidStartRequest) {
			status = http.StatusBadRequest
		}
		abort(c, status, err)
		return
	}
	c.IndentedJSON(http.StatusAccepted, "autobone started")
}

func getAutoBoneStatusHandler(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, getAutoBoneStatus())
}

func cancelAutoBoneHandler(c *gin.Context) {
	if err := cancelAutoBone(); err != nil {
		abort(c, http.StatusConflict, err)
		return
	}
	c.IndentedJSON(http.StatusAccepted, "autobone cancel requested")
}

func applyAutoBoneHandler(c *gin.Context) {
	if err := applyAutoBoneResult(); err != nil {
		code := http.StatusInternalServerError
		if isAutoBoneError(err) {
			code = http.StatusConflict
		} else if errors.Is(err, autobone.ErrConfigApply) {
			code = http.StatusBadRequest
		}
		abort(c, code, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, "autobone result applied")
}

func getRecordings(c *gin.Context) {
	saved, err := store.ListSaved()
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	load, err := store.List()
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, calibration.Recordings{Saved: saved, Load: load})
}

// uploadRecording stores an encoded recording sent as the raw request body.
func uploadRecording(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRecordingUpload+1))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if len(body) > maxRecordingUpload {
		abort(c, http.StatusRequestEntityTooLarge, fmt.Errorf("recording exceeds %d bytes", maxRecordingUpload))
		return
	}

	frames, err := poseframe.Decode(bytes.NewReader(body))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	path, err := store.Save(frames)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, path)
}

func getSkeleton(c *gin.Context) {
	values := model.Values()
	out := make(map[string]float64, len(values))
	for k, v := range values {
		out[string(k)] = v
	}
	c.IndentedJSON(http.StatusOK, out)
}

// setSkeleton merges the given values into the live skeleton and saves them.
func setSkeleton(c *gin.Context) {
	var in map[string]float64
	if err := c.BindJSON(&in); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	values := make(map[skeleton.ConfigValue]float64, len(in))
	for k, v := range in {
		key := skeleton.ConfigValue(k)
		if !key.Valid() {
			abort(c, http.StatusBadRequest, fmt.Errorf("unknown skeleton config value %s", k))
			return
		}
		if v <= autobone.MinBoneLength {
			abort(c, http.StatusBadRequest, fmt.Errorf("skeleton config value %s must be above %.2f m, got %v", k, autobone.MinBoneLength, v))
			return
		}
		values[key] = v
	}

	merged := model.Values()
	for k, v := range values {
		merged[k] = v
	}
	if err := autobone.CheckBoneLengths(merged); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	model.Update(func(sc *skeleton.Config) {
		sc.SetAll(values)
	})
	conf.SetSkeletonValues(values)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	logrus.WithField("values", values).Info("skeleton config updated")
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("set %d skeleton value(s), height is now %.3fm", len(values), model.Height()))
}

// resetSkeleton drops every skeleton override and saves the defaults.
func resetSkeleton(c *gin.Context) {
	model.Update(func(sc *skeleton.Config) {
		sc.Reset()
	})
	conf.SetSkeletonValues(skeleton.DefaultValues())
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	logrus.Info("skeleton config reset to defaults")
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("skeleton reset to defaults, height is now %.3fm", model.Height()))
}

func getScheduleHandler(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, getSchedule())
}

func setScheduleHandler(c *gin.Context) {
	var expr string
	if err := c.BindJSON(&expr); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	nextRuns, err := schedule(expr)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, nextRuns)
}

func postponeScheduleHandler(c *gin.Context) {
	var s string
	if err := c.BindJSON(&s); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if err := postpone(d); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("postponed for %s", d))
}

func skipScheduleHandler(c *gin.Context) {
	if err := skipNextSchedule(); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, "skipped")
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
