package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trackd/trackd/pkg/autobone"
	"github.com/trackd/trackd/pkg/calibration"
	"github.com/trackd/trackd/pkg/config"
	"github.com/trackd/trackd/pkg/events"
	"github.com/trackd/trackd/pkg/poseframe"
	"github.com/trackd/trackd/pkg/skeleton"
)

func getJSON[T any](c *Client, path, what string) (*T, error) {
	ret, err := c.Get(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get %s", what)
	}
	var v T
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal %s", what)
	}
	return &v, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	return getJSON[config.RawFileConfig](c, "/config", "config")
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}

// ===== AutoBone APIs =====

func (c *Client) GetAutoBoneConfig() (*autobone.Config, error) {
	return getJSON[autobone.Config](c, "/autobone/config", "autobone config")
}

func (c *Client) SetAutoBoneConfig(ab autobone.Config) (string, error) {
	payload, err := json.Marshal(ab)
	if err != nil {
		return "", err
	}
	return c.Put("/autobone/config", string(payload))
}

func (c *Client) StartAutoBone(req calibration.StartRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return c.Post("/autobone/start", string(payload))
}

func (c *Client) GetAutoBoneStatus() (*calibration.Status, error) {
	return getJSON[calibration.Status](c, "/autobone/status", "autobone status")
}

func (c *Client) CancelAutoBone() (string, error) {
	return c.Post("/autobone/cancel", "")
}

func (c *Client) ApplyAutoBone() (string, error) {
	return c.Post("/autobone/apply", "")
}

// WatchAutoBone streams job events until ctx is done or the daemon closes
// the stream. The returned channel is closed when the stream ends.
func (c *Client) WatchAutoBone(ctx context.Context) (<-chan events.Event, error) {
	conn, err := c.DialWebsocket(ctx, "/autobone/ws")
	if err != nil {
		return nil, err
	}

	out := make(chan events.Event)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer close(done)
		for {
			var ev events.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ===== Recording APIs =====

func (c *Client) GetRecordings() (*calibration.Recordings, error) {
	return getJSON[calibration.Recordings](c, "/recordings", "recordings")
}

// UploadRecording sends frames to the daemon and returns where it was saved.
func (c *Client) UploadRecording(frames *poseframe.PoseFrames) (string, error) {
	var buf bytes.Buffer
	if err := poseframe.Encode(&buf, frames); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to encode recording")
	}
	ret, err := c.SendContext(context.Background(), http.MethodPost, "/recordings", "application/octet-stream", &buf)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to upload recording")
	}
	var path string
	if err := json.Unmarshal([]byte(ret), &path); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal upload response")
	}
	return path, nil
}

// ===== Skeleton APIs =====

func (c *Client) GetSkeleton() (map[skeleton.ConfigValue]float64, error) {
	raw, err := getJSON[map[string]float64](c, "/skeleton", "skeleton")
	if err != nil {
		return nil, err
	}
	values := make(map[skeleton.ConfigValue]float64, len(*raw))
	for k, v := range *raw {
		values[skeleton.ConfigValue(k)] = v
	}
	return values, nil
}

func (c *Client) SetSkeleton(values map[skeleton.ConfigValue]float64) (string, error) {
	payload, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return c.Put("/skeleton", string(payload))
}

// ResetSkeleton restores the default skeleton proportions.
func (c *Client) ResetSkeleton() (string, error) {
	return c.Post("/skeleton/reset", "")
}

// ===== Schedule APIs =====

func (c *Client) GetSchedule() (*calibration.Schedule, error) {
	return getJSON[calibration.Schedule](c, "/schedule", "schedule")
}

// Schedule sets the cron expression and returns the next runs. An empty
// expression disables scheduling.
func (c *Client) Schedule(cronExpr string) ([]time.Time, error) {
	payload, err := json.Marshal(cronExpr)
	if err != nil {
		return nil, err
	}
	ret, err := c.Put("/schedule", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set schedule")
	}
	var runs []time.Time
	if err := json.Unmarshal([]byte(ret), &runs); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal next runs")
	}
	return runs, nil
}

func (c *Client) PostponeSchedule(d time.Duration) (string, error) {
	payload, err := json.Marshal(d.String())
	if err != nil {
		return "", err
	}
	return c.Post("/schedule/postpone", string(payload))
}

func (c *Client) SkipSchedule() (string, error) {
	return c.Post("/schedule/skip", "")
}
