package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/trackd/trackd/pkg/autobone"
	"github.com/trackd/trackd/pkg/calibration"
	"github.com/trackd/trackd/pkg/poseframe"
	"github.com/trackd/trackd/pkg/skeleton"
	"github.com/trackd/trackd/pkg/version"
)

func doRequest(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := setupRoutes()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func serve(router http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHandlersStatusAndVersion(t *testing.T) {
	setupTestDaemon(t)

	w := doRequest(t, http.MethodGet, "/autobone/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	var st calibration.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Phase != calibration.PhaseIdle || st.CanCancel {
		t.Fatalf("status = %+v", st)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("response has no request id")
	}

	w = doRequest(t, http.MethodGet, "/version", "")
	var v string
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil || v != version.Version {
		t.Fatalf("version = %q, %v", v, err)
	}
}

func TestHandlersCancelAndApplyWhenIdle(t *testing.T) {
	setupTestDaemon(t)

	if w := doRequest(t, http.MethodPost, "/autobone/cancel", ""); w.Code != http.StatusConflict {
		t.Fatalf("cancel code = %d, want 409", w.Code)
	}
	if w := doRequest(t, http.MethodPost, "/autobone/apply", ""); w.Code != http.StatusConflict {
		t.Fatalf("apply code = %d, want 409", w.Code)
	}
}

func TestHandlersStart(t *testing.T) {
	setupTestDaemon(t)
	loadRecordings = fakeRecordings("a.pfr")
	newSession = func(autobone.Config, ...autobone.Option) sessionRunner {
		return stubRunner{run: func(_ context.Context, _ *poseframe.PoseFrames, target float64, _ autobone.EpochFunc) (*autobone.Result, error) {
			return &autobone.Result{FinalHeight: target, TargetHeight: target, ConfigValues: fullValues(1)}, nil
		}}
	}

	if w := doRequest(t, http.MethodPost, "/autobone/start", `{"targetHeight": 1.8}`); w.Code != http.StatusAccepted {
		t.Fatalf("start code = %d: %s", w.Code, w.Body.String())
	}
	waitJob(t)

	st := getAutoBoneStatus()
	if st.Phase != calibration.PhaseCompleted || st.Result.TargetHeight != 1.8 {
		t.Fatalf("status after start = %+v", st)
	}

	if st.ID == "" {
		t.Fatal("job has no id")
	}

	for _, body := range []string{`{"targetHeight": "tall"}`, `{"targetHeight": -1}`, `{"epochs": -5}`} {
		if w := doRequest(t, http.MethodPost, "/autobone/start", body); w.Code != http.StatusBadRequest {
			t.Fatalf("start %s code = %d, want 400", body, w.Code)
		}
	}
}

func TestHandlersStartEpochsOverride(t *testing.T) {
	setupTestDaemon(t)
	loadRecordings = fakeRecordings("a.pfr")
	var got int32
	newSession = func(c autobone.Config, _ ...autobone.Option) sessionRunner {
		atomic.StoreInt32(&got, int32(c.NumEpochs))
		return stubRunner{run: func(context.Context, *poseframe.PoseFrames, float64, autobone.EpochFunc) (*autobone.Result, error) {
			return &autobone.Result{ConfigValues: fullValues(1)}, nil
		}}
	}

	if w := doRequest(t, http.MethodPost, "/autobone/start", `{"epochs": 7}`); w.Code != http.StatusAccepted {
		t.Fatalf("start code = %d: %s", w.Code, w.Body.String())
	}
	waitJob(t)
	first := getAutoBoneStatus().ID

	if n := atomic.LoadInt32(&got); n != 7 {
		t.Fatalf("session epochs = %d, want 7", n)
	}

	if w := doRequest(t, http.MethodPost, "/autobone/start", ""); w.Code != http.StatusAccepted {
		t.Fatalf("start code = %d: %s", w.Code, w.Body.String())
	}
	waitJob(t)
	if n := atomic.LoadInt32(&got); int(n) != conf.AutoBone().NumEpochs {
		t.Fatalf("session epochs = %d, want configured %d", n, conf.AutoBone().NumEpochs)
	}
	if getAutoBoneStatus().ID == first {
		t.Fatal("job id was reused")
	}
}

func TestHandlersAutoBoneConfig(t *testing.T) {
	setupTestDaemon(t)

	if w := doRequest(t, http.MethodPut, "/autobone/config", `{"cursorIncrement": 0}`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid config code = %d, want 400", w.Code)
	}

	w := doRequest(t, http.MethodPut, "/autobone/config", `{"epochCount": 5}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("config code = %d: %s", w.Code, w.Body.String())
	}
	ab := conf.AutoBone()
	if ab.NumEpochs != 5 || ab.CursorIncrement != autobone.DefaultConfig().CursorIncrement {
		t.Fatalf("config after partial update = %+v", ab)
	}
}

func TestHandlersSkeleton(t *testing.T) {
	setupTestDaemon(t)

	if w := doRequest(t, http.MethodPut, "/skeleton", `{"TAIL": 1}`); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown key code = %d, want 400", w.Code)
	}
	for _, body := range []string{
		`{"NECK": -1}`,
		`{"HEAD": 0}`,
		`{"HEAD": 0.01}`,
		`{"TORSO": 0.3}`,
		`{"KNEE_HEIGHT": 0.9}`,
	} {
		if w := doRequest(t, http.MethodPut, "/skeleton", body); w.Code != http.StatusBadRequest {
			t.Fatalf("PUT /skeleton %s code = %d, want 400", body, w.Code)
		}
	}
	if model.Values()[skeleton.ConfigTorso] != skeleton.ConfigTorso.Default() {
		t.Fatalf("rejected update reached the live model: %v", model.Values())
	}

	// Shrinking CHEST together with TORSO keeps the waist positive.
	if w := doRequest(t, http.MethodPut, "/skeleton", `{"TORSO": 0.3, "CHEST": 0.2}`); w.Code != http.StatusCreated {
		t.Fatalf("consistent torso code = %d: %s", w.Code, w.Body.String())
	}

	if w := doRequest(t, http.MethodPut, "/skeleton", `{"NECK": 0.12}`); w.Code != http.StatusCreated {
		t.Fatalf("set code = %d: %s", w.Code, w.Body.String())
	}
	if got := model.Values()[skeleton.ConfigNeck]; got != 0.12 {
		t.Fatalf("live neck = %v", got)
	}
	if got := conf.SkeletonValues()[skeleton.ConfigNeck]; got != 0.12 {
		t.Fatalf("config neck = %v", got)
	}

	w := doRequest(t, http.MethodGet, "/skeleton", "")
	var values map[string]float64
	if err := json.Unmarshal(w.Body.Bytes(), &values); err != nil {
		t.Fatal(err)
	}
	if values["NECK"] != 0.12 || len(values) != len(skeleton.ConfigValues) {
		t.Fatalf("GET /skeleton = %v", values)
	}

	if w := doRequest(t, http.MethodPost, "/skeleton/reset", ""); w.Code != http.StatusCreated {
		t.Fatalf("reset code = %d: %s", w.Code, w.Body.String())
	}
	if !reflect.DeepEqual(model.Values(), skeleton.DefaultValues()) {
		t.Fatalf("live values after reset = %v", model.Values())
	}
	if !reflect.DeepEqual(conf.SkeletonValues(), skeleton.DefaultValues()) {
		t.Fatalf("config values after reset = %v", conf.SkeletonValues())
	}
}

func TestHandlersRecordings(t *testing.T) {
	setupTestDaemon(t)

	hmd := &poseframe.Tracker{Name: "hmd", Role: poseframe.RoleHMD, Frames: []poseframe.Frame{
		{Rotation: quat.Number{Real: 1}, Position: r3.Vec{Y: 1.7}, HasRotation: true, HasPosition: true},
	}}
	var buf bytes.Buffer
	if err := poseframe.Encode(&buf, poseframe.New(hmd)); err != nil {
		t.Fatal(err)
	}

	router := setupRoutes()
	req := httptest.NewRequest(http.MethodPost, "/recordings", bytes.NewReader(buf.Bytes()))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload code = %d: %s", w.Code, w.Body.String())
	}

	if w := doRequest(t, http.MethodPost, "/recordings", "garbage"); w.Code != http.StatusBadRequest {
		t.Fatalf("garbage upload code = %d, want 400", w.Code)
	}

	w = doRequest(t, http.MethodGet, "/recordings", "")
	var recs calibration.Recordings
	if err := json.Unmarshal(w.Body.Bytes(), &recs); err != nil {
		t.Fatal(err)
	}
	if len(recs.Saved) != 1 || recs.Saved[0].Name != "ABRecording1.pfr" || len(recs.Load) != 0 {
		t.Fatalf("recordings = %+v", recs)
	}

	// With nothing to load, a job falls back to the saved recording.
	got, err := loadRecordings()
	if err != nil || len(got) != 1 || got[0].Name != "ABRecording1.pfr" {
		t.Fatalf("loadRecordings() = %+v, %v", got, err)
	}
}

func TestHandlersSchedule(t *testing.T) {
	setupTestDaemon(t)

	if w := doRequest(t, http.MethodPut, "/schedule", `"every tuesday"`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid cron code = %d, want 400", w.Code)
	}

	w := doRequest(t, http.MethodPut, "/schedule", `"@every 1h"`)
	if w.Code != http.StatusCreated {
		t.Fatalf("schedule code = %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, http.MethodGet, "/schedule", "")
	var sched calibration.Schedule
	if err := json.Unmarshal(w.Body.Bytes(), &sched); err != nil {
		t.Fatal(err)
	}
	if sched.Cron != "@every 1h" || !sched.Running || len(sched.NextRuns) != 3 {
		t.Fatalf("schedule = %+v", sched)
	}

	if w := doRequest(t, http.MethodPost, "/schedule/postpone", `"10m"`); w.Code != http.StatusCreated {
		t.Fatalf("postpone code = %d: %s", w.Code, w.Body.String())
	}
	if w := doRequest(t, http.MethodPost, "/schedule/postpone", `"soon"`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad postpone code = %d, want 400", w.Code)
	}
	if w := doRequest(t, http.MethodPost, "/schedule/skip", ""); w.Code != http.StatusCreated {
		t.Fatalf("skip code = %d: %s", w.Code, w.Body.String())
	}

	if w := doRequest(t, http.MethodPut, "/schedule", `""`); w.Code != http.StatusCreated {
		t.Fatalf("disable code = %d", w.Code)
	}
	if conf.Cron() != "" {
		t.Fatalf("cron after disable = %q", conf.Cron())
	}
	if _, running := scheduler.Status(); running {
		t.Fatal("scheduler still running after disable")
	}
}

func TestHandlersWebsocketRequiresUpgrade(t *testing.T) {
	setupTestDaemon(t)
	if w := doRequest(t, http.MethodGet, "/autobone/ws", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("plain GET on websocket code = %d, want 400", w.Code)
	}
}
