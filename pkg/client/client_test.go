package client

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/trackd/trackd/pkg/calibration"
)

func serveUnix(t *testing.T, handler http.Handler) string {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "d.sock")
	l, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: time.Second}
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Close() })
	return socket
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClientRequests(t *testing.T) {
	var gotStart calibration.StartRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, "v1.2.3")
	})
	mux.HandleFunc("/autobone/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, "method")
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotStart); err != nil {
			writeJSON(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, "autobone started")
	})
	mux.HandleFunc("/autobone/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, calibration.Status{Phase: calibration.PhaseRunning, Epoch: 3, TotalEpochs: 10})
	})
	mux.HandleFunc("/autobone/cancel", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, "autobone not running")
	})
	var resets int
	mux.HandleFunc("/skeleton/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, "method")
			return
		}
		resets++
		writeJSON(w, http.StatusCreated, "skeleton reset to defaults")
	})

	c := NewClient(serveUnix(t, mux))

	v, err := c.GetVersion()
	if err != nil || v != "v1.2.3" {
		t.Fatalf("GetVersion() = %q, %v", v, err)
	}

	if _, err := c.StartAutoBone(calibration.StartRequest{TargetHeight: 1.8, Apply: true}); err != nil {
		t.Fatalf("StartAutoBone() error = %v", err)
	}
	if gotStart.TargetHeight != 1.8 || !gotStart.Apply {
		t.Fatalf("daemon received %+v", gotStart)
	}

	st, err := c.GetAutoBoneStatus()
	if err != nil {
		t.Fatalf("GetAutoBoneStatus() error = %v", err)
	}
	if st.Phase != calibration.PhaseRunning || st.Epoch != 3 {
		t.Fatalf("status = %+v", st)
	}

	if _, err := c.CancelAutoBone(); err == nil {
		t.Fatal("expected error for 409")
	}

	if msg, err := c.ResetSkeleton(); err != nil || resets != 1 {
		t.Fatalf("ResetSkeleton() = %q, %v (resets %d)", msg, err, resets)
	}

	if _, err := c.GetSchedule(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSchedule() error = %v, want ErrNotFound", err)
	}
}

func TestClientDaemonNotRunning(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	if _, err := c.GetVersion(); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("GetVersion() error = %v, want ErrDaemonNotRunning", err)
	}
}

func TestClientUnknownMethod(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	if _, err := c.Send(http.MethodDelete, "/recordings", ""); err == nil {
		t.Fatal("expected error for unsupported method")
	}
}
