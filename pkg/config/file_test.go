package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/trackd/trackd/pkg/autobone"
	"github.com/trackd/trackd/pkg/skeleton"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	if got, want := f.AutoBone(), autobone.DefaultConfig(); got != want {
		t.Fatalf("AutoBone() = %+v, want %+v", got, want)
	}
	if got := f.RecordingsDir(); got != "Recordings" {
		t.Fatalf("RecordingsDir() = %q", got)
	}
	if got := f.LoadRecordingsDir(); got != "LoadRecordings" {
		t.Fatalf("LoadRecordingsDir() = %q", got)
	}
	if got := f.MQTTTopicPrefix(); got != "trackd" {
		t.Fatalf("MQTTTopicPrefix() = %q", got)
	}
	if got := f.MQTTBroker(); got != "" {
		t.Fatalf("MQTTBroker() = %q", got)
	}
	if got := f.SkeletonValues()[skeleton.ConfigTorso]; got != skeleton.ConfigTorso.Default() {
		t.Fatalf("torso = %v", got)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte("  \n"), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := NewFile(p)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if f.AutoBone().NumEpochs != autobone.DefaultConfig().NumEpochs {
		t.Fatalf("empty file did not fall back to defaults")
	}
}

func TestLoadInvalidFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(p); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestPartialFileKeepsOtherDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	body := `{
  "autobone": {"epochCount": 7, "adjustRate": 2.5, "recordingsDir": "/tmp/rec"},
  "skeleton": {"TORSO": 0.7, "BOGUS": 1},
  "mqtt": {"broker": "tcp://localhost:1883"}
}`
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := NewFile(p)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	ab := f.AutoBone()
	want := autobone.DefaultConfig()
	want.NumEpochs = 7
	want.InitialAdjustRate = 2.5
	if ab != want {
		t.Fatalf("AutoBone() = %+v, want %+v", ab, want)
	}
	if got := f.RecordingsDir(); got != "/tmp/rec" {
		t.Fatalf("RecordingsDir() = %q", got)
	}

	values := f.SkeletonValues()
	if values[skeleton.ConfigTorso] != 0.7 {
		t.Fatalf("torso = %v", values[skeleton.ConfigTorso])
	}
	if _, ok := values["BOGUS"]; ok {
		t.Fatal("unknown skeleton key leaked through")
	}
	if len(values) != len(skeleton.ConfigValues) {
		t.Fatalf("got %d skeleton values, want %d", len(values), len(skeleton.ConfigValues))
	}

	if got := f.MQTTBroker(); got != "tcp://localhost:1883" {
		t.Fatalf("MQTTBroker() = %q", got)
	}
	if got := f.MQTTClientID(); got != "trackd" {
		t.Fatalf("MQTTClientID() = %q", got)
	}
}

func TestSaveAndReload(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	f := NewFileFromConfig(nil, p)

	ab := autobone.DefaultConfig()
	ab.NumEpochs = 3
	ab.TargetHeight = 1.8
	f.SetAutoBone(ab)
	f.SetSkeletonValues(map[skeleton.ConfigValue]float64{skeleton.ConfigLegsLength: 0.9})
	f.SetCron("0 3 * * 0")
	f.SetAllowNonRootAccess(true)

	if err := f.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	g, err := NewFile(p)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if got := g.AutoBone(); got != ab {
		t.Fatalf("AutoBone() = %+v, want %+v", got, ab)
	}
	if got := g.SkeletonValues()[skeleton.ConfigLegsLength]; got != 0.9 {
		t.Fatalf("legs = %v", got)
	}
	if got := g.Cron(); got != "0 3 * * 0" {
		t.Fatalf("Cron() = %q", got)
	}
	if !g.AllowNonRootAccess() {
		t.Fatal("AllowNonRootAccess() = false")
	}
}

func TestSetAutoBoneKeepsDirectories(t *testing.T) {
	f := NewFileFromConfig(&RawFileConfig{
		AutoBone: &RawAutoBoneConfig{RecordingsDir: ptrTo("/data")},
	}, "")
	f.SetAutoBone(autobone.DefaultConfig())
	if got := f.RecordingsDir(); got != "/data" {
		t.Fatalf("RecordingsDir() = %q after SetAutoBone", got)
	}
}

func TestNewRawFileConfigFromConfig(t *testing.T) {
	f := NewFileFromConfig(nil, "")
	raw, err := NewRawFileConfigFromConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	if raw.AutoBone == nil || raw.AutoBone.EpochCount == nil || *raw.AutoBone.EpochCount != 100 {
		t.Fatalf("epochCount not spelled out: %+v", raw.AutoBone)
	}
	if len(raw.Skeleton) != len(skeleton.ConfigValues) {
		t.Fatalf("got %d skeleton values", len(raw.Skeleton))
	}
	if _, err := NewRawFileConfigFromConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func ptrTo[T any](v T) *T { return &v }
