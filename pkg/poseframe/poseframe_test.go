package poseframe

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func sampleRecording() *PoseFrames {
	hmd := &Tracker{Name: "hmd", Role: RoleHMD}
	foot := &Tracker{Name: "left foot", Role: RoleLeftFoot}
	for i := 0; i < 5; i++ {
		hmd.Frames = append(hmd.Frames, Frame{
			Rotation:    quat.Number{Real: 1},
			Position:    r3.Vec{Y: 1.5 + float64(i)*0.01},
			HasRotation: true,
			HasPosition: true,
		})
	}
	for i := 0; i < 3; i++ {
		foot.Frames = append(foot.Frames, Frame{Rotation: quat.Number{Real: 2}, HasRotation: true})
	}
	return New(hmd, foot)
}

func TestPoseFramesAccessors(t *testing.T) {
	p := sampleRecording()

	if got := p.MaxFrameCount(); got != 5 {
		t.Fatalf("MaxFrameCount() = %d, want 5", got)
	}
	if got := p.MaxHMDHeight(); math.Abs(got-1.54) > 1e-9 {
		t.Fatalf("MaxHMDHeight() = %v, want 1.54", got)
	}
	if p.TrackerByRole(RoleRightFoot) != nil {
		t.Fatalf("expected no right foot tracker")
	}
	if _, ok := p.TrackerByRole(RoleLeftFoot).Frame(3); ok {
		t.Fatalf("expected frame 3 of left foot to be out of range")
	}

	var empty *PoseFrames
	if empty.MaxFrameCount() != 0 || empty.MaxHMDHeight() != 0 {
		t.Fatalf("nil recording should report zero frames and height")
	}
}

func TestFrameOrientation(t *testing.T) {
	f := Frame{Rotation: quat.Number{Real: 2}, HasRotation: true}
	if got := f.Orientation(); got != (r3.Rotation{Real: 1}) {
		t.Fatalf("Orientation() = %v, want normalized identity", got)
	}
	f = Frame{Rotation: quat.Number{Imag: 1}}
	if got := f.Orientation(); got != (r3.Rotation{Real: 1}) {
		t.Fatalf("Orientation() without rotation data = %v, want identity", got)
	}
}

func TestCodec(t *testing.T) {
	p := sampleRecording()

	var buf bytes.Buffer
	if err := Encode(&buf, p); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(got.Trackers) != 2 || got.Trackers[1].Name != "left foot" || got.Trackers[1].Role != RoleLeftFoot {
		t.Fatalf("decoded trackers mismatch: %+v", got.Trackers)
	}
	if got.MaxHMDHeight() != p.MaxHMDHeight() {
		t.Fatalf("decoded HMD height = %v, want %v", got.MaxHMDHeight(), p.MaxHMDHeight())
	}
	if f := got.Trackers[1].Frames[0]; !f.HasRotation || f.HasPosition {
		t.Fatalf("decoded flags mismatch: %+v", f)
	}

	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{name: "bad magic", input: []byte("NOPE0000"), want: ErrBadMagic},
		{name: "truncated", input: buf.Bytes()[:buf.Len()-3]},
		{name: "empty", input: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.input))
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStoreSaveNumbering(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Recordings")
	s := NewStore(dir, dir)

	for i, want := range []string{"ABRecording1.pfr", "ABRecording2.pfr"} {
		path, err := s.Save(sampleRecording())
		if err != nil {
			t.Fatalf("Save() #%d error = %v", i, err)
		}
		if filepath.Base(path) != want {
			t.Fatalf("Save() #%d wrote %s, want %s", i, filepath.Base(path), want)
		}
	}

	// A gap is reused.
	if err := os.Remove(filepath.Join(dir, "ABRecording1.pfr")); err != nil {
		t.Fatal(err)
	}
	path, err := s.Save(sampleRecording())
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "ABRecording1.pfr" {
		t.Fatalf("expected gap to be reused, got %s", path)
	}
}

func TestStoreSetDirs(t *testing.T) {
	root := t.TempDir()
	s := NewStore(filepath.Join(root, "a"), filepath.Join(root, "a"))

	s.SetDirs(filepath.Join(root, "b"), filepath.Join(root, "c"))
	if save, load := s.Dirs(); save != filepath.Join(root, "b") || load != filepath.Join(root, "c") {
		t.Fatalf("Dirs() = %q, %q", save, load)
	}
	path, err := s.Save(sampleRecording())
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != filepath.Join(root, "b") {
		t.Fatalf("Save() wrote %s, want it under the new save dir", path)
	}
	if recs, err := s.LoadAll(); err != nil || len(recs) != 0 {
		t.Fatalf("LoadAll() from empty load dir = %v, %v", recs, err)
	}
}

func TestStoreConcurrentSaves(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, dir)

	var wg sync.WaitGroup
	paths := make([]string, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := s.Save(sampleRecording())
			if err != nil {
				t.Error(err)
			}
			paths[i] = p
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, p := range paths {
		if seen[p] {
			t.Fatalf("two saves wrote %s", p)
		}
		seen[p] = true
	}
}

func TestStoreLoadAllIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	if err := WriteFile(filepath.Join(dir, "good.pfr"), sampleRecording()); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(filepath.Join(dir, "UPPER.PFR"), sampleRecording()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.pfr"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(dir, dir)
	recs, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("LoadAll() loaded %d recordings, want 2", len(recs))
	}
	for _, r := range recs {
		if r.Frames.MaxFrameCount() != 5 {
			t.Fatalf("recording %s has %d frames", r.Name, r.Frames.MaxFrameCount())
		}
	}

	_, err = ReadFile(filepath.Join(dir, "broken.pfr"))
	if !errors.Is(err, ErrRecordingIO) {
		t.Fatalf("ReadFile() error = %v, want ErrRecordingIO", err)
	}
}

func TestStoreMissingDir(t *testing.T) {
	s := NewStore("", filepath.Join(t.TempDir(), "missing"))
	recs, err := s.LoadAll()
	if err != nil || len(recs) != 0 {
		t.Fatalf("LoadAll() on missing dir = %v, %v", recs, err)
	}
}

func TestStoreLatest(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, filepath.Join(dir, "load"))

	if rec, err := s.Latest(); err != nil || rec != nil {
		t.Fatalf("Latest() on empty dir = %v, %v", rec, err)
	}

	older := filepath.Join(dir, "ABRecording9.pfr")
	if err := WriteFile(older, sampleRecording()); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(filepath.Join(dir, "ABRecording10.pfr"), sampleRecording()); err != nil {
		t.Fatal(err)
	}

	rec, err := s.Latest()
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if rec == nil || rec.Name != "ABRecording10.pfr" {
		t.Fatalf("Latest() = %+v, want ABRecording10.pfr", rec)
	}
	if rec.Frames.MaxFrameCount() != 5 {
		t.Fatalf("Latest() frames = %d", rec.Frames.MaxFrameCount())
	}
}
