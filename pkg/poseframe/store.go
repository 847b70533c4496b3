package poseframe

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// Extension is the reserved recording file extension.
	Extension = ".pfr"

	recordingPrefix = "ABRecording"
)

// Recording is a decoded recording file.
type Recording struct {
	Name   string      `json:"name"`
	Path   string      `json:"path"`
	Frames *PoseFrames `json:"-"`
}

// RecordingInfo describes a recording file without decoding it.
type RecordingInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// Store saves recordings into a save directory and loads them from a load
// directory. The directories can be swapped at runtime with SetDirs.
type Store struct {
	mu      sync.RWMutex
	saveDir string
	loadDir string
}

// NewStore returns a file-based recording store.
func NewStore(saveDir, loadDir string) *Store {
	return &Store{saveDir: saveDir, loadDir: loadDir}
}

// SetDirs replaces both directories.
func (s *Store) SetDirs(saveDir, loadDir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveDir = saveDir
	s.loadDir = loadDir
}

// Dirs returns the current save and load directories.
func (s *Store) Dirs() (saveDir, loadDir string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveDir, s.loadDir
}

// Save writes p as the next free ABRecording<N>.pfr in the save directory
// and returns the path written. Concurrent saves never pick the same name.
func (s *Store) Save(p *PoseFrames) (string, error) {
	// The write lock serializes numbering as well as guarding the dirs.
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.saveDir

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &RecordingError{Op: "save", Path: dir, Err: err}
	}

	var path string
	for n := 1; ; n++ {
		path = filepath.Join(dir, fmt.Sprintf("%s%d%s", recordingPrefix, n, Extension))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
	}

	if err := WriteFile(path, p); err != nil {
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"path":     path,
		"trackers": len(p.Trackers),
		"frames":   p.MaxFrameCount(),
	}).Info("recording saved")
	return path, nil
}

// List returns the recording files in the load directory sorted by name. A
// missing directory yields no recordings.
func (s *Store) List() ([]RecordingInfo, error) {
	_, loadDir := s.Dirs()
	return listDir(loadDir)
}

// ListSaved returns the recording files in the save directory sorted by name.
func (s *Store) ListSaved() ([]RecordingInfo, error) {
	saveDir, _ := s.Dirs()
	return listDir(saveDir)
}

// Latest decodes the most recently modified recording in the save
// directory. It returns nil when there is none.
func (s *Store) Latest() (*Recording, error) {
	saveDir, _ := s.Dirs()
	infos, err := listDir(saveDir)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, nil
	}

	latest := infos[0]
	for _, info := range infos[1:] {
		if info.ModTime.After(latest.ModTime) {
			latest = info
		}
	}
	path := filepath.Join(saveDir, latest.Name)
	p, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Recording{Name: latest.Name, Path: path, Frames: p}, nil
}

func listDir(dir string) ([]RecordingInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &RecordingError{Op: "list", Path: dir, Err: err}
	}

	var infos []RecordingInfo
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), Extension) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			logrus.WithError(err).WithField("file", e.Name()).Warn("failed to stat recording")
			continue
		}
		infos = append(infos, RecordingInfo{Name: e.Name(), Size: fi.Size(), ModTime: fi.ModTime()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// LoadAll decodes every recording in the load directory. Files that fail to
// decode are logged and skipped.
func (s *Store) LoadAll() ([]Recording, error) {
	_, loadDir := s.Dirs()
	infos, err := listDir(loadDir)
	if err != nil {
		return nil, err
	}

	recordings := make([]Recording, 0, len(infos))
	for _, info := range infos {
		path := filepath.Join(loadDir, info.Name)
		logrus.WithField("file", info.Name).Info("loading recording")
		p, err := ReadFile(path)
		if err != nil {
			logrus.WithError(err).WithField("file", info.Name).Error("failed to load recording, skipping")
			continue
		}
		recordings = append(recordings, Recording{Name: info.Name, Path: path, Frames: p})
	}
	return recordings, nil
}

// WriteFile encodes p into path.
func WriteFile(path string, p *PoseFrames) error {
	fp, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return &RecordingError{Op: "save", Path: path, Err: err}
	}
	if err := Encode(fp, p); err != nil {
		_ = fp.Close()
		return &RecordingError{Op: "save", Path: path, Err: err}
	}
	if err := fp.Close(); err != nil {
		return &RecordingError{Op: "save", Path: path, Err: pkgerrors.Wrap(err, "close")}
	}
	return nil
}

// ReadFile decodes the recording at path.
func ReadFile(path string) (*PoseFrames, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, &RecordingError{Op: "load", Path: path, Err: err}
	}
	defer func(fp *os.File) {
		if err := fp.Close(); err != nil {
			logrus.Warnf("failed to close file %s", path)
		}
	}(fp)

	p, err := Decode(fp)
	if err != nil {
		return nil, &RecordingError{Op: "load", Path: path, Err: err}
	}
	return p, nil
}
