package poseframe

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrRecordingIO is the root of every recording save/load failure.
	ErrRecordingIO = pkgerrors.New("recording io failure")

	// ErrBadMagic is returned when decoding data that is not a .pfr stream.
	ErrBadMagic = pkgerrors.New("not a pose frame recording")
)

// RecordingError describes a failure on one recording file.
type RecordingError struct {
	Op   string
	Path string
	Err  error
}

func (e *RecordingError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RecordingError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRecordingIO) match any RecordingError.
func (e *RecordingError) Is(target error) bool { return target == ErrRecordingIO }
