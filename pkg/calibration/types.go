package calibration

import (
	"time"

	"github.com/trackd/trackd/pkg/poseframe"
	"github.com/trackd/trackd/pkg/skeleton"
)

// Phase defines phases of an AutoBone job.
type Phase string

const (
	PhaseIdle      Phase = "Idle"
	PhaseLoading   Phase = "LoadingRecordings"
	PhaseRunning   Phase = "Running"
	PhaseCompleted Phase = "Completed"
	PhaseCanceled  Phase = "Canceled"
	PhaseError     Phase = "Error"
)

// Active reports whether a job in phase p still owns the worker.
func (p Phase) Active() bool {
	return p == PhaseLoading || p == PhaseRunning
}

// Action defines user actions on a job.
type Action string

const (
	ActionStart           Action = "Start"
	ActionCancel          Action = "Cancel"
	ActionApply           Action = "Apply"
	ActionSchedule        Action = "Schedule"
	ActionDisableSchedule Action = "DisableSchedule"
)

// Result is the averaged outcome of a job over every recording it ran on.
type Result struct {
	ConfigValues     map[skeleton.ConfigValue]float64 `json:"configValues"`
	FinalHeight      float64                          `json:"finalHeight"`
	TargetHeight     float64                          `json:"targetHeight"`
	HeightDifference float64                          `json:"heightDifference"`
	Recordings       int                              `json:"recordings"`
	NumericFaults    int                              `json:"numericFaults"`
	Applied          bool                             `json:"applied"`
}

// State holds runtime state persisted to disk.
type State struct {
	// ID identifies the job. It is regenerated on every start.
	ID           string    `json:"id"`
	Phase        Phase     `json:"phase"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	TargetHeight float64   `json:"targetHeight"`
	// Recording being processed, 1-based. Zero when not running.
	Recording       int     `json:"recording"`
	TotalRecordings int     `json:"totalRecordings"`
	Epoch           int     `json:"epoch"`
	TotalEpochs     int     `json:"totalEpochs"`
	EpochError      float64 `json:"epochError"`
	Result          *Result `json:"result,omitempty"`
	LastError       string  `json:"lastError"`
}

// EpochProgress is published after every epoch of every recording.
type EpochProgress struct {
	Recording       int                              `json:"recording"`
	TotalRecordings int                              `json:"totalRecordings"`
	Epoch           int                              `json:"epoch"`
	TotalEpochs     int                              `json:"totalEpochs"`
	EpochError      float64                          `json:"epochError"`
	ConfigValues    map[skeleton.ConfigValue]float64 `json:"configValues,omitempty"`
}

// Status is a synthesized view model exposed via HTTP. It derives from the
// persisted State plus live timing (ETA) and the schedule.
type Status struct {
	ID              string    `json:"id"`
	Phase           Phase     `json:"phase"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
	TargetHeight    float64   `json:"targetHeight"`
	Recording       int       `json:"recording"`
	TotalRecordings int       `json:"totalRecordings"`
	Epoch           int       `json:"epoch"`
	TotalEpochs     int       `json:"totalEpochs"`
	EpochError      float64   `json:"epochError"`
	// Estimated seconds until the job finishes. Zero when unknown.
	ETASeconds  int       `json:"etaSeconds"`
	Result      *Result   `json:"result,omitempty"`
	CanCancel   bool      `json:"canCancel"`
	CanApply    bool      `json:"canApply"`
	Message     string    `json:"message"`
	ScheduledAt time.Time `json:"scheduledAt,omitempty"`
}

// StartRequest is the body of a job start request.
type StartRequest struct {
	// TargetHeight overrides height detection when positive.
	TargetHeight float64 `json:"targetHeight"`
	// Epochs overrides the configured epoch count when positive.
	Epochs int `json:"epochs,omitempty"`
	// Apply commits the result to the live skeleton once the job completes.
	Apply bool `json:"apply"`
}

// Recordings lists the recording files the daemon knows about.
type Recordings struct {
	Saved []poseframe.RecordingInfo `json:"saved"`
	Load  []poseframe.RecordingInfo `json:"load"`
}

// Schedule describes the scheduled job runs.
type Schedule struct {
	Cron     string      `json:"cron"`
	Running  bool        `json:"running"`
	NextRuns []time.Time `json:"nextRuns"`
}
