package events

import "encoding/json"

// Event name constants
const (
	AutoBonePhase  = "autobone.phase"
	AutoBoneEpoch  = "autobone.epoch"
	AutoBoneResult = "autobone.result"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          `json:"name"` // SSE event name
	Data json.RawMessage `json:"data"` // Raw JSON payload
}

// PhaseEvent is the typed payload for autobone.phase.
type PhaseEvent struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[calibration.EpochProgress](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Epoch, payload.EpochError)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
