package daemon

import (
	"sync"
	"time"
)

var epochTimer = NewEpochTimer(50)

// EpochTimer records the finish times of the last N epochs.
type EpochTimer struct {
	MaxRecordCount int
	EpochTimes     []time.Time
	mu             *sync.Mutex
}

// NewEpochTimer returns a new EpochTimer.
func NewEpochTimer(maxRecordCount int) *EpochTimer {
	return &EpochTimer{
		MaxRecordCount: maxRecordCount,
		EpochTimes:     make([]time.Time, 0),
		mu:             &sync.Mutex{},
	}
}

// AddRecordNow adds a new record with the current time.
func (r *EpochTimer) AddRecordNow() {
	r.AddRecord(time.Now())
}

// AddRecord adds a new record.
func (r *EpochTimer) AddRecord(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Strip monotonic clock reading.
	t = t.Round(0)

	if len(r.EpochTimes) >= r.MaxRecordCount {
		r.EpochTimes = r.EpochTimes[1:]
	}
	r.EpochTimes = append(r.EpochTimes, t)
}

// ClearRecords clears all records.
func (r *EpochTimer) ClearRecords() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.EpochTimes = make([]time.Time, 0)
}

// GetRecords returns a copy of the records.
func (r *EpochTimer) GetRecords() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]time.Time(nil), r.EpochTimes...)
}

// MeanInterval returns the average time between adjacent records, or zero
// with fewer than two records.
func (r *EpochTimer) MeanInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.EpochTimes)
	if n < 2 {
		return 0
	}
	span := r.EpochTimes[n-1].Sub(r.EpochTimes[0])
	if span <= 0 {
		return 0
	}
	return span / time.Duration(n-1)
}

// ETA estimates how long the remaining epochs take at the recent pace.
func (r *EpochTimer) ETA(remaining int) time.Duration {
	if remaining <= 0 {
		return 0
	}
	return r.MeanInterval() * time.Duration(remaining)
}
