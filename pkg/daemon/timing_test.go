package daemon

import (
	"sync"
	"testing"
	"time"
)

func TestEpochTimer_ETA(t *testing.T) {
	base := time.Now().Add(-time.Minute)
	type fields struct {
		MaxRecordCount int
		EpochTimes     []time.Time
	}
	tests := []struct {
		name      string
		fields    fields
		remaining int
		want      time.Duration
	}{
		{
			name:      "no records",
			fields:    fields{MaxRecordCount: 10},
			remaining: 5,
			want:      0,
		},
		{
			name: "single record",
			fields: fields{
				MaxRecordCount: 10,
				EpochTimes:     []time.Time{base},
			},
			remaining: 5,
			want:      0,
		},
		{
			name: "steady pace",
			fields: fields{
				MaxRecordCount: 10,
				EpochTimes: []time.Time{
					base,
					base.Add(2 * time.Second),
					base.Add(4 * time.Second),
				},
			},
			remaining: 10,
			want:      20 * time.Second,
		},
		{
			name: "uneven pace averages",
			fields: fields{
				MaxRecordCount: 10,
				EpochTimes: []time.Time{
					base,
					base.Add(1 * time.Second),
					base.Add(4 * time.Second),
				},
			},
			remaining: 4,
			want:      8 * time.Second,
		},
		{
			name: "nothing remaining",
			fields: fields{
				MaxRecordCount: 10,
				EpochTimes:     []time.Time{base, base.Add(time.Second)},
			},
			remaining: 0,
			want:      0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &EpochTimer{
				MaxRecordCount: tt.fields.MaxRecordCount,
				EpochTimes:     tt.fields.EpochTimes,
				mu:             &sync.Mutex{},
			}
			if got := r.ETA(tt.remaining); got != tt.want {
				t.Errorf("ETA() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEpochTimer_MaxRecordCount(t *testing.T) {
	r := NewEpochTimer(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		r.AddRecord(base.Add(time.Duration(i) * time.Second))
	}

	records := r.GetRecords()
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if !records[0].Equal(base.Add(2 * time.Second)) {
		t.Fatalf("oldest record = %v, want %v", records[0], base.Add(2*time.Second))
	}

	r.ClearRecords()
	if len(r.GetRecords()) != 0 {
		t.Fatal("ClearRecords() left records behind")
	}
}
