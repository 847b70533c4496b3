package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/trackd/trackd/pkg/autobone"
	"github.com/trackd/trackd/pkg/skeleton"
)

func TestParseSkeletonArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    map[skeleton.ConfigValue]float64
		wantErr bool
	}{
		{
			name: "single",
			args: []string{"NECK=0.12"},
			want: map[skeleton.ConfigValue]float64{skeleton.ConfigNeck: 0.12},
		},
		{
			name: "lower case and spaces",
			args: []string{"torso = 0.6", "LEGS_LENGTH=0.9"},
			want: map[skeleton.ConfigValue]float64{
				skeleton.ConfigTorso:      0.6,
				skeleton.ConfigLegsLength: 0.9,
			},
		},
		{name: "no args", args: nil, wantErr: true},
		{name: "missing equals", args: []string{"NECK"}, wantErr: true},
		{name: "unknown key", args: []string{"TAIL=1"}, wantErr: true},
		{name: "not a number", args: []string{"NECK=long"}, wantErr: true},
		{name: "negative", args: []string{"NECK=-0.1"}, wantErr: true},
		{name: "zero", args: []string{"HEAD=0"}, wantErr: true},
		{name: "at the floor", args: []string{"HEAD=0.01"}, wantErr: true},
		{name: "nan", args: []string{"HEAD=NaN"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSkeletonArgs(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSkeletonArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseSkeletonArgs() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestParseDurationArg(t *testing.T) {
	tests := []struct {
		args    []string
		want    time.Duration
		wantErr bool
	}{
		{args: nil, want: time.Hour},
		{args: []string{"90m"}, want: 90 * time.Minute},
		{args: []string{"soon"}, wantErr: true},
		{args: []string{"-1h"}, wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseDurationArg(tt.args, time.Hour)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseDurationArg(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("parseDurationArg(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestWriteStructured(t *testing.T) {
	v := map[string]int{"epochCount": 3}

	tests := []struct {
		format   string
		wantDone bool
		want     string
	}{
		{format: outputJSON, wantDone: true, want: "{\n  \"epochCount\": 3\n}\n"},
		{format: outputYAML, wantDone: true, want: "epochCount: 3\n"},
		{format: outputText, wantDone: false, want: ""},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		done, err := writeStructured(&buf, tt.format, v)
		if err != nil {
			t.Fatalf("%s: %v", tt.format, err)
		}
		if done != tt.wantDone || buf.String() != tt.want {
			t.Errorf("%s: got (%v, %q), want (%v, %q)", tt.format, done, buf.String(), tt.wantDone, tt.want)
		}
	}

	if err := validateOutput("xml"); err == nil {
		t.Error("expected error for unknown output format")
	}
}

func TestSetAutoBoneFields(t *testing.T) {
	ab := autobone.DefaultConfig()

	got, err := setAutoBoneFields(ab, []string{"epochCount=50", "randomizeFrameOrder=false", "manualTargetHeight=1.75"})
	if err != nil {
		t.Fatal(err)
	}
	if got.NumEpochs != 50 || got.RandomizeFrameOrder || got.TargetHeight != 1.75 {
		t.Fatalf("setAutoBoneFields() = %+v", got)
	}
	if got.AdjustRateMultiplier != ab.AdjustRateMultiplier {
		t.Errorf("untouched field changed: %v", got.AdjustRateMultiplier)
	}

	for _, args := range [][]string{
		{"epochs=50"},
		{"epochCount"},
		{"epochCount=many"},
		{"epochCount=-1"},
	} {
		if _, err := setAutoBoneFields(ab, args); err == nil {
			t.Errorf("setAutoBoneFields(%v) expected error", args)
		}
	}
}

func TestRunRecordingsIsolatesBadFiles(t *testing.T) {
	ab := autobone.DefaultConfig()
	ab.NumEpochs = 1

	var progress bytes.Buffer
	results, err := runRecordings(context.Background(), ab, 1, 0, []string{t.TempDir() + "/missing.pfr"}, &progress)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Result != nil || results[0].Error == "" {
		t.Fatalf("runRecordings() = %+v", results)
	}

	var out bytes.Buffer
	printLocalResults(&out, results)
	if !strings.Contains(out.String(), "Error:") {
		t.Errorf("printLocalResults() = %q", out.String())
	}
}

func TestSkipVersionCheck(t *testing.T) {
	root := NewCommand()

	tests := []struct {
		args []string
		want bool
	}{
		{args: []string{"version"}, want: true},
		{args: []string{"daemon"}, want: true},
		{args: []string{"autobone", "run"}, want: true},
		{args: []string{"autobone", "status"}, want: false},
		{args: []string{"status"}, want: false},
	}

	for _, tt := range tests {
		cmd, _, err := root.Find(tt.args)
		if err != nil {
			t.Fatalf("Find(%v): %v", tt.args, err)
		}
		if got := skipVersionCheck(cmd); got != tt.want {
			t.Errorf("skipVersionCheck(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}

}
