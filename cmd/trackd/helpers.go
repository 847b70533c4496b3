package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/trackd/trackd/pkg/autobone"
	"github.com/trackd/trackd/pkg/skeleton"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func validateOutput(format string) error {
	switch format {
	case outputText, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("invalid output format %q, must be one of text, json, yaml", format)
}

// writeStructured writes v as json or yaml. It returns false for text output,
// which every command renders itself.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

// parseSkeletonArgs parses KEY=VALUE pairs into legacy config values.
func parseSkeletonArgs(args []string) (map[skeleton.ConfigValue]float64, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("invalid number of arguments")
	}

	values := make(map[skeleton.ConfigValue]float64, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid argument %q, expected KEY=VALUE", arg)
		}
		key := skeleton.ConfigValue(strings.ToUpper(strings.TrimSpace(k)))
		if !key.Valid() {
			return nil, fmt.Errorf("unknown skeleton value %q", k)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %v", key, err)
		}
		if !(f > autobone.MinBoneLength) {
			return nil, fmt.Errorf("%s must be above %.2f m, got %v", key, autobone.MinBoneLength, f)
		}
		values[key] = f
	}
	return values, nil
}

func parseDurationArg(args []string, def time.Duration) (time.Duration, error) {
	if len(args) == 0 {
		return def, nil
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %v", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}
	return d, nil
}

func sortedKeys(values map[skeleton.ConfigValue]float64) []skeleton.ConfigValue {
	keys := make([]skeleton.ConfigValue, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func printValues(w io.Writer, indent string, values map[skeleton.ConfigValue]float64) {
	for _, k := range sortedKeys(values) {
		fmt.Fprintf(w, "%s%-12s %s\n", indent, k, bold("%.4f m", values[k]))
	}
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func formatETA(seconds int) string {
	if seconds <= 0 {
		return "unknown"
	}
	return (time.Duration(seconds) * time.Second).String()
}
