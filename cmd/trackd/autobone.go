package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trackd/trackd/pkg/autobone"
	"github.com/trackd/trackd/pkg/calibration"
	"github.com/trackd/trackd/pkg/events"
)

const progressTemplate = `{{ string . "prefix" }} {{counters . }} {{bar . }} {{percent . }} {{etime . "%s elapsed"}} {{rtime . "%s remain" "%s total" "???"}}`

func NewAutoBoneCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "autobone",
		Aliases: []string{"ab", "calibrate"},
		Short:   "Estimate bone lengths from pose recordings",
		Long: `Start, monitor and control AutoBone calibration jobs.

A job runs over every recording in the load directory (or the latest uploaded
recording when that directory is empty), averages the estimated body and can
apply it to the live skeleton.`,
		GroupID: gBasic,
	}

	cmd.AddCommand(
		newAutoBoneStartCommand(),
		newAutoBoneStatusCommand(),
		newAutoBoneCancelCommand(),
		newAutoBoneApplyCommand(),
		newAutoBoneWatchCommand(),
		newAutoBoneConfigCommand(),
		newAutoBoneRunCommand(),
	)
	return cmd
}

func newAutoBoneStartCommand() *cobra.Command {
	var (
		req   calibration.StartRequest
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a calibration job on the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.TargetHeight < 0 {
				return fmt.Errorf("target height must not be negative, got %v", req.TargetHeight)
			}
			if req.Epochs < 0 {
				return fmt.Errorf("epochs must not be negative, got %d", req.Epochs)
			}
			if _, err := apiClient.StartAutoBone(req); err != nil {
				return fmt.Errorf("failed to start autobone: %w", err)
			}
			cmd.Println("AutoBone started.")
			if watch {
				return watchAutoBone(cmd)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Float64Var(&req.TargetHeight, "height", 0, "target height in meters, detected when unset")
	f.IntVar(&req.Epochs, "epochs", 0, "number of epochs, from the config when unset")
	f.BoolVar(&req.Apply, "apply", false, "apply the result to the live skeleton when the job completes")
	f.BoolVarP(&watch, "watch", "w", false, "follow the job until it finishes")

	return cmd
}

func newAutoBoneStatusCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current calibration job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			st, err := apiClient.GetAutoBoneStatus()
			if err != nil {
				return fmt.Errorf("failed to fetch autobone status: %w", err)
			}
			if done, err := writeStructured(cmd.OutOrStdout(), output, st); done {
				return err
			}
			printAutoBoneStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json, yaml)")
	return cmd
}

func newAutoBoneCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the running calibration job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := apiClient.CancelAutoBone(); err != nil {
				return fmt.Errorf("failed to cancel autobone: %w", err)
			}
			cmd.Println("AutoBone canceled.")
			return nil
		},
	}
}

func newAutoBoneApplyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Apply the last calibration result to the live skeleton",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := apiClient.ApplyAutoBone(); err != nil {
				return fmt.Errorf("failed to apply autobone result: %w", err)
			}
			cmd.Println("Result applied and saved.")
			return nil
		},
	}
}

func newAutoBoneWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the running calibration job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return watchAutoBone(cmd)
		},
	}
}

func watchAutoBone(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Subscribe before reading the status so no transition is missed.
	evs, err := apiClient.WatchAutoBone(ctx)
	if err != nil {
		return err
	}
	st, err := apiClient.GetAutoBoneStatus()
	if err != nil {
		return fmt.Errorf("failed to fetch autobone status: %w", err)
	}
	if !st.Phase.Active() {
		printAutoBoneStatus(cmd.OutOrStdout(), st)
		return nil
	}

	var (
		bar       *pb.ProgressBar
		recording int
	)
	finishBar := func() {
		if bar != nil {
			bar.Finish()
			bar = nil
		}
	}
	defer finishBar()

	for ev := range evs {
		switch ev.Name {
		case events.AutoBoneEpoch:
			p, err := events.DecodeAs[calibration.EpochProgress](ev)
			if err != nil {
				return fmt.Errorf("failed to decode epoch: %w", err)
			}
			if bar == nil || p.Recording != recording {
				finishBar()
				recording = p.Recording
				bar = pb.ProgressBarTemplate(progressTemplate).New(p.TotalEpochs)
				bar.SetWriter(cmd.ErrOrStderr())
				bar.Set("prefix", fmt.Sprintf("recording %d/%d", p.Recording, p.TotalRecordings))
				bar.Start()
			}
			bar.SetCurrent(int64(p.Epoch))
		case events.AutoBonePhase:
			pe, err := events.DecodeAs[events.PhaseEvent](ev)
			if err != nil {
				return fmt.Errorf("failed to decode phase: %w", err)
			}
			phase := calibration.Phase(pe.To)
			if phase.Active() {
				continue
			}
			finishBar()
			st, err := apiClient.GetAutoBoneStatus()
			if err != nil {
				return fmt.Errorf("failed to fetch autobone status: %w", err)
			}
			printAutoBoneStatus(cmd.OutOrStdout(), st)
			if phase == calibration.PhaseError {
				return fmt.Errorf("autobone failed: %s", pe.Message)
			}
			return nil
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	return errors.New("daemon closed the event stream")
}

func printAutoBoneStatus(w io.Writer, st *calibration.Status) {
	if st.ID != "" {
		fmt.Fprintf(w, "Job: %s\n", st.ID)
	}
	fmt.Fprintf(w, "Phase: %s\n", phaseText(st.Phase))
	if !st.StartedAt.IsZero() {
		fmt.Fprintf(w, "Started: %s (%s ago)\n", st.StartedAt.Format(time.RFC3339), time.Since(st.StartedAt).Round(time.Second))
	}
	if st.Phase.Active() {
		fmt.Fprintf(w, "Recording: %s\n", bold("%d/%d", st.Recording, st.TotalRecordings))
		fmt.Fprintf(w, "Epoch: %s (error %.6f)\n", bold("%d/%d", st.Epoch, st.TotalEpochs), st.EpochError)
		fmt.Fprintf(w, "Time left: %s\n", bold("%s", formatETA(st.ETASeconds)))
	}
	if st.TargetHeight > 0 {
		fmt.Fprintf(w, "Target height: %s\n", bold("%.4f m", st.TargetHeight))
	}
	if r := st.Result; r != nil {
		fmt.Fprintf(w, "Result (%d recording(s)):\n", r.Recordings)
		fmt.Fprintf(w, "  Final height: %s (target %.4f m, off by %.4f m)\n", bold("%.4f m", r.FinalHeight), r.TargetHeight, r.HeightDifference)
		if r.NumericFaults > 0 {
			fmt.Fprintf(w, "  Numeric faults: %d\n", r.NumericFaults)
		}
		fmt.Fprintf(w, "  Applied: %s\n", bool2Text(r.Applied))
		printValues(w, "  ", r.ConfigValues)
	}
	if !st.ScheduledAt.IsZero() {
		fmt.Fprintf(w, "Next scheduled run: %s\n", st.ScheduledAt.Format(time.RFC1123))
	}
	fmt.Fprintf(w, "Can Cancel: %v  Can Apply: %v\n", st.CanCancel, st.CanApply)
	if st.Message != "" {
		fmt.Fprintf(w, "Message: %s\n", st.Message)
	}
}

func newAutoBoneConfigCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the calibration tunables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ab, err := apiClient.GetAutoBoneConfig()
			if err != nil {
				return err
			}
			if output == outputText {
				output = outputYAML
			}
			if err := validateOutput(output); err != nil {
				return err
			}
			_, err = writeStructured(cmd.OutOrStdout(), output, ab)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputYAML, "output format (json, yaml)")

	cmd.AddCommand(&cobra.Command{
		Use:   "set key=value...",
		Short: "Change calibration tunables",
		Example: `  trackd autobone config set epochCount=50
  trackd autobone config set manualTargetHeight=1.75 randomizeFrameOrder=false`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ab, err := apiClient.GetAutoBoneConfig()
			if err != nil {
				return err
			}
			updated, err := setAutoBoneFields(*ab, args)
			if err != nil {
				return err
			}
			if _, err := apiClient.SetAutoBoneConfig(updated); err != nil {
				return fmt.Errorf("failed to set autobone config: %w", err)
			}
			cmd.Println("AutoBone config updated.")
			return nil
		},
	})

	return cmd
}

// setAutoBoneFields sets fields of ab by their JSON names. Values are parsed
// as YAML scalars so numbers and booleans keep their types.
func setAutoBoneFields(ab autobone.Config, args []string) (autobone.Config, error) {
	b, err := json.Marshal(ab)
	if err != nil {
		return ab, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return ab, err
	}

	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return ab, fmt.Errorf("invalid argument %q, expected key=value", arg)
		}
		if _, ok := fields[k]; !ok {
			return ab, fmt.Errorf("unknown autobone setting %q", k)
		}
		var value any
		if err := yaml.Unmarshal([]byte(v), &value); err != nil {
			return ab, fmt.Errorf("invalid value for %s: %v", k, err)
		}
		fields[k] = value
	}

	b, err = json.Marshal(fields)
	if err != nil {
		return ab, err
	}
	var out autobone.Config
	if err := json.Unmarshal(b, &out); err != nil {
		return ab, fmt.Errorf("invalid autobone config: %v", err)
	}
	if err := out.Validate(); err != nil {
		return ab, err
	}
	return out, nil
}
