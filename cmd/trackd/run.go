package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cheggaaa/pb/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trackd/trackd/pkg/autobone"
	"github.com/trackd/trackd/pkg/config"
	"github.com/trackd/trackd/pkg/poseframe"
)

type localResult struct {
	File   string           `json:"file" yaml:"file"`
	Result *autobone.Result `json:"result,omitempty" yaml:"result,omitempty"`
	Error  string           `json:"error,omitempty" yaml:"error,omitempty"`
}

func newAutoBoneRunCommand() *cobra.Command {
	var (
		output string
		height float64
		epochs int
		seed   int64
	)

	cmd := &cobra.Command{
		Use:   "run <recording.pfr>...",
		Short: "Calibrate recordings locally without the daemon",
		Long: `Calibrate recordings locally without the daemon.

Tunables are read from the config file when it is readable, defaults are used
otherwise. Every recording is calibrated on its own.`,
		Example: `  trackd autobone run ABRecording1.pfr
  trackd autobone run --height 1.75 -o yaml LoadRecordings/*.pfr`,
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{annotationOffline: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}

			conf, err := config.NewFile(configPath)
			if err != nil {
				logrus.WithError(err).Warn("failed to read config file, using defaults")
				conf = config.NewFileFromConfig(nil, "")
			}
			ab := conf.AutoBone()
			if epochs > 0 {
				ab.NumEpochs = epochs
			}
			if seed == 0 {
				seed = conf.RandomSeed()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			results, err := runRecordings(ctx, ab, seed, height, args, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			if done, err := writeStructured(cmd.OutOrStdout(), output, results); done {
				return err
			}
			printLocalResults(cmd.OutOrStdout(), results)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", outputText, "output format (text, json, yaml)")
	f.Float64Var(&height, "height", 0, "target height in meters, detected when unset")
	f.IntVar(&epochs, "epochs", 0, "number of epochs, from the config when unset")
	f.Int64Var(&seed, "seed", 0, "frame order seed, from the config or time when unset")

	return cmd
}

// runRecordings calibrates every file on its own. A file that fails is
// reported in its result and does not stop the others. Cancellation stops
// the run.
func runRecordings(ctx context.Context, ab autobone.Config, seed int64, height float64, files []string, progress io.Writer) ([]localResult, error) {
	if err := ab.Validate(); err != nil {
		return nil, err
	}

	results := make([]localResult, 0, len(files))
	for i, file := range files {
		res := localResult{File: file}

		frames, err := poseframe.ReadFile(file)
		if err != nil {
			logrus.WithError(err).WithField("file", file).Error("failed to load recording")
			res.Error = err.Error()
			results = append(results, res)
			continue
		}

		var opts []autobone.Option
		if seed != 0 {
			opts = append(opts, autobone.WithRand(rand.New(rand.NewSource(seed))))
		}
		session := autobone.NewSession(ab, opts...)

		bar := pb.ProgressBarTemplate(progressTemplate).New(ab.NumEpochs)
		bar.SetWriter(progress)
		bar.Set("prefix", fmt.Sprintf("[%d/%d] %s", i+1, len(files), filepath.Base(file)))
		bar.Start()

		r, err := session.Run(ctx, frames, height, func(e autobone.Epoch) {
			if e.Epoch > 0 {
				bar.SetCurrent(int64(e.Epoch))
			}
		})
		bar.Finish()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logrus.WithError(err).WithField("file", file).Error("calibration failed")
			res.Error = err.Error()
		} else {
			res.Result = r
		}
		results = append(results, res)
	}
	return results, nil
}

func printLocalResults(w io.Writer, results []localResult) {
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, bold(res.File))
		if res.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", res.Error)
			continue
		}
		r := res.Result
		fmt.Fprintf(w, "  Final height: %s (target %.4f m, off by %.4f m)\n", bold("%.4f m", r.FinalHeight), r.TargetHeight, r.HeightDifference())
		if r.NumericFaults > 0 {
			fmt.Fprintf(w, "  Numeric faults: %d\n", r.NumericFaults)
		}
		printValues(w, "  ", r.ConfigValues)
	}
}
