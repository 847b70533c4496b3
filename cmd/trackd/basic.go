package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/trackd/trackd/pkg/calibration"
	"github.com/trackd/trackd/pkg/config"
	"github.com/trackd/trackd/pkg/skeleton"
	"github.com/trackd/trackd/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version",
		GroupID:     gBasic,
		Annotations: map[string]string{annotationOffline: "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

type statusData struct {
	autoBone *calibration.Status
	values   map[skeleton.ConfigValue]float64
	schedule *calibration.Schedule
	config   *config.RawFileConfig
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	st, err := apiClient.GetAutoBoneStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get autobone status: %w", err)
	}

	values, err := apiClient.GetSkeleton()
	if err != nil {
		return nil, fmt.Errorf("failed to get skeleton: %w", err)
	}

	sch, err := apiClient.GetSchedule()
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	return &statusData{
		autoBone: st,
		values:   values,
		schedule: sch,
		config:   conf,
	}, nil
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of trackd",
		Long:    `Get the calibration job, live skeleton and schedule of the trackd daemon.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			conf := config.NewFileFromConfig(data.config, "")

			cmd.Println(bold("AutoBone:"))
			cmd.Println("  Phase: " + phaseText(data.autoBone.Phase))
			if data.autoBone.Phase.Active() {
				cmd.Printf("  Recording: %d/%d  Epoch: %d/%d\n",
					data.autoBone.Recording, data.autoBone.TotalRecordings,
					data.autoBone.Epoch, data.autoBone.TotalEpochs)
				cmd.Printf("  Time left: %s\n", formatETA(data.autoBone.ETASeconds))
			}
			if data.autoBone.Result != nil {
				cmd.Printf("  Last result: %s over %d recording(s), applied: %s\n",
					bold("%.4f m", data.autoBone.Result.FinalHeight),
					data.autoBone.Result.Recordings,
					bool2Text(data.autoBone.Result.Applied))
			}
			if data.autoBone.Message != "" {
				cmd.Println("  " + data.autoBone.Message)
			}
			cmd.Println()

			c := skeleton.NewConfig()
			c.SetAll(data.values)
			cmd.Println(bold("Skeleton:"))
			cmd.Printf("  Height: %s\n", bold("%.4f m", c.Height()))
			cmd.Println()

			cmd.Println(bold("Configuration:"))
			ab := conf.AutoBone()
			cmd.Printf("  Epochs: %s\n", bold("%d", ab.NumEpochs))
			if ab.TargetHeight > 0 {
				cmd.Printf("  Target height: %s\n", bold("%.4f m", ab.TargetHeight))
			} else {
				cmd.Println("  Target height: detected")
			}
			cmd.Printf("  Load directory: %s\n", conf.LoadRecordingsDir())
			cmd.Println("  MQTT bridge: " + bool2Text(conf.MQTTBroker() != ""))
			cmd.Println("  Allow non-root access: " + bool2Text(conf.AllowNonRootAccess()))
			if data.schedule.Cron != "" {
				cmd.Printf("  Schedule: %s", bold("%s", data.schedule.Cron))
				if len(data.schedule.NextRuns) > 0 {
					cmd.Printf(" (next %s)", data.schedule.NextRuns[0].Format(time.RFC1123))
				}
				cmd.Println()
			} else {
				cmd.Println("  Schedule: " + bool2Text(false))
			}

			return nil
		},
	}
}

func phaseText(p calibration.Phase) string {
	switch p {
	case calibration.PhaseCompleted:
		return color.New(color.Bold, color.FgGreen).Sprint(p)
	case calibration.PhaseError:
		return color.New(color.Bold, color.FgRed).Sprint(p)
	case calibration.PhaseCanceled:
		return color.New(color.Bold, color.FgYellow).Sprint(p)
	case calibration.PhaseLoading, calibration.PhaseRunning:
		return color.New(color.Bold, color.FgCyan).Sprint(p)
	}
	return bold("%s", p)
}
