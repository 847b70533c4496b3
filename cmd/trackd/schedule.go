package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule [cron-expression]",
		Aliases: []string{"sch", "sched"},
		Short:   "Manage scheduled calibration runs",
		Long: `Manage scheduled calibration runs.

Scheduled runs calibrate against the load directory and apply the result.
A run is skipped when a job is already in progress.

The schedule command can be used in multiple ways:
  trackd schedule 'minute hour day month weekday' Set schedule with cron expression
  trackd schedule disable                         Disable the schedule
  trackd schedule postpone [duration]             Postpone next run
  trackd schedule skip                            Skip next run
  trackd schedule show                            Show current schedule`,
		Example: `  trackd schedule '0 4 * * *'  (At 04:00 every day)
  trackd schedule '0 4 * * 1'  (At 04:00 on Monday)
  trackd schedule '@weekly'`,
		GroupID: gAdvanced,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runScheduleShow(cmd)
			}
			return runScheduleSet(cmd, args[0])
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "disable",
			Short: "Disable scheduled calibration runs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if _, err := apiClient.Schedule(""); err != nil {
					return err
				}
				cmd.Println("Calibration schedule disabled.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "postpone [duration]",
			Short: "Postpone the next scheduled calibration run",
			Example: `  trackd schedule postpone      (Postpone by 1 hour)
  trackd schedule postpone 90m  (Postpone by 90 minutes)`,
			Args: cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := parseDurationArg(args, time.Hour)
				if err != nil {
					return err
				}
				if _, err := apiClient.PostponeSchedule(d); err != nil {
					return err
				}
				cmd.Printf("Next run postponed by %s.\n", d)
				return nil
			},
		},
		&cobra.Command{
			Use:   "skip",
			Short: "Skip the next scheduled calibration run",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if _, err := apiClient.SkipSchedule(); err != nil {
					return err
				}
				cmd.Println("Next scheduled run skipped.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Show the calibration schedule",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runScheduleShow(cmd)
			},
		},
	)

	return cmd
}

func runScheduleSet(cmd *cobra.Command, cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	nextRuns, err := apiClient.Schedule(cronExpr)
	if err != nil {
		return err
	}
	cmd.Printf("Calibration scheduled. Next %d run(s):\n", len(nextRuns))
	for _, run := range nextRuns {
		cmd.Printf("  - %s\n", run.Local().Format(time.DateTime))
	}
	return nil
}

func runScheduleShow(cmd *cobra.Command) error {
	sch, err := apiClient.GetSchedule()
	if err != nil {
		return err
	}
	if sch.Cron == "" {
		cmd.Println("Calibration schedule is not set.")
		return nil
	}
	cmd.Printf("Schedule: %s (running: %s)\n", bold("%s", sch.Cron), bool2Text(sch.Running))
	cmd.Printf("Next %d run(s):\n", len(sch.NextRuns))
	for _, run := range sch.NextRuns {
		cmd.Printf("  - %s\n", run.Local().Format(time.DateTime))
	}
	return nil
}
