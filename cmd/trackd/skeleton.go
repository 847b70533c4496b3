package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trackd/trackd/pkg/skeleton"
)

func NewSkeletonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "skeleton",
		Aliases: []string{"skel"},
		Short:   "Show or change the live skeleton proportions",
		GroupID: gBasic,
	}

	var output string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the live skeleton proportions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			values, err := apiClient.GetSkeleton()
			if err != nil {
				return err
			}
			if done, err := writeStructured(cmd.OutOrStdout(), output, values); done {
				return err
			}
			c := skeleton.NewConfig()
			c.SetAll(values)
			printValues(cmd.OutOrStdout(), "", values)
			cmd.Printf("%-12s %s\n", "height", bold("%.4f m", c.Height()))
			return nil
		},
	}
	show.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json, yaml)")

	set := &cobra.Command{
		Use:   "set KEY=VALUE...",
		Short: "Change live skeleton proportions",
		Example: `  trackd skeleton set NECK=0.12
  trackd skeleton set TORSO=0.62 LEGS_LENGTH=0.9`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseSkeletonArgs(args)
			if err != nil {
				return err
			}
			if _, err := apiClient.SetSkeleton(values); err != nil {
				return fmt.Errorf("failed to set skeleton: %w", err)
			}
			cmd.Println("Skeleton updated.")
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore the default skeleton proportions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			msg, err := apiClient.ResetSkeleton()
			if err != nil {
				return fmt.Errorf("failed to reset skeleton: %w", err)
			}
			cmd.Println(msg)
			return nil
		},
	}

	cmd.AddCommand(show, set, reset)
	return cmd
}
