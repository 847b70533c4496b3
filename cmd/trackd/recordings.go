package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/trackd/trackd/pkg/poseframe"
)

func NewRecordingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recordings",
		Aliases: []string{"rec"},
		Short:   "Manage pose recordings",
		GroupID: gBasic,
	}

	var output string
	list := &cobra.Command{
		Use:   "list",
		Short: "List recordings known to the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			recs, err := apiClient.GetRecordings()
			if err != nil {
				return err
			}
			if done, err := writeStructured(cmd.OutOrStdout(), output, recs); done {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, bold("Load directory:"))
			printRecordingInfos(w, recs.Load)
			fmt.Fprintln(w, bold("Saved:"))
			printRecordingInfos(w, recs.Saved)
			return nil
		},
	}
	list.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json, yaml)")

	upload := &cobra.Command{
		Use:   "upload <recording.pfr>...",
		Short: "Upload recordings to the daemon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, file := range args {
				frames, err := poseframe.ReadFile(file)
				if err != nil {
					return err
				}
				saved, err := apiClient.UploadRecording(frames)
				if err != nil {
					return err
				}
				cmd.Printf("%s uploaded as %s\n", file, saved)
			}
			return nil
		},
	}

	cmd.AddCommand(list, upload)
	return cmd
}

func printRecordingInfos(w io.Writer, infos []poseframe.RecordingInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, info := range infos {
		fmt.Fprintf(w, "  %-24s %10d B  %s\n", info.Name, info.Size, info.ModTime.Local().Format(time.DateTime))
	}
}
