package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTranscriptCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "transcript <meeting-id>",
		Short: "Print the stored transcript for a meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeDB, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer closeDB()

			r, err := st.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if r.Transcript == "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "No captions recorded for %s (%s)\n", r.MeetingID, r.Status)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), r.Transcript)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to meetbot config file")
	return cmd
}
