package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/meetbot/internal/db"
	"github.com/zulandar/meetbot/internal/models"
	"github.com/zulandar/meetbot/internal/store"
)

func newStatusCmd() *cobra.Command {
	var (
		configPath string
		status     string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "status [meeting-id]",
		Short: "Show recorded sessions",
		Long:  "Lists recent sessions from the transcript store, or shows one session in detail when a meeting ID is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeDB, err := openStore(configPath)
			if err != nil {
				return err
			}
			defer closeDB()

			if len(args) == 1 {
				return runStatusDetail(cmd.Context(), cmd.OutOrStdout(), st, args[0])
			}
			return runStatusList(cmd.Context(), cmd.OutOrStdout(), st, store.ListOptions{Status: status, Limit: limit})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to meetbot config file")
	cmd.Flags().StringVar(&status, "status", "", "only show sessions with this status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum sessions to list")
	return cmd
}

// openStore connects and migrates so read commands work on a fresh database.
func openStore(configPath string) (*store.Store, func(), error) {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		closeDB()
		return nil, nil, err
	}
	return store.New(gormDB), closeDB, nil
}

func runStatusList(ctx context.Context, out io.Writer, st *store.Store, opts store.ListOptions) error {
	rows, err := st.List(ctx, opts)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No sessions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MEETING\tSTATUS\tSTARTED\tDURATION\tBY\tEXIT")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.MeetingID, r.Status, formatTime(r.StartTime), formatDuration(sessionDuration(r)),
			orDash(r.RequestedBy), truncate(exitSummary(r), 48))
	}
	return w.Flush()
}

func runStatusDetail(ctx context.Context, out io.Writer, st *store.Store, meetingID string) error {
	r, err := st.Get(ctx, meetingID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Meeting:\t%s\n", r.MeetingID)
	fmt.Fprintf(w, "URL:\t%s\n", r.URL)
	fmt.Fprintf(w, "Run:\t%s\n", r.RunID)
	fmt.Fprintf(w, "Status:\t%s\n", r.Status)
	if r.RequestedBy != "" {
		fmt.Fprintf(w, "Requested by:\t%s\n", r.RequestedBy)
	}
	fmt.Fprintf(w, "Limit:\t%d min\n", r.MaxDurationMinutes)
	fmt.Fprintf(w, "Started:\t%s\n", formatTime(r.StartTime))
	fmt.Fprintf(w, "Last update:\t%s\n", formatTime(r.LastUpdated))
	if r.EndTime != nil {
		fmt.Fprintf(w, "Ended:\t%s (%s)\n", formatTime(*r.EndTime), formatDuration(sessionDuration(*r)))
	}
	if r.ExitReason != "" {
		fmt.Fprintf(w, "Exit reason:\t%s\n", r.ExitReason)
	}
	if r.ErrorMessage != nil {
		fmt.Fprintf(w, "Error:\t%s\n", *r.ErrorMessage)
	}
	fmt.Fprintf(w, "Caption lines:\t%d\n", countLines(r.Transcript))
	return w.Flush()
}

func exitSummary(r models.MeetingTranscript) string {
	if r.ErrorMessage != nil && *r.ErrorMessage != "" {
		return *r.ErrorMessage
	}
	return r.ExitReason
}
