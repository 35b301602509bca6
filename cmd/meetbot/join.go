package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zulandar/meetbot/internal/bot"
	"github.com/zulandar/meetbot/internal/manager"
)

func newJoinCmd() *cobra.Command {
	var (
		configPath  string
		duration    int
		requestedBy string
	)

	cmd := &cobra.Command{
		Use:   "join <meeting-url>",
		Short: "Join a meeting and record captions until it ends",
		Long: "Joins a Google Meet call in the foreground and records live captions until everyone " +
			"else has left, the meeting ends, or the duration limit is reached. Ctrl-C leaves the meeting.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd, configPath, args[0], duration, requestedBy)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to meetbot config file")
	cmd.Flags().IntVar(&duration, "duration", 0, "maximum minutes to stay in the meeting (0 = configured default)")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "cli", "who asked for the bot, stored with the transcript")
	return cmd
}

func runJoin(cmd *cobra.Command, configPath, url string, duration int, requestedBy string) error {
	if _, err := bot.ParseMeetingURL(url); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	h, err := a.manager.Start(manager.JoinRequest{
		URL:             url,
		DurationMinutes: duration,
		RequestedBy:     requestedBy,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Joining %s (limit %d min)\n", h.MeetingID, a.cfg.Bot.ClampDuration(duration))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(out, "\nReceived %s, leaving meeting...\n", sig)
			requestStop(a.manager, h.MeetingID, time.Minute, a.log)
		case <-h.Done():
		}
	}()

	final, err := h.Wait(ctx)
	printFinal(out, h.MeetingID, final)
	if err != nil {
		return err
	}
	if final.Status == bot.StatusError {
		return fmt.Errorf("meeting %s ended with error: %s", h.MeetingID, final.ErrorMessage)
	}
	return nil
}

type stopper interface {
	Stop(ctx context.Context, meetingID string) (bot.Final, error)
}

// requestStop asks the session to leave and waits up to timeout for it.
func requestStop(s stopper, meetingID string, timeout time.Duration, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := s.Stop(ctx, meetingID); err != nil {
		log.Error().Err(err).Str("meeting_id", meetingID).Msg("stop meeting")
	}
}
