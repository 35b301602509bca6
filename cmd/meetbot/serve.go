package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/meetbot/internal/config"
	"github.com/zulandar/meetbot/internal/dashboard"
	"github.com/zulandar/meetbot/internal/schedule"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled joins and the status dashboard",
		Long: "Runs the meeting scheduler and the read-only status dashboard until interrupted. " +
			"Records left in progress by a previous crash are marked as errors on startup.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to meetbot config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "dashboard port (0 = server.port from config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()

	now := time.Now().UTC()
	abandoned, err := a.store.MarkAbandoned(ctx, now.Add(-abandonAfter(a.cfg.Bot)), now)
	if err != nil {
		return err
	}
	if abandoned > 0 {
		fmt.Fprintf(out, "Marked %d abandoned session(s) as error\n", abandoned)
	}

	sched, err := schedule.New(a.cfg.Schedule, a.manager, a.log)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()
	for _, e := range sched.Entries() {
		fmt.Fprintf(out, "Scheduled %s, next join %s\n", e.Name, formatTime(e.Next))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if port <= 0 {
		port = a.cfg.Server.Port
	}
	return dashboard.Start(ctx, dashboard.StartOpts{
		Records:  a.store,
		Live:     a.manager,
		Gatherer: a.registry,
		Port:     port,
		Out:      out,
		Log:      a.log,
	})
}

// abandonAfter is how long an active row may go without an update before
// serve treats its process as dead. Live sessions write at least once per
// persist interval, and setup is bounded by the join waits.
func abandonAfter(b config.BotConfig) time.Duration {
	d := 5 * time.Minute
	if p := 3 * b.PersistInterval; p > d {
		d = p
	}
	if setup := 2 * (b.UIWaitTimeout + b.CaptionsWaitTimeout + b.JoinSettle); setup > d {
		d = setup
	}
	return d
}
