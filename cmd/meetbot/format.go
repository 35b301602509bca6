package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/zulandar/meetbot/internal/bot"
	"github.com/zulandar/meetbot/internal/models"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// formatDuration renders d as e.g. "1h05m", "12m30s" or "45s".
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// sessionDuration is the time from start to end, or to the last update for
// sessions that have not finished.
func sessionDuration(r models.MeetingTranscript) time.Duration {
	end := r.LastUpdated
	if r.EndTime != nil {
		end = *r.EndTime
	}
	if r.StartTime.IsZero() || end.Before(r.StartTime) {
		return 0
	}
	return end.Sub(r.StartTime)
}

func countLines(transcript string) int {
	if transcript == "" {
		return 0
	}
	return strings.Count(transcript, "\n") + 1
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func printFinal(out io.Writer, meetingID string, f bot.Final) {
	fmt.Fprintf(out, "Meeting %s: %s", meetingID, f.Status)
	if f.ExitReason != "" {
		fmt.Fprintf(out, " (%s)", f.ExitReason)
	}
	fmt.Fprintln(out)
	if f.ErrorMessage != "" {
		fmt.Fprintf(out, "Error: %s\n", f.ErrorMessage)
	}
	fmt.Fprintf(out, "Captured %d caption line(s)\n", countLines(f.Transcript))
}
