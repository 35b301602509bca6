// Package bot drives one headless browser into a Google Meet call, scrapes the
// live captions and persists them until the call ends or a deadline passes.
package bot

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Status is the lifecycle state of a session record.
type Status string

// Session status constants.
const (
	StatusStarting   Status = "starting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Exit reasons recorded on the session record.
const (
	ReasonMaxDuration  = "Maximum duration reached"
	ReasonEveryoneLeft = "Everyone left the meeting"
	ReasonStopped      = "Stopped by request"
	errorReasonPrefix  = "Error: "
)

var (
	// ErrInvalidMeetingURL is returned when a URL is malformed or not a Meet link.
	ErrInvalidMeetingURL = errors.New("invalid Google Meet URL")
	// ErrDetached marks a page or frame that is gone for good.
	ErrDetached = errors.New("frame detached")
	// ErrMeetingRejected is returned when Meet refuses to let the bot in.
	ErrMeetingRejected = errors.New("meeting rejected the bot")
)

// IsDetached reports whether err means the page or frame can no longer be
// queried, as opposed to a transient query failure.
func IsDetached(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDetached) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "detached")
}

// ErrorReason formats an error as an exit reason.
func ErrorReason(err error) string {
	return errorReasonPrefix + err.Error()
}

// StartError is returned when a session fails before or during setup. It
// carries the meeting ID so callers can find the persisted record, and the
// terminal snapshot when the shutdown path ran.
type StartError struct {
	MeetingID string
	Err       error
	Final     Final
}

func (e *StartError) Error() string {
	if e.MeetingID == "" {
		return "bot: start: " + e.Err.Error()
	}
	return "bot: start " + e.MeetingID + ": " + e.Err.Error()
}

func (e *StartError) Unwrap() error { return e.Err }

// Launcher starts a dedicated browser process for one session.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is an exclusively owned browser process.
type Browser interface {
	// Page returns the tab the session navigates in.
	Page() Page
	// Pages returns every open tab.
	Pages(ctx context.Context) ([]Page, error)
	// Alive reports whether the browser process is still running.
	Alive() bool
	// Close terminates the browser process.
	Close() error
}

// Page is the subset of DOM automation the bot needs.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Closed() bool
	// Exists reports whether selector matches an element right now.
	Exists(ctx context.Context, selector string) (bool, error)
	// WaitAny waits until one of selectors matches and returns it.
	WaitAny(ctx context.Context, selectors []string, timeout time.Duration) (string, error)
	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error
	// ClickText clicks the first element with the given tag whose text
	// contains any of needles. It returns false when nothing matched.
	ClickText(ctx context.Context, tag string, needles []string) (bool, error)
	Type(ctx context.Context, selector, text string) error
	// Text returns the text content of the first element matching selector,
	// or "" when nothing matches.
	Text(ctx context.Context, selector string) (string, error)
	// BodyText returns document.body.innerText.
	BodyText(ctx context.Context) (string, error)
	// FirstText returns the text of the first element matched by any of
	// selectors, tried in order.
	FirstText(ctx context.Context, selectors []string) (text string, found bool, err error)
}

// Record is the initial row written when a session is accepted.
type Record struct {
	MeetingID          string
	RunID              string
	URL                string
	RequestedBy        string
	MaxDurationMinutes int
	StartTime          time.Time
}

// Final is the terminal snapshot written by the shutdown path.
type Final struct {
	Status       Status
	Transcript   string
	ErrorMessage string
	ExitReason   string
	EndTime      time.Time
}

// Store persists session records keyed by meeting ID. Writes are full
// snapshots, so last-write-wins is acceptable within one run. Writes after
// Begin carry the run ID and must not touch a row a newer run has taken over.
type Store interface {
	Begin(ctx context.Context, rec Record) error
	MarkInProgress(ctx context.Context, meetingID, runID string, at time.Time) error
	SaveTranscript(ctx context.Context, meetingID, runID, transcript string, at time.Time) error
	Finish(ctx context.Context, meetingID, runID string, f Final) error
}
