package bot

import (
	"fmt"
	"net/url"
	"strings"
)

// MeetHost is the only host the bot will join.
const MeetHost = "meet.google.com"

// ParseMeetingURL validates a Meet join URL and returns its meeting code.
func ParseMeetingURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidMeetingURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMeetingURL, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidMeetingURL, u.Scheme)
	}
	if !strings.EqualFold(u.Hostname(), MeetHost) {
		return "", fmt.Errorf("%w: host %q", ErrInvalidMeetingURL, u.Hostname())
	}
	code := strings.Trim(u.Path, "/")
	if code == "" || strings.Contains(code, "/") {
		return "", fmt.Errorf("%w: path %q", ErrInvalidMeetingURL, u.Path)
	}
	return code, nil
}
