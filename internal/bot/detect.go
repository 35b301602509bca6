package bot

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
)

// Detector decides whether everyone else has left the call. Meet offers no
// authoritative signal, so three independent heuristics are checked and any
// one of them is enough.
type Detector struct {
	AlonePhrases         []string
	EndedPhrases         []string
	ParticipantSelectors []string
}

// DefaultDetector returns the Meet heuristics in use today.
func DefaultDetector() Detector {
	return Detector{
		AlonePhrases: []string{
			"You're the only one here",
			"You are the only one here",
			"No one else is here",
		},
		EndedPhrases: []string{
			"Call ended",
			"call has ended",
			"The meeting has ended",
			"meeting is over",
			"You left the meeting",
			"removed from the meeting",
		},
		ParticipantSelectors: []string{
			"[data-participant-count]",
			`[aria-label*="participant"]`,
		},
	}
}

// ExitSignals is the outcome of one exit-detection pass.
type ExitSignals struct {
	Alone        bool
	Participants int // -1 when no count could be read
	Ended        bool
}

// Fired reports whether any signal indicates the bot is alone.
func (s ExitSignals) Fired() bool {
	return s.Alone || s.Ended || (s.Participants >= 0 && s.Participants <= 1)
}

// Kinds lists the names of the signals that fired, for metrics.
func (s ExitSignals) Kinds() []string {
	var kinds []string
	if s.Alone {
		kinds = append(kinds, "alone_text")
	}
	if s.Participants >= 0 && s.Participants <= 1 {
		kinds = append(kinds, "participant_count")
	}
	if s.Ended {
		kinds = append(kinds, "call_ended")
	}
	return kinds
}

// Evaluate runs every heuristic against page. A failing heuristic is logged
// and treated as not fired; it never aborts the others.
func (d Detector) Evaluate(ctx context.Context, page Page, log zerolog.Logger) ExitSignals {
	sig := ExitSignals{Participants: -1}

	body, err := page.BodyText(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("exit check: read page text")
	} else {
		sig.Alone = ContainsAny(body, d.AlonePhrases)
		sig.Ended = ContainsAny(body, d.EndedPhrases)
	}

	if len(d.ParticipantSelectors) > 0 {
		text, found, err := page.FirstText(ctx, d.ParticipantSelectors)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("exit check: read participant count")
		case found:
			sig.Participants = ParticipantCount(text)
		}
	}
	return sig
}

// ParticipantCount reads the headcount from a participant badge such as "3",
// "12 participants" or "You + 1". Only the first number counts, and the
// "You + N" form adds the bot itself. It returns -1 when the text holds no
// number and clamps zero to one, since the bot is always present.
func ParticipantCount(text string) int {
	start := strings.IndexFunc(text, unicode.IsDigit)
	if start < 0 {
		return -1
	}
	end := start
	for end < len(text) && text[end] >= '0' && text[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(text[start:end])
	if err != nil {
		return -1
	}
	if strings.HasSuffix(strings.TrimSpace(text[:start]), "+") {
		n++
	}
	if n <= 1 {
		return 1
	}
	return n
}

// ContainsAny reports whether s contains any of needles.
func ContainsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
