package bot

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// join waits for the Meet UI and tries to get into the call. Everything here
// is best effort: a missing control is logged and the session carries on.
// Only an explicit refusal from Meet is returned as an error.
func (s *Session) join(ctx context.Context) error {
	sel := s.cfg.Selectors

	found, err := s.page.WaitAny(ctx, sel.Ready, s.cfg.UIWaitTimeout)
	if err != nil {
		s.log.Warn().Err(err).Msg("timed out waiting for meet interface, continuing anyway")
		return ctx.Err()
	}
	s.log.Info().Str("selector", found).Msg("meet interface detected")

	if sel.Error != "" {
		if text, err := s.page.Text(ctx, sel.Error); err == nil && text != "" {
			s.log.Warn().Str("message", text).Msg("meet error message on page")
			if ContainsAny(strings.ToLower(text), s.cfg.RejectedPhrases) {
				return fmt.Errorf("%w: %s", ErrMeetingRejected, strings.TrimSpace(text))
			}
		}
	}

	if sel.NameInput != "" {
		if ok, _ := s.page.Exists(ctx, sel.NameInput); ok {
			if err := s.page.Type(ctx, sel.NameInput, s.cfg.DisplayName); err != nil {
				s.log.Warn().Err(err).Msg("enter display name")
			} else {
				s.log.Info().Str("name", s.cfg.DisplayName).Msg("entered display name")
			}
		}
	}

	s.clickFirst(ctx, "camera", sel.Camera)
	s.clickFirst(ctx, "microphone", sel.Microphone)

	if !s.clickJoin(ctx) {
		s.log.Warn().Msg("join button not found, attempting to continue")
		return nil
	}
	if err := sleepCtx(ctx, s.cfg.JoinSettle); err != nil {
		return err
	}
	s.log.Info().Msg("joined the meeting")
	return nil
}

// clickJoin runs the join matchers in order and reports whether any clicked.
func (s *Session) clickJoin(ctx context.Context) bool {
	for _, m := range s.cfg.Join {
		ok, err := m.TryJoin(ctx, s.page)
		if err != nil {
			s.log.Warn().Err(err).Str("matcher", m.Name()).Msg("join matcher failed")
			continue
		}
		if ok {
			s.log.Info().Str("matcher", m.Name()).Msg("clicked join button")
			return true
		}
	}
	return false
}

// clickFirst clicks the first element matching any of selectors.
func (s *Session) clickFirst(ctx context.Context, what string, selectors []string) {
	if len(selectors) == 0 {
		return
	}
	group := strings.Join(selectors, ", ")
	ok, err := s.page.Exists(ctx, group)
	if err != nil || !ok {
		return
	}
	if err := s.page.Click(ctx, group); err != nil {
		s.log.Warn().Err(err).Str("control", what).Msg("could not toggle control, continuing anyway")
		return
	}
	s.log.Info().Str("control", what).Msg("turned off device")
}

// enableCaptions turns on live captions when the button shows up in time.
func (s *Session) enableCaptions(ctx context.Context) {
	sel := s.cfg.Selectors.Captions
	if sel == "" {
		return
	}
	if _, err := s.page.WaitAny(ctx, []string{sel}, s.cfg.CaptionsWaitTimeout); err != nil {
		s.log.Warn().Msg("captions button not found or already enabled")
		return
	}
	if err := s.page.Click(ctx, sel); err != nil {
		s.log.Warn().Err(err).Msg("turn on captions")
		return
	}
	s.log.Info().Msg("turned on captions")
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
