// Package manager keeps the registry of live bot sessions. Each session runs
// its own browser; the manager only prevents two bots joining the same
// meeting at once and fans stop requests out to them.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/meetbot/internal/bot"
	"github.com/zulandar/meetbot/internal/config"
)

var (
	// ErrAlreadyRunning is returned when a session for the meeting is live.
	ErrAlreadyRunning = errors.New("manager: meeting already has a live session")
	// ErrNotRunning is returned when no live session exists for the meeting.
	ErrNotRunning = errors.New("manager: no live session for meeting")
	// ErrClosed is returned by Start after Shutdown.
	ErrClosed = errors.New("manager: shut down")
)

// JoinRequest asks the manager to put a bot into a meeting.
type JoinRequest struct {
	URL             string
	DurationMinutes int // clamped to the configured default and ceiling
	RequestedBy     string
}

// Handle tracks one session started through the manager.
type Handle struct {
	MeetingID string

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	sess     *bot.Session
	url      string
	stopping bool
	final    bot.Final
	err      error
}

// Done is closed when the session is terminal.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the session is terminal or ctx is done.
func (h *Handle) Wait(ctx context.Context) (bot.Final, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.final, h.err
	case <-ctx.Done():
		return bot.Final{}, ctx.Err()
	}
}

func (h *Handle) session() *bot.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sess
}

// stop cancels a setup in flight or stops the running session.
func (h *Handle) stop() {
	h.mu.Lock()
	h.stopping = true
	sess := h.sess
	h.mu.Unlock()
	if sess != nil {
		sess.Stop()
		return
	}
	h.cancel()
}

// Manager starts, tracks and stops sessions.
type Manager struct {
	cfg    bot.Config
	limits config.BotConfig
	deps   bot.Deps
	log    zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Handle
	closed   bool
	wg       sync.WaitGroup
}

// New returns a Manager. limits supplies the duration default and ceiling.
func New(cfg bot.Config, limits config.BotConfig, deps bot.Deps) *Manager {
	if limits.DefaultDurationMinutes <= 0 {
		limits.DefaultDurationMinutes = config.DefaultDurationMinutes
	}
	if limits.MaxDurationMinutes <= 0 {
		limits.MaxDurationMinutes = config.MaxDurationCeiling
	}
	return &Manager{
		cfg:      cfg,
		limits:   limits,
		deps:     deps,
		log:      deps.Log.With().Str("component", "manager").Logger(),
		sessions: make(map[string]*Handle),
	}
}

// Start validates req synchronously and runs the session in the background.
// It returns as soon as the session is registered.
func (m *Manager) Start(req JoinRequest) (*Handle, error) {
	meetingID, err := bot.ParseMeetingURL(req.URL)
	if err != nil {
		return nil, err
	}
	minutes := m.limits.ClampDuration(req.DurationMinutes)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := m.sessions[meetingID]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, meetingID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		MeetingID: meetingID,
		cancel:    cancel,
		done:      make(chan struct{}),
		url:       req.URL,
	}
	m.sessions[meetingID] = h
	m.wg.Add(1)
	m.mu.Unlock()

	m.log.Info().
		Str("meeting_id", meetingID).
		Int("duration_minutes", minutes).
		Str("requested_by", req.RequestedBy).
		Msg("starting session")

	go m.run(ctx, h, bot.Request{
		URL:         req.URL,
		MaxDuration: time.Duration(minutes) * time.Minute,
		RequestedBy: req.RequestedBy,
	})
	return h, nil
}

func (m *Manager) run(ctx context.Context, h *Handle, req bot.Request) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		if m.sessions[h.MeetingID] == h {
			delete(m.sessions, h.MeetingID)
		}
		m.mu.Unlock()
		close(h.done)
	}()

	sess, err := bot.Start(ctx, m.cfg, m.deps, req)
	h.cancel()
	if err != nil {
		var se *bot.StartError
		h.mu.Lock()
		h.err = err
		if errors.As(err, &se) {
			h.final = se.Final
		}
		h.mu.Unlock()
		m.log.Error().Err(err).Str("meeting_id", h.MeetingID).Msg("session failed to start")
		return
	}

	h.mu.Lock()
	h.sess = sess
	stopping := h.stopping
	h.mu.Unlock()
	if stopping {
		sess.Stop()
	}

	<-sess.Done()
	final, _ := sess.Result()
	h.mu.Lock()
	h.final = final
	h.mu.Unlock()
	m.log.Info().
		Str("meeting_id", h.MeetingID).
		Str("status", string(final.Status)).
		Str("exit_reason", final.ExitReason).
		Msg("session finished")
}

// Stop is an explicit external stop request for one meeting. It returns
// once the session is terminal.
func (m *Manager) Stop(ctx context.Context, meetingID string) (bot.Final, error) {
	h, ok := m.lookup(meetingID)
	if !ok {
		return bot.Final{}, fmt.Errorf("%w: %s", ErrNotRunning, meetingID)
	}
	go h.stop()
	return h.Wait(ctx)
}

// Wait blocks until the meeting's live session is terminal.
func (m *Manager) Wait(ctx context.Context, meetingID string) (bot.Final, error) {
	h, ok := m.lookup(meetingID)
	if !ok {
		return bot.Final{}, fmt.Errorf("%w: %s", ErrNotRunning, meetingID)
	}
	return h.Wait(ctx)
}

func (m *Manager) lookup(meetingID string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.sessions[meetingID]
	return h, ok
}

// Active returns a snapshot of every live session, ordered by meeting ID.
// Sessions still launching are reported as starting.
func (m *Manager) Active() []bot.Snapshot {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.sessions))
	for _, h := range m.sessions {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	out := make([]bot.Snapshot, 0, len(handles))
	for _, h := range handles {
		if sess := h.session(); sess != nil {
			out = append(out, sess.Snapshot())
			continue
		}
		out = append(out, bot.Snapshot{MeetingID: h.MeetingID, URL: h.url, Status: bot.StatusStarting})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MeetingID < out[j].MeetingID })
	return out
}

// Shutdown stops every live session and refuses new ones. It returns when
// all sessions are terminal or ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	handles := make([]*Handle, 0, len(m.sessions))
	for _, h := range m.sessions {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	if len(handles) > 0 {
		m.log.Info().Int("sessions", len(handles)).Msg("stopping live sessions")
	}
	for _, h := range handles {
		go h.stop()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("manager: shutdown: %w", ctx.Err())
	}
}
