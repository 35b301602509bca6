package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zulandar/meetbot/internal/events"
	"github.com/zulandar/meetbot/internal/metrics"
)

const (
	// finishTimeout bounds the final store write during shutdown.
	finishTimeout = 15 * time.Second
	// captionTimeFormat prefixes each caption line (ISO 8601, millisecond precision).
	captionTimeFormat = "2006-01-02T15:04:05.000Z07:00"
)

// Deps are the collaborators a session talks to.
type Deps struct {
	Launcher  Launcher
	Store     Store
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
}

// Request describes one join.
type Request struct {
	URL         string
	MaxDuration time.Duration // DefaultDuration when <= 0
	RequestedBy string
}

// Session is one bot engaged with one meeting. It owns its browser
// exclusively; no two sessions share a browser.
type Session struct {
	MeetingID   string
	RunID       string
	URL         string
	MaxDuration time.Duration

	cfg  Config
	deps Deps
	log  zerolog.Logger

	mu          sync.Mutex
	status      Status
	parts       []string
	startTime   time.Time
	lastUpdated time.Time
	endTime     time.Time
	exitReason  string
	active      bool // reached in_progress

	browser Browser
	page    Page

	loopCancel context.CancelFunc
	wg         sync.WaitGroup
	loops      map[string]bool // running loops, by name

	exitCh chan string

	cleanupOnce sync.Once
	done        chan struct{}
	final       Final
}

// Start validates the request, launches a browser, joins the meeting on a
// best-effort basis and starts the capture, exit-detection, persistence and
// heartbeat loops. It returns as soon as the join attempt has been made.
//
// An invalid URL is rejected before anything is launched or persisted. Any
// later failure, including a panic, runs the shutdown path and is returned
// as a *StartError.
func Start(ctx context.Context, cfg Config, deps Deps, req Request) (sess *Session, err error) {
	meetingID, err := ParseMeetingURL(req.URL)
	if err != nil {
		return nil, &StartError{Err: err}
	}
	if deps.Launcher == nil {
		return nil, &StartError{MeetingID: meetingID, Err: errors.New("launcher is required")}
	}
	if deps.Store == nil {
		return nil, &StartError{MeetingID: meetingID, Err: errors.New("store is required")}
	}

	s := newSession(cfg, deps, meetingID, req)

	defer func() {
		if r := recover(); r != nil {
			sess, err = nil, s.fail(ctx, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := s.deps.Store.Begin(ctx, Record{
		MeetingID:          s.MeetingID,
		RunID:              s.RunID,
		URL:                s.URL,
		RequestedBy:        req.RequestedBy,
		MaxDurationMinutes: int(s.MaxDuration / time.Minute),
		StartTime:          s.startTime,
	}); err != nil {
		s.log.Error().Err(err).Msg("create meeting record")
	}
	s.publish(events.TypeStarted, "")

	s.log.Info().Str("url", s.URL).Dur("max_duration", s.MaxDuration).Msg("starting browser automation")

	browser, err := deps.Launcher.Launch(ctx)
	if err != nil {
		return nil, s.fail(ctx, fmt.Errorf("launch browser: %w", err))
	}
	s.browser = browser
	s.page = browser.Page()
	s.log.Info().Msg("browser launched")

	if err := s.page.Navigate(ctx, s.URL); err != nil {
		return nil, s.fail(ctx, fmt.Errorf("navigate to %s: %w", s.URL, err))
	}
	if u, err := s.page.URL(ctx); err == nil {
		s.log.Info().Str("final_url", u).Msg("navigated to meeting page")
	}

	if err := s.join(ctx); err != nil {
		return nil, s.fail(ctx, err)
	}
	s.enableCaptions(ctx)

	if err := ctx.Err(); err != nil {
		return nil, s.fail(ctx, err)
	}

	s.begin()
	return s, nil
}

func newSession(cfg Config, deps Deps, meetingID string, req Request) *Session {
	cfg = cfg.withDefaults()
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	maxDuration := req.MaxDuration
	if maxDuration <= 0 {
		maxDuration = cfg.DefaultDuration
	}
	runID := uuid.NewString()
	now := time.Now().UTC()

	return &Session{
		MeetingID:   meetingID,
		RunID:       runID,
		URL:         req.URL,
		MaxDuration: maxDuration,
		cfg:         cfg,
		deps:        deps,
		log:         deps.Log.With().Str("meeting_id", meetingID).Str("run_id", runID).Logger(),
		status:      StatusStarting,
		startTime:   now,
		lastUpdated: now,
		loops:       make(map[string]bool),
		exitCh:      make(chan string, 1),
		done:        make(chan struct{}),
	}
}

// fail routes a setup error through the shutdown path and wraps it for the
// caller. A cancelled setup context counts as an explicit stop.
func (s *Session) fail(ctx context.Context, err error) error {
	reason := ErrorReason(err)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		reason = ReasonStopped
	}
	s.log.Error().Err(err).Msg("meeting bot setup failed")
	final := s.LeaveAndCleanup(reason)
	return &StartError{MeetingID: s.MeetingID, Err: err, Final: final}
}

// begin moves the session to in_progress and starts the loops and the
// deadline supervisor.
func (s *Session) begin() {
	s.mu.Lock()
	s.status = StatusInProgress
	s.active = true
	now := time.Now().UTC()
	s.lastUpdated = now
	s.mu.Unlock()

	markCtx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	if err := s.deps.Store.MarkInProgress(markCtx, s.MeetingID, s.RunID, now); err != nil {
		s.log.Error().Err(err).Msg("mark meeting in progress")
	}
	cancel()
	s.deps.Metrics.SessionStarted()
	s.publish(events.TypeInProgress, "")

	loopCtx, loopCancel := context.WithCancel(context.Background())
	s.loopCancel = loopCancel

	s.every(loopCtx, "capture", s.cfg.CaptionInterval, s.captureTick)
	s.every(loopCtx, "exit-check", s.cfg.ExitCheckInterval, s.exitTick)
	s.every(loopCtx, "persist", s.cfg.PersistInterval, s.persistTick)
	s.every(loopCtx, "heartbeat", s.cfg.HeartbeatInterval, s.heartbeatTick)

	go s.supervise()
}

// every runs tick on its own goroutine at interval until ctx is cancelled
// or tick returns false.
func (s *Session) every(ctx context.Context, name string, interval time.Duration, tick func(context.Context) bool) {
	s.mu.Lock()
	s.loops[name] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.loops, name)
			s.mu.Unlock()
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !s.safeTick(ctx, name, tick) {
					s.log.Info().Str("loop", name).Msg("loop stopped")
					return
				}
			}
		}
	}()
}

// safeTick runs one tick, converting a panic into a logged skip.
func (s *Session) safeTick(ctx context.Context, name string, tick func(context.Context) bool) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("loop", name).Interface("panic", r).Msg("loop tick panicked")
			cont = true
		}
	}()
	return tick(ctx)
}

// supervise owns the hard deadline and turns an exit signal into a shutdown.
func (s *Session) supervise() {
	timer := time.NewTimer(s.MaxDuration)
	defer timer.Stop()

	var reason string
	select {
	case <-timer.C:
		reason = ReasonMaxDuration
	case reason = <-s.exitCh:
	case <-s.done:
		return
	}
	s.LeaveAndCleanup(reason)
}

// captureTick appends the current caption text, if any. A closed or
// detached page stops this loop only.
func (s *Session) captureTick(ctx context.Context) bool {
	if s.page.Closed() {
		s.log.Info().Msg("page is closed, stopping caption collection")
		return false
	}
	text, err := s.page.Text(ctx, s.cfg.Selectors.Caption)
	if err != nil {
		if IsDetached(err) {
			s.log.Warn().Err(err).Msg("detached frame, stopping caption collection")
			return false
		}
		s.log.Debug().Err(err).Msg("read captions")
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return true
	}
	if s.appendCaption(time.Now().UTC(), text) {
		s.deps.Metrics.CaptionCaptured()
		s.log.Debug().Str("caption", truncate(text, 30)).Msg("caption captured")
	}
	return true
}

// appendCaption records one caption sample unless the session is terminal.
func (s *Session) appendCaption(at time.Time, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	s.parts = append(s.parts, fmt.Sprintf("[%s] %s", at.Format(captionTimeFormat), text))
	return true
}

// exitTick checks whether everyone else has left and, if so, asks the
// supervisor to shut the session down.
func (s *Session) exitTick(ctx context.Context) bool {
	if s.page.Closed() {
		return true
	}
	sig := s.cfg.Detector.Evaluate(ctx, s.page, s.log)
	if ctx.Err() != nil {
		return false
	}
	s.log.Info().
		Bool("alone_message", sig.Alone).
		Int("participant_count", sig.Participants).
		Bool("call_ended", sig.Ended).
		Msg("participant check")

	if !sig.Fired() {
		return true
	}
	for _, kind := range sig.Kinds() {
		s.deps.Metrics.ExitSignal(kind)
	}
	s.log.Info().Msg("everyone has left the meeting")
	select {
	case s.exitCh <- ReasonEveryoneLeft:
	default:
	}
	return false
}

// persistTick writes a full transcript snapshot.
func (s *Session) persistTick(ctx context.Context) bool {
	transcript := s.Transcript()
	now := time.Now().UTC()
	if err := s.deps.Store.SaveTranscript(ctx, s.MeetingID, s.RunID, transcript, now); err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.deps.Metrics.PersistFailed()
		s.log.Error().Err(err).Msg("update transcript")
		return true
	}
	s.mu.Lock()
	s.lastUpdated = now
	s.mu.Unlock()
	return true
}

// heartbeatTick logs browser and page liveness. It never ends the session.
func (s *Session) heartbeatTick(ctx context.Context) bool {
	if !s.browser.Alive() {
		s.deps.Metrics.HeartbeatFailed()
		s.log.Warn().Msg("heartbeat: browser process appears to be closed or killed")
		return true
	}
	if s.page.Closed() {
		s.deps.Metrics.HeartbeatFailed()
		s.log.Warn().Msg("heartbeat: page is closed but browser is still running")
		return true
	}
	u, err := s.page.URL(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.deps.Metrics.HeartbeatFailed()
			s.log.Warn().Err(err).Msg("heartbeat: unable to get page URL, possible disconnection")
		}
		return true
	}
	s.log.Info().Str("page_url", u).Msg("heartbeat: browser still running")
	return true
}

// Stop is an explicit external stop request. It waits for the shutdown path
// to finish.
func (s *Session) Stop() Final {
	return s.LeaveAndCleanup(ReasonStopped)
}

// LeaveAndCleanup is the single shutdown path. The first call cancels the
// loops, writes the terminal record, leaves the call on every open page and
// closes the browser after the grace delay; later calls wait for that to
// finish and return the same result. Each step runs even if an earlier one
// fails.
func (s *Session) LeaveAndCleanup(reason string) Final {
	s.cleanupOnce.Do(func() {
		defer close(s.done)
		s.cleanup(reason)
	})
	<-s.done
	return s.final
}

func (s *Session) cleanup(reason string) {
	s.log.Info().Str("reason", reason).Msg("leaving meeting")

	s.step("cancel loops", func() {
		if s.loopCancel != nil {
			s.loopCancel()
		}
		s.wg.Wait()
	})

	s.step("save final transcript", func() {
		s.final = s.finish(reason)
		ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
		defer cancel()
		if err := s.deps.Store.Finish(ctx, s.MeetingID, s.RunID, s.final); err != nil {
			s.log.Error().Err(err).Msg("save final transcript")
			return
		}
		s.log.Info().Str("status", string(s.final.Status)).Msg("final transcript saved")
	})

	s.step("report", func() {
		s.deps.Metrics.SessionFinished(string(s.final.Status), s.wasActive())
		s.publish(events.TypeFinished, s.final.ErrorMessage)
	})

	if s.browser == nil {
		return
	}

	s.step("leave call", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pages, err := s.browser.Pages(ctx)
		if err != nil {
			s.log.Debug().Err(err).Msg("list pages")
			return
		}
		for _, p := range pages {
			if p.Closed() {
				continue
			}
			if err := p.Click(ctx, s.cfg.Selectors.Leave); err == nil {
				s.log.Info().Msg("left the meeting")
			}
		}
	})

	s.step("close browser", func() {
		time.Sleep(s.cfg.LeaveGrace)
		if err := s.browser.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close browser")
		}
	})
}

// step runs one shutdown step, containing any panic so later steps still run.
func (s *Session) step(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("step", name).Interface("panic", r).Msg("cleanup step panicked")
		}
	}()
	fn()
}

// finish applies the terminal transition and returns the record to persist.
func (s *Session) finish(reason string) Final {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	f := Final{
		Status:     StatusCompleted,
		Transcript: strings.Join(s.parts, "\n"),
		ExitReason: reason,
		EndTime:    now,
	}
	if strings.HasPrefix(reason, errorReasonPrefix) {
		f.Status = StatusError
		f.ErrorMessage = strings.TrimPrefix(reason, errorReasonPrefix)
	}
	s.status = f.Status
	s.exitReason = reason
	s.endTime = now
	s.lastUpdated = now
	return f
}

func (s *Session) wasActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) publish(eventType, errMsg string) {
	s.mu.Lock()
	ev := events.New(eventType, s.MeetingID, s.RunID, string(s.status))
	ev.ExitReason = s.exitReason
	s.mu.Unlock()
	ev.Error = errMsg

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deps.Publisher.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("publish event")
	}
}

// Done is closed once the shutdown path has completed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Result returns the terminal snapshot. ok is false until Done is closed.
func (s *Session) Result() (f Final, ok bool) {
	select {
	case <-s.done:
		return s.final, true
	default:
		return Final{}, false
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Transcript joins the captured caption lines.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.parts, "\n")
}

// Parts returns a copy of the captured caption lines.
func (s *Session) Parts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.parts))
	copy(out, s.parts)
	return out
}

// Snapshot is a point-in-time view of a session for status reporting.
type Snapshot struct {
	MeetingID   string
	RunID       string
	URL         string
	Status      Status
	Captions    int
	StartTime   time.Time
	LastUpdated time.Time
	EndTime     time.Time
	ExitReason  string
	Loops       []string
}

// Snapshot returns the current state of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	loops := make([]string, 0, len(s.loops))
	for _, name := range []string{"capture", "exit-check", "persist", "heartbeat"} {
		if s.loops[name] {
			loops = append(loops, name)
		}
	}
	return Snapshot{
		MeetingID:   s.MeetingID,
		RunID:       s.RunID,
		URL:         s.URL,
		Status:      s.status,
		Captions:    len(s.parts),
		StartTime:   s.startTime,
		LastUpdated: s.lastUpdated,
		EndTime:     s.endTime,
		ExitReason:  s.exitReason,
		Loops:       loops,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
