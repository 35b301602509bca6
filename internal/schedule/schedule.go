// Package schedule joins recurring meetings on cron schedules.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/zulandar/meetbot/internal/config"
	"github.com/zulandar/meetbot/internal/manager"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Starter launches a session. *manager.Manager satisfies it.
type Starter interface {
	Start(req manager.JoinRequest) (*manager.Handle, error)
}

// Scheduler fires configured joins.
type Scheduler struct {
	cron    *cron.Cron
	starter Starter
	log     zerolog.Logger
	names   map[cron.EntryID]string
}

// Entry is one scheduled meeting with its next fire time.
type Entry struct {
	Name string
	Next time.Time
}

// New validates every entry and registers it. Nothing fires until Start.
func New(entries []config.ScheduleEntry, starter Starter, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithParser(cronParser)),
		starter: starter,
		log:     log.With().Str("component", "schedule").Logger(),
		names:   make(map[cron.EntryID]string),
	}
	for _, e := range entries {
		if _, err := cronParser.Parse(e.Cron); err != nil {
			return nil, fmt.Errorf("schedule: %s: invalid cron %q: %w", e.Name, e.Cron, err)
		}
		e := e
		id, err := s.cron.AddFunc(e.Cron, func() { s.fire(e) })
		if err != nil {
			return nil, fmt.Errorf("schedule: %s: %w", e.Name, err)
		}
		s.names[id] = e.Name
	}
	return s, nil
}

// fire starts one scheduled join. A meeting that already has a bot is
// skipped.
func (s *Scheduler) fire(e config.ScheduleEntry) {
	h, err := s.starter.Start(manager.JoinRequest{
		URL:             e.URL,
		DurationMinutes: e.DurationMinutes,
		RequestedBy:     "schedule:" + e.Name,
	})
	switch {
	case errors.Is(err, manager.ErrAlreadyRunning):
		s.log.Info().Str("entry", e.Name).Msg("meeting already has a bot, skipping")
	case err != nil:
		s.log.Error().Err(err).Str("entry", e.Name).Msg("scheduled join failed")
	default:
		s.log.Info().Str("entry", e.Name).Str("meeting_id", h.MeetingID).Msg("scheduled join started")
	}
}

// Start begins firing entries in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler. Sessions it started keep running.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Entries lists the scheduled meetings by next fire time. Next is zero until
// the scheduler has been started.
func (s *Scheduler) Entries() []Entry {
	var out []Entry
	for _, ce := range s.cron.Entries() {
		out = append(out, Entry{Name: s.names[ce.ID], Next: ce.Next})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Next.Before(out[j].Next) })
	return out
}

// NextRun returns the next fire time after from for a cron expression.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule: invalid cron %q: %w", expr, err)
	}
	return sched.Next(from), nil
}
