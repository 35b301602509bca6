package dashboard

import (
	"context"
	"sort"
	"time"

	"github.com/zulandar/meetbot/internal/bot"
	"github.com/zulandar/meetbot/internal/models"
	"github.com/zulandar/meetbot/internal/store"
)

// Records is the read side of the transcript store.
type Records interface {
	Get(ctx context.Context, meetingID string) (*models.MeetingTranscript, error)
	List(ctx context.Context, opts store.ListOptions) ([]models.MeetingTranscript, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// LiveSessions reports sessions running in this process.
type LiveSessions interface {
	Active() []bot.Snapshot
}

// SessionRow holds session data for display.
type SessionRow struct {
	MeetingID   string     `json:"meeting_id"`
	RunID       string     `json:"run_id,omitempty"`
	URL         string     `json:"url"`
	Status      string     `json:"status"`
	ExitReason  string     `json:"exit_reason,omitempty"`
	Error       string     `json:"error,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
	StartTime   time.Time  `json:"start_time"`
	LastUpdated time.Time  `json:"last_updated"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Live        bool       `json:"live"`
	Captions    int        `json:"captions,omitempty"`
	Loops       []string   `json:"loops,omitempty"`
}

func rowFromModel(m models.MeetingTranscript) SessionRow {
	row := SessionRow{
		MeetingID:   m.MeetingID,
		RunID:       m.RunID,
		URL:         m.URL,
		Status:      m.Status,
		ExitReason:  m.ExitReason,
		RequestedBy: m.RequestedBy,
		StartTime:   m.StartTime,
		LastUpdated: m.LastUpdated,
		EndTime:     m.EndTime,
	}
	if m.ErrorMessage != nil {
		row.Error = *m.ErrorMessage
	}
	return row
}

// overlay copies the in-memory view of a live session onto a stored row.
// The live view is fresher than the last persisted snapshot.
func overlay(row *SessionRow, s bot.Snapshot) {
	row.Live = true
	row.Status = string(s.Status)
	row.Captions = s.Captions
	row.Loops = s.Loops
	if s.RunID != "" {
		row.RunID = s.RunID
	}
	if !s.LastUpdated.IsZero() && s.LastUpdated.After(row.LastUpdated) {
		row.LastUpdated = s.LastUpdated
	}
}

func rowFromSnapshot(s bot.Snapshot) SessionRow {
	row := SessionRow{MeetingID: s.MeetingID, URL: s.URL, StartTime: s.StartTime}
	overlay(&row, s)
	return row
}

// SessionList merges stored records with live sessions, newest first. Live
// sessions without a stored row yet are included.
func SessionList(ctx context.Context, records Records, live LiveSessions, opts store.ListOptions) ([]SessionRow, error) {
	stored, err := records.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	liveByID := liveIndex(live)

	rows := make([]SessionRow, 0, len(stored)+len(liveByID))
	seen := make(map[string]bool, len(stored))
	for _, m := range stored {
		row := rowFromModel(m)
		if s, ok := liveByID[m.MeetingID]; ok {
			overlay(&row, s)
		}
		seen[m.MeetingID] = true
		rows = append(rows, row)
	}
	for id, s := range liveByID {
		if seen[id] || (opts.Status != "" && string(s.Status) != opts.Status) {
			continue
		}
		rows = append(rows, rowFromSnapshot(s))
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].StartTime.After(rows[j].StartTime) })
	return rows, nil
}

// SessionDetail returns one session, preferring live state when present.
func SessionDetail(ctx context.Context, records Records, live LiveSessions, meetingID string) (SessionRow, error) {
	s, isLive := liveIndex(live)[meetingID]
	m, err := records.Get(ctx, meetingID)
	if err != nil {
		if isLive {
			return rowFromSnapshot(s), nil
		}
		return SessionRow{}, err
	}
	row := rowFromModel(*m)
	if isLive {
		overlay(&row, s)
	}
	return row, nil
}

func liveIndex(live LiveSessions) map[string]bot.Snapshot {
	out := make(map[string]bot.Snapshot)
	if live == nil {
		return out
	}
	for _, s := range live.Active() {
		out[s.MeetingID] = s
	}
	return out
}
