// Package store persists meeting transcripts through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/meetbot/internal/bot"
	"github.com/zulandar/meetbot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by Get when no record exists for a meeting.
var ErrNotFound = errors.New("store: meeting not found")

// activeStatuses are the states in which the transcript may still change.
var activeStatuses = []string{string(bot.StatusStarting), string(bot.StatusInProgress)}

// Store is a gorm-backed bot.Store.
type Store struct {
	db *gorm.DB
}

// New wraps an open database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Begin creates the record for a new run. A meeting joined again replaces
// the previous run's row.
func (s *Store) Begin(ctx context.Context, rec bot.Record) error {
	if rec.MeetingID == "" {
		return fmt.Errorf("store: meeting ID is required")
	}
	row := models.MeetingTranscript{
		MeetingID:          rec.MeetingID,
		RunID:              rec.RunID,
		URL:                rec.URL,
		Status:             string(bot.StatusStarting),
		RequestedBy:        rec.RequestedBy,
		MaxDurationMinutes: rec.MaxDurationMinutes,
		StartTime:          rec.StartTime,
		LastUpdated:        rec.StartTime,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "meeting_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"run_id":               row.RunID,
			"url":                  row.URL,
			"status":               row.Status,
			"transcript":           "",
			"error_message":        nil,
			"exit_reason":          "",
			"requested_by":         row.RequestedBy,
			"max_duration_minutes": row.MaxDurationMinutes,
			"start_time":           row.StartTime,
			"last_updated":         row.LastUpdated,
			"end_time":             nil,
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store: begin %s: %w", rec.MeetingID, err)
	}
	return nil
}

// MarkInProgress records that the bot is in the call.
func (s *Store) MarkInProgress(ctx context.Context, meetingID, runID string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.MeetingTranscript{}).
		Where("meeting_id = ? AND run_id = ? AND status IN ?", meetingID, runID, activeStatuses).
		Updates(map[string]interface{}{
			"status":       string(bot.StatusInProgress),
			"last_updated": at,
		})
	if result.Error != nil {
		return fmt.Errorf("store: mark in progress %s: %w", meetingID, result.Error)
	}
	return nil
}

// SaveTranscript overwrites the transcript snapshot. Rows already in a
// terminal state or owned by another run are left untouched.
func (s *Store) SaveTranscript(ctx context.Context, meetingID, runID, transcript string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.MeetingTranscript{}).
		Where("meeting_id = ? AND run_id = ? AND status IN ?", meetingID, runID, activeStatuses).
		Updates(map[string]interface{}{
			"transcript":   transcript,
			"last_updated": at,
		})
	if result.Error != nil {
		return fmt.Errorf("store: save transcript %s: %w", meetingID, result.Error)
	}
	return nil
}

// Finish writes the terminal state. It returns ErrNotFound when the row is
// missing or a newer run has replaced it.
func (s *Store) Finish(ctx context.Context, meetingID, runID string, f bot.Final) error {
	var errMsg *string
	if f.ErrorMessage != "" {
		msg := f.ErrorMessage
		errMsg = &msg
	}
	end := f.EndTime
	result := s.db.WithContext(ctx).Model(&models.MeetingTranscript{}).
		Where("meeting_id = ? AND run_id = ?", meetingID, runID).
		Updates(map[string]interface{}{
			"status":        string(f.Status),
			"transcript":    f.Transcript,
			"error_message": errMsg,
			"exit_reason":   f.ExitReason,
			"end_time":      &end,
			"last_updated":  end,
		})
	if result.Error != nil {
		return fmt.Errorf("store: finish %s: %w", meetingID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: finish %s run %s: %w", meetingID, runID, ErrNotFound)
	}
	return nil
}

// Get returns the record for one meeting.
func (s *Store) Get(ctx context.Context, meetingID string) (*models.MeetingTranscript, error) {
	var row models.MeetingTranscript
	err := s.db.WithContext(ctx).Where("meeting_id = ?", meetingID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", meetingID, err)
	}
	return &row, nil
}

// ListOptions filters List.
type ListOptions struct {
	Status string // empty for all
	Limit  int    // 50 when <= 0
}

// List returns records newest first, without transcripts.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]models.MeetingTranscript, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Model(&models.MeetingTranscript{}).
		Omit("transcript").
		Order("start_time DESC").
		Limit(limit)
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	var rows []models.MeetingTranscript
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return rows, nil
}

// CountByStatus returns the number of records in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&models.MeetingTranscript{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: count by status: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// MarkAbandoned moves rows left active by a dead process into the error
// state. Only rows not updated since staleBefore are touched, so sessions
// another live process is still persisting keep running. It returns the
// number of rows changed.
func (s *Store) MarkAbandoned(ctx context.Context, staleBefore, at time.Time) (int64, error) {
	msg := "bot process exited before the session finished"
	result := s.db.WithContext(ctx).Model(&models.MeetingTranscript{}).
		Where("status IN ? AND last_updated < ?", activeStatuses, staleBefore).
		Updates(map[string]interface{}{
			"status":        string(bot.StatusError),
			"error_message": &msg,
			"exit_reason":   "Error: " + msg,
			"end_time":      &at,
			"last_updated":  at,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("store: mark abandoned: %w", result.Error)
	}
	return result.RowsAffected, nil
}

var _ bot.Store = (*Store)(nil)
