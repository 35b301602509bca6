package models

import "time"

// MeetingTranscript is the persisted record of one bot session, keyed by the
// meeting code. The bot only ever writes this row; readers poll it for
// status and transcript.
type MeetingTranscript struct {
	MeetingID          string     `gorm:"primaryKey;size:64"`
	RunID              string     `gorm:"size:36;index"`
	URL                string     `gorm:"size:255;not null"`
	Status             string     `gorm:"size:16;default:starting;index"`
	Transcript         string     `gorm:"type:mediumtext"`
	ErrorMessage       *string    `gorm:"type:text"`
	ExitReason         string     `gorm:"type:text"`
	RequestedBy        string     `gorm:"size:64"`
	MaxDurationMinutes int        `gorm:"default:60"`
	StartTime          time.Time  `gorm:"index"`
	LastUpdated        time.Time  `gorm:"index"`
	EndTime            *time.Time
}

// TableName keeps the table name the dashboard and other readers expect.
func (MeetingTranscript) TableName() string {
	return "meeting_transcripts"
}
