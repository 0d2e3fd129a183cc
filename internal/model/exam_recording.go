package model

import "time"

// swagger:model ExamRecording
type ExamRecording struct {
	ExamRecordingID uint `gorm:"primaryKey;autoIncrement" json:"exam_recording_id"`
	ExamID          uint `gorm:"not null;uniqueIndex:idx_recording_attempt,priority:1;type:bigint unsigned" json:"exam_id"`
	UserID          uint `gorm:"not null;uniqueIndex:idx_recording_attempt,priority:2;index;type:bigint unsigned" json:"user_id"`
	// Attempt is 1 for the first recording of a user in an exam and grows
	// with every examiner override. The unique index keeps a second
	// un-overridden attempt out of the table.
	Attempt     int        `gorm:"not null;default:1;uniqueIndex:idx_recording_attempt,priority:3" json:"attempt"`
	TimeStarted time.Time  `gorm:"not null;index" json:"time_started"`
	TimeEnded   *time.Time `gorm:"index" json:"time_ended"`
	VideoLink   string     `gorm:"size:512" json:"video_link"`
	Timestamps
}

func (ExamRecording) TableName() string {
	return "exam_recordings"
}

type RecordingState string

const (
	RecordingInProgress RecordingState = "in_progress"
	RecordingEnded      RecordingState = "ended"
)

// Why a recording ended. Only kept in logs and metrics.
const (
	EndReasonExpired      = "expired_by_duration"
	EndReasonManual       = "manually_ended"
	EndReasonWarningLimit = "warning_limit_reached"
)

func (r *ExamRecording) State() RecordingState {
	if r.TimeEnded == nil {
		return RecordingInProgress
	}
	return RecordingEnded
}

// LatestFinish is the moment the recording runs out of time.
func (r *ExamRecording) LatestFinish(length time.Duration) time.Time {
	return r.TimeStarted.Add(length)
}

// IsOverdue reports whether an open recording has outlived its exam length at now.
func (r *ExamRecording) IsOverdue(length time.Duration, now time.Time) bool {
	return r.TimeEnded == nil && !now.Before(r.LatestFinish(length))
}
