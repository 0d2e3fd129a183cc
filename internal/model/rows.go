package model

import "time"

// RecordingRow is one row of the recording listing: the recording joined
// with its user and exam plus the number of warnings attached to it.
type RecordingRow struct {
	ExamRecording
	FirstName    string `gorm:"column:first_name"`
	LastName     string `gorm:"column:last_name"`
	ExamName     string `gorm:"column:exam_name"`
	LoginCode    string `gorm:"column:login_code"`
	SubjectID    uint   `gorm:"column:subject_id"`
	ExamDuration int64  `gorm:"column:exam_duration"`
	WarningCount int64  `gorm:"column:warning_count"`
}

func (r *RecordingRow) ExamLength() time.Duration {
	return time.Duration(r.ExamDuration) * time.Second
}

// WarningRow is a warning together with the owner of its recording.
type WarningRow struct {
	ExamWarning
	UserID uint `gorm:"column:user_id"`
	ExamID uint `gorm:"column:exam_id"`
}
