package model

import "time"

// swagger:model ExamWarning
type ExamWarning struct {
	ExamWarningID   uint      `gorm:"primaryKey;autoIncrement" json:"exam_warning_id"`
	ExamRecordingID uint      `gorm:"not null;index;type:bigint unsigned" json:"exam_recording_id"`
	WarningTime     time.Time `gorm:"not null;index" json:"warning_time"`
	Description     string    `gorm:"type:text" json:"description"`
	Timestamps
}

func (ExamWarning) TableName() string {
	return "exam_warnings"
}
