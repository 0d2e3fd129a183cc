package model

import "time"

// swagger:model Exam
type Exam struct {
	ExamID       uint      `gorm:"primaryKey;autoIncrement" json:"exam_id"`
	ExamName     string    `gorm:"size:255;not null;index" json:"exam_name"`
	SubjectID    uint      `gorm:"not null;index;type:bigint unsigned" json:"subject_id"`
	LoginCode    string    `gorm:"size:32;not null;uniqueIndex" json:"login_code"`
	StartDate    time.Time `gorm:"not null;index" json:"start_date"`
	EndDate      time.Time `gorm:"not null;index" json:"end_date"`
	Duration     int64     `gorm:"not null" json:"duration"` // seconds
	DocumentLink string    `gorm:"size:512" json:"document_link"`
	Timestamps
}

func (Exam) TableName() string {
	return "exams"
}

func (e *Exam) Length() time.Duration {
	return time.Duration(e.Duration) * time.Second
}

// IsOpenAt reports whether attempts may start at t.
func (e *Exam) IsOpenAt(t time.Time) bool {
	return !t.Before(e.StartDate) && t.Before(e.EndDate)
}

// HasStarted reports whether the exam can no longer be edited or deleted.
func (e *Exam) HasStarted(t time.Time) bool {
	return !t.Before(e.StartDate)
}
