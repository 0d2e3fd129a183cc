package model

import (
	"proctor_backend/internal/util"
)

// The *View types are the JSON projections returned by the API. Times are
// rendered as "YYYY-MM-DD HH:MM:SS" in UTC and lengths as "HH:MM:SS".

type UserView struct {
	UserID     uint   `json:"user_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	IsExaminer bool   `json:"is_examiner"`
}

func NewUserView(u *User) UserView {
	return UserView{
		UserID:     u.UserID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		IsExaminer: u.IsExaminer,
	}
}

type ExamView struct {
	ExamID       uint   `json:"exam_id"`
	ExamName     string `json:"exam_name"`
	SubjectID    uint   `json:"subject_id"`
	LoginCode    string `json:"login_code"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Duration     string `json:"duration"`
	DocumentLink string `json:"document_link"`
}

func NewExamView(e *Exam) ExamView {
	return ExamView{
		ExamID:       e.ExamID,
		ExamName:     e.ExamName,
		SubjectID:    e.SubjectID,
		LoginCode:    e.LoginCode,
		StartDate:    util.FormatTime(e.StartDate),
		EndDate:      util.FormatTime(e.EndDate),
		Duration:     util.FormatClock(e.Length()),
		DocumentLink: e.DocumentLink,
	}
}

type ExamRecordingView struct {
	ExamRecordingID uint   `json:"exam_recording_id"`
	ExamID          uint   `json:"exam_id"`
	UserID          uint   `json:"user_id"`
	Attempt         int    `json:"attempt"`
	TimeStarted     string `json:"time_started"`
	TimeEnded       string `json:"time_ended"`
	VideoLink       string `json:"video_link"`
	InProgress      bool   `json:"in_progress"`
}

func NewExamRecordingView(r *ExamRecording) ExamRecordingView {
	return ExamRecordingView{
		ExamRecordingID: r.ExamRecordingID,
		ExamID:          r.ExamID,
		UserID:          r.UserID,
		Attempt:         r.Attempt,
		TimeStarted:     util.FormatTime(r.TimeStarted),
		TimeEnded:       util.FormatTimePtr(r.TimeEnded),
		VideoLink:       r.VideoLink,
		InProgress:      r.State() == RecordingInProgress,
	}
}

type RecordingRowView struct {
	ExamRecordingView
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	ExamName     string `json:"exam_name"`
	LoginCode    string `json:"login_code"`
	SubjectID    uint   `json:"subject_id"`
	WarningCount int64  `json:"warning_count"`
}

func NewRecordingRowView(r *RecordingRow) RecordingRowView {
	return RecordingRowView{
		ExamRecordingView: NewExamRecordingView(&r.ExamRecording),
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		ExamName:          r.ExamName,
		LoginCode:         r.LoginCode,
		SubjectID:         r.SubjectID,
		WarningCount:      r.WarningCount,
	}
}

// ExamineeView is one entry of the examiner overview.
type ExamineeView struct {
	User          UserView          `json:"user"`
	ExamRecording ExamRecordingView `json:"exam_recording"`
	Exam          ExamView          `json:"exam"`
	WarningCount  int64             `json:"warning_count"`
}

func NewExamineeView(r *RecordingRow) ExamineeView {
	return ExamineeView{
		User: UserView{
			UserID:    r.UserID,
			FirstName: r.FirstName,
			LastName:  r.LastName,
		},
		ExamRecording: NewExamRecordingView(&r.ExamRecording),
		Exam: ExamView{
			ExamID:    r.ExamID,
			ExamName:  r.ExamName,
			SubjectID: r.SubjectID,
			LoginCode: r.LoginCode,
			Duration:  util.FormatClock(r.ExamLength()),
		},
		WarningCount: r.WarningCount,
	}
}

type ExamWarningView struct {
	ExamWarningID   uint   `json:"exam_warning_id"`
	ExamRecordingID uint   `json:"exam_recording_id"`
	WarningTime     string `json:"warning_time"`
	Description     string `json:"description"`
	UserID          uint   `json:"user_id,omitempty"`
	ExamID          uint   `json:"exam_id,omitempty"`
}

func NewExamWarningView(w *ExamWarning) ExamWarningView {
	return ExamWarningView{
		ExamWarningID:   w.ExamWarningID,
		ExamRecordingID: w.ExamRecordingID,
		WarningTime:     util.FormatTime(w.WarningTime),
		Description:     w.Description,
	}
}

func NewWarningRowView(w *WarningRow) ExamWarningView {
	v := NewExamWarningView(&w.ExamWarning)
	v.UserID = w.UserID
	v.ExamID = w.ExamID
	return v
}

// MapViews projects a slice with fn.
func MapViews[T any, V any](items []T, fn func(*T) V) []V {
	out := make([]V, 0, len(items))
	for i := range items {
		out = append(out, fn(&items[i]))
	}
	return out
}
