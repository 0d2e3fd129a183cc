package service

import (
	"context"
)

const (
	EventWarningCreated = "WARNING_CREATED"
	EventRecordingEnded = "RECORDING_ENDED"
)

// MonitorEvent is pushed to examiners watching an exam.
type MonitorEvent struct {
	Type   string      `json:"type"`
	ExamID uint        `json:"exam_id"`
	Data   interface{} `json:"data"`
}

// Notifier delivers monitor events. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, event MonitorEvent)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, MonitorEvent) {}

type RecordingEndedData struct {
	ExamRecordingID uint   `json:"exam_recording_id"`
	UserID          uint   `json:"user_id"`
	TimeEnded       string `json:"time_ended"`
	Reason          string `json:"reason"`
}

type WarningCreatedData struct {
	Warning      interface{} `json:"warning"`
	UserID       uint        `json:"user_id"`
	WarningCount int64       `json:"warning_count"`
	Terminated   bool        `json:"terminated"`
}
