package service

import (
	"context"
	"errors"
	"proctor_backend/internal/util"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVision struct {
	detections []Detection
	match      bool
	calls      int
}

func (s *stubVision) Detect(context.Context, []byte, string) ([]Detection, error) {
	s.calls++
	return s.detections, nil
}

func (s *stubVision) VerifyFace(context.Context, []byte, string) (bool, error) {
	return s.match, nil
}

func TestFindings(t *testing.T) {
	f := newFixture(t)
	svc := NewFrameService(&stubVision{}, f.warnings, f.auth.UserRepo, &f.cfg.Vision)

	findings := svc.Findings([]Detection{
		{Class: "Person", Confidence: 90},
		{Class: "Person", Confidence: 80},
		{Class: "Mobile phone", Confidence: 70},
		{Class: "Mobile phone", Confidence: 75},
		{Class: "Book", Confidence: 20},
		{Class: "Cup", Confidence: 99},
	})
	assert.Equal(t, []string{
		"Unallowed object detected: Mobile phone",
		"Multiple people detected (2)",
	}, findings)

	assert.Empty(t, svc.Findings([]Detection{{Class: "Person", Confidence: 95}}))
}

func TestAnalyzeFrameFilesWarnings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.scenarioExam(t)
	rec, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)

	vision := &stubVision{detections: []Detection{
		{Class: "Person", Confidence: 90},
		{Class: "Person", Confidence: 90},
		{Class: "Book", Confidence: 60},
	}}
	svc := NewFrameService(vision, f.warnings, f.auth.UserRepo, &f.cfg.Vision)

	analysis, err := svc.Analyze(ctx, aliceID, rec.ExamRecordingID, []byte("jpeg"), "frame.jpg")
	require.NoError(t, err)
	assert.Len(t, analysis.Findings, 2)
	assert.Len(t, analysis.Warnings, 2)
	assert.False(t, analysis.Terminated)

	f.clock.Advance(time.Minute)
	analysis, err = svc.Analyze(ctx, aliceID, rec.ExamRecordingID, []byte("jpeg"), "frame.jpg")
	require.NoError(t, err)
	assert.True(t, analysis.Terminated)
	assert.Len(t, analysis.Warnings, 1)

	_, err = svc.Analyze(ctx, aliceID, rec.ExamRecordingID, []byte("jpeg"), "frame.jpg")
	assert.True(t, errors.Is(err, util.ErrAlreadyEnded))
	assert.Equal(t, 2, vision.calls)

	_, err = svc.Analyze(ctx, bobID, rec.ExamRecordingID, []byte("jpeg"), "frame.jpg")
	assert.True(t, errors.Is(err, util.ErrPermissionDenied))
}
