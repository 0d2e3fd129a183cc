package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"proctor_backend/internal/config"
	"proctor_backend/internal/model"
	"proctor_backend/internal/repository"
	"proctor_backend/internal/testutil"
	"proctor_backend/internal/util"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyExpiryOnListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.scenarioExam(t)

	rec, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)
	assert.Equal(t, testutil.Date(2024, time.January, 5, 0, 0), rec.TimeStarted)
	assert.Nil(t, rec.TimeEnded)
	assert.Equal(t, 1, rec.Attempt)

	f.clock.Set(testutil.Date(2024, time.January, 5, 2, 0))
	res, err := f.recordings.List(ctx, aliceID, repository.ListParams{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.NotNil(t, res.Items[0].TimeEnded)
	want := testutil.Date(2024, time.January, 5, 1, 0)
	assert.WithinDuration(t, want, *res.Items[0].TimeEnded, 0)
	assert.Equal(t, "2024-01-05 01:00:00", util.FormatTimePtr(res.Items[0].TimeEnded))

	stored := f.stored(t, rec.ExamRecordingID)
	require.NotNil(t, stored.TimeEnded)
	assert.True(t, want.Equal(*stored.TimeEnded))

	// Reading again later changes nothing.
	f.clock.Advance(5 * time.Hour)
	again, err := f.recordings.Get(ctx, aliceID, rec.ExamRecordingID)
	require.NoError(t, err)
	assert.True(t, want.Equal(*again.TimeEnded))
	assert.Len(t, f.events.ofType(EventRecordingEnded), 1)
}

func TestConcurrentExpiryConverges(t *testing.T) {
	f := newFixture(t)
	exam := f.scenarioExam(t)
	rec, err := f.recordings.Create(context.Background(), aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)

	f.clock.Advance(3 * time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			row, err := f.recordings.Get(context.Background(), examinerID, rec.ExamRecordingID)
			if assert.NoError(t, err) && assert.NotNil(t, row.TimeEnded) {
				assert.WithinDuration(t, testutil.Date(2024, time.January, 5, 1, 0), *row.TimeEnded, 0)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, f.events.ofType(EventRecordingEnded), 1)
}

func TestCreateRespectsExamWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.scenarioExam(t)

	f.clock.Set(testutil.Date(2023, time.December, 31, 23, 59))
	_, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	assert.True(t, errors.Is(err, util.ErrOutsideExamWindow))

	f.clock.Set(exam.EndDate)
	_, err = f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	assert.True(t, errors.Is(err, util.ErrOutsideExamWindow))

	f.clock.Set(exam.StartDate)
	_, err = f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	assert.NoError(t, err)

	_, err = f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: 999})
	assert.True(t, errors.Is(err, util.ErrNotFound))
}

func TestDuplicateAttemptNeedsExaminerOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.scenarioExam(t)

	_, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)

	_, err = f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	assert.True(t, errors.Is(err, util.ErrDuplicateAttempt))

	_, err = f.recordings.Create(ctx, aliceID, CreateRecordingInput{
		ExamID:   exam.ExamID,
		Override: &Credentials{UserID: aliceID, Password: testutil.Password(aliceID)},
	})
	assert.True(t, errors.Is(err, util.ErrPermissionDenied))

	_, err = f.recordings.Create(ctx, aliceID, CreateRecordingInput{
		ExamID:   exam.ExamID,
		Override: &Credentials{UserID: examinerID, Password: "wrong"},
	})
	assert.True(t, errors.Is(err, util.ErrInvalidCredentials))

	second, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{
		ExamID:   exam.ExamID,
		Override: &Credentials{UserID: examinerID, Password: testutil.Password(examinerID)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Attempt)

	latest, err := f.recRepo.LatestAttempt(ctx, exam.ExamID, aliceID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest)
}

func TestOverrideAfterDeletedAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.scenarioExam(t)
	override := &Credentials{UserID: examinerID, Password: testutil.Password(examinerID)}

	first, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)
	_, err = f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID, Override: override})
	require.NoError(t, err)

	require.NoError(t, f.recordings.Delete(ctx, examinerID, first.ExamRecordingID))

	// attempt 2 still exists, so the next one must skip past it
	_, err = f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	assert.True(t, errors.Is(err, util.ErrDuplicateAttempt))
	third, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID, Override: override})
	require.NoError(t, err)
	assert.Equal(t, 3, third.Attempt)
}

func TestManualEndTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.scenarioExam(t)
	rec, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	ended, err := f.recordings.Update(ctx, aliceID, rec.ExamRecordingID, UpdateRecordingInput{Action: ActionEnd})
	require.NoError(t, err)
	endedAt := *ended.TimeEnded
	assert.WithinDuration(t, testutil.Date(2024, time.January, 5, 0, 20), endedAt, 0)

	f.clock.Advance(time.Minute)
	_, err = f.recordings.Update(ctx, aliceID, rec.ExamRecordingID, UpdateRecordingInput{Action: ActionEnd})
	assert.True(t, errors.Is(err, util.ErrAlreadyEnded))
	assert.Equal(t, util.KindConflict, util.KindOf(err))

	assert.True(t, endedAt.Equal(*f.stored(t, rec.ExamRecordingID).TimeEnded))
}

func TestManualEndIsCappedByDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.scenarioExam(t)
	rec, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)

	f.clock.Advance(90 * time.Minute)
	ended, err := f.recordings.End(ctx, examinerID, rec.ExamRecordingID)
	require.NoError(t, err)
	assert.WithinDuration(t, testutil.Date(2024, time.January, 5, 1, 0), *ended.TimeEnded, 0)
}

func TestUpdateLinkInAnyState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.scenarioExam(t)
	rec, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)

	row, err := f.recordings.Update(ctx, aliceID, rec.ExamRecordingID, UpdateRecordingInput{Action: ActionUpdateLink, VideoLink: "https://videos/1"})
	require.NoError(t, err)
	assert.Equal(t, "https://videos/1", row.VideoLink)
	assert.Nil(t, row.TimeEnded)

	_, err = f.recordings.End(ctx, aliceID, rec.ExamRecordingID)
	require.NoError(t, err)

	row, err = f.recordings.UpdateLink(ctx, aliceID, rec.ExamRecordingID, "https://videos/2")
	require.NoError(t, err)
	assert.Equal(t, "https://videos/2", f.stored(t, rec.ExamRecordingID).VideoLink)
	assert.NotNil(t, row.TimeEnded)

	_, err = f.recordings.Update(ctx, aliceID, rec.ExamRecordingID, UpdateRecordingInput{Action: "pause"})
	assert.True(t, errors.Is(err, util.ErrValidation))
}

func TestRecordingAccessRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.scenarioExam(t)
	aliceRec, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)
	_, err = f.recordings.Create(ctx, bobID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)

	_, err = f.recordings.Get(ctx, bobID, aliceRec.ExamRecordingID)
	assert.True(t, errors.Is(err, util.ErrPermissionDenied))

	_, err = f.recordings.List(ctx, bobID, repository.ListParams{Filters: map[string]string{"user_id": "10"}})
	assert.True(t, errors.Is(err, util.ErrPermissionDenied))

	own, err := f.recordings.List(ctx, bobID, repository.ListParams{})
	require.NoError(t, err)
	require.Len(t, own.Items, 1)
	assert.Equal(t, bobID, own.Items[0].UserID)

	all, err := f.recordings.List(ctx, examinerID, repository.ListParams{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 2)

	_, err = f.recordings.End(ctx, bobID, aliceRec.ExamRecordingID)
	assert.True(t, errors.Is(err, util.ErrPermissionDenied))

	err = f.recordings.Delete(ctx, aliceID, aliceRec.ExamRecordingID)
	assert.True(t, errors.Is(err, util.ErrPermissionDenied))

	require.NoError(t, f.recordings.Delete(ctx, examinerID, aliceRec.ExamRecordingID))
	_, err = f.recordings.Get(ctx, examinerID, aliceRec.ExamRecordingID)
	assert.True(t, errors.Is(err, util.ErrNotFound))

	_, err = f.recordings.Create(ctx, 404, CreateRecordingInput{ExamID: exam.ExamID})
	assert.True(t, errors.Is(err, util.ErrPermissionDenied))
}

func TestInProgressFilterSeesExpiredRecordings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.scenarioExam(t)
	long := testutil.CreateExam(t, f.db, "Long", "LONG00000001", exam.StartDate, exam.EndDate, 24*time.Hour)

	short, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)
	running, err := f.recordings.Create(ctx, bobID, CreateRecordingInput{ExamID: long.ExamID})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	res, err := f.recordings.List(ctx, examinerID, repository.ListParams{Filters: map[string]string{"in_progress": "true"}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, running.ExamRecordingID, res.Items[0].ExamRecordingID)

	res, err = f.recordings.List(ctx, examinerID, repository.ListParams{Filters: map[string]string{"in_progress": "false"}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, short.ExamRecordingID, res.Items[0].ExamRecordingID)
}

func TestExpireOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.scenarioExam(t)
	started := testutil.Date(2024, time.January, 4, 0, 0)
	overdue := testutil.CreateRecording(t, f.db, exam.ExamID, aliceID, 1, started, nil)
	running, err := f.recordings.Create(ctx, bobID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)

	n, err := f.recordings.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.WithinDuration(t, testutil.Date(2024, time.January, 4, 1, 0), *f.stored(t, overdue.ExamRecordingID).TimeEnded, 0)
	assert.Nil(t, f.stored(t, running.ExamRecordingID).TimeEnded)

	n, err = f.recordings.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInProgressSweepStaysWithinExam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.scenarioExam(t)
	other := testutil.CreateExam(t, f.db, "Other", "OTHER0000001", exam.StartDate, exam.EndDate, time.Hour)
	started := testutil.Date(2024, time.January, 4, 0, 0)
	mine := testutil.CreateRecording(t, f.db, exam.ExamID, aliceID, 1, started, nil)
	elsewhere := testutil.CreateRecording(t, f.db, other.ExamID, bobID, 1, started, nil)

	res, err := f.recordings.List(ctx, examinerID, repositoryParams(map[string]string{
		"exam_id":     strconv.FormatUint(uint64(exam.ExamID), 10),
		"in_progress": "false",
	}))
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, mine.ExamRecordingID, res.Items[0].ExamRecordingID)

	assert.NotNil(t, f.stored(t, mine.ExamRecordingID).TimeEnded)
	assert.Nil(t, f.stored(t, elsewhere.ExamRecordingID).TimeEnded)
}

func TestDeleteRemovesStoredVideo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.scenarioExam(t)
	rec, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "clip.webm")
	require.NoError(t, os.WriteFile(src, []byte("webm"), 0644))
	key := RecordingVideoKey(exam.ExamID, rec.ExamRecordingID, "clip.webm")
	link, err := f.recordings.Storage.UploadFile(ctx, key, src, "video/webm")
	require.NoError(t, err)
	_, err = f.recordings.UpdateLink(ctx, aliceID, rec.ExamRecordingID, link)
	require.NoError(t, err)

	stored := filepath.Join(f.cfg.Storage.LocalPath, filepath.FromSlash(key))
	require.FileExists(t, stored)

	require.NoError(t, f.recordings.Delete(ctx, examinerID, rec.ExamRecordingID))
	assert.NoFileExists(t, stored)

	// links that point outside our storage are left alone
	external, err := f.recordings.Create(ctx, bobID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)
	_, err = f.recordings.UpdateLink(ctx, bobID, external.ExamRecordingID, "https://videos.example.com/recordings/1.webm")
	require.NoError(t, err)
	require.NoError(t, f.recordings.Delete(ctx, examinerID, external.ExamRecordingID))
}

func TestKeyForLink(t *testing.T) {
	storage := NewStorageService(&config.StorageConfig{Type: "local", LocalPath: t.TempDir()})

	key, ok := storage.KeyForLink("/uploads/recordings/1/2/a.webm")
	assert.True(t, ok)
	assert.Equal(t, "recordings/1/2/a.webm", key)

	for _, link := range []string{"", "https://cdn.example.com/a.webm", "/uploads/other/a.webm", "/uploads/recordings/../../etc/passwd"} {
		_, ok := storage.KeyForLink(link)
		assert.False(t, ok, link)
	}
}

func TestCheckVideoLength(t *testing.T) {
	started := testutil.Date(2024, time.January, 5, 0, 0)
	row := &model.RecordingRow{ExamDuration: int64(time.Hour / time.Second)}
	row.TimeStarted = started

	// running for 20 minutes: a shorter partial upload is fine, a longer one is not
	now := started.Add(20 * time.Minute)
	expected, mismatch := checkVideoLength(row, 5*time.Minute, now)
	assert.Equal(t, 20*time.Minute, expected)
	assert.False(t, mismatch)
	_, mismatch = checkVideoLength(row, 40*time.Minute, now)
	assert.True(t, mismatch)

	// ended after 30 minutes: the video has to cover it
	ended := started.Add(30 * time.Minute)
	row.TimeEnded = &ended
	_, mismatch = checkVideoLength(row, 30*time.Minute+10*time.Second, now.Add(time.Hour))
	assert.False(t, mismatch)
	_, mismatch = checkVideoLength(row, 10*time.Minute, now.Add(time.Hour))
	assert.True(t, mismatch)

	// never longer than the exam itself
	row.TimeEnded = nil
	expected, _ = checkVideoLength(row, time.Hour, started.Add(3*time.Hour))
	assert.Equal(t, time.Hour, expected)
}
