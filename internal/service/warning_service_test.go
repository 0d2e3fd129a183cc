package service

import (
	"context"
	"errors"
	"fmt"
	"proctor_backend/internal/repository"
	"proctor_backend/internal/testutil"
	"proctor_backend/internal/util"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarningLimitTerminatesRecording(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.scenarioExam(t)
	rec, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		f.clock.Advance(time.Minute)
		res, err := f.warnings.Create(ctx, examinerID, CreateWarningInput{ExamRecordingID: rec.ExamRecordingID, Description: "looking away"})
		require.NoError(t, err)
		assert.Equal(t, int64(i), res.WarningCount)
		assert.False(t, res.Terminated)
		assert.Nil(t, f.stored(t, rec.ExamRecordingID).TimeEnded)
	}

	f.clock.Set(testutil.Date(2024, time.January, 5, 0, 30))
	res, err := f.warnings.Create(ctx, examinerID, CreateWarningInput{ExamRecordingID: rec.ExamRecordingID, Description: "phone"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.WarningCount)
	assert.True(t, res.Terminated)
	ended := f.stored(t, rec.ExamRecordingID).TimeEnded
	require.NotNil(t, ended)
	assert.WithinDuration(t, testutil.Date(2024, time.January, 5, 0, 30), *ended, 0)

	// Past the limit warnings are still stored, the end time stays put.
	f.clock.Advance(5 * time.Minute)
	res, err = f.warnings.Create(ctx, examinerID, CreateWarningInput{ExamRecordingID: rec.ExamRecordingID, Description: "late"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.WarningCount)
	assert.False(t, res.Terminated)
	assert.WithinDuration(t, *ended, *f.stored(t, rec.ExamRecordingID).TimeEnded, 0)

	assert.Len(t, f.events.ofType(EventWarningCreated), 4)
	assert.Len(t, f.events.ofType(EventRecordingEnded), 1)
}

func TestConcurrentWarningsTerminateOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.scenarioExam(t)
	rec, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)
	testutil.CreateWarning(t, f.db, rec.ExamRecordingID, f.clock.Now(), "first")
	testutil.CreateWarning(t, f.db, rec.ExamRecordingID, f.clock.Now(), "second")

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		terminated int
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.warnings.Create(ctx, examinerID, CreateWarningInput{
				ExamRecordingID: rec.ExamRecordingID,
				Description:     fmt.Sprintf("burst %d", i),
			})
			if !assert.NoError(t, err) {
				return
			}
			if res.Terminated {
				mu.Lock()
				terminated++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, terminated)
	assert.NotNil(t, f.stored(t, rec.ExamRecordingID).TimeEnded)
	assert.Len(t, f.events.ofType(EventRecordingEnded), 1)
}

func TestWarningOnOverdueRecordingDoesNotMoveEnd(t *testing.T) {
	f := newFixture(t)
	f.warnings.SetMaxWarningCount(1)
	ctx := context.Background()
	exam := f.scenarioExam(t)
	rec, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	res, err := f.warnings.Create(ctx, examinerID, CreateWarningInput{ExamRecordingID: rec.ExamRecordingID, Description: "late"})
	require.NoError(t, err)
	assert.False(t, res.Terminated)
	assert.WithinDuration(t, testutil.Date(2024, time.January, 5, 1, 0), *f.stored(t, rec.ExamRecordingID).TimeEnded, 0)
}

func TestMaxWarningCountReload(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, int64(3), f.warnings.MaxWarningCount())
	f.warnings.SetMaxWarningCount(5)
	assert.Equal(t, int64(5), f.warnings.MaxWarningCount())
	f.warnings.SetMaxWarningCount(0)
	assert.Equal(t, int64(5), f.warnings.MaxWarningCount())
}

func TestWarningAccessAndEditing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exam := f.scenarioExam(t)
	rec, err := f.recordings.Create(ctx, aliceID, CreateRecordingInput{ExamID: exam.ExamID})
	require.NoError(t, err)

	_, err = f.warnings.Create(ctx, bobID, CreateWarningInput{ExamRecordingID: rec.ExamRecordingID, Description: "x"})
	assert.True(t, errors.Is(err, util.ErrPermissionDenied))

	res, err := f.warnings.Create(ctx, aliceID, CreateWarningInput{ExamRecordingID: rec.ExamRecordingID, Description: "  tab switch  ", WarningTime: "2024-01-05 00:10:00"})
	require.NoError(t, err)
	assert.Equal(t, "tab switch", res.Warning.Description)
	assert.WithinDuration(t, testutil.Date(2024, time.January, 5, 0, 10), res.Warning.WarningTime, 0)

	_, err = f.warnings.Create(ctx, aliceID, CreateWarningInput{ExamRecordingID: rec.ExamRecordingID, WarningTime: "soon"})
	assert.True(t, errors.Is(err, util.ErrValidation))

	_, err = f.warnings.Get(ctx, bobID, res.Warning.ExamWarningID)
	assert.True(t, errors.Is(err, util.ErrPermissionDenied))

	_, err = f.warnings.List(ctx, bobID, repository.ListParams{Filters: map[string]string{"user_id": "10"}})
	assert.True(t, errors.Is(err, util.ErrPermissionDenied))

	page, err := f.warnings.List(ctx, aliceID, repository.ListParams{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, exam.ExamID, page.Items[0].ExamID)

	desc := "corrected"
	_, err = f.warnings.Update(ctx, aliceID, res.Warning.ExamWarningID, WarningPatch{Description: &desc})
	assert.True(t, errors.Is(err, util.ErrPermissionDenied))

	row, err := f.warnings.Update(ctx, examinerID, res.Warning.ExamWarningID, WarningPatch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "corrected", row.Description)

	_, err = f.warnings.Update(ctx, examinerID, res.Warning.ExamWarningID, WarningPatch{})
	assert.True(t, errors.Is(err, util.ErrValidation))

	assert.True(t, errors.Is(f.warnings.Delete(ctx, aliceID, res.Warning.ExamWarningID), util.ErrPermissionDenied))
	require.NoError(t, f.warnings.Delete(ctx, examinerID, res.Warning.ExamWarningID))
	_, err = f.warnings.Get(ctx, examinerID, res.Warning.ExamWarningID)
	assert.True(t, errors.Is(err, util.ErrNotFound))
}
