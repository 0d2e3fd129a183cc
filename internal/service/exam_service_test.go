package service

import (
	"context"
	"errors"
	"proctor_backend/internal/model"
	"proctor_backend/internal/repository"
	"proctor_backend/internal/testutil"
	"proctor_backend/internal/util"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validExamInput() ExamInput {
	return ExamInput{
		ExamName:  "Algebra",
		SubjectID: 7,
		StartDate: "2024-02-01 09:00:00",
		EndDate:   "2024-02-01 17:00:00",
		Duration:  "01:30:00",
	}
}

func TestCreateExam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	exam, err := f.exams.Create(ctx, examinerID, validExamInput())
	require.NoError(t, err)
	assert.NotZero(t, exam.ExamID)
	assert.Len(t, exam.LoginCode, 12)
	for _, r := range exam.LoginCode {
		assert.True(t, strings.ContainsRune(loginCodeCharset, r), "unexpected %q", r)
	}
	assert.Equal(t, 90*time.Minute, exam.Length())

	found, err := f.exams.GetByLoginCode(ctx, aliceID, exam.LoginCode)
	require.NoError(t, err)
	assert.Equal(t, exam.ExamID, found.ExamID)

	_, err = f.exams.Get(ctx, aliceID, exam.ExamID)
	assert.True(t, errors.Is(err, util.ErrPermissionDenied))

	_, err = f.exams.Create(ctx, aliceID, validExamInput())
	assert.True(t, errors.Is(err, util.ErrPermissionDenied))
}

func TestCreateExamRejectsBadScheduleBeforeStoring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := validExamInput()
	in.StartDate, in.EndDate = "2024-01-10 00:00:00", "2024-01-01 00:00:00"
	_, err := f.exams.Create(ctx, examinerID, in)
	require.Error(t, err)
	assert.Equal(t, util.KindValidation, util.KindOf(err))

	in = validExamInput()
	in.Duration = "ninety minutes"
	_, err = f.exams.Create(ctx, examinerID, in)
	var appErr *util.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, []string{"duration"}, appErr.Fields)

	_, err = f.exams.Create(ctx, examinerID, ExamInput{ExamName: "x"})
	require.True(t, errors.As(err, &appErr))
	assert.ElementsMatch(t, []string{"subject_id", "start_date", "end_date", "duration"}, appErr.Fields)

	var count int64
	require.NoError(t, f.db.Model(&model.Exam{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestExamChangesOnlyBeforeStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock.Set(testutil.Date(2024, time.January, 20, 0, 0))

	exam, err := f.exams.Create(ctx, examinerID, validExamInput())
	require.NoError(t, err)

	name := "Algebra II"
	updated, err := f.exams.Update(ctx, examinerID, exam.ExamID, ExamPatch{ExamName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Algebra II", updated.ExamName)
	assert.Equal(t, exam.LoginCode, updated.LoginCode)

	end := "2024-01-31 00:00:00"
	_, err = f.exams.Update(ctx, examinerID, exam.ExamID, ExamPatch{EndDate: &end})
	assert.Equal(t, util.KindValidation, util.KindOf(err))

	f.clock.Set(testutil.Date(2024, time.February, 1, 9, 0))
	_, err = f.exams.Update(ctx, examinerID, exam.ExamID, ExamPatch{ExamName: &name})
	assert.True(t, errors.Is(err, util.ErrExamStarted))
	assert.Equal(t, util.KindDisallowed, util.KindOf(err))

	err = f.exams.Delete(ctx, examinerID, exam.ExamID)
	assert.True(t, errors.Is(err, util.ErrExamStarted))

	f.clock.Set(testutil.Date(2024, time.January, 20, 0, 0))
	require.NoError(t, f.exams.Delete(ctx, examinerID, exam.ExamID))
	_, err = f.exams.Get(ctx, examinerID, exam.ExamID)
	assert.True(t, errors.Is(err, util.ErrNotFound))
}

func TestListExamsIsExaminerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.scenarioExam(t)

	_, err := f.exams.List(ctx, aliceID, repository.ListParams{})
	assert.True(t, errors.Is(err, util.ErrPermissionDenied))

	page, err := f.exams.List(ctx, examinerID, repository.ListParams{Filters: map[string]string{"exam_name": "Scen"}})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.False(t, page.HasNext)
}

func TestGenerateLoginCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := generateLoginCode(12)
		require.NoError(t, err)
		require.Len(t, code, 12)
		seen[code] = true
	}
	assert.Len(t, seen, 50)

	code, err := generateLoginCode(0)
	require.NoError(t, err)
	assert.Len(t, code, 12)
}
