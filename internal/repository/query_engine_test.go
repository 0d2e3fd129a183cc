package repository

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"proctor_backend/internal/model"
	"proctor_backend/internal/testutil"
	"proctor_backend/internal/util"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = testutil.Date(2024, time.January, 1, 0, 0)

func TestListParamsFromQuery(t *testing.T) {
	values, err := url.ParseQuery("login_code=AB&page_number=2&results_length=10&order_by=exam_name&order=asc")
	require.NoError(t, err)

	p := ListParamsFromQuery(values)
	assert.Equal(t, map[string]string{"login_code": "AB"}, p.Filters)
	assert.Equal(t, "exam_name", p.OrderBy)
	assert.Equal(t, "asc", p.Order)
	number, size := p.Page()
	assert.Equal(t, 2, number)
	assert.Equal(t, 10, size)

	values, _ = url.ParseQuery("page_size=7")
	_, size = ListParamsFromQuery(values).Page()
	assert.Equal(t, 7, size)
}

func TestPageClamping(t *testing.T) {
	cases := []struct {
		number, size         int
		wantNumber, wantSize int
	}{
		{0, 0, 1, 25},
		{-3, 101, 1, 25},
		{4, 100, 4, 100},
		{1, 1, 1, 1},
	}
	for _, c := range cases {
		n, s := ListParams{PageNumber: c.number, PageSize: c.size}.Page()
		assert.Equal(t, c.wantNumber, n)
		assert.Equal(t, c.wantSize, s)
	}
}

func TestPeekAheadPagination(t *testing.T) {
	db := testutil.NewDB(t)
	engine := NewQueryEngine(db, 1)
	ctx := context.Background()

	const total = 7
	for i := 0; i < total; i++ {
		testutil.CreateExam(t, db, fmt.Sprintf("exam %d", i), fmt.Sprintf("CODE%02d", i),
			base.Add(time.Duration(i)*time.Hour), base.Add(48*time.Hour), time.Hour)
	}

	for size := 1; size <= total+1; size++ {
		for number := 1; number <= total+1; number++ {
			res, err := engine.Exams(ctx, ListParams{PageNumber: number, PageSize: size})
			require.NoError(t, err)

			offset := (number - 1) * size
			want := total - offset
			if want > size {
				want = size
			}
			if want < 0 {
				want = 0
			}
			assert.Len(t, res.Items, want, "page %d size %d", number, size)
			assert.Equal(t, total > offset+size, res.HasNext, "page %d size %d", number, size)
		}
	}
}

func TestExamPrefixScenario(t *testing.T) {
	db := testutil.NewDB(t)
	engine := NewQueryEngine(db, 1)

	testutil.CreateExam(t, db, "first", "AB12xxxxxxxx", base, base.Add(24*time.Hour), time.Hour)
	testutil.CreateExam(t, db, "second", "AB99xxxxxxxx", base.Add(time.Hour), base.Add(24*time.Hour), time.Hour)
	testutil.CreateExam(t, db, "third", "AB55xxxxxxxx", base.Add(2*time.Hour), base.Add(24*time.Hour), time.Hour)
	testutil.CreateExam(t, db, "lower", "ab00xxxxxxxx", base.Add(3*time.Hour), base.Add(24*time.Hour), time.Hour)
	testutil.CreateExam(t, db, "other", "ZZ00xxxxxxxx", base.Add(4*time.Hour), base.Add(24*time.Hour), time.Hour)

	res, err := engine.Exams(context.Background(), ListParams{
		Filters:    map[string]string{"login_code": "AB"},
		PageNumber: 1,
		PageSize:   2,
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.True(t, res.HasNext)
	// default order is start_date descending
	assert.Equal(t, "third", res.Items[0].ExamName)
	assert.Equal(t, "second", res.Items[1].ExamName)

	res, err = engine.Exams(context.Background(), ListParams{
		Filters:  map[string]string{"login_code": "AB"},
		PageSize: 2, PageNumber: 2,
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "first", res.Items[0].ExamName)
	assert.False(t, res.HasNext)
}

func TestPrefixIsLiteral(t *testing.T) {
	db := testutil.NewDB(t)
	engine := NewQueryEngine(db, 1)

	testutil.CreateExam(t, db, "100% done", "P1", base, base.Add(time.Hour), time.Hour)
	testutil.CreateExam(t, db, "100 days", "P2", base, base.Add(time.Hour), time.Hour)

	res, err := engine.Exams(context.Background(), ListParams{Filters: map[string]string{"exam_name": "100%"}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "P1", res.Items[0].LoginCode)
}

func TestOrderingFallbacks(t *testing.T) {
	db := testutil.NewDB(t)
	engine := NewQueryEngine(db, 1)
	ctx := context.Background()

	testutil.CreateUser(t, db, 3, "Cara", "Ng", false)
	testutil.CreateUser(t, db, 1, "Abe", "Zed", false)
	testutil.CreateUser(t, db, 2, "Bea", "Ames", true)

	res, err := engine.Users(ctx, ListParams{OrderBy: "password", Order: "sideways"})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, []uint{3, 2, 1}, []uint{res.Items[0].UserID, res.Items[1].UserID, res.Items[2].UserID})

	res, err = engine.Users(ctx, ListParams{OrderBy: "last_name", Order: "asc"})
	require.NoError(t, err)
	assert.Equal(t, "Ames", res.Items[0].LastName)

	res, err = engine.Users(ctx, ListParams{Filters: map[string]string{"is_examiner": "true", "shoe_size": "9"}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, uint(2), res.Items[0].UserID)
}

func seedRecordings(t *testing.T) (*QueryEngine, map[string]uint) {
	db := testutil.NewDB(t)
	testutil.CreateUser(t, db, 10, "Ada", "Lovelace", false)
	testutil.CreateUser(t, db, 11, "Alan", "Turing", false)
	exam := testutil.CreateExam(t, db, "Logic", "LOGIC0000000", base, base.Add(240*time.Hour), time.Hour)

	ended := base.Add(5 * time.Hour)
	r1 := testutil.CreateRecording(t, db, exam.ExamID, 10, 1, base.Add(4*time.Hour), &ended)
	r2 := testutil.CreateRecording(t, db, exam.ExamID, 11, 1, base.Add(6*time.Hour), nil)
	r3 := testutil.CreateRecording(t, db, exam.ExamID, 10, 2, base.Add(8*time.Hour), nil)

	for i := 0; i < 3; i++ {
		testutil.CreateWarning(t, db, r1.ExamRecordingID, base.Add(4*time.Hour+time.Duration(i)*time.Minute), "phone")
	}
	testutil.CreateWarning(t, db, r2.ExamRecordingID, base.Add(7*time.Hour), "face")

	return NewQueryEngine(db, 1), map[string]uint{"r1": r1.ExamRecordingID, "r2": r2.ExamRecordingID, "r3": r3.ExamRecordingID}
}

func recordingIDs(res PageResult[model.RecordingRow]) []uint {
	ids := make([]uint, 0, len(res.Items))
	for _, r := range res.Items {
		ids = append(ids, r.ExamRecordingID)
	}
	return ids
}

func TestRecordingAggregateFilters(t *testing.T) {
	engine, ids := seedRecordings(t)
	ctx := context.Background()

	list := func(filters map[string]string) []uint {
		res, err := engine.Recordings(ctx, ListParams{Filters: filters, OrderBy: "exam_recording_id", Order: "asc"})
		require.NoError(t, err)
		return recordingIDs(res)
	}

	all, err := engine.Recordings(ctx, ListParams{})
	require.NoError(t, err)
	require.Len(t, all.Items, 3)
	assert.Equal(t, ids["r3"], all.Items[0].ExamRecordingID, "newest time_started first")
	for _, row := range all.Items {
		assert.Equal(t, "Logic", row.ExamName)
		assert.Equal(t, int64(3600), row.ExamDuration)
	}

	assert.Equal(t, []uint{ids["r1"]}, list(map[string]string{"warning_count": "3"}))
	assert.Equal(t, []uint{ids["r1"], ids["r2"]}, list(map[string]string{"min_warnings": "1"}))
	assert.Equal(t, []uint{ids["r2"], ids["r3"]}, list(map[string]string{"max_warnings": "1"}))
	assert.Equal(t, []uint{ids["r3"]}, list(map[string]string{"has_warnings": "false"}))
	assert.Equal(t, []uint{ids["r2"], ids["r3"]}, list(map[string]string{"in_progress": "true"}))
	assert.Equal(t, []uint{ids["r1"], ids["r3"]}, list(map[string]string{"user_id": "10"}))
	assert.Equal(t, []uint{ids["r2"]}, list(map[string]string{"first_name": "Al"}))
	assert.Empty(t, list(map[string]string{"first_name": "al"}))
	assert.Equal(t, []uint{ids["r1"]}, list(map[string]string{"user_id": "10", "min_warnings": "2"}))
	assert.Equal(t, []uint{ids["r2"], ids["r3"]}, list(map[string]string{"period_start": "2024-01-01 06:00:00"}))
	assert.Equal(t, []uint{ids["r1"]}, list(map[string]string{"period_end": "2024-01-01 05:00:00"}))

	res, err := engine.Recordings(ctx, ListParams{OrderBy: "warning_count", Order: "desc"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Items[0].WarningCount)
}

func TestAggregateFiltersIgnoredForOtherKinds(t *testing.T) {
	engine, _ := seedRecordings(t)

	res, err := engine.Warnings(context.Background(), ListParams{Filters: map[string]string{"min_warnings": "99"}})
	require.NoError(t, err)
	assert.Len(t, res.Items, 4)

	res, err = engine.Warnings(context.Background(), ListParams{Filters: map[string]string{"user_id": "11"}})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "face", res.Items[0].Description)
	assert.Equal(t, uint(11), res.Items[0].UserID)
}

func TestMalformedFilterValues(t *testing.T) {
	engine, _ := seedRecordings(t)

	_, err := engine.Recordings(context.Background(), ListParams{Filters: map[string]string{
		"period_start": "yesterday",
		"user_id":      "ten",
	}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, util.ErrValidation))

	var appErr *util.AppError
	require.True(t, errors.As(err, &appErr))
	assert.ElementsMatch(t, []string{"period_start", "user_id"}, appErr.Fields)
}
