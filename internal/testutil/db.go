// Package testutil opens throwaway sqlite databases with the production
// schema and seeds them for package tests.
package testutil

import (
	"fmt"
	"proctor_backend/internal/model"
	"proctor_backend/pkg/database"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// NewDB returns an empty in-memory database private to t.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=off", name, dbSeq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig("test"))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// Clock is a settable time source.
type Clock struct {
	now atomic.Int64
}

func NewClock(t time.Time) *Clock {
	c := &Clock{}
	c.Set(t)
	return c
}

func (c *Clock) Now() time.Time {
	return time.Unix(c.now.Load(), 0).UTC()
}

func (c *Clock) Set(t time.Time) {
	c.now.Store(t.Unix())
}

func (c *Clock) Advance(d time.Duration) {
	c.now.Add(int64(d / time.Second))
}

func Date(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

// CreateUser stores a user whose password is "secret-<id>".
func CreateUser(t testing.TB, db *gorm.DB, id uint, first, last string, examiner bool) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(Password(id)), bcrypt.MinCost)
	require.NoError(t, err)
	u := &model.User{
		UserID:     id,
		FirstName:  first,
		LastName:   last,
		Password:   string(hash),
		IsExaminer: examiner,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func Password(id uint) string {
	return fmt.Sprintf("secret-%d", id)
}

func CreateExam(t testing.TB, db *gorm.DB, name, code string, start, end time.Time, length time.Duration) *model.Exam {
	t.Helper()
	e := &model.Exam{
		ExamName:  name,
		SubjectID: 1,
		LoginCode: code,
		StartDate: start,
		EndDate:   end,
		Duration:  int64(length / time.Second),
	}
	require.NoError(t, db.Create(e).Error)
	return e
}

func CreateRecording(t testing.TB, db *gorm.DB, examID, userID uint, attempt int, started time.Time, ended *time.Time) *model.ExamRecording {
	t.Helper()
	r := &model.ExamRecording{
		ExamID:      examID,
		UserID:      userID,
		Attempt:     attempt,
		TimeStarted: started,
		TimeEnded:   ended,
	}
	require.NoError(t, db.Create(r).Error)
	return r
}

func CreateWarning(t testing.TB, db *gorm.DB, recordingID uint, at time.Time, desc string) *model.ExamWarning {
	t.Helper()
	w := &model.ExamWarning{
		ExamRecordingID: recordingID,
		WarningTime:     at,
		Description:     desc,
	}
	require.NoError(t, db.Create(w).Error)
	return w
}
