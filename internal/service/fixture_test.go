package service

import (
	"context"
	"proctor_backend/internal/config"
	"proctor_backend/internal/model"
	"proctor_backend/internal/repository"
	"proctor_backend/internal/testutil"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"
)

const (
	examinerID uint = 1
	aliceID    uint = 10
	bobID      uint = 11
)

type capturedEvents struct {
	mu     sync.Mutex
	events []MonitorEvent
}

func (c *capturedEvents) Notify(_ context.Context, e MonitorEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *capturedEvents) ofType(t string) []MonitorEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []MonitorEvent
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	db         *gorm.DB
	clock      *testutil.Clock
	cfg        *config.Config
	events     *capturedEvents
	guard      *AccessGuard
	auth       *AuthService
	exams      *ExamService
	recordings *RecordingService
	warnings   *WarningService
	users      *UserService
	recRepo    *repository.ExamRecordingRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: "test-secret", ExpireTime: time.Hour},
		Proctoring: config.ProctoringConfig{
			MaxWarningCount:      3,
			LoginCodeLength:      12,
			LoginCodeAttempts:    5,
			StorageRetryAttempts: 2,
			ExaminerPassphrase:   "test123",
		},
		Storage: config.StorageConfig{Type: "local", LocalPath: t.TempDir()},
		Vision:  config.VisionConfig{MinConfidence: 50, UnallowedClasses: []string{"Mobile phone", "Book"}},
	}

	f := &fixture{
		db:     db,
		clock:  testutil.NewClock(testutil.Date(2024, time.January, 5, 0, 0)),
		cfg:    cfg,
		events: &capturedEvents{},
	}

	users := repository.NewUserRepository(db)
	examRepo := repository.NewExamRepository(db)
	f.recRepo = repository.NewExamRecordingRepository(db)
	warnRepo := repository.NewExamWarningRepository(db)
	engine := repository.NewQueryEngine(db, cfg.Proctoring.StorageRetryAttempts)

	f.guard = NewAccessGuard(users)
	f.auth = NewAuthService(users, cfg)
	f.exams = NewExamService(examRepo, engine, f.guard, &cfg.Proctoring)
	f.exams.Now = f.clock.Now
	f.recordings = NewRecordingService(f.recRepo, examRepo, engine, f.guard, f.auth, NewStorageService(&cfg.Storage), f.events)
	f.recordings.Now = f.clock.Now
	f.warnings = NewWarningService(warnRepo, f.recordings, engine, f.guard, f.events, cfg.Proctoring.MaxWarningCount)
	f.warnings.Now = f.clock.Now
	f.users = NewUserService(users, engine, f.guard)

	testutil.CreateUser(t, db, examinerID, "Eve", "Examiner", true)
	testutil.CreateUser(t, db, aliceID, "Alice", "Smith", false)
	testutil.CreateUser(t, db, bobID, "Bob", "Jones", false)
	return f
}

// scenarioExam runs from Jan 1 to Jan 10 2024 and lasts one hour.
func (f *fixture) scenarioExam(t *testing.T) *model.Exam {
	return testutil.CreateExam(t, f.db, "Scenario", "SCENARIO0001",
		testutil.Date(2024, time.January, 1, 0, 0),
		testutil.Date(2024, time.January, 10, 0, 0),
		time.Hour)
}

func (f *fixture) stored(t *testing.T, id uint) *model.ExamRecording {
	t.Helper()
	rec, err := f.recRepo.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load recording %d: %v", id, err)
	}
	return rec
}

func repositoryParams(filters map[string]string) repository.ListParams {
	return repository.ListParams{Filters: filters}
}
