package service

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"proctor_backend/internal/config"
	"proctor_backend/internal/model"
	"proctor_backend/internal/repository"
	"proctor_backend/internal/util"
	"proctor_backend/pkg/logger"
	"proctor_backend/pkg/monitoring"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const loginCodeCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ!0123456789"

type ExamService struct {
	Exams  *repository.ExamRepository
	Engine *repository.QueryEngine
	Guard  *AccessGuard
	Cfg    *config.ProctoringConfig
	Now    func() time.Time
}

func NewExamService(exams *repository.ExamRepository, engine *repository.QueryEngine, guard *AccessGuard, cfg *config.ProctoringConfig) *ExamService {
	return &ExamService{
		Exams:  exams,
		Engine: engine,
		Guard:  guard,
		Cfg:    cfg,
		Now:    model.Now,
	}
}

type ExamInput struct {
	ExamName     string `json:"exam_name"`
	SubjectID    uint   `json:"subject_id"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Duration     string `json:"duration"`
	DocumentLink string `json:"document_link"`
}

// ExamPatch holds the fields an update may change; nil means unchanged.
type ExamPatch struct {
	ExamName     *string `json:"exam_name"`
	SubjectID    *uint   `json:"subject_id"`
	StartDate    *string `json:"start_date"`
	EndDate      *string `json:"end_date"`
	Duration     *string `json:"duration"`
	DocumentLink *string `json:"document_link"`
}

type examSchedule struct {
	start, end time.Time
	length     time.Duration
}

func parseSchedule(start, end, duration string) (examSchedule, error) {
	var sch examSchedule
	var invalid []string
	var err error
	if sch.start, err = util.ParseTime(start); err != nil {
		invalid = append(invalid, "start_date")
	}
	if sch.end, err = util.ParseTime(end); err != nil {
		invalid = append(invalid, "end_date")
	}
	if sch.length, err = util.ParseClock(duration); err != nil || sch.length <= 0 {
		invalid = append(invalid, "duration")
	}
	if len(invalid) > 0 {
		return sch, util.NewValidationError("malformed date or duration", invalid...)
	}
	if !sch.start.Before(sch.end) {
		return sch, util.NewValidationError("start_date must be before end_date", "start_date", "end_date")
	}
	return sch, nil
}

// Create validates the schedule before anything is stored, then inserts the
// exam under a fresh login code. The unique index on login_code decides
// collisions; a rejected code is regenerated a bounded number of times.
func (s *ExamService) Create(ctx context.Context, actorID uint, in ExamInput) (*model.Exam, error) {
	if err := s.Guard.RequireExaminer(ctx, actorID); err != nil {
		return nil, err
	}

	var missing []string
	if strings.TrimSpace(in.ExamName) == "" {
		missing = append(missing, "exam_name")
	}
	if in.SubjectID == 0 {
		missing = append(missing, "subject_id")
	}
	if in.StartDate == "" {
		missing = append(missing, "start_date")
	}
	if in.EndDate == "" {
		missing = append(missing, "end_date")
	}
	if in.Duration == "" {
		missing = append(missing, "duration")
	}
	if len(missing) > 0 {
		return nil, util.NewMissingFieldsError(missing...)
	}

	sch, err := parseSchedule(in.StartDate, in.EndDate, in.Duration)
	if err != nil {
		return nil, err
	}

	exam := &model.Exam{
		ExamName:     strings.TrimSpace(in.ExamName),
		SubjectID:    in.SubjectID,
		StartDate:    sch.start,
		EndDate:      sch.end,
		Duration:     int64(sch.length / time.Second),
		DocumentLink: in.DocumentLink,
	}

	attempts := s.Cfg.LoginCodeAttempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		code, err := generateLoginCode(s.Cfg.LoginCodeLength)
		if err != nil {
			return nil, err
		}
		exists, err := s.Exams.LoginCodeExists(ctx, code)
		if err != nil {
			return nil, err
		}
		if exists {
			monitoring.LoginCodeCollisions.Inc()
			continue
		}

		exam.ExamID = 0
		exam.LoginCode = code
		err = s.Exams.Create(ctx, exam)
		if err == nil {
			logger.Log.Info("Exam created", zap.Uint("examId", exam.ExamID), zap.Uint("examiner", actorID))
			return exam, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		monitoring.LoginCodeCollisions.Inc()
		logger.Log.Warn("Login code collision, regenerating", zap.Int("attempt", i+1))
	}
	return nil, util.ErrLoginCodeExhausted
}

func generateLoginCode(length int) (string, error) {
	if length < 1 {
		length = 12
	}
	limit := big.NewInt(int64(len(loginCodeCharset)))
	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		sb.WriteByte(loginCodeCharset[n.Int64()])
	}
	return sb.String(), nil
}

func (s *ExamService) Get(ctx context.Context, actorID, examID uint) (*model.Exam, error) {
	if err := s.Guard.RequireExaminer(ctx, actorID); err != nil {
		return nil, err
	}
	return s.Exams.FindByID(ctx, examID)
}

// GetByLoginCode is how examinees find the exam they were invited to.
func (s *ExamService) GetByLoginCode(ctx context.Context, actorID uint, code string) (*model.Exam, error) {
	if err := s.Guard.RequireRegisteredUser(ctx, actorID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, util.NewMissingFieldsError("login_code")
	}
	return s.Exams.FindByLoginCode(ctx, code)
}

func (s *ExamService) List(ctx context.Context, actorID uint, p repository.ListParams) (repository.PageResult[model.Exam], error) {
	if err := s.Guard.RequireExaminer(ctx, actorID); err != nil {
		return repository.PageResult[model.Exam]{}, err
	}
	return s.Engine.Exams(ctx, p)
}

// Update changes an exam that has not started yet.
func (s *ExamService) Update(ctx context.Context, actorID, examID uint, patch ExamPatch) (*model.Exam, error) {
	if err := s.Guard.RequireExaminer(ctx, actorID); err != nil {
		return nil, err
	}
	exam, err := s.Exams.FindByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	if exam.HasStarted(now) {
		return nil, util.WithEntity(util.ErrExamStarted, examID)
	}

	start := util.FormatTime(exam.StartDate)
	end := util.FormatTime(exam.EndDate)
	duration := util.FormatClock(exam.Length())
	if patch.StartDate != nil {
		start = *patch.StartDate
	}
	if patch.EndDate != nil {
		end = *patch.EndDate
	}
	if patch.Duration != nil {
		duration = *patch.Duration
	}
	sch, err := parseSchedule(start, end, duration)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"start_date": sch.start,
		"end_date":   sch.end,
		"duration":   int64(sch.length / time.Second),
	}
	if patch.ExamName != nil {
		if strings.TrimSpace(*patch.ExamName) == "" {
			return nil, util.NewValidationError("exam_name must not be empty", "exam_name")
		}
		updates["exam_name"] = strings.TrimSpace(*patch.ExamName)
	}
	if patch.SubjectID != nil {
		updates["subject_id"] = *patch.SubjectID
	}
	if patch.DocumentLink != nil {
		updates["document_link"] = *patch.DocumentLink
	}

	ok, err := s.Exams.UpdateBeforeStart(ctx, examID, now, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, util.WithEntity(util.ErrExamStarted, examID)
	}
	return s.Exams.FindByID(ctx, examID)
}

func (s *ExamService) Delete(ctx context.Context, actorID, examID uint) error {
	if err := s.Guard.RequireExaminer(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.Exams.FindByID(ctx, examID); err != nil {
		return err
	}
	ok, err := s.Exams.DeleteBeforeStart(ctx, examID, s.Now())
	if err != nil {
		return err
	}
	if !ok {
		return util.WithEntity(util.ErrExamStarted, examID)
	}
	logger.Log.Info("Exam deleted", zap.Uint("examId", examID), zap.Uint("examiner", actorID))
	return nil
}
