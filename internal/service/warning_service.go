package service

import (
	"context"
	"proctor_backend/internal/model"
	"proctor_backend/internal/repository"
	"proctor_backend/internal/util"
	"proctor_backend/pkg/logger"
	"proctor_backend/pkg/monitoring"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// WarningService records integrity warnings and ends a recording once it
// collects MaxWarningCount of them.
type WarningService struct {
	Warnings   *repository.ExamWarningRepository
	Recordings *RecordingService
	Engine     *repository.QueryEngine
	Guard      *AccessGuard
	Notifier   Notifier
	Now        func() time.Time

	maxWarnings atomic.Int64
}

func NewWarningService(
	warnings *repository.ExamWarningRepository,
	recordings *RecordingService,
	engine *repository.QueryEngine,
	guard *AccessGuard,
	notifier Notifier,
	maxWarnings int,
) *WarningService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	s := &WarningService{
		Warnings:   warnings,
		Recordings: recordings,
		Engine:     engine,
		Guard:      guard,
		Notifier:   notifier,
		Now:        model.Now,
	}
	s.SetMaxWarningCount(maxWarnings)
	return s
}

// SetMaxWarningCount changes the termination threshold; values below 1 are ignored.
func (s *WarningService) SetMaxWarningCount(n int) {
	if n >= 1 {
		s.maxWarnings.Store(int64(n))
	}
}

func (s *WarningService) MaxWarningCount() int64 {
	return s.maxWarnings.Load()
}

type CreateWarningInput struct {
	ExamRecordingID uint   `json:"exam_recording_id"`
	Description     string `json:"description"`
	WarningTime     string `json:"warning_time"`
}

type WarningResult struct {
	Warning      *model.ExamWarning
	WarningCount int64
	Terminated   bool
}

// Create stores a warning, then counts the warnings that came before it.
// When the new one is the MaxWarningCount-th (or later) and the recording
// is still in progress, the recording is ended at the current time. Two
// concurrent warnings may both try; only one end time is written.
func (s *WarningService) Create(ctx context.Context, actorID uint, in CreateWarningInput) (*WarningResult, error) {
	if in.ExamRecordingID == 0 {
		return nil, util.NewMissingFieldsError("exam_recording_id")
	}
	row, err := s.Recordings.Recordings.FindRow(ctx, in.ExamRecordingID)
	if err != nil {
		return nil, err
	}
	if err := s.Guard.RequireSelfOrExaminer(ctx, actorID, row.UserID); err != nil {
		return nil, err
	}
	// An overdue recording counts as ended.
	if err := s.Recordings.expire(ctx, row); err != nil {
		return nil, err
	}
	return s.record(ctx, row, in.Description, in.WarningTime)
}

func (s *WarningService) record(ctx context.Context, row *model.RecordingRow, description, at string) (*WarningResult, error) {
	now := s.Now()
	warningTime := now
	if at != "" {
		t, err := util.ParseTime(at)
		if err != nil {
			return nil, util.NewValidationError("malformed warning_time", "warning_time")
		}
		warningTime = t
	}

	warning := &model.ExamWarning{
		ExamRecordingID: row.ExamRecordingID,
		WarningTime:     warningTime,
		Description:     strings.TrimSpace(description),
	}
	if err := s.Warnings.Create(ctx, warning); err != nil {
		return nil, err
	}
	monitoring.WarningsCreated.Inc()

	prior, err := s.Warnings.CountPrior(ctx, row.ExamRecordingID, warning.ExamWarningID)
	if err != nil {
		return nil, err
	}

	result := &WarningResult{Warning: warning, WarningCount: prior + 1}
	if prior >= s.MaxWarningCount()-1 && row.State() == model.RecordingInProgress {
		won, err := s.Recordings.EndForWarnings(ctx, &row.ExamRecording, now)
		if err != nil {
			return nil, err
		}
		if won {
			result.Terminated = true
			logger.Log.Info("Warning limit reached, recording terminated",
				zap.Uint("recordingId", row.ExamRecordingID),
				zap.Int64("warnings", result.WarningCount),
			)
		} else {
			monitoring.LostRaces.WithLabelValues(model.EndReasonWarningLimit).Inc()
		}
	}

	s.Notifier.Notify(ctx, MonitorEvent{
		Type:   EventWarningCreated,
		ExamID: row.ExamID,
		Data: WarningCreatedData{
			Warning:      model.NewExamWarningView(warning),
			UserID:       row.UserID,
			WarningCount: result.WarningCount,
			Terminated:   result.Terminated,
		},
	})
	return result, nil
}

func (s *WarningService) Get(ctx context.Context, actorID, warningID uint) (*model.WarningRow, error) {
	row, err := s.Warnings.FindRow(ctx, warningID)
	if err != nil {
		return nil, err
	}
	if err := s.Guard.RequireSelfOrExaminer(ctx, actorID, row.UserID); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *WarningService) List(ctx context.Context, actorID uint, p repository.ListParams) (repository.PageResult[model.WarningRow], error) {
	p, err := s.Guard.ScopeToSelf(ctx, actorID, p)
	if err != nil {
		return repository.PageResult[model.WarningRow]{}, err
	}
	return s.Engine.Warnings(ctx, p)
}

type WarningPatch struct {
	Description *string `json:"description"`
	WarningTime *string `json:"warning_time"`
}

// Update lets an examiner correct a warning. The count it contributes to
// does not change, so termination is not re-evaluated.
func (s *WarningService) Update(ctx context.Context, actorID, warningID uint, patch WarningPatch) (*model.WarningRow, error) {
	if err := s.Guard.RequireExaminer(ctx, actorID); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if patch.Description != nil {
		updates["description"] = strings.TrimSpace(*patch.Description)
	}
	if patch.WarningTime != nil {
		t, err := util.ParseTime(*patch.WarningTime)
		if err != nil {
			return nil, util.NewValidationError("malformed warning_time", "warning_time")
		}
		updates["warning_time"] = t
	}
	if len(updates) == 0 {
		return nil, util.NewMissingFieldsError("description", "warning_time")
	}
	if err := s.Warnings.Update(ctx, warningID, updates); err != nil {
		return nil, err
	}
	return s.Warnings.FindRow(ctx, warningID)
}

func (s *WarningService) Delete(ctx context.Context, actorID, warningID uint) error {
	if err := s.Guard.RequireExaminer(ctx, actorID); err != nil {
		return err
	}
	return s.Warnings.Delete(ctx, warningID)
}
