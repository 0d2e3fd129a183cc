package repository

import (
	"context"
	"proctor_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

// Create inserts exam. A login code collision comes back as a conflict that
// unwraps to gorm.ErrDuplicatedKey.
func (r *ExamRepository) Create(ctx context.Context, exam *model.Exam) error {
	return translate(r.DB.WithContext(ctx).Create(exam).Error, "exam", exam.LoginCode)
}

func (r *ExamRepository) FindByID(ctx context.Context, id uint) (*model.Exam, error) {
	var exam model.Exam
	if err := r.DB.WithContext(ctx).First(&exam, "exam_id = ?", id).Error; err != nil {
		return nil, translate(err, "exam", id)
	}
	return &exam, nil
}

func (r *ExamRepository) FindByLoginCode(ctx context.Context, code string) (*model.Exam, error) {
	var exam model.Exam
	if err := r.DB.WithContext(ctx).Where("login_code = ?", code).First(&exam).Error; err != nil {
		return nil, translate(err, "exam", code)
	}
	return &exam, nil
}

func (r *ExamRepository) LoginCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Exam{}).Where("login_code = ?", code).Count(&count).Error
	return count > 0, translate(err, "exam", code)
}

// UpdateBeforeStart applies updates only while the exam has not started at
// now. It reports false when the exam exists but has already started.
func (r *ExamRepository) UpdateBeforeStart(ctx context.Context, id uint, now time.Time, updates map[string]interface{}) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.Exam{}).
		Where("exam_id = ? AND start_date > ?", id, now).
		Updates(updates)
	if res.Error != nil {
		return false, translate(res.Error, "exam", id)
	}
	return res.RowsAffected > 0, nil
}

// DeleteBeforeStart removes an exam that has not started, together with any
// recordings and warnings attached to it.
func (r *ExamRepository) DeleteBeforeStart(ctx context.Context, id uint, now time.Time) (bool, error) {
	deleted := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recordingIDs := tx.Model(&model.ExamRecording{}).Select("exam_recording_id").Where("exam_id = ?", id)
		if err := tx.Where("exam_recording_id IN (?)", recordingIDs).Delete(&model.ExamWarning{}).Error; err != nil {
			return err
		}
		if err := tx.Where("exam_id = ?", id).Delete(&model.ExamRecording{}).Error; err != nil {
			return err
		}
		res := tx.Where("exam_id = ? AND start_date > ?", id, now).Delete(&model.Exam{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Nothing removed: roll the cascade back.
			return errNothingDeleted
		}
		deleted = true
		return nil
	})
	if err == errNothingDeleted {
		return false, nil
	}
	return deleted, translate(err, "exam", id)
}
