package repository

import (
	"context"
	"proctor_backend/internal/model"

	"gorm.io/gorm"
)

type ExamWarningRepository struct {
	DB *gorm.DB
}

func NewExamWarningRepository(db *gorm.DB) *ExamWarningRepository {
	return &ExamWarningRepository{DB: db}
}

func (r *ExamWarningRepository) Create(ctx context.Context, w *model.ExamWarning) error {
	return translate(r.DB.WithContext(ctx).Create(w).Error, "exam warning", w.ExamRecordingID)
}

func (r *ExamWarningRepository) FindByID(ctx context.Context, id uint) (*model.ExamWarning, error) {
	var w model.ExamWarning
	if err := r.DB.WithContext(ctx).First(&w, "exam_warning_id = ?", id).Error; err != nil {
		return nil, translate(err, "exam warning", id)
	}
	return &w, nil
}

// FindRow loads a warning with the owner of its recording.
func (r *ExamWarningRepository) FindRow(ctx context.Context, id uint) (*model.WarningRow, error) {
	var rows []model.WarningRow
	err := warningBase(r.DB.WithContext(ctx)).
		Where("exam_warnings.exam_warning_id = ?", id).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, translate(err, "exam warning", id)
	}
	if len(rows) == 0 {
		return nil, translate(gorm.ErrRecordNotFound, "exam warning", id)
	}
	return &rows[0], nil
}

// CountPrior counts the warnings of a recording other than excludeID.
func (r *ExamWarningRepository) CountPrior(ctx context.Context, recordingID, excludeID uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.ExamWarning{}).
		Where("exam_recording_id = ? AND exam_warning_id <> ?", recordingID, excludeID).
		Count(&count).Error
	return count, translate(err, "exam warning", recordingID)
}

func (r *ExamWarningRepository) Update(ctx context.Context, id uint, updates map[string]interface{}) error {
	res := r.DB.WithContext(ctx).Model(&model.ExamWarning{}).
		Where("exam_warning_id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error, "exam warning", id)
	}
	if res.RowsAffected == 0 {
		// Updates with unchanged values report zero rows on mysql.
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *ExamWarningRepository) Delete(ctx context.Context, id uint) error {
	res := r.DB.WithContext(ctx).Where("exam_warning_id = ?", id).Delete(&model.ExamWarning{})
	if res.Error != nil {
		return translate(res.Error, "exam warning", id)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "exam warning", id)
	}
	return nil
}
