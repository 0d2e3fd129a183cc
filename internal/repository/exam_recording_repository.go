package repository

import (
	"context"
	"proctor_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type ExamRecordingRepository struct {
	DB *gorm.DB
}

func NewExamRecordingRepository(db *gorm.DB) *ExamRecordingRepository {
	return &ExamRecordingRepository{DB: db}
}

// Create inserts a recording. A second recording with the same attempt
// number comes back as a conflict that unwraps to gorm.ErrDuplicatedKey.
func (r *ExamRecordingRepository) Create(ctx context.Context, rec *model.ExamRecording) error {
	return translate(r.DB.WithContext(ctx).Create(rec).Error, "exam recording", rec.ExamID)
}

func (r *ExamRecordingRepository) FindByID(ctx context.Context, id uint) (*model.ExamRecording, error) {
	var rec model.ExamRecording
	if err := r.DB.WithContext(ctx).First(&rec, "exam_recording_id = ?", id).Error; err != nil {
		return nil, translate(err, "exam recording", id)
	}
	return &rec, nil
}

// FindRow loads a recording the same way the listing does.
func (r *ExamRecordingRepository) FindRow(ctx context.Context, id uint) (*model.RecordingRow, error) {
	var rows []model.RecordingRow
	err := recordingBase(r.DB.WithContext(ctx)).
		Where("exam_recordings.exam_recording_id = ?", id).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, translate(err, "exam recording", id)
	}
	if len(rows) == 0 {
		return nil, translate(gorm.ErrRecordNotFound, "exam recording", id)
	}
	return &rows[0], nil
}

// LatestAttempt returns the highest attempt number a user has for an exam,
// 0 when there is none. Deleted attempts leave gaps, so this is not a count.
func (r *ExamRecordingRepository) LatestAttempt(ctx context.Context, examID, userID uint) (int, error) {
	var latest int
	err := r.DB.WithContext(ctx).Model(&model.ExamRecording{}).
		Select("COALESCE(MAX(attempt), 0)").
		Where("exam_id = ? AND user_id = ?", examID, userID).
		Scan(&latest).Error
	return latest, translate(err, "exam recording", examID)
}

// EndIfOpen sets time_ended only if it is still NULL. It reports whether
// this call was the one that ended the recording.
func (r *ExamRecordingRepository) EndIfOpen(ctx context.Context, id uint, endedAt time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.ExamRecording{}).
		Where("exam_recording_id = ? AND time_ended IS NULL", id).
		Update("time_ended", endedAt)
	if res.Error != nil {
		return false, translate(res.Error, "exam recording", id)
	}
	return res.RowsAffected == 1, nil
}

func (r *ExamRecordingRepository) UpdateVideoLink(ctx context.Context, id uint, link string) error {
	res := r.DB.WithContext(ctx).Model(&model.ExamRecording{}).
		Where("exam_recording_id = ?", id).
		Update("video_link", link)
	if res.Error != nil {
		return translate(res.Error, "exam recording", id)
	}
	if res.RowsAffected == 0 {
		_, err := r.FindByID(ctx, id)
		return err
	}
	return nil
}

// Delete removes a recording and its warnings.
func (r *ExamRecordingRepository) Delete(ctx context.Context, id uint) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("exam_recording_id = ?", id).Delete(&model.ExamWarning{}).Error; err != nil {
			return err
		}
		res := tx.Where("exam_recording_id = ?", id).Delete(&model.ExamRecording{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return translate(err, "exam recording", id)
}

// OpenRecording is an unfinished recording with the length of its exam.
type OpenRecording struct {
	ExamRecordingID uint
	TimeStarted     time.Time
	Duration        int64
}

// FindOpen lists unfinished recordings. Non-zero examID and userID narrow
// the result to that exam and that user.
func (r *ExamRecordingRepository) FindOpen(ctx context.Context, examID, userID uint) ([]OpenRecording, error) {
	var open []OpenRecording
	q := r.DB.WithContext(ctx).Table("exam_recordings").
		Select("exam_recordings.exam_recording_id, exam_recordings.time_started, exams.duration").
		Joins("JOIN exams ON exams.exam_id = exam_recordings.exam_id").
		Where("exam_recordings.time_ended IS NULL")
	if examID != 0 {
		q = q.Where("exam_recordings.exam_id = ?", examID)
	}
	if userID != 0 {
		q = q.Where("exam_recordings.user_id = ?", userID)
	}
	err := q.Scan(&open).Error
	return open, translate(err, "exam recording", nil)
}
