package service

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"proctor_backend/internal/model"
	"proctor_backend/internal/repository"
	"proctor_backend/internal/util"
	"proctor_backend/pkg/logger"
	"proctor_backend/pkg/monitoring"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ActionEnd        = "end"
	ActionUpdateLink = "update_link"
)

// RecordingService owns the lifecycle of exam recordings:
// InProgress (time_ended NULL) to Ended (time_ended set, never cleared).
//
// Reads are not pure. Get and List persist the end time of any recording
// that has outlived its exam length before returning it.
type RecordingService struct {
	Recordings *repository.ExamRecordingRepository
	Exams      *repository.ExamRepository
	Engine     *repository.QueryEngine
	Guard      *AccessGuard
	Auth       *AuthService
	Storage    *StorageService
	Notifier   Notifier
	Now        func() time.Time
}

func NewRecordingService(
	recordings *repository.ExamRecordingRepository,
	exams *repository.ExamRepository,
	engine *repository.QueryEngine,
	guard *AccessGuard,
	auth *AuthService,
	storage *StorageService,
	notifier Notifier,
) *RecordingService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &RecordingService{
		Recordings: recordings,
		Exams:      exams,
		Engine:     engine,
		Guard:      guard,
		Auth:       auth,
		Storage:    storage,
		Notifier:   notifier,
		Now:        model.Now,
	}
}

// Credentials re-authenticate an examiner inside a request body.
type Credentials struct {
	UserID   uint   `json:"user_id"`
	Password string `json:"password"`
}

type CreateRecordingInput struct {
	ExamID   uint         `json:"exam_id"`
	Override *Credentials `json:"override"`
}

// Create starts a recording for the actor. A user who already has a
// recording for the exam needs an examiner's credentials to start another.
func (s *RecordingService) Create(ctx context.Context, actorID uint, in CreateRecordingInput) (*model.ExamRecording, error) {
	if in.ExamID == 0 {
		return nil, util.NewMissingFieldsError("exam_id")
	}
	if err := s.Guard.RequireRegisteredUser(ctx, actorID); err != nil {
		return nil, err
	}

	exam, err := s.Exams.FindByID(ctx, in.ExamID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	if !exam.IsOpenAt(now) {
		return nil, util.WithEntity(util.ErrOutsideExamWindow, exam.ExamID)
	}

	prior, err := s.Recordings.LatestAttempt(ctx, exam.ExamID, actorID)
	if err != nil {
		return nil, err
	}
	if prior > 0 {
		if err := s.authorizeOverride(ctx, in.Override); err != nil {
			return nil, err
		}
	}

	rec := &model.ExamRecording{
		ExamID:      exam.ExamID,
		UserID:      actorID,
		Attempt:     prior + 1,
		TimeStarted: now,
	}
	if err := s.Recordings.Create(ctx, rec); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, util.WithEntity(util.ErrDuplicateAttempt, exam.ExamID)
		}
		return nil, err
	}

	monitoring.RecordingsStarted.Inc()
	logger.Log.Info("Exam recording started",
		zap.Uint("recordingId", rec.ExamRecordingID),
		zap.Uint("examId", rec.ExamID),
		zap.Uint("userId", rec.UserID),
		zap.Int("attempt", rec.Attempt),
	)
	return rec, nil
}

func (s *RecordingService) authorizeOverride(ctx context.Context, override *Credentials) error {
	if override == nil || override.UserID == 0 || override.Password == "" {
		return util.ErrDuplicateAttempt
	}
	examiner, err := s.Auth.Authenticate(ctx, override.UserID, override.Password)
	if err != nil {
		return err
	}
	if !examiner.IsExaminer {
		return util.NewForbiddenError("override requires examiner credentials")
	}
	logger.Log.Info("Duplicate attempt authorised", zap.Uint("examiner", examiner.UserID))
	return nil
}

// Get returns one recording, ending it first if it has run out of time.
func (s *RecordingService) Get(ctx context.Context, actorID, recordingID uint) (*model.RecordingRow, error) {
	row, err := s.Recordings.FindRow(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if err := s.Guard.RequireSelfOrExaminer(ctx, actorID, row.UserID); err != nil {
		return nil, err
	}
	if err := s.expire(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// List runs the recording listing. Examinees only see their own rows.
// Overdue recordings in the page are ended before they are returned; filters
// that depend on time_ended see them ended too.
func (s *RecordingService) List(ctx context.Context, actorID uint, p repository.ListParams) (repository.PageResult[model.RecordingRow], error) {
	var empty repository.PageResult[model.RecordingRow]

	p, err := s.Guard.ScopeToSelf(ctx, actorID, p)
	if err != nil {
		return empty, err
	}

	if dependsOnEndTime(p) {
		var examID, userID uint
		if v, ok := p.Filters["exam_id"]; ok {
			examID = util.MustParseUint(v)
		}
		if v, ok := p.Filters["user_id"]; ok {
			userID = util.MustParseUint(v)
		}
		if _, err := s.sweep(ctx, examID, userID); err != nil {
			return empty, err
		}
	}

	res, err := s.Engine.Recordings(ctx, p)
	if err != nil {
		return empty, err
	}
	for i := range res.Items {
		if err := s.expire(ctx, &res.Items[i]); err != nil {
			return empty, err
		}
	}
	return res, nil
}

func dependsOnEndTime(p repository.ListParams) bool {
	if p.Filters["in_progress"] != "" || p.Filters["period_end"] != "" {
		return true
	}
	return p.OrderBy == "time_ended"
}

// expire ends row if it is overdue. The write is conditional on time_ended
// still being NULL, so concurrent readers converge on one stored value.
func (s *RecordingService) expire(ctx context.Context, row *model.RecordingRow) error {
	if !row.IsOverdue(row.ExamLength(), s.Now()) {
		return nil
	}
	finish := row.LatestFinish(row.ExamLength())
	won, err := s.Recordings.EndIfOpen(ctx, row.ExamRecordingID, finish)
	if err != nil {
		return err
	}
	if won {
		row.TimeEnded = &finish
		s.recordEnd(ctx, &row.ExamRecording, model.EndReasonExpired)
		return nil
	}

	monitoring.LostRaces.WithLabelValues(model.EndReasonExpired).Inc()
	stored, err := s.Recordings.FindByID(ctx, row.ExamRecordingID)
	if err != nil {
		return err
	}
	row.TimeEnded = stored.TimeEnded
	return nil
}

// sweep ends overdue recordings, narrowed to examID and userID when they are
// non-zero, and reports how many this call ended.
func (s *RecordingService) sweep(ctx context.Context, examID, userID uint) (int, error) {
	open, err := s.Recordings.FindOpen(ctx, examID, userID)
	if err != nil {
		return 0, err
	}
	now := s.Now()
	ended := 0
	for _, o := range open {
		finish := o.TimeStarted.Add(time.Duration(o.Duration) * time.Second)
		if now.Before(finish) {
			continue
		}
		won, err := s.Recordings.EndIfOpen(ctx, o.ExamRecordingID, finish)
		if err != nil {
			return ended, err
		}
		if !won {
			monitoring.LostRaces.WithLabelValues(model.EndReasonExpired).Inc()
			continue
		}
		ended++
		if rec, err := s.Recordings.FindByID(ctx, o.ExamRecordingID); err == nil {
			s.recordEnd(ctx, rec, model.EndReasonExpired)
		}
	}
	return ended, nil
}

// ExpireOverdue ends every recording that has run out of time. Reads do
// this on their own; calling it only makes stored end times appear sooner.
func (s *RecordingService) ExpireOverdue(ctx context.Context) (int, error) {
	return s.sweep(ctx, 0, 0)
}

// End closes a recording on request. Ending an already ended recording is
// a conflict; losing the race to another writer is reported the same way.
// The end time never passes the exam length.
func (s *RecordingService) End(ctx context.Context, actorID, recordingID uint) (*model.RecordingRow, error) {
	row, err := s.Recordings.FindRow(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if err := s.Guard.RequireSelfOrExaminer(ctx, actorID, row.UserID); err != nil {
		return nil, err
	}
	if row.TimeEnded != nil {
		return nil, util.WithEntity(util.ErrAlreadyEnded, recordingID)
	}

	now := s.Now()
	endAt, reason := now, model.EndReasonManual
	if finish := row.LatestFinish(row.ExamLength()); finish.Before(now) {
		endAt, reason = finish, model.EndReasonExpired
	}

	won, err := s.Recordings.EndIfOpen(ctx, recordingID, endAt)
	if err != nil {
		return nil, err
	}
	if !won {
		monitoring.LostRaces.WithLabelValues(model.EndReasonManual).Inc()
		return nil, util.NewConcurrencyLostError(recordingID)
	}

	row.TimeEnded = &endAt
	s.recordEnd(ctx, &row.ExamRecording, reason)
	return row, nil
}

// EndForWarnings is the warning monitor's way to end a recording. It
// reports false when the recording was already ended.
func (s *RecordingService) EndForWarnings(ctx context.Context, rec *model.ExamRecording, at time.Time) (bool, error) {
	won, err := s.Recordings.EndIfOpen(ctx, rec.ExamRecordingID, at)
	if err != nil || !won {
		return false, err
	}
	ended := *rec
	ended.TimeEnded = &at
	s.recordEnd(ctx, &ended, model.EndReasonWarningLimit)
	return true, nil
}

func (s *RecordingService) recordEnd(ctx context.Context, rec *model.ExamRecording, reason string) {
	monitoring.RecordingsEnded.WithLabelValues(reason).Inc()
	logger.Log.Info("Exam recording ended",
		zap.Uint("recordingId", rec.ExamRecordingID),
		zap.Uint("userId", rec.UserID),
		zap.String("reason", reason),
		zap.String("timeEnded", util.FormatTimePtr(rec.TimeEnded)),
	)
	s.Notifier.Notify(ctx, MonitorEvent{
		Type:   EventRecordingEnded,
		ExamID: rec.ExamID,
		Data: RecordingEndedData{
			ExamRecordingID: rec.ExamRecordingID,
			UserID:          rec.UserID,
			TimeEnded:       util.FormatTimePtr(rec.TimeEnded),
			Reason:          reason,
		},
	})
}

// UpdateLink sets the video link. It is allowed in any state.
func (s *RecordingService) UpdateLink(ctx context.Context, actorID, recordingID uint, link string) (*model.RecordingRow, error) {
	if link == "" {
		return nil, util.NewMissingFieldsError("video_link")
	}
	row, err := s.Recordings.FindRow(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if err := s.Guard.RequireSelfOrExaminer(ctx, actorID, row.UserID); err != nil {
		return nil, err
	}
	if err := s.Recordings.UpdateVideoLink(ctx, recordingID, link); err != nil {
		return nil, err
	}
	row.VideoLink = link
	if err := s.expire(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

type UpdateRecordingInput struct {
	Action    string `json:"action"`
	VideoLink string `json:"video_link"`
}

// Update dispatches on the requested action.
func (s *RecordingService) Update(ctx context.Context, actorID, recordingID uint, in UpdateRecordingInput) (*model.RecordingRow, error) {
	switch in.Action {
	case ActionEnd:
		return s.End(ctx, actorID, recordingID)
	case ActionUpdateLink:
		return s.UpdateLink(ctx, actorID, recordingID, in.VideoLink)
	case "":
		return nil, util.NewMissingFieldsError("action")
	default:
		return nil, util.NewValidationError("action must be end or update_link", "action")
	}
}

// Delete removes a recording with its warnings, then the stored video if
// video_link points into our storage. A failed object delete is only logged.
func (s *RecordingService) Delete(ctx context.Context, actorID, recordingID uint) error {
	if err := s.Guard.RequireExaminer(ctx, actorID); err != nil {
		return err
	}
	rec, err := s.Recordings.FindByID(ctx, recordingID)
	if err != nil {
		return err
	}
	if err := s.Recordings.Delete(ctx, recordingID); err != nil {
		return err
	}
	s.removeVideo(ctx, recordingID, rec.VideoLink)
	logger.Log.Info("Exam recording deleted", zap.Uint("recordingId", recordingID), zap.Uint("examiner", actorID))
	return nil
}

func (s *RecordingService) removeVideo(ctx context.Context, recordingID uint, link string) {
	if s.Storage == nil {
		return
	}
	key, ok := s.Storage.KeyForLink(link)
	if !ok {
		return
	}
	if err := s.Storage.Delete(ctx, key); err != nil {
		logger.Log.Warn("Recording video delete failed",
			zap.Uint("recordingId", recordingID), zap.String("key", key), zap.Error(err))
	}
}

// lengthTolerance absorbs encoder padding and upload latency.
const lengthTolerance = 30 * time.Second

type VideoUploadResult struct {
	Recording *model.RecordingRow `json:"-"`
	Info      *util.VideoInfo     `json:"info,omitempty"`
	// ExpectedSeconds is how long the recording has run, capped at the exam length.
	ExpectedSeconds float64 `json:"expected_seconds"`
	LengthMismatch  bool    `json:"length_mismatch"`
}

// checkVideoLength compares a probed video with the time the recording was
// open. A video longer than that is always suspicious; a shorter one only
// once the recording has ended, since a running one may upload partial video.
func checkVideoLength(row *model.RecordingRow, probed time.Duration, now time.Time) (time.Duration, bool) {
	end := now
	if row.TimeEnded != nil {
		end = *row.TimeEnded
	}
	if finish := row.LatestFinish(row.ExamLength()); finish.Before(end) {
		end = finish
	}
	expected := end.Sub(row.TimeStarted)
	if expected < 0 {
		expected = 0
	}
	if probed > expected+lengthTolerance {
		return expected, true
	}
	return expected, row.TimeEnded != nil && probed < expected-lengthTolerance
}

// UploadVideo stores a recording video and points video_link at it.
func (s *RecordingService) UploadVideo(ctx context.Context, actorID, recordingID uint, fh *multipart.FileHeader) (*VideoUploadResult, error) {
	if fh == nil {
		return nil, util.NewMissingFieldsError("video")
	}
	if !util.HasAllowedExtension(fh.Filename, util.AllowedVideoExtensions) {
		return nil, util.NewValidationError("unsupported video extension", "video")
	}
	row, err := s.Recordings.FindRow(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if err := s.Guard.RequireSelfOrExaminer(ctx, actorID, row.UserID); err != nil {
		return nil, err
	}

	src, err := fh.Open()
	if err != nil {
		return nil, util.NewValidationError("cannot read uploaded video", "video")
	}
	defer src.Close()

	mimeType, err := util.ValidateMimeType(src, []string{util.MimeVideo, util.MimeOctetStream})
	if err != nil {
		return nil, util.NewValidationError(err.Error(), "video")
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "recording-*"+filepath.Ext(fh.Filename))
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return nil, err
	}
	tmp.Close()

	info, err := util.ProbeRecording(tmp.Name())
	switch {
	case errors.Is(err, util.ErrNoVideoStream):
		return nil, util.NewValidationError(err.Error(), "video")
	case err != nil:
		// ffprobe may be missing; the upload itself is still valid.
		logger.Log.Warn("Video probe failed", zap.Uint("recordingId", recordingID), zap.Error(err))
		info = nil
	}

	key := RecordingVideoKey(row.ExamID, recordingID, fh.Filename)
	link, err := s.Storage.UploadFile(ctx, key, tmp.Name(), mimeType)
	if err != nil {
		return nil, util.NewStorageError(err)
	}

	previous := row.VideoLink
	updated, err := s.UpdateLink(ctx, actorID, recordingID, link)
	if err != nil {
		return nil, err
	}
	if previous != link {
		s.removeVideo(ctx, recordingID, previous)
	}

	res := &VideoUploadResult{Recording: updated, Info: info}
	if info != nil {
		expected, mismatch := checkVideoLength(updated, info.Duration, s.Now())
		res.ExpectedSeconds = expected.Seconds()
		res.LengthMismatch = mismatch
		if mismatch {
			logger.Log.Warn("Recording video length does not match recording time",
				zap.Uint("recordingId", recordingID),
				zap.Duration("video", info.Duration),
				zap.Duration("expected", expected),
			)
		}
	}
	return res, nil
}
