package controller

import (
	"io"
	"net/http"
	"proctor_backend/internal/model"
	"proctor_backend/internal/service"
	"proctor_backend/internal/util"

	"github.com/gin-gonic/gin"
)

const maxFrameSize = 8 << 20

type ExamRecordingController struct {
	RecordingService *service.RecordingService
	FrameService     *service.FrameService
}

func NewExamRecordingController(recordingService *service.RecordingService, frameService *service.FrameService) *ExamRecordingController {
	return &ExamRecordingController{
		RecordingService: recordingService,
		FrameService:     frameService,
	}
}

// CreateRecording godoc
// @Summary Start an exam recording
// @Description Starts the caller's attempt. A second attempt needs an examiner's credentials in override.
// @Tags exam recordings
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.CreateRecordingInput true "recording"
// @Success 201 {object} util.Response{data=model.ExamRecordingView}
// @Failure 400 {object} util.Response
// @Failure 401 {object} util.Response "override credentials rejected"
// @Failure 404 {object} util.Response "exam not found"
// @Failure 409 {object} util.Response "outside the exam window or duplicate attempt"
// @Router /api/examinee/exam_recording [post]
func (c *ExamRecordingController) CreateRecording(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req service.CreateRecordingInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	rec, err := c.RecordingService.Create(ctx.Request.Context(), actor, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, model.NewExamRecordingView(rec))
}

// GetRecording godoc
// @Summary Get an exam recording
// @Description A recording past its exam length is ended before it is returned.
// @Tags exam recordings
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "exam recording id"
// @Success 200 {object} util.Response{data=model.RecordingRowView}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/examinee/exam_recording/{id} [get]
func (c *ExamRecordingController) GetRecording(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	row, err := c.RecordingService.Get(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, model.NewRecordingRowView(row))
}

// ListRecordings godoc
// @Summary List exam recordings
// @Description Filters: exam_recording_id, exam_id, user_id, subject_id, in_progress, first_name, last_name, exam_name, login_code, period_start, period_end, warning_count, min_warnings, max_warnings, has_warnings. Examinees only see their own.
// @Tags exam recordings
// @Produce  json
// @Security ApiKeyAuth
// @Param   order_by query string false "e.g. time_started, time_ended, warning_count"
// @Param   order query string false "asc or desc"
// @Param   page_number query int false "page number" default(1)
// @Param   results_length query int false "page size" default(25)
// @Success 200 {object} util.Response{data=util.PageResponse{items=[]model.RecordingRowView}}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /api/examinee/exam_recording [get]
func (c *ExamRecordingController) ListRecordings(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}

	res, err := c.RecordingService.List(ctx.Request.Context(), actor, listParams(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Page(ctx, model.MapViews(res.Items, model.NewRecordingRowView), res.HasNext)
}

// ListExaminees godoc
// @Summary Examinee overview
// @Description The recording listing as user, recording, exam and warning count tuples. Accepts the recording filters.
// @Tags examiner
// @Produce  json
// @Security ApiKeyAuth
// @Param   in_progress query bool false "only running (true) or finished (false) recordings"
// @Param   page_number query int false "page number" default(1)
// @Param   results_length query int false "page size" default(25)
// @Success 200 {object} util.Response{data=util.PageResponse{items=[]model.ExamineeView}}
// @Failure 403 {object} util.Response
// @Router /api/examiner/examinee [get]
func (c *ExamRecordingController) ListExaminees(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}

	res, err := c.RecordingService.List(ctx.Request.Context(), actor, listParams(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Page(ctx, model.MapViews(res.Items, model.NewExamineeView), res.HasNext)
}

// UpdateRecording godoc
// @Summary Change an exam recording
// @Description action "end" ends the recording (409 if already ended); "update_link" sets video_link in any state.
// @Tags exam recordings
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "exam recording id"
// @Param   body body service.UpdateRecordingInput true "action"
// @Success 200 {object} util.Response{data=model.RecordingRowView}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 409 {object} util.Response "already ended"
// @Router /api/examinee/exam_recording/{id} [put]
func (c *ExamRecordingController) UpdateRecording(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.UpdateRecordingInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	row, err := c.RecordingService.Update(ctx.Request.Context(), actor, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, model.NewRecordingRowView(row))
}

// DeleteRecording godoc
// @Summary Delete an exam recording
// @Tags examiner
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "exam recording id"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/examiner/exam_recording/{id} [delete]
func (c *ExamRecordingController) DeleteRecording(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	if err := c.RecordingService.Delete(ctx.Request.Context(), actor, id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"exam_recording_id": id})
}

// UploadVideo godoc
// @Summary Upload the recording video
// @Description Stores the video and points video_link at it.
// @Tags exam recordings
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "exam recording id"
// @Param   video formData file true "video file"
// @Success 200 {object} util.Response{data=object}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /api/examinee/exam_recording/{id}/video [post]
func (c *ExamRecordingController) UploadVideo(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	file, err := ctx.FormFile("video")
	if err != nil {
		util.HandleError(ctx, util.NewMissingFieldsError("video"))
		return
	}

	res, err := c.RecordingService.UploadVideo(ctx.Request.Context(), actor, id, file)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"exam_recording":   model.NewRecordingRowView(res.Recording),
		"video":            res.Info,
		"expected_seconds": res.ExpectedSeconds,
		"length_mismatch":  res.LengthMismatch,
	})
}

// AnalyzeFrame godoc
// @Summary Analyze a webcam frame
// @Description Runs object detection (and face recognition when configured) on the frame and files a warning per finding.
// @Tags exam recordings
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "exam recording id"
// @Param   image formData file true "frame"
// @Success 200 {object} util.Response{data=object}
// @Failure 400 {object} util.Response
// @Failure 409 {object} util.Response "recording already ended"
// @Router /api/examinee/exam_recording/{id}/frame [post]
func (c *ExamRecordingController) AnalyzeFrame(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	fh, err := ctx.FormFile("image")
	if err != nil {
		util.HandleError(ctx, util.NewMissingFieldsError("image"))
		return
	}
	if fh.Size > maxFrameSize {
		util.Error(ctx, http.StatusRequestEntityTooLarge, "frame too large")
		return
	}
	src, err := fh.Open()
	if err != nil {
		util.HandleError(ctx, util.NewValidationError("cannot read frame", "image"))
		return
	}
	defer src.Close()
	if _, err := util.ValidateMimeType(src, []string{util.MimeImage}); err != nil {
		util.HandleError(ctx, util.NewValidationError(err.Error(), "image"))
		return
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	image, err := io.ReadAll(io.LimitReader(src, maxFrameSize))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	analysis, err := c.FrameService.Analyze(ctx.Request.Context(), actor, id, image, fh.Filename)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	warnings := make([]model.ExamWarningView, 0, len(analysis.Warnings))
	var count int64
	for _, w := range analysis.Warnings {
		warnings = append(warnings, model.NewExamWarningView(w.Warning))
		count = w.WarningCount
	}
	util.Success(ctx, gin.H{
		"detections":    analysis.Detections,
		"findings":      analysis.Findings,
		"warnings":      warnings,
		"warning_count": count,
		"terminated":    analysis.Terminated,
	})
}
