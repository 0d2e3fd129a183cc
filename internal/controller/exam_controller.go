package controller

import (
	"proctor_backend/internal/model"
	"proctor_backend/internal/service"
	"proctor_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	ExamService *service.ExamService
}

func NewExamController(examService *service.ExamService) *ExamController {
	return &ExamController{ExamService: examService}
}

// CreateExam godoc
// @Summary Create an exam
// @Description Dates are "YYYY-MM-DD HH:MM:SS" (UTC), duration is "HH:MM:SS". The login code is generated.
// @Tags exams
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.ExamInput true "exam"
// @Success 201 {object} util.Response{data=model.ExamView}
// @Failure 400 {object} util.Response "missing or malformed fields"
// @Failure 403 {object} util.Response "examiner role required"
// @Failure 409 {object} util.Response "no unique login code"
// @Router /api/examiner/exam [post]
func (c *ExamController) CreateExam(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req service.ExamInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.ExamService.Create(ctx.Request.Context(), actor, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, model.NewExamView(exam))
}

// GetExam godoc
// @Summary Get an exam
// @Tags exams
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "exam id"
// @Success 200 {object} util.Response{data=model.ExamView}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/examiner/exam/{id} [get]
func (c *ExamController) GetExam(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	exam, err := c.ExamService.Get(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, model.NewExamView(exam))
}

// GetExamByLoginCode godoc
// @Summary Find an exam by login code
// @Description Used by examinees to join an exam. The code must match exactly.
// @Tags exams
// @Produce  json
// @Security ApiKeyAuth
// @Param   login_code path string true "login code"
// @Success 200 {object} util.Response{data=model.ExamView}
// @Failure 404 {object} util.Response
// @Router /api/examinee/exam/{login_code} [get]
func (c *ExamController) GetExamByLoginCode(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}

	exam, err := c.ExamService.GetByLoginCode(ctx.Request.Context(), actor, ctx.Param("login_code"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, model.NewExamView(exam))
}

// ListExams godoc
// @Summary List exams
// @Description Filters: exam_id, subject_id, exam_name and login_code (prefix), period_start, period_end.
// @Tags exams
// @Produce  json
// @Security ApiKeyAuth
// @Param   order_by query string false "exam_id, exam_name, subject_id, login_code, start_date, end_date, duration"
// @Param   order query string false "asc or desc"
// @Param   page_number query int false "page number" default(1)
// @Param   results_length query int false "page size" default(25)
// @Success 200 {object} util.Response{data=util.PageResponse{items=[]model.ExamView}}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /api/examiner/exam [get]
func (c *ExamController) ListExams(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}

	res, err := c.ExamService.List(ctx.Request.Context(), actor, listParams(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Page(ctx, model.MapViews(res.Items, model.NewExamView), res.HasNext)
}

// UpdateExam godoc
// @Summary Update an exam
// @Description Only exams that have not started can change. Omitted fields keep their value.
// @Tags exams
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "exam id"
// @Param   body body service.ExamPatch true "changes"
// @Success 200 {object} util.Response{data=model.ExamView}
// @Failure 400 {object} util.Response
// @Failure 405 {object} util.Response "exam already started"
// @Router /api/examiner/exam/{id} [put]
func (c *ExamController) UpdateExam(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.ExamPatch
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam, err := c.ExamService.Update(ctx.Request.Context(), actor, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, model.NewExamView(exam))
}

// DeleteExam godoc
// @Summary Delete an exam
// @Description Removes an exam that has not started, with its recordings and warnings.
// @Tags exams
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "exam id"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 405 {object} util.Response "exam already started"
// @Router /api/examiner/exam/{id} [delete]
func (c *ExamController) DeleteExam(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	if err := c.ExamService.Delete(ctx.Request.Context(), actor, id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"exam_id": id})
}
