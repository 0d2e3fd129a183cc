package controller

import (
	"proctor_backend/internal/model"
	"proctor_backend/internal/service"
	"proctor_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamWarningController struct {
	WarningService *service.WarningService
}

func NewExamWarningController(warningService *service.WarningService) *ExamWarningController {
	return &ExamWarningController{WarningService: warningService}
}

// WarningCreatedResponse is the reply to a new warning.
// swagger:model WarningCreatedResponse
type WarningCreatedResponse struct {
	Warning      model.ExamWarningView `json:"exam_warning"`
	WarningCount int64                 `json:"warning_count"`
	Terminated   bool                  `json:"terminated"`
}

// CreateWarning godoc
// @Summary Record a warning
// @Description Stores the warning and ends the recording when it reaches the warning limit.
// @Tags exam warnings
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.CreateWarningInput true "warning"
// @Success 201 {object} util.Response{data=WarningCreatedResponse}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/examiner/exam_warning [post]
func (c *ExamWarningController) CreateWarning(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req service.CreateWarningInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	res, err := c.WarningService.Create(ctx.Request.Context(), actor, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, WarningCreatedResponse{
		Warning:      model.NewExamWarningView(res.Warning),
		WarningCount: res.WarningCount,
		Terminated:   res.Terminated,
	})
}

// GetWarning godoc
// @Summary Get a warning
// @Tags exam warnings
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "exam warning id"
// @Success 200 {object} util.Response{data=model.ExamWarningView}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/examiner/exam_warning/{id} [get]
func (c *ExamWarningController) GetWarning(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	row, err := c.WarningService.Get(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, model.NewWarningRowView(row))
}

// ListWarnings godoc
// @Summary List warnings
// @Description Filters: exam_warning_id, exam_recording_id, user_id, exam_id, period_start, period_end. Examinees only see their own.
// @Tags exam warnings
// @Produce  json
// @Security ApiKeyAuth
// @Param   order_by query string false "exam_warning_id, exam_recording_id, warning_time, description"
// @Param   order query string false "asc or desc"
// @Param   page_number query int false "page number" default(1)
// @Param   results_length query int false "page size" default(25)
// @Success 200 {object} util.Response{data=util.PageResponse{items=[]model.ExamWarningView}}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /api/examiner/exam_warning [get]
func (c *ExamWarningController) ListWarnings(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}

	res, err := c.WarningService.List(ctx.Request.Context(), actor, listParams(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Page(ctx, model.MapViews(res.Items, model.NewWarningRowView), res.HasNext)
}

// UpdateWarning godoc
// @Summary Correct a warning
// @Tags exam warnings
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "exam warning id"
// @Param   body body service.WarningPatch true "changes"
// @Success 200 {object} util.Response{data=model.ExamWarningView}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/examiner/exam_warning/{id} [put]
func (c *ExamWarningController) UpdateWarning(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req service.WarningPatch
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	row, err := c.WarningService.Update(ctx.Request.Context(), actor, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, model.NewWarningRowView(row))
}

// DeleteWarning godoc
// @Summary Delete a warning
// @Tags exam warnings
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "exam warning id"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/examiner/exam_warning/{id} [delete]
func (c *ExamWarningController) DeleteWarning(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	if err := c.WarningService.Delete(ctx.Request.Context(), actor, id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"exam_warning_id": id})
}
