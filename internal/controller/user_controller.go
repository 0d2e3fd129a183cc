package controller

import (
	"proctor_backend/internal/model"
	"proctor_backend/internal/service"
	"proctor_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	UserService *service.UserService
}

func NewUserController(userService *service.UserService) *UserController {
	return &UserController{UserService: userService}
}

// GetUser godoc
// @Summary Get a user
// @Description Examiners may read anyone, examinees only themselves
// @Tags users
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "user id"
// @Success 200 {object} util.Response{data=model.UserView}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/users/{id} [get]
func (c *UserController) GetUser(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	user, err := c.UserService.Get(ctx.Request.Context(), actor, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, model.NewUserView(user))
}

// ListUsers godoc
// @Summary List users
// @Description Filters: user_id, is_examiner, first_name, last_name (prefix). Examinees only see themselves.
// @Tags users
// @Produce  json
// @Security ApiKeyAuth
// @Param   order_by query string false "user_id, first_name, last_name, is_examiner"
// @Param   order query string false "asc or desc"
// @Param   page_number query int false "page number" default(1)
// @Param   results_length query int false "page size" default(25)
// @Success 200 {object} util.Response{data=util.PageResponse{items=[]model.UserView}}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /api/users [get]
func (c *UserController) ListUsers(ctx *gin.Context) {
	actor, ok := currentUser(ctx)
	if !ok {
		return
	}

	res, err := c.UserService.List(ctx.Request.Context(), actor, listParams(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Page(ctx, model.MapViews(res.Items, model.NewUserView), res.HasNext)
}
