package controller

import (
	"proctor_backend/internal/model"
	"proctor_backend/internal/service"
	"proctor_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	AuthService *service.AuthService
}

func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{AuthService: authService}
}

// RegisterRequest defines model for registration
// swagger:model RegisterRequest
type RegisterRequest struct {
	UserID             uint   `json:"user_id" example:"1001"`
	FirstName          string `json:"first_name" example:"Ada"`
	LastName           string `json:"last_name" example:"Lovelace"`
	Password           string `json:"password"`
	ExaminerPassphrase string `json:"examiner_passphrase"`
	AuthImage          string `json:"auth_image"`
}

// Register godoc
// @Summary Register a user
// @Description Creates an examinee, or an examiner when the examiner passphrase matches
// @Tags auth
// @Accept  json
// @Produce  json
// @Param   body body RegisterRequest true "registration"
// @Success 201 {object} util.Response{data=model.UserView} "created"
// @Failure 400 {object} util.Response "missing fields or wrong passphrase"
// @Failure 409 {object} util.Response "user_id already registered"
// @Failure 500 {object} util.Response "internal error"
// @Router /api/register [post]
func (c *AuthController) Register(ctx *gin.Context) {
	var req RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user, err := c.AuthService.Register(ctx.Request.Context(), service.RegisterInput(req))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Created(ctx, model.NewUserView(user))
}

// swagger:model LoginRequest
type LoginRequest struct {
	UserID   uint   `json:"user_id" example:"1001"`
	Password string `json:"password"`
}

// Login godoc
// @Summary Log in
// @Description Checks the credentials and returns a bearer token
// @Tags auth
// @Accept  json
// @Produce  json
// @Param   body body LoginRequest true "credentials"
// @Success 200 {object} util.Response{data=service.LoginResult} "token"
// @Failure 400 {object} util.Response "malformed body"
// @Failure 401 {object} util.Response "invalid credentials"
// @Router /api/login [post]
func (c *AuthController) Login(ctx *gin.Context) {
	var req LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	res, err := c.AuthService.Login(ctx.Request.Context(), req.UserID, req.Password)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, res)
}
