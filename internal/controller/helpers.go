package controller

import (
	"proctor_backend/internal/repository"
	"proctor_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// currentUser returns the authenticated user id, writing a 401 when there is none.
func currentUser(ctx *gin.Context) (uint, bool) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil || claims.UserID == 0 {
		util.Unauthorized(ctx)
		return 0, false
	}
	return claims.UserID, true
}

// pathID parses a positive id path parameter, writing a 400 when it is malformed.
func pathID(ctx *gin.Context, name string) (uint, bool) {
	id, err := util.ParseUintParam(name, ctx.Param(name))
	if err != nil {
		util.HandleError(ctx, err)
		return 0, false
	}
	return id, true
}

func listParams(ctx *gin.Context) repository.ListParams {
	return repository.ListParamsFromQuery(ctx.Request.URL.Query())
}
