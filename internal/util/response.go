package util

import (
	"errors"
	"net/http"
	"proctor_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response is the envelope of every API reply.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// PageResponse is the data of every listing reply.
type PageResponse struct {
	Items          interface{} `json:"items"`
	NextPageExists bool        `json:"next_page_exists"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Page(c *gin.Context, items interface{}, hasNext bool) {
	Success(c, PageResponse{Items: items, NextPageExists: hasNext})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.Error(err), zap.String("path", c.FullPath()))
	InternalServerError(c)
}

var statusByKind = map[ErrorKind]int{
	KindValidation:      http.StatusBadRequest,
	KindUnauthenticated: http.StatusUnauthorized,
	KindForbidden:       http.StatusForbidden,
	KindNotFound:        http.StatusNotFound,
	KindConflict:        http.StatusConflict,
	KindDisallowed:      http.StatusMethodNotAllowed,
	KindConcurrencyLost: http.StatusConflict,
}

// HandleError writes the reply for a service error. Storage and unknown
// errors are logged and reported as a bare 500.
func HandleError(c *gin.Context, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Kind == KindStorage {
		LogInternalError(c, err)
		return
	}

	status, ok := statusByKind[appErr.Kind]
	if !ok {
		LogInternalError(c, err)
		return
	}

	resp := Response{Code: status, Message: appErr.Message}
	if resp.Message == "" {
		resp.Message = http.StatusText(status)
	}
	details := gin.H{}
	if len(appErr.Fields) > 0 {
		details["fields"] = appErr.Fields
	}
	if appErr.EntityID != nil {
		details["id"] = appErr.EntityID
	}
	if len(details) > 0 {
		resp.Details = details
	}
	c.JSON(status, resp)
}
