package controller

import (
	"proctor_backend/internal/service"
	"proctor_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// MonitorController serves the live feed of warnings and ended recordings.
type MonitorController struct {
	Hub *service.MonitorHub
}

func NewMonitorController(hub *service.MonitorHub) *MonitorController {
	return &MonitorController{Hub: hub}
}

// HandleWS godoc
// @Summary Live monitoring socket
// @Description Streams WARNING_CREATED and RECORDING_ENDED events. Send {"type":"SUBSCRIBE","data":{"exam_id":N}} to narrow the feed.
// @Tags examiner
// @Security ApiKeyAuth
// @Param   token query string true "JWT Token"
// @Param   exam_id query int false "only this exam"
// @Success 101 {string} string "Switching Protocols"
// @Router /api/examiner/monitor/ws [get]
func (ctrl *MonitorController) HandleWS(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var examID uint
	if raw := c.Query("exam_id"); raw != "" {
		id, err := util.ParseUintParam("exam_id", raw)
		if err != nil {
			util.HandleError(c, err)
			return
		}
		examID = id
	}
	service.ServeWs(ctrl.Hub, c.Writer, c.Request, userID, examID)
}
