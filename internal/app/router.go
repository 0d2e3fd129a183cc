package app

import (
	"proctor_backend/docs"
	"proctor_backend/internal/config"
	"proctor_backend/internal/middleware"
	"proctor_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")
	api.Use(middleware.ConfigMiddleware(cfg))

	// 1. public
	a.registerPublicRoutes(api, c)

	// 2. any registered user
	authGroup := api.Group("")
	authGroup.Use(middleware.AuthMiddleware())
	{
		a.registerExamineeRoutes(authGroup, c)

		// 3. examiners
		a.registerExaminerRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(api *gin.RouterGroup, c *controllers) {
	api.GET("/health", c.health.HealthCheck)
	api.POST("/register", c.auth.Register)
	api.POST("/login", c.auth.Login)
}

// Examinee routes check ownership per request; examiners may use them too.
func (a *App) registerExamineeRoutes(group *gin.RouterGroup, c *controllers) {
	group.GET("/users", c.user.ListUsers)
	group.GET("/users/:id", c.user.GetUser)

	examinee := group.Group("/examinee")
	{
		examinee.GET("/exam/:login_code", c.exam.GetExamByLoginCode)

		examinee.POST("/exam_recording", c.recording.CreateRecording)
		examinee.GET("/exam_recording", c.recording.ListRecordings)
		examinee.GET("/exam_recording/:id", c.recording.GetRecording)
		examinee.PUT("/exam_recording/:id", c.recording.UpdateRecording)
		examinee.POST("/exam_recording/:id/video", c.recording.UploadVideo)
		examinee.POST("/exam_recording/:id/frame", c.recording.AnalyzeFrame)

		examinee.GET("/exam_warning", c.warning.ListWarnings)
		examinee.GET("/exam_warning/:id", c.warning.GetWarning)
	}
}

func (a *App) registerExaminerRoutes(group *gin.RouterGroup, c *controllers) {
	examiner := group.Group("/examiner")
	examiner.Use(middleware.ExaminerMiddleware(a.services.guard))
	{
		examiner.POST("/exam", c.exam.CreateExam)
		examiner.GET("/exam", c.exam.ListExams)
		examiner.GET("/exam/:id", c.exam.GetExam)
		examiner.PUT("/exam/:id", c.exam.UpdateExam)
		examiner.DELETE("/exam/:id", c.exam.DeleteExam)

		examiner.GET("/exam_recording", c.recording.ListRecordings)
		examiner.DELETE("/exam_recording/:id", c.recording.DeleteRecording)
		examiner.GET("/examinee", c.recording.ListExaminees)

		examiner.POST("/exam_warning", c.warning.CreateWarning)
		examiner.GET("/exam_warning", c.warning.ListWarnings)
		examiner.GET("/exam_warning/:id", c.warning.GetWarning)
		examiner.PUT("/exam_warning/:id", c.warning.UpdateWarning)
		examiner.DELETE("/exam_warning/:id", c.warning.DeleteWarning)

		examiner.GET("/monitor/ws", c.monitor.HandleWS)
	}
}
