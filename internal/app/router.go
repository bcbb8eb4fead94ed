package app

import (
	"mooc_exam_backend/docs"
	"mooc_exam_backend/internal/config"
	"mooc_exam_backend/internal/middleware"
	"mooc_exam_backend/internal/model"
	"mooc_exam_backend/internal/util"
	"mooc_exam_backend/pkg/monitoring"
	"mooc_exam_backend/pkg/security"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		answerLimit := security.KeyedRateLimiter(cfg.RateLimit.AnswersPerMinute, time.Minute, learnerKey)
		registerLearnerRoutes(authGroup, c, answerLimit)
		registerTeacherRoutes(authGroup, c)
	}
}

// learnerKey buckets authenticated requests per learner instead of per IP.
func learnerKey(c *gin.Context) string {
	if u := util.GetUserFromContext(c); u != nil {
		return "user:" + strconv.FormatUint(uint64(u.UserID), 10)
	}
	return c.ClientIP()
}

func registerLearnerRoutes(api *gin.RouterGroup, c *controllers, answerLimit gin.HandlerFunc) {
	exams := api.Group("/exams")
	{
		exams.POST("/:examId/start", c.exam.StartExam)
		exams.GET("/:examId/attempts", c.exam.ListAttempts)
		exams.GET("/instances/:instanceId", c.exam.GetInstance)
		exams.POST("/instances/:instanceId/answer", answerLimit, c.exam.SaveAnswer)
		exams.POST("/instances/:instanceId/submit", c.exam.Submit)
		exams.GET("/instances/:instanceId/results", c.exam.GetResults)
	}

	// 学习页面的考试入口，按单元发起，与 /exams 共用同一套实例管理
	learning := api.Group("/learning/exams")
	{
		learning.POST("/:unitId/start", c.exam.StartUnitExam)
		learning.GET("/attempts/:instanceId", c.exam.GetInstance)
		learning.POST("/attempts/:instanceId/answer", answerLimit, c.exam.SaveAnswer)
		learning.POST("/attempts/:instanceId/submit", c.exam.Submit)
		learning.GET("/attempts/:instanceId/result", c.exam.GetResults)
	}

	api.GET("/courses/:courseId/progress", c.progress.GetCourseProgress)
	api.GET("/notifications", c.progress.ListNotifications)
	api.POST("/notifications/:id/read", c.progress.MarkNotificationRead)
}

func registerTeacherRoutes(api *gin.RouterGroup, c *controllers) {
	teacher := api.Group("/teacher")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		teacher.PUT("/units/:unitId/exam", c.examDefinition.UpsertExam)
		teacher.GET("/units/:unitId/exam", c.examDefinition.GetExam)
		teacher.GET("/exams/:examId/stats", c.examDefinition.GetStats)

		teacher.POST("/units/:unitId/questions", c.questionBank.CreateQuestion)
		teacher.GET("/units/:unitId/questions", c.questionBank.ListQuestions)
		teacher.POST("/units/:unitId/questions/import", c.questionBank.ImportQuestions)
		teacher.PUT("/questions/:id", c.questionBank.UpdateQuestion)
		teacher.DELETE("/questions/:id", c.questionBank.DeleteQuestion)
	}
}
