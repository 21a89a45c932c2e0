package app

import (
	"exam_practice_backend/docs"
	"exam_practice_backend/internal/config"
	"exam_practice_backend/internal/middleware"
	"exam_practice_backend/internal/model"
	"exam_practice_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	public.GET("/health", c.health.HealthCheck)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerStudentRoutes(authGroup, c)
		a.registerGradingRoutes(authGroup, c)
		a.registerAdminRoutes(authGroup, c)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	// 练习会话
	practice := rg.Group("/practice")
	{
		practice.POST("/sessions", c.practice.CreateSession)
		practice.GET("/sessions", c.practice.ListSessions)
		practice.GET("/sessions/:id", c.practice.GetSession)
		practice.GET("/sessions/:id/current", c.practice.GetCurrentItem)
		practice.POST("/sessions/:id/items/:itemId/submit", c.practice.SubmitItem)
		practice.POST("/sessions/:id/complete", c.practice.CompleteSession)
		practice.POST("/submit", c.practice.SubmitPractice)
	}

	// 错题本与复习
	review := rg.Group("/review")
	{
		review.GET("/wrong-book", c.review.ListWrongBook)
		review.PATCH("/wrong-book/:id/mastered", c.review.SetMastered)
		review.POST("/items/:itemId/submit", c.review.SubmitReviewItem)
	}

	// 考试
	exam := rg.Group("/exam")
	{
		exam.GET("/papers", c.exam.ListPapers)
		exam.GET("/papers/:id", c.exam.GetPaper)
		exam.POST("/papers/:id/attempts", c.exam.StartAttempt)
		exam.POST("/attempts/:id/items/:itemId/submit", c.exam.SubmitAttemptItem)
		exam.POST("/attempts/:id/finish", c.exam.FinishAttempt)
		exam.GET("/attempts/:id/report", c.exam.GetAttemptReport)
	}
}

func (a *App) registerGradingRoutes(rg *gin.RouterGroup, c *controllers) {
	grading := rg.Group("/grading")
	grading.Use(middleware.RoleMiddleware(model.Teacher))
	{
		grading.GET("/tasks", c.grading.ListTasks)
		grading.GET("/tasks/:id", c.grading.GetTask)
		grading.POST("/tasks/:id/claim", c.grading.ClaimTask)
		grading.POST("/tasks/:id/submit", c.grading.SubmitTask)
	}
}

func (a *App) registerAdminRoutes(rg *gin.RouterGroup, c *controllers) {
	admin := rg.Group("/admin")
	admin.Use(middleware.RoleMiddleware(model.Admin))
	{
		admin.GET("/exam/papers", c.exam.ListPapers)
		admin.GET("/exam/papers/:id", c.exam.GetPaper)
		admin.POST("/exam/papers", c.exam.CreatePaper)
		admin.PUT("/exam/papers/:id", c.exam.UpdatePaper)
		admin.POST("/exam/papers/:id/publish", c.exam.PublishPaper)
		admin.POST("/exam/attempts/:id/items/:itemId/grade", c.exam.GradeAttemptItem)
		admin.POST("/exam/timeout-scan", c.exam.ManualTimeoutScan)
		admin.GET("/exam/timeout-summary", c.exam.TimeoutSummary)

		admin.POST("/review/daily-tasks/generate", c.review.GenerateDailyTasks)
		admin.GET("/review/daily-tasks/summary", c.review.DailyTaskSummary)

		admin.POST("/grading/tasks/:id/reopen", c.grading.ReopenTask)
	}
}
