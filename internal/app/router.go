package app

import (
	"learnsphere_backend/docs"
	"learnsphere_backend/internal/config"
	"learnsphere_backend/internal/middleware"
	"learnsphere_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		// 课程目录
		authGroup.GET("/courses", c.course.ListCourses)
		authGroup.GET("/courses/:courseId", c.course.GetCourse)

		// 学习进度与测验门禁
		authGroup.GET("/courses/:courseId/unlock-status", c.progression.GetUnlockStatus)
		authGroup.POST("/courses/:courseId/modules/:moduleId/quiz/availability", c.progression.CheckQuizAvailability)
		authGroup.GET("/courses/:courseId/modules/:moduleId/quiz", c.progression.GetQuiz)
		authGroup.POST("/courses/:courseId/modules/:moduleId/quiz/submit", c.progression.SubmitQuiz)
		authGroup.GET("/courses/:courseId/modules/:moduleId/attempts", c.progression.ListAttempts)

		// 证书
		authGroup.GET("/certificates", c.certificate.ListMyCertificates)
		authGroup.GET("/courses/:courseId/certificate", c.certificate.GetCourseCertificate)
	}
}
