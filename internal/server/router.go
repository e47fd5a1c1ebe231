package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/courseforge-backend/internal/config"
	"github.com/yungbote/courseforge-backend/internal/handlers"
)

type RouterConfig struct {
	HTTP           config.HTTPConfig
	OutlineHandler *handlers.OutlineHandler
	CourseHandler  *handlers.CourseHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware("courseforge"))

	allowOrigins := cfg.HTTP.AllowOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	v1 := router.Group("/v1")
	{
		sessions := v1.Group("/outline/sessions")
		sessions.POST("", cfg.OutlineHandler.CreateSession)
		sessions.GET("/:id", cfg.OutlineHandler.GetSession)
		sessions.GET("/:id/events", cfg.OutlineHandler.Events)
		sessions.POST("/:id/parameters", cfg.OutlineHandler.UpdateParams)
		sessions.POST("/:id/regenerate", cfg.OutlineHandler.Regenerate)
		sessions.POST("/:id/edits", cfg.OutlineHandler.Edit)
		sessions.POST("/:id/finalize", cfg.OutlineHandler.Finalize)
		sessions.DELETE("/:id", cfg.OutlineHandler.CloseSession)

		if cfg.CourseHandler != nil {
			v1.GET("/courses", cfg.CourseHandler.ListCourses)
			v1.GET("/courses/:sourceId", cfg.CourseHandler.GetCourse)
		}
	}

	return router
}
