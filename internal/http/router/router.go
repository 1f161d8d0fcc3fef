package router

import (
	"github.com/gin-gonic/gin"

	"threadpulse.app/pulse/internal/http/handler"
	"threadpulse.app/pulse/internal/queue"
)

type RouterConfig struct {
	TraceHeaderName string
}

func SetupRoutes(router *gin.Engine, producer queue.Producer, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		eventHandler := handler.NewEventHandler(producer, cfg.TraceHeaderName)
		EventRouter(v1.Group("/events"), eventHandler)
	}
}
