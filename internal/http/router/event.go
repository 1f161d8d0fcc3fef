package router

import (
	"github.com/gin-gonic/gin"

	"threadpulse.app/pulse/internal/http/handler"
)

func EventRouter(router *gin.RouterGroup, handler *handler.EventHandler) {
	router.POST("/ingest", handler.Ingest)
}
