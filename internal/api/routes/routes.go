package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/yoockh/meetsense/internal/api/handlers"
	"github.com/yoockh/meetsense/internal/api/middleware"
	"github.com/yoockh/meetsense/internal/models"
)

type Deps struct {
	Session *handlers.SessionHandler
	Meeting *handlers.MeetingHandler
	WS      *handlers.WSHandler
	JWT     middleware.JWTConfig
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.JWT))

	host := middleware.RequireRole(models.RoleHost, models.RoleAdmin)

	auth.POST("/meeting/join", host, d.Meeting.Join)
	auth.POST("/meeting/close", host, d.Meeting.Close)

	auth.GET("/sessions", d.Session.List)
	auth.GET("/session/:session_id", d.Session.Get)
	auth.GET("/session/:session_id/summary", d.Session.Summary)
	auth.GET("/session/:session_id/buffer", host, d.Session.Buffered)
	auth.POST("/session/:session_id/speakers", host, d.Session.BindSpeaker)
	auth.POST("/session/:session_id/participants/:participant_id/leave", host, d.Session.Depart)
	auth.POST("/session/:session_id/leave", host, d.Session.Leave)
	auth.POST("/session/:session_id/export", host, d.Session.Export)

	// WebSocket
	auth.GET("/ws/analysis", host, d.WS.Analysis)
}
