package main

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/thereayou/flashquiz/internal/handlers"
	"github.com/thereayou/flashquiz/internal/middleware"
	"github.com/thereayou/flashquiz/pkg/auth"
)

type Endpoints struct {
	Auth      *handlers.AuthHandler
	Rooms     *handlers.RoomHandler
	Users     *handlers.UserHandler
	WebSocket *handlers.WebSocketHandler
	// nil, если бот работает long polling'ом
	Webhook *handlers.TelegramWebhook

	JWT       *auth.JWTManager
	Blacklist middleware.Blacklist
	Origins   []string
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func APIEndpoints(r *gin.Engine, e Endpoints) {
	r.Use(cors.New(corsConfig(e.Origins)))

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", e.Auth.Login)
		authGroup.POST("/logout", middleware.AuthMiddleware(e.JWT, e.Blacklist), e.Auth.Logout)
	}

	// приглашение открывается без авторизации
	r.GET("/rooms/:code/qr", e.Rooms.GetRoomQR)

	if e.Webhook != nil {
		r.POST("/telegram/webhook", e.Webhook.Receive)
	}

	r.GET("/ws", middleware.WSAuthMiddleware(e.JWT, e.Blacklist), e.WebSocket.HandleWebSocket)

	api := r.Group("/api/v1", middleware.AuthMiddleware(e.JWT, e.Blacklist))
	{
		api.GET("/me", e.Users.GetMe)
		api.GET("/collections", e.Users.GetCollections)

		api.POST("/rooms", e.Rooms.CreateRoom)
		api.GET("/rooms/:code", e.Rooms.GetRoom)
		api.POST("/rooms/:code/join", e.Rooms.JoinRoom)
		api.POST("/rooms/:code/leave", e.Rooms.LeaveRoom)
		api.POST("/rooms/:code/start", e.Rooms.StartRoom)
		api.POST("/rooms/:code/cancel", e.Rooms.CancelRoom)
		api.PATCH("/rooms/:code/settings", e.Rooms.UpdateSettings)
		api.POST("/rooms/:code/answer", e.Rooms.SubmitAnswer)
		api.GET("/rooms/:code/scoreboard", e.Rooms.GetScoreboard)
	}
}
