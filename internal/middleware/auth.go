package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/flashquiz/pkg/auth"
)

const UserIDKey = "userID"

// Blacklist: токены, отозванные через logout
type Blacklist interface {
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// AuthMiddleware проверяет JWT из заголовка Authorization
func AuthMiddleware(jwtManager *auth.JWTManager, blacklist Blacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		authorize(c, jwtManager, blacklist, token)
	}
}

// WSAuthMiddleware: браузер не умеет ставить заголовки на websocket, токен берём из query
func WSAuthMiddleware(jwtManager *auth.JWTManager, blacklist Blacklist) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token, _ = auth.ExtractTokenFromHeader(c.Request)
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		authorize(c, jwtManager, blacklist, token)
	}
}

func authorize(c *gin.Context, jwtManager *auth.JWTManager, blacklist Blacklist, token string) {
	blacklisted, err := blacklist.IsBlacklisted(c.Request.Context(), token)
	if err != nil || blacklisted {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token is blacklisted"})
		return
	}

	userID, err := jwtManager.UserID(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	c.Set(UserIDKey, userID)
	c.Next()
}

// UserID достаёт id пользователя, положенный AuthMiddleware
func UserID(c *gin.Context) int64 {
	return c.MustGet(UserIDKey).(int64)
}
