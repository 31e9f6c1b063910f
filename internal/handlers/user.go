package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/flashquiz/internal/middleware"
	"github.com/thereayou/flashquiz/internal/models"
)

type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListUserCollections(ctx context.Context, ownerID int64) ([]models.Collection, error)
}

type UserHandler struct {
	users UserDirectory
}

func NewUserHandler(users UserDirectory) *UserHandler {
	return &UserHandler{users: users}
}

// GetMe возвращает информацию о текущем пользователе
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"first_name":   user.FirstName,
		"created_at":   user.CreatedAt,
		"last_seen_at": user.LastSeenAt,
	})
}

// GetCollections: коллекции, из которых можно создать комнату
func (h *UserHandler) GetCollections(c *gin.Context) {
	cols, err := h.users.ListUserCollections(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(cols))
	for _, col := range cols {
		out = append(out, gin.H{
			"id":         col.ID,
			"title":      col.Title,
			"created_at": col.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"collections": out})
}
