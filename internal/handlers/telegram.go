package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

// TelegramWebhook принимает обновления бота в режиме вебхука
type TelegramWebhook struct {
	updates UpdateHandler
}

func NewTelegramWebhook(updates UpdateHandler) *TelegramWebhook {
	return &TelegramWebhook{updates: updates}
}

func (h *TelegramWebhook) Receive(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.updates.HandleUpdate(c.Request.Context(), update)
	c.Status(http.StatusOK)
}
