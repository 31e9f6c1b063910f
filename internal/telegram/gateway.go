package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/thereayou/flashquiz/internal/models"
)

// MessageSender: часть tgbotapi.BotAPI, которой пользуется бот
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Gateway доставляет уведомления комнат личными сообщениями бота
type Gateway struct {
	api    MessageSender
	logger *slog.Logger
}

func NewGateway(api MessageSender, logger *slog.Logger) *Gateway {
	return &Gateway{api: api, logger: logger.With("component", "telegram", "transport", models.TransportTelegram)}
}

func (g *Gateway) Send(_ context.Context, userID int64, n models.Notification) (models.MessageRef, error) {
	msg := tgbotapi.NewMessage(userID, n.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if len(n.Buttons) > 0 {
		msg.ReplyMarkup = inlineKeyboard(n.Buttons)
	}

	sent, err := g.api.Send(msg)
	if err != nil {
		return models.MessageRef{}, fmt.Errorf("%w: send to %d: %w", models.ErrDelivery, userID, err)
	}
	return models.MessageRef{Transport: models.TransportTelegram, ChatID: userID, MessageID: int64(sent.MessageID)}, nil
}

func (g *Gateway) Edit(_ context.Context, ref models.MessageRef, n models.Notification) error {
	var edit tgbotapi.EditMessageTextConfig
	if len(n.Buttons) > 0 {
		edit = tgbotapi.NewEditMessageTextAndMarkup(ref.ChatID, int(ref.MessageID), n.Text, inlineKeyboard(n.Buttons))
	} else {
		edit = tgbotapi.NewEditMessageText(ref.ChatID, int(ref.MessageID), n.Text)
	}
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true

	if _, err := g.api.Request(edit); err != nil {
		if notModified(err) {
			return nil
		}
		return fmt.Errorf("%w: edit %d/%d: %w", models.ErrDelivery, ref.ChatID, ref.MessageID, err)
	}
	return nil
}

// SendPhoto отправляет PNG, например QR-код приглашения
func (g *Gateway) SendPhoto(chatID int64, name string, png []byte, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: png})
	photo.Caption = caption
	if _, err := g.api.Send(photo); err != nil {
		return fmt.Errorf("%w: photo to %d: %w", models.ErrDelivery, chatID, err)
	}
	return nil
}

// Telegram отвечает ошибкой, если текст и кнопки не изменились
func notModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}
