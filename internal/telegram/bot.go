package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot получает обновления long polling'ом или через вебхук
type Bot struct {
	api     *tgbotapi.BotAPI
	handler *Handler
	logger  *slog.Logger
}

func NewBot(api *tgbotapi.BotAPI, handler *Handler, logger *slog.Logger) *Bot {
	return &Bot{api: api, handler: handler, logger: logger.With("component", "telegram")}
}

// DeepLinkBase: префикс ссылки приглашения, например https://t.me/quizbot?start=
func DeepLinkBase(api *tgbotapi.BotAPI) string {
	if api.Self.UserName == "" {
		return ""
	}
	return fmt.Sprintf("https://t.me/%s?start=", api.Self.UserName)
}

// SetWebhook переключает бота на вебхук; пустой url: снять вебхук и работать polling'ом
func (b *Bot) SetWebhook(url string) error {
	if url == "" {
		_, err := b.api.Request(tgbotapi.DeleteWebhookConfig{})
		return err
	}
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return err
	}
	_, err = b.api.Request(wh)
	return err
}

// Run читает обновления, пока не отменён ctx
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("bot started", "username", b.api.Self.UserName)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handler.HandleUpdate(ctx, update)
		}
	}
}

func (b *Bot) Handler() *Handler {
	return b.handler
}
