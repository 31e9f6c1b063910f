package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/thereayou/flashquiz/internal/models"
)

// Transport это канал доставки, бот или websocket
type Transport interface {
	Send(ctx context.Context, userID int64, n models.Notification) (models.MessageRef, error)
	Edit(ctx context.Context, ref models.MessageRef, n models.Notification) error
}

type Presence interface {
	Online(userID int64) bool
}

// Router шлёт уведомление в открытый websocket, если он есть, иначе в Telegram.
// Правка уходит туда же, откуда пришло исходное сообщение.
type Router struct {
	telegram Transport
	ws       Transport
	presence Presence
	logger   *slog.Logger
}

func NewRouter(telegram, ws Transport, presence Presence, logger *slog.Logger) *Router {
	return &Router{telegram: telegram, ws: ws, presence: presence, logger: logger.With("component", "notify")}
}

func (r *Router) Send(ctx context.Context, userID int64, n models.Notification) (models.MessageRef, error) {
	if r.ws != nil && r.presence != nil && r.presence.Online(userID) {
		ref, err := r.ws.Send(ctx, userID, n)
		if err == nil {
			return ref, nil
		}
		// соединение могло закрыться между проверкой и отправкой
		r.logger.Debug("websocket send failed, falling back to telegram", "user_id", userID, "error", err)
	}
	if r.telegram == nil {
		return models.MessageRef{}, fmt.Errorf("%w: no transport for user %d", models.ErrDelivery, userID)
	}
	return r.telegram.Send(ctx, userID, n)
}

func (r *Router) Edit(ctx context.Context, ref models.MessageRef, n models.Notification) error {
	var t Transport
	switch ref.Transport {
	case models.TransportWebSocket:
		t = r.ws
	case models.TransportTelegram, "":
		t = r.telegram
	}
	if t == nil {
		return fmt.Errorf("%w: unknown transport %q", models.ErrDelivery, ref.Transport)
	}
	return t.Edit(ctx, ref, n)
}
