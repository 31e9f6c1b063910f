package services

import (
	"context"

	"github.com/thereayou/flashquiz/internal/models"
)

// RoomStore: снимки комнат и привязки пользователей к комнатам
type RoomStore interface {
	GetRoom(ctx context.Context, code string) (*models.Room, error)
	RoomExists(ctx context.Context, code string) (bool, error)
	RoomCodes(ctx context.Context) ([]string, error)
	SaveRoom(ctx context.Context, room *models.Room) error
	DeleteRoom(ctx context.Context, code string) error
	SetUserRoom(ctx context.Context, userID int64, code string) error
	UserRoom(ctx context.Context, userID int64) (string, error)
	ClearUserRoom(ctx context.Context, userID int64) error
}

// ContentService отдаёт коллекции и карточки
type ContentService interface {
	Collection(ctx context.Context, collectionID int64) (title string, cardIDs []int64, err error)
	Card(ctx context.Context, cardID int64) (*models.Card, error)
}

type Notifier interface {
	Send(ctx context.Context, userID int64, n models.Notification) (models.MessageRef, error)
	Edit(ctx context.Context, ref models.MessageRef, n models.Notification) error
}
