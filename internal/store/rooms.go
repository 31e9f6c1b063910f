package store

import (
	"context"
	"strings"

	"github.com/thereayou/flashquiz/internal/models"
)

type RoomStore struct {
	kv *KV
}

func NewRoomStore(kv *KV) *RoomStore {
	return &RoomStore{kv: kv}
}

type userRoomRecord struct {
	RoomID string `json:"room_id"`
}

func (s *RoomStore) roomKey(code string) string {
	return s.kv.Key("online", "room", code)
}

func (s *RoomStore) userRoomKey(userID int64) string {
	return s.kv.Key("online", "user_room", userID)
}

// GetRoom возвращает models.ErrNotFound, если комнаты нет (или истёк TTL)
func (s *RoomStore) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	if err := s.kv.GetJSON(ctx, s.roomKey(code), &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *RoomStore) RoomExists(ctx context.Context, code string) (bool, error) {
	return s.kv.Exists(ctx, s.roomKey(code))
}

// RoomCodes: коды всех комнат, у которых ещё не истёк TTL
func (s *RoomStore) RoomCodes(ctx context.Context) ([]string, error) {
	prefix := s.roomKey("")
	keys, err := s.kv.Scan(ctx, prefix+"*")
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(keys))
	for _, k := range keys {
		codes = append(codes, strings.TrimPrefix(k, prefix))
	}
	return codes, nil
}

func (s *RoomStore) SaveRoom(ctx context.Context, room *models.Room) error {
	return s.kv.SetJSON(ctx, s.roomKey(room.ID), room, s.kv.TTL())
}

func (s *RoomStore) DeleteRoom(ctx context.Context, code string) error {
	return s.kv.Delete(ctx, s.roomKey(code))
}

func (s *RoomStore) SetUserRoom(ctx context.Context, userID int64, code string) error {
	return s.kv.SetJSON(ctx, s.userRoomKey(userID), userRoomRecord{RoomID: code}, s.kv.TTL())
}

// UserRoom: код комнаты, к которой привязан пользователь
func (s *RoomStore) UserRoom(ctx context.Context, userID int64) (string, error) {
	var rec userRoomRecord
	if err := s.kv.GetJSON(ctx, s.userRoomKey(userID), &rec); err != nil {
		return "", err
	}
	if rec.RoomID == "" {
		return "", models.ErrNotFound
	}
	return rec.RoomID, nil
}

func (s *RoomStore) ClearUserRoom(ctx context.Context, userID int64) error {
	return s.kv.Delete(ctx, s.userRoomKey(userID))
}
