package store

import (
	"context"
	"errors"

	"github.com/thereayou/flashquiz/internal/models"
)

const (
	SettingPoints  = "points"
	SettingSeconds = "seconds"
)

// SettingsPending: владелец нажал кнопку настройки и ждём число
type SettingsPending struct {
	RoomID string `json:"room_id"`
	Field  string `json:"field"`
}

// PendingStore хранит «ожидание ввода» между сообщениями чата
type PendingStore struct {
	kv *KV
}

func NewPendingStore(kv *KV) *PendingStore {
	return &PendingStore{kv: kv}
}

func (s *PendingStore) joinKey(userID int64) string {
	return s.kv.Key("online", "join_pending", userID)
}

func (s *PendingStore) settingsKey(userID int64) string {
	return s.kv.Key("online", "settings_pending", userID)
}

func (s *PendingStore) SetJoinPending(ctx context.Context, userID int64) error {
	return s.kv.SetJSON(ctx, s.joinKey(userID), map[string]int{"v": 1}, s.kv.TTL())
}

func (s *PendingStore) JoinPending(ctx context.Context, userID int64) (bool, error) {
	return s.kv.Exists(ctx, s.joinKey(userID))
}

func (s *PendingStore) ClearJoinPending(ctx context.Context, userID int64) error {
	return s.kv.Delete(ctx, s.joinKey(userID))
}

func (s *PendingStore) SetSettingsPending(ctx context.Context, userID int64, p SettingsPending) error {
	return s.kv.SetJSON(ctx, s.settingsKey(userID), p, s.kv.TTL())
}

// SettingsPending возвращает nil, если ожидания нет
func (s *PendingStore) SettingsPending(ctx context.Context, userID int64) (*SettingsPending, error) {
	var p SettingsPending
	err := s.kv.GetJSON(ctx, s.settingsKey(userID), &p)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Field != SettingPoints && p.Field != SettingSeconds {
		return nil, nil
	}
	return &p, nil
}

func (s *PendingStore) ClearSettingsPending(ctx context.Context, userID int64) error {
	return s.kv.Delete(ctx, s.settingsKey(userID))
}
