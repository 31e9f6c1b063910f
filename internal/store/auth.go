package store

import (
	"context"
	"time"
)

const LoginCodeTTL = 5 * time.Minute

// AuthStore: одноразовые коды входа и чёрный список JWT
type AuthStore struct {
	kv *KV
}

func NewAuthStore(kv *KV) *AuthStore {
	return &AuthStore{kv: kv}
}

func (s *AuthStore) loginKey(userID int64) string {
	return s.kv.Key("auth", "login_code", userID)
}

func (s *AuthStore) blacklistKey(token string) string {
	return s.kv.Key("blacklist", token)
}

func (s *AuthStore) SaveLoginCode(ctx context.Context, userID int64, hash string) error {
	return s.kv.SetJSON(ctx, s.loginKey(userID), hash, LoginCodeTTL)
}

// LoginCodeHash возвращает ErrNotFound из models, если кода нет
func (s *AuthStore) LoginCodeHash(ctx context.Context, userID int64) (string, error) {
	var hash string
	if err := s.kv.GetJSON(ctx, s.loginKey(userID), &hash); err != nil {
		return "", err
	}
	return hash, nil
}

func (s *AuthStore) DeleteLoginCode(ctx context.Context, userID int64) error {
	return s.kv.Delete(ctx, s.loginKey(userID))
}

func (s *AuthStore) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.kv.SetJSON(ctx, s.blacklistKey(token), 1, ttl)
}

func (s *AuthStore) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	return s.kv.Exists(ctx, s.blacklistKey(token))
}
