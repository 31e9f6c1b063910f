package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/flashquiz/internal/store"
	"github.com/thereayou/flashquiz/pkg/auth"
)

func newTestAuth(t *testing.T) (*AuthService, *store.AuthStore, *auth.JWTManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	codes := store.NewAuthStore(store.NewKV(rdb, "tgbot", 15*time.Minute))
	jwt := auth.NewJWTManager("secret", time.Hour)
	return NewAuthService(codes, jwt, slog.New(slog.NewTextHandler(io.Discard, nil))), codes, jwt
}

func TestAuthServiceLogin(t *testing.T) {
	ctx := context.Background()
	svc, _, jwt := newTestAuth(t)

	code, err := svc.IssueLoginCode(ctx, 42)
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginRequest{UserID: 42, Code: "AAAAAAAA"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginRequest{UserID: 43, Code: code})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	resp, err := svc.Login(ctx, LoginRequest{UserID: 42, Code: " " + code + " "})
	require.NoError(t, err)
	id, err := jwt.UserID(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = svc.Login(ctx, LoginRequest{UserID: 42, Code: code})
	assert.ErrorIs(t, err, ErrInvalidCredentials, "code is single use")
}

func TestAuthServiceLogout(t *testing.T) {
	ctx := context.Background()
	svc, codes, jwt := newTestAuth(t)

	token, err := jwt.Generate(7)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, token))
	blacklisted, err := codes.IsBlacklisted(ctx, token)
	require.NoError(t, err)
	assert.True(t, blacklisted)

	assert.Error(t, svc.Logout(ctx, "garbage"))
}
