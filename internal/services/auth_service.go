package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/thereayou/flashquiz/internal/models"
	"github.com/thereayou/flashquiz/pkg/auth"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// LoginCodeStore: хранилище одноразовых кодов и чёрного списка токенов
type LoginCodeStore interface {
	SaveLoginCode(ctx context.Context, userID int64, hash string) error
	LoginCodeHash(ctx context.Context, userID int64) (string, error)
	DeleteLoginCode(ctx context.Context, userID int64) error
	Blacklist(ctx context.Context, token string, ttl time.Duration) error
}

type LoginRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

type AuthResponse struct {
	UserID      int64  `json:"user_id"`
	AccessToken string `json:"access_token"`
}

// AuthService обменивает код из /login в боте на JWT для веб-клиента
type AuthService struct {
	codes  LoginCodeStore
	jwt    *auth.JWTManager
	logger *slog.Logger
}

func NewAuthService(codes LoginCodeStore, jwt *auth.JWTManager, logger *slog.Logger) *AuthService {
	return &AuthService{codes: codes, jwt: jwt, logger: logger.With("component", "auth")}
}

// IssueLoginCode заменяет предыдущий код пользователя новым
func (s *AuthService) IssueLoginCode(ctx context.Context, userID int64) (string, error) {
	code, hash, err := auth.NewLoginCode()
	if err != nil {
		return "", err
	}
	if err := s.codes.SaveLoginCode(ctx, userID, hash); err != nil {
		return "", err
	}
	s.logger.Info("login code issued", "user_id", userID)
	return code, nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	hash, err := s.codes.LoginCodeHash(ctx, req.UserID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckLoginCode(hash, strings.ToUpper(strings.TrimSpace(req.Code))); err != nil {
		return nil, ErrInvalidCredentials
	}

	// код одноразовый
	if err := s.codes.DeleteLoginCode(ctx, req.UserID); err != nil {
		return nil, err
	}

	token, err := s.jwt.Generate(req.UserID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", "user_id", req.UserID)
	return &AuthResponse{UserID: req.UserID, AccessToken: token}, nil
}

// Logout кладёт токен в чёрный список до истечения его срока
func (s *AuthService) Logout(ctx context.Context, token string) error {
	ttl, err := s.jwt.TTL(token)
	if err != nil {
		return err
	}
	return s.codes.Blacklist(ctx, token, ttl)
}
