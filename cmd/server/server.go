package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
	"github.com/thereayou/flashquiz/internal/config"
	"github.com/thereayou/flashquiz/internal/database"
	"github.com/thereayou/flashquiz/internal/handlers"
	"github.com/thereayou/flashquiz/internal/notify"
	"github.com/thereayou/flashquiz/internal/services"
	"github.com/thereayou/flashquiz/internal/store"
	"github.com/thereayou/flashquiz/internal/telegram"
	"github.com/thereayou/flashquiz/internal/websocket"
	"github.com/thereayou/flashquiz/pkg/auth"
)

type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	Router *gin.Engine
	DB     *database.Database
	Redis  *redis.Client
	Hub    *websocket.Hub
	Rooms  *services.RoomService
	Bot    *telegram.Bot
}

func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	dbConn, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	kv := store.NewKV(rdb, cfg.RedisPrefix, cfg.RoomTTL)
	roomStore := store.NewRoomStore(kv)
	pending := store.NewPendingStore(kv)
	authStore := store.NewAuthStore(kv)

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	authSvc := services.NewAuthService(authStore, jwtMgr, logger)

	hub := websocket.NewHub(logger)

	var (
		botAPI   *tgbotapi.BotAPI
		tg       notify.Transport
		linkBase string
	)
	if cfg.TelegramToken != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		tg = telegram.NewGateway(botAPI, logger)
		linkBase = telegram.DeepLinkBase(botAPI)
	} else {
		logger.Warn("TELEGRAM_TOKEN is not set, only websocket clients will be notified")
	}

	rooms := services.NewRoomService(
		roomStore,
		dbConn,
		notify.NewRouter(tg, hub, hub, logger),
		clockwork.NewRealClock(),
		logger,
		services.RoomServiceConfig{
			DefaultSecondsPerQuestion: cfg.DefaultSecondsPerQuestion,
			DefaultPointsPerCorrect:   cfg.DefaultPointsPerCorrect,
			DeepLinkBase:              linkBase,
			IdleTimeout:               cfg.RoomTTL,
		},
	)

	s := &Server{
		cfg:    cfg,
		logger: logger,
		DB:     dbConn,
		Redis:  rdb,
		Hub:    hub,
		Rooms:  rooms,
	}

	var webhook *handlers.TelegramWebhook
	if botAPI != nil {
		tgHandler := telegram.NewHandler(botAPI, rooms, pending, dbConn, authSvc, logger)
		s.Bot = telegram.NewBot(botAPI, tgHandler, logger)
		if err := s.Bot.SetWebhook(cfg.TelegramWebhookURL); err != nil {
			return nil, fmt.Errorf("telegram webhook: %w", err)
		}
		if cfg.TelegramWebhookURL != "" {
			webhook = handlers.NewTelegramWebhook(tgHandler)
		}
	}

	s.Router = gin.Default()
	APIEndpoints(s.Router, Endpoints{
		Auth:      handlers.NewAuthHandler(authSvc),
		Rooms:     handlers.NewRoomHandler(rooms, dbConn),
		Users:     handlers.NewUserHandler(dbConn),
		WebSocket: handlers.NewWebSocketHandler(hub, handlers.NewAnswerSocketHandler(rooms), cfg.CORSOrigins),
		Webhook:   webhook,
		JWT:       jwtMgr,
		Blacklist: authStore,
		Origins:   cfg.CORSOrigins,
	})

	return s, nil
}

// Run работает до отмены ctx, затем останавливает всё по очереди
func (s *Server) Run(ctx context.Context) error {
	go s.Hub.Run()

	if err := s.Rooms.Recover(ctx); err != nil {
		s.logger.Warn("running rooms not recovered", "error", err)
	}

	if s.Bot != nil && s.cfg.TelegramWebhookURL == "" {
		go s.Bot.Run(ctx)
	}

	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "port", s.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown", "error", err)
	}

	s.Rooms.Shutdown()
	s.Hub.Stop()
	if err := s.Redis.Close(); err != nil {
		s.logger.Warn("redis close", "error", err)
	}
	if err := s.DB.Close(); err != nil {
		s.logger.Warn("postgres close", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}
