package services

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/thereayou/flashquiz/internal/models"
)

type RoomServiceConfig struct {
	DefaultSecondsPerQuestion int
	DefaultPointsPerCorrect   int
	// DeepLinkBase, например https://t.me/quizbot?start=
	DeepLinkBase string
	RoundPause   time.Duration
	// IdleTimeout останавливает актора комнаты в waiting без команд; 0: не останавливать
	IdleTimeout time.Duration
}

type CreateRoomRequest struct {
	OwnerID            int64
	CollectionID       int64
	SecondsPerQuestion int
	PointsPerCorrect   int
}

// RoomService держит акторов живых комнат и раздаёт им команды
type RoomService struct {
	rooms    RoomStore
	content  ContentService
	notifier Notifier
	codes    *CodeAllocator
	clock    clockwork.Clock
	logger   *slog.Logger
	cfg      RoomServiceConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	actors map[string]*roomActor
}

func NewRoomService(rooms RoomStore, content ContentService, notifier Notifier, clock clockwork.Clock, logger *slog.Logger, cfg RoomServiceConfig) *RoomService {
	if cfg.RoundPause == 0 {
		cfg.RoundPause = time.Second
	}
	if cfg.DefaultSecondsPerQuestion == 0 {
		cfg.DefaultSecondsPerQuestion = 15
	}
	if cfg.DefaultPointsPerCorrect == 0 {
		cfg.DefaultPointsPerCorrect = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RoomService{
		rooms:    rooms,
		content:  content,
		notifier: notifier,
		codes:    NewCodeAllocator(rooms, clock),
		clock:    clock,
		logger:   logger.With("component", "rooms"),
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		actors:   make(map[string]*roomActor),
	}
}

func (s *RoomService) DeepLink(code string) string {
	if s.cfg.DeepLinkBase == "" {
		return ""
	}
	return s.cfg.DeepLinkBase + DeepLinkToken(code)
}

// Shutdown останавливает акторов; снимки остаются в Redis до истечения TTL
func (s *RoomService) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// Recover поднимает акторов для запущенных комнат после рестарта процесса
func (s *RoomService) Recover(ctx context.Context) error {
	codes, err := s.rooms.RoomCodes(ctx)
	if err != nil {
		return err
	}
	for _, code := range codes {
		room, err := s.rooms.GetRoom(ctx, code)
		if err != nil || room.State != models.RoomRunning {
			continue
		}
		if _, err := s.actorFor(ctx, code); err != nil {
			s.logger.Warn("room not recovered", "room", code, "error", err)
		}
	}
	return nil
}

func (s *RoomService) spawn(a *roomActor) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		a.run(s.ctx)
	}()
}

func (s *RoomService) release(a *roomActor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.actors[a.code] == a {
		delete(s.actors, a.code)
	}
}

// abandon убирает актора, который так и не был запущен
func (s *RoomService) abandon(a *roomActor) {
	s.release(a)
	close(a.done)
}

func (s *RoomService) lookup(code string) (*roomActor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[code]
	return a, ok
}

// actorFor возвращает актора комнаты, при необходимости поднимая его из снимка
func (s *RoomService) actorFor(ctx context.Context, code string) (*roomActor, error) {
	if !IsRoomCode(code) {
		return nil, models.ErrNotFound
	}
	if a, ok := s.lookup(code); ok {
		return a, nil
	}

	room, err := s.rooms.GetRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.State.Terminal() {
		return nil, models.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// пока читали снимок, актора мог поднять соседний запрос
	if a, ok := s.actors[code]; ok {
		return a, nil
	}
	a := newRoomActor(s, room)
	s.actors[code] = a
	s.spawn(a)
	return a, nil
}

// dispatch доставляет команду актору комнаты. Если актор остановился,
// не взяв команду, она один раз повторяется через свежего актора.
func (s *RoomService) dispatch(ctx context.Context, code string, build func(r replier) any) result {
	for attempt := 0; ; attempt++ {
		if s.ctx.Err() != nil {
			return result{err: models.ErrNotFound}
		}
		a, err := s.actorFor(ctx, code)
		if err != nil {
			return result{err: err}
		}
		r := newReplier()
		res, handled := a.ask(ctx, build(r), r)
		if handled || attempt > 0 {
			return res
		}
		s.release(a)
	}
}

// Create создаёт комнату в состоянии waiting и отправляет владельцу карточку комнаты
func (s *RoomService) Create(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	if _, err := s.ActiveRoom(ctx, req.OwnerID); err == nil {
		return nil, models.ErrAlreadyInRoom
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	title, cardIDs, err := s.content.Collection(ctx, req.CollectionID)
	if err != nil {
		return nil, err
	}
	if len(cardIDs) == 0 {
		return nil, models.ErrEmptyCollection
	}

	seconds, points := req.SecondsPerQuestion, req.PointsPerCorrect
	if seconds == 0 {
		seconds = s.cfg.DefaultSecondsPerQuestion
	}
	if points == 0 {
		points = s.cfg.DefaultPointsPerCorrect
	}

	order := append([]int64{}, cardIDs...)
	rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	var a *roomActor
	for a == nil {
		code, err := s.codes.Allocate(ctx)
		if err != nil {
			return nil, err
		}

		room := models.NewRoom(code, req.OwnerID, req.CollectionID, title, order, s.cfg.DefaultSecondsPerQuestion, s.cfg.DefaultPointsPerCorrect, s.clock.Now())
		if err := room.UpdateSettings(&seconds, &points); err != nil {
			return nil, err
		}

		s.mu.Lock()
		if _, taken := s.actors[code]; !taken {
			a = newRoomActor(s, room)
			s.actors[code] = a
		}
		s.mu.Unlock()
	}
	room := a.room

	ref, err := s.notifier.Send(ctx, req.OwnerID, models.Notification{
		Text:    WaitingRoomText(room, s.DeepLink(room.ID)),
		Buttons: OwnerRoomButtons(room.ID),
	})
	if err != nil {
		a.logger.Warn("owner room message not delivered", "error", err)
	} else {
		room.OwnerWaitMessage = &ref
	}

	if err := s.rooms.SaveRoom(ctx, room); err != nil {
		s.abandon(a)
		return nil, err
	}
	if err := s.rooms.SetUserRoom(ctx, req.OwnerID, room.ID); err != nil {
		s.abandon(a)
		if dErr := s.rooms.DeleteRoom(ctx, room.ID); dErr != nil {
			a.logger.Warn("orphan room left for ttl expiry", "error", dErr)
		}
		return nil, err
	}
	snapshot := room.Clone()
	s.spawn(a)

	a.logger.Info("room created", "owner_id", req.OwnerID, "collection_id", req.CollectionID, "questions", len(order))
	return snapshot, nil
}

// ActiveRoom: код комнаты (waiting или running), где пользователь владелец или игрок.
// Привязка к чужой или закрытой комнате снимается.
func (s *RoomService) ActiveRoom(ctx context.Context, userID int64) (string, error) {
	code, err := s.rooms.UserRoom(ctx, userID)
	if err != nil {
		return "", err
	}
	room, err := s.Room(ctx, code)
	stale := err == nil && (room.State.Terminal() || (!room.IsOwner(userID) && !room.HasPlayer(userID)))
	if errors.Is(err, models.ErrNotFound) || stale {
		if err := s.rooms.ClearUserRoom(ctx, userID); err != nil {
			s.logger.Warn("stale user room mapping not cleared", "user_id", userID, "error", err)
		}
		return "", models.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return code, nil
}

// Room возвращает снимок комнаты: у актора, если он жив, иначе из Redis
func (s *RoomService) Room(ctx context.Context, code string) (*models.Room, error) {
	if a, ok := s.lookup(code); ok {
		r := newReplier()
		res, _ := a.ask(ctx, snapshotCommand{replier: r}, r)
		if res.err == nil {
			return res.room, nil
		}
		if !errors.Is(res.err, models.ErrNotFound) {
			return nil, res.err
		}
	}
	return s.rooms.GetRoom(ctx, code)
}

func (s *RoomService) Join(ctx context.Context, code string, userID int64, name string) (*models.Room, error) {
	active, err := s.ActiveRoom(ctx, userID)
	switch {
	case err == nil && active != code:
		return nil, models.ErrAlreadyInRoom
	case err != nil && !errors.Is(err, models.ErrNotFound):
		return nil, err
	}

	res := s.dispatch(ctx, code, func(r replier) any {
		return joinCommand{replier: r, userID: userID, name: name}
	})
	return res.room, res.err
}

// Leave выводит игрока из комнаты; если комнаты уже нет, просто снимает привязку
func (s *RoomService) Leave(ctx context.Context, code string, userID int64) error {
	res := s.dispatch(ctx, code, func(r replier) any {
		return leaveCommand{replier: r, userID: userID}
	})
	if errors.Is(res.err, models.ErrNotFound) {
		if mapped, mErr := s.rooms.UserRoom(ctx, userID); mErr == nil && mapped == code {
			return s.rooms.ClearUserRoom(ctx, userID)
		}
		return nil
	}
	return res.err
}

func (s *RoomService) Start(ctx context.Context, code string, userID int64) (*models.Room, error) {
	res := s.dispatch(ctx, code, func(r replier) any {
		return startCommand{replier: r, userID: userID}
	})
	return res.room, res.err
}

func (s *RoomService) Cancel(ctx context.Context, code string, userID int64) error {
	return s.dispatch(ctx, code, func(r replier) any {
		return cancelCommand{replier: r, userID: userID}
	}).err
}

// UpdateSettings меняет время на вопрос и/или баллы; nil: не менять
func (s *RoomService) UpdateSettings(ctx context.Context, code string, userID int64, seconds, points *int) (*models.Room, error) {
	res := s.dispatch(ctx, code, func(r replier) any {
		return settingsCommand{replier: r, userID: userID, seconds: seconds, points: points}
	})
	return res.room, res.err
}

// SubmitAnswer; models.ErrStale означает, что ответ молча проигнорирован
func (s *RoomService) SubmitAnswer(ctx context.Context, code string, userID int64, text string) (AnswerVerdict, error) {
	at := s.clock.Now()
	res := s.dispatch(ctx, code, func(r replier) any {
		return answerCommand{replier: r, userID: userID, text: text, at: at}
	})
	return res.verdict, res.err
}
