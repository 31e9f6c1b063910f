package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/flashquiz/internal/models"
)

type memStore struct {
	mu        sync.Mutex
	rooms     map[string]*models.Room
	lastSaved map[string]*models.Room
	userRooms map[int64]string
	failSaves bool
	// отказы записи и снятия привязки по пользователям
	failSets   map[int64]bool
	failClears map[int64]bool
}

func newMemStore() *memStore {
	return &memStore{
		rooms:     map[string]*models.Room{},
		lastSaved: map[string]*models.Room{},
		userRooms:  map[int64]string{},
		failSets:   map[int64]bool{},
		failClears: map[int64]bool{},
	}
}

func (s *memStore) GetRoom(_ context.Context, code string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[code]
	if !ok {
		return nil, models.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *memStore) RoomExists(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[code]
	return ok, nil
}

func (s *memStore) RoomCodes(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := make([]string, 0, len(s.rooms))
	for code := range s.rooms {
		codes = append(codes, code)
	}
	return codes, nil
}

func (s *memStore) SaveRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves {
		return fmt.Errorf("%w: redis down", models.ErrPersistence)
	}
	s.rooms[room.ID] = room.Clone()
	s.lastSaved[room.ID] = room.Clone()
	return nil
}

func (s *memStore) DeleteRoom(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
	return nil
}

func (s *memStore) SetUserRoom(_ context.Context, userID int64, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSets[userID] {
		return fmt.Errorf("%w: redis down", models.ErrPersistence)
	}
	s.userRooms[userID] = code
	return nil
}

func (s *memStore) UserRoom(_ context.Context, userID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.userRooms[userID]
	if !ok {
		return "", models.ErrNotFound
	}
	return code, nil
}

func (s *memStore) ClearUserRoom(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failClears[userID] {
		return fmt.Errorf("%w: redis down", models.ErrPersistence)
	}
	delete(s.userRooms, userID)
	return nil
}

func (s *memStore) setFailSaves(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSaves = v
}

func (s *memStore) setFailMapping(userID int64, set, clear bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSets[userID] = set
	s.failClears[userID] = clear
}

func (s *memStore) saved(code string) *models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved[code].Clone()
}

func (s *memStore) hasRoom(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[code]
	return ok
}

type fakeContent struct {
	collections map[int64][]int64
	cards       map[int64]*models.Card
}

func (c *fakeContent) Collection(_ context.Context, id int64) (string, []int64, error) {
	ids, ok := c.collections[id]
	if !ok {
		return "", nil, models.ErrNotFound
	}
	return "Столицы", ids, nil
}

func (c *fakeContent) Card(_ context.Context, id int64) (*models.Card, error) {
	card, ok := c.cards[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return card, nil
}

type sentMessage struct {
	userID int64
	ref    models.MessageRef
	text   string
}

type editedMessage struct {
	ref  models.MessageRef
	text string
}

type recordingNotifier struct {
	mu     sync.Mutex
	nextID int64
	sent   []sentMessage
	edits  []editedMessage
	fail   map[int64]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{fail: map[int64]bool{}}
}

func (n *recordingNotifier) Send(_ context.Context, userID int64, msg models.Notification) (models.MessageRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[userID] {
		return models.MessageRef{}, fmt.Errorf("%w: blocked by user", models.ErrDelivery)
	}
	n.nextID++
	ref := models.MessageRef{Transport: "test", ChatID: userID, MessageID: n.nextID}
	n.sent = append(n.sent, sentMessage{userID: userID, ref: ref, text: msg.Text})
	return ref, nil
}

func (n *recordingNotifier) Edit(_ context.Context, ref models.MessageRef, msg models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[ref.ChatID] {
		return fmt.Errorf("%w: blocked by user", models.ErrDelivery)
	}
	n.edits = append(n.edits, editedMessage{ref: ref, text: msg.Text})
	return nil
}

func (n *recordingNotifier) sentTo(userID int64, contains string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, m := range n.sent {
		if m.userID == userID && strings.Contains(m.text, contains) {
			count++
		}
	}
	return count
}

func (n *recordingNotifier) editsContaining(contains string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, e := range n.edits {
		if strings.Contains(e.text, contains) {
			count++
		}
	}
	return count
}

type testEnv struct {
	store    *memStore
	content  *fakeContent
	notifier *recordingNotifier
	clock    clockwork.FakeClock
	svc      *RoomService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store: newMemStore(),
		content: &fakeContent{
			collections: map[int64][]int64{
				7: {101, 102},
				8: {101},
				9: {101, 999},
				10: {},
			},
			cards: map[int64]*models.Card{
				101: {ID: 101, Question: "Столица Франции?", Answer: "Париж"},
				102: {ID: 102, Question: "Столица Италии?", Answer: "Рим"},
			},
		},
		notifier: newRecordingNotifier(),
		clock:    clockwork.NewFakeClockAt(time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.svc = NewRoomService(env.store, env.content, env.notifier, env.clock, logger, RoomServiceConfig{
		DefaultSecondsPerQuestion: 15,
		DefaultPointsPerCorrect:   100,
		DeepLinkBase:              "https://t.me/quizbot?start=",
	})
	t.Cleanup(env.svc.Shutdown)
	return env
}

// room создаёт комнату владельца 1 и подключает игроков
func (e *testEnv) room(t *testing.T, collectionID int64, seconds int, players ...int64) string {
	t.Helper()
	ctx := context.Background()
	room, err := e.svc.Create(ctx, CreateRoomRequest{OwnerID: 1, CollectionID: collectionID, SecondsPerQuestion: seconds})
	require.NoError(t, err)
	for _, id := range players {
		_, err := e.svc.Join(ctx, room.ID, id, fmt.Sprintf("player%d", id))
		require.NoError(t, err)
	}
	return room.ID
}

// step ждёт, пока актор встанет на таймер, и проматывает время
func (e *testEnv) step(d time.Duration) {
	e.clock.BlockUntil(1)
	e.clock.Advance(d)
}

func (e *testEnv) waitReleased(t *testing.T, code string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := e.svc.lookup(code)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
