package telegram

import (
	"context"
	"io"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/mock"
	"github.com/thereayou/flashquiz/internal/models"
	"github.com/thereayou/flashquiz/internal/services"
	"github.com/thereayou/flashquiz/internal/store"
)

// MockMessageSender: мок для MessageSender
type MockMessageSender struct {
	mock.Mock
}

func (m *MockMessageSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	msg, _ := args.Get(0).(tgbotapi.Message)
	return msg, args.Error(1)
}

func (m *MockMessageSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	resp, _ := args.Get(0).(*tgbotapi.APIResponse)
	return resp, args.Error(1)
}

func newSender() *MockMessageSender {
	s := new(MockMessageSender)
	s.On("Send", mock.Anything).Return(tgbotapi.Message{MessageID: 100}, nil)
	s.On("Request", mock.Anything).Return(&tgbotapi.APIResponse{Ok: true}, nil)
	return s
}

func (m *MockMessageSender) messages() []tgbotapi.MessageConfig {
	var out []tgbotapi.MessageConfig
	for _, call := range m.Calls {
		if msg, ok := call.Arguments.Get(0).(tgbotapi.MessageConfig); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (m *MockMessageSender) edits() []tgbotapi.EditMessageTextConfig {
	var out []tgbotapi.EditMessageTextConfig
	for _, call := range m.Calls {
		if edit, ok := call.Arguments.Get(0).(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, edit)
		}
	}
	return out
}

func (m *MockMessageSender) callbackAnswer() (tgbotapi.CallbackConfig, bool) {
	for _, call := range m.Calls {
		if cb, ok := call.Arguments.Get(0).(tgbotapi.CallbackConfig); ok {
			return cb, true
		}
	}
	return tgbotapi.CallbackConfig{}, false
}

func (m *MockMessageSender) photos() []tgbotapi.PhotoConfig {
	var out []tgbotapi.PhotoConfig
	for _, call := range m.Calls {
		if p, ok := call.Arguments.Get(0).(tgbotapi.PhotoConfig); ok {
			out = append(out, p)
		}
	}
	return out
}

// MockRoomService: мок для RoomService
type MockRoomService struct {
	mock.Mock
}

func (m *MockRoomService) Create(ctx context.Context, req services.CreateRoomRequest) (*models.Room, error) {
	args := m.Called(ctx, req)
	room, _ := args.Get(0).(*models.Room)
	return room, args.Error(1)
}

func (m *MockRoomService) ActiveRoom(ctx context.Context, userID int64) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *MockRoomService) Room(ctx context.Context, code string) (*models.Room, error) {
	args := m.Called(ctx, code)
	room, _ := args.Get(0).(*models.Room)
	return room, args.Error(1)
}

func (m *MockRoomService) Join(ctx context.Context, code string, userID int64, name string) (*models.Room, error) {
	args := m.Called(ctx, code, userID, name)
	room, _ := args.Get(0).(*models.Room)
	return room, args.Error(1)
}

func (m *MockRoomService) Leave(ctx context.Context, code string, userID int64) error {
	return m.Called(ctx, code, userID).Error(0)
}

func (m *MockRoomService) Start(ctx context.Context, code string, userID int64) (*models.Room, error) {
	args := m.Called(ctx, code, userID)
	room, _ := args.Get(0).(*models.Room)
	return room, args.Error(1)
}

func (m *MockRoomService) Cancel(ctx context.Context, code string, userID int64) error {
	return m.Called(ctx, code, userID).Error(0)
}

func (m *MockRoomService) UpdateSettings(ctx context.Context, code string, userID int64, seconds, points *int) (*models.Room, error) {
	args := m.Called(ctx, code, userID, seconds, points)
	room, _ := args.Get(0).(*models.Room)
	return room, args.Error(1)
}

func (m *MockRoomService) SubmitAnswer(ctx context.Context, code string, userID int64, text string) (services.AnswerVerdict, error) {
	args := m.Called(ctx, code, userID, text)
	verdict, _ := args.Get(0).(services.AnswerVerdict)
	return verdict, args.Error(1)
}

func (m *MockRoomService) DeepLink(code string) string {
	return m.Called(code).String(0)
}

type fakePending struct {
	join     map[int64]bool
	settings map[int64]store.SettingsPending
}

func newFakePending() *fakePending {
	return &fakePending{join: map[int64]bool{}, settings: map[int64]store.SettingsPending{}}
}

func (f *fakePending) SetJoinPending(_ context.Context, userID int64) error {
	f.join[userID] = true
	return nil
}

func (f *fakePending) JoinPending(_ context.Context, userID int64) (bool, error) {
	return f.join[userID], nil
}

func (f *fakePending) ClearJoinPending(_ context.Context, userID int64) error {
	delete(f.join, userID)
	return nil
}

func (f *fakePending) SetSettingsPending(_ context.Context, userID int64, p store.SettingsPending) error {
	f.settings[userID] = p
	return nil
}

func (f *fakePending) SettingsPending(_ context.Context, userID int64) (*store.SettingsPending, error) {
	p, ok := f.settings[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakePending) ClearSettingsPending(_ context.Context, userID int64) error {
	delete(f.settings, userID)
	return nil
}

type fakeUsers struct {
	cols    []models.Collection
	touched []int64
}

func (f *fakeUsers) TouchUser(_ context.Context, id int64, _, _ string) error {
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeUsers) ListUserCollections(context.Context, int64) ([]models.Collection, error) {
	return f.cols, nil
}

type fakeLogins struct{}

func (fakeLogins) IssueLoginCode(context.Context, int64) (string, error) {
	return "ABCD2345", nil
}

type testBot struct {
	h       *Handler
	sender  *MockMessageSender
	rooms   *MockRoomService
	pending *fakePending
	users   *fakeUsers
}

func newTestBot() *testBot {
	tb := &testBot{
		sender:  newSender(),
		rooms:   new(MockRoomService),
		pending: newFakePending(),
		users:   &fakeUsers{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tb.h = NewHandler(tb.sender, tb.rooms, tb.pending, tb.users, fakeLogins{}, logger)
	return tb
}

func user(id int64) *tgbotapi.User {
	return &tgbotapi.User{ID: id, UserName: "alice", FirstName: "Alice"}
}

func textMessage(userID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      user(userID),
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{Message: msg}
}

func callback(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: user(userID),
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: 55,
			Chat:      &tgbotapi.Chat{ID: userID},
		},
	}}
}
