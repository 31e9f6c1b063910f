package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/skip2/go-qrcode"
	"github.com/thereayou/flashquiz/internal/models"
	"github.com/thereayou/flashquiz/internal/services"
	"github.com/thereayou/flashquiz/internal/store"
)

const (
	fieldPoints  = store.SettingPoints
	fieldSeconds = store.SettingSeconds
)

// RoomService: операции над комнатами, доступные из чата
type RoomService interface {
	Create(ctx context.Context, req services.CreateRoomRequest) (*models.Room, error)
	ActiveRoom(ctx context.Context, userID int64) (string, error)
	Room(ctx context.Context, code string) (*models.Room, error)
	Join(ctx context.Context, code string, userID int64, name string) (*models.Room, error)
	Leave(ctx context.Context, code string, userID int64) error
	Start(ctx context.Context, code string, userID int64) (*models.Room, error)
	Cancel(ctx context.Context, code string, userID int64) error
	UpdateSettings(ctx context.Context, code string, userID int64, seconds, points *int) (*models.Room, error)
	SubmitAnswer(ctx context.Context, code string, userID int64, text string) (services.AnswerVerdict, error)
	DeepLink(code string) string
}

type PendingStore interface {
	SetJoinPending(ctx context.Context, userID int64) error
	JoinPending(ctx context.Context, userID int64) (bool, error)
	ClearJoinPending(ctx context.Context, userID int64) error
	SetSettingsPending(ctx context.Context, userID int64, p store.SettingsPending) error
	SettingsPending(ctx context.Context, userID int64) (*store.SettingsPending, error)
	ClearSettingsPending(ctx context.Context, userID int64) error
}

type UserDirectory interface {
	TouchUser(ctx context.Context, id int64, username, firstName string) error
	ListUserCollections(ctx context.Context, ownerID int64) ([]models.Collection, error)
}

type LoginCodeIssuer interface {
	IssueLoginCode(ctx context.Context, userID int64) (string, error)
}

type commandFunc func(ctx context.Context, msg *tgbotapi.Message)

// callbackFunc возвращает текст всплывающего предупреждения или ""
type callbackFunc func(ctx context.Context, cb *tgbotapi.CallbackQuery, arg string) string

type callbackRoute struct {
	action string
	prefix bool
	fn     callbackFunc
}

type Handler struct {
	bot     MessageSender
	gateway *Gateway
	rooms   RoomService
	pending PendingStore
	users   UserDirectory
	logins  LoginCodeIssuer
	logger  *slog.Logger

	commands  map[string]commandFunc
	callbacks []callbackRoute
}

func NewHandler(bot MessageSender, rooms RoomService, pending PendingStore, users UserDirectory, logins LoginCodeIssuer, logger *slog.Logger) *Handler {
	h := &Handler{
		bot:     bot,
		gateway: NewGateway(bot, logger),
		rooms:   rooms,
		pending: pending,
		users:   users,
		logins:  logins,
		logger:  logger.With("component", "telegram"),
	}

	h.commands = map[string]commandFunc{
		"start":  h.handleStart,
		"help":   h.handleHelp,
		"online": h.handleOnline,
		"leave":  h.handleLeave,
		"login":  h.handleLogin,
	}
	h.callbacks = []callbackRoute{
		{action: services.ActionCreate, fn: h.onCreate},
		{action: services.ActionJoin, fn: h.onJoin},
		{action: services.ActionJoinCancel, fn: h.onJoinCancel},
		{action: services.ActionChooseCancel, fn: h.onChooseCancel},
		{action: actionNoop, fn: func(context.Context, *tgbotapi.CallbackQuery, string) string { return "" }},
		{action: services.ActionCollection, prefix: true, fn: h.onCollection},
		{action: services.ActionPage, prefix: true, fn: h.onPage},
		{action: services.ActionSetPoints, prefix: true, fn: h.onSetting(fieldPoints)},
		{action: services.ActionSetTime, prefix: true, fn: h.onSetting(fieldSeconds)},
		{action: services.ActionSettingsCancel, prefix: true, fn: h.onSettingsCancel},
		{action: services.ActionStart, prefix: true, fn: h.onStart},
		{action: services.ActionCancel, prefix: true, fn: h.onCancel},
		{action: services.ActionLeave, prefix: true, fn: h.onLeave},
	}
	return h
}

// HandleUpdate обрабатывает одно обновление от Telegram
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if msg.IsCommand() {
		if fn, ok := h.commands[msg.Command()]; ok {
			fn(ctx, msg)
		}
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	h.handleText(ctx, msg)
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	alert := ""
	for _, route := range h.callbacks {
		if !route.prefix {
			if cb.Data == route.action {
				alert = route.fn(ctx, cb, "")
				break
			}
			continue
		}
		if arg, ok := services.ActionArg(cb.Data, route.action); ok {
			alert = route.fn(ctx, cb, arg)
			break
		}
	}

	answer := tgbotapi.NewCallback(cb.ID, "")
	if alert != "" {
		answer = tgbotapi.NewCallbackWithAlert(cb.ID, alert)
	}
	if _, err := h.bot.Request(answer); err != nil {
		h.logger.Debug("callback answer failed", "error", err)
	}
}

func (h *Handler) reply(chatID int64, text string, buttons [][]models.Button) {
	if _, err := h.gateway.Send(context.Background(), chatID, models.Notification{Text: text, Buttons: buttons}); err != nil {
		h.logger.Warn("reply not delivered", "chat_id", chatID, "error", err)
	}
}

// editCallbackMessage меняет сообщение, на кнопку которого нажали
func (h *Handler) editCallbackMessage(cb *tgbotapi.CallbackQuery, text string, buttons [][]models.Button) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	ref := models.MessageRef{Transport: models.TransportTelegram, ChatID: cb.Message.Chat.ID, MessageID: int64(cb.Message.MessageID)}
	if err := h.gateway.Edit(context.Background(), ref, models.Notification{Text: text, Buttons: buttons}); err != nil {
		h.logger.Warn("callback message not edited", "chat_id", ref.ChatID, "error", err)
	}
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return u.FirstName
}

func (h *Handler) touch(ctx context.Context, u *tgbotapi.User) {
	if err := h.users.TouchUser(ctx, u.ID, u.UserName, u.FirstName); err != nil {
		h.logger.Warn("user not saved", "user_id", u.ID, "error", err)
	}
}

// busy сообщает, что пользователь уже в живой комнате
func (h *Handler) busy(ctx context.Context, userID int64) (bool, error) {
	_, err := h.rooms.ActiveRoom(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	h.touch(ctx, msg.From)
	if code, ok := services.ParseDeepLinkToken(strings.TrimSpace(msg.CommandArguments())); ok {
		h.join(ctx, msg, code)
		return
	}
	h.reply(msg.Chat.ID, textOnlineRoot, rootButtons())
}

func (h *Handler) handleHelp(_ context.Context, msg *tgbotapi.Message) {
	h.reply(msg.Chat.ID, textHelp, nil)
}

func (h *Handler) handleOnline(ctx context.Context, msg *tgbotapi.Message) {
	h.touch(ctx, msg.From)
	h.reply(msg.Chat.ID, textOnlineRoot, rootButtons())
}

func (h *Handler) handleLogin(ctx context.Context, msg *tgbotapi.Message) {
	h.touch(ctx, msg.From)
	code, err := h.logins.IssueLoginCode(ctx, msg.From.ID)
	if err != nil {
		h.logger.Error("login code not issued", "user_id", msg.From.ID, "error", err)
		h.reply(msg.Chat.ID, errInternal, nil)
		return
	}
	h.reply(msg.Chat.ID, loginCodeText(msg.From.ID, code), nil)
}

func (h *Handler) handleLeave(ctx context.Context, msg *tgbotapi.Message) {
	code, err := h.rooms.ActiveRoom(ctx, msg.From.ID)
	if errors.Is(err, models.ErrNotFound) {
		h.reply(msg.Chat.ID, errNotInRoom, nil)
		return
	}
	if err == nil {
		err = h.rooms.Leave(ctx, code, msg.From.ID)
	}
	switch {
	case err == nil:
		h.reply(msg.Chat.ID, services.MsgLeftRoom, nil)
	case errors.Is(err, models.ErrOwnerCannotLeave):
		h.reply(msg.Chat.ID, errOwnerCannotLeave, nil)
	default:
		h.logger.Error("leave failed", "user_id", msg.From.ID, "error", err)
		h.reply(msg.Chat.ID, errInternal, nil)
	}
}

// handleText: ввод настройки, код комнаты или ответ на вопрос
func (h *Handler) handleText(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	setting, err := h.pending.SettingsPending(ctx, userID)
	if err != nil {
		h.logger.Warn("settings pending lookup failed", "user_id", userID, "error", err)
	}
	if setting != nil {
		h.applySetting(ctx, msg, *setting)
		return
	}

	joinPending, err := h.pending.JoinPending(ctx, userID)
	if err != nil {
		h.logger.Warn("join pending lookup failed", "user_id", userID, "error", err)
	}
	if joinPending {
		if err := h.pending.ClearJoinPending(ctx, userID); err != nil {
			h.logger.Warn("join pending not cleared", "user_id", userID, "error", err)
		}
		code := strings.TrimSpace(msg.Text)
		if code == "" {
			h.reply(msg.Chat.ID, errNoCode, nil)
			return
		}
		h.join(ctx, msg, code)
		return
	}

	h.answer(ctx, msg)
}

func (h *Handler) answer(ctx context.Context, msg *tgbotapi.Message) {
	code, err := h.rooms.ActiveRoom(ctx, msg.From.ID)
	if err != nil {
		return
	}
	verdict, err := h.rooms.SubmitAnswer(ctx, code, msg.From.ID, msg.Text)
	switch {
	case err == nil:
		h.logger.Debug("answer accepted", "room", code, "user_id", msg.From.ID, "correct", verdict.Correct)
	case errors.Is(err, models.ErrStale), errors.Is(err, models.ErrNotFound):
	default:
		h.logger.Warn("answer not recorded", "room", code, "user_id", msg.From.ID, "error", err)
	}
}

func (h *Handler) join(ctx context.Context, msg *tgbotapi.Message, code string) {
	room, err := h.rooms.Join(ctx, code, msg.From.ID, displayName(msg.From))
	if err != nil {
		h.reply(msg.Chat.ID, h.joinError(err), nil)
		return
	}
	h.reply(msg.Chat.ID, services.PlayerWaitingText(room), services.PlayerRoomButtons(room.ID))
}

func (h *Handler) joinError(err error) string {
	switch {
	case errors.Is(err, models.ErrAlreadyInRoom):
		return errLeaveCurrentRoom
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrInvalidTransition):
		return errRoomUnavailable
	case errors.Is(err, models.ErrCapacityExceeded):
		return errRoomFull
	case errors.Is(err, models.ErrOwnerCannotPlay):
		return errOwnerIsNotPlayer
	case errors.Is(err, models.ErrAlreadyJoined):
		return errAlreadyJoined
	}
	h.logger.Error("join failed", "error", err)
	return errInternal
}

func (h *Handler) applySetting(ctx context.Context, msg *tgbotapi.Message, p store.SettingsPending) {
	value, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil {
		h.reply(msg.Chat.ID, settingsRangeError(p.Field), settingsCancelButtons(p.RoomID))
		return
	}

	var seconds, points *int
	if p.Field == fieldPoints {
		points = &value
	} else {
		seconds = &value
	}

	_, err = h.rooms.UpdateSettings(ctx, p.RoomID, msg.From.ID, seconds, points)
	if errors.Is(err, models.ErrInvalidSettings) {
		h.reply(msg.Chat.ID, settingsRangeError(p.Field), settingsCancelButtons(p.RoomID))
		return
	}
	if cErr := h.pending.ClearSettingsPending(ctx, msg.From.ID); cErr != nil {
		h.logger.Warn("settings pending not cleared", "user_id", msg.From.ID, "error", cErr)
	}
	switch {
	case err == nil:
		h.reply(msg.Chat.ID, textSettingsSaved, nil)
	case errors.Is(err, models.ErrInvalidTransition):
		h.reply(msg.Chat.ID, errAlreadyStarted, nil)
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrNotOwner):
		h.reply(msg.Chat.ID, errNotOwner, nil)
	default:
		h.logger.Error("settings update failed", "room", p.RoomID, "error", err)
		h.reply(msg.Chat.ID, errInternal, nil)
	}
}

func (h *Handler) onCreate(ctx context.Context, cb *tgbotapi.CallbackQuery, _ string) string {
	if busy, err := h.busy(ctx, cb.From.ID); err != nil {
		return errInternal
	} else if busy {
		return errLeaveCurrentRoom
	}
	h.touch(ctx, cb.From)

	cols, err := h.users.ListUserCollections(ctx, cb.From.ID)
	if err != nil {
		h.logger.Error("collections not listed", "user_id", cb.From.ID, "error", err)
		return errInternal
	}
	if len(cols) == 0 {
		return errNoCollections
	}
	h.editCallbackMessage(cb, textChooseCollection, collectionButtons(cols, 0))
	return ""
}

func (h *Handler) onPage(ctx context.Context, cb *tgbotapi.CallbackQuery, arg string) string {
	page, err := strconv.Atoi(arg)
	if err != nil {
		page = 0
	}
	cols, err := h.users.ListUserCollections(ctx, cb.From.ID)
	if err != nil {
		h.logger.Error("collections not listed", "user_id", cb.From.ID, "error", err)
		return errInternal
	}
	h.editCallbackMessage(cb, textChooseCollection, collectionButtons(cols, page))
	return ""
}

func (h *Handler) onChooseCancel(_ context.Context, cb *tgbotapi.CallbackQuery, _ string) string {
	h.editCallbackMessage(cb, textChooseCanceled, nil)
	return ""
}

func (h *Handler) onCollection(ctx context.Context, cb *tgbotapi.CallbackQuery, arg string) string {
	collectionID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return errBadCollection
	}

	room, err := h.rooms.Create(ctx, services.CreateRoomRequest{OwnerID: cb.From.ID, CollectionID: collectionID})
	switch {
	case err == nil:
	case errors.Is(err, models.ErrAlreadyInRoom):
		return errLeaveCurrentRoom
	case errors.Is(err, models.ErrEmptyCollection):
		return errEmptyCollection
	case errors.Is(err, models.ErrNotFound):
		return errBadCollection
	default:
		h.logger.Error("room not created", "user_id", cb.From.ID, "collection_id", collectionID, "error", err)
		return errInternal
	}

	h.sendInviteQR(cb.From.ID, room.ID)
	return ""
}

func (h *Handler) sendInviteQR(chatID int64, code string) {
	link := h.rooms.DeepLink(code)
	if link == "" {
		return
	}
	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		h.logger.Debug("qr not generated", "room", code, "error", err)
		return
	}
	if err := h.gateway.SendPhoto(chatID, fmt.Sprintf("room_%s.png", code), png, textQRCaption); err != nil {
		h.logger.Warn("qr not delivered", "room", code, "error", err)
	}
}

func (h *Handler) onJoin(ctx context.Context, cb *tgbotapi.CallbackQuery, _ string) string {
	if busy, err := h.busy(ctx, cb.From.ID); err != nil {
		return errInternal
	} else if busy {
		return errLeaveCurrentRoom
	}
	if err := h.pending.SetJoinPending(ctx, cb.From.ID); err != nil {
		h.logger.Error("join pending not saved", "user_id", cb.From.ID, "error", err)
		return errInternal
	}
	h.reply(cb.From.ID, textJoinPrompt, joinCancelButtons())
	return ""
}

func (h *Handler) onJoinCancel(ctx context.Context, cb *tgbotapi.CallbackQuery, _ string) string {
	if err := h.pending.ClearJoinPending(ctx, cb.From.ID); err != nil {
		h.logger.Warn("join pending not cleared", "user_id", cb.From.ID, "error", err)
	}
	h.editCallbackMessage(cb, errJoinCanceled, nil)
	return ""
}

// ownedWaitingRoom проверяет, что комнату можно настраивать
func (h *Handler) ownedWaitingRoom(ctx context.Context, code string, userID int64) string {
	room, err := h.rooms.Room(ctx, code)
	if err != nil || !room.IsOwner(userID) {
		return errNotOwner
	}
	if room.State != models.RoomWaiting {
		return errAlreadyStarted
	}
	return ""
}

func (h *Handler) onSetting(field string) callbackFunc {
	return func(ctx context.Context, cb *tgbotapi.CallbackQuery, code string) string {
		if alert := h.ownedWaitingRoom(ctx, code, cb.From.ID); alert != "" {
			return alert
		}
		if err := h.pending.SetSettingsPending(ctx, cb.From.ID, store.SettingsPending{RoomID: code, Field: field}); err != nil {
			h.logger.Error("settings pending not saved", "user_id", cb.From.ID, "error", err)
			return errInternal
		}
		h.reply(cb.From.ID, settingsPrompt(field), settingsCancelButtons(code))
		return ""
	}
}

func (h *Handler) onSettingsCancel(ctx context.Context, cb *tgbotapi.CallbackQuery, _ string) string {
	if err := h.pending.ClearSettingsPending(ctx, cb.From.ID); err != nil {
		h.logger.Warn("settings pending not cleared", "user_id", cb.From.ID, "error", err)
	}
	h.editCallbackMessage(cb, textSettingsCanceled, nil)
	return ""
}

func (h *Handler) onStart(ctx context.Context, cb *tgbotapi.CallbackQuery, code string) string {
	_, err := h.rooms.Start(ctx, code, cb.From.ID)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrNotOwner):
		return errNotOwner
	case errors.Is(err, models.ErrInvalidTransition):
		return errAlreadyStarted
	case errors.Is(err, models.ErrNoPlayers):
		return errNoPlayers
	}
	h.logger.Error("room not started", "room", code, "error", err)
	return errInternal
}

func (h *Handler) onCancel(ctx context.Context, cb *tgbotapi.CallbackQuery, code string) string {
	err := h.rooms.Cancel(ctx, code, cb.From.ID)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrNotOwner):
		return errNotOwner
	case errors.Is(err, models.ErrInvalidTransition):
		return errAlreadyStarted
	}
	h.logger.Error("room not canceled", "room", code, "error", err)
	return errInternal
}

func (h *Handler) onLeave(ctx context.Context, cb *tgbotapi.CallbackQuery, code string) string {
	if _, err := h.rooms.Room(ctx, code); errors.Is(err, models.ErrNotFound) {
		if err := h.rooms.Leave(ctx, code, cb.From.ID); err != nil {
			h.logger.Warn("stale room mapping not cleared", "user_id", cb.From.ID, "error", err)
		}
		return errRoomClosed
	}

	err := h.rooms.Leave(ctx, code, cb.From.ID)
	switch {
	case err == nil:
		h.editCallbackMessage(cb, services.MsgLeftRoom, nil)
		return ""
	case errors.Is(err, models.ErrOwnerCannotLeave):
		return errOwnerCannotLeave
	}
	h.logger.Error("leave failed", "room", code, "error", err)
	return errInternal
}
