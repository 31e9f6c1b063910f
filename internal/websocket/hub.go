package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/thereayou/flashquiz/internal/models"
)

type MessageType string

const (
	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"

	// сервер -> клиент
	TypeNotification     MessageType = "notification"
	TypeNotificationEdit MessageType = "notification_edit"

	// клиент -> сервер
	TypeAnswer MessageType = "answer"
)

type Message struct {
	Type      MessageType     `json:"type"`
	UserID    int64           `json:"user_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NotificationPayload: данные notification и notification_edit
type NotificationPayload struct {
	MessageID int64             `json:"message_id"`
	Text      string            `json:"text"`
	Buttons   [][]models.Button `json:"buttons,omitempty"`
}

type AnswerPayload struct {
	Text string `json:"text"`
}

type Client struct {
	ID     uuid.UUID
	UserID int64
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub
}

// Hub держит открытые соединения; у пользователя их может быть несколько
type Hub struct {
	clients     map[uuid.UUID]*Client
	userClients map[int64]map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	nextID atomic.Int64
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[int64]map[uuid.UUID]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		logger:      logger.With("component", "ws"),
		ctx:         ctx,
		cancel:      cancel,
	}
	// id сообщений переживают рестарт: ссылки на них лежат в снимках комнат
	h.nextID.Store(time.Now().UnixMicro())
	return h
}

func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ticker.C:
			h.ping()
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.Send)
		if client.Conn != nil {
			client.Conn.Close()
		}
		delete(h.clients, id)
	}
	h.userClients = make(map[int64]map[uuid.UUID]*Client)
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	if _, ok := h.userClients[client.UserID]; !ok {
		h.userClients[client.UserID] = make(map[uuid.UUID]*Client)
	}
	h.userClients[client.UserID][client.ID] = client

	h.logger.Info("client registered", "client_id", client.ID, "user_id", client.UserID)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	if userClients, ok := h.userClients[client.UserID]; ok {
		delete(userClients, client.ID)
		if len(userClients) == 0 {
			delete(h.userClients, client.UserID)
		}
	}
	delete(h.clients, client.ID)
	close(client.Send)

	h.logger.Info("client unregistered", "client_id", client.ID, "user_id", client.UserID)
}

// Online: есть ли у пользователя хоть одно открытое соединение
func (h *Hub) Online(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userClients[userID]) > 0
}

// SendToUser кладёт сообщение во все соединения пользователя; false: ни одного не нашлось
func (h *Hub) SendToUser(userID int64, message []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.userClients[userID]
	if !ok || len(clients) == 0 {
		return false
	}
	for _, client := range clients {
		select {
		case client.Send <- message:
		default:
			h.logger.Warn("send channel full", "client_id", client.ID, "user_id", userID)
		}
	}
	return true
}

// Send реализует доставку уведомлений комнаты через websocket
func (h *Hub) Send(_ context.Context, userID int64, n models.Notification) (models.MessageRef, error) {
	id := h.nextID.Add(1)
	if err := h.push(userID, TypeNotification, NotificationPayload{MessageID: id, Text: n.Text, Buttons: n.Buttons}); err != nil {
		return models.MessageRef{}, err
	}
	return models.MessageRef{Transport: models.TransportWebSocket, ChatID: userID, MessageID: id}, nil
}

func (h *Hub) Edit(_ context.Context, ref models.MessageRef, n models.Notification) error {
	return h.push(ref.ChatID, TypeNotificationEdit, NotificationPayload{MessageID: ref.MessageID, Text: n.Text, Buttons: n.Buttons})
}

func (h *Hub) push(userID int64, msgType MessageType, payload NotificationPayload) error {
	data, err := encode(msgType, payload)
	if err != nil {
		return err
	}
	if !h.SendToUser(userID, data) {
		return fmt.Errorf("%w: user %d: %w", models.ErrDelivery, userID, ErrUserOffline)
	}
	return nil
}

func (h *Hub) ping() {
	data, err := encode(TypePing, nil)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
		}
	}
}

func encode(msgType MessageType, data any) ([]byte, error) {
	msg := Message{Type: msgType, Timestamp: time.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}
