package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/thereayou/flashquiz/internal/models"
	ws "github.com/thereayou/flashquiz/internal/websocket"
)

const answerTimeout = 5 * time.Second

// AnswerSocketHandler принимает ответы на вопросы из websocket
type AnswerSocketHandler struct {
	rooms RoomService
}

func NewAnswerSocketHandler(rooms RoomService) *AnswerSocketHandler {
	return &AnswerSocketHandler{rooms: rooms}
}

func (h *AnswerSocketHandler) HandleMessage(client *ws.Client, msg *ws.Message) error {
	if msg.Type != ws.TypeAnswer {
		return fmt.Errorf("%w: unsupported type %q", ws.ErrInvalidMessage, msg.Type)
	}

	var payload ws.AnswerPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Text == "" {
		return ws.ErrInvalidMessage
	}

	ctx, cancel := context.WithTimeout(context.Background(), answerTimeout)
	defer cancel()

	code, err := h.rooms.ActiveRoom(ctx, client.UserID)
	if err != nil {
		return err
	}
	_, err = h.rooms.SubmitAnswer(ctx, code, client.UserID, payload.Text)
	if errors.Is(err, models.ErrStale) {
		return nil
	}
	return err
}
