package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"github.com/thereayou/flashquiz/internal/handlers/dto"
	"github.com/thereayou/flashquiz/internal/middleware"
	"github.com/thereayou/flashquiz/internal/models"
	"github.com/thereayou/flashquiz/internal/services"
)

// RoomService: операции над комнатами для HTTP и websocket
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

type RoomHandler struct {
	rooms RoomService
	users UserDirectory
}

func NewRoomHandler(rooms RoomService, users UserDirectory) *RoomHandler {
	return &RoomHandler{rooms: rooms, users: users}
}

// roomCode достаёт :code и отсекает заведомо несуществующие коды
func roomCode(c *gin.Context) (string, bool) {
	code := c.Param("code")
	if !services.IsRoomCode(code) {
		c.JSON(http.StatusNotFound, gin.H{"error": models.ErrNotFound.Error()})
		return "", false
	}
	return code, true
}

// memberRoom отдаёт комнату только владельцу и игрокам, остальным: 404
func (h *RoomHandler) memberRoom(c *gin.Context) (*models.Room, bool) {
	code, ok := roomCode(c)
	if !ok {
		return nil, false
	}
	room, err := h.rooms.Room(c.Request.Context(), code)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	userID := middleware.UserID(c)
	if !room.IsOwner(userID) && !room.HasPlayer(userID) {
		respondError(c, models.ErrNotFound)
		return nil, false
	}
	return room, true
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID := middleware.UserID(c)

	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.rooms.Create(c.Request.Context(), services.CreateRoomRequest{
		OwnerID:            userID,
		CollectionID:       req.CollectionID,
		SecondsPerQuestion: req.SecondsPerQuestion,
		PointsPerCorrect:   req.PointsPerCorrect,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.formatRoomResponse(room))
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, ok := h.memberRoom(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.formatRoomResponse(room))
}

func (h *RoomHandler) JoinRoom(c *gin.Context) {
	userID := middleware.UserID(c)
	code, ok := roomCode(c)
	if !ok {
		return
	}

	name := ""
	if user, err := h.users.GetUser(c.Request.Context(), userID); err == nil {
		name = user.DisplayName()
	}

	room, err := h.rooms.Join(c.Request.Context(), code, userID, name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.formatRoomResponse(room))
}

func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}
	if err := h.rooms.Leave(c.Request.Context(), code, middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) StartRoom(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}
	room, err := h.rooms.Start(c.Request.Context(), code, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.formatRoomResponse(room))
}

func (h *RoomHandler) CancelRoom(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}
	if err := h.rooms.Cancel(c.Request.Context(), code, middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) UpdateSettings(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}

	var req dto.SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SecondsPerQuestion == nil && req.PointsPerCorrect == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	room, err := h.rooms.UpdateSettings(c.Request.Context(), code, middleware.UserID(c), req.SecondsPerQuestion, req.PointsPerCorrect)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.formatRoomResponse(room))
}

func (h *RoomHandler) SubmitAnswer(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}

	var req dto.AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	verdict, err := h.rooms.SubmitAnswer(c.Request.Context(), code, middleware.UserID(c), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.AnswerResponse{Correct: verdict.Correct, Elapsed: verdict.Elapsed})
}

func (h *RoomHandler) GetScoreboard(c *gin.Context) {
	room, ok := h.memberRoom(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": room.ID, "state": room.State, "scoreboard": services.BuildScoreboard(room)})
}

// GetRoomQR: PNG с QR-кодом пригласительной ссылки
func (h *RoomHandler) GetRoomQR(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}
	if _, err := h.rooms.Room(c.Request.Context(), code); err != nil {
		respondError(c, err)
		return
	}

	link := h.rooms.DeepLink(code)
	if link == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "invite links are disabled"})
		return
	}
	png, err := qrcode.Encode(link, qrcode.Medium, 320)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *RoomHandler) formatRoomResponse(room *models.Room) gin.H {
	resp := gin.H{
		"room_id":              room.ID,
		"owner_id":             room.OwnerID,
		"collection_id":        room.CollectionID,
		"collection_title":     room.CollectionTitle,
		"state":                room.State,
		"seconds_per_question": room.SecondsPerQuestion,
		"points_per_correct":   room.PointsPerCorrect,
		"question":             room.Index,
		"total_questions":      room.TotalQuestions(),
		"players":              services.BuildScoreboard(room),
		"created_at":           room.CreatedAt,
	}
	if deadline, ok := room.Deadline(); ok {
		resp["question_deadline"] = deadline
	}
	if link := h.rooms.DeepLink(room.ID); link != "" {
		resp["invite_link"] = link
	}
	return resp
}
