package models

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

type RoomState string

const (
	RoomWaiting  RoomState = "waiting"
	RoomRunning  RoomState = "running"
	RoomFinished RoomState = "finished"
	RoomCanceled RoomState = "canceled"
)

const MaxPlayersPerRoom = 30

// Terminal сообщает, что из состояния больше нет переходов
func (s RoomState) Terminal() bool {
	return s == RoomFinished || s == RoomCanceled
}

type Player struct {
	UserID          int64   `json:"user_id"`
	DisplayName     string  `json:"display_name"`
	Score           int     `json:"score"`
	TotalAnswerTime float64 `json:"total_answer_time"`
}

// Room: онлайн-комната; хранится в Redis целиком одним JSON
type Room struct {
	ID                 string    `json:"room_id"`
	OwnerID            int64     `json:"owner_id"`
	CollectionID       int64     `json:"collection_id"`
	CollectionTitle    string    `json:"collection_title"`
	Order              []int64   `json:"order"`
	Index              int       `json:"index"`
	State              RoomState `json:"state"`
	SecondsPerQuestion int       `json:"seconds_per_question"`
	PointsPerCorrect   int       `json:"points_per_correct"`

	// unix-время в секундах, nil: вопрос не активен
	QuestionDeadlineTS *float64 `json:"question_deadline_ts,omitempty"`
	AnsweredUserIDs    []int64  `json:"answered_user_ids"`
	Players            []Player `json:"players"`

	OwnerWaitMessage  *MessageRef          `json:"owner_wait_message,omitempty"`
	OwnerScoreMessage *MessageRef          `json:"owner_score_message,omitempty"`
	LastQuestionMsgs  map[int64]MessageRef `json:"last_q_msg_ids"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func NewRoom(id string, ownerID, collectionID int64, title string, order []int64, seconds, points int, now time.Time) *Room {
	return &Room{
		ID:                 id,
		OwnerID:            ownerID,
		CollectionID:       collectionID,
		CollectionTitle:    title,
		Order:              append([]int64{}, order...),
		State:              RoomWaiting,
		SecondsPerQuestion: seconds,
		PointsPerCorrect:   points,
		AnsweredUserIDs:    []int64{},
		Players:            []Player{},
		LastQuestionMsgs:   map[int64]MessageRef{},
		CreatedAt:          now,
	}
}

// UnmarshalJSON подставляет значения по умолчанию для отсутствующих полей
func (r *Room) UnmarshalJSON(data []byte) error {
	type alias Room
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Room(a)
	if r.State == "" {
		r.State = RoomWaiting
	}
	if r.QuestionDeadlineTS != nil && *r.QuestionDeadlineTS == 0 {
		r.QuestionDeadlineTS = nil
	}
	if r.Order == nil {
		r.Order = []int64{}
	}
	if r.AnsweredUserIDs == nil {
		r.AnsweredUserIDs = []int64{}
	}
	if r.Players == nil {
		r.Players = []Player{}
	}
	if r.LastQuestionMsgs == nil {
		r.LastQuestionMsgs = map[int64]MessageRef{}
	}
	return nil
}

func (r *Room) Done() bool {
	return r.Index >= len(r.Order)
}

func (r *Room) TotalQuestions() int {
	return len(r.Order)
}

func (r *Room) CurrentQuestionID() (int64, bool) {
	if r.Done() {
		return 0, false
	}
	return r.Order[r.Index], true
}

func (r *Room) IsOwner(userID int64) bool {
	return r.OwnerID == userID
}

func (r *Room) Player(userID int64) *Player {
	for i := range r.Players {
		if r.Players[i].UserID == userID {
			return &r.Players[i]
		}
	}
	return nil
}

func (r *Room) HasPlayer(userID int64) bool {
	return r.Player(userID) != nil
}

// AddPlayer идемпотентен; false: комната заполнена
func (r *Room) AddPlayer(userID int64, name string) bool {
	if r.HasPlayer(userID) {
		return true
	}
	if len(r.Players) >= MaxPlayersPerRoom {
		return false
	}
	r.Players = append(r.Players, Player{UserID: userID, DisplayName: name})
	return true
}

func (r *Room) RemovePlayer(userID int64) {
	players := r.Players[:0]
	for _, p := range r.Players {
		if p.UserID != userID {
			players = append(players, p)
		}
	}
	r.Players = players

	answered := r.AnsweredUserIDs[:0]
	for _, id := range r.AnsweredUserIDs {
		if id != userID {
			answered = append(answered, id)
		}
	}
	r.AnsweredUserIDs = answered

	delete(r.LastQuestionMsgs, userID)
}

func (r *Room) HasAnswered(userID int64) bool {
	for _, id := range r.AnsweredUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (r *Room) MarkAnswered(userID int64) {
	if !r.HasAnswered(userID) {
		r.AnsweredUserIDs = append(r.AnsweredUserIDs, userID)
	}
}

// EligiblePlayers: игроки, которым рассылаются вопросы
func (r *Room) EligiblePlayers() []Player {
	out := make([]Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.UserID != r.OwnerID {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) Deadline() (time.Time, bool) {
	if r.QuestionDeadlineTS == nil {
		return time.Time{}, false
	}
	sec, frac := math.Modf(*r.QuestionDeadlineTS)
	return time.Unix(int64(sec), int64(frac*1e9)), true
}

// BeginQuestion открывает приём ответов на текущий вопрос
func (r *Room) BeginQuestion(now time.Time) {
	deadline := now.Add(time.Duration(r.SecondsPerQuestion) * time.Second)
	ts := float64(deadline.UnixNano()) / 1e9
	r.QuestionDeadlineTS = &ts
	r.AnsweredUserIDs = []int64{}
}

func (r *Room) Advance() {
	if r.Done() {
		return
	}
	r.Index++
	r.QuestionDeadlineTS = nil
	r.AnsweredUserIDs = []int64{}
}

func (r *Room) Transition(to RoomState) error {
	switch {
	case r.State == RoomWaiting && (to == RoomRunning || to == RoomCanceled):
	case r.State == RoomRunning && (to == RoomFinished || to == RoomCanceled):
	default:
		return ErrInvalidTransition
	}
	r.State = to
	return nil
}

func (r *Room) Start(now time.Time) error {
	if r.State != RoomWaiting {
		return ErrInvalidTransition
	}
	if len(r.EligiblePlayers()) == 0 {
		return ErrNoPlayers
	}
	if err := r.Transition(RoomRunning); err != nil {
		return err
	}
	r.StartedAt = &now
	r.Index = 0
	r.QuestionDeadlineTS = nil
	r.AnsweredUserIDs = []int64{}
	return nil
}

func (r *Room) Finish(now time.Time) error {
	if err := r.Transition(RoomFinished); err != nil {
		return err
	}
	r.FinishedAt = &now
	r.QuestionDeadlineTS = nil
	return nil
}

func (r *Room) Cancel(now time.Time) error {
	if err := r.Transition(RoomCanceled); err != nil {
		return err
	}
	r.FinishedAt = &now
	r.QuestionDeadlineTS = nil
	return nil
}

const (
	MinSecondsPerQuestion = 5
	MaxSecondsPerQuestion = 300
	MinPointsPerCorrect   = 1
	MaxPointsPerCorrect   = 10000
)

// UpdateSettings меняет настройки; nil: оставить как есть
func (r *Room) UpdateSettings(seconds, points *int) error {
	if r.State != RoomWaiting {
		return ErrInvalidTransition
	}
	if seconds != nil && (*seconds < MinSecondsPerQuestion || *seconds > MaxSecondsPerQuestion) {
		return ErrInvalidSettings
	}
	if points != nil && (*points < MinPointsPerCorrect || *points > MaxPointsPerCorrect) {
		return ErrInvalidSettings
	}
	if seconds != nil {
		r.SecondsPerQuestion = *seconds
	}
	if points != nil {
		r.PointsPerCorrect = *points
	}
	return nil
}

// SortedPlayers: больше очков выше, при равенстве выше тот, у кого меньше суммарное время
func (r *Room) SortedPlayers() []Player {
	out := append([]Player{}, r.Players...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TotalAnswerTime < out[j].TotalAnswerTime
	})
	return out
}

func (r *Room) Top(n int) []Player {
	sorted := r.SortedPlayers()
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

func (r *Room) Clone() *Room {
	c := *r
	c.Order = append([]int64{}, r.Order...)
	c.AnsweredUserIDs = append([]int64{}, r.AnsweredUserIDs...)
	c.Players = append([]Player{}, r.Players...)
	c.LastQuestionMsgs = make(map[int64]MessageRef, len(r.LastQuestionMsgs))
	for k, v := range r.LastQuestionMsgs {
		c.LastQuestionMsgs[k] = v
	}
	if r.QuestionDeadlineTS != nil {
		ts := *r.QuestionDeadlineTS
		c.QuestionDeadlineTS = &ts
	}
	if r.OwnerWaitMessage != nil {
		ref := *r.OwnerWaitMessage
		c.OwnerWaitMessage = &ref
	}
	if r.OwnerScoreMessage != nil {
		ref := *r.OwnerScoreMessage
		c.OwnerScoreMessage = &ref
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
