package services

import (
	"fmt"

	"github.com/thereayou/flashquiz/internal/models"
)

const TopPlayers = 3

type ScoreEntry struct {
	Rank            int     `json:"rank"`
	UserID          int64   `json:"user_id"`
	DisplayName     string  `json:"display_name"`
	Score           int     `json:"score"`
	TotalAnswerTime float64 `json:"total_answer_time"`
}

type Scoreboard []ScoreEntry

// BuildScoreboard ранжирует игроков комнаты
func BuildScoreboard(room *models.Room) Scoreboard {
	sorted := room.SortedPlayers()
	board := make(Scoreboard, 0, len(sorted))
	for i, p := range sorted {
		board = append(board, ScoreEntry{
			Rank:            i + 1,
			UserID:          p.UserID,
			DisplayName:     displayName(p),
			Score:           p.Score,
			TotalAnswerTime: p.TotalAnswerTime,
		})
	}
	return board
}

func (s Scoreboard) Top(n int) Scoreboard {
	if n < len(s) {
		return s[:n]
	}
	return s
}

func (s Scoreboard) Find(userID int64) (ScoreEntry, bool) {
	for _, e := range s {
		if e.UserID == userID {
			return e, true
		}
	}
	return ScoreEntry{}, false
}

func displayName(p models.Player) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return fmt.Sprintf("id%d", p.UserID)
}
