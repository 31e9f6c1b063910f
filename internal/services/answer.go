package services

import (
	"strings"
	"time"

	"github.com/thereayou/flashquiz/internal/models"
	"golang.org/x/text/cases"
)

type AnswerVerdict struct {
	Correct bool
	Elapsed float64
}

// NormalizeAnswer: регистр не важен, пробелы схлопываются
func NormalizeAnswer(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// ApplyAnswer засчитывает ответ игрока на текущий вопрос.
// Любой отказ: models.ErrStale, комната при этом не меняется.
func ApplyAnswer(room *models.Room, userID int64, text, correctAnswer string, now time.Time) (AnswerVerdict, error) {
	if room.State != models.RoomRunning || room.IsOwner(userID) {
		return AnswerVerdict{}, models.ErrStale
	}
	deadline, ok := room.Deadline()
	if !ok || now.After(deadline) {
		return AnswerVerdict{}, models.ErrStale
	}
	player := room.Player(userID)
	if player == nil || room.HasAnswered(userID) {
		return AnswerVerdict{}, models.ErrStale
	}

	window := time.Duration(room.SecondsPerQuestion) * time.Second
	elapsed := now.Sub(deadline.Add(-window)).Seconds()
	elapsed = max(0, min(elapsed, window.Seconds()))

	verdict := AnswerVerdict{
		Correct: NormalizeAnswer(text) == NormalizeAnswer(correctAnswer),
		Elapsed: elapsed,
	}
	if verdict.Correct {
		player.Score += room.PointsPerCorrect
	}
	player.TotalAnswerTime += elapsed
	room.MarkAnswered(userID)

	return verdict, nil
}
