package services

import (
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/thereayou/flashquiz/internal/models"
)

const (
	MsgOwnerCanceled = "Владелец отменил игру."
	MsgRoomClosed    = "Комната закрыта."
	MsgGameStarted   = "Игра запущена! После каждого вопроса рейтинг будет обновляться."
	MsgLeftRoom      = "Ты вышел из комнаты."
)

func collectionTitle(room *models.Room) string {
	if room.CollectionTitle == "" {
		return "Коллекция"
	}
	return room.CollectionTitle
}

func roundSeconds(s float64) int {
	return int(math.RoundToEven(s))
}

// WaitingRoomText: сообщение владельца, пока комната набирает игроков
func WaitingRoomText(room *models.Room, deepLink string) string {
	lines := []string{
		fmt.Sprintf("🧩 Коллекция: <b>%s</b>", html.EscapeString(collectionTitle(room))),
		"",
		fmt.Sprintf("🔢 Код комнаты: <code>%s</code>", room.ID),
		fmt.Sprintf("⏱ Время на ответ: <b>%d</b> сек.", room.SecondsPerQuestion),
		fmt.Sprintf("🏆 Баллы за верный ответ: <b>%d</b>", room.PointsPerCorrect),
		"",
		fmt.Sprintf("👥 Подключено игроков: <b>%d</b>", len(room.Players)),
	}
	if deepLink != "" {
		lines = append(lines, "", "🔗 Пригласительная ссылка для игроков:", html.EscapeString(deepLink))
	}
	lines = append(lines,
		"",
		"Когда все подключатся, нажми <b>«🚀 Начать игру»</b>.",
		"Через кнопки ниже можно изменить <b>время на ответ</b> и <b>баллы за верный ответ</b>.",
	)
	return strings.Join(lines, "\n")
}

func PlayerWaitingText(room *models.Room) string {
	return fmt.Sprintf(
		"🧩 Коллекция: <b>%s</b>\n"+
			"🔢 Код комнаты: <code>%s</code>\n\n"+
			"Ожидаем старт игры…\n\n"+
			"⏱ Время на ответ: <b>%d</b> сек.\n"+
			"🏆 Баллы за верный ответ: <b>%d</b>\n\n"+
			"Владелец комнаты может поменять настройки перед стартом.\n"+
			"Если что-то пошло не так — нажми «🚪 Выйти из комнаты».",
		html.EscapeString(collectionTitle(room)), room.ID, room.SecondsPerQuestion, room.PointsPerCorrect,
	)
}

func QuestionText(room *models.Room, question string) string {
	return fmt.Sprintf(
		"🧩 <b>%s</b>\n❓ Вопрос %d/%d\n\n%s\n\n⏱ У тебя <b>%d</b> сек. на ответ.\nПросто отправь сообщение с ответом.",
		html.EscapeString(collectionTitle(room)), room.Index+1, room.TotalQuestions(),
		html.EscapeString(question), room.SecondsPerQuestion,
	)
}

func RevealText(room *models.Room, question, answer string) string {
	return fmt.Sprintf(
		"🧩 <b>%s</b>\n❓ Вопрос %d/%d\n\n%s\n\n✅ Правильный ответ: <b>%s</b>",
		html.EscapeString(collectionTitle(room)), room.Index+1, room.TotalQuestions(),
		html.EscapeString(question), html.EscapeString(answer),
	)
}

func scoreLines(board Scoreboard) []string {
	lines := make([]string, 0, len(board))
	for _, e := range board {
		lines = append(lines, fmt.Sprintf("%d. %s — %d очков", e.Rank, html.EscapeString(e.DisplayName), e.Score))
	}
	return lines
}

func LiveScoreboardText(board Scoreboard) string {
	return "📊 Текущий рейтинг игроков:\n\n" + strings.Join(scoreLines(board), "\n")
}

func OwnerFinalText(room *models.Room, board Scoreboard) string {
	body := "Пока никто не набрал очков."
	if len(board) > 0 {
		body = strings.Join(scoreLines(board), "\n")
	}
	return fmt.Sprintf(
		"🏁 <b>Игра завершена</b>\n🧩 Коллекция: <b>%s</b>\n\n📊 Итоговый рейтинг игроков:\n\n%s",
		html.EscapeString(collectionTitle(room)), body,
	)
}

func TopLines(top Scoreboard) string {
	if len(top) == 0 {
		return "Пока нет результатов."
	}
	lines := make([]string, 0, len(top))
	for _, e := range top {
		lines = append(lines, fmt.Sprintf("%d. %s — %d очков — %d сек.",
			e.Rank, html.EscapeString(e.DisplayName), e.Score, roundSeconds(e.TotalAnswerTime)))
	}
	return strings.Join(lines, "\n")
}

func PlayerFinalText(room *models.Room, board Scoreboard, userID int64) string {
	entry, ok := board.Find(userID)
	place := "Твоё место: неизвестно (ошибка определения места)."
	if ok {
		place = fmt.Sprintf("Твоё место: <b>%d</b>.", entry.Rank)
	}
	return fmt.Sprintf(
		"🏁 <b>Игра завершена</b>\n🧩 Коллекция: <b>%s</b>\n\n%s\nТвои очки: <b>%d</b>\nСуммарное время ответов: <b>%d</b> сек.\n\n🏆 <b>ТОП-3 игроков:</b>\n%s",
		html.EscapeString(collectionTitle(room)), place, entry.Score, roundSeconds(entry.TotalAnswerTime),
		TopLines(board.Top(TopPlayers)),
	)
}
