package telegram

import (
	"fmt"

	"github.com/thereayou/flashquiz/internal/models"
)

const (
	textOnlineRoot = "🤼 <b>Онлайн режим</b>\n\n" +
		"• Создай комнату, выбери коллекцию и позови друзей.\n" +
		"• До 30 игроков в одной комнате.\n" +
		"• Владелец видит live-рейтинг, игроки отвечают на вопросы в реальном времени."

	textHelp = "Команды:\n" +
		"/online — онлайн-комнаты\n" +
		"/leave — выйти из текущей комнаты\n" +
		"/login — код для входа на сайте"

	textChooseCollection = "Выбери коллекцию для игры:"
	textChooseCanceled   = "Выбор коллекции отменён."
	textJoinPrompt       = "🔑 Пришли код комнаты (6 цифр), чтобы подключиться.\nДля отмены используй кнопку ниже."
	textQRCaption        = "Сканируй QR-код, чтобы открыть бота и автоматически подключиться к этой комнате."
	textSettingsSaved    = "✅ Настройки обновлены."
	textSettingsCanceled = "Изменение настроек отменено."

	errLeaveCurrentRoom = "Сначала выйди из текущей комнаты."
	errRoomUnavailable  = "Комната не найдена или уже запущена."
	errOwnerIsNotPlayer = "Ты владелец комнаты и не участвуешь как игрок."
	errAlreadyJoined    = "Ты уже в этой комнате."
	errNoCode           = "Не вижу кода, попробуй ещё раз."
	errNotOwner         = "Комната не найдена или ты не владелец."
	errAlreadyStarted   = "Игра уже запущена или завершена."
	errNoPlayers        = "В комнате пока нет игроков."
	errNoCollections    = "У тебя пока нет коллекций."
	errEmptyCollection  = "В коллекции пока нет карточек."
	errBadCollection    = "Некорректная коллекция."
	errJoinCanceled     = "Подключение к комнате отменено."
	errRoomClosed       = "Комната уже закрыта."
	errOwnerCannotLeave = "Ты владелец комнаты. Чтобы закрыть её, нажми «❌ Отмена»."
	errNotInRoom        = "Ты сейчас не в комнате."
	errInternal         = "Что-то пошло не так, попробуй позже."
)

var errRoomFull = fmt.Sprintf("Достигнут лимит %d игроков в комнате.", models.MaxPlayersPerRoom)

func settingsPrompt(field string) string {
	if field == fieldPoints {
		return fmt.Sprintf("🎯 Пришли количество баллов за верный ответ (от %d до %d).",
			models.MinPointsPerCorrect, models.MaxPointsPerCorrect)
	}
	return fmt.Sprintf("⏱ Пришли время на ответ в секундах (от %d до %d).",
		models.MinSecondsPerQuestion, models.MaxSecondsPerQuestion)
}

func settingsRangeError(field string) string {
	if field == fieldPoints {
		return fmt.Sprintf("Нужно целое число от %d до %d.", models.MinPointsPerCorrect, models.MaxPointsPerCorrect)
	}
	return fmt.Sprintf("Нужно целое число от %d до %d.", models.MinSecondsPerQuestion, models.MaxSecondsPerQuestion)
}

func loginCodeText(userID int64, code string) string {
	return fmt.Sprintf(
		"🔐 Код для входа на сайте: <code>%s</code>\nТвой id: <code>%d</code>\nКод одноразовый и действует 5 минут.",
		code, userID,
	)
}
