package services

import (
	"strings"

	"github.com/thereayou/flashquiz/internal/models"
)

// Данные кнопок; Telegram возвращает их в callback query
const (
	ActionCreate         = "online:create"
	ActionJoin           = "online:join"
	ActionJoinCancel     = "online:join_cancel"
	ActionChooseCancel   = "online:choose_cancel"
	ActionCollection     = "online:col:"
	ActionPage           = "online:page:"
	ActionSetPoints      = "online:set_points:"
	ActionSetTime        = "online:set_time:"
	ActionStart          = "online:start:"
	ActionCancel         = "online:cancel:"
	ActionLeave          = "online:leave:"
	ActionSettingsCancel = "online:settings_cancel:"
)

// ActionArg возвращает хвост после префикса действия
func ActionArg(data, prefix string) (string, bool) {
	arg, ok := strings.CutPrefix(data, prefix)
	return arg, ok && arg != ""
}

func OwnerRoomButtons(code string) [][]models.Button {
	return [][]models.Button{
		{{Text: "🎯 Баллов за ответ", Data: ActionSetPoints + code}},
		{{Text: "⏱ Время на ответ", Data: ActionSetTime + code}},
		{{Text: "🚀 Начать игру", Data: ActionStart + code}},
		{{Text: "❌ Отмена", Data: ActionCancel + code}},
	}
}

func PlayerRoomButtons(code string) [][]models.Button {
	return [][]models.Button{
		{{Text: "🚪 Выйти из комнаты", Data: ActionLeave + code}},
	}
}
