package telegram

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/thereayou/flashquiz/internal/models"
	"github.com/thereayou/flashquiz/internal/services"
)

const (
	collectionsPageSize = 4
	maxTitleRunes       = 60
	actionNoop          = "noop"
)

func inlineKeyboard(rows [][]models.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		out = append(out, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

func rootButtons() [][]models.Button {
	return [][]models.Button{
		{{Text: "🆕 Создать комнату", Data: services.ActionCreate}},
		{{Text: "🔑 Подключиться к комнате", Data: services.ActionJoin}},
	}
}

// collectionButtons: страница списка коллекций с навигацией
func collectionButtons(cols []models.Collection, page int) [][]models.Button {
	pages := (len(cols) + collectionsPageSize - 1) / collectionsPageSize
	page = max(0, min(page, pages-1))

	start := page * collectionsPageSize
	end := min(start+collectionsPageSize, len(cols))

	var rows [][]models.Button
	for _, col := range cols[start:end] {
		rows = append(rows, []models.Button{{
			Text: "🧩 " + shorten(col.Title),
			Data: services.ActionCollection + strconv.FormatInt(col.ID, 10),
		}})
	}

	if pages > 1 {
		var nav []models.Button
		if page > 0 {
			nav = append(nav, models.Button{Text: "⬅️", Data: fmt.Sprintf("%s%d", services.ActionPage, page-1)})
		}
		nav = append(nav, models.Button{Text: fmt.Sprintf("%d/%d", page+1, pages), Data: actionNoop})
		if page < pages-1 {
			nav = append(nav, models.Button{Text: "➡️", Data: fmt.Sprintf("%s%d", services.ActionPage, page+1)})
		}
		rows = append(rows, nav)
	}

	return append(rows, []models.Button{{Text: "❌ Отмена", Data: services.ActionChooseCancel}})
}

func joinCancelButtons() [][]models.Button {
	return [][]models.Button{{{Text: "❌ Отмена", Data: services.ActionJoinCancel}}}
}

func settingsCancelButtons(code string) [][]models.Button {
	return [][]models.Button{{{Text: "❌ Отмена", Data: services.ActionSettingsCancel + code}}}
}

func shorten(title string) string {
	if title == "" {
		return "Без названия"
	}
	r := []rune(title)
	if len(r) > maxTitleRunes {
		return string(r[:maxTitleRunes])
	}
	return title
}
