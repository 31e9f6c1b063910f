package models

const (
	TransportTelegram  = "telegram"
	TransportWebSocket = "ws"
)

// MessageRef: ссылка на уже отправленное сообщение, нужна для редактирования
type MessageRef struct {
	Transport string `json:"transport,omitempty"`
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
}

type Button struct {
	Text string `json:"text"`
	Data string `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Notification: текст в HTML-разметке плюс опциональные кнопки (по рядам)
type Notification struct {
	Text    string     `json:"text"`
	Buttons [][]Button `json:"buttons,omitempty"`
}

func Text(s string) Notification {
	return Notification{Text: s}
}
