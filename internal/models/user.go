package models

import "time"

// User: пользователь бота, ID совпадает с Telegram user id
type User struct {
	ID         int64  `gorm:"primaryKey;autoIncrement:false"`
	Username   string `gorm:"index"`
	FirstName  string
	LastSeenAt time.Time
	CreatedAt  time.Time

	Collections []Collection `gorm:"foreignKey:OwnerID"`
}

// DisplayName: имя для рейтинга
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}
