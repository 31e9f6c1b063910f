package models

import "time"

type Collection struct {
	ID        int64  `gorm:"primaryKey"`
	OwnerID   int64  `gorm:"not null;index"`
	Title     string `gorm:"not null"`
	CreatedAt time.Time

	// Связи
	Cards []Card `gorm:"foreignKey:CollectionID;constraint:OnDelete:CASCADE"`
}

type Card struct {
	ID           int64  `gorm:"primaryKey"`
	CollectionID int64  `gorm:"not null;index"`
	Position     int    `gorm:"not null;default:0"`
	Question     string `gorm:"not null"`
	Answer       string `gorm:"not null"`
	CreatedAt    time.Time
}
