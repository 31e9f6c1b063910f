package database

import (
	"context"
	"time"

	"github.com/thereayou/flashquiz/internal/models"
	"gorm.io/gorm/clause"
)

// TouchUser создаёт пользователя при первом обращении и обновляет last_seen
func (d *Database) TouchUser(ctx context.Context, id int64, username, firstName string) error {
	user := models.User{
		ID:         id,
		Username:   username,
		FirstName:  firstName,
		LastSeenAt: time.Now(),
	}
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "first_name", "last_seen_at"}),
	}).Create(&user).Error
}

func (d *Database) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user := models.User{}
	if err := d.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}
