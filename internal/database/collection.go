package database

import (
	"context"

	"github.com/thereayou/flashquiz/internal/models"
)

// ListUserCollections: коллекции пользователя, новые сверху
func (d *Database) ListUserCollections(ctx context.Context, ownerID int64) ([]models.Collection, error) {
	var collections []models.Collection
	err := d.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&collections).Error
	if err != nil {
		return nil, err
	}
	return collections, nil
}

func (d *Database) GetCollection(ctx context.Context, id int64) (*models.Collection, error) {
	var collection models.Collection
	if err := d.db.WithContext(ctx).First(&collection, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &collection, nil
}

// Collection возвращает название коллекции и id карточек в порядке position
func (d *Database) Collection(ctx context.Context, id int64) (string, []int64, error) {
	collection, err := d.GetCollection(ctx, id)
	if err != nil {
		return "", nil, err
	}

	var ids []int64
	err = d.db.WithContext(ctx).
		Model(&models.Card{}).
		Where("collection_id = ?", id).
		Order("position, id").
		Pluck("id", &ids).Error
	if err != nil {
		return "", nil, err
	}
	return collection.Title, ids, nil
}

func (d *Database) Card(ctx context.Context, id int64) (*models.Card, error) {
	var card models.Card
	if err := d.db.WithContext(ctx).First(&card, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &card, nil
}
