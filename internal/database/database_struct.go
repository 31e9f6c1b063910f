package database

import "gorm.io/gorm"

// Database: коллекции, карточки и пользователи бота в Postgres
type Database struct {
	db *gorm.DB
}

// Open подключается к Postgres и мигрирует схему
func Open(dsn string) (*Database, error) {
	d := &Database{}
	if err := d.Connect(dsn); err != nil {
		return nil, err
	}
	return d, nil
}
