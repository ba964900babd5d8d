package database

import (
	"github.com/pleyazul/oraculo-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase opens the sqlite database at path and migrates the order and
// reading schemas.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&types.Order{},
		&types.Reading{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
