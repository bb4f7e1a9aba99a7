package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type credentialRow struct {
	Name      string `gorm:"primaryKey;column:name"`
	Value     string `gorm:"column:value"`
	UpdatedAt time.Time
}

func (credentialRow) TableName() string {
	return "credentials"
}

// GormKV stores values in a "credentials" table of a gorm database.
type GormKV struct {
	db *gorm.DB
}

// NewGormKV migrates the credentials table and returns a GormKV backed by db.
func NewGormKV(db *gorm.DB) (*GormKV, error) {
	if err := db.AutoMigrate(&credentialRow{}); err != nil {
		return nil, fmt.Errorf("credstore: migrate credentials table: %w", err)
	}
	return &GormKV{db: db}, nil
}

func (g *GormKV) Get(ctx context.Context, key string) (string, bool, error) {
	var row credentialRow
	err := g.db.WithContext(ctx).Take(&row, "name = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("credstore: load %q: %w", key, err)
	}
	return row.Value, true, nil
}

func (g *GormKV) Set(ctx context.Context, key, value string) error {
	row := credentialRow{Name: key, Value: value, UpdatedAt: time.Now()}
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("credstore: save %q: %w", key, err)
	}
	return nil
}

func (g *GormKV) Delete(ctx context.Context, key string) error {
	if err := g.db.WithContext(ctx).Delete(&credentialRow{}, "name = ?", key).Error; err != nil {
		return fmt.Errorf("credstore: delete %q: %w", key, err)
	}
	return nil
}
