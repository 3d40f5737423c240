package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"schedule-manager/internal/model"
)

// IPRepository stores the public IP history for the change monitor.
type IPRepository struct {
	db *gorm.DB
}

func NewIPRepository(db *gorm.DB) *IPRepository {
	return &IPRepository{db: db}
}

// Latest returns the most recently observed address, or "" if none yet.
func (r *IPRepository) Latest(ctx context.Context) (string, error) {
	var rec model.IPRecord
	err := r.db.WithContext(ctx).Order("id DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest ip: %w", err)
	}
	return rec.Address, nil
}

func (r *IPRepository) Save(ctx context.Context, address string, seenAt time.Time) error {
	rec := model.IPRecord{Address: address, SeenAt: seenAt}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("save ip: %w", err)
	}
	return nil
}
