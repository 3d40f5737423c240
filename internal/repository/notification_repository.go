package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"schedule-manager/internal/model"
)

// NotificationRepository handles CRUD for notification events.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, event *model.NotificationEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("create notification event: %w", err)
	}
	return nil
}

// DueUnsent returns unsent events due at or before the given instant,
// oldest first.
func (r *NotificationRepository) DueUnsent(ctx context.Context, before time.Time) ([]model.NotificationEvent, error) {
	var events []model.NotificationEvent
	if err := r.db.WithContext(ctx).
		Where("sent = ? AND notification_time <= ?", false, before).
		Order("notification_time ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list due events: %w", err)
	}
	return events, nil
}

// MarkSent flips the sent flag exactly once and records the gateway id.
func (r *NotificationRepository) MarkSent(ctx context.Context, id uint, gatewayMessageID string) error {
	res := r.db.WithContext(ctx).Model(&model.NotificationEvent{}).
		Where("id = ? AND sent = ?", id, false).
		Updates(map[string]any{"sent": true, "gateway_message_id": gatewayMessageID})
	if res.Error != nil {
		return fmt.Errorf("mark event sent: %w", res.Error)
	}
	return nil
}

// DeleteUnsentForTask discards pending events for a task, typically before
// regenerating them after a reschedule. Sent events stay untouched.
func (r *NotificationRepository) DeleteUnsentForTask(ctx context.Context, taskID uint) error {
	if err := r.db.WithContext(ctx).
		Where("task_id = ? AND sent = ?", taskID, false).
		Delete(&model.NotificationEvent{}).Error; err != nil {
		return fmt.Errorf("delete unsent events: %w", err)
	}
	return nil
}

// ForTask returns all events belonging to a task, ordered by fire time.
func (r *NotificationRepository) ForTask(ctx context.Context, taskID uint) ([]model.NotificationEvent, error) {
	var events []model.NotificationEvent
	if err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("notification_time ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list task events: %w", err)
	}
	return events, nil
}
