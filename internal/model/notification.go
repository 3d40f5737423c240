package model

import "time"

// NotificationType classifies a scheduled delivery.
type NotificationType string

const (
	NotificationReminder        NotificationType = "reminder"
	NotificationDailySummary    NotificationType = "daily_summary"
	NotificationUpcomingSummary NotificationType = "upcoming_summary"
)

// NotificationEvent is an at-most-once delivery tied to a task. It is created
// alongside its task (or on reschedule), flipped to sent exactly once by the
// delivery scan, and removed when the task is deleted.
type NotificationEvent struct {
	ID               uint `gorm:"primaryKey"`
	TaskID           uint `gorm:"index"`
	NotificationTime time.Time        `gorm:"index"`
	NotificationType NotificationType `gorm:"default:reminder"`
	Sent             bool             `gorm:"default:false;index"`
	GatewayMessageID string
	CreatedAt        time.Time
}
