package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Priority of a task. Drives how many reminders are scheduled before it.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority normalizes a priority string, falling back to medium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(s)
	}
	return PriorityMedium
}

// Status of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Tags is a set of free-form labels stored as a JSON array in a text column.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if len(t) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	return string(b), nil
}

func (t *Tags) Scan(value any) error {
	if value == nil {
		*t = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan tags: unsupported type %T", value)
	}
	if len(raw) == 0 {
		*t = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(t))
}

// Task represents a single item in the schedule. A recurring task is a
// template: it never appears in day ranges itself, only the concrete
// instances generated from it do.
type Task struct {
	ID              uint `gorm:"primaryKey"`
	Title           string
	Description     string
	ScheduledTime   *time.Time `gorm:"index"`
	DurationMinutes int
	Priority        Priority        `gorm:"default:medium"`
	Status          Status          `gorm:"default:pending;index"`
	Tags            Tags            `gorm:"type:text"`
	IsRecurring     bool            `gorm:"default:false"`
	RecurrenceRule  *RecurrenceRule `gorm:"type:text"`

	// Set on generated instances only; together they key idempotent
	// generation (one instance per template per day).
	TemplateID   *uint  `gorm:"index"`
	InstanceDate string `gorm:"index"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time

	Notifications []NotificationEvent `gorm:"constraint:OnDelete:CASCADE"`
}

// Scheduled reports whether the task has a concrete time. Tasks whose time
// phrase could not be parsed stay unscheduled rather than failing creation.
func (t *Task) Scheduled() bool {
	return t.ScheduledTime != nil
}
